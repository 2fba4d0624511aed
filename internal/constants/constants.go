package constants

// 佣金规则类型
const (
	CommissionRuleTypePercentage       = "percentage"
	CommissionRuleTypeFlat             = "flat"
	CommissionRuleTypeTieredPercentage = "tiered_percentage"
	CommissionRuleTypeTieredFlat       = "tiered_flat"
	CommissionRuleTypeHybrid           = "hybrid"
)

// 佣金规则状态
const (
	CommissionRuleStatusActive    = "active"
	CommissionRuleStatusInactive  = "inactive"
	CommissionRuleStatusScheduled = "scheduled"
)

// 佣金规则适用范围
const (
	CommissionAppliesToAllProducts        = "all_products"
	CommissionAppliesToSpecificCategories = "specific_categories"
	CommissionAppliesToSpecificProducts   = "specific_products"
	CommissionAppliesToSpecificCollection = "specific_collections"
)

// 阶梯计算方式
const (
	// TierModeMarginal 分段累进：每段金额按该段费率计算后求和
	TierModeMarginal = "marginal"
	// TierModeBracket 整单落档：按订单金额所在档位的费率计算全额
	TierModeBracket = "bracket"
)

// 佣金流水状态
const (
	CommissionStatusPending  = "pending"
	CommissionStatusApproved = "approved"
	CommissionStatusPaid     = "paid"
	CommissionStatusReversed = "reversed"
	CommissionStatusDisputed = "disputed"
)

// 佣金流水结算状态
const (
	CommissionPayoutStatusUnpaid        = "unpaid"
	CommissionPayoutStatusPendingPayout = "pending_payout"
	CommissionPayoutStatusPaid          = "paid"
	CommissionPayoutStatusFailed        = "failed"
)

// 佣金流水类型
const (
	CommissionTxnTypeSale       = "sale"
	CommissionTxnTypeRefund     = "refund"
	CommissionTxnTypeAdjustment = "adjustment"
	CommissionTxnTypeReversal   = "reversal"
)

// 打款单状态
const (
	PayoutStatusPending    = "pending"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
	PayoutStatusCancelled  = "cancelled"
	PayoutStatusOnHold     = "on_hold"
)

// 打款方式
const (
	PayoutMethodStripeConnect = "stripe_connect"
	PayoutMethodWallet        = "wallet"
)

// 打款周期
const (
	PayoutScheduleDaily   = "daily"
	PayoutScheduleWeekly  = "weekly"
	PayoutScheduleMonthly = "monthly"
	PayoutScheduleManual  = "manual"
)

// 打款渠道侧转账状态
const (
	RailTransferStatusPending = "pending"
	RailTransferStatusPaid    = "paid"
	RailTransferStatusFailed  = "failed"
)

// 打款通知事件
const (
	PayoutEventCompleted = "payout.completed"
	PayoutEventFailed    = "payout.failed"
)

// 钱包状态
const (
	WalletStatusActive = "active"
	WalletStatusFrozen = "frozen"
	WalletStatusClosed = "closed"
)

// 钱包流水类型
const (
	WalletTxnTypeCredit     = "credit"
	WalletTxnTypeDebit      = "debit"
	WalletTxnTypeRefund     = "refund"
	WalletTxnTypeAdjustment = "adjustment"
	WalletTxnTypeHold       = "hold"
	WalletTxnTypeRelease    = "release"
)

// 钱包冻结单状态
const (
	WalletHoldStatusActive   = "active"
	WalletHoldStatusReleased = "released"
	WalletHoldStatusCaptured = "captured"
)

// 钱包流水关联类型
const (
	WalletReferenceOrder  = "order"
	WalletReferencePayout = "payout"
	WalletReferenceHold   = "hold"
	WalletReferenceManual = "manual"
)

// 异步队列
const (
	QueueDefault  = "default"
	QueueCritical = "critical"

	TaskPayoutBatchRun = "payout:batch_run"
	TaskPayoutSettle   = "payout:settle"
	TaskPayoutNotify   = "payout:notify"
)
