package models

import "time"

// Payout 商家打款单
type Payout struct {
	ID                    uint       `gorm:"primarykey" json:"id"`                                                     // 主键
	PayoutNo              string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"payout_no"`                   // 打款单号
	TenantID              string     `gorm:"type:varchar(64);not null;index;index:idx_payout_period" json:"tenant_id"` // 租户ID
	VendorID              string     `gorm:"type:varchar(64);not null;index;index:idx_payout_period" json:"vendor_id"` // 商家ID
	CurrencyCode          string     `gorm:"type:varchar(8);not null;index:idx_payout_period" json:"currency_code"`    // 币种
	PeriodStart           time.Time  `gorm:"not null;index:idx_payout_period" json:"period_start"`                     // 周期开始
	PeriodEnd             time.Time  `gorm:"not null;index:idx_payout_period" json:"period_end"`                       // 周期结束
	GrossAmount           int64      `gorm:"not null;default:0" json:"gross_amount"`                                   // 订单总额合计
	CommissionAmount      int64      `gorm:"not null;default:0" json:"commission_amount"`                              // 佣金合计
	PlatformFeeAmount     int64      `gorm:"not null;default:0" json:"platform_fee_amount"`                            // 服务费合计
	AdjustmentAmount      int64      `gorm:"not null;default:0" json:"adjustment_amount"`                              // 调整合计
	NetAmount             int64      `gorm:"not null;default:0" json:"net_amount"`                                     // 应付净额
	TransactionCount      int        `gorm:"not null;default:0" json:"transaction_count"`                              // 流水条数
	Status                string     `gorm:"type:varchar(16);not null;index" json:"status"`                            // 状态
	PaymentMethod         string     `gorm:"type:varchar(32);not null" json:"payment_method"`                          // 打款方式
	RailAccountID         string     `gorm:"type:varchar(128)" json:"rail_account_id"`                                 // 收款账户
	StripeTransferID      string     `gorm:"type:varchar(128);index" json:"stripe_transfer_id"`                        // 渠道转账ID
	RailStatus            string     `gorm:"type:varchar(16)" json:"rail_status"`                                      // 渠道侧状态
	IdempotencyKey        string     `gorm:"type:varchar(128);not null;uniqueIndex" json:"idempotency_key"`            // 渠道幂等键
	RetryCount            int        `gorm:"not null;default:0" json:"retry_count"`                                    // 重试次数
	LastRetryAt           *time.Time `json:"last_retry_at,omitempty"`                                                  // 最近重试时间
	NextRetryAt           *time.Time `gorm:"index" json:"next_retry_at,omitempty"`                                     // 下次重试时间
	FailureReason         string     `gorm:"type:varchar(500)" json:"failure_reason"`                                  // 失败原因
	RequiresApproval      bool       `gorm:"not null;default:false" json:"requires_approval"`                          // 是否需要审批
	ApprovedBy            *string    `gorm:"type:varchar(64)" json:"approved_by,omitempty"`                            // 审批人
	ApprovedAt            *time.Time `json:"approved_at,omitempty"`                                                    // 审批时间
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`                                          // 开始处理时间
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`                                        // 完成时间
	Version               int64      `gorm:"not null;default:1" json:"version"`                                        // 乐观锁版本
	CreatedAt             time.Time  `gorm:"index" json:"created_at"`                                                  // 创建时间
	UpdatedAt             time.Time  `json:"updated_at"`                                                               // 更新时间

	Links []PayoutTransactionLink `gorm:"foreignKey:PayoutID" json:"links,omitempty"` // 关联流水
}

// TableName 指定表名
func (Payout) TableName() string {
	return "payouts"
}

// PayoutTransactionLink 打款单与佣金流水关联
type PayoutTransactionLink struct {
	ID                      uint       `gorm:"primarykey" json:"id"`                               // 主键
	PayoutID                uint       `gorm:"not null;index" json:"payout_id"`                    // 打款单ID
	CommissionTransactionID uint       `gorm:"not null;index" json:"commission_transaction_id"`    // 佣金流水ID
	Amount                  int64      `gorm:"not null" json:"amount"`                             // 计入金额
	ActiveTransactionID     *uint      `gorm:"uniqueIndex" json:"active_transaction_id,omitempty"` // 有效关联占位（释放后置空）
	ReleasedAt              *time.Time `json:"released_at,omitempty"`                              // 释放时间
	CreatedAt               time.Time  `json:"created_at"`                                         // 创建时间
}

// TableName 指定表名
func (PayoutTransactionLink) TableName() string {
	return "payout_transaction_links"
}
