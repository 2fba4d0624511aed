package models

import "time"

// CommissionTransaction 佣金流水（不可变账本行，仅状态字段可更新）
type CommissionTransaction struct {
	ID                     uint       `gorm:"primarykey" json:"id"`                                          // 主键
	TenantID               string     `gorm:"type:varchar(64);not null;index" json:"tenant_id"`              // 租户ID
	OrderID                string     `gorm:"type:varchar(64);not null;index" json:"order_id"`               // 订单ID
	LineItemID             *string    `gorm:"type:varchar(64)" json:"line_item_id,omitempty"`                // 订单行ID（订单级为空）
	VendorID               string     `gorm:"type:varchar(64);not null;index" json:"vendor_id"`              // 商家ID
	StoreID                string     `gorm:"type:varchar(64)" json:"store_id"`                              // 店铺ID
	CommissionRuleID       *uint      `gorm:"index" json:"commission_rule_id,omitempty"`                     // 命中规则（为空表示无规则）
	CurrencyCode           string     `gorm:"type:varchar(8);not null" json:"currency_code"`                 // 币种
	OrderSubtotal          int64      `gorm:"not null;default:0" json:"order_subtotal"`                      // 小计
	OrderTax               int64      `gorm:"not null;default:0" json:"order_tax"`                           // 税费
	OrderShipping          int64      `gorm:"not null;default:0" json:"order_shipping"`                      // 运费
	OrderTotal             int64      `gorm:"not null;default:0" json:"order_total"`                         // 订单总额
	CommissionRate         Rate       `gorm:"type:decimal(10,4);not null;default:0" json:"commission_rate"`  // 佣金费率（百分比）
	CommissionAmount       int64      `gorm:"not null;default:0" json:"commission_amount"`                   // 佣金金额
	PlatformFeeAmount      int64      `gorm:"not null;default:0" json:"platform_fee_amount"`                 // 平台服务费
	NetAmount              int64      `gorm:"not null;default:0" json:"net_amount"`                          // 商家净额
	CommissionClamped      bool       `gorm:"not null;default:false" json:"commission_clamped"`              // 佣金是否被截断
	Status                 string     `gorm:"type:varchar(16);not null;index" json:"status"`                 // 流水状态
	PayoutStatus           string     `gorm:"type:varchar(16);not null;index" json:"payout_status"`          // 结算状态
	TransactionType        string     `gorm:"type:varchar(16);not null;index" json:"transaction_type"`       // 流水类型
	ReferenceTransactionID *uint      `gorm:"index" json:"reference_transaction_id,omitempty"`               // 关联原始销售流水
	Reference              string     `gorm:"type:varchar(128)" json:"reference"`                            // 调用方引用（退款单号等）
	IdempotencyKey         string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"idempotency_key"` // 幂等键
	Reason                 string     `gorm:"type:varchar(255)" json:"reason"`                               // 备注原因
	OccurredAt             time.Time  `gorm:"not null;index" json:"occurred_at"`                             // 业务发生时间
	ApproveAfter           *time.Time `gorm:"index" json:"approve_after,omitempty"`                          // 待确认到期时间
	ApprovedAt             *time.Time `json:"approved_at,omitempty"`                                         // 审核通过时间
	CreatedAt              time.Time  `gorm:"index" json:"created_at"`                                       // 创建时间
	UpdatedAt              time.Time  `json:"updated_at"`                                                    // 更新时间
}

// TableName 指定表名
func (CommissionTransaction) TableName() string {
	return "commission_transactions"
}

// RuleRef 返回命中规则引用，未命中时 ok 为 false
func (t CommissionTransaction) RuleRef() (id uint, ok bool) {
	if t.CommissionRuleID == nil {
		return 0, false
	}
	return *t.CommissionRuleID, true
}

// LineItemKey 返回订单行键，订单级流水为空字符串
func (t CommissionTransaction) LineItemKey() string {
	if t.LineItemID == nil {
		return ""
	}
	return *t.LineItemID
}
