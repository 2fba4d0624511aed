package models

import "time"

// VendorPayoutProfile 商家打款资料（由商家目录同步）
type VendorPayoutProfile struct {
	ID               uint      `gorm:"primarykey" json:"id"`                                                              // 主键
	TenantID         string    `gorm:"type:varchar(64);not null;index:idx_vendor_payout_profile,unique" json:"tenant_id"` // 租户ID
	VendorID         string    `gorm:"type:varchar(64);not null;index:idx_vendor_payout_profile,unique" json:"vendor_id"` // 商家ID
	PayoutMethod     string    `gorm:"type:varchar(32);not null" json:"payout_method"`                                    // 打款方式
	PayoutSchedule   string    `gorm:"type:varchar(16);not null" json:"payout_schedule"`                                  // 打款周期
	PayoutMinimum    int64     `gorm:"not null;default:0" json:"payout_minimum"`                                          // 起付金额
	RailAccountID    string    `gorm:"type:varchar(128)" json:"rail_account_id"`                                          // 渠道收款账户
	WalletCustomerID string    `gorm:"type:varchar(64)" json:"wallet_customer_id"`                                        // 钱包打款客户ID
	CreatedAt        time.Time `json:"created_at"`                                                                        // 创建时间
	UpdatedAt        time.Time `json:"updated_at"`                                                                        // 更新时间
}

// TableName 指定表名
func (VendorPayoutProfile) TableName() string {
	return "vendor_payout_profiles"
}

// TenantSetting 租户结算设置
type TenantSetting struct {
	TenantID                string    `gorm:"primarykey;type:varchar(64)" json:"tenant_id"`                   // 租户ID
	PlatformFeeRate         Rate      `gorm:"type:decimal(10,4);not null;default:0" json:"platform_fee_rate"` // 平台服务费率（百分比）
	PayoutApprovalThreshold int64     `gorm:"not null;default:0" json:"payout_approval_threshold"`            // 超过该净额需审批（0 为不审批）
	ApprovalHoldDays        int       `gorm:"not null;default:0" json:"approval_hold_days"`                   // 佣金确认等待天数
	UpdatedAt               time.Time `json:"updated_at"`                                                     // 更新时间
}

// TableName 指定表名
func (TenantSetting) TableName() string {
	return "tenant_settings"
}

// RailEvent 渠道回调事件（去重与审计）
type RailEvent struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                   // 主键
	Provider   string    `gorm:"type:varchar(32);not null" json:"provider"`              // 渠道
	EventID    string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"event_id"` // 事件ID
	EventType  string    `gorm:"type:varchar(64);not null" json:"event_type"`            // 事件类型
	TransferID string    `gorm:"type:varchar(128);index" json:"transfer_id"`             // 转账ID
	Status     string    `gorm:"type:varchar(16)" json:"status"`                         // 映射后状态
	PayoutID   *uint     `gorm:"index" json:"payout_id,omitempty"`                       // 关联打款单
	CreatedAt  time.Time `json:"created_at"`                                             // 接收时间
}

// TableName 指定表名
func (RailEvent) TableName() string {
	return "rail_events"
}
