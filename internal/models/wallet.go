package models

import "time"

// Wallet 客户钱包（按客户+币种）
type Wallet struct {
	ID         uint      `gorm:"primarykey" json:"id"`                                                                   // 主键
	CustomerID string    `gorm:"type:varchar(64);not null;index:idx_wallet_customer_currency,unique" json:"customer_id"` // 客户ID
	Currency   string    `gorm:"type:varchar(8);not null;index:idx_wallet_customer_currency,unique" json:"currency"`     // 币种
	Balance    int64     `gorm:"not null;default:0" json:"balance"`                                                      // 余额（最小货币单位）
	Version    int64     `gorm:"not null;default:1" json:"version"`                                                      // 乐观锁版本
	Status     string    `gorm:"type:varchar(16);not null;index" json:"status"`                                          // 状态
	CreatedAt  time.Time `json:"created_at"`                                                                             // 创建时间
	UpdatedAt  time.Time `json:"updated_at"`                                                                             // 更新时间
}

// TableName 指定表名
func (Wallet) TableName() string {
	return "wallets"
}

// WalletTransaction 钱包流水（不可变）
type WalletTransaction struct {
	ID             uint      `gorm:"primarykey" json:"id"`                                 // 主键
	WalletID       uint      `gorm:"not null;index" json:"wallet_id"`                      // 钱包ID
	Type           string    `gorm:"type:varchar(16);not null;index" json:"type"`          // 流水类型
	Amount         int64     `gorm:"not null" json:"amount"`                               // 带符号金额
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`                        // 变动后余额快照
	ReferenceType  string    `gorm:"type:varchar(32);index" json:"reference_type"`         // 关联类型
	ReferenceID    string    `gorm:"type:varchar(128);index" json:"reference_id"`          // 关联ID
	IdempotencyKey *string   `gorm:"type:varchar(255);uniqueIndex" json:"idempotency_key"` // 幂等键
	HoldID         *uint     `gorm:"index" json:"hold_id,omitempty"`                       // 关联冻结单
	Reason         string    `gorm:"type:varchar(255)" json:"reason"`                      // 原因
	CreatedAt      time.Time `gorm:"index" json:"created_at"`                              // 创建时间
}

// TableName 指定表名
func (WalletTransaction) TableName() string {
	return "wallet_transactions"
}

// WalletHold 钱包冻结单
type WalletHold struct {
	ID                  uint       `gorm:"primarykey" json:"id"`                          // 主键
	WalletID            uint       `gorm:"not null;index" json:"wallet_id"`               // 钱包ID
	Amount              int64      `gorm:"not null" json:"amount"`                        // 冻结金额
	Status              string     `gorm:"type:varchar(16);not null;index" json:"status"` // 状态
	Reference           string     `gorm:"type:varchar(128)" json:"reference"`            // 业务引用
	HoldTransactionID   uint       `gorm:"not null" json:"hold_transaction_id"`           // 冻结流水ID
	SettleTransactionID *uint      `json:"settle_transaction_id,omitempty"`               // 解冻/扣款流水ID
	ExpiresAt           *time.Time `json:"expires_at,omitempty"`                          // 预期释放时间
	SettledAt           *time.Time `json:"settled_at,omitempty"`                          // 结束时间
	CreatedAt           time.Time  `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt           time.Time  `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (WalletHold) TableName() string {
	return "wallet_holds"
}
