package repository

import (
	"time"

	"gorm.io/gorm"
)

// CommissionRuleListFilter 佣金规则列表过滤条件
type CommissionRuleListFilter struct {
	Page     int
	PageSize int
	TenantID string
	VendorID string
	Status   string
	Type     string
	Keyword  string
}

// CommissionTransactionListFilter 佣金流水列表过滤条件
type CommissionTransactionListFilter struct {
	Page            int
	PageSize        int
	TenantID        string
	VendorID        string
	OrderID         string
	Status          string
	PayoutStatus    string
	TransactionType string
}

// PayoutListFilter 打款单列表过滤条件
type PayoutListFilter struct {
	Page     int
	PageSize int
	TenantID string
	VendorID string
	Status   string
}

// WalletTransactionListFilter 钱包流水列表过滤条件
type WalletTransactionListFilter struct {
	Page     int
	PageSize int
	WalletID uint
	Type     string
}

// OffsetTotals 原始销售流水已冲减的合计（退款/冲正行，均为负数）
type OffsetTotals struct {
	OrderTotal        int64
	CommissionAmount  int64
	PlatformFeeAmount int64
	NetAmount         int64
}

// PayoutAggregateDelta 打款单聚合字段增量
type PayoutAggregateDelta struct {
	GrossAmount       int64
	CommissionAmount  int64
	PlatformFeeAmount int64
	AdjustmentAmount  int64
	NetAmount         int64
	TransactionCount  int
	RequiresApproval  bool // 同一次更新内标记需审批并清空已有审批
	UpdatedAt         time.Time
}

const maxListPageSize = 200

// paginate 追加分页；pageSize<=0 表示不分页，过大时截断到上限
func paginate(query *gorm.DB, page, pageSize int) *gorm.DB {
	if query == nil || pageSize <= 0 {
		return query
	}
	if pageSize > maxListPageSize {
		pageSize = maxListPageSize
	}
	if page < 1 {
		page = 1
	}
	return query.Limit(pageSize).Offset((page - 1) * pageSize)
}
