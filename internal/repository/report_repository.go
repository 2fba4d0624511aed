package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/models"

	"gorm.io/gorm"
)

// ReportRepository 账本聚合查询接口
// 说明：仅聚合统计数据，不承载业务规则。
type ReportRepository interface {
	ListCurrencies(scope ReportScope) ([]string, error)
	GetLedgerOverview(scope ReportScope) (LedgerOverviewRow, error)
	GetCommissionTrends(scope ReportScope) ([]CommissionTrendRow, error)
	GetPayoutStatusBreakdown(scope ReportScope) ([]PayoutStatusRow, error)
	GetTopVendors(scope ReportScope, limit int) ([]VendorRankingRow, error)
}

// ReportScope 报表查询范围，Currency 为空时不按币种过滤
type ReportScope struct {
	TenantID string
	Currency string
	StartAt  time.Time
	EndAt    time.Time
}

// LedgerOverviewRow 账本总览原始统计结果（金额为最小货币单位）
type LedgerOverviewRow struct {
	SalesCount        int64
	RefundCount       int64
	AdjustmentCount   int64
	ReversalCount     int64
	GrossAmount       int64
	CommissionAmount  int64
	PlatformFeeAmount int64
	NetAmount         int64
	ClampedCount      int64
	DisputedCount     int64
	UnpaidNetAmount   int64
}

// CommissionTrendRow 按天佣金趋势
type CommissionTrendRow struct {
	Day              string
	TransactionCount int64
	CommissionAmount int64
	NetAmount        int64
}

// PayoutStatusRow 打款单状态分布
type PayoutStatusRow struct {
	Status    string
	Count     int64
	NetAmount int64
}

// VendorRankingRow 商家净额排行
type VendorRankingRow struct {
	VendorID         string
	TransactionCount int64
	CommissionAmount int64
	NetAmount        int64
}

// GormReportRepository GORM 实现
type GormReportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建报表仓库
func NewReportRepository(db *gorm.DB) *GormReportRepository {
	return &GormReportRepository{db: db}
}

func (r *GormReportRepository) commissionBase(scope ReportScope) *gorm.DB {
	query := r.db.Model(&models.CommissionTransaction{}).
		Where("tenant_id = ? AND occurred_at >= ? AND occurred_at < ?", strings.TrimSpace(scope.TenantID), scope.StartAt, scope.EndAt)
	if currency := strings.TrimSpace(scope.Currency); currency != "" {
		query = query.Where("currency_code = ?", currency)
	}
	return query
}

// ListCurrencies 窗口内出现过的币种（升序）
func (r *GormReportRepository) ListCurrencies(scope ReportScope) ([]string, error) {
	var currencies []string
	if err := r.commissionBase(scope).
		Where("currency_code <> ''").
		Distinct("currency_code").
		Order("currency_code asc").
		Pluck("currency_code", &currencies).Error; err != nil {
		return nil, err
	}
	return currencies, nil
}

// GetLedgerOverview 获取账本总览
func (r *GormReportRepository) GetLedgerOverview(scope ReportScope) (LedgerOverviewRow, error) {
	result := LedgerOverviewRow{}

	type typeCountRow struct {
		TransactionType string
		Total           int64
	}
	var typeCounts []typeCountRow
	if err := r.commissionBase(scope).
		Select("transaction_type, COUNT(*) as total").
		Group("transaction_type").
		Scan(&typeCounts).Error; err != nil {
		return result, err
	}
	for _, row := range typeCounts {
		switch row.TransactionType {
		case constants.CommissionTxnTypeSale:
			result.SalesCount = row.Total
		case constants.CommissionTxnTypeRefund:
			result.RefundCount = row.Total
		case constants.CommissionTxnTypeAdjustment:
			result.AdjustmentCount = row.Total
		case constants.CommissionTxnTypeReversal:
			result.ReversalCount = row.Total
		}
	}

	type sumRow struct {
		Gross      int64
		Commission int64
		Fee        int64
		Net        int64
	}
	var sums sumRow
	if err := r.commissionBase(scope).
		Select("COALESCE(SUM(order_total), 0) as gross, COALESCE(SUM(commission_amount), 0) as commission, " +
			"COALESCE(SUM(platform_fee_amount), 0) as fee, COALESCE(SUM(net_amount), 0) as net").
		Scan(&sums).Error; err != nil {
		return result, err
	}
	result.GrossAmount = sums.Gross
	result.CommissionAmount = sums.Commission
	result.PlatformFeeAmount = sums.Fee
	result.NetAmount = sums.Net

	if err := r.commissionBase(scope).
		Where("commission_clamped = ?", true).
		Count(&result.ClampedCount).Error; err != nil {
		return result, err
	}
	if err := r.commissionBase(scope).
		Where("status = ?", constants.CommissionStatusDisputed).
		Count(&result.DisputedCount).Error; err != nil {
		return result, err
	}
	if err := r.commissionBase(scope).
		Where("payout_status = ?", constants.CommissionPayoutStatusUnpaid).
		Select("COALESCE(SUM(net_amount), 0)").
		Scan(&result.UnpaidNetAmount).Error; err != nil {
		return result, err
	}
	return result, nil
}

// GetCommissionTrends 获取按天佣金趋势
func (r *GormReportRepository) GetCommissionTrends(scope ReportScope) ([]CommissionTrendRow, error) {
	type trendRow struct {
		Day        string
		Total      int64
		Commission int64
		Net        int64
	}
	dayExpr := dayBucketExpr(r.db, "occurred_at")
	var rows []trendRow
	if err := r.commissionBase(scope).
		Select(fmt.Sprintf("%s as day, COUNT(*) as total, COALESCE(SUM(commission_amount), 0) as commission, COALESCE(SUM(net_amount), 0) as net", dayExpr)).
		Group(dayExpr).
		Order("day asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]CommissionTrendRow, 0, len(rows))
	for _, row := range rows {
		result = append(result, CommissionTrendRow{
			Day:              row.Day,
			TransactionCount: row.Total,
			CommissionAmount: row.Commission,
			NetAmount:        row.Net,
		})
	}
	return result, nil
}

// GetPayoutStatusBreakdown 获取打款单状态分布（按创建时间）
func (r *GormReportRepository) GetPayoutStatusBreakdown(scope ReportScope) ([]PayoutStatusRow, error) {
	query := r.db.Model(&models.Payout{}).
		Select("status, COUNT(*) as count, COALESCE(SUM(net_amount), 0) as net_amount").
		Where("tenant_id = ? AND created_at >= ? AND created_at < ?", strings.TrimSpace(scope.TenantID), scope.StartAt, scope.EndAt)
	if currency := strings.TrimSpace(scope.Currency); currency != "" {
		query = query.Where("currency_code = ?", currency)
	}
	var rows []PayoutStatusRow
	if err := query.
		Group("status").
		Order("status asc").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// GetTopVendors 获取商家净额排行
func (r *GormReportRepository) GetTopVendors(scope ReportScope, limit int) ([]VendorRankingRow, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []VendorRankingRow
	if err := r.commissionBase(scope).
		Select("vendor_id, COUNT(*) as transaction_count, COALESCE(SUM(commission_amount), 0) as commission_amount, COALESCE(SUM(net_amount), 0) as net_amount").
		Group("vendor_id").
		Order("net_amount desc").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
