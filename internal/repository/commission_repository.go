package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/vendorledger/internal/models"

	"gorm.io/gorm"
)

// CommissionRepository 佣金流水数据访问接口
type CommissionRepository interface {
	GetByID(id uint) (*models.CommissionTransaction, error)
	GetByIDs(ids []uint) ([]models.CommissionTransaction, error)
	GetByIdempotencyKey(key string) (*models.CommissionTransaction, error)
	Create(txn *models.CommissionTransaction) error
	SumOffsets(originalID uint) (OffsetTotals, error)
	ListEligibleForPayout(tenantID string, asOf time.Time) ([]models.CommissionTransaction, error)
	MarkPendingPayout(ids []uint, now time.Time) (int64, error)
	UpdatePayoutStatus(ids []uint, fromStatus, toStatus string, now time.Time) (int64, error)
	MarkPaid(ids []uint, now time.Time) (int64, error)
	TransitionStatus(id uint, fromStatus, toStatus string, now time.Time) (int64, error)
	ApproveDue(now time.Time) (int64, error)
	List(filter CommissionTransactionListFilter) ([]models.CommissionTransaction, int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormCommissionRepository
}

// GormCommissionRepository GORM 佣金流水仓储实现
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金流水仓储
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) *GormCommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Transaction 执行事务
func (r *GormCommissionRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取流水
func (r *GormCommissionRepository) GetByID(id uint) (*models.CommissionTransaction, error) {
	if id == 0 {
		return nil, nil
	}
	var txn models.CommissionTransaction
	if err := r.db.First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// GetByIDs 批量获取流水
func (r *GormCommissionRepository) GetByIDs(ids []uint) ([]models.CommissionTransaction, error) {
	if len(ids) == 0 {
		return []models.CommissionTransaction{}, nil
	}
	var txns []models.CommissionTransaction
	if err := r.db.Where("id IN ?", ids).Order("id asc").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// GetByIdempotencyKey 按幂等键获取流水
func (r *GormCommissionRepository) GetByIdempotencyKey(key string) (*models.CommissionTransaction, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var txn models.CommissionTransaction
	if err := r.db.Where("idempotency_key = ?", key).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// Create 追加流水
func (r *GormCommissionRepository) Create(txn *models.CommissionTransaction) error {
	return r.db.Create(txn).Error
}

// SumOffsets 汇总指向原始流水的退款/冲正行
func (r *GormCommissionRepository) SumOffsets(originalID uint) (OffsetTotals, error) {
	var totals OffsetTotals
	if originalID == 0 {
		return totals, nil
	}
	row := struct {
		OrderTotal        int64
		CommissionAmount  int64
		PlatformFeeAmount int64
		NetAmount         int64
	}{}
	err := r.db.Model(&models.CommissionTransaction{}).
		Select("COALESCE(SUM(order_total),0) AS order_total, COALESCE(SUM(commission_amount),0) AS commission_amount, COALESCE(SUM(platform_fee_amount),0) AS platform_fee_amount, COALESCE(SUM(net_amount),0) AS net_amount").
		Where("reference_transaction_id = ? AND transaction_type IN ?", originalID, []string{"refund", "reversal"}).
		Scan(&row).Error
	if err != nil {
		return totals, err
	}
	totals.OrderTotal = row.OrderTotal
	totals.CommissionAmount = row.CommissionAmount
	totals.PlatformFeeAmount = row.PlatformFeeAmount
	totals.NetAmount = row.NetAmount
	return totals, nil
}

// ListEligibleForPayout 获取可进入打款批次的流水：已审核、未结算、无有效关联
func (r *GormCommissionRepository) ListEligibleForPayout(tenantID string, asOf time.Time) ([]models.CommissionTransaction, error) {
	var txns []models.CommissionTransaction
	query := r.db.Model(&models.CommissionTransaction{}).
		Where("tenant_id = ? AND status = ? AND payout_status = ?", strings.TrimSpace(tenantID), "approved", "unpaid").
		Where("NOT EXISTS (SELECT 1 FROM payout_transaction_links l WHERE l.active_transaction_id = commission_transactions.id)")
	if !asOf.IsZero() {
		query = query.Where("occurred_at <= ?", asOf)
	}
	if err := query.Order("vendor_id asc, currency_code asc, id asc").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// MarkPendingPayout 条件更新 unpaid -> pending_payout，返回受影响行数
func (r *GormCommissionRepository) MarkPendingPayout(ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("id IN ? AND payout_status = ? AND status = ?", ids, "unpaid", "approved").
		Updates(map[string]interface{}{
			"payout_status": "pending_payout",
			"updated_at":    now,
		})
	return result.RowsAffected, result.Error
}

// UpdatePayoutStatus 条件更新结算状态
func (r *GormCommissionRepository) UpdatePayoutStatus(ids []uint, fromStatus, toStatus string, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("id IN ? AND payout_status = ?", ids, fromStatus).
		Updates(map[string]interface{}{
			"payout_status": toStatus,
			"updated_at":    now,
		})
	return result.RowsAffected, result.Error
}

// MarkPaid 打款完成后标记流水已结算
func (r *GormCommissionRepository) MarkPaid(ids []uint, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("id IN ? AND payout_status = ?", ids, "pending_payout").
		Updates(map[string]interface{}{
			"payout_status": "paid",
			"status":        "paid",
			"updated_at":    now,
		})
	return result.RowsAffected, result.Error
}

// TransitionStatus 条件更新流水状态
func (r *GormCommissionRepository) TransitionStatus(id uint, fromStatus, toStatus string, now time.Time) (int64, error) {
	updates := map[string]interface{}{
		"status":     toStatus,
		"updated_at": now,
	}
	if toStatus == "approved" {
		updates["approved_at"] = now
	}
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	return result.RowsAffected, result.Error
}

// ApproveDue 将到期的待确认流水转为已审核
func (r *GormCommissionRepository) ApproveDue(now time.Time) (int64, error) {
	result := r.db.Model(&models.CommissionTransaction{}).
		Where("status = ? AND approve_after IS NOT NULL AND approve_after <= ?", "pending", now).
		Updates(map[string]interface{}{
			"status":      "approved",
			"approved_at": now,
			"updated_at":  now,
		})
	return result.RowsAffected, result.Error
}

// List 分页查询流水
func (r *GormCommissionRepository) List(filter CommissionTransactionListFilter) ([]models.CommissionTransaction, int64, error) {
	query := r.db.Model(&models.CommissionTransaction{})
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if vendorID := strings.TrimSpace(filter.VendorID); vendorID != "" {
		query = query.Where("vendor_id = ?", vendorID)
	}
	if orderID := strings.TrimSpace(filter.OrderID); orderID != "" {
		query = query.Where("order_id = ?", orderID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if payoutStatus := strings.TrimSpace(filter.PayoutStatus); payoutStatus != "" {
		query = query.Where("payout_status = ?", payoutStatus)
	}
	if txnType := strings.TrimSpace(filter.TransactionType); txnType != "" {
		query = query.Where("transaction_type = ?", txnType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = paginate(query, filter.Page, filter.PageSize)

	var txns []models.CommissionTransaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}
