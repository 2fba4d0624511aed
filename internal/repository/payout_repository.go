package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/vendorledger/internal/models"

	"gorm.io/gorm"
)

// PayoutRepository 打款单数据访问接口
type PayoutRepository interface {
	GetByID(id uint) (*models.Payout, error)
	GetByTransferID(transferID string) (*models.Payout, error)
	FindPendingForPeriod(tenantID, vendorID, currency string, start, end time.Time) (*models.Payout, error)
	Create(payout *models.Payout) error
	UpdateWithVersion(id uint, expectedVersion int64, updates map[string]interface{}) (bool, error)
	ApplyAggregateDelta(id uint, expectedVersion int64, delta PayoutAggregateDelta) (bool, error)
	CreateLinks(links []models.PayoutTransactionLink) error
	ListActiveLinks(payoutID uint) ([]models.PayoutTransactionLink, error)
	GetActiveLinkByTransactionID(txnID uint) (*models.PayoutTransactionLink, error)
	ReleaseLinks(payoutID uint, now time.Time) (int64, error)
	ListDueRetries(now time.Time, limit int) ([]models.Payout, error)
	List(filter PayoutListFilter) ([]models.Payout, int64, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormPayoutRepository
}

// GormPayoutRepository GORM 打款单仓储实现
type GormPayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建打款单仓储
func NewPayoutRepository(db *gorm.DB) *GormPayoutRepository {
	return &GormPayoutRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPayoutRepository) WithTx(tx *gorm.DB) *GormPayoutRepository {
	if tx == nil {
		return r
	}
	return &GormPayoutRepository{db: tx}
}

// Transaction 执行事务
func (r *GormPayoutRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取打款单
func (r *GormPayoutRepository) GetByID(id uint) (*models.Payout, error) {
	if id == 0 {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.First(&payout, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// GetByTransferID 按渠道转账ID获取打款单
func (r *GormPayoutRepository) GetByTransferID(transferID string) (*models.Payout, error) {
	transferID = strings.TrimSpace(transferID)
	if transferID == "" {
		return nil, nil
	}
	var payout models.Payout
	if err := r.db.Where("stripe_transfer_id = ?", transferID).First(&payout).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// FindPendingForPeriod 查找同商家同周期的待处理打款单
func (r *GormPayoutRepository) FindPendingForPeriod(tenantID, vendorID, currency string, start, end time.Time) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.Where("tenant_id = ? AND vendor_id = ? AND currency_code = ? AND period_start = ? AND period_end = ? AND status = ?",
		tenantID, vendorID, currency, start, end, "pending").
		Order("id asc").
		First(&payout).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payout, nil
}

// Create 创建打款单
func (r *GormPayoutRepository) Create(payout *models.Payout) error {
	return r.db.Create(payout).Error
}

// UpdateWithVersion 按版本号条件更新，版本不匹配时返回 false
func (r *GormPayoutRepository) UpdateWithVersion(id uint, expectedVersion int64, updates map[string]interface{}) (bool, error) {
	if id == 0 {
		return false, nil
	}
	payload := make(map[string]interface{}, len(updates)+2)
	for k, v := range updates {
		payload[k] = v
	}
	payload["version"] = gorm.Expr("version + 1")
	if _, ok := payload["updated_at"]; !ok {
		payload["updated_at"] = time.Now()
	}
	result := r.db.Model(&models.Payout{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(payload)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ApplyAggregateDelta 按版本号累加聚合字段
func (r *GormPayoutRepository) ApplyAggregateDelta(id uint, expectedVersion int64, delta PayoutAggregateDelta) (bool, error) {
	updatedAt := delta.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	updates := map[string]interface{}{
		"gross_amount":        gorm.Expr("gross_amount + ?", delta.GrossAmount),
		"commission_amount":   gorm.Expr("commission_amount + ?", delta.CommissionAmount),
		"platform_fee_amount": gorm.Expr("platform_fee_amount + ?", delta.PlatformFeeAmount),
		"adjustment_amount":   gorm.Expr("adjustment_amount + ?", delta.AdjustmentAmount),
		"net_amount":          gorm.Expr("net_amount + ?", delta.NetAmount),
		"transaction_count":   gorm.Expr("transaction_count + ?", delta.TransactionCount),
		"updated_at":          updatedAt,
	}
	if delta.RequiresApproval {
		updates["requires_approval"] = true
		updates["approved_by"] = nil
		updates["approved_at"] = nil
	}
	return r.UpdateWithVersion(id, expectedVersion, updates)
}

// CreateLinks 批量写入关联
func (r *GormPayoutRepository) CreateLinks(links []models.PayoutTransactionLink) error {
	if len(links) == 0 {
		return nil
	}
	return r.db.Create(&links).Error
}

// ListActiveLinks 获取打款单的有效关联
func (r *GormPayoutRepository) ListActiveLinks(payoutID uint) ([]models.PayoutTransactionLink, error) {
	var links []models.PayoutTransactionLink
	if err := r.db.Where("payout_id = ? AND released_at IS NULL", payoutID).
		Order("id asc").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// GetActiveLinkByTransactionID 获取流水当前有效关联
func (r *GormPayoutRepository) GetActiveLinkByTransactionID(txnID uint) (*models.PayoutTransactionLink, error) {
	if txnID == 0 {
		return nil, nil
	}
	var link models.PayoutTransactionLink
	if err := r.db.Where("active_transaction_id = ?", txnID).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// ReleaseLinks 释放打款单全部有效关联
func (r *GormPayoutRepository) ReleaseLinks(payoutID uint, now time.Time) (int64, error) {
	result := r.db.Model(&models.PayoutTransactionLink{}).
		Where("payout_id = ? AND released_at IS NULL", payoutID).
		Updates(map[string]interface{}{
			"active_transaction_id": nil,
			"released_at":           now,
		})
	return result.RowsAffected, result.Error
}

// ListDueRetries 获取到期待重试的处理中打款单
func (r *GormPayoutRepository) ListDueRetries(now time.Time, limit int) ([]models.Payout, error) {
	if limit <= 0 {
		limit = 100
	}
	var payouts []models.Payout
	if err := r.db.Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", "processing", now).
		Order("next_retry_at asc").
		Limit(limit).
		Find(&payouts).Error; err != nil {
		return nil, err
	}
	return payouts, nil
}

// List 分页查询打款单
func (r *GormPayoutRepository) List(filter PayoutListFilter) ([]models.Payout, int64, error) {
	query := r.db.Model(&models.Payout{})
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if vendorID := strings.TrimSpace(filter.VendorID); vendorID != "" {
		query = query.Where("vendor_id = ?", vendorID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = paginate(query, filter.Page, filter.PageSize)

	var payouts []models.Payout
	if err := query.Order("id desc").Find(&payouts).Error; err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}
