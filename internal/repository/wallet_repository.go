package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/vendorledger/internal/models"

	"gorm.io/gorm"
)

// WalletRepository 钱包数据访问接口
type WalletRepository interface {
	GetByID(id uint) (*models.Wallet, error)
	GetByCustomer(customerID, currency string) (*models.Wallet, error)
	Create(wallet *models.Wallet) error
	UpdateBalanceCAS(id uint, expectedVersion int64, balance int64, now time.Time) (bool, error)
	UpdateStatusCAS(id uint, expectedVersion int64, status string, now time.Time) (bool, error)
	CreateTransaction(txn *models.WalletTransaction) error
	GetTransaction(id uint) (*models.WalletTransaction, error)
	GetTransactionByIdempotencyKey(key string) (*models.WalletTransaction, error)
	ListTransactions(filter WalletTransactionListFilter) ([]models.WalletTransaction, int64, error)
	ListAllTransactions(walletID uint) ([]models.WalletTransaction, error)
	SumTransactions(walletID uint) (int64, error)
	CreateHold(hold *models.WalletHold) error
	GetHold(id uint) (*models.WalletHold, error)
	SetHoldTransaction(id uint, txnID uint) error
	SettleHold(id uint, toStatus string, settleTxnID uint, now time.Time) (bool, error)
	CountActiveHolds(walletID uint) (int64, error)
	ListStaleHolds(before time.Time, limit int) ([]models.WalletHold, error)
	Transaction(fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) *GormWalletRepository
}

// GormWalletRepository GORM 钱包仓储实现
type GormWalletRepository struct {
	db *gorm.DB
}

// NewWalletRepository 创建钱包仓储
func NewWalletRepository(db *gorm.DB) *GormWalletRepository {
	return &GormWalletRepository{db: db}
}

// WithTx 绑定事务
func (r *GormWalletRepository) WithTx(tx *gorm.DB) *GormWalletRepository {
	if tx == nil {
		return r
	}
	return &GormWalletRepository{db: tx}
}

// Transaction 执行事务
func (r *GormWalletRepository) Transaction(fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.Transaction(fn)
}

// GetByID 按ID获取钱包
func (r *GormWalletRepository) GetByID(id uint) (*models.Wallet, error) {
	if id == 0 {
		return nil, nil
	}
	var wallet models.Wallet
	if err := r.db.First(&wallet, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByCustomer 按客户与币种获取钱包
func (r *GormWalletRepository) GetByCustomer(customerID, currency string) (*models.Wallet, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, nil
	}
	var wallet models.Wallet
	if err := r.db.Where("customer_id = ? AND currency = ?", customerID, currency).First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &wallet, nil
}

// Create 创建钱包
func (r *GormWalletRepository) Create(wallet *models.Wallet) error {
	return r.db.Create(wallet).Error
}

// UpdateBalanceCAS 按版本号更新余额
func (r *GormWalletRepository) UpdateBalanceCAS(id uint, expectedVersion int64, balance int64, now time.Time) (bool, error) {
	result := r.db.Model(&models.Wallet{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"balance":    balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdateStatusCAS 按版本号更新状态
func (r *GormWalletRepository) UpdateStatusCAS(id uint, expectedVersion int64, status string, now time.Time) (bool, error) {
	result := r.db.Model(&models.Wallet{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"status":     status,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CreateTransaction 追加钱包流水
func (r *GormWalletRepository) CreateTransaction(txn *models.WalletTransaction) error {
	return r.db.Create(txn).Error
}

// GetTransaction 按ID获取流水
func (r *GormWalletRepository) GetTransaction(id uint) (*models.WalletTransaction, error) {
	if id == 0 {
		return nil, nil
	}
	var txn models.WalletTransaction
	if err := r.db.First(&txn, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// GetTransactionByIdempotencyKey 按幂等键获取流水
func (r *GormWalletRepository) GetTransactionByIdempotencyKey(key string) (*models.WalletTransaction, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var txn models.WalletTransaction
	if err := r.db.Where("idempotency_key = ?", key).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// ListTransactions 分页查询钱包流水
func (r *GormWalletRepository) ListTransactions(filter WalletTransactionListFilter) ([]models.WalletTransaction, int64, error) {
	query := r.db.Model(&models.WalletTransaction{})
	if filter.WalletID != 0 {
		query = query.Where("wallet_id = ?", filter.WalletID)
	}
	if txnType := strings.TrimSpace(filter.Type); txnType != "" {
		query = query.Where("type = ?", txnType)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = paginate(query, filter.Page, filter.PageSize)

	var txns []models.WalletTransaction
	if err := query.Order("id desc").Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// ListAllTransactions 按追加顺序获取钱包全部流水
func (r *GormWalletRepository) ListAllTransactions(walletID uint) ([]models.WalletTransaction, error) {
	var txns []models.WalletTransaction
	if err := r.db.Where("wallet_id = ?", walletID).Order("id asc").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

// SumTransactions 汇总钱包流水金额
func (r *GormWalletRepository) SumTransactions(walletID uint) (int64, error) {
	var total int64
	err := r.db.Model(&models.WalletTransaction{}).
		Select("COALESCE(SUM(amount),0)").
		Where("wallet_id = ?", walletID).
		Scan(&total).Error
	return total, err
}

// CreateHold 创建冻结单
func (r *GormWalletRepository) CreateHold(hold *models.WalletHold) error {
	return r.db.Create(hold).Error
}

// GetHold 按ID获取冻结单
func (r *GormWalletRepository) GetHold(id uint) (*models.WalletHold, error) {
	if id == 0 {
		return nil, nil
	}
	var hold models.WalletHold
	if err := r.db.First(&hold, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &hold, nil
}

// SetHoldTransaction 回填冻结单对应的冻结流水
func (r *GormWalletRepository) SetHoldTransaction(id uint, txnID uint) error {
	return r.db.Model(&models.WalletHold{}).
		Where("id = ?", id).
		Update("hold_transaction_id", txnID).Error
}

// SettleHold 条件结束冻结单（仅 active 可结束）
func (r *GormWalletRepository) SettleHold(id uint, toStatus string, settleTxnID uint, now time.Time) (bool, error) {
	result := r.db.Model(&models.WalletHold{}).
		Where("id = ? AND status = ?", id, "active").
		Updates(map[string]interface{}{
			"status":                toStatus,
			"settle_transaction_id": settleTxnID,
			"settled_at":            now,
			"updated_at":            now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// CountActiveHolds 统计钱包未结束的冻结单
func (r *GormWalletRepository) CountActiveHolds(walletID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.WalletHold{}).
		Where("wallet_id = ? AND status = ?", walletID, "active").
		Count(&count).Error
	return count, err
}

// ListStaleHolds 获取创建早于指定时间仍未结束的冻结单
func (r *GormWalletRepository) ListStaleHolds(before time.Time, limit int) ([]models.WalletHold, error) {
	if limit <= 0 {
		limit = 100
	}
	var holds []models.WalletHold
	if err := r.db.Where("status = ? AND created_at <= ?", "active", before).
		Order("created_at asc").
		Limit(limit).
		Find(&holds).Error; err != nil {
		return nil, err
	}
	return holds, nil
}
