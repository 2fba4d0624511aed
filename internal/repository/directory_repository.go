package repository

import (
	"errors"
	"strings"

	"github.com/vendorledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// VendorProfileRepository 商家打款资料数据访问接口
type VendorProfileRepository interface {
	Get(tenantID, vendorID string) (*models.VendorPayoutProfile, error)
	Upsert(profile *models.VendorPayoutProfile) error
}

// GormVendorProfileRepository GORM 商家打款资料仓储实现
type GormVendorProfileRepository struct {
	db *gorm.DB
}

// NewVendorProfileRepository 创建商家打款资料仓储
func NewVendorProfileRepository(db *gorm.DB) *GormVendorProfileRepository {
	return &GormVendorProfileRepository{db: db}
}

// Get 获取商家打款资料
func (r *GormVendorProfileRepository) Get(tenantID, vendorID string) (*models.VendorPayoutProfile, error) {
	var profile models.VendorPayoutProfile
	err := r.db.Where("tenant_id = ? AND vendor_id = ?", strings.TrimSpace(tenantID), strings.TrimSpace(vendorID)).
		First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// Upsert 写入或覆盖商家打款资料
func (r *GormVendorProfileRepository) Upsert(profile *models.VendorPayoutProfile) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "vendor_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payout_method", "payout_schedule", "payout_minimum", "rail_account_id", "wallet_customer_id", "updated_at"}),
	}).Create(profile).Error
}

// TenantSettingRepository 租户结算设置数据访问接口
type TenantSettingRepository interface {
	Get(tenantID string) (*models.TenantSetting, error)
	Upsert(setting *models.TenantSetting) error
}

// GormTenantSettingRepository GORM 租户结算设置仓储实现
type GormTenantSettingRepository struct {
	db *gorm.DB
}

// NewTenantSettingRepository 创建租户结算设置仓储
func NewTenantSettingRepository(db *gorm.DB) *GormTenantSettingRepository {
	return &GormTenantSettingRepository{db: db}
}

// Get 获取租户结算设置
func (r *GormTenantSettingRepository) Get(tenantID string) (*models.TenantSetting, error) {
	var setting models.TenantSetting
	if err := r.db.Where("tenant_id = ?", strings.TrimSpace(tenantID)).First(&setting).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &setting, nil
}

// Upsert 写入或覆盖租户结算设置
func (r *GormTenantSettingRepository) Upsert(setting *models.TenantSetting) error {
	return r.db.Save(setting).Error
}

// RailEventRepository 渠道回调事件数据访问接口
type RailEventRepository interface {
	GetByEventID(eventID string) (*models.RailEvent, error)
	Create(event *models.RailEvent) error
	WithTx(tx *gorm.DB) *GormRailEventRepository
}

// GormRailEventRepository GORM 渠道回调事件仓储实现
type GormRailEventRepository struct {
	db *gorm.DB
}

// NewRailEventRepository 创建渠道回调事件仓储
func NewRailEventRepository(db *gorm.DB) *GormRailEventRepository {
	return &GormRailEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRailEventRepository) WithTx(tx *gorm.DB) *GormRailEventRepository {
	if tx == nil {
		return r
	}
	return &GormRailEventRepository{db: tx}
}

// GetByEventID 按事件ID获取
func (r *GormRailEventRepository) GetByEventID(eventID string) (*models.RailEvent, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, nil
	}
	var event models.RailEvent
	if err := r.db.Where("event_id = ?", eventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Create 记录事件
func (r *GormRailEventRepository) Create(event *models.RailEvent) error {
	return r.db.Create(event).Error
}
