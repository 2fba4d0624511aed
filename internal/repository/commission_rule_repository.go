package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/vendorledger/internal/models"

	"gorm.io/gorm"
)

// CommissionRuleRepository 佣金规则数据访问接口
type CommissionRuleRepository interface {
	GetByID(id uint) (*models.CommissionRule, error)
	ListCandidates(tenantID string) ([]models.CommissionRule, error)
	List(filter CommissionRuleListFilter) ([]models.CommissionRule, int64, error)
	Create(rule *models.CommissionRule) error
	Update(rule *models.CommissionRule) error
	UpdateStatus(id uint, status string) (int64, error)
}

// GormCommissionRuleRepository GORM 佣金规则仓储实现
type GormCommissionRuleRepository struct {
	db *gorm.DB
}

// NewCommissionRuleRepository 创建佣金规则仓储
func NewCommissionRuleRepository(db *gorm.DB) *GormCommissionRuleRepository {
	return &GormCommissionRuleRepository{db: db}
}

// GetByID 按ID获取规则
func (r *GormCommissionRuleRepository) GetByID(id uint) (*models.CommissionRule, error) {
	if id == 0 {
		return nil, nil
	}
	var rule models.CommissionRule
	if err := r.db.First(&rule, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ListCandidates 获取租户下可能生效的规则（active + scheduled）
func (r *GormCommissionRuleRepository) ListCandidates(tenantID string) ([]models.CommissionRule, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return []models.CommissionRule{}, nil
	}
	var rules []models.CommissionRule
	if err := r.db.Where("tenant_id = ? AND status IN ?", tenantID, []string{"active", "scheduled"}).
		Order("id asc").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// List 分页查询规则
func (r *GormCommissionRuleRepository) List(filter CommissionRuleListFilter) ([]models.CommissionRule, int64, error) {
	query := r.db.Model(&models.CommissionRule{})
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		query = query.Where("tenant_id = ?", tenantID)
	}
	if vendorID := strings.TrimSpace(filter.VendorID); vendorID != "" {
		query = query.Where("vendor_id = ?", vendorID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if ruleType := strings.TrimSpace(filter.Type); ruleType != "" {
		query = query.Where("type = ?", ruleType)
	}
	if keyword := strings.TrimSpace(filter.Keyword); keyword != "" {
		condition, argCount := buildLikeCondition(r.db, []string{"name", "vendor_id", "product_id", "category_id"})
		query = query.Where(condition, repeatLikeArgs("%"+keyword+"%", argCount)...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = paginate(query, filter.Page, filter.PageSize)

	var rules []models.CommissionRule
	if err := query.Order("priority desc, id asc").Find(&rules).Error; err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

// Create 创建规则
func (r *GormCommissionRuleRepository) Create(rule *models.CommissionRule) error {
	return r.db.Create(rule).Error
}

// Update 更新规则
func (r *GormCommissionRuleRepository) Update(rule *models.CommissionRule) error {
	return r.db.Save(rule).Error
}

// UpdateStatus 更新规则状态（软删除即置为 inactive）
func (r *GormCommissionRuleRepository) UpdateStatus(id uint, status string) (int64, error) {
	result := r.db.Model(&models.CommissionRule{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}
