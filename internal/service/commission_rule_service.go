package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/vendorledger/internal/cache"
	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"
)

// CommissionRuleService 佣金规则维护服务
type CommissionRuleService struct {
	repo repository.CommissionRuleRepository
}

// NewCommissionRuleService 创建佣金规则服务
func NewCommissionRuleService(repo repository.CommissionRuleRepository) *CommissionRuleService {
	return &CommissionRuleService{repo: repo}
}

// Get 获取规则
func (s *CommissionRuleService) Get(id uint) (*models.CommissionRule, error) {
	rule, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if rule == nil {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}

// List 查询规则
func (s *CommissionRuleService) List(filter repository.CommissionRuleListFilter) ([]models.CommissionRule, int64, error) {
	return s.repo.List(filter)
}

// Create 校验并创建规则
func (s *CommissionRuleService) Create(ctx context.Context, rule *models.CommissionRule) (*models.CommissionRule, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: rule is nil", ErrRuleInvalid)
	}
	normalizeCommissionRule(rule)
	if err := ValidateCommissionRule(rule); err != nil {
		return nil, err
	}
	rule.ID = 0
	if err := s.repo.Create(rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx, rule.TenantID)
	return rule, nil
}

// Update 校验并更新规则，租户不可变更
func (s *CommissionRuleService) Update(ctx context.Context, rule *models.CommissionRule) (*models.CommissionRule, error) {
	if rule == nil || rule.ID == 0 {
		return nil, fmt.Errorf("%w: rule id is required", ErrRuleInvalid)
	}
	existing, err := s.repo.GetByID(rule.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrRuleNotFound
	}
	normalizeCommissionRule(rule)
	if rule.TenantID != existing.TenantID {
		return nil, fmt.Errorf("%w: tenant_id cannot change", ErrRuleInvalid)
	}
	if err := ValidateCommissionRule(rule); err != nil {
		return nil, err
	}
	rule.CreatedAt = existing.CreatedAt
	if err := s.repo.Update(rule); err != nil {
		return nil, err
	}
	s.invalidate(ctx, rule.TenantID)
	return rule, nil
}

// Deactivate 软删除规则（状态置为 inactive）
func (s *CommissionRuleService) Deactivate(ctx context.Context, id uint) error {
	rule, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if rule == nil {
		return ErrRuleNotFound
	}
	if rule.Status == constants.CommissionRuleStatusInactive {
		return nil
	}
	if _, err := s.repo.UpdateStatus(id, constants.CommissionRuleStatusInactive); err != nil {
		return err
	}
	s.invalidate(ctx, rule.TenantID)
	return nil
}

func (s *CommissionRuleService) invalidate(ctx context.Context, tenantID string) {
	if err := cache.Del(ctx, ruleSnapshotKey(tenantID)); err != nil {
		logger.Warnw("commission_rule_cache_invalidate_failed", "tenant_id", tenantID, "error", err)
	}
}

func normalizeCommissionRule(rule *models.CommissionRule) {
	rule.TenantID = strings.TrimSpace(rule.TenantID)
	rule.Name = strings.TrimSpace(rule.Name)
	rule.Type = strings.ToLower(strings.TrimSpace(rule.Type))
	rule.Status = strings.ToLower(strings.TrimSpace(rule.Status))
	if rule.Status == "" {
		rule.Status = constants.CommissionRuleStatusActive
	}
	rule.AppliesTo = strings.ToLower(strings.TrimSpace(rule.AppliesTo))
	if rule.AppliesTo == "" {
		rule.AppliesTo = constants.CommissionAppliesToAllProducts
	}
	rule.TierMode = strings.ToLower(strings.TrimSpace(rule.TierMode))
	if rule.TierMode == "" {
		rule.TierMode = constants.TierModeMarginal
	}
	for _, scope := range []**string{&rule.StoreID, &rule.VendorID, &rule.CategoryID, &rule.ProductID, &rule.CollectionID} {
		if *scope == nil {
			continue
		}
		trimmed := strings.TrimSpace(**scope)
		if trimmed == "" {
			*scope = nil
			continue
		}
		*scope = &trimmed
	}
	for i := range rule.Conditions {
		cond := &rule.Conditions[i]
		cond.Field = models.ConditionField(strings.ToLower(strings.TrimSpace(string(cond.Field))))
		cond.Operator = models.ConditionOperator(strings.ToLower(strings.TrimSpace(string(cond.Operator))))
		if cond.Field != models.ConditionFieldCurrencyCode {
			continue
		}
		if cond.Value.Text != nil {
			upper := strings.ToUpper(*cond.Value.Text)
			cond.Value.Text = &upper
		}
		for j := range cond.Value.Texts {
			cond.Value.Texts[j] = strings.ToUpper(cond.Value.Texts[j])
		}
	}
}

// ValidateCommissionRule 校验规则结构，错误均包装 ErrRuleInvalid
func ValidateCommissionRule(rule *models.CommissionRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is nil", ErrRuleInvalid)
	}
	if strings.TrimSpace(rule.TenantID) == "" {
		return fmt.Errorf("%w: tenant_id is required", ErrRuleInvalid)
	}
	switch rule.Status {
	case constants.CommissionRuleStatusActive, constants.CommissionRuleStatusInactive:
	case constants.CommissionRuleStatusScheduled:
		if rule.ValidFrom == nil && rule.ValidTo == nil {
			return fmt.Errorf("%w: scheduled rule requires a validity window", ErrRuleInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown status %q", ErrRuleInvalid, rule.Status)
	}
	if rule.ValidFrom != nil && rule.ValidTo != nil && !rule.ValidFrom.Before(*rule.ValidTo) {
		return fmt.Errorf("%w: valid_from must be before valid_to", ErrRuleInvalid)
	}
	if err := validateRuleShape(rule); err != nil {
		return err
	}
	if err := validateAppliesTo(rule); err != nil {
		return err
	}
	for i, cond := range rule.Conditions {
		if err := validateCondition(cond); err != nil {
			return fmt.Errorf("%w (condition %d)", err, i)
		}
	}
	return nil
}

// validateRuleShape 校验与计算相关的字段（类型、金额、费率、阶梯）
func validateRuleShape(rule *models.CommissionRule) error {
	if rule.FlatAmount < 0 {
		return fmt.Errorf("%w: flat_amount must not be negative", ErrRuleInvalid)
	}
	switch rule.Type {
	case constants.CommissionRuleTypePercentage, constants.CommissionRuleTypeHybrid:
		if !rule.Percentage.InRange() {
			return fmt.Errorf("%w: percentage must be within [0,100]", ErrRuleInvalid)
		}
	case constants.CommissionRuleTypeFlat:
	case constants.CommissionRuleTypeTieredPercentage, constants.CommissionRuleTypeTieredFlat:
		if err := validateTiers(rule); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrRuleInvalid, rule.Type)
	}
	return nil
}

func validateTiers(rule *models.CommissionRule) error {
	switch rule.TierMode {
	case "", constants.TierModeMarginal, constants.TierModeBracket:
	default:
		return fmt.Errorf("%w: unknown tier_mode %q", ErrRuleInvalid, rule.TierMode)
	}
	if len(rule.Tiers) == 0 {
		return fmt.Errorf("%w: tiered rule requires tiers", ErrRuleInvalid)
	}
	for i, tier := range rule.Tiers {
		if tier.Threshold < 0 {
			return fmt.Errorf("%w: tier threshold must not be negative", ErrRuleInvalid)
		}
		if i > 0 && tier.Threshold <= rule.Tiers[i-1].Threshold {
			return fmt.Errorf("%w: tier thresholds must be strictly ascending", ErrRuleInvalid)
		}
		if !tier.Rate.InRange() {
			return fmt.Errorf("%w: tier rate must be within [0,100]", ErrRuleInvalid)
		}
		if tier.FlatAmount < 0 {
			return fmt.Errorf("%w: tier flat_amount must not be negative", ErrRuleInvalid)
		}
	}
	return nil
}

func validateAppliesTo(rule *models.CommissionRule) error {
	var scoped bool
	var field models.ConditionField
	switch rule.AppliesTo {
	case "", constants.CommissionAppliesToAllProducts:
		return nil
	case constants.CommissionAppliesToSpecificCategories:
		scoped, field = isSet(rule.CategoryID), models.ConditionFieldCategoryID
	case constants.CommissionAppliesToSpecificProducts:
		scoped, field = isSet(rule.ProductID), models.ConditionFieldProductID
	case constants.CommissionAppliesToSpecificCollection:
		scoped, field = isSet(rule.CollectionID), models.ConditionFieldCollectionID
	default:
		return fmt.Errorf("%w: unknown applies_to %q", ErrRuleInvalid, rule.AppliesTo)
	}
	if scoped {
		return nil
	}
	for _, cond := range rule.Conditions {
		if cond.Field == field {
			return nil
		}
	}
	return fmt.Errorf("%w: applies_to %s requires a %s scope or condition", ErrRuleInvalid, rule.AppliesTo, field)
}

func validateCondition(cond models.RuleCondition) error {
	if !cond.Field.Valid() {
		return fmt.Errorf("%w: unknown condition field %q", ErrRuleInvalid, cond.Field)
	}
	if !cond.Operator.Valid() {
		return fmt.Errorf("%w: unknown condition operator %q", ErrRuleInvalid, cond.Operator)
	}
	if cond.Field.Numeric() {
		if cond.Operator == models.ConditionOpIn {
			if len(cond.Value.Numbers) == 0 {
				return fmt.Errorf("%w: %s in requires a non-empty number list", ErrRuleInvalid, cond.Field)
			}
			return nil
		}
		if cond.Value.Number == nil {
			return fmt.Errorf("%w: %s %s requires a number", ErrRuleInvalid, cond.Field, cond.Operator)
		}
		return nil
	}
	if cond.Operator.Ordered() {
		return fmt.Errorf("%w: %s does not support %s", ErrRuleInvalid, cond.Field, cond.Operator)
	}
	if cond.Operator == models.ConditionOpIn {
		if len(cond.Value.Texts) == 0 {
			return fmt.Errorf("%w: %s in requires a non-empty string list", ErrRuleInvalid, cond.Field)
		}
		return nil
	}
	if cond.Value.Text == nil {
		return fmt.Errorf("%w: %s %s requires a string", ErrRuleInvalid, cond.Field, cond.Operator)
	}
	return nil
}
