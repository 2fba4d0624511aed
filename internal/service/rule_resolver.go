package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vendorledger/internal/cache"
	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"
)

// SaleContext 规则匹配上下文
type SaleContext struct {
	TenantID      string
	VendorID      string
	StoreID       string
	CategoryID    string
	ProductID     string
	CollectionIDs []string
	CurrencyCode  string
	OrderSubtotal int64
	OrderTotal    int64
	AtTime        time.Time
}

// RuleResolver 佣金规则解析器
type RuleResolver struct {
	repo     repository.CommissionRuleRepository
	cacheTTL time.Duration
}

// NewRuleResolver 创建规则解析器
func NewRuleResolver(repo repository.CommissionRuleRepository, cacheTTL time.Duration) *RuleResolver {
	return &RuleResolver{repo: repo, cacheTTL: cacheTTL}
}

// Resolve 选出唯一适用规则；无匹配时返回 nil, nil
func (r *RuleResolver) Resolve(ctx context.Context, sc SaleContext) (*models.CommissionRule, error) {
	if strings.TrimSpace(sc.TenantID) == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrSaleInvalid)
	}
	if sc.AtTime.IsZero() {
		sc.AtTime = time.Now()
	}
	rules, err := r.loadCandidates(ctx, sc.TenantID)
	if err != nil {
		return nil, err
	}
	return SelectCommissionRule(rules, sc), nil
}

func (r *RuleResolver) loadCandidates(ctx context.Context, tenantID string) ([]models.CommissionRule, error) {
	key := ruleSnapshotKey(tenantID)
	if r.cacheTTL > 0 {
		var cached []models.CommissionRule
		hit, err := cache.GetJSON(ctx, key, &cached)
		if err != nil {
			logger.Warnw("rule_resolver_cache_get_failed", "tenant_id", tenantID, "error", err)
		} else if hit {
			return cached, nil
		}
	}
	rules, err := r.repo.ListCandidates(tenantID)
	if err != nil {
		return nil, err
	}
	if r.cacheTTL > 0 {
		if err := cache.SetJSON(ctx, key, rules, r.cacheTTL); err != nil {
			logger.Warnw("rule_resolver_cache_set_failed", "tenant_id", tenantID, "error", err)
		}
	}
	return rules, nil
}

func ruleSnapshotKey(tenantID string) string {
	return "commission_rules:" + strings.TrimSpace(tenantID)
}

// SelectCommissionRule 从候选规则中确定性地选出一条：
// 优先级降序，其次范围越具体越优先，再按创建时间、ID 升序。
func SelectCommissionRule(rules []models.CommissionRule, sc SaleContext) *models.CommissionRule {
	matched := make([]models.CommissionRule, 0, len(rules))
	for _, rule := range rules {
		if ruleMatches(&rule, sc) {
			matched = append(matched, rule)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if sa, sb := ruleSpecificity(&a), ruleSpecificity(&b); sa != sb {
			return sa > sb
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	selected := matched[0]
	return &selected
}

func ruleMatches(rule *models.CommissionRule, sc SaleContext) bool {
	if rule == nil || rule.TenantID != sc.TenantID {
		return false
	}
	switch rule.Status {
	case constants.CommissionRuleStatusActive, constants.CommissionRuleStatusScheduled:
	default:
		return false
	}
	if !withinWindow(rule, sc.AtTime) {
		return false
	}
	if !scopeMatches(rule.VendorID, sc.VendorID) ||
		!scopeMatches(rule.StoreID, sc.StoreID) ||
		!scopeMatches(rule.CategoryID, sc.CategoryID) ||
		!scopeMatches(rule.ProductID, sc.ProductID) {
		return false
	}
	if rule.CollectionID != nil && !containsString(sc.CollectionIDs, *rule.CollectionID) {
		return false
	}
	for _, cond := range rule.Conditions {
		if !evaluateCondition(cond, sc) {
			return false
		}
	}
	return true
}

func withinWindow(rule *models.CommissionRule, at time.Time) bool {
	if rule.ValidFrom != nil && at.Before(*rule.ValidFrom) {
		return false
	}
	if rule.ValidTo != nil && !at.Before(*rule.ValidTo) {
		return false
	}
	return true
}

func scopeMatches(ruleValue *string, actual string) bool {
	if ruleValue == nil || strings.TrimSpace(*ruleValue) == "" {
		return true
	}
	return *ruleValue == actual
}

// ruleSpecificity 范围具体程度：商品 > 分类 > 合集 > 商家 > 店铺 > 租户
func ruleSpecificity(rule *models.CommissionRule) int {
	rank := 1
	bump := func(set bool, value int) {
		if set && value > rank {
			rank = value
		}
	}
	bump(isSet(rule.StoreID), 2)
	bump(isSet(rule.VendorID), 3)
	bump(isSet(rule.CollectionID) || rule.AppliesTo == constants.CommissionAppliesToSpecificCollection, 4)
	bump(isSet(rule.CategoryID) || rule.AppliesTo == constants.CommissionAppliesToSpecificCategories, 5)
	bump(isSet(rule.ProductID) || rule.AppliesTo == constants.CommissionAppliesToSpecificProducts, 6)
	return rank
}

func evaluateCondition(cond models.RuleCondition, sc SaleContext) bool {
	if cond.Field.Numeric() {
		return evaluateNumeric(cond, numericField(cond.Field, sc))
	}
	return evaluateText(cond, textField(cond.Field, sc))
}

func evaluateNumeric(cond models.RuleCondition, actual int64) bool {
	if cond.Operator == models.ConditionOpIn {
		for _, n := range cond.Value.Numbers {
			if n == actual {
				return true
			}
		}
		return false
	}
	if cond.Value.Number == nil {
		return false
	}
	expected := *cond.Value.Number
	switch cond.Operator {
	case models.ConditionOpGT:
		return actual > expected
	case models.ConditionOpGTE:
		return actual >= expected
	case models.ConditionOpLT:
		return actual < expected
	case models.ConditionOpLTE:
		return actual <= expected
	case models.ConditionOpEQ:
		return actual == expected
	case models.ConditionOpNE:
		return actual != expected
	default:
		return false
	}
}

func evaluateText(cond models.RuleCondition, actual []string) bool {
	switch cond.Operator {
	case models.ConditionOpIn:
		for _, candidate := range cond.Value.Texts {
			if containsString(actual, candidate) {
				return true
			}
		}
		return false
	case models.ConditionOpEQ:
		return cond.Value.Text != nil && containsString(actual, *cond.Value.Text)
	case models.ConditionOpNE:
		return cond.Value.Text != nil && !containsString(actual, *cond.Value.Text)
	default:
		return false
	}
}

func numericField(field models.ConditionField, sc SaleContext) int64 {
	switch field {
	case models.ConditionFieldOrderTotal:
		return sc.OrderTotal
	case models.ConditionFieldOrderSubtotal:
		return sc.OrderSubtotal
	default:
		return 0
	}
}

// textField 返回上下文中的字段值；合集可能有多个
func textField(field models.ConditionField, sc SaleContext) []string {
	switch field {
	case models.ConditionFieldVendorID:
		return []string{sc.VendorID}
	case models.ConditionFieldStoreID:
		return []string{sc.StoreID}
	case models.ConditionFieldCategoryID:
		return []string{sc.CategoryID}
	case models.ConditionFieldProductID:
		return []string{sc.ProductID}
	case models.ConditionFieldCollectionID:
		return sc.CollectionIDs
	case models.ConditionFieldCurrencyCode:
		return []string{strings.ToUpper(sc.CurrencyCode)}
	default:
		return nil
	}
}

func isSet(value *string) bool {
	return value != nil && strings.TrimSpace(*value) != ""
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}
