package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"
)

func percentageRule(id uint, rate string) models.CommissionRule {
	return models.CommissionRule{
		ID:         id,
		TenantID:   "t1",
		Type:       constants.CommissionRuleTypePercentage,
		Percentage: models.MustRate(rate),
		Status:     constants.CommissionRuleStatusActive,
		AppliesTo:  constants.CommissionAppliesToAllProducts,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSelectCommissionRulePrefersPriorityThenSpecificity(t *testing.T) {
	tenantWide := percentageRule(1, "10")
	vendorScoped := percentageRule(2, "8")
	vendorScoped.VendorID = strPtr("v1")
	productScoped := percentageRule(3, "5")
	productScoped.ProductID = strPtr("p1")

	sc := SaleContext{TenantID: "t1", VendorID: "v1", ProductID: "p1", AtTime: time.Now()}

	selected := SelectCommissionRule([]models.CommissionRule{tenantWide, vendorScoped, productScoped}, sc)
	if selected == nil || selected.ID != 3 {
		t.Fatalf("product scoped rule should win on equal priority, got %+v", selected)
	}

	tenantWide.Priority = 10
	selected = SelectCommissionRule([]models.CommissionRule{tenantWide, vendorScoped, productScoped}, sc)
	if selected == nil || selected.ID != 1 {
		t.Fatalf("higher priority should win over specificity, got %+v", selected)
	}
}

func TestSelectCommissionRuleTieBreaksByCreationThenID(t *testing.T) {
	older := percentageRule(7, "10")
	newer := percentageRule(3, "10")
	newer.CreatedAt = older.CreatedAt.Add(time.Hour)
	sc := SaleContext{TenantID: "t1", AtTime: time.Now()}

	selected := SelectCommissionRule([]models.CommissionRule{newer, older}, sc)
	if selected == nil || selected.ID != 7 {
		t.Fatalf("older rule should win, got %+v", selected)
	}

	newer.CreatedAt = older.CreatedAt
	selected = SelectCommissionRule([]models.CommissionRule{older, newer}, sc)
	if selected == nil || selected.ID != 3 {
		t.Fatalf("lower id should win on equal creation time, got %+v", selected)
	}
}

func TestSelectCommissionRuleFilters(t *testing.T) {
	at := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	from := at.Add(-time.Hour)
	to := at

	expired := percentageRule(1, "10")
	expired.ValidFrom = &from
	expired.ValidTo = &to

	inactive := percentageRule(2, "10")
	inactive.Status = constants.CommissionRuleStatusInactive

	otherTenant := percentageRule(3, "10")
	otherTenant.TenantID = "t2"

	otherVendor := percentageRule(4, "10")
	otherVendor.VendorID = strPtr("v2")

	bigOrders := percentageRule(5, "10")
	bigOrders.Conditions = models.RuleConditions{{
		Field:    models.ConditionFieldOrderTotal,
		Operator: models.ConditionOpGTE,
		Value:    models.ConditionValue{Number: int64Ptr(50000)},
	}}

	collection := percentageRule(6, "10")
	collection.CollectionID = strPtr("summer")

	sc := SaleContext{
		TenantID:      "t1",
		VendorID:      "v1",
		CollectionIDs: []string{"winter"},
		OrderTotal:    10000,
		AtTime:        at,
	}
	rules := []models.CommissionRule{expired, inactive, otherTenant, otherVendor, bigOrders, collection}
	if selected := SelectCommissionRule(rules, sc); selected != nil {
		t.Fatalf("no rule should match, got id=%d", selected.ID)
	}

	sc.AtTime = at.Add(-time.Minute)
	sc.OrderTotal = 60000
	sc.CollectionIDs = []string{"winter", "summer"}
	selected := SelectCommissionRule(rules, sc)
	if selected == nil {
		t.Fatalf("expected a rule to match")
	}
	// 合集范围更具体
	if selected.ID != 6 {
		t.Fatalf("collection rule should win, got id=%d", selected.ID)
	}
}

func TestSelectCommissionRuleCurrencyCondition(t *testing.T) {
	usdOnly := percentageRule(1, "10")
	usdOnly.Conditions = models.RuleConditions{{
		Field:    models.ConditionFieldCurrencyCode,
		Operator: models.ConditionOpIn,
		Value:    models.ConditionValue{Texts: []string{"USD", "CAD"}},
	}}
	rules := []models.CommissionRule{usdOnly}

	if selected := SelectCommissionRule(rules, SaleContext{TenantID: "t1", CurrencyCode: "usd", AtTime: time.Now()}); selected == nil {
		t.Fatalf("lowercase currency should match")
	}
	if selected := SelectCommissionRule(rules, SaleContext{TenantID: "t1", CurrencyCode: "EUR", AtTime: time.Now()}); selected != nil {
		t.Fatalf("EUR should not match")
	}
}

func TestRuleResolverLoadsFromRepository(t *testing.T) {
	db := openServiceTestDB(t, "rule_resolver")
	repo := repository.NewCommissionRuleRepository(db)
	rules := NewCommissionRuleService(repo)
	ctx := context.Background()

	if _, err := rules.Create(ctx, &models.CommissionRule{
		TenantID:   "t1",
		Name:       "default",
		Type:       constants.CommissionRuleTypePercentage,
		Percentage: models.MustRate("10"),
	}); err != nil {
		t.Fatalf("create rule failed: %v", err)
	}
	vendorRule, err := rules.Create(ctx, &models.CommissionRule{
		TenantID:   "t1",
		Name:       "vendor",
		VendorID:   strPtr(" v1 "),
		Type:       constants.CommissionRuleTypeFlat,
		FlatAmount: 300,
	})
	if err != nil {
		t.Fatalf("create vendor rule failed: %v", err)
	}

	resolver := NewRuleResolver(repo, 0)
	rule, err := resolver.Resolve(ctx, SaleContext{TenantID: "t1", VendorID: "v1"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if rule == nil || rule.ID != vendorRule.ID {
		t.Fatalf("vendor rule should be selected, got %+v", rule)
	}

	if err := rules.Deactivate(ctx, vendorRule.ID); err != nil {
		t.Fatalf("deactivate failed: %v", err)
	}
	rule, err = resolver.Resolve(ctx, SaleContext{TenantID: "t1", VendorID: "v1"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if rule == nil || rule.Type != constants.CommissionRuleTypePercentage {
		t.Fatalf("tenant default should apply after deactivation, got %+v", rule)
	}

	rule, err = resolver.Resolve(ctx, SaleContext{TenantID: "t9"})
	if err != nil || rule != nil {
		t.Fatalf("unknown tenant should resolve to nil, got %+v err=%v", rule, err)
	}
	if _, err := resolver.Resolve(ctx, SaleContext{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing tenant should be a validation error, got %v", err)
	}
}

func TestValidateCommissionRule(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	cases := []struct {
		name string
		rule models.CommissionRule
	}{
		{"missing tenant", models.CommissionRule{Type: constants.CommissionRuleTypeFlat, Status: constants.CommissionRuleStatusActive}},
		{"unknown status", models.CommissionRule{TenantID: "t1", Type: constants.CommissionRuleTypeFlat, Status: "paused"}},
		{"scheduled without window", models.CommissionRule{TenantID: "t1", Type: constants.CommissionRuleTypeFlat, Status: constants.CommissionRuleStatusScheduled}},
		{"inverted window", models.CommissionRule{TenantID: "t1", Type: constants.CommissionRuleTypeFlat, Status: constants.CommissionRuleStatusActive, ValidFrom: &later, ValidTo: &now}},
		{"percentage over 100", models.CommissionRule{TenantID: "t1", Type: constants.CommissionRuleTypePercentage, Percentage: models.MustRate("120"), Status: constants.CommissionRuleStatusActive}},
		{"negative flat", models.CommissionRule{TenantID: "t1", Type: constants.CommissionRuleTypeFlat, FlatAmount: -1, Status: constants.CommissionRuleStatusActive}},
		{"tiers not ascending", models.CommissionRule{
			TenantID: "t1",
			Type:     constants.CommissionRuleTypeTieredPercentage,
			Status:   constants.CommissionRuleStatusActive,
			Tiers: models.CommissionTiers{
				{Threshold: 1000, Rate: models.MustRate("5")},
				{Threshold: 1000, Rate: models.MustRate("3")},
			},
		}},
		{"tiered without tiers", models.CommissionRule{TenantID: "t1", Type: constants.CommissionRuleTypeTieredFlat, Status: constants.CommissionRuleStatusActive}},
		{"specific products without scope", models.CommissionRule{
			TenantID:  "t1",
			Type:      constants.CommissionRuleTypeFlat,
			Status:    constants.CommissionRuleStatusActive,
			AppliesTo: constants.CommissionAppliesToSpecificProducts,
		}},
		{"ordered operator on text field", models.CommissionRule{
			TenantID: "t1",
			Type:     constants.CommissionRuleTypeFlat,
			Status:   constants.CommissionRuleStatusActive,
			Conditions: models.RuleConditions{{
				Field:    models.ConditionFieldVendorID,
				Operator: models.ConditionOpGT,
				Value:    models.ConditionValue{Text: strPtr("v1")},
			}},
		}},
	}
	for _, tc := range cases {
		rule := tc.rule
		if err := ValidateCommissionRule(&rule); !errors.Is(err, ErrRuleInvalid) {
			t.Fatalf("%s: expected ErrRuleInvalid, got %v", tc.name, err)
		}
	}

	valid := models.CommissionRule{
		TenantID:  "t1",
		Type:      constants.CommissionRuleTypeFlat,
		Status:    constants.CommissionRuleStatusScheduled,
		ValidFrom: &now,
		AppliesTo: constants.CommissionAppliesToSpecificProducts,
		Conditions: models.RuleConditions{{
			Field:    models.ConditionFieldProductID,
			Operator: models.ConditionOpIn,
			Value:    models.ConditionValue{Texts: []string{"p1", "p2"}},
		}},
	}
	if err := ValidateCommissionRule(&valid); err != nil {
		t.Fatalf("valid rule rejected: %v", err)
	}
}
