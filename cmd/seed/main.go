package main

import (
	"github.com/vendorledger/internal/config"
	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
)

const demoTenant = "demo"

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}, false); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 租户结算设置
	if err := models.EnsureTenantSettings([]string{demoTenant}, models.MustRate("2.5")); err != nil {
		stdLog.Fatalf("Failed to seed tenant setting: %v", err)
	}
	if err := models.DB.Model(&models.TenantSetting{}).
		Where("tenant_id = ?", demoTenant).
		Updates(map[string]interface{}{"payout_approval_threshold": 500000, "approval_hold_days": 0}).Error; err != nil {
		stdLog.Printf("Failed to update tenant setting: %v", err)
	}

	// 商家打款资料
	profiles := []models.VendorPayoutProfile{
		{
			TenantID:       demoTenant,
			VendorID:       "vendor-acme",
			PayoutMethod:   constants.PayoutMethodStripeConnect,
			PayoutSchedule: constants.PayoutScheduleWeekly,
			PayoutMinimum:  1000,
			RailAccountID:  "acct_demo_acme",
		},
		{
			TenantID:         demoTenant,
			VendorID:         "vendor-bravo",
			PayoutMethod:     constants.PayoutMethodWallet,
			PayoutSchedule:   constants.PayoutScheduleDaily,
			WalletCustomerID: "customer-bravo",
		},
		{
			TenantID:       demoTenant,
			VendorID:       "vendor-charlie",
			PayoutMethod:   constants.PayoutMethodStripeConnect,
			PayoutSchedule: constants.PayoutScheduleMonthly,
		},
	}
	for _, profile := range profiles {
		var count int64
		models.DB.Model(&models.VendorPayoutProfile{}).
			Where("tenant_id = ? AND vendor_id = ?", profile.TenantID, profile.VendorID).
			Count(&count)
		if count > 0 {
			stdLog.Printf("Vendor profile already exists: %s", profile.VendorID)
			continue
		}
		if err := models.DB.Create(&profile).Error; err != nil {
			stdLog.Printf("Failed to create vendor profile %s: %v", profile.VendorID, err)
		} else {
			stdLog.Printf("Created vendor profile: %s", profile.VendorID)
		}
	}

	// 佣金规则
	acme := "vendor-acme"
	electronics := "electronics"
	rules := []models.CommissionRule{
		{
			TenantID:   demoTenant,
			Name:       "Default 10%",
			Type:       constants.CommissionRuleTypePercentage,
			Percentage: models.MustRate("10"),
			Status:     constants.CommissionRuleStatusActive,
			AppliesTo:  constants.CommissionAppliesToAllProducts,
			TierMode:   constants.TierModeMarginal,
		},
		{
			TenantID:   demoTenant,
			Name:       "Electronics 8% + 50",
			Priority:   10,
			CategoryID: &electronics,
			Type:       constants.CommissionRuleTypeHybrid,
			Percentage: models.MustRate("8"),
			FlatAmount: 50,
			Status:     constants.CommissionRuleStatusActive,
			AppliesTo:  constants.CommissionAppliesToSpecificCategories,
			TierMode:   constants.TierModeMarginal,
		},
		{
			TenantID: demoTenant,
			Name:     "Acme volume tiers",
			Priority: 20,
			VendorID: &acme,
			Type:     constants.CommissionRuleTypeTieredPercentage,
			Tiers: models.CommissionTiers{
				{Threshold: 0, Rate: models.MustRate("12")},
				{Threshold: 10000, Rate: models.MustRate("9")},
				{Threshold: 50000, Rate: models.MustRate("6")},
			},
			TierMode:  constants.TierModeMarginal,
			Status:    constants.CommissionRuleStatusActive,
			AppliesTo: constants.CommissionAppliesToAllProducts,
		},
	}
	for _, rule := range rules {
		var count int64
		models.DB.Model(&models.CommissionRule{}).
			Where("tenant_id = ? AND name = ?", rule.TenantID, rule.Name).
			Count(&count)
		if count > 0 {
			stdLog.Printf("Commission rule already exists: %s", rule.Name)
			continue
		}
		if err := models.DB.Create(&rule).Error; err != nil {
			stdLog.Printf("Failed to create commission rule %s: %v", rule.Name, err)
		} else {
			stdLog.Printf("Created commission rule: %s", rule.Name)
		}
	}

	stdLog.Printf("Seed completed for tenant %s", demoTenant)
}
