package models

import (
	"strings"
	"time"

	"github.com/vendorledger/internal/logger"
)

// EnsureTenantSettings 为配置中的租户补齐结算设置（已存在的不覆盖）
func EnsureTenantSettings(tenantIDs []string, defaultFeeRate Rate) error {
	for _, raw := range tenantIDs {
		tenantID := strings.TrimSpace(raw)
		if tenantID == "" {
			continue
		}
		var count int64
		if err := DB.Model(&TenantSetting{}).Where("tenant_id = ?", tenantID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		setting := TenantSetting{
			TenantID:        tenantID,
			PlatformFeeRate: defaultFeeRate,
			UpdatedAt:       time.Now(),
		}
		if err := DB.Create(&setting).Error; err != nil {
			return err
		}
		logger.Infow("tenant_setting_initialized", "tenant_id", tenantID, "platform_fee_rate", defaultFeeRate.String())
	}
	return nil
}
