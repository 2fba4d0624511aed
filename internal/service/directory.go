package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"
)

// VendorDirectory 商家目录：vendor_id -> 打款方式、周期、起付金额、收款账户
type VendorDirectory interface {
	GetPayoutProfile(ctx context.Context, tenantID, vendorID string) (*models.VendorPayoutProfile, error)
}

// PlatformFeeSource 租户级平台服务费率与结算设置
type PlatformFeeSource interface {
	GetTenantSetting(ctx context.Context, tenantID string) (*models.TenantSetting, error)
}

// DirectoryService 商家打款资料与租户设置的本地投影
type DirectoryService struct {
	profileRepo    repository.VendorProfileRepository
	settingRepo    repository.TenantSettingRepository
	defaultFeeRate models.Rate
}

// NewDirectoryService 创建目录服务
func NewDirectoryService(profileRepo repository.VendorProfileRepository, settingRepo repository.TenantSettingRepository, defaultFeeRate models.Rate) *DirectoryService {
	return &DirectoryService{
		profileRepo:    profileRepo,
		settingRepo:    settingRepo,
		defaultFeeRate: defaultFeeRate,
	}
}

// GetPayoutProfile 获取商家打款资料，未同步时返回 nil
func (s *DirectoryService) GetPayoutProfile(ctx context.Context, tenantID, vendorID string) (*models.VendorPayoutProfile, error) {
	return s.profileRepo.Get(tenantID, vendorID)
}

// GetTenantSetting 获取租户设置，未配置时使用默认费率
func (s *DirectoryService) GetTenantSetting(ctx context.Context, tenantID string) (*models.TenantSetting, error) {
	setting, err := s.settingRepo.Get(tenantID)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return &models.TenantSetting{
			TenantID:        strings.TrimSpace(tenantID),
			PlatformFeeRate: s.defaultFeeRate,
		}, nil
	}
	return setting, nil
}

// SaveVendorProfile 同步商家打款资料
func (s *DirectoryService) SaveVendorProfile(profile *models.VendorPayoutProfile) (*models.VendorPayoutProfile, error) {
	if profile == nil {
		return nil, fmt.Errorf("%w: profile is nil", ErrValidation)
	}
	profile.TenantID = strings.TrimSpace(profile.TenantID)
	profile.VendorID = strings.TrimSpace(profile.VendorID)
	profile.PayoutMethod = strings.ToLower(strings.TrimSpace(profile.PayoutMethod))
	profile.PayoutSchedule = strings.ToLower(strings.TrimSpace(profile.PayoutSchedule))
	profile.RailAccountID = strings.TrimSpace(profile.RailAccountID)
	profile.WalletCustomerID = strings.TrimSpace(profile.WalletCustomerID)
	if profile.TenantID == "" || profile.VendorID == "" {
		return nil, fmt.Errorf("%w: tenant_id and vendor_id are required", ErrValidation)
	}
	switch profile.PayoutMethod {
	case constants.PayoutMethodStripeConnect, constants.PayoutMethodWallet:
	default:
		return nil, fmt.Errorf("%w: unknown payout_method %q", ErrValidation, profile.PayoutMethod)
	}
	switch profile.PayoutSchedule {
	case "":
		profile.PayoutSchedule = constants.PayoutScheduleWeekly
	case constants.PayoutScheduleDaily, constants.PayoutScheduleWeekly, constants.PayoutScheduleMonthly, constants.PayoutScheduleManual:
	default:
		return nil, fmt.Errorf("%w: unknown payout_schedule %q", ErrValidation, profile.PayoutSchedule)
	}
	if profile.PayoutMinimum < 0 {
		return nil, fmt.Errorf("%w: payout_minimum must not be negative", ErrValidation)
	}
	now := time.Now()
	profile.UpdatedAt = now
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	if err := s.profileRepo.Upsert(profile); err != nil {
		return nil, err
	}
	return s.profileRepo.Get(profile.TenantID, profile.VendorID)
}

// SaveTenantSetting 写入租户结算设置
func (s *DirectoryService) SaveTenantSetting(setting *models.TenantSetting) (*models.TenantSetting, error) {
	if setting == nil || strings.TrimSpace(setting.TenantID) == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrValidation)
	}
	setting.TenantID = strings.TrimSpace(setting.TenantID)
	if !setting.PlatformFeeRate.InRange() {
		return nil, fmt.Errorf("%w: platform_fee_rate must be within [0,100]", ErrValidation)
	}
	if setting.PayoutApprovalThreshold < 0 || setting.ApprovalHoldDays < 0 {
		return nil, fmt.Errorf("%w: threshold and hold days must not be negative", ErrValidation)
	}
	setting.UpdatedAt = time.Now()
	if err := s.settingRepo.Upsert(setting); err != nil {
		return nil, err
	}
	return setting, nil
}
