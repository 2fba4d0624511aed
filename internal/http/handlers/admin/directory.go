package admin

import (
	"strings"

	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/models"

	"github.com/gin-gonic/gin"
)

// VendorProfileRequest 商家打款资料同步请求
type VendorProfileRequest struct {
	PayoutMethod     string `json:"payout_method" binding:"required"`
	PayoutSchedule   string `json:"payout_schedule"`
	PayoutMinimum    int64  `json:"payout_minimum"`
	RailAccountID    string `json:"rail_account_id"`
	WalletCustomerID string `json:"wallet_customer_id"`
}

// TenantSettingRequest 租户结算设置请求
type TenantSettingRequest struct {
	PlatformFeeRate         models.Rate `json:"platform_fee_rate"`
	PayoutApprovalThreshold int64       `json:"payout_approval_threshold"`
	ApprovalHoldDays        int         `json:"approval_hold_days"`
}

// GetVendorProfile 查询商家打款资料
func (h *Handler) GetVendorProfile(c *gin.Context) {
	profile, err := h.DirectoryService.GetPayoutProfile(c.Request.Context(), c.Param("tenant_id"), c.Param("vendor_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if profile == nil {
		respondErrorWithMsg(c, response.CodeNotFound, "vendor payout profile not found", nil)
		return
	}
	response.Success(c, profile)
}

// PutVendorProfile 写入商家打款资料
func (h *Handler) PutVendorProfile(c *gin.Context) {
	var req VendorProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	profile, err := h.DirectoryService.SaveVendorProfile(&models.VendorPayoutProfile{
		TenantID:         c.Param("tenant_id"),
		VendorID:         c.Param("vendor_id"),
		PayoutMethod:     req.PayoutMethod,
		PayoutSchedule:   req.PayoutSchedule,
		PayoutMinimum:    req.PayoutMinimum,
		RailAccountID:    req.RailAccountID,
		WalletCustomerID: req.WalletCustomerID,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, profile)
}

// GetTenantSetting 查询租户结算设置（未配置时返回默认值）
func (h *Handler) GetTenantSetting(c *gin.Context) {
	setting, err := h.DirectoryService.GetTenantSetting(c.Request.Context(), c.Param("tenant_id"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, setting)
}

// PutTenantSetting 写入租户结算设置
func (h *Handler) PutTenantSetting(c *gin.Context) {
	var req TenantSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	setting, err := h.DirectoryService.SaveTenantSetting(&models.TenantSetting{
		TenantID:                strings.TrimSpace(c.Param("tenant_id")),
		PlatformFeeRate:         req.PlatformFeeRate,
		PayoutApprovalThreshold: req.PayoutApprovalThreshold,
		ApprovalHoldDays:        req.ApprovalHoldDays,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, setting)
}
