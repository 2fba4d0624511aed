package admin

import (
	"strings"
	"time"

	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// CommissionRuleRequest 佣金规则创建/更新请求
type CommissionRuleRequest struct {
	TenantID     string                 `json:"tenant_id" binding:"required"`
	StoreID      *string                `json:"store_id"`
	VendorID     *string                `json:"vendor_id"`
	CategoryID   *string                `json:"category_id"`
	ProductID    *string                `json:"product_id"`
	CollectionID *string                `json:"collection_id"`
	Name         string                 `json:"name"`
	Priority     int                    `json:"priority"`
	Type         string                 `json:"type" binding:"required"`
	Percentage   models.Rate            `json:"percentage"`
	FlatAmount   int64                  `json:"flat_amount"`
	Tiers        models.CommissionTiers `json:"tiers"`
	TierMode     string                 `json:"tier_mode"`
	Conditions   models.RuleConditions  `json:"conditions"`
	ValidFrom    *time.Time             `json:"valid_from"`
	ValidTo      *time.Time             `json:"valid_to"`
	Status       string                 `json:"status"`
	AppliesTo    string                 `json:"applies_to"`
}

func (req CommissionRuleRequest) toModel() *models.CommissionRule {
	return &models.CommissionRule{
		TenantID:     req.TenantID,
		StoreID:      req.StoreID,
		VendorID:     req.VendorID,
		CategoryID:   req.CategoryID,
		ProductID:    req.ProductID,
		CollectionID: req.CollectionID,
		Name:         req.Name,
		Priority:     req.Priority,
		Type:         req.Type,
		Percentage:   req.Percentage,
		FlatAmount:   req.FlatAmount,
		Tiers:        req.Tiers,
		TierMode:     req.TierMode,
		Conditions:   req.Conditions,
		ValidFrom:    req.ValidFrom,
		ValidTo:      req.ValidTo,
		Status:       req.Status,
		AppliesTo:    req.AppliesTo,
	}
}

// ListCommissionRules 规则列表
func (h *Handler) ListCommissionRules(c *gin.Context) {
	page, pageSize := pageQuery(c)
	rules, total, err := h.CommissionRuleService.List(repository.CommissionRuleListFilter{
		Page:     page,
		PageSize: pageSize,
		TenantID: strings.TrimSpace(c.Query("tenant_id")),
		VendorID: strings.TrimSpace(c.Query("vendor_id")),
		Status:   strings.TrimSpace(c.Query("status")),
		Type:     strings.TrimSpace(c.Query("type")),
		Keyword:  strings.TrimSpace(c.Query("keyword")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, rules, response.NewPagination(page, pageSize, total))
}

// GetCommissionRule 规则详情
func (h *Handler) GetCommissionRule(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid rule id", nil)
		return
	}
	rule, err := h.CommissionRuleService.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, rule)
}

// CreateCommissionRule 创建规则
func (h *Handler) CreateCommissionRule(c *gin.Context) {
	var req CommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	rule, err := h.CommissionRuleService.Create(c.Request.Context(), req.toModel())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, rule)
}

// UpdateCommissionRule 更新规则
func (h *Handler) UpdateCommissionRule(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid rule id", nil)
		return
	}
	var req CommissionRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	rule := req.toModel()
	rule.ID = id
	updated, err := h.CommissionRuleService.Update(c.Request.Context(), rule)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, updated)
}

// DeactivateCommissionRule 停用规则
func (h *Handler) DeactivateCommissionRule(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid rule id", nil)
		return
	}
	if err := h.CommissionRuleService.Deactivate(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}
