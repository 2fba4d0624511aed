package admin

import (
	"strings"
	"time"

	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/repository"

	"github.com/gin-gonic/gin"
)

// RunPayoutBatchRequest 手动触发打款批次请求
type RunPayoutBatchRequest struct {
	TenantID string     `json:"tenant_id" binding:"required"`
	AsOf     *time.Time `json:"as_of"`
	// Dispatch 为 true 时批次生成后立即投递结算
	Dispatch bool `json:"dispatch"`
}

// PayoutReasonRequest 打款单操作原因
type PayoutReasonRequest struct {
	Reason string `json:"reason"`
}

// RunPayoutBatch 生成租户打款批次
func (h *Handler) RunPayoutBatch(c *gin.Context) {
	var req RunPayoutBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	asOf := time.Now()
	if req.AsOf != nil {
		asOf = *req.AsOf
	}
	ctx := c.Request.Context()
	payouts, err := h.PayoutBatchService.RunPayoutBatch(ctx, strings.TrimSpace(req.TenantID), asOf)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if req.Dispatch {
		for i := range payouts {
			if err := h.SettlementService.DispatchSettlement(ctx, &payouts[i]); err != nil {
				requestLog(c).Warnw("payout_dispatch_failed", "payout_id", payouts[i].ID, "error", err)
			}
		}
	}
	response.Success(c, gin.H{
		"tenant_id": req.TenantID,
		"as_of":     asOf,
		"payouts":   payouts,
	})
}

// ListPayouts 打款单列表
func (h *Handler) ListPayouts(c *gin.Context) {
	page, pageSize := pageQuery(c)
	payouts, total, err := h.PayoutBatchService.List(repository.PayoutListFilter{
		Page:     page,
		PageSize: pageSize,
		TenantID: strings.TrimSpace(c.Query("tenant_id")),
		VendorID: strings.TrimSpace(c.Query("vendor_id")),
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, payouts, response.NewPagination(page, pageSize, total))
}

// GetPayout 打款单详情（含关联流水）
func (h *Handler) GetPayout(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid payout id", nil)
		return
	}
	payout, err := h.PayoutBatchService.GetWithLinks(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

// ApprovePayout 审批打款单
func (h *Handler) ApprovePayout(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid payout id", nil)
		return
	}
	operator, ok := getOperator(c)
	if !ok {
		return
	}
	payout, err := h.PayoutBatchService.ApprovePayout(c.Request.Context(), id, operator)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

// ReleasePayoutHold 解除打款单暂扣
func (h *Handler) ReleasePayoutHold(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid payout id", nil)
		return
	}
	payout, err := h.PayoutBatchService.ReleasePayoutHold(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

// CancelPayout 取消打款单，关联流水回到待打款
func (h *Handler) CancelPayout(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid payout id", nil)
		return
	}
	operator, ok := getOperator(c)
	if !ok {
		return
	}
	var req PayoutReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	payout, err := h.PayoutBatchService.CancelPayout(c.Request.Context(), id, operator, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

// SettlePayout 同步执行结算
func (h *Handler) SettlePayout(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid payout id", nil)
		return
	}
	payout, err := h.SettlementService.SettlePayout(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}

// FailPayout 人工判定处理中的打款单失败
func (h *Handler) FailPayout(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid payout id", nil)
		return
	}
	operator, ok := getOperator(c)
	if !ok {
		return
	}
	var req PayoutReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		respondErrorWithMsg(c, response.CodeBadRequest, "reason is required", nil)
		return
	}
	payout, err := h.SettlementService.FailPayout(c.Request.Context(), id, operator, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, payout)
}
