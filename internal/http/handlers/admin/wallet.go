package admin

import (
	"context"
	"strings"
	"time"

	handlershared "github.com/vendorledger/internal/http/handlers/shared"
	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"
	"github.com/vendorledger/internal/service"

	"github.com/gin-gonic/gin"
)

// EnsureWalletRequest 开户请求
type EnsureWalletRequest struct {
	CustomerID string `json:"customer_id" binding:"required"`
	Currency   string `json:"currency" binding:"required"`
}

// WalletMutationRequest 余额变动请求；Adjust 接口允许负数
type WalletMutationRequest struct {
	Amount         int64  `json:"amount" binding:"required"`
	Reason         string `json:"reason"`
	ReferenceType  string `json:"reference_type"`
	ReferenceID    string `json:"reference_id"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

// WalletHoldRequest 冻结请求
type WalletHoldRequest struct {
	Amount         int64      `json:"amount" binding:"required"`
	Reason         string     `json:"reason"`
	Reference      string     `json:"reference"`
	IdempotencyKey string     `json:"idempotency_key" binding:"required"`
	ExpiresAt      *time.Time `json:"expires_at"`
}

// WalletHoldSettleRequest 解冻/确认扣款请求
type WalletHoldSettleRequest struct {
	Reason string `json:"reason"`
}

type walletMutation func(h *Handler, c *gin.Context, input service.WalletMutationInput) (interface{}, error)

// EnsureWallet 按客户与币种开户（已存在则返回）
func (h *Handler) EnsureWallet(c *gin.Context) {
	var req EnsureWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	wallet, err := h.WalletService.EnsureWallet(c.Request.Context(), req.CustomerID, req.Currency)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, wallet)
}

// GetWallet 钱包详情
func (h *Handler) GetWallet(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid wallet id", nil)
		return
	}
	wallet, err := h.WalletService.GetWallet(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, wallet)
}

// ListWalletTransactions 钱包流水
func (h *Handler) ListWalletTransactions(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid wallet id", nil)
		return
	}
	page, pageSize := pageQuery(c)
	txns, total, err := h.WalletService.ListTransactions(repository.WalletTransactionListFilter{
		Page:     page,
		PageSize: pageSize,
		WalletID: id,
		Type:     strings.TrimSpace(c.Query("type")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, txns, response.NewPagination(page, pageSize, total))
}

// CreditWallet 入账
func (h *Handler) CreditWallet(c *gin.Context) {
	h.mutateWallet(c, func(h *Handler, c *gin.Context, input service.WalletMutationInput) (interface{}, error) {
		return h.WalletService.Credit(c.Request.Context(), input)
	})
}

// DebitWallet 扣款
func (h *Handler) DebitWallet(c *gin.Context) {
	h.mutateWallet(c, func(h *Handler, c *gin.Context, input service.WalletMutationInput) (interface{}, error) {
		return h.WalletService.Debit(c.Request.Context(), input)
	})
}

// RefundWallet 退款入账
func (h *Handler) RefundWallet(c *gin.Context) {
	h.mutateWallet(c, func(h *Handler, c *gin.Context, input service.WalletMutationInput) (interface{}, error) {
		return h.WalletService.Refund(c.Request.Context(), input)
	})
}

// AdjustWallet 人工调账（带符号）
func (h *Handler) AdjustWallet(c *gin.Context) {
	h.mutateWallet(c, func(h *Handler, c *gin.Context, input service.WalletMutationInput) (interface{}, error) {
		operator := handlershared.GetOperator(c)
		txn, err := h.WalletService.Adjust(c.Request.Context(), input)
		if err == nil {
			requestLog(c).Infow("wallet_adjusted_by_operator",
				"wallet_id", input.WalletID,
				"amount", input.Amount,
				"operator", operator,
			)
		}
		return txn, err
	})
}

func (h *Handler) mutateWallet(c *gin.Context, op walletMutation) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid wallet id", nil)
		return
	}
	var req WalletMutationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	result, err := op(h, c, service.WalletMutationInput{
		WalletID:       id,
		Amount:         req.Amount,
		Reason:         req.Reason,
		ReferenceType:  req.ReferenceType,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}

// HoldWallet 冻结余额
func (h *Handler) HoldWallet(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid wallet id", nil)
		return
	}
	var req WalletHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	txn, err := h.WalletService.Hold(c.Request.Context(), service.WalletHoldInput{
		WalletID:       id,
		Amount:         req.Amount,
		Reason:         req.Reason,
		Reference:      req.Reference,
		IdempotencyKey: req.IdempotencyKey,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// ReleaseWalletHold 解冻
func (h *Handler) ReleaseWalletHold(c *gin.Context) {
	h.settleHold(c, h.WalletService.Release)
}

// CaptureWalletHold 冻结转扣款
func (h *Handler) CaptureWalletHold(c *gin.Context) {
	h.settleHold(c, h.WalletService.CaptureHold)
}

func (h *Handler) settleHold(c *gin.Context, settle func(ctx context.Context, holdID uint, reason string) (*models.WalletTransaction, error)) {
	holdID, ok := parsePathUint(c, "hold_id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid hold id", nil)
		return
	}
	var req WalletHoldSettleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
			return
		}
	}
	txn, err := settle(c.Request.Context(), holdID, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// FreezeWallet 冻结钱包
func (h *Handler) FreezeWallet(c *gin.Context) {
	h.changeWalletStatus(c, h.WalletService.Freeze)
}

// UnfreezeWallet 解冻钱包
func (h *Handler) UnfreezeWallet(c *gin.Context) {
	h.changeWalletStatus(c, h.WalletService.Unfreeze)
}

// CloseWallet 销户（余额为零且无未结冻结）
func (h *Handler) CloseWallet(c *gin.Context) {
	h.changeWalletStatus(c, h.WalletService.Close)
}

func (h *Handler) changeWalletStatus(c *gin.Context, change func(ctx context.Context, walletID uint) (*models.Wallet, error)) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid wallet id", nil)
		return
	}
	wallet, err := change(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	operator := handlershared.GetOperator(c)
	requestLog(c).Infow("wallet_status_changed_by_operator", "wallet_id", id, "status", wallet.Status, "operator", operator)
	response.Success(c, wallet)
}

// VerifyWalletBalance 流水重放核对余额
func (h *Handler) VerifyWalletBalance(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid wallet id", nil)
		return
	}
	report, err := h.WalletService.VerifyBalance(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, report)
}

// WalletPaymentRequest 钱包支付请求
type WalletPaymentRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	Amount    int64  `json:"amount" binding:"required"`
	Reference string `json:"reference"`
	UseHold   bool   `json:"use_hold"`
}

// PayWithWallet 以钱包余额支付订单（扣款或冻结后确认）
func (h *Handler) PayWithWallet(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid wallet id", nil)
		return
	}
	var req WalletPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	result, err := h.WalletPaymentSaga.Process(c.Request.Context(), service.WalletPaymentInput{
		WalletID:  id,
		Amount:    req.Amount,
		OrderID:   req.OrderID,
		Reference: req.Reference,
		UseHold:   req.UseHold,
	}, nil)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, result)
}
