package admin

import (
	"strings"
	"time"

	handlershared "github.com/vendorledger/internal/http/handlers/shared"
	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/repository"
	"github.com/vendorledger/internal/service"

	"github.com/gin-gonic/gin"
)

// SaleEventRequest 销售事件请求
type SaleEventRequest struct {
	TenantID      string     `json:"tenant_id" binding:"required"`
	OrderID       string     `json:"order_id" binding:"required"`
	LineItemID    string     `json:"line_item_id"`
	VendorID      string     `json:"vendor_id" binding:"required"`
	StoreID       string     `json:"store_id"`
	CategoryID    string     `json:"category_id"`
	ProductID     string     `json:"product_id"`
	CollectionIDs []string   `json:"collection_ids"`
	CurrencyCode  string     `json:"currency_code" binding:"required"`
	Subtotal      int64      `json:"subtotal"`
	Tax           int64      `json:"tax"`
	Shipping      int64      `json:"shipping"`
	Total         int64      `json:"total"`
	OccurredAt    *time.Time `json:"occurred_at"`
}

func (req SaleEventRequest) toEvent() service.SaleEvent {
	event := service.SaleEvent{
		TenantID:      req.TenantID,
		OrderID:       req.OrderID,
		LineItemID:    req.LineItemID,
		VendorID:      req.VendorID,
		StoreID:       req.StoreID,
		CategoryID:    req.CategoryID,
		ProductID:     req.ProductID,
		CollectionIDs: req.CollectionIDs,
		CurrencyCode:  req.CurrencyCode,
		Subtotal:      req.Subtotal,
		Tax:           req.Tax,
		Shipping:      req.Shipping,
		Total:         req.Total,
	}
	if req.OccurredAt != nil {
		event.OccurredAt = *req.OccurredAt
	}
	return event
}

// RefundRequest 退款冲减请求
type RefundRequest struct {
	OrderID               string `json:"order_id" binding:"required"`
	OriginalTransactionID uint   `json:"original_transaction_id" binding:"required"`
	Amount                int64  `json:"amount" binding:"required"`
	Reference             string `json:"reference" binding:"required"`
	Reason                string `json:"reason"`
}

// AdjustmentRequest 调整请求
type AdjustmentRequest struct {
	OrderID                string `json:"order_id" binding:"required"`
	ReferenceTransactionID uint   `json:"reference_transaction_id"`
	Amount                 int64  `json:"amount" binding:"required"`
	Reference              string `json:"reference" binding:"required"`
	Reason                 string `json:"reason"`
}

// ReversalRequest 冲正请求
type ReversalRequest struct {
	OrderID               string `json:"order_id" binding:"required"`
	OriginalTransactionID uint   `json:"original_transaction_id" binding:"required"`
	Reason                string `json:"reason"`
}

// QuoteSale 试算销售佣金
func (h *Handler) QuoteSale(c *gin.Context) {
	var req SaleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	quote, err := h.LedgerService.QuoteSale(c.Request.Context(), req.toEvent())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, quote)
}

// RecordSale 记录销售佣金
func (h *Handler) RecordSale(c *gin.Context) {
	var req SaleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	txn, err := h.LedgerService.RecordSale(c.Request.Context(), req.toEvent())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// RecordRefund 记录退款冲减
func (h *Handler) RecordRefund(c *gin.Context) {
	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	txn, err := h.LedgerService.RecordRefund(c.Request.Context(), service.RefundInput{
		OrderID:               req.OrderID,
		OriginalTransactionID: req.OriginalTransactionID,
		Amount:                req.Amount,
		Reference:             req.Reference,
		Reason:                req.Reason,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// RecordAdjustment 记录调整
func (h *Handler) RecordAdjustment(c *gin.Context) {
	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	txn, err := h.LedgerService.RecordAdjustment(c.Request.Context(), service.AdjustmentInput{
		OrderID:                req.OrderID,
		ReferenceTransactionID: req.ReferenceTransactionID,
		Amount:                 req.Amount,
		Reference:              req.Reference,
		Reason:                 req.Reason,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	operator := handlershared.GetOperator(c)
	requestLog(c).Infow("commission_adjustment_recorded",
		"transaction_id", txn.ID,
		"order_id", txn.OrderID,
		"amount", req.Amount,
		"operator", operator,
	)
	response.Success(c, txn)
}

// RecordReversal 冲正整笔销售
func (h *Handler) RecordReversal(c *gin.Context) {
	var req ReversalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid request body", err)
		return
	}
	txn, err := h.LedgerService.RecordReversal(c.Request.Context(), service.ReversalInput{
		OrderID:               req.OrderID,
		OriginalTransactionID: req.OriginalTransactionID,
		Reason:                req.Reason,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// ListCommissionTransactions 佣金流水列表
func (h *Handler) ListCommissionTransactions(c *gin.Context) {
	page, pageSize := pageQuery(c)
	txns, total, err := h.LedgerService.List(repository.CommissionTransactionListFilter{
		Page:            page,
		PageSize:        pageSize,
		TenantID:        strings.TrimSpace(c.Query("tenant_id")),
		VendorID:        strings.TrimSpace(c.Query("vendor_id")),
		OrderID:         strings.TrimSpace(c.Query("order_id")),
		Status:          strings.TrimSpace(c.Query("status")),
		PayoutStatus:    strings.TrimSpace(c.Query("payout_status")),
		TransactionType: strings.TrimSpace(c.Query("transaction_type")),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.SuccessWithPage(c, txns, response.NewPagination(page, pageSize, total))
}

// GetCommissionTransaction 佣金流水详情
func (h *Handler) GetCommissionTransaction(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid transaction id", nil)
		return
	}
	txn, err := h.LedgerService.Get(id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// DisputeCommissionTransaction 标记争议
func (h *Handler) DisputeCommissionTransaction(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid transaction id", nil)
		return
	}
	txn, err := h.LedgerService.MarkDisputed(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}

// ResolveCommissionDispute 解除争议
func (h *Handler) ResolveCommissionDispute(c *gin.Context) {
	id, ok := parsePathUint(c, "id")
	if !ok {
		respondErrorWithMsg(c, response.CodeBadRequest, "invalid transaction id", nil)
		return
	}
	txn, err := h.LedgerService.ResolveDispute(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	response.Success(c, txn)
}
