package webhook

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	handlershared "github.com/vendorledger/internal/http/handlers/shared"
	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/provider"
	"github.com/vendorledger/internal/service"

	"github.com/gin-gonic/gin"
)

const maxWebhookBodyBytes = 1 << 20

// Handler 渠道回调处理器（无运营鉴权，依赖签名校验）
type Handler struct {
	*provider.Container
}

// New 创建回调处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// StripeTransfer Stripe 转账事件回调
func (h *Handler) StripeTransfer(c *gin.Context) {
	log := handlershared.RequestLog(c)
	if h.StripeRail == nil || h.SettlementService == nil {
		handlershared.RespondErrorWithMsg(c, response.CodeNotFound, "stripe rail not configured", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		handlershared.RespondErrorWithMsg(c, response.CodeBadRequest, "read body failed", err)
		return
	}
	event, err := h.StripeRail.ParseWebhook(flattenHeaders(c.Request.Header), body, time.Now())
	if err != nil {
		log.Warnw("rail_webhook_rejected", "provider", "stripe", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"received": false})
		return
	}
	if event.TransferID == "" {
		log.Infow("rail_webhook_ignored", "event_id", event.EventID, "event_type", event.EventType)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	payout, duplicate, err := h.SettlementService.ReconcileRailEvent(c.Request.Context(), *event)
	if err != nil {
		log.Errorw("rail_webhook_reconcile_failed", "event_id", event.EventID, "transfer_id", event.TransferID, "error", err)
		// 非 2xx 让渠道稍后重投
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrValidation) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"received": false})
		return
	}
	fields := []interface{}{"event_id", event.EventID, "event_type", event.EventType, "duplicate", duplicate}
	if payout != nil {
		fields = append(fields, "payout_id", payout.ID, "payout_status", payout.Status)
	}
	log.Infow("rail_webhook_processed", fields...)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func flattenHeaders(header http.Header) map[string]string {
	headers := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		headers[strings.ToLower(key)] = values[0]
	}
	return headers
}
