package shared

import (
	"errors"

	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok && id != "" {
			return logger.SW("request_id", id)
		}
	}
	return logger.S()
}

// RespondErrorWithMsg 返回自定义消息错误响应，有原始错误时记录日志
func RespondErrorWithMsg(c *gin.Context, code int, msg string, err error) {
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", code,
			"message", msg,
			"error", err,
		)
	}
	response.Error(c, code, msg)
}

// RespondServiceError 按错误分类映射业务码；带状态的错误把当前打款单/流水一并返回
func RespondServiceError(c *gin.Context, err error) {
	code := ErrorCode(err)
	var data interface{}
	var payoutErr *service.PayoutStateError
	var txnErr *service.TransactionStateError
	switch {
	case errors.As(err, &payoutErr) && payoutErr.Payout != nil:
		data = gin.H{"payout": payoutErr.Payout}
	case errors.As(err, &txnErr) && txnErr.Transaction != nil:
		data = gin.H{"transaction": txnErr.Transaction}
	}
	if code >= response.CodeInternal {
		RequestLog(c).Errorw("handler_error", "code", code, "error", err)
	} else {
		RequestLog(c).Warnw("handler_rejected", "code", code, "error", err)
	}
	response.ErrorWithData(c, code, err.Error(), data)
}

// ErrorCode 错误分类到业务码
func ErrorCode(err error) int {
	switch {
	case err == nil:
		return response.CodeOK
	case errors.Is(err, service.ErrNotFound):
		return response.CodeNotFound
	case errors.Is(err, service.ErrConcurrencyConflict):
		return response.CodeConflict
	case errors.Is(err, service.ErrInsufficientBalance), errors.Is(err, service.ErrValidation):
		return response.CodeBadRequest
	case errors.Is(err, service.ErrRailTransient), errors.Is(err, service.ErrRailPermanent):
		return response.CodeBadGateway
	default:
		return response.CodeInternal
	}
}
