package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/payment/stripe"
)

// StripeConnectRail 通过 Stripe Connect 转账打款
type StripeConnectRail struct {
	cfg *stripe.Config
}

// NewStripeConnectRail 创建 Stripe 打款渠道
func NewStripeConnectRail(cfg stripe.Config) *StripeConnectRail {
	return &StripeConnectRail{cfg: stripe.NormalizeConfig(cfg)}
}

// CreateTransfer 创建转账，打款单幂等键透传为 Idempotency-Key
func (r *StripeConnectRail) CreateTransfer(ctx context.Context, input RailTransferInput) (*RailTransferResult, error) {
	result, err := stripe.CreateTransfer(ctx, r.cfg, stripe.TransferInput{
		Amount:         input.Amount,
		Currency:       input.Currency,
		Destination:    input.Destination,
		IdempotencyKey: input.IdempotencyKey,
		TransferGroup:  input.PayoutNo,
		Description:    "payout " + input.PayoutNo,
		Metadata: map[string]string{
			"payout_id": strconv.FormatUint(uint64(input.PayoutID), 10),
			"payout_no": input.PayoutNo,
			"tenant_id": input.TenantID,
			"vendor_id": input.VendorID,
		},
	})
	if err != nil {
		return nil, mapStripeRailError(err)
	}
	return &RailTransferResult{TransferID: result.TransferID, Status: mapStripeTransferStatus(result.Status)}, nil
}

// GetTransferStatus 查询转账状态
func (r *StripeConnectRail) GetTransferStatus(ctx context.Context, transferID string) (string, error) {
	result, err := stripe.GetTransfer(ctx, r.cfg, transferID)
	if err != nil {
		return "", mapStripeRailError(err)
	}
	return mapStripeTransferStatus(result.Status), nil
}

// WebhookConfig 返回用于验签的配置
func (r *StripeConnectRail) WebhookConfig() *stripe.Config {
	return r.cfg
}

// ParseWebhook 验签并解析回调；非转账事件返回的 TransferID 为空
func (r *StripeConnectRail) ParseWebhook(headers map[string]string, body []byte, now time.Time) (*RailEventInput, error) {
	result, err := stripe.VerifyAndParseWebhook(r.cfg, headers, body, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	input := &RailEventInput{
		Provider:   constants.PayoutMethodStripeConnect,
		EventID:    result.EventID,
		EventType:  result.EventType,
		TransferID: result.TransferID,
		Reason:     result.FailureReason,
	}
	if result.TransferID != "" {
		input.Status = mapStripeTransferStatus(result.Status)
	}
	return input, nil
}

func mapStripeTransferStatus(status string) string {
	switch status {
	case stripe.TransferStatusPaid:
		return constants.RailTransferStatusPaid
	case stripe.TransferStatusFailed:
		return constants.RailTransferStatusFailed
	default:
		return constants.RailTransferStatusPending
	}
}

// mapStripeRailError 响应无法解析时转账结果未知，按可重试处理，重试沿用同一幂等键
func mapStripeRailError(err error) error {
	switch {
	case errors.Is(err, stripe.ErrTransient), errors.Is(err, stripe.ErrResponseInvalid):
		return fmt.Errorf("%w: %v", ErrRailTransient, err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrRailTransient, err)
	default:
		return fmt.Errorf("%w: %v", ErrRailPermanent, err)
	}
}
