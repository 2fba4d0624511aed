package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
)

// WalletPaymentInput 钱包支付输入
type WalletPaymentInput struct {
	WalletID  uint
	Amount    int64
	OrderID   string
	Reference string
	// UseHold 为 true 时先冻结，finalize 成功后再确认扣款
	UseHold bool
}

// WalletPaymentResult 钱包支付结果
type WalletPaymentResult struct {
	Transaction *models.WalletTransaction
	Compensated bool
}

// WalletPaymentFinalizer 下游确认步骤（如订单落库），失败将触发补偿
type WalletPaymentFinalizer func(ctx context.Context, txn *models.WalletTransaction) error

type sagaStep struct {
	name       string
	compensate func(ctx context.Context) error
}

// WalletPaymentSaga 钱包支付编排：每个正向步骤登记命名补偿，失败时逆序执行
type WalletPaymentSaga struct {
	wallets *WalletService
}

// NewWalletPaymentSaga 创建钱包支付编排
func NewWalletPaymentSaga(wallets *WalletService) *WalletPaymentSaga {
	return &WalletPaymentSaga{wallets: wallets}
}

// Process 执行钱包支付
func (s *WalletPaymentSaga) Process(ctx context.Context, input WalletPaymentInput, finalize WalletPaymentFinalizer) (*WalletPaymentResult, error) {
	orderID := strings.TrimSpace(input.OrderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order_id is required", ErrValidation)
	}
	if input.Amount <= 0 {
		return nil, ErrWalletInvalidAmount
	}
	reference := strings.TrimSpace(input.Reference)
	if reference == "" {
		reference = orderID
	}

	// 已补偿的订单不再重放正向步骤，否则幂等键会返回旧扣款而资金已退回
	if err := s.ensureNotCompensated(orderID, input.UseHold); err != nil {
		return nil, err
	}

	var steps []sagaStep
	var charged *models.WalletTransaction

	if input.UseHold {
		holdTxn, err := s.wallets.Hold(ctx, WalletHoldInput{
			WalletID:       input.WalletID,
			Amount:         input.Amount,
			Reason:         "order payment",
			Reference:      reference,
			IdempotencyKey: holdKey(orderID),
		})
		if err != nil {
			return nil, err
		}
		holdID := derefUint(holdTxn.HoldID)
		steps = append(steps, sagaStep{
			name: "release_hold",
			compensate: func(ctx context.Context) error {
				_, err := s.wallets.Release(ctx, holdID, "order payment compensation")
				return err
			},
		})
		charged = holdTxn
	} else {
		debitTxn, err := s.wallets.Debit(ctx, WalletMutationInput{
			WalletID:       input.WalletID,
			Amount:         input.Amount,
			Reason:         "order payment",
			ReferenceType:  constants.WalletReferenceOrder,
			ReferenceID:    orderID,
			IdempotencyKey: debitKey(orderID),
		})
		if err != nil {
			return nil, err
		}
		steps = append(steps, sagaStep{
			name: "refund_debit",
			compensate: func(ctx context.Context) error {
				_, err := s.wallets.Refund(ctx, WalletMutationInput{
					WalletID:       input.WalletID,
					Amount:         input.Amount,
					Reason:         "order payment compensation",
					ReferenceType:  constants.WalletReferenceOrder,
					ReferenceID:    orderID,
					IdempotencyKey: refundKey(orderID),
				})
				return err
			},
		})
		charged = debitTxn
	}

	if finalize != nil {
		if err := finalize(ctx, charged); err != nil {
			if compErr := s.compensate(ctx, orderID, steps); compErr != nil {
				return nil, errors.Join(err, compErr)
			}
			return &WalletPaymentResult{Transaction: charged, Compensated: true}, err
		}
	}

	if input.UseHold {
		captured, err := s.wallets.CaptureHold(ctx, derefUint(charged.HoldID), "order payment")
		if err != nil {
			if compErr := s.compensate(ctx, orderID, steps); compErr != nil {
				return nil, errors.Join(err, compErr)
			}
			return &WalletPaymentResult{Transaction: charged, Compensated: true}, err
		}
		charged = captured
	}
	return &WalletPaymentResult{Transaction: charged}, nil
}

func (s *WalletPaymentSaga) ensureNotCompensated(orderID string, useHold bool) error {
	var compensationKey string
	if useHold {
		holdTxn, err := s.wallets.GetTransactionByIdempotencyKey(holdKey(orderID))
		if err != nil {
			return err
		}
		if holdTxn == nil || holdTxn.HoldID == nil {
			return nil
		}
		compensationKey = fmt.Sprintf("hold:%d:release", *holdTxn.HoldID)
	} else {
		compensationKey = refundKey(orderID)
	}
	existing, err := s.wallets.GetTransactionByIdempotencyKey(compensationKey)
	if err != nil {
		return err
	}
	if existing != nil {
		logger.Warnw("wallet_saga_retry_after_compensation", "order_id", orderID, "compensation_key", compensationKey)
		return ErrWalletPaymentReversed
	}
	return nil
}

func holdKey(orderID string) string { return fmt.Sprintf("order:%s:hold", orderID) }
func debitKey(orderID string) string { return fmt.Sprintf("order:%s:debit", orderID) }
func refundKey(orderID string) string { return fmt.Sprintf("order:%s:refund", orderID) }

// compensate 逆序执行补偿，单步失败不阻断后续补偿
func (s *WalletPaymentSaga) compensate(ctx context.Context, orderID string, steps []sagaStep) error {
	var errs []error
	for i := len(steps) - 1; i >= 0; i-- {
		step := steps[i]
		if err := step.compensate(ctx); err != nil {
			logger.Errorw("wallet_saga_compensation_failed",
				"order_id", orderID,
				"step", step.name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
			continue
		}
		logger.Infow("wallet_saga_compensated", "order_id", orderID, "step", step.name)
	}
	return errors.Join(errs...)
}
