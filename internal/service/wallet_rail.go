package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vendorledger/internal/constants"
)

const walletTransferPrefix = "wallet:"

// WalletRail 将打款净额记入商家关联客户的钱包
type WalletRail struct {
	wallets *WalletService
}

// NewWalletRail 创建钱包打款渠道
func NewWalletRail(wallets *WalletService) *WalletRail {
	return &WalletRail{wallets: wallets}
}

// CreateTransfer 入账即到账；打款幂等键作为钱包流水幂等键，重复调用返回同一流水
func (r *WalletRail) CreateTransfer(ctx context.Context, input RailTransferInput) (*RailTransferResult, error) {
	if strings.TrimSpace(input.Destination) == "" {
		return nil, fmt.Errorf("%w: wallet customer is required", ErrRailPermanent)
	}
	wallet, err := r.wallets.EnsureWallet(ctx, input.Destination, input.Currency)
	if err != nil {
		return nil, mapWalletRailError(err)
	}
	if _, err := r.wallets.Credit(ctx, WalletMutationInput{
		WalletID:       wallet.ID,
		Amount:         input.Amount,
		Reason:         "vendor payout " + input.PayoutNo,
		ReferenceType:  constants.WalletReferencePayout,
		ReferenceID:    input.PayoutNo,
		IdempotencyKey: input.IdempotencyKey,
	}); err != nil {
		return nil, mapWalletRailError(err)
	}
	return &RailTransferResult{
		TransferID: walletTransferPrefix + input.IdempotencyKey,
		Status:     constants.RailTransferStatusPaid,
	}, nil
}

// GetTransferStatus 流水存在即已到账
func (r *WalletRail) GetTransferStatus(ctx context.Context, transferID string) (string, error) {
	key := strings.TrimPrefix(strings.TrimSpace(transferID), walletTransferPrefix)
	txn, err := r.wallets.GetTransactionByIdempotencyKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRailTransient, err)
	}
	if txn == nil {
		return constants.RailTransferStatusFailed, nil
	}
	return constants.RailTransferStatusPaid, nil
}

func mapWalletRailError(err error) error {
	if errors.Is(err, ErrConcurrencyConflict) {
		return fmt.Errorf("%w: %v", ErrRailTransient, err)
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrRailPermanent, err)
	}
	return fmt.Errorf("%w: %v", ErrRailTransient, err)
}
