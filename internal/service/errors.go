package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vendorledger/internal/models"
)

// 错误分类
var (
	ErrValidation           = errors.New("validation error")
	ErrNotFound             = errors.New("not found")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrRailTransient        = errors.New("payment rail transient error")
	ErrRailPermanent        = errors.New("payment rail permanent error")
	ErrConcurrencyConflict  = errors.New("concurrency conflict")
)

// 规则与佣金
var (
	ErrRuleInvalid        = fmt.Errorf("%w: commission rule invalid", ErrValidation)
	ErrRuleNotFound       = fmt.Errorf("%w: commission rule", ErrNotFound)
	ErrSaleInvalid        = fmt.Errorf("%w: sale event invalid", ErrValidation)
	ErrAmountInvalid      = fmt.Errorf("%w: amount invalid", ErrValidation)
	ErrTransactionMissing = fmt.Errorf("%w: commission transaction", ErrNotFound)
	ErrRefundExceeded     = fmt.Errorf("%w: refund exceeds remaining refundable amount", ErrValidation)
	ErrReferenceMismatch  = fmt.Errorf("%w: referenced transaction does not belong to order", ErrValidation)
	ErrTransactionState   = fmt.Errorf("%w: commission transaction status does not allow this action", ErrValidation)
)

// 打款
var (
	ErrPayoutNotFound         = fmt.Errorf("%w: payout", ErrNotFound)
	ErrPayoutStatusInvalid    = fmt.Errorf("%w: payout status does not allow this action", ErrValidation)
	ErrPayoutApprovalRequired = fmt.Errorf("%w: payout requires approval", ErrValidation)
	ErrPayoutOnHold           = fmt.Errorf("%w: payout is on hold", ErrValidation)
	ErrVendorProfileMissing   = fmt.Errorf("%w: vendor payout profile", ErrNotFound)
	ErrRailUnavailable        = fmt.Errorf("%w: payout method has no rail", ErrValidation)
	ErrBatchInProgress        = fmt.Errorf("%w: payout batch already running", ErrConcurrencyConflict)
)

// 钱包
var (
	ErrWalletNotFound        = fmt.Errorf("%w: wallet", ErrNotFound)
	ErrWalletHoldNotFound    = fmt.Errorf("%w: wallet hold", ErrNotFound)
	ErrWalletInvalidAmount   = fmt.Errorf("%w: wallet amount must be positive", ErrValidation)
	ErrWalletFrozen          = fmt.Errorf("%w: wallet is frozen", ErrValidation)
	ErrWalletClosed          = fmt.Errorf("%w: wallet is closed", ErrValidation)
	ErrWalletCloseNotAllowed = fmt.Errorf("%w: wallet has balance or active holds", ErrValidation)
	ErrWalletHoldSettled     = fmt.Errorf("%w: wallet hold already settled", ErrValidation)
	ErrWalletStatusInvalid   = fmt.Errorf("%w: wallet status transition invalid", ErrValidation)
	ErrWalletPaymentReversed = fmt.Errorf("%w: wallet payment for order already compensated", ErrValidation)
)

// PayoutStateError 携带打款单当前状态的错误
type PayoutStateError struct {
	Payout *models.Payout
	Err    error
}

func (e *PayoutStateError) Error() string {
	if e.Payout == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (payout=%s status=%s retry_count=%d)", e.Err.Error(), e.Payout.PayoutNo, e.Payout.Status, e.Payout.RetryCount)
}

func (e *PayoutStateError) Unwrap() error {
	return e.Err
}

func payoutStateError(payout *models.Payout, err error) error {
	if err == nil {
		return nil
	}
	return &PayoutStateError{Payout: payout, Err: err}
}

// TransactionStateError 携带佣金流水当前状态的错误
type TransactionStateError struct {
	Transaction *models.CommissionTransaction
	Err         error
}

func (e *TransactionStateError) Error() string {
	if e.Transaction == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s (transaction=%d status=%s payout_status=%s)", e.Err.Error(), e.Transaction.ID, e.Transaction.Status, e.Transaction.PayoutStatus)
}

func (e *TransactionStateError) Unwrap() error {
	return e.Err
}

func transactionStateError(txn *models.CommissionTransaction, err error) error {
	if err == nil {
		return nil
	}
	return &TransactionStateError{Transaction: txn, Err: err}
}

// isUniqueViolation 判断是否为唯一约束冲突
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
