package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"

	"gorm.io/gorm"
)

// WalletService 钱包账本服务
type WalletService struct {
	walletRepo         repository.WalletRepository
	maxConflictRetries int
	staleHoldAge       time.Duration
}

// WalletMutationInput 钱包变动输入，Amount 为正数（Adjust 为带符号）
type WalletMutationInput struct {
	WalletID       uint
	Amount         int64
	Reason         string
	ReferenceType  string
	ReferenceID    string
	IdempotencyKey string
}

// WalletHoldInput 冻结输入
type WalletHoldInput struct {
	WalletID       uint
	Amount         int64
	Reason         string
	Reference      string
	IdempotencyKey string
	ExpiresAt      *time.Time
}

// WalletBalanceReport 余额与流水重放核对结果
type WalletBalanceReport struct {
	WalletID           uint  `json:"wallet_id"`
	Balance            int64 `json:"balance"`
	LedgerSum          int64 `json:"ledger_sum"`
	TransactionCount   int   `json:"transaction_count"`
	Consistent         bool  `json:"consistent"`
	FirstMismatchTxnID *uint `json:"first_mismatch_txn_id,omitempty"`
}

// walletOp 一次余额变动
type walletOp struct {
	walletID       uint
	txnType        string
	delta          int64
	outflow        bool
	referenceType  string
	referenceID    string
	idempotencyKey string
	reason         string
	holdID         *uint
}

// NewWalletService 创建钱包服务
func NewWalletService(walletRepo repository.WalletRepository, maxConflictRetries int, staleHoldAge time.Duration) *WalletService {
	if maxConflictRetries < 0 {
		maxConflictRetries = 0
	}
	return &WalletService{
		walletRepo:         walletRepo,
		maxConflictRetries: maxConflictRetries,
		staleHoldAge:       staleHoldAge,
	}
}

// GetWallet 获取钱包
func (s *WalletService) GetWallet(id uint) (*models.Wallet, error) {
	wallet, err := s.walletRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, ErrWalletNotFound
	}
	return wallet, nil
}

// EnsureWallet 获取客户指定币种钱包（不存在时自动创建）
func (s *WalletService) EnsureWallet(ctx context.Context, customerID, currency string) (*models.Wallet, error) {
	customerID = strings.TrimSpace(customerID)
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if customerID == "" || currency == "" {
		return nil, fmt.Errorf("%w: customer_id and currency are required", ErrValidation)
	}
	wallet, err := s.walletRepo.GetByCustomer(customerID, currency)
	if err != nil {
		return nil, err
	}
	if wallet != nil {
		return wallet, nil
	}
	now := time.Now()
	wallet = &models.Wallet{
		CustomerID: customerID,
		Currency:   currency,
		Balance:    0,
		Version:    1,
		Status:     constants.WalletStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.walletRepo.Create(wallet); err != nil {
		if isUniqueViolation(err) {
			return s.walletRepo.GetByCustomer(customerID, currency)
		}
		return nil, err
	}
	return wallet, nil
}

// ListTransactions 查询钱包流水
func (s *WalletService) ListTransactions(filter repository.WalletTransactionListFilter) ([]models.WalletTransaction, int64, error) {
	return s.walletRepo.ListTransactions(filter)
}

// GetTransactionByIdempotencyKey 按幂等键获取流水，不存在时返回 nil
func (s *WalletService) GetTransactionByIdempotencyKey(key string) (*models.WalletTransaction, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	return s.walletRepo.GetTransactionByIdempotencyKey(key)
}

// Credit 入账，active 与 frozen 均允许
func (s *WalletService) Credit(ctx context.Context, input WalletMutationInput) (*models.WalletTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrWalletInvalidAmount
	}
	return s.mutate(newWalletOp(constants.WalletTxnTypeCredit, input.Amount, false, input))
}

// Refund 退回入账（补偿扣款），active 与 frozen 均允许
func (s *WalletService) Refund(ctx context.Context, input WalletMutationInput) (*models.WalletTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrWalletInvalidAmount
	}
	return s.mutate(newWalletOp(constants.WalletTxnTypeRefund, input.Amount, false, input))
}

// Debit 扣款，余额不足返回 ErrInsufficientBalance
func (s *WalletService) Debit(ctx context.Context, input WalletMutationInput) (*models.WalletTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrWalletInvalidAmount
	}
	return s.mutate(newWalletOp(constants.WalletTxnTypeDebit, -input.Amount, true, input))
}

// Adjust 管理员带符号调整，扣减同样不得透支
func (s *WalletService) Adjust(ctx context.Context, input WalletMutationInput) (*models.WalletTransaction, error) {
	if input.Amount == 0 {
		return nil, fmt.Errorf("%w: adjustment must not be zero", ErrValidation)
	}
	if input.ReferenceType == "" {
		input.ReferenceType = constants.WalletReferenceManual
	}
	return s.mutate(newWalletOp(constants.WalletTxnTypeAdjustment, input.Amount, input.Amount < 0, input))
}

// CreditInTx 在外部事务内入账（账本副作用使用，冲突不在此重试）
func (s *WalletService) CreditInTx(tx *gorm.DB, input WalletMutationInput) (*models.WalletTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrWalletInvalidAmount
	}
	return s.applyInTx(s.walletRepo.WithTx(tx), newWalletOp(constants.WalletTxnTypeCredit, input.Amount, false, input), time.Now())
}

// DebitInTx 在外部事务内扣款
func (s *WalletService) DebitInTx(tx *gorm.DB, input WalletMutationInput) (*models.WalletTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrWalletInvalidAmount
	}
	return s.applyInTx(s.walletRepo.WithTx(tx), newWalletOp(constants.WalletTxnTypeDebit, -input.Amount, true, input), time.Now())
}

// Hold 冻结资金：追加负向 hold 流水并创建冻结单，返回流水（HoldID 指向冻结单）
func (s *WalletService) Hold(ctx context.Context, input WalletHoldInput) (*models.WalletTransaction, error) {
	if input.Amount <= 0 {
		return nil, ErrWalletInvalidAmount
	}
	op := walletOp{
		walletID:       input.WalletID,
		txnType:        constants.WalletTxnTypeHold,
		delta:          -input.Amount,
		outflow:        true,
		referenceType:  constants.WalletReferenceHold,
		referenceID:    strings.TrimSpace(input.Reference),
		idempotencyKey: strings.TrimSpace(input.IdempotencyKey),
		reason:         strings.TrimSpace(input.Reason),
	}
	return s.withRetry(func() (*models.WalletTransaction, error) {
		var result *models.WalletTransaction
		err := s.walletRepo.Transaction(func(tx *gorm.DB) error {
			repo := s.walletRepo.WithTx(tx)
			if existing, err := repo.GetTransactionByIdempotencyKey(op.idempotencyKey); err != nil || existing != nil {
				result = existing
				return err
			}
			now := time.Now()
			hold := &models.WalletHold{
				WalletID:  input.WalletID,
				Amount:    input.Amount,
				Status:    constants.WalletHoldStatusActive,
				Reference: op.referenceID,
				ExpiresAt: input.ExpiresAt,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := repo.CreateHold(hold); err != nil {
				return err
			}
			holdID := hold.ID
			op.holdID = &holdID
			txn, err := s.applyInTx(repo, op, now)
			if err != nil {
				return err
			}
			if err := repo.SetHoldTransaction(hold.ID, txn.ID); err != nil {
				return err
			}
			result = txn
			return nil
		})
		return s.resolveDuplicate(op.idempotencyKey, result, err)
	})
}

// Release 解冻：追加正向 release 流水并结束冻结单；重复调用返回同一流水
func (s *WalletService) Release(ctx context.Context, holdID uint, reason string) (*models.WalletTransaction, error) {
	return s.withRetry(func() (*models.WalletTransaction, error) {
		var result *models.WalletTransaction
		err := s.walletRepo.Transaction(func(tx *gorm.DB) error {
			repo := s.walletRepo.WithTx(tx)
			hold, err := s.loadOpenHold(repo, holdID, constants.WalletHoldStatusReleased)
			if err != nil {
				return err
			}
			if hold.Status == constants.WalletHoldStatusReleased {
				result, err = repo.GetTransaction(derefUint(hold.SettleTransactionID))
				return err
			}
			now := time.Now()
			id := hold.ID
			txn, err := s.applyInTx(repo, walletOp{
				walletID:       hold.WalletID,
				txnType:        constants.WalletTxnTypeRelease,
				delta:          hold.Amount,
				referenceType:  constants.WalletReferenceHold,
				referenceID:    hold.Reference,
				idempotencyKey: fmt.Sprintf("hold:%d:release", hold.ID),
				reason:         strings.TrimSpace(reason),
				holdID:         &id,
			}, now)
			if err != nil {
				return err
			}
			ok, err := repo.SettleHold(hold.ID, constants.WalletHoldStatusReleased, txn.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConcurrencyConflict
			}
			result = txn
			return nil
		})
		return result, err
	})
}

// CaptureHold 确认扣款：解冻后立即扣款，两条流水同事务写入，返回扣款流水
func (s *WalletService) CaptureHold(ctx context.Context, holdID uint, reason string) (*models.WalletTransaction, error) {
	return s.withRetry(func() (*models.WalletTransaction, error) {
		var result *models.WalletTransaction
		err := s.walletRepo.Transaction(func(tx *gorm.DB) error {
			repo := s.walletRepo.WithTx(tx)
			hold, err := s.loadOpenHold(repo, holdID, constants.WalletHoldStatusCaptured)
			if err != nil {
				return err
			}
			if hold.Status == constants.WalletHoldStatusCaptured {
				result, err = repo.GetTransaction(derefUint(hold.SettleTransactionID))
				return err
			}
			now := time.Now()
			id := hold.ID
			wallet, err := repo.GetByID(hold.WalletID)
			if err != nil {
				return err
			}
			if err := checkWalletStatus(wallet, true); err != nil {
				return err
			}
			if _, err := s.applyInTx(repo, walletOp{
				walletID:       hold.WalletID,
				txnType:        constants.WalletTxnTypeRelease,
				delta:          hold.Amount,
				referenceType:  constants.WalletReferenceHold,
				referenceID:    hold.Reference,
				idempotencyKey: fmt.Sprintf("hold:%d:release", hold.ID),
				reason:         "capture",
				holdID:         &id,
			}, now); err != nil {
				return err
			}
			debit, err := s.applyInTx(repo, walletOp{
				walletID:       hold.WalletID,
				txnType:        constants.WalletTxnTypeDebit,
				delta:          -hold.Amount,
				outflow:        true,
				referenceType:  constants.WalletReferenceHold,
				referenceID:    hold.Reference,
				idempotencyKey: fmt.Sprintf("hold:%d:capture", hold.ID),
				reason:         strings.TrimSpace(reason),
				holdID:         &id,
			}, now)
			if err != nil {
				return err
			}
			ok, err := repo.SettleHold(hold.ID, constants.WalletHoldStatusCaptured, debit.ID, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrConcurrencyConflict
			}
			result = debit
			return nil
		})
		return result, err
	})
}

// Freeze 冻结钱包：禁止扣款与冻结资金，允许入账与解冻
func (s *WalletService) Freeze(ctx context.Context, walletID uint) (*models.Wallet, error) {
	return s.changeStatus(walletID, func(wallet *models.Wallet) (string, error) {
		switch wallet.Status {
		case constants.WalletStatusActive:
			return constants.WalletStatusFrozen, nil
		case constants.WalletStatusFrozen:
			return "", nil
		default:
			return "", ErrWalletClosed
		}
	})
}

// Unfreeze 解除冻结
func (s *WalletService) Unfreeze(ctx context.Context, walletID uint) (*models.Wallet, error) {
	return s.changeStatus(walletID, func(wallet *models.Wallet) (string, error) {
		switch wallet.Status {
		case constants.WalletStatusFrozen:
			return constants.WalletStatusActive, nil
		case constants.WalletStatusActive:
			return "", nil
		default:
			return "", ErrWalletClosed
		}
	})
}

// Close 关闭钱包（终态），要求余额为 0 且无未结束冻结单
func (s *WalletService) Close(ctx context.Context, walletID uint) (*models.Wallet, error) {
	return s.changeStatus(walletID, func(wallet *models.Wallet) (string, error) {
		if wallet.Status == constants.WalletStatusClosed {
			return "", nil
		}
		if wallet.Balance != 0 {
			return "", ErrWalletCloseNotAllowed
		}
		active, err := s.walletRepo.CountActiveHolds(wallet.ID)
		if err != nil {
			return "", err
		}
		if active > 0 {
			return "", ErrWalletCloseNotAllowed
		}
		return constants.WalletStatusClosed, nil
	})
}

// VerifyBalance 重放全部流水，核对 balance_after 链与当前余额
func (s *WalletService) VerifyBalance(ctx context.Context, walletID uint) (*WalletBalanceReport, error) {
	wallet, err := s.GetWallet(walletID)
	if err != nil {
		return nil, err
	}
	txns, err := s.walletRepo.ListAllTransactions(walletID)
	if err != nil {
		return nil, err
	}
	report := &WalletBalanceReport{
		WalletID:         wallet.ID,
		Balance:          wallet.Balance,
		TransactionCount: len(txns),
	}
	running := int64(0)
	for _, txn := range txns {
		running += txn.Amount
		if running != txn.BalanceAfter && report.FirstMismatchTxnID == nil {
			id := txn.ID
			report.FirstMismatchTxnID = &id
		}
	}
	report.LedgerSum = running
	report.Consistent = report.FirstMismatchTxnID == nil && running == wallet.Balance
	if !report.Consistent {
		logger.Errorw("wallet_balance_mismatch",
			"wallet_id", wallet.ID,
			"balance", wallet.Balance,
			"ledger_sum", running,
			"first_mismatch_txn_id", report.FirstMismatchTxnID,
		)
	}
	return report, nil
}

// ListStaleHolds 列出超过配置时长仍未结束的冻结单
func (s *WalletService) ListStaleHolds(ctx context.Context, now time.Time, limit int) ([]models.WalletHold, error) {
	if now.IsZero() {
		now = time.Now()
	}
	return s.walletRepo.ListStaleHolds(now.Add(-s.staleHoldAge), limit)
}

// StaleHoldAge 返回滞留冻结单判定时长
func (s *WalletService) StaleHoldAge() time.Duration {
	return s.staleHoldAge
}

func newWalletOp(txnType string, delta int64, outflow bool, input WalletMutationInput) walletOp {
	return walletOp{
		walletID:       input.WalletID,
		txnType:        txnType,
		delta:          delta,
		outflow:        outflow,
		referenceType:  strings.TrimSpace(input.ReferenceType),
		referenceID:    strings.TrimSpace(input.ReferenceID),
		idempotencyKey: strings.TrimSpace(input.IdempotencyKey),
		reason:         strings.TrimSpace(input.Reason),
	}
}

func (s *WalletService) mutate(op walletOp) (*models.WalletTransaction, error) {
	return s.withRetry(func() (*models.WalletTransaction, error) {
		var result *models.WalletTransaction
		err := s.walletRepo.Transaction(func(tx *gorm.DB) error {
			txn, err := s.applyInTx(s.walletRepo.WithTx(tx), op, time.Now())
			if err != nil {
				return err
			}
			result = txn
			return nil
		})
		return s.resolveDuplicate(op.idempotencyKey, result, err)
	})
}

// withRetry 版本冲突时重放整个读-算-写，超过上限后返回 ErrConcurrencyConflict
func (s *WalletService) withRetry(fn func() (*models.WalletTransaction, error)) (*models.WalletTransaction, error) {
	for attempt := 0; ; attempt++ {
		txn, err := fn()
		if err == nil || !errors.Is(err, ErrConcurrencyConflict) || attempt >= s.maxConflictRetries {
			return txn, err
		}
		logger.Debugw("wallet_version_conflict_retry", "attempt", attempt+1)
	}
}

// resolveDuplicate 幂等键并发写入冲突时返回已存在的流水
func (s *WalletService) resolveDuplicate(key string, txn *models.WalletTransaction, err error) (*models.WalletTransaction, error) {
	if err == nil || key == "" || !isUniqueViolation(err) {
		return txn, err
	}
	existing, getErr := s.walletRepo.GetTransactionByIdempotencyKey(key)
	if getErr != nil {
		return nil, getErr
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateTransaction, key)
	}
	logger.Infow("wallet_transaction_duplicate", "wallet_id", existing.WalletID, "idempotency_key", key)
	return existing, nil
}

// applyInTx 校验状态与余额，CAS 更新余额并追加流水
func (s *WalletService) applyInTx(repo *repository.GormWalletRepository, op walletOp, now time.Time) (*models.WalletTransaction, error) {
	if op.walletID == 0 {
		return nil, ErrWalletNotFound
	}
	if op.idempotencyKey != "" {
		existing, err := repo.GetTransactionByIdempotencyKey(op.idempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			if existing.WalletID != op.walletID || existing.Type != op.txnType {
				return nil, fmt.Errorf("%w: idempotency key %s reused", ErrValidation, op.idempotencyKey)
			}
			return existing, nil
		}
	}
	wallet, err := repo.GetByID(op.walletID)
	if err != nil {
		return nil, err
	}
	if err := checkWalletStatus(wallet, op.outflow); err != nil {
		return nil, err
	}
	after := wallet.Balance + op.delta
	if after < 0 {
		return nil, fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientBalance, wallet.Balance, -op.delta)
	}
	ok, err := repo.UpdateBalanceCAS(wallet.ID, wallet.Version, after, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrencyConflict
	}
	txn := &models.WalletTransaction{
		WalletID:      wallet.ID,
		Type:          op.txnType,
		Amount:        op.delta,
		BalanceAfter:  after,
		ReferenceType: op.referenceType,
		ReferenceID:   op.referenceID,
		HoldID:        op.holdID,
		Reason:        op.reason,
		CreatedAt:     now,
	}
	if op.idempotencyKey != "" {
		key := op.idempotencyKey
		txn.IdempotencyKey = &key
	}
	if err := repo.CreateTransaction(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *WalletService) loadOpenHold(repo *repository.GormWalletRepository, holdID uint, idempotentStatus string) (*models.WalletHold, error) {
	hold, err := repo.GetHold(holdID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, ErrWalletHoldNotFound
	}
	if hold.Status == constants.WalletHoldStatusActive || hold.Status == idempotentStatus {
		return hold, nil
	}
	return nil, ErrWalletHoldSettled
}

func (s *WalletService) changeStatus(walletID uint, next func(wallet *models.Wallet) (string, error)) (*models.Wallet, error) {
	for attempt := 0; ; attempt++ {
		wallet, err := s.GetWallet(walletID)
		if err != nil {
			return nil, err
		}
		status, err := next(wallet)
		if err != nil {
			return nil, err
		}
		if status == "" {
			return wallet, nil
		}
		ok, err := s.walletRepo.UpdateStatusCAS(wallet.ID, wallet.Version, status, time.Now())
		if err != nil {
			return nil, err
		}
		if ok {
			logger.Infow("wallet_status_changed", "wallet_id", wallet.ID, "from", wallet.Status, "to", status)
			return s.GetWallet(walletID)
		}
		if attempt >= s.maxConflictRetries {
			return nil, ErrConcurrencyConflict
		}
	}
}

// checkWalletStatus closed 禁止一切变动；frozen 仅禁止资金流出
func checkWalletStatus(wallet *models.Wallet, outflow bool) error {
	if wallet == nil {
		return ErrWalletNotFound
	}
	switch wallet.Status {
	case constants.WalletStatusActive:
		return nil
	case constants.WalletStatusFrozen:
		if outflow {
			return ErrWalletFrozen
		}
		return nil
	case constants.WalletStatusClosed:
		return ErrWalletClosed
	default:
		return ErrWalletStatusInvalid
	}
}

func derefUint(v *uint) uint {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
