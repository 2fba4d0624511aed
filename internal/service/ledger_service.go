package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SaleEvent 订单销售事件（每个逻辑销售至少投递一次）
type SaleEvent struct {
	TenantID      string
	OrderID       string
	LineItemID    string
	VendorID      string
	StoreID       string
	CategoryID    string
	ProductID     string
	CollectionIDs []string
	CurrencyCode  string
	Subtotal      int64
	Tax           int64
	Shipping      int64
	Total         int64
	OccurredAt    time.Time
}

// RefundInput 退款记账输入
type RefundInput struct {
	OrderID               string
	OriginalTransactionID uint
	Amount                int64
	Reference             string
	Reason                string
}

// AdjustmentInput 调整记账输入，Amount 为商家净额的带符号变动
type AdjustmentInput struct {
	OrderID                string
	ReferenceTransactionID uint
	Amount                 int64
	Reference              string
	Reason                 string
}

// ReversalInput 冲正输入
type ReversalInput struct {
	OrderID               string
	OriginalTransactionID uint
	Reason                string
}

// SideEffect 与佣金流水同事务执行的派生写入
type SideEffect func(tx *gorm.DB, txn *models.CommissionTransaction) error

// LedgerService 佣金账本写入服务
type LedgerService struct {
	commissionRepo repository.CommissionRepository
	payoutRepo     repository.PayoutRepository
	resolver       *RuleResolver
	fees           PlatformFeeSource
}

// NewLedgerService 创建账本服务
func NewLedgerService(
	commissionRepo repository.CommissionRepository,
	payoutRepo repository.PayoutRepository,
	resolver *RuleResolver,
	fees PlatformFeeSource,
) *LedgerService {
	return &LedgerService{
		commissionRepo: commissionRepo,
		payoutRepo:     payoutRepo,
		resolver:       resolver,
		fees:           fees,
	}
}

// Get 获取流水
func (s *LedgerService) Get(id uint) (*models.CommissionTransaction, error) {
	txn, err := s.commissionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, ErrTransactionMissing
	}
	return txn, nil
}

// List 查询流水
func (s *LedgerService) List(filter repository.CommissionTransactionListFilter) ([]models.CommissionTransaction, int64, error) {
	return s.commissionRepo.List(filter)
}

// SaleQuote 销售佣金试算结果
type SaleQuote struct {
	Rule    *models.CommissionRule `json:"rule"`
	Setting *models.TenantSetting  `json:"tenant_setting"`
	Split   CommissionSplit        `json:"split"`
}

// QuoteSale 试算销售佣金，不落库
func (s *LedgerService) QuoteSale(ctx context.Context, event SaleEvent) (*SaleQuote, error) {
	event = normalizeSaleEvent(event)
	if err := validateSaleEvent(event); err != nil {
		return nil, err
	}
	return s.quote(ctx, event)
}

func (s *LedgerService) quote(ctx context.Context, event SaleEvent) (*SaleQuote, error) {
	rule, err := s.resolver.Resolve(ctx, SaleContext{
		TenantID:      event.TenantID,
		VendorID:      event.VendorID,
		StoreID:       event.StoreID,
		CategoryID:    event.CategoryID,
		ProductID:     event.ProductID,
		CollectionIDs: event.CollectionIDs,
		CurrencyCode:  event.CurrencyCode,
		OrderSubtotal: event.Subtotal,
		OrderTotal:    event.Total,
		AtTime:        event.OccurredAt,
	})
	if err != nil {
		return nil, err
	}
	setting, err := s.fees.GetTenantSetting(ctx, event.TenantID)
	if err != nil {
		return nil, err
	}
	split, err := ComputeCommission(rule, CommissionAmounts{
		Subtotal: event.Subtotal,
		Tax:      event.Tax,
		Shipping: event.Shipping,
		Total:    event.Total,
	}, setting.PlatformFeeRate)
	if err != nil {
		return nil, err
	}
	return &SaleQuote{Rule: rule, Setting: setting, Split: split}, nil
}

// RecordSale 记录销售佣金；相同订单行重复投递返回已有流水，副作用不重复执行
func (s *LedgerService) RecordSale(ctx context.Context, event SaleEvent, effects ...SideEffect) (*models.CommissionTransaction, error) {
	event = normalizeSaleEvent(event)
	if err := validateSaleEvent(event); err != nil {
		return nil, err
	}
	key := saleIdempotencyKey(event.OrderID, event.LineItemID)
	existing, err := s.commissionRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.TenantID != event.TenantID || existing.VendorID != event.VendorID {
			return nil, fmt.Errorf("%w: idempotency key %s belongs to another vendor", ErrSaleInvalid, key)
		}
		return existing, nil
	}

	quote, err := s.quote(ctx, event)
	if err != nil {
		return nil, err
	}
	rule, setting, split := quote.Rule, quote.Setting, quote.Split
	if split.Clamped {
		logger.Warnw("commission_amount_clamped",
			"tenant_id", event.TenantID,
			"order_id", event.OrderID,
			"line_item_id", event.LineItemID,
			"requested_commission", split.RequestedCommission,
			"commission_amount", split.CommissionAmount,
			"platform_fee_amount", split.PlatformFeeAmount,
			"order_total", event.Total,
		)
	}

	now := time.Now()
	txn := &models.CommissionTransaction{
		TenantID:          event.TenantID,
		OrderID:           event.OrderID,
		VendorID:          event.VendorID,
		StoreID:           event.StoreID,
		CurrencyCode:      event.CurrencyCode,
		OrderSubtotal:     event.Subtotal,
		OrderTax:          event.Tax,
		OrderShipping:     event.Shipping,
		OrderTotal:        event.Total,
		CommissionRate:    split.CommissionRate,
		CommissionAmount:  split.CommissionAmount,
		PlatformFeeAmount: split.PlatformFeeAmount,
		NetAmount:         split.NetAmount,
		CommissionClamped: split.Clamped,
		PayoutStatus:      constants.CommissionPayoutStatusUnpaid,
		TransactionType:   constants.CommissionTxnTypeSale,
		IdempotencyKey:    key,
		OccurredAt:        event.OccurredAt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if event.LineItemID != "" {
		lineItemID := event.LineItemID
		txn.LineItemID = &lineItemID
	}
	if rule != nil {
		ruleID := rule.ID
		txn.CommissionRuleID = &ruleID
	}
	if setting.ApprovalHoldDays > 0 {
		approveAfter := event.OccurredAt.AddDate(0, 0, setting.ApprovalHoldDays)
		txn.Status = constants.CommissionStatusPending
		txn.ApproveAfter = &approveAfter
	} else {
		txn.Status = constants.CommissionStatusApproved
		txn.ApprovedAt = &now
	}

	return s.insert(txn, effects)
}

// RecordRefund 记录退款冲减；同一退款引用重复调用只产生一行
func (s *LedgerService) RecordRefund(ctx context.Context, input RefundInput) (*models.CommissionTransaction, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	input.Reference = strings.TrimSpace(input.Reference)
	if input.OrderID == "" || input.OriginalTransactionID == 0 {
		return nil, fmt.Errorf("%w: order_id and original_transaction_id are required", ErrValidation)
	}
	if input.Reference == "" {
		return nil, fmt.Errorf("%w: refund reference is required", ErrValidation)
	}
	if input.Amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive", ErrAmountInvalid)
	}
	original, err := s.loadSale(input.OrderID, input.OriginalTransactionID)
	if err != nil {
		return nil, err
	}
	key := refundIdempotencyKey(original.OrderID, original.LineItemKey(), input.Reference)
	existing, err := s.commissionRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if original.Status == constants.CommissionStatusReversed {
		return nil, transactionStateError(original, ErrTransactionState)
	}

	var created *models.CommissionTransaction
	err = s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		commissionRepo := s.commissionRepo.WithTx(tx)
		offsets, err := commissionRepo.SumOffsets(original.ID)
		if err != nil {
			return err
		}
		remaining := remainingOf(original, offsets)
		if input.Amount > remaining.OrderTotal {
			return fmt.Errorf("%w: requested %d, remaining %d", ErrRefundExceeded, input.Amount, remaining.OrderTotal)
		}
		commission, fee := proportionalShare(original, remaining, input.Amount)

		now := time.Now()
		row := offsetRow(original, now)
		row.TransactionType = constants.CommissionTxnTypeRefund
		row.OrderTotal = -input.Amount
		row.CommissionAmount = -commission
		row.PlatformFeeAmount = -fee
		row.NetAmount = -(input.Amount - commission - fee)
		row.Reference = input.Reference
		row.Reason = strings.TrimSpace(input.Reason)
		row.IdempotencyKey = key
		if err := commissionRepo.Create(row); err != nil {
			return err
		}
		if err := s.attachToPendingPayout(tx, original, row, now); err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return s.reloadByKey(key, err)
		}
		return nil, err
	}
	return created, nil
}

// RecordAdjustment 记录人工调整：净额变动 amount，佣金反向变动，订单总额不变
func (s *LedgerService) RecordAdjustment(ctx context.Context, input AdjustmentInput) (*models.CommissionTransaction, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	input.Reference = strings.TrimSpace(input.Reference)
	if input.OrderID == "" || input.ReferenceTransactionID == 0 {
		return nil, fmt.Errorf("%w: order_id and reference_transaction_id are required", ErrValidation)
	}
	if input.Reference == "" {
		return nil, fmt.Errorf("%w: adjustment reference is required", ErrValidation)
	}
	if input.Amount == 0 {
		return nil, fmt.Errorf("%w: adjustment amount must not be zero", ErrAmountInvalid)
	}
	original, err := s.loadSale(input.OrderID, input.ReferenceTransactionID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("adjustment:%s:%d:%s", original.OrderID, original.ID, input.Reference)
	existing, err := s.commissionRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	row := offsetRow(original, now)
	row.TransactionType = constants.CommissionTxnTypeAdjustment
	row.OrderTotal = 0
	row.CommissionAmount = -input.Amount
	row.PlatformFeeAmount = 0
	row.NetAmount = input.Amount
	row.Reference = input.Reference
	row.Reason = strings.TrimSpace(input.Reason)
	row.IdempotencyKey = key
	return s.insert(row, nil)
}

// RecordReversal 冲正销售剩余金额。
// 未结算且未入打款单的销售与冲正行一并置为 reversed；否则冲正行作为待扣回流水进入后续打款。
func (s *LedgerService) RecordReversal(ctx context.Context, input ReversalInput) (*models.CommissionTransaction, error) {
	input.OrderID = strings.TrimSpace(input.OrderID)
	if input.OrderID == "" || input.OriginalTransactionID == 0 {
		return nil, fmt.Errorf("%w: order_id and original_transaction_id are required", ErrValidation)
	}
	original, err := s.loadSale(input.OrderID, input.OriginalTransactionID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("reversal:%s:%s", original.OrderID, original.LineItemKey())
	existing, err := s.commissionRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var created *models.CommissionTransaction
	err = s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		commissionRepo := s.commissionRepo.WithTx(tx)
		current, err := commissionRepo.GetByID(original.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return ErrTransactionMissing
		}
		if current.Status == constants.CommissionStatusReversed {
			return transactionStateError(current, ErrTransactionState)
		}
		offsets, err := commissionRepo.SumOffsets(current.ID)
		if err != nil {
			return err
		}
		remaining := remainingOf(current, offsets)
		if remaining.OrderTotal == 0 && remaining.NetAmount == 0 {
			return transactionStateError(current, fmt.Errorf("%w: nothing left to reverse", ErrTransactionState))
		}
		link, err := s.payoutRepo.WithTx(tx).GetActiveLinkByTransactionID(current.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		row := offsetRow(current, now)
		row.TransactionType = constants.CommissionTxnTypeReversal
		row.OrderTotal = -remaining.OrderTotal
		row.CommissionAmount = -remaining.CommissionAmount
		row.PlatformFeeAmount = -remaining.PlatformFeeAmount
		row.NetAmount = -remaining.NetAmount
		row.Reason = strings.TrimSpace(input.Reason)
		row.IdempotencyKey = key

		cancelOut := link == nil &&
			current.PayoutStatus == constants.CommissionPayoutStatusUnpaid &&
			offsets == (repository.OffsetTotals{})
		if cancelOut {
			rows, err := commissionRepo.TransitionStatus(current.ID, current.Status, constants.CommissionStatusReversed, now)
			if err != nil {
				return err
			}
			if rows != 1 {
				return transactionStateError(current, ErrConcurrencyConflict)
			}
			row.Status = constants.CommissionStatusReversed
			row.ApprovedAt = nil
			row.ApproveAfter = nil
		}
		if err := commissionRepo.Create(row); err != nil {
			return err
		}
		created = row
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return s.reloadByKey(key, err)
		}
		return nil, err
	}
	return created, nil
}

// ApproveDueTransactions 审核到期的待确认流水
func (s *LedgerService) ApproveDueTransactions(now time.Time) (int64, error) {
	if now.IsZero() {
		now = time.Now()
	}
	return s.commissionRepo.ApproveDue(now)
}

// MarkDisputed 将未结算的已审核流水置为争议中，争议期间不进入打款
func (s *LedgerService) MarkDisputed(ctx context.Context, id uint) (*models.CommissionTransaction, error) {
	return s.transition(id, constants.CommissionStatusApproved, constants.CommissionStatusDisputed)
}

// ResolveDispute 争议解除，流水恢复为已审核
func (s *LedgerService) ResolveDispute(ctx context.Context, id uint) (*models.CommissionTransaction, error) {
	return s.transition(id, constants.CommissionStatusDisputed, constants.CommissionStatusApproved)
}

func (s *LedgerService) transition(id uint, from, to string) (*models.CommissionTransaction, error) {
	txn, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if txn.Status == to {
		return txn, nil
	}
	if txn.Status != from || txn.PayoutStatus != constants.CommissionPayoutStatusUnpaid {
		return nil, transactionStateError(txn, ErrTransactionState)
	}
	rows, err := s.commissionRepo.TransitionStatus(id, from, to, time.Now())
	if err != nil {
		return nil, err
	}
	if rows != 1 {
		return nil, transactionStateError(txn, ErrConcurrencyConflict)
	}
	return s.Get(id)
}

func (s *LedgerService) insert(txn *models.CommissionTransaction, effects []SideEffect) (*models.CommissionTransaction, error) {
	err := s.commissionRepo.Transaction(func(tx *gorm.DB) error {
		if err := s.commissionRepo.WithTx(tx).Create(txn); err != nil {
			return err
		}
		for _, effect := range effects {
			if effect == nil {
				continue
			}
			if err := effect(tx, txn); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isUniqueViolation(err) {
			return s.reloadByKey(txn.IdempotencyKey, err)
		}
		return nil, err
	}
	return txn, nil
}

// reloadByKey 幂等键并发冲突时返回已落库的记录
func (s *LedgerService) reloadByKey(key string, cause error) (*models.CommissionTransaction, error) {
	existing, err := s.commissionRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, cause
	}
	logger.Debugw("commission_transaction_duplicate", "idempotency_key", key, "transaction_id", existing.ID)
	return existing, nil
}

func (s *LedgerService) loadSale(orderID string, id uint) (*models.CommissionTransaction, error) {
	original, err := s.commissionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, ErrTransactionMissing
	}
	if original.TransactionType != constants.CommissionTxnTypeSale || original.OrderID != orderID {
		return nil, transactionStateError(original, ErrReferenceMismatch)
	}
	return original, nil
}

// attachToPendingPayout 原始销售已在待处理打款单中时，退款行随之计入同一打款单
func (s *LedgerService) attachToPendingPayout(tx *gorm.DB, original, row *models.CommissionTransaction, now time.Time) error {
	if row.Status != constants.CommissionStatusApproved {
		return nil
	}
	payoutRepo := s.payoutRepo.WithTx(tx)
	link, err := payoutRepo.GetActiveLinkByTransactionID(original.ID)
	if err != nil || link == nil {
		return err
	}
	payout, err := payoutRepo.GetByID(link.PayoutID)
	if err != nil || payout == nil {
		return err
	}
	if payout.Status != constants.PayoutStatusPending {
		return nil
	}
	rows, err := s.commissionRepo.WithTx(tx).MarkPendingPayout([]uint{row.ID}, now)
	if err != nil {
		return err
	}
	if rows != 1 {
		return transactionStateError(row, ErrConcurrencyConflict)
	}
	activeID := row.ID
	if err := payoutRepo.CreateLinks([]models.PayoutTransactionLink{{
		PayoutID:                payout.ID,
		CommissionTransactionID: row.ID,
		Amount:                  row.NetAmount,
		ActiveTransactionID:     &activeID,
		CreatedAt:               now,
	}}); err != nil {
		return err
	}
	ok, err := payoutRepo.ApplyAggregateDelta(payout.ID, payout.Version, aggregateDelta([]models.CommissionTransaction{*row}, now))
	if err != nil {
		return err
	}
	if !ok {
		return payoutStateError(payout, ErrConcurrencyConflict)
	}
	row.PayoutStatus = constants.CommissionPayoutStatusPendingPayout
	logger.Infow("commission_refund_attached_to_payout",
		"transaction_id", row.ID,
		"payout_id", payout.ID,
		"net_amount", row.NetAmount,
	)
	return nil
}

// offsetRow 以原始销售为模板构造冲减行
func offsetRow(original *models.CommissionTransaction, now time.Time) *models.CommissionTransaction {
	refID := original.ID
	row := &models.CommissionTransaction{
		TenantID:               original.TenantID,
		OrderID:                original.OrderID,
		LineItemID:             original.LineItemID,
		VendorID:               original.VendorID,
		StoreID:                original.StoreID,
		CommissionRuleID:       original.CommissionRuleID,
		CurrencyCode:           original.CurrencyCode,
		CommissionRate:         original.CommissionRate,
		PayoutStatus:           constants.CommissionPayoutStatusUnpaid,
		ReferenceTransactionID: &refID,
		OccurredAt:             now,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if original.Status == constants.CommissionStatusPending {
		row.Status = constants.CommissionStatusPending
		row.ApproveAfter = original.ApproveAfter
	} else {
		row.Status = constants.CommissionStatusApproved
		row.ApprovedAt = &now
	}
	return row
}

// remainingOf 原始销售扣除已有退款/冲正后的剩余
func remainingOf(original *models.CommissionTransaction, offsets repository.OffsetTotals) repository.OffsetTotals {
	return repository.OffsetTotals{
		OrderTotal:        original.OrderTotal + offsets.OrderTotal,
		CommissionAmount:  original.CommissionAmount + offsets.CommissionAmount,
		PlatformFeeAmount: original.PlatformFeeAmount + offsets.PlatformFeeAmount,
		NetAmount:         original.NetAmount + offsets.NetAmount,
	}
}

// proportionalShare 按退款金额占原订单比例拆分佣金与服务费；退完剩余时取精确余数
func proportionalShare(original *models.CommissionTransaction, remaining repository.OffsetTotals, amount int64) (commission, fee int64) {
	if amount == remaining.OrderTotal {
		return remaining.CommissionAmount, remaining.PlatformFeeAmount
	}
	if original.OrderTotal <= 0 {
		return 0, 0
	}
	ratio := decimal.NewFromInt(amount).Div(decimal.NewFromInt(original.OrderTotal))
	commission = roundHalfUp(decimal.NewFromInt(original.CommissionAmount).Mul(ratio))
	fee = roundHalfUp(decimal.NewFromInt(original.PlatformFeeAmount).Mul(ratio))
	commission = minInt64(commission, remaining.CommissionAmount)
	fee = minInt64(fee, remaining.PlatformFeeAmount)
	if commission+fee > amount {
		commission = amount - fee
	}
	return commission, fee
}

func normalizeSaleEvent(event SaleEvent) SaleEvent {
	event.TenantID = strings.TrimSpace(event.TenantID)
	event.OrderID = strings.TrimSpace(event.OrderID)
	event.LineItemID = strings.TrimSpace(event.LineItemID)
	event.VendorID = strings.TrimSpace(event.VendorID)
	event.StoreID = strings.TrimSpace(event.StoreID)
	event.CategoryID = strings.TrimSpace(event.CategoryID)
	event.ProductID = strings.TrimSpace(event.ProductID)
	event.CurrencyCode = strings.ToUpper(strings.TrimSpace(event.CurrencyCode))
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}

func validateSaleEvent(event SaleEvent) error {
	if event.TenantID == "" || event.OrderID == "" || event.VendorID == "" {
		return fmt.Errorf("%w: tenant_id, order_id and vendor_id are required", ErrSaleInvalid)
	}
	if event.CurrencyCode == "" {
		return fmt.Errorf("%w: currency_code is required", ErrSaleInvalid)
	}
	if event.Subtotal < 0 || event.Tax < 0 || event.Shipping < 0 || event.Total < 0 {
		return fmt.Errorf("%w: amounts must not be negative", ErrAmountInvalid)
	}
	return nil
}

func saleIdempotencyKey(orderID, lineItemID string) string {
	return fmt.Sprintf("sale:%s:%s", orderID, lineItemID)
}

func refundIdempotencyKey(orderID, lineItemID, reference string) string {
	return fmt.Sprintf("refund:%s:%s:%s", orderID, lineItemID, reference)
}
