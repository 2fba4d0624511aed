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
	"github.com/vendorledger/internal/queue"
	"github.com/vendorledger/internal/repository"

	"gorm.io/gorm"
)

// RailTransferInput 渠道转账输入
type RailTransferInput struct {
	PayoutID       uint
	PayoutNo       string
	TenantID       string
	VendorID       string
	Amount         int64
	Currency       string
	Destination    string
	IdempotencyKey string
}

// RailTransferResult 渠道转账结果，Status 取值见 constants.RailTransferStatus*
type RailTransferResult struct {
	TransferID string
	Status     string
}

// PayoutRail 打款渠道
type PayoutRail interface {
	CreateTransfer(ctx context.Context, input RailTransferInput) (*RailTransferResult, error)
	GetTransferStatus(ctx context.Context, transferID string) (string, error)
}

// NotificationSink 打款结果通知出口
type NotificationSink interface {
	NotifyPayout(ctx context.Context, payout *models.Payout, event string) error
}

// SettlementPolicy 结算重试策略
type SettlementPolicy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	RailTimeout time.Duration
}

// RailEventInput 已验签的渠道回调事件
type RailEventInput struct {
	Provider   string
	EventID    string
	EventType  string
	TransferID string
	Status     string
	Reason     string
}

// SettlementService 打款结算服务
type SettlementService struct {
	payoutRepo     repository.PayoutRepository
	commissionRepo repository.CommissionRepository
	railEventRepo  repository.RailEventRepository
	rails          map[string]PayoutRail
	notifier       NotificationSink
	queueClient    *queue.Client
	policy         SettlementPolicy
}

// NewSettlementService 创建结算服务，rails 以打款方式为键
func NewSettlementService(
	payoutRepo repository.PayoutRepository,
	commissionRepo repository.CommissionRepository,
	railEventRepo repository.RailEventRepository,
	rails map[string]PayoutRail,
	notifier NotificationSink,
	queueClient *queue.Client,
	policy SettlementPolicy,
) *SettlementService {
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 30 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = time.Hour
	}
	if policy.RailTimeout <= 0 {
		policy.RailTimeout = 15 * time.Second
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	if rails == nil {
		rails = map[string]PayoutRail{}
	}
	return &SettlementService{
		payoutRepo:     payoutRepo,
		commissionRepo: commissionRepo,
		railEventRepo:  railEventRepo,
		rails:          rails,
		notifier:       notifier,
		queueClient:    queueClient,
		policy:         policy,
	}
}

// SettlePayout 推进打款单结算。可重复调用：已有渠道转账ID时只查询状态，不再新建转账
func (s *SettlementService) SettlePayout(ctx context.Context, payoutID uint) (*models.Payout, error) {
	payout, err := s.getPayout(payoutID)
	if err != nil {
		return nil, err
	}
	switch payout.Status {
	case constants.PayoutStatusCompleted:
		return payout, nil
	case constants.PayoutStatusFailed, constants.PayoutStatusCancelled:
		return nil, payoutStateError(payout, ErrPayoutStatusInvalid)
	case constants.PayoutStatusOnHold:
		return nil, payoutStateError(payout, ErrPayoutOnHold)
	case constants.PayoutStatusPending:
		if payout.RequiresApproval && payout.ApprovedAt == nil {
			return nil, payoutStateError(payout, ErrPayoutApprovalRequired)
		}
		now := time.Now()
		payout, err = s.updatePayout(s.payoutRepo, payout, map[string]interface{}{
			"status":                constants.PayoutStatusProcessing,
			"processing_started_at": now,
			"updated_at":            now,
		})
		if err != nil {
			return nil, err
		}
	case constants.PayoutStatusProcessing:
	default:
		return nil, payoutStateError(payout, ErrPayoutStatusInvalid)
	}

	if payout.NetAmount <= 0 {
		return s.failAndReport(ctx, payout, fmt.Errorf("%w: net amount %d is not payable", ErrRailPermanent, payout.NetAmount))
	}
	rail := s.rails[payout.PaymentMethod]
	if rail == nil {
		return s.failAndReport(ctx, payout, fmt.Errorf("%w: %s", ErrRailUnavailable, payout.PaymentMethod))
	}

	result, railErr := s.submit(ctx, rail, payout)
	if railErr != nil {
		if isTransientRailError(railErr) {
			return s.handleTransient(ctx, payout, railErr)
		}
		return s.failAndReport(ctx, payout, railErr)
	}

	if result.TransferID != "" && result.TransferID != payout.StripeTransferID {
		payout, err = s.updatePayout(s.payoutRepo, payout, map[string]interface{}{
			"stripe_transfer_id": result.TransferID,
			"rail_status":        result.Status,
			"updated_at":         time.Now(),
		})
		if err != nil {
			return nil, err
		}
	}

	switch result.Status {
	case constants.RailTransferStatusPaid:
		return s.markCompleted(ctx, payout, result.Status)
	case constants.RailTransferStatusFailed:
		return s.failAndReport(ctx, payout, fmt.Errorf("%w: rail reported transfer %s failed", ErrRailPermanent, payout.StripeTransferID))
	default:
		if payout.RailStatus != result.Status {
			payout, err = s.updatePayout(s.payoutRepo, payout, map[string]interface{}{
				"rail_status": result.Status,
				"updated_at":  time.Now(),
			})
			if err != nil {
				return nil, err
			}
		}
		logger.Infow("payout_settle_awaiting_rail",
			"payout_id", payout.ID,
			"transfer_id", payout.StripeTransferID,
			"rail_status", result.Status,
		)
		return payout, nil
	}
}

// DispatchSettlement 队列可用时投递结算任务，否则同步结算
func (s *SettlementService) DispatchSettlement(ctx context.Context, payout *models.Payout) error {
	if payout == nil || payout.Status != constants.PayoutStatusPending {
		return nil
	}
	if payout.RequiresApproval && payout.ApprovedAt == nil {
		return nil
	}
	if s.queueClient.Enabled() {
		return s.queueClient.EnqueuePayoutSettle(queue.PayoutSettlePayload{PayoutID: payout.ID}, 0)
	}
	_, err := s.SettlePayout(ctx, payout.ID)
	return err
}

// FailPayout 运营手动将卡在处理中的打款单置为失败，重复调用结果一致
func (s *SettlementService) FailPayout(ctx context.Context, payoutID uint, operator, reason string) (*models.Payout, error) {
	payout, err := s.getPayout(payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == constants.PayoutStatusFailed {
		return payout, nil
	}
	if payout.Status != constants.PayoutStatusProcessing {
		return nil, payoutStateError(payout, ErrPayoutStatusInvalid)
	}
	failed, err := s.markFailed(ctx, payout, operatorReason(operator, reason))
	if err != nil {
		return nil, err
	}
	logger.Warnw("payout_failed_by_operator", "payout_id", payout.ID, "operator", operator, "reason", reason)
	return failed, nil
}

// ReconcileRailEvent 按事件ID去重后应用渠道回调，duplicate 表示事件已处理过
func (s *SettlementService) ReconcileRailEvent(ctx context.Context, input RailEventInput) (*models.Payout, bool, error) {
	input.EventID = strings.TrimSpace(input.EventID)
	if input.EventID == "" {
		return nil, false, fmt.Errorf("%w: event_id is required", ErrValidation)
	}
	existing, err := s.railEventRepo.GetByEventID(input.EventID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		logger.Infow("rail_event_duplicate", "event_id", input.EventID, "event_type", input.EventType)
		return nil, true, nil
	}

	payout, err := s.payoutRepo.GetByTransferID(input.TransferID)
	if err != nil {
		return nil, false, err
	}
	if payout != nil {
		payout, err = s.applyRailEvent(ctx, payout, input)
		if err != nil {
			return nil, false, err
		}
	} else {
		logger.Warnw("rail_event_unmatched", "event_id", input.EventID, "transfer_id", input.TransferID)
	}

	event := &models.RailEvent{
		Provider:   input.Provider,
		EventID:    input.EventID,
		EventType:  input.EventType,
		TransferID: input.TransferID,
		Status:     input.Status,
		CreatedAt:  time.Now(),
	}
	if payout != nil {
		id := payout.ID
		event.PayoutID = &id
	}
	if err := s.railEventRepo.Create(event); err != nil {
		if isUniqueViolation(err) {
			return payout, true, nil
		}
		return nil, false, err
	}
	return payout, false, nil
}

// RetryDueSettlements 重新驱动到期重试的打款单，返回处理数量
func (s *SettlementService) RetryDueSettlements(ctx context.Context, now time.Time, limit int) (int, error) {
	if now.IsZero() {
		now = time.Now()
	}
	payouts, err := s.payoutRepo.ListDueRetries(now, limit)
	if err != nil {
		return 0, err
	}
	for _, payout := range payouts {
		if _, err := s.SettlePayout(ctx, payout.ID); err != nil {
			logger.Warnw("payout_settle_retry_failed", "payout_id", payout.ID, "error", err)
		}
	}
	return len(payouts), nil
}

func (s *SettlementService) applyRailEvent(ctx context.Context, payout *models.Payout, input RailEventInput) (*models.Payout, error) {
	switch input.Status {
	case constants.RailTransferStatusPaid:
		if payout.Status == constants.PayoutStatusProcessing {
			return s.markCompleted(ctx, payout, input.Status)
		}
	case constants.RailTransferStatusFailed:
		if payout.Status == constants.PayoutStatusProcessing {
			reason := strings.TrimSpace(input.Reason)
			if reason == "" {
				reason = input.EventType
			}
			return s.markFailed(ctx, payout, reason)
		}
		if payout.Status == constants.PayoutStatusCompleted {
			logger.Errorw("rail_event_failed_after_completion",
				"payout_id", payout.ID,
				"event_id", input.EventID,
				"event_type", input.EventType,
			)
		}
	}
	return payout, nil
}

func (s *SettlementService) submit(ctx context.Context, rail PayoutRail, payout *models.Payout) (*RailTransferResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.policy.RailTimeout)
	defer cancel()

	if payout.StripeTransferID != "" {
		status, err := rail.GetTransferStatus(callCtx, payout.StripeTransferID)
		if err != nil {
			return nil, err
		}
		return &RailTransferResult{TransferID: payout.StripeTransferID, Status: status}, nil
	}
	return rail.CreateTransfer(callCtx, RailTransferInput{
		PayoutID:       payout.ID,
		PayoutNo:       payout.PayoutNo,
		TenantID:       payout.TenantID,
		VendorID:       payout.VendorID,
		Amount:         payout.NetAmount,
		Currency:       payout.CurrencyCode,
		Destination:    payout.RailAccountID,
		IdempotencyKey: payout.IdempotencyKey,
	})
}

func (s *SettlementService) handleTransient(ctx context.Context, payout *models.Payout, railErr error) (*models.Payout, error) {
	attempt := payout.RetryCount + 1
	if attempt > s.policy.MaxRetries {
		failed, err := s.markFailed(ctx, payout, fmt.Sprintf("retries exhausted: %v", railErr))
		if err != nil {
			return nil, err
		}
		return failed, payoutStateError(failed, fmt.Errorf("%w: retries exhausted: %v", ErrRailTransient, railErr))
	}
	now := time.Now()
	delay := s.backoffDelay(attempt)
	updated, err := s.updatePayout(s.payoutRepo, payout, map[string]interface{}{
		"retry_count":    attempt,
		"last_retry_at":  now,
		"next_retry_at":  now.Add(delay),
		"failure_reason": truncateReason(railErr.Error()),
		"updated_at":     now,
	})
	if err != nil {
		return nil, err
	}
	logger.Warnw("payout_settle_transient_failed",
		"payout_id", payout.ID,
		"payout_no", payout.PayoutNo,
		"retry_count", attempt,
		"next_retry_in", delay.String(),
		"error", railErr,
	)
	if err := s.queueClient.EnqueuePayoutSettle(queue.PayoutSettlePayload{PayoutID: payout.ID, Attempt: attempt}, delay); err != nil {
		logger.Warnw("payout_settle_enqueue_failed", "payout_id", payout.ID, "error", err)
	}
	return updated, nil
}

func (s *SettlementService) failAndReport(ctx context.Context, payout *models.Payout, cause error) (*models.Payout, error) {
	failed, err := s.markFailed(ctx, payout, cause.Error())
	if err != nil {
		return nil, err
	}
	if !errors.Is(cause, ErrRailPermanent) && !errors.Is(cause, ErrValidation) {
		cause = fmt.Errorf("%w: %v", ErrRailPermanent, cause)
	}
	return failed, payoutStateError(failed, cause)
}

func (s *SettlementService) markCompleted(ctx context.Context, payout *models.Payout, railStatus string) (*models.Payout, error) {
	now := time.Now()
	var updated *models.Payout
	err := s.payoutRepo.Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = s.updatePayout(s.payoutRepo.WithTx(tx), payout, map[string]interface{}{
			"status":                  constants.PayoutStatusCompleted,
			"rail_status":             railStatus,
			"processing_completed_at": now,
			"next_retry_at":           nil,
			"failure_reason":          "",
			"updated_at":              now,
		})
		if err != nil {
			return err
		}
		links, err := s.payoutRepo.WithTx(tx).ListActiveLinks(payout.ID)
		if err != nil {
			return err
		}
		ids := make([]uint, 0, len(links))
		for _, link := range links {
			ids = append(ids, link.CommissionTransactionID)
		}
		_, err = s.commissionRepo.WithTx(tx).MarkPaid(ids, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("payout_settle_completed",
		"payout_id", updated.ID,
		"payout_no", updated.PayoutNo,
		"transfer_id", updated.StripeTransferID,
		"net_amount", updated.NetAmount,
	)
	s.notify(ctx, updated, constants.PayoutEventCompleted)
	return updated, nil
}

func (s *SettlementService) markFailed(ctx context.Context, payout *models.Payout, reason string) (*models.Payout, error) {
	now := time.Now()
	var updated *models.Payout
	err := s.payoutRepo.Transaction(func(tx *gorm.DB) error {
		var err error
		updated, err = s.updatePayout(s.payoutRepo.WithTx(tx), payout, map[string]interface{}{
			"status":                  constants.PayoutStatusFailed,
			"failure_reason":          truncateReason(reason),
			"next_retry_at":           nil,
			"processing_completed_at": now,
			"updated_at":              now,
		})
		if err != nil {
			return err
		}
		return revertPayoutTransactions(tx, s.payoutRepo, s.commissionRepo, payout.ID, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Errorw("payout_settle_failed",
		"payout_id", updated.ID,
		"payout_no", updated.PayoutNo,
		"retry_count", updated.RetryCount,
		"reason", updated.FailureReason,
	)
	s.notify(ctx, updated, constants.PayoutEventFailed)
	return updated, nil
}

// updatePayout 按版本更新后重新读取；版本冲突时返回带当前状态的错误
func (s *SettlementService) updatePayout(repo repository.PayoutRepository, payout *models.Payout, updates map[string]interface{}) (*models.Payout, error) {
	ok, err := repo.UpdateWithVersion(payout.ID, payout.Version, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, getErr := repo.GetByID(payout.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			current = payout
		}
		return nil, payoutStateError(current, ErrConcurrencyConflict)
	}
	updated, err := repo.GetByID(payout.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrPayoutNotFound
	}
	return updated, nil
}

func (s *SettlementService) getPayout(id uint) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

func (s *SettlementService) notify(ctx context.Context, payout *models.Payout, event string) {
	if s.notifier == nil || payout == nil {
		return
	}
	if err := s.notifier.NotifyPayout(ctx, payout, event); err != nil {
		logger.Warnw("payout_notify_failed", "payout_id", payout.ID, "event", event, "error", err)
	}
}

// backoffDelay 第 n 次重试的等待时长 min(base*2^(n-1), max)
func (s *SettlementService) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := s.policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= s.policy.MaxDelay {
			return s.policy.MaxDelay
		}
	}
	if delay > s.policy.MaxDelay {
		return s.policy.MaxDelay
	}
	return delay
}

func isTransientRailError(err error) bool {
	return errors.Is(err, ErrRailTransient) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrConcurrencyConflict)
}

func truncateReason(reason string) string {
	reason = strings.TrimSpace(reason)
	if len(reason) > 500 {
		return reason[:500]
	}
	return reason
}

// QueueNotificationSink 通过 asynq 投递打款通知
type QueueNotificationSink struct {
	client *queue.Client
}

// NewQueueNotificationSink 创建队列通知出口
func NewQueueNotificationSink(client *queue.Client) *QueueNotificationSink {
	return &QueueNotificationSink{client: client}
}

// NotifyPayout 投递通知任务，队列未启用时仅记录日志
func (n *QueueNotificationSink) NotifyPayout(ctx context.Context, payout *models.Payout, event string) error {
	if payout == nil {
		return nil
	}
	if !n.client.Enabled() {
		logger.Infow("payout_notify_skipped", "payout_id", payout.ID, "event", event)
		return nil
	}
	return n.client.EnqueuePayoutNotify(queue.PayoutNotifyPayload{
		PayoutID: payout.ID,
		PayoutNo: payout.PayoutNo,
		TenantID: payout.TenantID,
		VendorID: payout.VendorID,
		Event:    event,
		Status:   payout.Status,
	})
}
