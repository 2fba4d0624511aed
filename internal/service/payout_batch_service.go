package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vendorledger/internal/cache"
	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const payoutBatchLockTTL = 10 * time.Minute

// PayoutBatchService 打款批次服务
type PayoutBatchService struct {
	commissionRepo repository.CommissionRepository
	payoutRepo     repository.PayoutRepository
	directory      VendorDirectory
	settings       PlatformFeeSource
	defaultMinimum int64
}

// NewPayoutBatchService 创建打款批次服务
func NewPayoutBatchService(
	commissionRepo repository.CommissionRepository,
	payoutRepo repository.PayoutRepository,
	directory VendorDirectory,
	settings PlatformFeeSource,
	defaultMinimum int64,
) *PayoutBatchService {
	return &PayoutBatchService{
		commissionRepo: commissionRepo,
		payoutRepo:     payoutRepo,
		directory:      directory,
		settings:       settings,
		defaultMinimum: defaultMinimum,
	}
}

type payoutGroup struct {
	vendorID string
	currency string
	txns     []models.CommissionTransaction
}

// RunPayoutBatch 汇总租户下已审核未结算的流水生成打款单，可重入
func (s *PayoutBatchService) RunPayoutBatch(ctx context.Context, tenantID string, asOf time.Time) ([]models.Payout, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrValidation)
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	unlock, acquired, err := cache.TryLock(ctx, "payout_batch:"+tenantID, payoutBatchLockTTL)
	if err != nil {
		logger.Warnw("payout_batch_lock_unavailable", "tenant_id", tenantID, "error", err)
	} else if !acquired {
		return nil, ErrBatchInProgress
	} else {
		defer unlock()
	}

	eligible, err := s.commissionRepo.ListEligibleForPayout(tenantID, asOf)
	if err != nil {
		return nil, err
	}
	if len(eligible) == 0 {
		return []models.Payout{}, nil
	}
	setting, err := s.settings.GetTenantSetting(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	payouts := make([]models.Payout, 0)
	for _, group := range groupByVendor(eligible) {
		payout, err := s.buildVendorPayout(ctx, tenantID, asOf, setting, group)
		if err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				logger.Warnw("payout_batch_vendor_conflict",
					"tenant_id", tenantID,
					"vendor_id", group.vendorID,
					"currency", group.currency,
					"error", err,
				)
				continue
			}
			return payouts, err
		}
		if payout != nil {
			payouts = append(payouts, *payout)
		}
	}
	logger.Infow("payout_batch_completed",
		"tenant_id", tenantID,
		"as_of", asOf,
		"eligible_count", len(eligible),
		"payout_count", len(payouts),
	)
	return payouts, nil
}

func (s *PayoutBatchService) buildVendorPayout(ctx context.Context, tenantID string, asOf time.Time, setting *models.TenantSetting, group payoutGroup) (*models.Payout, error) {
	profile, err := s.directory.GetPayoutProfile(ctx, tenantID, group.vendorID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		logger.Warnw("payout_batch_vendor_profile_missing", "tenant_id", tenantID, "vendor_id", group.vendorID)
		return nil, nil
	}
	if profile.PayoutSchedule == constants.PayoutScheduleManual {
		return nil, nil
	}
	periodStart, periodEnd := payoutPeriod(profile.PayoutSchedule, asOf)
	existing, err := s.payoutRepo.FindPendingForPeriod(tenantID, group.vendorID, group.currency, periodStart, periodEnd)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	delta := aggregateDelta(group.txns, now)
	combinedNet := delta.NetAmount
	if existing != nil {
		combinedNet += existing.NetAmount
	}
	minimum := profile.PayoutMinimum
	if minimum <= 0 {
		minimum = s.defaultMinimum
	}
	if combinedNet <= 0 || combinedNet < minimum {
		logger.Debugw("payout_batch_below_minimum",
			"tenant_id", tenantID,
			"vendor_id", group.vendorID,
			"currency", group.currency,
			"net_amount", combinedNet,
			"minimum", minimum,
		)
		return nil, nil
	}
	requiresApproval := setting.PayoutApprovalThreshold > 0 && combinedNet >= setting.PayoutApprovalThreshold

	ids := make([]uint, 0, len(group.txns))
	for _, txn := range group.txns {
		ids = append(ids, txn.ID)
	}

	var payoutID uint
	err = s.payoutRepo.Transaction(func(tx *gorm.DB) error {
		commissionRepo := s.commissionRepo.WithTx(tx)
		payoutRepo := s.payoutRepo.WithTx(tx)

		rows, err := commissionRepo.MarkPendingPayout(ids, now)
		if err != nil {
			return err
		}
		if rows != int64(len(ids)) {
			return fmt.Errorf("%w: marked %d of %d transactions", ErrConcurrencyConflict, rows, len(ids))
		}

		if existing == nil {
			payout := &models.Payout{
				PayoutNo:          generatePayoutNo(now),
				TenantID:          tenantID,
				VendorID:          group.vendorID,
				CurrencyCode:      group.currency,
				PeriodStart:       periodStart,
				PeriodEnd:         periodEnd,
				GrossAmount:       delta.GrossAmount,
				CommissionAmount:  delta.CommissionAmount,
				PlatformFeeAmount: delta.PlatformFeeAmount,
				AdjustmentAmount:  delta.AdjustmentAmount,
				NetAmount:         delta.NetAmount,
				TransactionCount:  delta.TransactionCount,
				Status:            constants.PayoutStatusPending,
				PaymentMethod:     profile.PayoutMethod,
				RailAccountID:     payoutDestination(profile),
				IdempotencyKey:    "payout_" + uuid.NewString(),
				RequiresApproval:  requiresApproval,
				Version:           1,
				CreatedAt:         now,
				UpdatedAt:         now,
			}
			if payout.RailAccountID == "" {
				payout.Status = constants.PayoutStatusOnHold
			}
			if err := payoutRepo.Create(payout); err != nil {
				return err
			}
			payoutID = payout.ID
		} else {
			// 追加金额后原审批不再覆盖新总额，需重新审批
			delta.RequiresApproval = requiresApproval
			ok, err := payoutRepo.ApplyAggregateDelta(existing.ID, existing.Version, delta)
			if err != nil {
				return err
			}
			if !ok {
				return payoutStateError(existing, ErrConcurrencyConflict)
			}
			if requiresApproval && existing.ApprovedAt != nil {
				logger.Infow("payout_batch_approval_reset",
					"payout_id", existing.ID,
					"payout_no", existing.PayoutNo,
					"previous_approver", derefString(existing.ApprovedBy),
				)
			}
			payoutID = existing.ID
		}

		links := make([]models.PayoutTransactionLink, 0, len(group.txns))
		for _, txn := range group.txns {
			activeID := txn.ID
			links = append(links, models.PayoutTransactionLink{
				PayoutID:                payoutID,
				CommissionTransactionID: txn.ID,
				Amount:                  txn.NetAmount,
				ActiveTransactionID:     &activeID,
				CreatedAt:               now,
			})
		}
		if err := payoutRepo.CreateLinks(links); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: transaction already linked", ErrConcurrencyConflict)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	payout, err := s.payoutRepo.GetByID(payoutID)
	if err != nil {
		return nil, err
	}
	logger.Infow("payout_batch_vendor_payout",
		"tenant_id", tenantID,
		"vendor_id", group.vendorID,
		"payout_id", payoutID,
		"payout_no", payout.PayoutNo,
		"status", payout.Status,
		"added_count", len(ids),
		"net_amount", payout.NetAmount,
	)
	return payout, nil
}

// Get 获取打款单
func (s *PayoutBatchService) Get(id uint) (*models.Payout, error) {
	payout, err := s.payoutRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, ErrPayoutNotFound
	}
	return payout, nil
}

// GetWithLinks 获取打款单及其有效关联
func (s *PayoutBatchService) GetWithLinks(id uint) (*models.Payout, error) {
	payout, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	links, err := s.payoutRepo.ListActiveLinks(id)
	if err != nil {
		return nil, err
	}
	payout.Links = links
	return payout, nil
}

// List 查询打款单
func (s *PayoutBatchService) List(filter repository.PayoutListFilter) ([]models.Payout, int64, error) {
	return s.payoutRepo.List(filter)
}

// ApprovePayout 审批打款单
func (s *PayoutBatchService) ApprovePayout(ctx context.Context, id uint, operator string) (*models.Payout, error) {
	operator = strings.TrimSpace(operator)
	if operator == "" {
		return nil, fmt.Errorf("%w: operator is required", ErrValidation)
	}
	payout, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if payout.ApprovedAt != nil {
		return payout, nil
	}
	if payout.Status != constants.PayoutStatusPending && payout.Status != constants.PayoutStatusOnHold {
		return nil, payoutStateError(payout, ErrPayoutStatusInvalid)
	}
	now := time.Now()
	ok, err := s.payoutRepo.UpdateWithVersion(payout.ID, payout.Version, map[string]interface{}{
		"approved_by": operator,
		"approved_at": now,
		"updated_at":  now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, payoutStateError(payout, ErrConcurrencyConflict)
	}
	logger.Infow("payout_approved", "payout_id", payout.ID, "operator", operator)
	return s.Get(id)
}

// ReleasePayoutHold 重新读取商家目录，收款账户就绪后解除挂起
func (s *PayoutBatchService) ReleasePayoutHold(ctx context.Context, id uint) (*models.Payout, error) {
	payout, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if payout.Status != constants.PayoutStatusOnHold {
		return nil, payoutStateError(payout, ErrPayoutStatusInvalid)
	}
	profile, err := s.directory.GetPayoutProfile(ctx, payout.TenantID, payout.VendorID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, payoutStateError(payout, ErrVendorProfileMissing)
	}
	destination := payoutDestination(profile)
	if destination == "" {
		return nil, payoutStateError(payout, ErrPayoutOnHold)
	}
	ok, err := s.payoutRepo.UpdateWithVersion(payout.ID, payout.Version, map[string]interface{}{
		"status":          constants.PayoutStatusPending,
		"payment_method":  profile.PayoutMethod,
		"rail_account_id": destination,
		"updated_at":      time.Now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, payoutStateError(payout, ErrConcurrencyConflict)
	}
	return s.Get(id)
}

// CancelPayout 取消未开始处理的打款单，关联流水退回未结算
func (s *PayoutBatchService) CancelPayout(ctx context.Context, id uint, operator, reason string) (*models.Payout, error) {
	payout, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if payout.Status == constants.PayoutStatusCancelled {
		return payout, nil
	}
	if payout.Status != constants.PayoutStatusPending && payout.Status != constants.PayoutStatusOnHold {
		return nil, payoutStateError(payout, ErrPayoutStatusInvalid)
	}
	now := time.Now()
	err = s.payoutRepo.Transaction(func(tx *gorm.DB) error {
		ok, err := s.payoutRepo.WithTx(tx).UpdateWithVersion(payout.ID, payout.Version, map[string]interface{}{
			"status":         constants.PayoutStatusCancelled,
			"failure_reason": operatorReason(operator, reason),
			"updated_at":     now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return payoutStateError(payout, ErrConcurrencyConflict)
		}
		return revertPayoutTransactions(tx, s.payoutRepo, s.commissionRepo, payout.ID, now)
	})
	if err != nil {
		return nil, err
	}
	logger.Infow("payout_cancelled", "payout_id", payout.ID, "operator", operator, "reason", reason)
	return s.Get(id)
}

// revertPayoutTransactions 释放打款单全部关联并将流水退回 unpaid
func revertPayoutTransactions(tx *gorm.DB, payoutRepo repository.PayoutRepository, commissionRepo repository.CommissionRepository, payoutID uint, now time.Time) error {
	links, err := payoutRepo.WithTx(tx).ListActiveLinks(payoutID)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		return nil
	}
	ids := make([]uint, 0, len(links))
	for _, link := range links {
		ids = append(ids, link.CommissionTransactionID)
	}
	if _, err := payoutRepo.WithTx(tx).ReleaseLinks(payoutID, now); err != nil {
		return err
	}
	_, err = commissionRepo.WithTx(tx).UpdatePayoutStatus(ids,
		constants.CommissionPayoutStatusPendingPayout,
		constants.CommissionPayoutStatusUnpaid,
		now,
	)
	return err
}

// aggregateDelta 汇总流水对打款单的贡献；调整行只计入 adjustment 与 net
func aggregateDelta(txns []models.CommissionTransaction, now time.Time) repository.PayoutAggregateDelta {
	delta := repository.PayoutAggregateDelta{UpdatedAt: now}
	for _, txn := range txns {
		delta.TransactionCount++
		delta.NetAmount += txn.NetAmount
		if txn.TransactionType == constants.CommissionTxnTypeAdjustment {
			delta.AdjustmentAmount += txn.NetAmount
			continue
		}
		delta.GrossAmount += txn.OrderTotal
		delta.CommissionAmount += txn.CommissionAmount
		delta.PlatformFeeAmount += txn.PlatformFeeAmount
	}
	return delta
}

func groupByVendor(txns []models.CommissionTransaction) []payoutGroup {
	groups := make([]payoutGroup, 0)
	index := make(map[string]int)
	for _, txn := range txns {
		key := txn.VendorID + "|" + txn.CurrencyCode
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, payoutGroup{vendorID: txn.VendorID, currency: txn.CurrencyCode})
		}
		groups[i].txns = append(groups[i].txns, txn)
	}
	return groups
}

// payoutPeriod 按打款周期计算 UTC 周期窗口 [start, end)
func payoutPeriod(schedule string, at time.Time) (time.Time, time.Time) {
	at = at.UTC()
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	switch schedule {
	case constants.PayoutScheduleDaily:
		return day, day.AddDate(0, 0, 1)
	case constants.PayoutScheduleMonthly:
		start := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	}
}

func payoutDestination(profile *models.VendorPayoutProfile) string {
	if profile == nil {
		return ""
	}
	if profile.PayoutMethod == constants.PayoutMethodWallet {
		return strings.TrimSpace(profile.WalletCustomerID)
	}
	return strings.TrimSpace(profile.RailAccountID)
}

func generatePayoutNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return fmt.Sprintf("PO%s%s", now.UTC().Format("20060102"), suffix)
}

func operatorReason(operator, reason string) string {
	operator = strings.TrimSpace(operator)
	reason = strings.TrimSpace(reason)
	if operator == "" {
		return reason
	}
	if reason == "" {
		return "operator " + operator
	}
	return fmt.Sprintf("operator %s: %s", operator, reason)
}
