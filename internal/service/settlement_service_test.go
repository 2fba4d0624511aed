package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/repository"
)

type stubRail struct {
	createResult *RailTransferResult
	createErr    error
	status       string
	statusErr    error
	creates      int
	queries      int
	lastInput    RailTransferInput
}

func (r *stubRail) CreateTransfer(ctx context.Context, input RailTransferInput) (*RailTransferResult, error) {
	r.creates++
	r.lastInput = input
	if r.createErr != nil {
		return nil, r.createErr
	}
	return r.createResult, nil
}

func (r *stubRail) GetTransferStatus(ctx context.Context, transferID string) (string, error) {
	r.queries++
	if r.statusErr != nil {
		return "", r.statusErr
	}
	return r.status, nil
}

type recordingSink struct {
	events []string
}

func (n *recordingSink) NotifyPayout(ctx context.Context, payout *models.Payout, event string) error {
	n.events = append(n.events, event)
	return nil
}

type settlementFixture struct {
	*ledgerFixture
	rail     *stubRail
	sink     *recordingSink
	settle   *SettlementService
	batch    *PayoutBatchService
	payout   models.Payout
	saleID   uint
	railRepo *repository.GormRailEventRepository
}

func newSettlementFixture(t *testing.T, name string, setting models.TenantSetting) *settlementFixture {
	t.Helper()
	lf := newLedgerFixture(t, name)
	if setting.TenantID != "" {
		lf.setTenant(t, setting)
	}
	lf.saveProfile(t, models.VendorPayoutProfile{TenantID: "t1", VendorID: "v1", PayoutMethod: constants.PayoutMethodStripeConnect, RailAccountID: "acct_1"})
	sale := lf.recordSale(t, SaleEvent{TenantID: "t1", OrderID: "o1", VendorID: "v1", Total: 1000, OccurredAt: batchAsOf.Add(-time.Hour)})

	f := &settlementFixture{
		ledgerFixture: lf,
		rail:          &stubRail{},
		sink:          &recordingSink{},
		batch:         lf.batchService(0),
		saleID:        sale.ID,
		railRepo:      repository.NewRailEventRepository(lf.db),
	}
	f.settle = NewSettlementService(
		lf.payouts,
		lf.commissions,
		f.railRepo,
		map[string]PayoutRail{constants.PayoutMethodStripeConnect: f.rail},
		f.sink,
		nil,
		SettlementPolicy{MaxRetries: 2, BaseDelay: 10 * time.Second, MaxDelay: 15 * time.Second, RailTimeout: time.Second},
	)
	payouts, err := f.batch.RunPayoutBatch(context.Background(), "t1", batchAsOf)
	if err != nil || len(payouts) != 1 {
		t.Fatalf("run batch failed: %v (%d payouts)", err, len(payouts))
	}
	f.payout = payouts[0]
	return f
}

func (f *settlementFixture) saleStatus(t *testing.T) (string, string) {
	t.Helper()
	txn, err := f.ledger.Get(f.saleID)
	if err != nil {
		t.Fatalf("get sale failed: %v", err)
	}
	return txn.Status, txn.PayoutStatus
}

func TestSettlePayoutCompletesOnce(t *testing.T) {
	f := newSettlementFixture(t, "settle_complete", models.TenantSetting{})
	f.rail.createResult = &RailTransferResult{TransferID: "tr_1", Status: constants.RailTransferStatusPaid}
	ctx := context.Background()

	payout, err := f.settle.SettlePayout(ctx, f.payout.ID)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if payout.Status != constants.PayoutStatusCompleted || payout.StripeTransferID != "tr_1" || payout.ProcessingCompletedAt == nil {
		t.Fatalf("unexpected payout: %+v", payout)
	}
	if f.rail.lastInput.IdempotencyKey != f.payout.IdempotencyKey || f.rail.lastInput.Amount != 1000 || f.rail.lastInput.Destination != "acct_1" {
		t.Fatalf("unexpected rail input: %+v", f.rail.lastInput)
	}
	status, payoutStatus := f.saleStatus(t)
	if status != constants.CommissionStatusPaid || payoutStatus != constants.CommissionPayoutStatusPaid {
		t.Fatalf("sale should be paid, got %s/%s", status, payoutStatus)
	}

	again, err := f.settle.SettlePayout(ctx, f.payout.ID)
	if err != nil || again.Status != constants.PayoutStatusCompleted {
		t.Fatalf("repeat settle should be a no-op, got %v", err)
	}
	if f.rail.creates != 1 {
		t.Fatalf("rail should be called once, got %d", f.rail.creates)
	}
	if len(f.sink.events) != 1 || f.sink.events[0] != constants.PayoutEventCompleted {
		t.Fatalf("unexpected notifications: %v", f.sink.events)
	}
}

func TestSettlePayoutPendingTransferReconciledByWebhook(t *testing.T) {
	f := newSettlementFixture(t, "settle_webhook", models.TenantSetting{})
	f.rail.createResult = &RailTransferResult{TransferID: "tr_2", Status: constants.RailTransferStatusPending}
	f.rail.status = constants.RailTransferStatusPending
	ctx := context.Background()

	payout, err := f.settle.SettlePayout(ctx, f.payout.ID)
	if err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	if payout.Status != constants.PayoutStatusProcessing || payout.RailStatus != constants.RailTransferStatusPending {
		t.Fatalf("payout should await the rail, got %+v", payout)
	}
	if _, err := f.settle.SettlePayout(ctx, f.payout.ID); err != nil {
		t.Fatalf("second settle failed: %v", err)
	}
	if f.rail.creates != 1 || f.rail.queries != 1 {
		t.Fatalf("existing transfer should be queried, creates=%d queries=%d", f.rail.creates, f.rail.queries)
	}

	event := RailEventInput{Provider: constants.PayoutMethodStripeConnect, EventID: "evt_1", EventType: "transfer.paid", TransferID: "tr_2", Status: constants.RailTransferStatusPaid}
	reconciled, duplicate, err := f.settle.ReconcileRailEvent(ctx, event)
	if err != nil || duplicate {
		t.Fatalf("reconcile failed: %v duplicate=%v", err, duplicate)
	}
	if reconciled == nil || reconciled.Status != constants.PayoutStatusCompleted {
		t.Fatalf("payout should complete from webhook, got %+v", reconciled)
	}

	_, duplicate, err = f.settle.ReconcileRailEvent(ctx, event)
	if err != nil || !duplicate {
		t.Fatalf("replayed event should be a duplicate, got %v duplicate=%v", err, duplicate)
	}

	unmatched, duplicate, err := f.settle.ReconcileRailEvent(ctx, RailEventInput{Provider: "stripe_connect", EventID: "evt_2", EventType: "transfer.paid", TransferID: "tr_unknown", Status: constants.RailTransferStatusPaid})
	if err != nil || duplicate || unmatched != nil {
		t.Fatalf("unmatched event should be recorded only, got %+v duplicate=%v err=%v", unmatched, duplicate, err)
	}
	stored, err := f.railRepo.GetByEventID("evt_2")
	if err != nil || stored == nil || stored.PayoutID != nil {
		t.Fatalf("unmatched event should be stored without payout, got %+v err=%v", stored, err)
	}

	if _, _, err := f.settle.ReconcileRailEvent(ctx, RailEventInput{EventID: " "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("missing event id should be rejected, got %v", err)
	}
}

func TestSettlePayoutTransientRetriesThenFails(t *testing.T) {
	f := newSettlementFixture(t, "settle_transient", models.TenantSetting{})
	f.rail.createErr = errors.Join(ErrRailTransient, errors.New("503 from rail"))
	ctx := context.Background()

	first, err := f.settle.SettlePayout(ctx, f.payout.ID)
	if err != nil {
		t.Fatalf("transient failure should be scheduled for retry, got %v", err)
	}
	if first.Status != constants.PayoutStatusProcessing || first.RetryCount != 1 || first.NextRetryAt == nil || first.LastRetryAt == nil {
		t.Fatalf("unexpected payout after first attempt: %+v", first)
	}
	if d := first.NextRetryAt.Sub(*first.LastRetryAt); d != 10*time.Second {
		t.Fatalf("first backoff want 10s got %s", d)
	}

	second, err := f.settle.SettlePayout(ctx, f.payout.ID)
	if err != nil {
		t.Fatalf("second attempt failed: %v", err)
	}
	if second.RetryCount != 2 {
		t.Fatalf("retry count want 2 got %d", second.RetryCount)
	}
	if d := second.NextRetryAt.Sub(*second.LastRetryAt); d != 15*time.Second {
		t.Fatalf("second backoff should be capped at 15s, got %s", d)
	}

	failed, err := f.settle.SettlePayout(ctx, f.payout.ID)
	if !errors.Is(err, ErrRailTransient) {
		t.Fatalf("exhausted retries should surface the transient error, got %v", err)
	}
	var stateErr *PayoutStateError
	if !errors.As(err, &stateErr) || stateErr.Payout.Status != constants.PayoutStatusFailed {
		t.Fatalf("error should carry the failed payout, got %v", err)
	}
	if failed == nil || failed.Status != constants.PayoutStatusFailed || failed.NextRetryAt != nil {
		t.Fatalf("payout should be failed, got %+v", failed)
	}
	if f.rail.creates != 3 {
		t.Fatalf("rail should be called 3 times, got %d", f.rail.creates)
	}
	if _, payoutStatus := f.saleStatus(t); payoutStatus != constants.CommissionPayoutStatusUnpaid {
		t.Fatalf("failed payout should return the sale to unpaid, got %s", payoutStatus)
	}
	if len(f.sink.events) != 1 || f.sink.events[0] != constants.PayoutEventFailed {
		t.Fatalf("unexpected notifications: %v", f.sink.events)
	}

	if _, err := f.settle.SettlePayout(ctx, f.payout.ID); !errors.Is(err, ErrPayoutStatusInvalid) {
		t.Fatalf("failed payout cannot be settled again, got %v", err)
	}
}

func TestSettlePayoutPermanentFailure(t *testing.T) {
	f := newSettlementFixture(t, "settle_permanent", models.TenantSetting{})
	f.rail.createErr = errors.Join(ErrRailPermanent, errors.New("account closed"))

	failed, err := f.settle.SettlePayout(context.Background(), f.payout.ID)
	if !errors.Is(err, ErrRailPermanent) {
		t.Fatalf("want permanent error, got %v", err)
	}
	if failed == nil || failed.Status != constants.PayoutStatusFailed || failed.RetryCount != 0 {
		t.Fatalf("payout should fail without retry, got %+v", failed)
	}
	if isTransientRailError(err) {
		t.Fatalf("permanent error must not be transient")
	}
}

func TestSettlePayoutRequiresApproval(t *testing.T) {
	f := newSettlementFixture(t, "settle_approval", models.TenantSetting{TenantID: "t1", PlatformFeeRate: models.MustRate("0"), PayoutApprovalThreshold: 500})
	f.rail.createResult = &RailTransferResult{TransferID: "tr_3", Status: constants.RailTransferStatusPaid}
	ctx := context.Background()

	if !f.payout.RequiresApproval {
		t.Fatalf("payout above threshold should require approval")
	}
	if _, err := f.settle.SettlePayout(ctx, f.payout.ID); !errors.Is(err, ErrPayoutApprovalRequired) {
		t.Fatalf("want approval required, got %v", err)
	}
	if err := f.settle.DispatchSettlement(ctx, &f.payout); err != nil {
		t.Fatalf("dispatch of unapproved payout should be skipped, got %v", err)
	}
	if f.rail.creates != 0 {
		t.Fatalf("rail must not be called before approval")
	}

	approved, err := f.batch.ApprovePayout(ctx, f.payout.ID, "ops-1")
	if err != nil {
		t.Fatalf("approve failed: %v", err)
	}
	if err := f.settle.DispatchSettlement(ctx, approved); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	payout, err := f.batch.Get(f.payout.ID)
	if err != nil {
		t.Fatalf("get payout failed: %v", err)
	}
	if payout.Status != constants.PayoutStatusCompleted {
		t.Fatalf("approved payout should settle synchronously without a queue, got %s", payout.Status)
	}
}

func TestFailPayoutByOperator(t *testing.T) {
	f := newSettlementFixture(t, "settle_manual_fail", models.TenantSetting{})
	f.rail.createErr = ErrRailTransient
	ctx := context.Background()

	if _, err := f.settle.FailPayout(ctx, f.payout.ID, "ops-1", "stuck"); !errors.Is(err, ErrPayoutStatusInvalid) {
		t.Fatalf("pending payout cannot be failed manually, got %v", err)
	}
	if _, err := f.settle.SettlePayout(ctx, f.payout.ID); err != nil {
		t.Fatalf("settle failed: %v", err)
	}
	failed, err := f.settle.FailPayout(ctx, f.payout.ID, "ops-1", "stuck")
	if err != nil {
		t.Fatalf("fail payout failed: %v", err)
	}
	if failed.Status != constants.PayoutStatusFailed || failed.FailureReason != "operator ops-1: stuck" {
		t.Fatalf("unexpected failed payout: %+v", failed)
	}
	again, err := f.settle.FailPayout(ctx, f.payout.ID, "ops-2", "again")
	if err != nil || again.FailureReason != failed.FailureReason {
		t.Fatalf("repeat fail should be a no-op, got %+v err=%v", again, err)
	}
}

func TestSettlePayoutWithoutRail(t *testing.T) {
	f := newSettlementFixture(t, "settle_no_rail", models.TenantSetting{})
	settle := NewSettlementService(f.payouts, f.commissions, f.railRepo, nil, nil, nil, SettlementPolicy{})

	failed, err := settle.SettlePayout(context.Background(), f.payout.ID)
	if !errors.Is(err, ErrRailUnavailable) {
		t.Fatalf("want rail unavailable, got %v", err)
	}
	if failed == nil || failed.Status != constants.PayoutStatusFailed {
		t.Fatalf("payout should be failed, got %+v", failed)
	}
}

func TestSettlementBackoffDelay(t *testing.T) {
	s := NewSettlementService(nil, nil, nil, nil, nil, nil, SettlementPolicy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second})
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, expected := range want {
		if got := s.backoffDelay(i + 1); got != expected {
			t.Fatalf("attempt %d want %s got %s", i+1, expected, got)
		}
	}
}
