package worker

import (
	"context"
	"testing"

	"github.com/vendorledger/internal/queue"
)

func TestBatchTenantsPrefersExplicitTenant(t *testing.T) {
	got := batchTenants(" t-1 ", []string{"a", "b"})
	if len(got) != 1 || got[0] != "t-1" {
		t.Fatalf("unexpected tenants: %v", got)
	}
}

func TestBatchTenantsDedupesConfigured(t *testing.T) {
	got := batchTenants("", []string{"a", " ", "b", "a", " b "})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected tenants: %v", got)
	}
}

func TestHandlePayoutNotifyAcceptsPayload(t *testing.T) {
	consumer := &Consumer{}
	task, err := queue.NewPayoutNotifyTask(queue.PayoutNotifyPayload{PayoutID: 1, Event: "payout.completed"})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handlePayoutNotify(context.Background(), task); err != nil {
		t.Fatalf("expected notify to succeed, got %v", err)
	}
}

func TestHandlePayoutSettleSkipsZeroPayout(t *testing.T) {
	consumer := &Consumer{}
	task, err := queue.NewPayoutSettleTask(queue.PayoutSettlePayload{})
	if err != nil {
		t.Fatalf("build task failed: %v", err)
	}
	if err := consumer.handlePayoutSettle(context.Background(), task); err != nil {
		t.Fatalf("expected zero payout id to be skipped, got %v", err)
	}
}
