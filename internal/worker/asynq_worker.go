package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/provider"
	"github.com/vendorledger/internal/queue"
	"github.com/vendorledger/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPayoutBatchRun, c.handlePayoutBatchRun)
	mux.HandleFunc(queue.TaskPayoutSettle, c.handlePayoutSettle)
	mux.HandleFunc(queue.TaskPayoutNotify, c.handlePayoutNotify)
}

func (c *Consumer) handlePayoutBatchRun(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_batch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutBatchRunPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Warnw("worker_payout_batch_unmarshal_failed", "error", err)
			return err
		}
	}
	tenants := batchTenants(payload.TenantID, c.Config.Payout.Tenants)
	if len(tenants) == 0 {
		logger.Debugw("worker_payout_batch_skip_no_tenants")
		return nil
	}
	var firstErr error
	for _, tenantID := range tenants {
		if err := c.runTenantBatch(ctx, tenantID, time.Now()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// runTenantBatch 生成租户打款单并投递可直接结算的单据
func (c *Consumer) runTenantBatch(ctx context.Context, tenantID string, asOf time.Time) error {
	payouts, err := c.PayoutBatchService.RunPayoutBatch(ctx, tenantID, asOf)
	if err != nil {
		if errors.Is(err, service.ErrBatchInProgress) {
			logger.Infow("worker_payout_batch_in_progress", "tenant_id", tenantID)
			return nil
		}
		logger.Warnw("worker_payout_batch_failed", "tenant_id", tenantID, "error", err)
		return err
	}
	for i := range payouts {
		if err := c.SettlementService.DispatchSettlement(ctx, &payouts[i]); err != nil {
			logger.Warnw("worker_payout_dispatch_failed",
				"tenant_id", tenantID,
				"payout_id", payouts[i].ID,
				"error", err,
			)
		}
	}
	return nil
}

func (c *Consumer) handlePayoutSettle(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_settle_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutSettlePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payout_settle_unmarshal_failed", "error", err)
		return err
	}
	if payload.PayoutID == 0 {
		logger.Debugw("worker_payout_settle_skip_invalid_payload", "payout_id", payload.PayoutID)
		return nil
	}
	payout, err := c.SettlementService.SettlePayout(ctx, payload.PayoutID)
	if err != nil {
		var stateErr *service.PayoutStateError
		if errors.As(err, &stateErr) || errors.Is(err, service.ErrNotFound) {
			// 状态类错误重投无意义
			logger.Warnw("worker_payout_settle_rejected", "payout_id", payload.PayoutID, "attempt", payload.Attempt, "error", err)
			return nil
		}
		logger.Warnw("worker_payout_settle_failed", "payout_id", payload.PayoutID, "attempt", payload.Attempt, "error", err)
		return err
	}
	logger.Debugw("worker_payout_settle_done", "payout_id", payout.ID, "status", payout.Status, "attempt", payload.Attempt)
	return nil
}

func (c *Consumer) handlePayoutNotify(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payout_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PayoutNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payout_notify_unmarshal_failed", "error", err)
		return err
	}
	logger.Infow("payout_notification",
		"event", payload.Event,
		"payout_id", payload.PayoutID,
		"payout_no", payload.PayoutNo,
		"tenant_id", payload.TenantID,
		"vendor_id", payload.VendorID,
		"status", payload.Status,
	)
	return nil
}

// batchTenants 指定租户优先，否则使用配置中的租户列表（去重、去空）
func batchTenants(tenantID string, configured []string) []string {
	if tenantID = strings.TrimSpace(tenantID); tenantID != "" {
		return []string{tenantID}
	}
	seen := make(map[string]struct{}, len(configured))
	tenants := make([]string, 0, len(configured))
	for _, raw := range configured {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		tenants = append(tenants, id)
	}
	return tenants
}
