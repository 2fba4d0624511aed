package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vendorledger/internal/config"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/queue"

	"github.com/hibiken/asynq"
)

const sweepBatchLimit = 100

// Service 异步队列服务：asynq 消费与定时批次，外加轮询兜底
type Service struct {
	name      string
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	consumer  *Consumer
	cfg       *config.Config
	wg        sync.WaitGroup
}

// NewService 创建异步队列服务；队列未启用时只运行轮询任务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	s := &Service{
		name:     "worker",
		consumer: consumer,
		cfg:      cfg,
	}
	if cfg.Queue.Enabled {
		opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
		s.server = asynq.NewServer(opt, serverCfg)
		s.mux = asynq.NewServeMux()
		consumer.Register(s.mux)
		if cron := strings.TrimSpace(cfg.Payout.BatchCron); cron != "" {
			task, err := queue.NewPayoutBatchRunTask(queue.PayoutBatchRunPayload{})
			if err != nil {
				return nil, err
			}
			s.scheduler = queue.BuildScheduler(&cfg.Queue)
			if _, err := s.scheduler.Register(cron, task, asynq.Queue(queue.DefaultQueue)); err != nil {
				return nil, err
			}
		}
	} else {
		logger.Warnw("worker_queue_disabled", "fallback", "sweep_loops_only")
	}
	return s, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.consumer == nil {
		return errors.New("worker not initialized")
	}
	s.startLoop(ctx, "commission_approval", s.cfg.Payout.ApprovalSweepInterval(), s.approveDueCommissions)
	s.startLoop(ctx, "settlement_retry", s.cfg.Settlement.SweepInterval(), s.retryDueSettlements)
	s.startLoop(ctx, "wallet_stale_hold", s.cfg.Wallet.StaleHoldSweepInterval(), s.reportStaleHolds)

	if s.server == nil {
		<-ctx.Done()
		return nil
	}
	if s.scheduler != nil {
		if err := s.scheduler.Start(); err != nil {
			return err
		}
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if s.scheduler != nil {
		s.scheduler.Shutdown()
	}
	if s.server != nil {
		s.server.Shutdown()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}

func (s *Service) startLoop(ctx context.Context, name string, interval time.Duration, runOnce func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runOnce(ctx)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				logger.Debugw("worker_loop_exit", "loop", name)
				return
			case <-ticker.C:
				runOnce(ctx)
			}
		}
	}()
}

func (s *Service) approveDueCommissions(ctx context.Context) {
	approved, err := s.consumer.LedgerService.ApproveDueTransactions(time.Now())
	if err != nil {
		logger.Warnw("worker_commission_approve_due_failed", "error", err)
		return
	}
	if approved > 0 {
		logger.Infow("worker_commission_approved", "count", approved)
	}
}

func (s *Service) retryDueSettlements(ctx context.Context) {
	count, err := s.consumer.SettlementService.RetryDueSettlements(ctx, time.Now(), sweepBatchLimit)
	if err != nil {
		logger.Warnw("worker_settlement_sweep_failed", "error", err)
		return
	}
	if count > 0 {
		logger.Infow("worker_settlement_sweep", "count", count)
	}
}

func (s *Service) reportStaleHolds(ctx context.Context) {
	holds, err := s.consumer.WalletService.ListStaleHolds(ctx, time.Now(), sweepBatchLimit)
	if err != nil {
		logger.Warnw("worker_wallet_stale_hold_scan_failed", "error", err)
		return
	}
	for _, hold := range holds {
		logger.Warnw("wallet_hold_stale",
			"hold_id", hold.ID,
			"wallet_id", hold.WalletID,
			"amount", hold.Amount,
			"reference", hold.Reference,
			"created_at", hold.CreatedAt,
			"age", time.Since(hold.CreatedAt).Round(time.Second).String(),
		)
	}
}
