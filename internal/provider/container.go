package provider

import (
	"strings"

	"github.com/vendorledger/internal/cache"
	"github.com/vendorledger/internal/config"
	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/payment/stripe"
	"github.com/vendorledger/internal/queue"
	"github.com/vendorledger/internal/repository"
	"github.com/vendorledger/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	CommissionRuleRepo repository.CommissionRuleRepository
	CommissionRepo     repository.CommissionRepository
	PayoutRepo         repository.PayoutRepository
	WalletRepo         repository.WalletRepository
	VendorProfileRepo  repository.VendorProfileRepository
	TenantSettingRepo  repository.TenantSettingRepository
	RailEventRepo      repository.RailEventRepository
	ReportRepo         repository.ReportRepository

	// Services
	DirectoryService      *service.DirectoryService
	RuleResolver          *service.RuleResolver
	CommissionRuleService *service.CommissionRuleService
	LedgerService         *service.LedgerService
	PayoutBatchService    *service.PayoutBatchService
	WalletService         *service.WalletService
	WalletPaymentSaga     *service.WalletPaymentSaga
	SettlementService     *service.SettlementService
	StripeRail            *service.StripeConnectRail
	ReportService         *service.ReportService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.CommissionRuleRepo = repository.NewCommissionRuleRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.PayoutRepo = repository.NewPayoutRepository(db)
	c.WalletRepo = repository.NewWalletRepository(db)
	c.VendorProfileRepo = repository.NewVendorProfileRepository(db)
	c.TenantSettingRepo = repository.NewTenantSettingRepository(db)
	c.RailEventRepo = repository.NewRailEventRepository(db)
	c.ReportRepo = repository.NewReportRepository(db)
}

func (c *Container) initServices() {
	defaultFeeRate, err := models.NewRateFromString(c.Config.Commission.DefaultPlatformFeeRate)
	if err != nil {
		logger.Warnw("provider_default_fee_rate_invalid",
			"value", c.Config.Commission.DefaultPlatformFeeRate,
			"error", err,
		)
		defaultFeeRate = models.MustRate("0")
	}

	c.DirectoryService = service.NewDirectoryService(c.VendorProfileRepo, c.TenantSettingRepo, defaultFeeRate)
	c.RuleResolver = service.NewRuleResolver(c.CommissionRuleRepo, c.Config.Commission.RuleCacheTTL())
	c.CommissionRuleService = service.NewCommissionRuleService(c.CommissionRuleRepo)
	c.LedgerService = service.NewLedgerService(c.CommissionRepo, c.PayoutRepo, c.RuleResolver, c.DirectoryService)
	c.PayoutBatchService = service.NewPayoutBatchService(
		c.CommissionRepo,
		c.PayoutRepo,
		c.DirectoryService,
		c.DirectoryService,
		c.Config.Payout.DefaultMinimum,
	)
	c.WalletService = service.NewWalletService(c.WalletRepo, c.Config.Wallet.MaxConflictRetries, c.Config.Wallet.StaleHoldAge())
	c.WalletPaymentSaga = service.NewWalletPaymentSaga(c.WalletService)
	c.ReportService = service.NewReportService(c.ReportRepo)

	rails := map[string]service.PayoutRail{
		constants.PayoutMethodWallet: service.NewWalletRail(c.WalletService),
	}
	c.StripeRail = service.NewStripeConnectRail(stripe.Config{
		SecretKey:               c.Config.Stripe.SecretKey,
		WebhookSecret:           c.Config.Stripe.WebhookSecret,
		APIBaseURL:              c.Config.Stripe.APIBaseURL,
		WebhookToleranceSeconds: c.Config.Stripe.WebhookToleranceSeconds,
	})
	if strings.TrimSpace(c.Config.Stripe.SecretKey) != "" {
		rails[constants.PayoutMethodStripeConnect] = c.StripeRail
	} else {
		logger.Warnw("provider_stripe_rail_disabled", "reason", "stripe.secret_key is empty")
	}

	var notifier service.NotificationSink
	if c.Config.Notification.Enabled {
		notifier = service.NewQueueNotificationSink(c.QueueClient)
	}
	c.SettlementService = service.NewSettlementService(
		c.PayoutRepo,
		c.CommissionRepo,
		c.RailEventRepo,
		rails,
		notifier,
		c.QueueClient,
		service.SettlementPolicy{
			MaxRetries:  c.Config.Settlement.MaxRetries,
			BaseDelay:   c.Config.Settlement.BaseDelay(),
			MaxDelay:    c.Config.Settlement.MaxDelay(),
			RailTimeout: c.Config.Settlement.RailTimeout(),
		},
	)
}

// Close 释放队列与缓存连接
func (c *Container) Close() {
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			logger.Warnw("provider_close_queue_client_failed", "error", err)
		}
	}
	if err := cache.Close(); err != nil {
		logger.Warnw("provider_close_redis_failed", "error", err)
	}
}
