package router

import (
	"github.com/vendorledger/internal/config"
	adminhandlers "github.com/vendorledger/internal/http/handlers/admin"
	webhookhandlers "github.com/vendorledger/internal/http/handlers/webhook"
	"github.com/vendorledger/internal/logger"
	"github.com/vendorledger/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	r := gin.New()

	adminHandler := adminhandlers.New(c)
	webhookHandler := webhookhandlers.New(c)

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(logger.Z()))

	api := r.Group("/api/v1")
	{
		// 渠道回调（签名校验，无运营鉴权）
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/stripe", webhookHandler.StripeTransfer)
		}

		ops := api.Group("/ops")
		ops.Use(OperatorAuthMiddleware(cfg.OperatorJWT.SecretKey, cfg.OperatorJWT.Issuer))
		{
			// 佣金规则
			ops.GET("/rules", adminHandler.ListCommissionRules)
			ops.POST("/rules", adminHandler.CreateCommissionRule)
			ops.GET("/rules/:id", adminHandler.GetCommissionRule)
			ops.PUT("/rules/:id", adminHandler.UpdateCommissionRule)
			ops.DELETE("/rules/:id", adminHandler.DeactivateCommissionRule)

			// 佣金账本
			ops.POST("/ledger/quote", adminHandler.QuoteSale)
			ops.POST("/ledger/sales", adminHandler.RecordSale)
			ops.POST("/ledger/refunds", adminHandler.RecordRefund)
			ops.POST("/ledger/adjustments", adminHandler.RecordAdjustment)
			ops.POST("/ledger/reversals", adminHandler.RecordReversal)
			ops.GET("/ledger/transactions", adminHandler.ListCommissionTransactions)
			ops.GET("/ledger/transactions/:id", adminHandler.GetCommissionTransaction)
			ops.POST("/ledger/transactions/:id/dispute", adminHandler.DisputeCommissionTransaction)
			ops.POST("/ledger/transactions/:id/resolve", adminHandler.ResolveCommissionDispute)

			// 打款
			ops.POST("/payouts/batches", adminHandler.RunPayoutBatch)
			ops.GET("/payouts", adminHandler.ListPayouts)
			ops.GET("/payouts/:id", adminHandler.GetPayout)
			ops.POST("/payouts/:id/approve", adminHandler.ApprovePayout)
			ops.POST("/payouts/:id/release-hold", adminHandler.ReleasePayoutHold)
			ops.POST("/payouts/:id/cancel", adminHandler.CancelPayout)
			ops.POST("/payouts/:id/settle", adminHandler.SettlePayout)
			ops.POST("/payouts/:id/fail", adminHandler.FailPayout)

			// 钱包
			ops.POST("/wallets", adminHandler.EnsureWallet)
			ops.GET("/wallets/:id", adminHandler.GetWallet)
			ops.GET("/wallets/:id/transactions", adminHandler.ListWalletTransactions)
			ops.GET("/wallets/:id/verify", adminHandler.VerifyWalletBalance)
			ops.POST("/wallets/:id/credit", adminHandler.CreditWallet)
			ops.POST("/wallets/:id/debit", adminHandler.DebitWallet)
			ops.POST("/wallets/:id/refund", adminHandler.RefundWallet)
			ops.POST("/wallets/:id/adjust", adminHandler.AdjustWallet)
			ops.POST("/wallets/:id/payments", adminHandler.PayWithWallet)
			ops.POST("/wallets/:id/holds", adminHandler.HoldWallet)
			ops.POST("/wallet-holds/:hold_id/release", adminHandler.ReleaseWalletHold)
			ops.POST("/wallet-holds/:hold_id/capture", adminHandler.CaptureWalletHold)
			ops.POST("/wallets/:id/freeze", adminHandler.FreezeWallet)
			ops.POST("/wallets/:id/unfreeze", adminHandler.UnfreezeWallet)
			ops.POST("/wallets/:id/close", adminHandler.CloseWallet)

			// 对账报表
			ops.GET("/reports/ledger", adminHandler.GetLedgerReport)

			// 商家与租户目录
			ops.GET("/tenants/:tenant_id/settings", adminHandler.GetTenantSetting)
			ops.PUT("/tenants/:tenant_id/settings", adminHandler.PutTenantSetting)
			ops.GET("/tenants/:tenant_id/vendors/:vendor_id/payout-profile", adminHandler.GetVendorProfile)
			ops.PUT("/tenants/:tenant_id/vendors/:vendor_id/payout-profile", adminHandler.PutVendorProfile)
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
