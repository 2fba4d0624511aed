package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func setupReportRepositoryTest(t *testing.T) (*GormReportRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:report_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewReportRepository(db), db
}

func reportTxn(tenantID, vendorID, key, txnType string, occurredAt time.Time, total, commission, fee, net int64) *models.CommissionTransaction {
	return &models.CommissionTransaction{
		TenantID:          tenantID,
		OrderID:           "ord_" + key,
		VendorID:          vendorID,
		CurrencyCode:      "USD",
		OrderTotal:        total,
		CommissionAmount:  commission,
		PlatformFeeAmount: fee,
		NetAmount:         net,
		Status:            constants.CommissionStatusApproved,
		PayoutStatus:      constants.CommissionPayoutStatusUnpaid,
		TransactionType:   txnType,
		IdempotencyKey:    key,
		OccurredAt:        occurredAt,
		CreatedAt:         occurredAt,
		UpdatedAt:         occurredAt,
	}
}

func TestReportRepositoryLedgerOverviewAndTrends(t *testing.T) {
	repo, db := setupReportRepositoryTest(t)
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	rows := []*models.CommissionTransaction{
		reportTxn("t1", "acme", "s1", constants.CommissionTxnTypeSale, day1, 10000, 1000, 250, 8750),
		reportTxn("t1", "bravo", "s2", constants.CommissionTxnTypeSale, day2, 5000, 500, 125, 4375),
		reportTxn("t1", "acme", "r1", constants.CommissionTxnTypeRefund, day2, -2000, -200, -50, -1750),
		reportTxn("t2", "acme", "other", constants.CommissionTxnTypeSale, day1, 99999, 1, 1, 99997),
		reportTxn("t1", "acme", "eur1", constants.CommissionTxnTypeSale, day1, 7000, 700, 0, 6300),
	}
	rows[4].CurrencyCode = "EUR"
	for _, row := range rows {
		if err := db.Create(row).Error; err != nil {
			t.Fatalf("create txn failed: %v", err)
		}
	}
	if err := db.Model(&models.CommissionTransaction{}).Where("idempotency_key = ?", "s2").
		Update("payout_status", constants.CommissionPayoutStatusPendingPayout).Error; err != nil {
		t.Fatalf("update payout status failed: %v", err)
	}

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)
	all := ReportScope{TenantID: "t1", StartAt: start, EndAt: end}
	currencies, err := repo.ListCurrencies(all)
	if err != nil {
		t.Fatalf("list currencies failed: %v", err)
	}
	if len(currencies) != 2 || currencies[0] != "EUR" || currencies[1] != "USD" {
		t.Fatalf("unexpected currencies: %v", currencies)
	}

	usd := all
	usd.Currency = "USD"
	overview, err := repo.GetLedgerOverview(usd)
	if err != nil {
		t.Fatalf("get overview failed: %v", err)
	}
	if overview.SalesCount != 2 || overview.RefundCount != 1 {
		t.Fatalf("unexpected counts: %+v", overview)
	}
	if overview.GrossAmount != 13000 || overview.CommissionAmount != 1300 || overview.NetAmount != 11375 {
		t.Fatalf("unexpected sums: %+v", overview)
	}
	if overview.UnpaidNetAmount != 7000 {
		t.Fatalf("unpaid net want 7000 got %d", overview.UnpaidNetAmount)
	}
	eur, err := repo.GetLedgerOverview(ReportScope{TenantID: "t1", Currency: "EUR", StartAt: start, EndAt: end})
	if err != nil {
		t.Fatalf("get eur overview failed: %v", err)
	}
	if eur.SalesCount != 1 || eur.GrossAmount != 7000 || eur.NetAmount != 6300 {
		t.Fatalf("unexpected eur overview: %+v", eur)
	}

	trends, err := repo.GetCommissionTrends(usd)
	if err != nil {
		t.Fatalf("get trends failed: %v", err)
	}
	if len(trends) != 2 {
		t.Fatalf("trend days want 2 got %d", len(trends))
	}
	if trends[0].Day != "2026-03-01" || trends[0].NetAmount != 8750 {
		t.Fatalf("unexpected first trend: %+v", trends[0])
	}
	if trends[1].TransactionCount != 2 || trends[1].NetAmount != 2625 {
		t.Fatalf("unexpected second trend: %+v", trends[1])
	}

	vendors, err := repo.GetTopVendors(usd, 5)
	if err != nil {
		t.Fatalf("get top vendors failed: %v", err)
	}
	if len(vendors) != 2 || vendors[0].VendorID != "acme" || vendors[0].NetAmount != 7000 {
		t.Fatalf("unexpected vendor ranking: %+v", vendors)
	}
}

func TestReportRepositoryPayoutStatusBreakdown(t *testing.T) {
	repo, db := setupReportRepositoryTest(t)
	now := time.Date(2026, 3, 5, 8, 0, 0, 0, time.UTC)
	payouts := []models.Payout{
		{PayoutNo: "PO1", TenantID: "t1", VendorID: "acme", CurrencyCode: "USD", NetAmount: 1000, Status: constants.PayoutStatusCompleted, PaymentMethod: constants.PayoutMethodWallet, IdempotencyKey: "k1", Version: 1, CreatedAt: now, UpdatedAt: now},
		{PayoutNo: "PO2", TenantID: "t1", VendorID: "bravo", CurrencyCode: "USD", NetAmount: 2000, Status: constants.PayoutStatusCompleted, PaymentMethod: constants.PayoutMethodWallet, IdempotencyKey: "k2", Version: 1, CreatedAt: now, UpdatedAt: now},
		{PayoutNo: "PO3", TenantID: "t1", VendorID: "charlie", CurrencyCode: "USD", NetAmount: 500, Status: constants.PayoutStatusFailed, PaymentMethod: constants.PayoutMethodStripeConnect, IdempotencyKey: "k3", Version: 1, CreatedAt: now, UpdatedAt: now},
		{PayoutNo: "PO4", TenantID: "t1", VendorID: "acme", CurrencyCode: "EUR", NetAmount: 9000, Status: constants.PayoutStatusCompleted, PaymentMethod: constants.PayoutMethodWallet, IdempotencyKey: "k4", Version: 1, CreatedAt: now, UpdatedAt: now},
	}
	for i := range payouts {
		if err := db.Create(&payouts[i]).Error; err != nil {
			t.Fatalf("create payout failed: %v", err)
		}
	}

	rows, err := repo.GetPayoutStatusBreakdown(ReportScope{TenantID: "t1", Currency: "USD", StartAt: now.Add(-time.Hour), EndAt: now.Add(time.Hour)})
	if err != nil {
		t.Fatalf("get breakdown failed: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("status groups want 2 got %d", len(rows))
	}
	if rows[0].Status != constants.PayoutStatusCompleted || rows[0].Count != 2 || rows[0].NetAmount != 3000 {
		t.Fatalf("unexpected completed row: %+v", rows[0])
	}
	if rows[1].Status != constants.PayoutStatusFailed || rows[1].Count != 1 {
		t.Fatalf("unexpected failed row: %+v", rows[1])
	}
}
