package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/repository"
)

func TestResolveReportWindowPresets(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

	window, err := resolveReportWindow(ReportQueryInput{}, now)
	if err != nil {
		t.Fatalf("resolve default window failed: %v", err)
	}
	if window.rangeKey != "7d" || window.timezone != "UTC" {
		t.Fatalf("unexpected default window: %+v", window)
	}
	if !window.startAt.Equal(time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 7d start: %s", window.startAt)
	}
	if !window.endAt.Equal(time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 7d end: %s", window.endAt)
	}

	window, err = resolveReportWindow(ReportQueryInput{Range: "TODAY"}, now)
	if err != nil {
		t.Fatalf("resolve today window failed: %v", err)
	}
	if window.endAt.Sub(window.startAt) != 24*time.Hour {
		t.Fatalf("today window should span one day: %+v", window)
	}

	window, err = resolveReportWindow(ReportQueryInput{Range: "30d"}, now)
	if err != nil {
		t.Fatalf("resolve 30d window failed: %v", err)
	}
	if !window.startAt.Equal(time.Date(2026, 2, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected 30d start: %s", window.startAt)
	}

	window, err = resolveReportWindow(ReportQueryInput{Timezone: "Not/AZone"}, now)
	if err != nil {
		t.Fatalf("resolve window with bad timezone failed: %v", err)
	}
	if window.timezone != "UTC" {
		t.Fatalf("bad timezone should fall back to UTC, got %s", window.timezone)
	}

	if _, err := resolveReportWindow(ReportQueryInput{Range: "1y"}, now); !errors.Is(err, ErrReportRangeInvalid) {
		t.Fatalf("expected range invalid, got %v", err)
	}
}

func TestResolveReportWindowCustom(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 31, 23, 59, 59, 0, time.UTC)

	window, err := resolveReportWindow(ReportQueryInput{Range: "custom", From: &from, To: &to}, now)
	if err != nil {
		t.Fatalf("resolve custom window failed: %v", err)
	}
	if !window.startAt.Equal(from) || !window.endAt.Equal(to.Add(time.Second)) {
		t.Fatalf("unexpected custom window: %+v", window)
	}

	if _, err := resolveReportWindow(ReportQueryInput{Range: "custom", From: &from}, now); !errors.Is(err, ErrReportRangeInvalid) {
		t.Fatalf("missing to should fail, got %v", err)
	}
	if _, err := resolveReportWindow(ReportQueryInput{Range: "custom", From: &to, To: &from}, now); !errors.Is(err, ErrReportRangeInvalid) {
		t.Fatalf("reversed range should fail, got %v", err)
	}
	tooLate := from.AddDate(0, 0, reportCustomMaxDays+1)
	if _, err := resolveReportWindow(ReportQueryInput{Range: "custom", From: &from, To: &tooLate}, now); !errors.Is(err, ErrReportRangeInvalid) {
		t.Fatalf("oversized range should fail, got %v", err)
	}
}

func TestGetLedgerReport(t *testing.T) {
	f := newLedgerFixture(t, "report_service")
	f.addPercentageRule(t, "t1", "10")
	sale := f.recordSale(t, SaleEvent{TenantID: "t1", OrderID: "o1", LineItemID: "l1", VendorID: "v1", Total: 10000})
	f.recordSale(t, SaleEvent{TenantID: "t1", OrderID: "o2", LineItemID: "l1", VendorID: "v2", Total: 5000})
	f.recordSale(t, SaleEvent{TenantID: "t2", OrderID: "o3", LineItemID: "l1", VendorID: "v9", Total: 9000})
	if _, err := f.ledger.RecordRefund(context.Background(), RefundInput{
		OrderID:               "o1",
		OriginalTransactionID: sale.ID,
		Amount:                2000,
		Reference:             "r1",
	}); err != nil {
		t.Fatalf("record refund failed: %v", err)
	}

	svc := NewReportService(repository.NewReportRepository(f.db))
	single, err := svc.GetLedgerReport(context.Background(), ReportQueryInput{TenantID: "t1", ForceRefresh: true})
	if err != nil {
		t.Fatalf("get ledger report failed: %v", err)
	}
	if single.Currency != "USD" || single.KPI.GrossAmount != 13000 {
		t.Fatalf("single currency window should resolve to USD, got %+v", single)
	}

	f.recordSale(t, SaleEvent{TenantID: "t1", OrderID: "o4", LineItemID: "l1", VendorID: "v3", CurrencyCode: "EUR", Total: 4000})
	if _, err := svc.GetLedgerReport(context.Background(), ReportQueryInput{TenantID: "t1", ForceRefresh: true}); !errors.Is(err, ErrReportCurrencyRequired) {
		t.Fatalf("mixed currencies without filter should be rejected, got %v", err)
	}
	report, err := svc.GetLedgerReport(context.Background(), ReportQueryInput{TenantID: "t1", Currency: "usd", ForceRefresh: true})
	if err != nil {
		t.Fatalf("get ledger report failed: %v", err)
	}
	if report.Range != "7d" || report.Currency != "USD" {
		t.Fatalf("unexpected report header: %+v", report)
	}
	kpi := report.KPI
	if kpi.SalesCount != 2 || kpi.RefundCount != 1 {
		t.Fatalf("unexpected counts: %+v", kpi)
	}
	if kpi.GrossAmount != 13000 || kpi.CommissionAmount != 1300 || kpi.NetAmount != 11700 {
		t.Fatalf("unexpected amounts: %+v", kpi)
	}
	if kpi.EffectiveTakeRate != "10.00" {
		t.Fatalf("unexpected take rate: %s", kpi.EffectiveTakeRate)
	}
	if len(report.TopVendors) != 2 || report.TopVendors[0].VendorID != "v1" || report.TopVendors[0].NetAmount != 7200 {
		t.Fatalf("unexpected vendor ranking: %+v", report.TopVendors)
	}
	if len(report.Trends) == 0 {
		t.Fatalf("expected trend points")
	}

	if _, err := svc.GetLedgerReport(context.Background(), ReportQueryInput{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuildReportAlerts(t *testing.T) {
	alerts := buildReportAlerts(
		repository.LedgerOverviewRow{DisputedCount: 2, ClampedCount: 1},
		[]repository.PayoutStatusRow{
			{Status: constants.PayoutStatusCompleted, Count: 4},
			{Status: constants.PayoutStatusFailed, Count: 3},
		},
	)
	if len(alerts) != 3 {
		t.Fatalf("unexpected alerts: %+v", alerts)
	}
	if alerts[0].Type != "disputed_transactions" || alerts[2].Type != "failed_payouts" || alerts[2].Value != 3 {
		t.Fatalf("unexpected alert order: %+v", alerts)
	}
	if got := formatPercentValue(12.5); got != "12.50" {
		t.Fatalf("unexpected percent format: %s", got)
	}
}
