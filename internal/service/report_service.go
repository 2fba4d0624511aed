package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/vendorledger/internal/cache"
	"github.com/vendorledger/internal/constants"
	"github.com/vendorledger/internal/repository"
)

const (
	reportCacheTTL      = 45 * time.Second
	reportCustomMaxDays = 90
	reportTopVendors    = 10
)

var (
	// ErrReportRangeInvalid 报表时间范围非法
	ErrReportRangeInvalid = fmt.Errorf("%w: report range invalid", ErrValidation)
	// ErrReportCurrencyRequired 窗口内存在多个币种时必须指定 currency
	ErrReportCurrencyRequired = fmt.Errorf("%w: currency is required when the window spans multiple currencies", ErrValidation)
)

// ReportService 账本报表服务
// 说明：聚合租户佣金与打款数据，供运营对账使用。
type ReportService struct {
	repo repository.ReportRepository
}

// NewReportService 创建报表服务
func NewReportService(repo repository.ReportRepository) *ReportService {
	return &ReportService{repo: repo}
}

// ReportQueryInput 报表查询输入
type ReportQueryInput struct {
	TenantID     string
	Currency     string
	Range        string
	From         *time.Time
	To           *time.Time
	Timezone     string
	ForceRefresh bool
}

// LedgerReportResponse 账本报表
type LedgerReportResponse struct {
	TenantID       string              `json:"tenant_id"`
	Range          string              `json:"range"`
	From           string              `json:"from"`
	To             string              `json:"to"`
	Timezone       string              `json:"timezone"`
	Currency       string              `json:"currency,omitempty"`
	KPI            LedgerKPI           `json:"kpi"`
	Trends         []LedgerTrendPoint  `json:"trends"`
	PayoutStatuses []PayoutStatusCount `json:"payout_statuses"`
	TopVendors     []VendorRanking     `json:"top_vendors"`
	Alerts         []ReportAlertItem   `json:"alerts"`
}

// LedgerKPI 账本核心指标（金额为最小货币单位）
type LedgerKPI struct {
	SalesCount        int64  `json:"sales_count"`
	RefundCount       int64  `json:"refund_count"`
	AdjustmentCount   int64  `json:"adjustment_count"`
	ReversalCount     int64  `json:"reversal_count"`
	GrossAmount       int64  `json:"gross_amount"`
	CommissionAmount  int64  `json:"commission_amount"`
	PlatformFeeAmount int64  `json:"platform_fee_amount"`
	NetAmount         int64  `json:"net_amount"`
	UnpaidNetAmount   int64  `json:"unpaid_net_amount"`
	EffectiveTakeRate string `json:"effective_take_rate"`
}

// LedgerTrendPoint 趋势点
type LedgerTrendPoint struct {
	Date             string `json:"date"`
	TransactionCount int64  `json:"transaction_count"`
	CommissionAmount int64  `json:"commission_amount"`
	NetAmount        int64  `json:"net_amount"`
}

// PayoutStatusCount 打款单状态计数
type PayoutStatusCount struct {
	Status    string `json:"status"`
	Count     int64  `json:"count"`
	NetAmount int64  `json:"net_amount"`
}

// VendorRanking 商家排行项
type VendorRanking struct {
	VendorID         string `json:"vendor_id"`
	TransactionCount int64  `json:"transaction_count"`
	CommissionAmount int64  `json:"commission_amount"`
	NetAmount        int64  `json:"net_amount"`
}

// ReportAlertItem 报表告警项
type ReportAlertItem struct {
	Type  string `json:"type"`
	Level string `json:"level"`
	Value int64  `json:"value"`
}

type reportWindow struct {
	rangeKey string
	startAt  time.Time
	endAt    time.Time
	timezone string
}

// GetLedgerReport 获取租户账本报表
func (s *ReportService) GetLedgerReport(ctx context.Context, input ReportQueryInput) (*LedgerReportResponse, error) {
	tenantID := strings.TrimSpace(input.TenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenant_id is required", ErrValidation)
	}
	if s == nil || s.repo == nil {
		return &LedgerReportResponse{TenantID: tenantID}, nil
	}

	window, err := resolveReportWindow(input, time.Now())
	if err != nil {
		return nil, err
	}

	scope := repository.ReportScope{
		TenantID: tenantID,
		Currency: strings.ToUpper(strings.TrimSpace(input.Currency)),
		StartAt:  window.startAt,
		EndAt:    window.endAt,
	}
	// 金额不跨币种汇总：未指定时窗口内只能有一个币种
	if scope.Currency == "" {
		currencies, err := s.repo.ListCurrencies(scope)
		if err != nil {
			return nil, err
		}
		if len(currencies) > 1 {
			return nil, fmt.Errorf("%w (found %s)", ErrReportCurrencyRequired, strings.Join(currencies, ","))
		}
		if len(currencies) == 1 {
			scope.Currency = currencies[0]
		}
	}

	cacheKey := fmt.Sprintf("report:ledger:%s:%s:%s:%d:%d:%s",
		tenantID,
		scope.Currency,
		window.rangeKey,
		window.startAt.Unix(),
		window.endAt.Unix(),
		window.timezone,
	)
	if !input.ForceRefresh {
		var cached LedgerReportResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	overview, err := s.repo.GetLedgerOverview(scope)
	if err != nil {
		return nil, err
	}
	trends, err := s.repo.GetCommissionTrends(scope)
	if err != nil {
		return nil, err
	}
	statuses, err := s.repo.GetPayoutStatusBreakdown(scope)
	if err != nil {
		return nil, err
	}
	vendors, err := s.repo.GetTopVendors(scope, reportTopVendors)
	if err != nil {
		return nil, err
	}

	takeRate := 0.0
	if overview.GrossAmount > 0 {
		takeRate = float64(overview.CommissionAmount+overview.PlatformFeeAmount) / float64(overview.GrossAmount) * 100
	}

	response := &LedgerReportResponse{
		TenantID: tenantID,
		Range:    window.rangeKey,
		From:     window.startAt.Format(time.RFC3339),
		To:       window.endAt.Add(-time.Second).Format(time.RFC3339),
		Timezone: window.timezone,
		Currency: scope.Currency,
		KPI: LedgerKPI{
			SalesCount:        overview.SalesCount,
			RefundCount:       overview.RefundCount,
			AdjustmentCount:   overview.AdjustmentCount,
			ReversalCount:     overview.ReversalCount,
			GrossAmount:       overview.GrossAmount,
			CommissionAmount:  overview.CommissionAmount,
			PlatformFeeAmount: overview.PlatformFeeAmount,
			NetAmount:         overview.NetAmount,
			UnpaidNetAmount:   overview.UnpaidNetAmount,
			EffectiveTakeRate: formatPercentValue(takeRate),
		},
		Trends:         make([]LedgerTrendPoint, 0, len(trends)),
		PayoutStatuses: make([]PayoutStatusCount, 0, len(statuses)),
		TopVendors:     make([]VendorRanking, 0, len(vendors)),
		Alerts:         buildReportAlerts(overview, statuses),
	}
	for _, row := range trends {
		response.Trends = append(response.Trends, LedgerTrendPoint{
			Date:             row.Day,
			TransactionCount: row.TransactionCount,
			CommissionAmount: row.CommissionAmount,
			NetAmount:        row.NetAmount,
		})
	}
	for _, row := range statuses {
		response.PayoutStatuses = append(response.PayoutStatuses, PayoutStatusCount{
			Status:    row.Status,
			Count:     row.Count,
			NetAmount: row.NetAmount,
		})
	}
	for _, row := range vendors {
		response.TopVendors = append(response.TopVendors, VendorRanking{
			VendorID:         row.VendorID,
			TransactionCount: row.TransactionCount,
			CommissionAmount: row.CommissionAmount,
			NetAmount:        row.NetAmount,
		})
	}

	_ = cache.SetJSON(ctx, cacheKey, response, reportCacheTTL)
	return response, nil
}

func resolveReportWindow(input ReportQueryInput, now time.Time) (reportWindow, error) {
	rangeKey := strings.ToLower(strings.TrimSpace(input.Range))
	if rangeKey == "" {
		rangeKey = "7d"
	}

	timezone := strings.TrimSpace(input.Timezone)
	location := time.UTC
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			location = parsed
		} else {
			timezone = ""
		}
	}
	if timezone == "" {
		timezone = location.String()
	}

	localNow := now.In(location)
	todayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, location)
	window := reportWindow{rangeKey: rangeKey, timezone: timezone}

	switch rangeKey {
	case "today":
		window.startAt = todayStart
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "7d":
		window.startAt = todayStart.AddDate(0, 0, -6)
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "30d":
		window.startAt = todayStart.AddDate(0, 0, -29)
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "custom":
		if input.From == nil || input.To == nil {
			return reportWindow{}, ErrReportRangeInvalid
		}
		startAt := input.From.In(location)
		endAt := input.To.In(location)
		if endAt.Before(startAt) {
			return reportWindow{}, ErrReportRangeInvalid
		}
		if endAt.Sub(startAt) > time.Hour*24*reportCustomMaxDays {
			return reportWindow{}, ErrReportRangeInvalid
		}
		window.startAt = startAt
		window.endAt = endAt.Add(time.Second)
	default:
		return reportWindow{}, ErrReportRangeInvalid
	}

	if !window.endAt.After(window.startAt) {
		return reportWindow{}, ErrReportRangeInvalid
	}
	return window, nil
}

func formatPercentValue(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func buildReportAlerts(overview repository.LedgerOverviewRow, statuses []repository.PayoutStatusRow) []ReportAlertItem {
	alerts := make([]ReportAlertItem, 0, 3)
	if overview.DisputedCount > 0 {
		alerts = append(alerts, ReportAlertItem{Type: "disputed_transactions", Level: "warning", Value: overview.DisputedCount})
	}
	if overview.ClampedCount > 0 {
		alerts = append(alerts, ReportAlertItem{Type: "clamped_commissions", Level: "info", Value: overview.ClampedCount})
	}
	for _, row := range statuses {
		if row.Status == constants.PayoutStatusFailed && row.Count > 0 {
			alerts = append(alerts, ReportAlertItem{Type: "failed_payouts", Level: "critical", Value: row.Count})
		}
	}
	return alerts
}
