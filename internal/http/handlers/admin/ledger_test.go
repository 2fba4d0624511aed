package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	handlershared "github.com/vendorledger/internal/http/handlers/shared"
	"github.com/vendorledger/internal/http/response"
	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/provider"
	"github.com/vendorledger/internal/repository"
	"github.com/vendorledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type apiResponse struct {
	StatusCode int             `json:"status_code"`
	Msg        string          `json:"msg"`
	Data       json.RawMessage `json:"data"`
}

func setupAdminRouter(t *testing.T, operator string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:admin_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	c := &provider.Container{
		CommissionRuleRepo: repository.NewCommissionRuleRepository(db),
		CommissionRepo:     repository.NewCommissionRepository(db),
		PayoutRepo:         repository.NewPayoutRepository(db),
		VendorProfileRepo:  repository.NewVendorProfileRepository(db),
		TenantSettingRepo:  repository.NewTenantSettingRepository(db),
	}
	c.DirectoryService = service.NewDirectoryService(c.VendorProfileRepo, c.TenantSettingRepo, models.MustRate("0"))
	c.RuleResolver = service.NewRuleResolver(c.CommissionRuleRepo, 0)
	c.LedgerService = service.NewLedgerService(c.CommissionRepo, c.PayoutRepo, c.RuleResolver, c.DirectoryService)
	c.PayoutBatchService = service.NewPayoutBatchService(c.CommissionRepo, c.PayoutRepo, c.DirectoryService, c.DirectoryService, 0)

	h := New(c)
	r := gin.New()
	r.Use(func(ctx *gin.Context) {
		if operator != "" {
			ctx.Set(handlershared.OperatorContextKey, operator)
		}
		ctx.Next()
	})
	r.POST("/ledger/sales", h.RecordSale)
	r.POST("/ledger/refunds", h.RecordRefund)
	r.POST("/ledger/adjustments", h.RecordAdjustment)
	r.GET("/ledger/transactions/:id", h.GetCommissionTransaction)
	r.POST("/payouts/:id/approve", h.ApprovePayout)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("http status want 200 got %d", w.Code)
	}
	var resp apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestLedgerHandlersRecordSaleAndRefund(t *testing.T) {
	r := setupAdminRouter(t, "ops-1")

	resp := doJSON(t, r, http.MethodPost, "/ledger/sales", gin.H{
		"tenant_id":     "t1",
		"order_id":      "o1",
		"vendor_id":     "v1",
		"currency_code": "usd",
		"subtotal":      1000,
		"total":         1000,
	})
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("record sale failed: %+v", resp)
	}
	var sale models.CommissionTransaction
	if err := json.Unmarshal(resp.Data, &sale); err != nil {
		t.Fatalf("unmarshal sale failed: %v", err)
	}
	if sale.ID == 0 || sale.CurrencyCode != "USD" || sale.NetAmount != 1000 {
		t.Fatalf("unexpected sale: %+v", sale)
	}

	resp = doJSON(t, r, http.MethodGet, fmt.Sprintf("/ledger/transactions/%d", sale.ID), nil)
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("get transaction failed: %+v", resp)
	}

	resp = doJSON(t, r, http.MethodPost, "/ledger/refunds", gin.H{
		"order_id":                "o1",
		"original_transaction_id": sale.ID,
		"amount":                  5000,
		"reference":               "r1",
	})
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("over refund should be rejected, got %+v", resp)
	}

	resp = doJSON(t, r, http.MethodPost, "/ledger/adjustments", gin.H{
		"order_id":                 "o1",
		"reference_transaction_id": sale.ID,
		"amount":                   -100,
		"reference":                "adj-1",
	})
	if resp.StatusCode != response.CodeOK {
		t.Fatalf("record adjustment failed: %+v", resp)
	}

	resp = doJSON(t, r, http.MethodGet, "/ledger/transactions/9999", nil)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("missing transaction want 404 got %+v", resp)
	}
}

func TestLedgerHandlersRejectInvalidBody(t *testing.T) {
	r := setupAdminRouter(t, "ops-1")

	resp := doJSON(t, r, http.MethodPost, "/ledger/sales", gin.H{"tenant_id": "t1"})
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("missing fields should be rejected, got %+v", resp)
	}
	resp = doJSON(t, r, http.MethodGet, "/ledger/transactions/abc", nil)
	if resp.StatusCode != response.CodeBadRequest {
		t.Fatalf("bad id should be rejected, got %+v", resp)
	}
}

func TestApprovePayoutRequiresOperator(t *testing.T) {
	r := setupAdminRouter(t, "")
	resp := doJSON(t, r, http.MethodPost, "/payouts/1/approve", nil)
	if resp.StatusCode != response.CodeUnauthorized {
		t.Fatalf("missing operator want 401 got %+v", resp)
	}

	r = setupAdminRouter(t, "ops-1")
	resp = doJSON(t, r, http.MethodPost, "/payouts/1/approve", nil)
	if resp.StatusCode != response.CodeNotFound {
		t.Fatalf("missing payout want 404 got %+v", resp)
	}
}
