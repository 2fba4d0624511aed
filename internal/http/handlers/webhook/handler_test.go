package webhook

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/vendorledger/internal/models"
	"github.com/vendorledger/internal/payment/stripe"
	"github.com/vendorledger/internal/provider"
	"github.com/vendorledger/internal/repository"
	"github.com/vendorledger/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

const testWebhookSecret = "whsec_test_handler"

func setupWebhookRouter(t *testing.T) (*gin.Engine, *repository.GormRailEventRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:webhook_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	railEvents := repository.NewRailEventRepository(db)
	rail := service.NewStripeConnectRail(stripe.Config{
		SecretKey:               "sk_test",
		WebhookSecret:           testWebhookSecret,
		WebhookToleranceSeconds: 300,
	})
	c := &provider.Container{
		StripeRail: rail,
		SettlementService: service.NewSettlementService(
			repository.NewPayoutRepository(db),
			repository.NewCommissionRepository(db),
			railEvents,
			map[string]service.PayoutRail{},
			nil,
			nil,
			service.SettlementPolicy{MaxRetries: 1},
		),
	}

	r := gin.New()
	r.POST("/webhooks/stripe", New(c).StripeTransfer)
	return r, railEvents
}

func postSigned(r *gin.Engine, body []byte, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signature)
	r.ServeHTTP(w, req)
	return w
}

func signBody(body []byte) string {
	ts := time.Now().Unix()
	h := hmac.New(sha256.New, []byte(testWebhookSecret))
	_, _ = h.Write([]byte(strconv.FormatInt(ts, 10) + "." + string(body)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(h.Sum(nil)))
}

func decodeReceived(t *testing.T, w *httptest.ResponseRecorder) bool {
	t.Helper()
	var resp map[string]bool
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp["received"]
}

func TestStripeTransferRejectsBadSignature(t *testing.T) {
	r, _ := setupWebhookRouter(t)
	body := []byte(`{"id":"evt_1","type":"transfer.paid","data":{"object":{"object":"transfer","id":"tr_1"}}}`)

	w := postSigned(r, body, fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status want 400 got %d", w.Code)
	}
	if decodeReceived(t, w) {
		t.Fatalf("bad signature should not be received")
	}
}

func TestStripeTransferIgnoresNonTransferEvents(t *testing.T) {
	r, railEvents := setupWebhookRouter(t)
	body := []byte(`{"id":"evt_acct","type":"account.updated","data":{"object":{"object":"account","id":"acct_1"}}}`)

	w := postSigned(r, body, signBody(body))
	if w.Code != http.StatusOK || !decodeReceived(t, w) {
		t.Fatalf("non-transfer event should be acknowledged, got %d %s", w.Code, w.Body.String())
	}
	stored, err := railEvents.GetByEventID("evt_acct")
	if err != nil {
		t.Fatalf("get rail event failed: %v", err)
	}
	if stored != nil {
		t.Fatalf("ignored event should not be stored")
	}
}

func TestStripeTransferStoresUnmatchedEventOnce(t *testing.T) {
	r, railEvents := setupWebhookRouter(t)
	body := []byte(`{"id":"evt_tr","type":"transfer.reversed","data":{"object":{"object":"transfer","id":"tr_unknown","amount":500,"amount_reversed":500,"currency":"usd","reversed":true}}}`)

	w := postSigned(r, body, signBody(body))
	if w.Code != http.StatusOK || !decodeReceived(t, w) {
		t.Fatalf("transfer event should be acknowledged, got %d %s", w.Code, w.Body.String())
	}
	stored, err := railEvents.GetByEventID("evt_tr")
	if err != nil {
		t.Fatalf("get rail event failed: %v", err)
	}
	if stored == nil || stored.TransferID != "tr_unknown" || stored.PayoutID != nil {
		t.Fatalf("unexpected stored event: %+v", stored)
	}

	w = postSigned(r, body, signBody(body))
	if w.Code != http.StatusOK || !decodeReceived(t, w) {
		t.Fatalf("redelivered event should be acknowledged, got %d", w.Code)
	}
}

func TestStripeTransferWithoutRail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/webhooks/stripe", New(&provider.Container{}).StripeTransfer)

	w := postSigned(r, []byte(`{}`), "t=1,v1=x")
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp.StatusCode != 404 {
		t.Fatalf("status_code want 404 got %d", resp.StatusCode)
	}
}
