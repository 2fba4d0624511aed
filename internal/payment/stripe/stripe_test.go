package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeAndValidateConfig(t *testing.T) {
	cfg := NormalizeConfig(Config{
		SecretKey:     " sk_test_123 ",
		WebhookSecret: " whsec_123 ",
	})
	if cfg.SecretKey != "sk_test_123" {
		t.Fatalf("unexpected secret key: %s", cfg.SecretKey)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("unexpected default api base url: %s", cfg.APIBaseURL)
	}
	if cfg.WebhookToleranceSeconds != defaultWebhookToleranceS {
		t.Fatalf("unexpected default tolerance: %d", cfg.WebhookToleranceSeconds)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("validate config failed: %v", err)
	}
	if err := ValidateConfig(&Config{APIBaseURL: defaultAPIBaseURL}); !errors.Is(err, ErrConfigInvalid) {
		t.Fatalf("expected config invalid without secret key, got %v", err)
	}
}

func TestCreateTransferSendsIdempotencyKey(t *testing.T) {
	var gotKey, gotAuth, gotDestination, gotAmount string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/transfers" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotKey = r.Header.Get("Idempotency-Key")
		gotAuth = r.Header.Get("Authorization")
		_ = r.ParseForm()
		gotDestination = r.PostForm.Get("destination")
		gotAmount = r.PostForm.Get("amount")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"tr_123","object":"transfer","amount":1250,"amount_reversed":0,"currency":"usd","destination":"acct_1","reversed":false}`))
	}))
	defer server.Close()

	cfg := NormalizeConfig(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	result, err := CreateTransfer(context.Background(), cfg, TransferInput{
		Amount:         1250,
		Currency:       "USD",
		Destination:    "acct_1",
		IdempotencyKey: "payout_abc",
		Metadata:       map[string]string{"payout_no": "PO1"},
	})
	if err != nil {
		t.Fatalf("create transfer failed: %v", err)
	}
	if gotKey != "payout_abc" {
		t.Fatalf("expected idempotency key header, got %q", gotKey)
	}
	if gotAuth != "Bearer sk_test" {
		t.Fatalf("unexpected authorization header: %q", gotAuth)
	}
	if gotDestination != "acct_1" || gotAmount != "1250" {
		t.Fatalf("unexpected form: destination=%s amount=%s", gotDestination, gotAmount)
	}
	if result.TransferID != "tr_123" || result.Status != TransferStatusPaid {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Currency != "USD" {
		t.Fatalf("expected upper currency, got %s", result.Currency)
	}
}

func TestCreateTransferClassifiesErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{name: "server error", status: http.StatusBadGateway, want: ErrTransient},
		{name: "rate limited", status: http.StatusTooManyRequests, want: ErrTransient},
		{name: "idempotency in flight", status: http.StatusConflict, want: ErrTransient},
		{name: "account rejected", status: http.StatusBadRequest, want: ErrRejected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"account_invalid","message":"No such destination"}}`))
			}))
			defer server.Close()

			cfg := NormalizeConfig(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
			_, err := CreateTransfer(context.Background(), cfg, TransferInput{
				Amount:         100,
				Currency:       "usd",
				Destination:    "acct_1",
				IdempotencyKey: "payout_1",
			})
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateTransferNetworkErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	cfg := NormalizeConfig(Config{SecretKey: "sk_test", APIBaseURL: baseURL})
	_, err := CreateTransfer(context.Background(), cfg, TransferInput{
		Amount:         100,
		Currency:       "usd",
		Destination:    "acct_1",
		IdempotencyKey: "payout_1",
	})
	if !errors.Is(err, ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestGetTransferReversedIsFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/transfers/tr_9" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"id":"tr_9","object":"transfer","amount":500,"amount_reversed":500,"currency":"eur","reversed":true}`))
	}))
	defer server.Close()

	cfg := NormalizeConfig(Config{SecretKey: "sk_test", APIBaseURL: server.URL})
	result, err := GetTransfer(context.Background(), cfg, "tr_9")
	if err != nil {
		t.Fatalf("get transfer failed: %v", err)
	}
	if result.Status != TransferStatusFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
}

func TestVerifyAndParseWebhookTransferReversed(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	payload := map[string]interface{}{
		"id":   "evt_test_1",
		"type": "transfer.reversed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"object":          "transfer",
				"id":              "tr_123",
				"amount":          1288,
				"amount_reversed": 1288,
				"currency":        "usd",
				"destination":     "acct_1",
				"reversed":        true,
			},
		},
	}
	body, _ := json.Marshal(payload)
	sig := computeSignature(cfg.WebhookSecret, now.Unix(), body)
	headers := map[string]string{
		"stripe-signature": "t=1760000000,v1=" + sig,
	}

	result, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if err != nil {
		t.Fatalf("verify and parse webhook failed: %v", err)
	}
	if result.EventID != "evt_test_1" || result.TransferID != "tr_123" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Status != TransferStatusFailed {
		t.Fatalf("unexpected status: %s", result.Status)
	}
	if result.Amount != 1288 {
		t.Fatalf("unexpected amount: %d", result.Amount)
	}
}

func TestVerifyAndParseWebhookInvalidSignature(t *testing.T) {
	now := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	body := []byte(`{"id":"evt_1","type":"transfer.created","data":{"object":{"object":"transfer","id":"tr_1"}}}`)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=invalid-signature",
	}

	_, err := VerifyAndParseWebhook(cfg, headers, body, now)
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected signature error, got %v", err)
	}
}

func TestVerifyAndParseWebhookOutsideTolerance(t *testing.T) {
	signedAt := time.Unix(1760000000, 0)
	cfg := &Config{
		WebhookSecret:           "whsec_test_abc",
		WebhookToleranceSeconds: 300,
	}
	body := []byte(`{"id":"evt_1","type":"transfer.created","data":{"object":{"object":"transfer","id":"tr_1"}}}`)
	sig := computeSignature(cfg.WebhookSecret, signedAt.Unix(), body)
	headers := map[string]string{
		"Stripe-Signature": "t=1760000000,v1=" + sig,
	}

	_, err := VerifyAndParseWebhook(cfg, headers, body, signedAt.Add(10*time.Minute))
	if !errors.Is(err, ErrSignatureInvalid) {
		t.Fatalf("expected tolerance error, got %v", err)
	}
}

func TestMapTransferStatus(t *testing.T) {
	if got := mapTransferStatus(false, 100, 0); got != TransferStatusPaid {
		t.Fatalf("expected paid, got %s", got)
	}
	if got := mapTransferStatus(false, 100, 40); got != TransferStatusPaid {
		t.Fatalf("partial reversal should stay paid, got %s", got)
	}
	if got := mapTransferStatus(true, 100, 100); got != TransferStatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}
}
