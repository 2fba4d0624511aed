package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	handlershared "github.com/vendorledger/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"request_id": getRequestID(c)})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(requestIDHeader, "req-123")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if w.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("response request id want req-123 got %s", w.Header().Get(requestIDHeader))
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	if resp["request_id"] != "req-123" {
		t.Fatalf("context request id want req-123 got %s", resp["request_id"])
	}

	w2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w2, req2)
	generated := w2.Header().Get(requestIDHeader)
	if generated == "" {
		t.Fatalf("generated request id should not be empty")
	}
	if resp := strings.TrimSpace(generated); resp == "" {
		t.Fatalf("generated request id should not be blank")
	}
}

func signOperatorToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token failed: %v", err)
	}
	return token
}

func serveOperatorPing(secret, issuer, authHeader string) (*httptest.ResponseRecorder, string) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(OperatorAuthMiddleware(secret, issuer))
	var operator string
	r.GET("/ops/ping", func(c *gin.Context) {
		operator = handlershared.GetOperator(c)
		c.JSON(http.StatusOK, gin.H{"status_code": 0})
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ops/ping", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	r.ServeHTTP(w, req)
	return w, operator
}

func decodeStatusCode(t *testing.T, w *httptest.ResponseRecorder) int {
	t.Helper()
	var resp struct {
		StatusCode int `json:"status_code"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response failed: %v", err)
	}
	return resp.StatusCode
}

func TestOperatorAuthMiddlewareMissingSecret(t *testing.T) {
	w, operator := serveOperatorPing("", "", "Bearer whatever")
	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if code := decodeStatusCode(t, w); code != 401 {
		t.Fatalf("status_code want 401 got %d", code)
	}
	if operator != "" {
		t.Fatalf("handler should not run, got operator %q", operator)
	}
}

func TestOperatorAuthMiddlewareAcceptsValidToken(t *testing.T) {
	secret := "ops-secret"
	token := signOperatorToken(t, secret, jwt.RegisteredClaims{
		Subject:   "ops-alice",
		Issuer:    "idp",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	w, operator := serveOperatorPing(secret, "idp", "Bearer "+token)
	if code := decodeStatusCode(t, w); code != 0 {
		t.Fatalf("status_code want 0 got %d", code)
	}
	if operator != "ops-alice" {
		t.Fatalf("operator want ops-alice got %q", operator)
	}
}

func TestOperatorAuthMiddlewareRejectsBadTokens(t *testing.T) {
	secret := "ops-secret"
	valid := jwt.RegisteredClaims{
		Subject:   "ops-alice",
		Issuer:    "idp",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	noSubject := valid
	noSubject.Subject = ""
	noExpiry := valid
	noExpiry.ExpiresAt = nil
	otherIssuer := valid
	otherIssuer.Issuer = "someone-else"

	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Token " + signOperatorToken(t, secret, valid),
		"wrong secret":   "Bearer " + signOperatorToken(t, "other-secret", valid),
		"expired":        "Bearer " + signOperatorToken(t, secret, expired),
		"no subject":     "Bearer " + signOperatorToken(t, secret, noSubject),
		"no expiry":      "Bearer " + signOperatorToken(t, secret, noExpiry),
		"wrong issuer":   "Bearer " + signOperatorToken(t, secret, otherIssuer),
	}
	for name, header := range cases {
		w, operator := serveOperatorPing(secret, "idp", header)
		if code := decodeStatusCode(t, w); code != 401 {
			t.Fatalf("%s: status_code want 401 got %d", name, code)
		}
		if operator != "" {
			t.Fatalf("%s: handler should not run", name)
		}
	}
}
