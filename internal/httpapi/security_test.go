package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"caixa/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("expected nosniff header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected frame deny header")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected configured allowed origin")
	}
}

func TestPreflightReturnsNoContent(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	for i := 0; i < 6; i++ {
		body := bytes.NewBufferString(`{"username":"caixa","password":"wrong-password"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", body)
		req.RemoteAddr = "10.0.0.10:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 5 && rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 before limit, got %d at attempt %d", rec.Code, i+1)
		}
		if i == 5 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 at attempt %d, got %d", i+1, rec.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	huge := strings.Repeat("a", (1<<20)+32)
	payload := `{"username":"caixa","password":"` + huge + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(payload))
	req.RemoteAddr = "10.0.0.11:12345"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
}

func TestUnknownJSONFieldsRejected(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "caixa", "caixa123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/withdrawals", token, csrf, map[string]any{
		"amount":  "10.00",
		"bogus":   true,
		"comment": "x",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown fields, got %d", rec.Code)
	}
}

func TestSupervisorPINRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "caixa", "caixa123")
	csrf := fetchCSRFToken(t, api)

	for i := 0; i < 9; i++ {
		body := bytes.NewBufferString(`{"supervisor_pin":"000000"}`)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shifts/turno-x/reopen", body)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-CSRF-Token", csrf)
		req.RemoteAddr = "10.0.0.12:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 8 && rec.Code != http.StatusForbidden {
			t.Fatalf("expected 403 before pin limit, got %d at attempt %d", rec.Code, i+1)
		}
		if i == 8 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429 at pin attempt %d, got %d", i+1, rec.Code)
		}
	}
}

func TestParsePositiveLimitCaps(t *testing.T) {
	if got := parsePositiveLimit("9999", 100, 500); got != 500 {
		t.Fatalf("expected capped limit 500, got %d", got)
	}
	if got := parsePositiveLimit("-1", 100, 500); got != 100 {
		t.Fatalf("expected fallback limit 100, got %d", got)
	}
	if got := parsePositiveLimit("25", 100, 500); got != 25 {
		t.Fatalf("expected explicit limit 25, got %d", got)
	}
}

func TestCSRFTokenAcceptsPreviousHour(t *testing.T) {
	api := newTestAPI(t)

	token := api.generateCSRFToken()
	if !api.validateCSRFToken(token) {
		t.Fatalf("expected current token to validate")
	}
	if api.validateCSRFToken("deadbeef") || api.validateCSRFToken("") {
		t.Fatalf("expected forged tokens to be rejected")
	}
}

func fetchCSRFToken(t *testing.T, api *API) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf-token", nil)
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("fetch csrf token: expected 200, got %d", rec.Code)
	}
	var body struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf token: %v", err)
	}
	if body.CSRFToken == "" {
		t.Fatalf("expected csrf token")
	}
	return body.CSRFToken
}

func loginAs(t *testing.T, api *API, username, password string) string {
	t.Helper()
	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.RemoteAddr = "10.0.0.99:12345"
	rec := httptest.NewRecorder()
	api.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("login as %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return resp.AccessToken
}

func mustDecimal(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", raw, err)
	}
	return d
}
