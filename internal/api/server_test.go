package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fabhost/agent/internal/agent"
	"github.com/fabhost/agent/internal/config"
)

func testAgent(t *testing.T) *agent.Agent {
	t.Helper()
	cfg := config.OperatorConfig{
		Version:       config.CurrentVersion,
		WalletAddress: "0x1234567890123456789012345678901234567890",
		Network:       "base-sepolia",
		RPCEndpoints:  []string{"https://example.invalid/rpc"},
		Contracts: config.ContractAddresses{
			Marketplace: "0x0000000000000000000000000000000000000001",
			Registry:    "0x0000000000000000000000000000000000000002",
			Proof:       "0x0000000000000000000000000000000000000003",
			Earnings:    "0x0000000000000000000000000000000000000004",
			FabricToken: "0x0000000000000000000000000000000000000005",
			StableToken: "0x0000000000000000000000000000000000000006",
		},
		ListenPort: 8080,
		PublicURL:  "https://host.example.invalid",
		Models:     []string{"llama-3-8b"},
		Resilience: config.DefaultResilienceConfig(),
	}
	a, err := agent.Initialize(context.Background(), cfg, agent.Deps{})
	if err != nil {
		t.Fatalf("agent.Initialize: %v", err)
	}
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

func TestHealth_AlwaysOpen(t *testing.T) {
	s := New(testAgent(t), Config{APIKey: "secret"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Status != "ok" {
		t.Fatalf("expected status ok, got %q", body.Status)
	}
}

func TestAPIKey_RejectsMissingKey(t *testing.T) {
	s := New(testAgent(t), Config{APIKey: "secret"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAPIKey_AcceptsCorrectKey(t *testing.T) {
	s := New(testAgent(t), Config{APIKey: "secret"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var status statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if status.Authenticated {
		t.Fatal("expected a freshly initialized agent to be unauthenticated")
	}
}

func TestRegister_RequiresPrivateKeyWhenUnauthenticated(t *testing.T) {
	s := New(testAgent(t), Config{}, nil)

	body := `{"publicUrl":"https://host.example.invalid","models":["llama-3-8b"],"stakeAmount":"1000"}`
	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestStop_ConflictsWhenNotStarted(t *testing.T) {
	s := New(testAgent(t), Config{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/stop", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestSecurityHeaders_SetOnEveryRoute(t *testing.T) {
	s := New(testAgent(t), Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options: nosniff, got %q", got)
	}
}

func TestRateLimit_RejectsOverBudgetCallers(t *testing.T) {
	s := New(testAgent(t), Config{RateLimitPerSecond: 1, RateLimitBurst: 1}, nil)

	var last *httptest.ResponseRecorder
	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		last = rec
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst budget is exhausted, got %d", last.Code)
	}
}

func TestCORS_AllowsBareHostname(t *testing.T) {
	s := New(testAgent(t), Config{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("expected CORS to allow localhost origin, got %q", got)
	}
}
