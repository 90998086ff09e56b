package server

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/sessionvault/internal/authz"
	"github.com/mbd888/sessionvault/internal/clock"
	"github.com/mbd888/sessionvault/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var t0 = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		LogFormat:          "text",
		MaxRequestBytes:    config.DefaultMaxRequestBytes,
		CustodyAddress:     config.DefaultCustodyAddress,
		SignatureMaxAge:    time.Minute,
		MonitorInterval:    time.Hour,
		NotifyQueueSize:    64,
		RateLimitPerMinute: 6000,
		RateLimitBurst:     1000,
	}
}

type testServer struct {
	t     *testing.T
	srv   *Server
	clock *clock.Manual
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	clk := clock.NewManual(t0)
	s, err := New(cfg, WithClock(clk))
	require.NoError(t, err)
	t.Cleanup(s.stopBackground)
	return &testServer{t: t, srv: s, clock: clk}
}

type signer struct {
	key  *ecdsa.PrivateKey
	addr string
}

func newSigner(t *testing.T) signer {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return signer{key: key, addr: authz.AddressOf(key)}
}

// do sends a request, signed when as is non-nil.
func (ts *testServer) do(method, path string, body interface{}, as *signer) (int, map[string]interface{}) {
	ts.t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(ts.t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		ts.clock.Advance(time.Second) // fresh message per request
		stamp := ts.clock.Now().Unix()
		sig, err := authz.Sign(authz.RequestMessage(method, req.URL.Path, raw, stamp), as.key)
		require.NoError(ts.t, err)
		req.Header.Set(authz.HeaderSigner, as.addr)
		req.Header.Set(authz.HeaderSignature, sig)
		req.Header.Set(authz.HeaderTimestamp, strconv.FormatInt(stamp, 10))
	}

	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w.Code, out
}

func (ts *testServer) balance(addr string) string {
	ts.t.Helper()
	code, body := ts.do(http.MethodGet, "/v1/balances/"+addr, nil, nil)
	require.Equal(ts.t, http.StatusOK, code, body)
	return body["balance"].(string)
}

func TestEndToEndBookingFlow(t *testing.T) {
	ts := newTestServer(t, testConfig())
	admin, oracle, payer, payee := newSigner(t), newSigner(t), newSigner(t), newSigner(t)
	custody := config.DefaultCustodyAddress

	code, body := ts.do(http.MethodPost, "/v1/vault/initialize", map[string]string{
		"admin": admin.addr, "token": "usdc", "oracle": oracle.addr,
	}, nil)
	require.Equal(t, http.StatusCreated, code, body)

	code, body = ts.do(http.MethodPost, "/v1/dev/mint", map[string]string{
		"to": payer.addr, "amount": "5000",
	}, &admin)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "5000", body["balance"])

	code, body = ts.do(http.MethodPost, "/v1/bookings", map[string]interface{}{
		"payer": payer.addr, "payee": payee.addr, "rate": "10", "bookedDuration": 100,
	}, &payer)
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, float64(1), body["bookingId"])
	assert.Equal(t, "4000", ts.balance(payer.addr))
	assert.Equal(t, "1000", ts.balance(custody))

	code, body = ts.do(http.MethodPost, "/v1/bookings/1/finalize", map[string]interface{}{
		"actualDuration": 50,
	}, &oracle)
	require.Equal(t, http.StatusOK, code, body)
	booking := body["booking"].(map[string]interface{})
	assert.Equal(t, "finalized", booking["status"])

	assert.Equal(t, "4500", ts.balance(payer.addr))
	assert.Equal(t, "500", ts.balance(payee.addr))
	assert.Equal(t, "0", ts.balance(custody))

	code, body = ts.do(http.MethodGet, "/v1/balances/"+payer.addr+"/transfers", nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["count"], "mint, deposit and refund")
}

func TestReclaimAfterThreshold(t *testing.T) {
	ts := newTestServer(t, testConfig())
	admin, oracle, payer, payee := newSigner(t), newSigner(t), newSigner(t), newSigner(t)

	ts.do(http.MethodPost, "/v1/vault/initialize", map[string]string{
		"admin": admin.addr, "token": "usdc", "oracle": oracle.addr,
	}, nil)
	ts.do(http.MethodPost, "/v1/dev/mint", map[string]string{"to": payer.addr, "amount": "1000"}, &admin)
	code, _ := ts.do(http.MethodPost, "/v1/bookings", map[string]interface{}{
		"payer": payer.addr, "payee": payee.addr, "rate": "10", "bookedDuration": 100,
	}, &payer)
	require.Equal(t, http.StatusCreated, code)

	code, body := ts.do(http.MethodPost, "/v1/bookings/1/reclaim", map[string]string{"caller": payer.addr}, &payer)
	assert.Equal(t, http.StatusTooEarly, code)
	assert.Equal(t, "too_early", body["error"])

	ts.clock.Advance(25 * time.Hour)
	code, body = ts.do(http.MethodPost, "/v1/bookings/1/reclaim", map[string]string{"caller": payer.addr}, &payer)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "1000", ts.balance(payer.addr))
}

func TestRateLimit_ClaimedSignerCannotDrainOracle(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 1
	cfg.RateLimitBurst = 5
	ts := newTestServer(t, cfg)
	admin, oracle, payer, payee := newSigner(t), newSigner(t), newSigner(t), newSigner(t)

	ts.do(http.MethodPost, "/v1/vault/initialize", map[string]string{
		"admin": admin.addr, "token": "usdc", "oracle": oracle.addr,
	}, nil)
	ts.do(http.MethodPost, "/v1/dev/mint", map[string]string{"to": payer.addr, "amount": "1000"}, &admin)
	code, body := ts.do(http.MethodPost, "/v1/bookings", map[string]interface{}{
		"payer": payer.addr, "payee": payee.addr, "rate": "10", "bookedDuration": 100,
	}, &payer)
	require.Equal(t, http.StatusCreated, code, body)

	spoof := func() int {
		req := httptest.NewRequest(http.MethodGet, "/v1/vault", nil)
		req.RemoteAddr = "203.0.113.9:4000"
		req.Header.Set(authz.HeaderSigner, oracle.addr)
		w := httptest.NewRecorder()
		ts.srv.Router().ServeHTTP(w, req)
		return w.Code
	}
	for i := 0; i < 5; i++ {
		spoof()
	}
	assert.Equal(t, http.StatusTooManyRequests, spoof(), "the spoofing client is limited by its own IP")

	code, body = ts.do(http.MethodPost, "/v1/bookings/1/finalize", map[string]interface{}{
		"actualDuration": 50,
	}, &oracle)
	require.Equal(t, http.StatusOK, code, body)
}

func TestUnsignedMutationsRejected(t *testing.T) {
	ts := newTestServer(t, testConfig())
	admin, oracle, payer, payee := newSigner(t), newSigner(t), newSigner(t), newSigner(t)
	ts.do(http.MethodPost, "/v1/vault/initialize", map[string]string{
		"admin": admin.addr, "token": "usdc", "oracle": oracle.addr,
	}, nil)

	code, body := ts.do(http.MethodPost, "/v1/bookings", map[string]interface{}{
		"payer": payer.addr, "payee": payee.addr, "rate": "10", "bookedDuration": 100,
	}, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "not_authorized", body["error"])

	code, _ = ts.do(http.MethodPost, "/v1/dev/mint", map[string]string{"to": payer.addr, "amount": "1"}, &payer)
	assert.Equal(t, http.StatusForbidden, code, "only the vault admin can mint")
}

func TestBalanceBeforeInitialize(t *testing.T) {
	ts := newTestServer(t, testConfig())
	addr := newSigner(t).addr

	code, body := ts.do(http.MethodGet, "/v1/balances/"+addr, nil, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "not_initialized", body["error"])

	code, body = ts.do(http.MethodGet, "/v1/balances/"+addr+"?token=usdc", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0", body["balance"])

	code, _ = ts.do(http.MethodGet, "/v1/balances/not-an-address", nil, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestMintOnlyInDevelopment(t *testing.T) {
	cfg := testConfig()
	cfg.Env = "staging"
	ts := newTestServer(t, cfg)
	admin := newSigner(t)

	code, _ := ts.do(http.MethodPost, "/v1/dev/mint", map[string]string{"to": admin.addr, "amount": "1"}, &admin)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestExpertRoutesMounted(t *testing.T) {
	ts := newTestServer(t, testConfig())
	admin, expert := newSigner(t), newSigner(t)

	code, body := ts.do(http.MethodPost, "/v1/experts/initialize", map[string]string{"admin": admin.addr}, nil)
	require.Equal(t, http.StatusCreated, code, body)

	code, _ = ts.do(http.MethodPost, "/v1/experts/"+expert.addr+"/verify", nil, &admin)
	require.Equal(t, http.StatusOK, code)

	code, body = ts.do(http.MethodGet, "/v1/experts/"+expert.addr, nil, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "verified", body["status"])
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t, testConfig())

	code, body := ts.do(http.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "alive", body["status"])

	code, _ = ts.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = ts.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, code, "monitor not started")
	assert.Equal(t, "degraded", body["status"])

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts.srv.startBackground(ctx)
	require.Eventually(t, ts.srv.monitor.Running, time.Second, 5*time.Millisecond)
	ts.srv.ready.Store(true)

	code, body = ts.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, _ = ts.do(http.MethodGet, "/health/ready", nil, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMiddlewareHeaders(t *testing.T) {
	ts := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, req)

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, testConfig())
	ts.do(http.MethodGet, "/v1/vault", nil, nil)

	w := httptest.NewRecorder()
	ts.srv.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sessionvault_http_requests_total")
}

func TestNew_RejectsPrivateWebhookInProduction(t *testing.T) {
	t.Cleanup(func() { gin.SetMode(gin.TestMode) })
	cfg := testConfig()
	cfg.Env = "production"
	cfg.WebhookURL = "http://127.0.0.1:9000/hook"
	cfg.WebhookSecret = "s3cret"

	_, err := New(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_URL")
}

func TestMaskDSN(t *testing.T) {
	masked := maskDSN("postgres://vault:hunter2@db:5432/vault")
	assert.NotContains(t, masked, "hunter2")
	assert.Contains(t, masked, "@db:5432/vault")
	assert.Equal(t, "postgres://db/vault", maskDSN("postgres://db/vault"))
}
