package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/docstore/memstore"
	"github.com/jrsteele09/go-integrations-server/identity"
	"github.com/jrsteele09/go-integrations-server/integrations"
	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/jrsteele09/go-integrations-server/providers/providerstest"
	"github.com/jrsteele09/go-integrations-server/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const (
	identitySecret = "identity-secret-for-tests-0123456789"
	returnURL      = "https://app.example.test/settings?tab=integrations"
)

type testConfig struct {
	config.EnvVars
	config.Cors
	config.OAuth
	config.Security
	*config.Providers
}

type testFixture struct {
	server *server.Server
	issuer *identity.Issuer
	google *providerstest.FakeAdapter
}

func setupTestFixture(t *testing.T, opts ...server.Option) *testFixture {
	t.Helper()
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.test")

	google := providerstest.New(providers.Google)
	svc, err := integrations.New(integrations.Deps{
		Registry:      providers.NewRegistry(google),
		Connections:   connections.NewStore(memstore.New()),
		States:        oauthstate.NewInMemoryRepo(),
		EncryptionKey: "0123456789abcdef0123456789abcdef",
		BaseURL:       "https://integrations.example.test",
	})
	require.NoError(t, err)

	cfg := testConfig{Providers: config.NewProviders(nil)}
	srv, err := server.New(cfg, svc, identity.NewHMACVerifier(identitySecret, "", ""), opts...)
	require.NoError(t, err)
	return &testFixture{
		server: srv,
		issuer: identity.NewIssuer(identitySecret, "", ""),
		google: google,
	}
}

func (f *testFixture) token(t *testing.T, role identity.Role) string {
	t.Helper()
	tok, err := f.issuer.Sign(&identity.Principal{UserID: "u1", OrganizationID: "org1", Role: role}, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *testFixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
	return r
}

// TestHealthz tests the liveness endpoint
func TestHealthz(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodGet, server.RouteHealthz, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, decode(t, rec).Success)
}

// TestRequireAuth tests bearer token enforcement on API routes
func TestRequireAuth(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, server.RouteIntegrations+"?organizationId=org1", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "unauthenticated", decode(t, rec).Error.Code)

	rec = f.do(t, http.MethodGet, server.RouteIntegrations+"?organizationId=org1", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodGet, server.RouteIntegrations+"?organizationId=org1", f.token(t, identity.RoleMember), nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

// TestRequestID tests that every API response carries a request id, echoing one supplied by the caller
func TestRequestID(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodGet, server.RouteProviders, "", nil)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, server.RouteProviders, nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

// TestConnectAndCallback tests the browser round trip through the HTTP surface
func TestConnectAndCallback(t *testing.T) {
	f := setupTestFixture(t)

	rec := f.do(t, http.MethodPost, "/api/integrations/google/connect", f.token(t, identity.RoleAdmin), map[string]string{
		"organizationId": "org1",
		"redirectUrl":    returnURL,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var initiated integrations.InitiateResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &initiated))
	require.Contains(t, initiated.AuthURL, "state="+initiated.State)

	rec = f.do(t, http.MethodGet, server.RouteCallback+"?code=abc&state="+initiated.State, "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, returnURL+"&oauth_success=true&provider=google", rec.Header().Get("Location"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = f.do(t, http.MethodGet, server.RouteIntegrations+"?organizationId=org1", f.token(t, identity.RoleMember), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "access-abc")
	require.Contains(t, rec.Body.String(), `"connected":true`)

	rec = f.do(t, http.MethodPost, "/api/integrations/google/refresh", f.token(t, identity.RoleMember), map[string]string{"organizationId": "org1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/integrations/google/disconnect", f.token(t, identity.RoleAdmin), map[string]string{"organizationId": "org1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, []string{"access-refreshed"}, f.google.RevokeCalls())
}

// TestCallback_UnknownState tests the static error page when no return address is known
func TestCallback_UnknownState(t *testing.T) {
	f := setupTestFixture(t)
	rec := f.do(t, http.MethodGet, server.RouteCallback+"?code=abc&state=nope", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))
	require.Contains(t, rec.Body.String(), "invalid or expired state")
}

// TestErrorMapping tests that service errors become the documented statuses
func TestErrorMapping(t *testing.T) {
	f := setupTestFixture(t)
	admin := f.token(t, identity.RoleAdmin)

	tests := []struct {
		name   string
		path   string
		token  string
		body   any
		status int
		code   string
	}{
		{"unknown provider", "/api/integrations/onedrive/connect", admin, map[string]string{"organizationId": "org1", "redirectUrl": returnURL}, http.StatusBadRequest, "invalid_provider"},
		{"member cannot connect", "/api/integrations/google/connect", f.token(t, identity.RoleMember), map[string]string{"organizationId": "org1", "redirectUrl": returnURL}, http.StatusForbidden, "permission_denied"},
		{"unknown field", "/api/integrations/google/connect", admin, map[string]string{"organization": "org1"}, http.StatusBadRequest, "invalid_argument"},
		{"missing body", "/api/integrations/google/refresh", admin, nil, http.StatusBadRequest, "invalid_argument"},
		{"no connection", "/api/integrations/google/disconnect", admin, map[string]string{"organizationId": "org1"}, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodPost, tt.path, tt.token, tt.body)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			require.Equal(t, tt.code, decode(t, rec).Error.Code)
		})
	}
}

// TestCors tests preflight handling for allowed origins
func TestCors(t *testing.T) {
	f := setupTestFixture(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/integrations/google/connect", nil)
	req.Header.Set("Origin", "https://app.example.test")
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.test", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

// TestRateLimit tests that a client over its budget gets 429
func TestRateLimit(t *testing.T) {
	f := setupTestFixture(t, server.WithRateLimit(server.RateLimitConfig{RequestsPerWindow: 1, Window: time.Minute, Burst: 1}))

	rec := f.do(t, http.MethodGet, server.RouteProviders, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, server.RouteProviders, "", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
}

// TestMetrics tests that the metrics endpoint serves the given gatherer
func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "integrations_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	f := setupTestFixture(t, server.WithMetrics(reg))
	rec := f.do(t, http.MethodGet, server.RouteMetrics, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "integrations_test_total 1")
}
