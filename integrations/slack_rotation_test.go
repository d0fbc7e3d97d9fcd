package integrations_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/integrations"
	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/stretchr/testify/require"
)

// slackServer answers oauth.v2.access like a workspace with token rotation enabled.
type slackServer struct {
	server *httptest.Server

	mu     sync.Mutex
	calls  []string
	grants []string
}

func newSlackServer(t *testing.T) *slackServer {
	t.Helper()
	s := &slackServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/oauth.v2.access", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		grant := r.PostForm.Get("grant_type")
		s.record(r.URL.Path, grant)

		access, refresh := "xoxe.xoxb-1", "xoxe-1-first"
		if grant == "refresh_token" {
			access, refresh = "xoxe.xoxb-2", "xoxe-1-second"
		}
		writeSlack(w, map[string]any{
			"ok":            true,
			"access_token":  access,
			"refresh_token": refresh,
			"expires_in":    43200,
			"scope":         "chat:write",
			"team":          map[string]any{"id": "T1", "name": "Crew"},
		})
	})
	mux.HandleFunc("POST /api/auth.test", func(w http.ResponseWriter, r *http.Request) {
		s.record(r.URL.Path, "")
		writeSlack(w, map[string]any{"ok": false, "error": "token_expired"})
	})
	s.server = httptest.NewServer(mux)
	t.Cleanup(s.server.Close)
	return s
}

func (s *slackServer) record(path, grant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, path)
	s.grants = append(s.grants, grant)
}

func writeSlack(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

// TestRefreshConnection_RotatesSlackTokens tests that a rotating Slack workspace is refreshed with its refresh token
func TestRefreshConnection_RotatesSlackTokens(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	srv := newSlackServer(t)

	creds := config.ProviderCredentials{ClientID: "slack-id", ClientSecret: "slack-secret"}
	slack := providers.NewSlack(
		providers.NewCredentialResolver(providers.NewProcessSource(config.NewProviders(map[string]config.ProviderCredentials{"slack": creds}))),
		providers.WithHTTPClient(srv.server.Client()),
		providers.WithEndpoints(srv.server.URL+"/oauth/v2/authorize", srv.server.URL+"/api/oauth.v2.access"),
		providers.WithAPIBaseURL(srv.server.URL+"/api"),
	)
	svc, err := integrations.New(integrations.Deps{
		Registry:      providers.NewRegistry(slack),
		Connections:   f.conns,
		States:        f.states,
		EncryptionKey: testSecret,
		BaseURL:       testBaseURL,
	}, integrations.WithNowTime(func() time.Time { return f.now }))
	require.NoError(t, err)

	resp, err := svc.Initiate(ctx, admin, integrations.InitiateRequest{Provider: providers.Slack, OrganizationID: "org1", RedirectURL: returnURL})
	require.NoError(t, err)
	_, err = svc.Callback(ctx, integrations.CallbackRequest{State: resp.State, Code: "c1"})
	require.NoError(t, err)

	key := connections.Key{OrganizationID: "org1", Provider: providers.Slack, ConnectionID: "T1"}
	stored, err := f.conns.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "xoxe-1-first", decrypt(t, stored.RefreshToken))
	require.NotNil(t, stored.TokenExpiresAt)

	res, err := svc.RefreshConnection(ctx, key)
	require.NoError(t, err)
	require.Equal(t, integrations.OutcomeRefreshed, res.Outcome)
	require.Equal(t, []string{"/api/oauth.v2.access", "/api/oauth.v2.access"}, srv.calls)
	require.Equal(t, []string{"", "refresh_token"}, srv.grants)

	c, err := f.conns.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, c.IsActive)
	require.Equal(t, "xoxe.xoxb-2", decrypt(t, c.AccessToken))
	require.Equal(t, "xoxe-1-second", decrypt(t, c.RefreshToken))
	require.NotNil(t, c.TokenExpiresAt)
}
