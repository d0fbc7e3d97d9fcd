package providers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/jrsteele09/go-integrations-server/providers"
)

const (
	testClientID     = "client-123"
	testClientSecret = "secret-456"
	testOrgID        = "org1"
	testRedirectURI  = "https://integrations.example.com/oauth/callback"
	testState        = "state-abc"
)

// fakeProvider is a local stand-in for a provider's token, identity and revoke endpoints.
type fakeProvider struct {
	t      *testing.T
	server *httptest.Server

	mu         sync.Mutex
	tokenForms []map[string][]string
	revoked    []string

	// tokenStatus and tokenBody are returned by the token endpoint.
	tokenStatus int
	tokenBody   map[string]any
	// identityStatus controls every identity endpoint.
	identityStatus int
	// slackOK controls the ok flag of Slack API responses.
	slackOK    bool
	slackError string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	f := &fakeProvider{
		t:           t,
		tokenStatus: http.StatusOK,
		tokenBody: map[string]any{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		},
		identityStatus: http.StatusOK,
		slackOK:        true,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", f.handleToken)
	mux.HandleFunc("POST /revoke", f.handleRevoke)
	mux.HandleFunc("GET /.well-known/openid-configuration", f.handleDiscovery)
	mux.HandleFunc("GET /userinfo", f.identity(map[string]any{
		"sub": "google-sub-1", "email": "owner@example.com", "email_verified": true, "name": "Olive Owner",
	}))
	mux.HandleFunc("GET /2.0/users/me", f.identity(map[string]any{
		"id": "box-1", "name": "Bea Box", "login": "bea@example.com",
	}))
	mux.HandleFunc("POST /2/users/get_current_account", f.identity(map[string]any{
		"account_id": "dbid:1", "email": "dee@example.com", "name": map[string]any{"display_name": "Dee Drop"},
	}))
	mux.HandleFunc("POST /2/auth/token/revoke", f.handleRevoke)
	mux.HandleFunc("POST /slack/oauth.v2.access", f.handleSlackAccess)
	mux.HandleFunc("POST /slack/auth.test", f.slack(map[string]any{"team_id": "T123", "team": "Crew"}))
	mux.HandleFunc("POST /slack/auth.revoke", f.slack(map[string]any{"revoked": true}))
	mux.HandleFunc("GET /slack/users.info", f.slack(map[string]any{
		"user": map[string]any{"real_name": "Sam Slack", "profile": map[string]any{"email": "sam@example.com"}},
	}))

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeProvider) URL() string { return f.server.URL }

func (f *fakeProvider) endpoints() []providers.Option {
	return []providers.Option{
		providers.WithHTTPClient(f.server.Client()),
		providers.WithEndpoints(f.URL()+"/authorize", f.URL()+"/token"),
		providers.WithRevokeURL(f.URL() + "/revoke"),
		providers.WithAPIBaseURL(f.URL()),
		providers.WithIssuer(f.URL()),
	}
}

func (f *fakeProvider) slackEndpoints() []providers.Option {
	return []providers.Option{
		providers.WithHTTPClient(f.server.Client()),
		providers.WithEndpoints(f.URL()+"/slack/authorize", f.URL()+"/slack/oauth.v2.access"),
		providers.WithAPIBaseURL(f.URL() + "/slack"),
	}
}

func (f *fakeProvider) lastTokenForm() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokenForms) == 0 {
		return nil
	}
	return f.tokenForms[len(f.tokenForms)-1]
}

func (f *fakeProvider) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeProvider) handleToken(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.tokenForms = append(f.tokenForms, r.PostForm)
	status, body := f.tokenStatus, f.tokenBody
	f.mu.Unlock()
	writeJSON(w, status, body)
}

func (f *fakeProvider) handleRevoke(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	token := r.PostForm.Get("token")
	if token == "" {
		token = r.Header.Get("Authorization")
	}
	f.mu.Lock()
	f.revoked = append(f.revoked, token)
	f.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (f *fakeProvider) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                f.URL(),
		"authorization_endpoint":                f.URL() + "/authorize",
		"token_endpoint":                        f.URL() + "/token",
		"jwks_uri":                              f.URL() + "/jwks",
		"userinfo_endpoint":                     f.URL() + "/userinfo",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (f *fakeProvider) identity(body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}
		f.mu.Lock()
		status := f.identityStatus
		f.mu.Unlock()
		if status != http.StatusOK {
			writeJSON(w, status, map[string]any{"error": "server_error"})
			return
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func (f *fakeProvider) slack(body map[string]any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		ok, errCode := f.slackOK, f.slackError
		if r.URL.Path == "/slack/auth.revoke" {
			f.revoked = append(f.revoked, r.Header.Get("Authorization"))
		}
		f.mu.Unlock()
		out := map[string]any{"ok": ok}
		if !ok {
			out["error"] = errCode
		} else {
			for k, v := range body {
				out[k] = v
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func (f *fakeProvider) handleSlackAccess(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.tokenForms = append(f.tokenForms, r.PostForm)
	ok, errCode := f.slackOK, f.slackError
	f.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": errCode})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":           true,
		"access_token": "xoxb-bot-token",
		"token_type":   "bot",
		"scope":        "chat:write,users:read",
		"bot_user_id":  "UBOT",
		"app_id":       "A1",
		"team":         map[string]any{"id": "T123", "name": "Crew"},
		"authed_user":  map[string]any{"id": "U42"},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func processCredentials() *providers.CredentialResolver {
	creds := config.ProviderCredentials{ClientID: testClientID, ClientSecret: testClientSecret}
	return providers.NewCredentialResolver(providers.NewProcessSource(config.NewProviders(map[string]config.ProviderCredentials{
		"google": creds, "box": creds, "dropbox": creds, "slack": creds,
	})))
}
