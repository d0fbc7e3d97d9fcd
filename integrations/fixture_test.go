package integrations_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/docstore/memstore"
	"github.com/jrsteele09/go-integrations-server/envelope"
	"github.com/jrsteele09/go-integrations-server/identity"
	"github.com/jrsteele09/go-integrations-server/integrations"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/jrsteele09/go-integrations-server/providers/providerstest"
	"github.com/stretchr/testify/require"
)

const (
	testSecret  = "0123456789abcdef0123456789abcdef"
	returnURL   = "https://app.example.test/settings?tab=integrations"
	testBaseURL = "https://integrations.example.test"
)

var (
	fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	admin    = &identity.Principal{UserID: "u1", OrganizationID: "org1", Role: identity.RoleAdmin}
	member   = &identity.Principal{UserID: "u2", OrganizationID: "org1", Role: identity.RoleMember}
)

type testFixture struct {
	now     time.Time
	docs    *memstore.Store
	conns   *connections.Store
	states  *oauthstate.InMemoryRepo
	google  *providerstest.FakeAdapter
	slack   providerstest.AuxiliaryAdapter
	service *integrations.Service
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{now: fixedNow}
	clock := func() time.Time { return f.now }

	f.docs = memstore.New(memstore.WithNowTime(clock))
	f.conns = connections.NewStore(f.docs,
		connections.WithMultiConnectionProviders(providers.Slack),
		connections.WithNowTime(clock),
	)
	f.states = oauthstate.NewInMemoryRepo()

	f.google = providerstest.New(providers.Google)
	slack := providerstest.New(providers.Slack)
	slack.Desc.MultiConnection = true
	slack.Desc.IssuesRefreshTokens = false
	slack.Desc.TokensExpire = false
	slack.ExchangeFunc = func(code string) (*providers.TokenSet, error) {
		return &providers.TokenSet{
			AccessToken:  "xoxb-" + code,
			Scopes:       []string{"chat:write"},
			Account:      providers.AccountInfo{Email: "bot@example.com", ID: "U1"},
			ConnectionID: "T1",
			Extra:        map[string]string{"teamName": "Crew"},
		}, nil
	}
	f.slack = providerstest.AuxiliaryAdapter{FakeAdapter: slack}

	svc, err := integrations.New(integrations.Deps{
		Registry:      providers.NewRegistry(f.google, f.slack),
		Connections:   f.conns,
		States:        f.states,
		EncryptionKey: testSecret,
		BaseURL:       testBaseURL,
	},
		integrations.WithNowTime(clock),
		integrations.WithStateLookup(2, time.Millisecond),
	)
	require.NoError(t, err)
	f.service = svc
	return f
}

// connect runs a full initiate and callback for provider and returns the state used.
func (f *testFixture) connect(t *testing.T, provider providers.Name, code string) *integrations.CallbackOutcome {
	t.Helper()
	ctx := context.Background()
	resp, err := f.service.Initiate(ctx, admin, integrations.InitiateRequest{
		Provider:       provider,
		OrganizationID: "org1",
		RedirectURL:    returnURL,
	})
	require.NoError(t, err)
	out, err := f.service.Callback(ctx, integrations.CallbackRequest{State: resp.State, Code: code})
	require.NoError(t, err)
	return out
}

// seed writes an active google connection with sealed tokens.
func (f *testFixture) seed(t *testing.T, failures int) {
	t.Helper()
	access, err := envelope.Encrypt("stored-access", testSecret)
	require.NoError(t, err)
	refresh, err := envelope.Encrypt("stored-refresh", testSecret)
	require.NoError(t, err)
	active := true
	expiry := f.now.Add(10 * time.Minute)
	_, err = f.conns.Upsert(context.Background(), connections.Key{OrganizationID: "org1", Provider: providers.Google}, connections.Patch{
		AccessToken:                &access,
		RefreshToken:               &refresh,
		TokenExpiresAt:             &expiry,
		IsActive:                   &active,
		ConsecutiveRefreshFailures: &failures,
	})
	require.NoError(t, err)
}

func (f *testFixture) googleConnection(t *testing.T) *connections.Connection {
	t.Helper()
	c, err := f.conns.Get(context.Background(), connections.Key{OrganizationID: "org1", Provider: providers.Google})
	require.NoError(t, err)
	return c
}

func decrypt(t *testing.T, sealed string) string {
	t.Helper()
	require.True(t, envelope.IsEnvelope(sealed))
	plain, err := envelope.Decrypt(sealed, testSecret)
	require.NoError(t, err)
	return plain
}

func queryOf(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}
