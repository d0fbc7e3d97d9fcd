package integrations_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/docstore"
	"github.com/jrsteele09/go-integrations-server/integrations"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/stretchr/testify/require"
)

func initiate(t *testing.T, f *testFixture, provider providers.Name) string {
	t.Helper()
	resp, err := f.service.Initiate(context.Background(), admin, integrations.InitiateRequest{
		Provider:       provider,
		OrganizationID: "org1",
		RedirectURL:    returnURL,
	})
	require.NoError(t, err)
	return resp.State
}

// TestCallback_CompletesConnection tests the initiate to callback scenario end to end
func TestCallback_CompletesConnection(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	state := initiate(t, f, providers.Google)

	out, err := f.service.Callback(ctx, integrations.CallbackRequest{State: state, Code: "code1"})
	require.NoError(t, err)
	require.Equal(t, returnURL+"&oauth_success=true&provider=google", out.RedirectURL)
	require.Equal(t, providers.Google, out.Provider)
	require.Equal(t, "org1", out.OrganizationID)
	require.True(t, out.Connection.IsActive)
	require.Equal(t, "owner@example.com", out.Connection.AccountEmail)

	c := f.googleConnection(t)
	require.True(t, c.IsActive)
	require.NotEmpty(t, c.AccessToken)
	require.NotEqual(t, "access-code1", c.AccessToken)
	require.Equal(t, "access-code1", decrypt(t, c.AccessToken))
	require.Equal(t, "refresh-code1", decrypt(t, c.RefreshToken))
	require.Equal(t, "u1", c.ConnectedBy)
	require.Equal(t, fixedNow, c.ConnectedAt)
	require.Zero(t, c.ConsecutiveRefreshFailures)
	require.Equal(t, []string{"code1"}, f.google.Exchanged)

	_, err = f.states.Get(ctx, state)
	require.ErrorIs(t, err, interrors.ErrStateNotFound)
}

// TestCallback_StateSingleUse tests that a consumed state cannot be replayed
func TestCallback_StateSingleUse(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	state := initiate(t, f, providers.Google)

	_, err := f.service.Callback(ctx, integrations.CallbackRequest{State: state, Code: "code1"})
	require.NoError(t, err)

	out, err := f.service.Callback(ctx, integrations.CallbackRequest{State: state, Code: "code1"})
	require.Equal(t, interrors.CodeNotFound, interrors.CodeOf(err))
	require.Empty(t, out.RedirectURL)
	require.Len(t, f.google.Exchanged, 1)
}

// TestCallback_ExpiredState tests that a state past its TTL fails even if still stored
func TestCallback_ExpiredState(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	state := initiate(t, f, providers.Google)
	f.now = fixedNow.Add(time.Hour)

	out, err := f.service.Callback(ctx, integrations.CallbackRequest{State: state, Code: "code1"})
	require.Equal(t, interrors.CodeExpiredState, interrors.CodeOf(err))
	require.Equal(t, returnURL+"&oauth_error=expired_state&provider=google", out.RedirectURL)
	require.Empty(t, f.google.Exchanged)

	_, err = f.states.Get(ctx, state)
	require.ErrorIs(t, err, interrors.ErrStateNotFound)
}

// TestCallback_ProviderDenied tests that a provider error is passed back to the caller's page
func TestCallback_ProviderDenied(t *testing.T) {
	f := setupTestFixture(t)
	state := initiate(t, f, providers.Google)

	out, err := f.service.Callback(context.Background(), integrations.CallbackRequest{State: state, Error: "access_denied"})
	require.Error(t, err)
	require.Equal(t, returnURL+"&oauth_error=access_denied&provider=google", out.RedirectURL)

	_, err = f.conns.Get(context.Background(), connections.Key{OrganizationID: "org1", Provider: providers.Google})
	require.ErrorIs(t, err, interrors.ErrConnectionNotFound)
}

// TestCallback_ExchangeFailure tests that a failed code exchange consumes the state and stores nothing
func TestCallback_ExchangeFailure(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.google.ExchangeFunc = func(string) (*providers.TokenSet, error) {
		return nil, providers.NewProviderError(providers.Google, "exchange", 400, "invalid_grant", "bad code", nil)
	}
	state := initiate(t, f, providers.Google)

	out, err := f.service.Callback(ctx, integrations.CallbackRequest{State: state, Code: "bad"})
	require.Equal(t, interrors.CodeInternal, interrors.CodeOf(err))
	require.Equal(t, returnURL+"&oauth_error=internal&provider=google", out.RedirectURL)

	_, err = f.states.Get(ctx, state)
	require.ErrorIs(t, err, interrors.ErrStateNotFound)
	_, err = f.conns.Get(ctx, connections.Key{OrganizationID: "org1", Provider: providers.Google})
	require.ErrorIs(t, err, interrors.ErrConnectionNotFound)
}

// TestCallback_MissingInputs tests empty state and code handling
func TestCallback_MissingInputs(t *testing.T) {
	f := setupTestFixture(t)

	out, err := f.service.Callback(context.Background(), integrations.CallbackRequest{Code: "code1"})
	require.Equal(t, interrors.CodeInvalidArgument, interrors.CodeOf(err))
	require.Empty(t, out.RedirectURL)

	state := initiate(t, f, providers.Google)
	out, err = f.service.Callback(context.Background(), integrations.CallbackRequest{State: state})
	require.Equal(t, interrors.CodeInvalidArgument, interrors.CodeOf(err))
	require.Equal(t, returnURL+"&oauth_error=invalid_argument&provider=google", out.RedirectURL)
}

// TestCallback_MultiConnectionWritesAuxiliary tests per-workspace connection and auxiliary documents
func TestCallback_MultiConnectionWritesAuxiliary(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.connect(t, providers.Slack, "c1")

	c, err := f.conns.Get(ctx, connections.Key{OrganizationID: "org1", Provider: providers.Slack, ConnectionID: "T1"})
	require.NoError(t, err)
	require.Equal(t, "T1", c.ConnectionID)
	require.Equal(t, "xoxb-c1", decrypt(t, c.AccessToken))
	require.Empty(t, c.RefreshToken)
	require.Nil(t, c.TokenExpiresAt)
	require.Equal(t, "Crew", c.Metadata["teamName"])

	aux, err := f.docs.Get(ctx, "fakeAux/T1")
	require.NoError(t, err)
	require.Equal(t, "org1", aux.Data["organizationId"])
}

// lagRepo hides states for the first misses lookups.
type lagRepo struct {
	*oauthstate.InMemoryRepo
	misses atomic.Int32
}

func (r *lagRepo) Get(ctx context.Context, state string) (*oauthstate.State, error) {
	if r.misses.Add(-1) >= 0 {
		return nil, interrors.ErrStateNotFound
	}
	return r.InMemoryRepo.Get(ctx, state)
}

// TestCallback_RetriesStateLookup tests that a lagging state read is retried before giving up
func TestCallback_RetriesStateLookup(t *testing.T) {
	for _, tt := range []struct {
		name   string
		misses int32
		code   interrors.Code
	}{
		{"visible after one retry", 1, ""},
		{"never visible", 5, interrors.CodeNotFound},
	} {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			repo := &lagRepo{InMemoryRepo: f.states}
			svc, err := integrations.New(integrations.Deps{
				Registry:      providers.NewRegistry(f.google),
				Connections:   f.conns,
				States:        repo,
				EncryptionKey: testSecret,
				BaseURL:       testBaseURL,
			},
				integrations.WithNowTime(func() time.Time { return fixedNow }),
				integrations.WithStateLookup(2, time.Millisecond),
			)
			require.NoError(t, err)

			state := initiate(t, f, providers.Google)
			repo.misses.Store(tt.misses)
			_, err = svc.Callback(context.Background(), integrations.CallbackRequest{State: state, Code: "code1"})
			require.Equal(t, tt.code, interrors.CodeOf(err))
		})
	}
}

// failingDocs fails every commit.
type failingDocs struct {
	docstore.Store
}

func (failingDocs) Commit(context.Context, []docstore.Write) error {
	return errors.New("store unavailable")
}

// TestCallback_StoreFailure tests that a write failure still redirects with an error
func TestCallback_StoreFailure(t *testing.T) {
	f := setupTestFixture(t)
	svc, err := integrations.New(integrations.Deps{
		Registry:      providers.NewRegistry(f.google),
		Connections:   connections.NewStore(failingDocs{Store: f.docs}),
		States:        f.states,
		EncryptionKey: testSecret,
		BaseURL:       testBaseURL,
	}, integrations.WithNowTime(func() time.Time { return fixedNow }))
	require.NoError(t, err)

	state := initiate(t, f, providers.Google)
	out, err := svc.Callback(context.Background(), integrations.CallbackRequest{State: state, Code: "code1"})
	require.Equal(t, interrors.CodeInternal, interrors.CodeOf(err))
	require.Equal(t, returnURL+"&oauth_error=internal&provider=google", out.RedirectURL)
}
