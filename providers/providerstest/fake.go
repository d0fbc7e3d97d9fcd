// Package providerstest provides a scriptable providers.Adapter for tests.
package providerstest

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-integrations-server/providers"
)

// FakeAdapter records calls and returns scripted results. Nil funcs fall back to
// deterministic defaults.
type FakeAdapter struct {
	Desc        providers.Descriptor
	Credentials providers.Credentials

	ExchangeFunc func(code string) (*providers.TokenSet, error)
	RefreshFunc  func(refreshToken string) (*providers.TokenSet, error)
	RevokeFunc   func(accessToken string) error
	ConfigErr    error

	mu        sync.Mutex
	Exchanged []string
	Refreshed []string
	Revoked   []string
}

var _ providers.Adapter = (*FakeAdapter)(nil)

// New returns a fake for name with single-connection, expiring token semantics.
func New(name providers.Name) *FakeAdapter {
	return &FakeAdapter{
		Desc: providers.Descriptor{
			Name:                name,
			DisplayName:         strings.ToUpper(name.String()[:1]) + name.String()[1:],
			AuthURL:             "https://auth.example.test/" + name.String() + "/authorize",
			TokenURL:            "https://auth.example.test/" + name.String() + "/token",
			Scopes:              []string{"read", "write"},
			IssuesRefreshTokens: true,
			TokensExpire:        true,
		},
		Credentials: providers.Credentials{ClientID: name.String() + "-client-id", ClientSecret: "secret", Source: "process"},
	}
}

func (f *FakeAdapter) Descriptor() providers.Descriptor {
	return f.Desc
}

func (f *FakeAdapter) Config(context.Context, string) (providers.Credentials, error) {
	if f.ConfigErr != nil {
		return providers.Credentials{}, f.ConfigErr
	}
	return f.Credentials, nil
}

func (f *FakeAdapter) BuildAuthorizationURL(ctx context.Context, organizationID, redirectURI, state string) (string, error) {
	creds, err := f.Config(ctx, organizationID)
	if err != nil {
		return "", err
	}
	q := url.Values{
		"client_id":    {creds.ClientID},
		"redirect_uri": {redirectURI},
		"scope":        {strings.Join(f.Desc.Scopes, " ")},
		"state":        {state},
	}
	return f.Desc.AuthURL + "?" + q.Encode(), nil
}

func (f *FakeAdapter) ExchangeCode(_ context.Context, code, _, _ string) (*providers.TokenSet, error) {
	f.mu.Lock()
	f.Exchanged = append(f.Exchanged, code)
	f.mu.Unlock()
	if f.ExchangeFunc != nil {
		return f.ExchangeFunc(code)
	}
	expiry := time.Now().Add(time.Hour).UTC()
	return &providers.TokenSet{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		ExpiresAt:    &expiry,
		Scopes:       f.Desc.Scopes,
		Account:      providers.AccountInfo{Email: "owner@example.com", Name: "Owner", ID: "acct-1"},
	}, nil
}

func (f *FakeAdapter) Refresh(_ context.Context, refreshToken, _ string) (*providers.TokenSet, error) {
	f.mu.Lock()
	f.Refreshed = append(f.Refreshed, refreshToken)
	f.mu.Unlock()
	if f.RefreshFunc != nil {
		return f.RefreshFunc(refreshToken)
	}
	expiry := time.Now().Add(time.Hour).UTC()
	set := &providers.TokenSet{
		AccessToken: "access-refreshed",
		ExpiresAt:   &expiry,
		Scopes:      f.Desc.Scopes,
	}
	// Providers with long-lived tokens validate rather than rotate.
	if f.Desc.IssuesRefreshTokens {
		set.RefreshToken = refreshToken
	}
	return set, nil
}

func (f *FakeAdapter) Revoke(_ context.Context, accessToken, _ string) error {
	f.mu.Lock()
	f.Revoked = append(f.Revoked, accessToken)
	f.mu.Unlock()
	if f.RevokeFunc != nil {
		return f.RevokeFunc(accessToken)
	}
	return nil
}

func (f *FakeAdapter) RefreshCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Refreshed...)
}

func (f *FakeAdapter) RevokeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Revoked...)
}

// AuxiliaryAdapter is a FakeAdapter that also implements providers.AuxiliaryRecorder,
// recording fakeAux/{connectionId} documents.
type AuxiliaryAdapter struct {
	*FakeAdapter
}

var _ providers.AuxiliaryRecorder = AuxiliaryAdapter{}

func (a AuxiliaryAdapter) AuxiliaryDocuments(organizationID string, tokens *providers.TokenSet, now time.Time) map[string]map[string]any {
	if tokens.ConnectionID == "" {
		return nil
	}
	return map[string]map[string]any{
		"fakeAux/" + tokens.ConnectionID: {"organizationId": organizationID, "connectedAt": now},
	}
}

func (a AuxiliaryAdapter) AuxiliaryPaths(_ string, connectionID string) []string {
	return []string{"fakeAux/" + connectionID}
}
