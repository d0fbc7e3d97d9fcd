// Package providers adapts each third-party OAuth provider (Google, Box, Dropbox, Slack)
// to one token and account model.
package providers

import (
	"context"
	"time"
)

// Name identifies a provider. It is the key used in URLs, documents and the registry.
type Name string

const (
	Google  Name = "google"
	Box     Name = "box"
	Dropbox Name = "dropbox"
	Slack   Name = "slack"
)

func (n Name) String() string {
	return string(n)
}

// Descriptor is the static description of a provider.
type Descriptor struct {
	Name        Name     `json:"name"`
	DisplayName string   `json:"displayName"`
	AuthURL     string   `json:"authUrl"`
	TokenURL    string   `json:"tokenUrl"`
	RevokeURL   string   `json:"revokeUrl,omitempty"`
	Scopes      []string `json:"scopes"`
	// MultiConnection providers keep one connection per external account (e.g. Slack workspace).
	MultiConnection bool `json:"multiConnection"`
	// IssuesRefreshTokens is false for providers whose access tokens are long lived.
	IssuesRefreshTokens bool `json:"issuesRefreshTokens"`
	TokensExpire        bool `json:"tokensExpire"`
}

type AccountInfo struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	ID    string `json:"id"`
}

// TokenSet is the provider-neutral result of a code exchange or refresh.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time // nil for non-expiring tokens
	Scopes       []string
	Account      AccountInfo
	// ConnectionID distinguishes connections of MultiConnection providers.
	ConnectionID string
	Extra        map[string]string
}

// Credentials are an OAuth client registration.
type Credentials struct {
	ClientID     string
	ClientSecret string
	// Source names the location the credentials were resolved from.
	Source string
}

func (c Credentials) Complete() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Adapter speaks one provider's OAuth endpoints.
type Adapter interface {
	Descriptor() Descriptor
	BuildAuthorizationURL(ctx context.Context, organizationID, redirectURI, state string) (string, error)
	// ExchangeCode fails when no access token is returned. Account identity lookups are
	// best effort and leave empty fields on failure.
	ExchangeCode(ctx context.Context, code, redirectURI, organizationID string) (*TokenSet, error)
	// Refresh keeps refreshToken in the result when the provider does not rotate it.
	Refresh(ctx context.Context, refreshToken, organizationID string) (*TokenSet, error)
	Revoke(ctx context.Context, accessToken, organizationID string) error
	Config(ctx context.Context, organizationID string) (Credentials, error)
}

// AuxiliaryRecorder is implemented by adapters that keep extra documents next to the
// connection record, keyed by document path.
type AuxiliaryRecorder interface {
	AuxiliaryDocuments(organizationID string, tokens *TokenSet, now time.Time) map[string]map[string]any
	AuxiliaryPaths(organizationID, connectionID string) []string
}
