package providers

import (
	"context"
	"net/url"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	googleIssuer    = "https://accounts.google.com"
	googleRevokeURL = "https://oauth2.googleapis.com/revoke"
)

// GoogleAdapter requests offline access so Google issues a refresh token, and reads the
// account identity from the OpenID Connect userinfo endpoint.
type GoogleAdapter struct {
	oauthAdapter
	issuer string

	mu       sync.Mutex
	provider *oidc.Provider
}

var _ Adapter = (*GoogleAdapter)(nil)

func NewGoogle(credentials *CredentialResolver, opts ...Option) *GoogleAdapter {
	o := buildOptions(options{
		authURL:   google.Endpoint.AuthURL,
		tokenURL:  google.Endpoint.TokenURL,
		revokeURL: googleRevokeURL,
		issuer:    googleIssuer,
		scopes:    UnionScopes(Google),
	}, opts)

	descriptor := Descriptor{
		Name:                Google,
		DisplayName:         "Google Drive",
		AuthURL:             o.authURL,
		TokenURL:            o.tokenURL,
		RevokeURL:           o.revokeURL,
		Scopes:              o.scopes,
		IssuesRefreshTokens: true,
		TokensExpire:        true,
	}
	return &GoogleAdapter{
		oauthAdapter: newOAuthAdapter(descriptor, credentials, o,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
			oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		),
		issuer: o.issuer,
	}
}

func (g *GoogleAdapter) BuildAuthorizationURL(ctx context.Context, organizationID, redirectURI, state string) (string, error) {
	return g.authorizationURL(ctx, organizationID, redirectURI, state, g.descriptor.Scopes)
}

func (g *GoogleAdapter) ExchangeCode(ctx context.Context, code, redirectURI, organizationID string) (*TokenSet, error) {
	tok, err := g.exchange(ctx, code, redirectURI, organizationID)
	if err != nil {
		return nil, err
	}
	set := g.tokenSet(tok)
	set.Account = g.account(ctx, tok)
	return set, nil
}

func (g *GoogleAdapter) Refresh(ctx context.Context, refreshToken, organizationID string) (*TokenSet, error) {
	tok, err := g.refresh(ctx, refreshToken, organizationID)
	if err != nil {
		return nil, err
	}
	return g.tokenSet(tok), nil
}

func (g *GoogleAdapter) Revoke(ctx context.Context, accessToken, _ string) error {
	req, err := newFormRequest(ctx, g.descriptor.RevokeURL, url.Values{"token": {accessToken}})
	if err != nil {
		return err
	}
	return doJSON(g.httpClient, Google, "revoke", req, nil)
}

func (g *GoogleAdapter) oidcProvider(ctx context.Context) (*oidc.Provider, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.provider != nil {
		return g.provider, nil
	}
	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, g.httpClient), g.issuer)
	if err != nil {
		return nil, err
	}
	g.provider = provider
	return provider, nil
}

// account is best effort: a failed lookup yields empty identity fields.
func (g *GoogleAdapter) account(ctx context.Context, tok *oauth2.Token) AccountInfo {
	provider, err := g.oidcProvider(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", Google.String()).Msg("oidc discovery failed, continuing without account identity")
		return AccountInfo{}
	}
	info, err := provider.UserInfo(oidc.ClientContext(ctx, g.httpClient), oauth2.StaticTokenSource(tok))
	if err != nil {
		log.Warn().Err(err).Str("provider", Google.String()).Msg("userinfo lookup failed, continuing without account identity")
		return AccountInfo{}
	}

	var claims struct {
		Name string `json:"name"`
	}
	_ = info.Claims(&claims)
	return AccountInfo{Email: info.Email, Name: claims.Name, ID: info.Subject}
}
