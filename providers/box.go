package providers

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

const (
	boxAuthURL   = "https://account.box.com/api/oauth2/authorize"
	boxTokenURL  = "https://api.box.com/oauth2/token"
	boxRevokeURL = "https://api.box.com/oauth2/revoke"
	boxAPIURL    = "https://api.box.com"
)

// BoxAdapter talks to Box. Box rejects multi-scope consent requests, so the scope set is
// collapsed to BoxCanonicalScope.
type BoxAdapter struct {
	oauthAdapter
	apiURL string
}

var _ Adapter = (*BoxAdapter)(nil)

func NewBox(credentials *CredentialResolver, opts ...Option) *BoxAdapter {
	o := buildOptions(options{
		authURL:   boxAuthURL,
		tokenURL:  boxTokenURL,
		revokeURL: boxRevokeURL,
		apiURL:    boxAPIURL,
		scopes:    UnionScopes(Box),
	}, opts)

	descriptor := Descriptor{
		Name:                Box,
		DisplayName:         "Box",
		AuthURL:             o.authURL,
		TokenURL:            o.tokenURL,
		RevokeURL:           o.revokeURL,
		Scopes:              CollapseToSingleScope(o.scopes, BoxCanonicalScope),
		IssuesRefreshTokens: true,
		TokensExpire:        true,
	}
	return &BoxAdapter{
		oauthAdapter: newOAuthAdapter(descriptor, credentials, o),
		apiURL:       strings.TrimRight(o.apiURL, "/"),
	}
}

func (b *BoxAdapter) BuildAuthorizationURL(ctx context.Context, organizationID, redirectURI, state string) (string, error) {
	return b.authorizationURL(ctx, organizationID, redirectURI, state, b.descriptor.Scopes)
}

func (b *BoxAdapter) ExchangeCode(ctx context.Context, code, redirectURI, organizationID string) (*TokenSet, error) {
	tok, err := b.exchange(ctx, code, redirectURI, organizationID)
	if err != nil {
		return nil, err
	}
	set := b.tokenSet(tok)
	set.Account = b.account(ctx, tok.AccessToken)
	return set, nil
}

func (b *BoxAdapter) Refresh(ctx context.Context, refreshToken, organizationID string) (*TokenSet, error) {
	tok, err := b.refresh(ctx, refreshToken, organizationID)
	if err != nil {
		return nil, err
	}
	return b.tokenSet(tok), nil
}

func (b *BoxAdapter) Revoke(ctx context.Context, accessToken, organizationID string) error {
	creds, err := b.Config(ctx, organizationID)
	if err != nil {
		return err
	}
	req, err := newFormRequest(ctx, b.descriptor.RevokeURL, url.Values{
		"client_id":     {creds.ClientID},
		"client_secret": {creds.ClientSecret},
		"token":         {accessToken},
	})
	if err != nil {
		return err
	}
	return doJSON(b.httpClient, Box, "revoke", req, nil)
}

func (b *BoxAdapter) account(ctx context.Context, accessToken string) AccountInfo {
	req, err := newBearerRequest(ctx, http.MethodGet, b.apiURL+"/2.0/users/me", accessToken, nil)
	if err != nil {
		return AccountInfo{}
	}
	var me struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Login string `json:"login"`
	}
	if err := doJSON(b.httpClient, Box, "identity", req, &me); err != nil {
		logIdentityFailure(Box, err)
		return AccountInfo{}
	}
	return AccountInfo{Email: me.Login, Name: me.Name, ID: me.ID}
}
