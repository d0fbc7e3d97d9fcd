package providers

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const (
	dropboxAuthURL  = "https://www.dropbox.com/oauth2/authorize"
	dropboxTokenURL = "https://api.dropboxapi.com/oauth2/token"
	dropboxAPIURL   = "https://api.dropboxapi.com"
)

// DropboxAdapter requests offline access so Dropbox issues refresh tokens alongside its
// short-lived access tokens.
type DropboxAdapter struct {
	oauthAdapter
	apiURL string
}

var _ Adapter = (*DropboxAdapter)(nil)

func NewDropbox(credentials *CredentialResolver, opts ...Option) *DropboxAdapter {
	o := buildOptions(options{
		authURL:  dropboxAuthURL,
		tokenURL: dropboxTokenURL,
		apiURL:   dropboxAPIURL,
		scopes:   UnionScopes(Dropbox),
	}, opts)
	apiURL := strings.TrimRight(o.apiURL, "/")
	if o.revokeURL == "" {
		o.revokeURL = apiURL + "/2/auth/token/revoke"
	}

	descriptor := Descriptor{
		Name:                Dropbox,
		DisplayName:         "Dropbox",
		AuthURL:             o.authURL,
		TokenURL:            o.tokenURL,
		RevokeURL:           o.revokeURL,
		Scopes:              o.scopes,
		IssuesRefreshTokens: true,
		TokensExpire:        true,
	}
	return &DropboxAdapter{
		oauthAdapter: newOAuthAdapter(descriptor, credentials, o,
			oauth2.SetAuthURLParam("token_access_type", "offline"),
		),
		apiURL: apiURL,
	}
}

func (d *DropboxAdapter) BuildAuthorizationURL(ctx context.Context, organizationID, redirectURI, state string) (string, error) {
	return d.authorizationURL(ctx, organizationID, redirectURI, state, d.descriptor.Scopes)
}

func (d *DropboxAdapter) ExchangeCode(ctx context.Context, code, redirectURI, organizationID string) (*TokenSet, error) {
	tok, err := d.exchange(ctx, code, redirectURI, organizationID)
	if err != nil {
		return nil, err
	}
	set := d.tokenSet(tok)
	set.Account = d.account(ctx, tok.AccessToken)
	if id, ok := tok.Extra("account_id").(string); ok && set.Account.ID == "" {
		set.Account.ID = id
	}
	return set, nil
}

func (d *DropboxAdapter) Refresh(ctx context.Context, refreshToken, organizationID string) (*TokenSet, error) {
	tok, err := d.refresh(ctx, refreshToken, organizationID)
	if err != nil {
		return nil, err
	}
	return d.tokenSet(tok), nil
}

func (d *DropboxAdapter) Revoke(ctx context.Context, accessToken, _ string) error {
	req, err := newBearerRequest(ctx, http.MethodPost, d.descriptor.RevokeURL, accessToken, nil)
	if err != nil {
		return err
	}
	return doJSON(d.httpClient, Dropbox, "revoke", req, nil)
}

func (d *DropboxAdapter) account(ctx context.Context, accessToken string) AccountInfo {
	req, err := newBearerRequest(ctx, http.MethodPost, d.apiURL+"/2/users/get_current_account", accessToken,
		strings.NewReader("null"))
	if err != nil {
		return AccountInfo{}
	}
	req.Header.Set("Content-Type", "application/json")

	var account struct {
		AccountID string `json:"account_id"`
		Email     string `json:"email"`
		Name      struct {
			DisplayName string `json:"display_name"`
		} `json:"name"`
	}
	if err := doJSON(d.httpClient, Dropbox, "identity", req, &account); err != nil {
		logIdentityFailure(Dropbox, err)
		return AccountInfo{}
	}
	return AccountInfo{Email: account.Email, Name: account.Name.DisplayName, ID: account.AccountID}
}
