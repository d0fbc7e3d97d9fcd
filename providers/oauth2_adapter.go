package providers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// oauthAdapter implements the standard authorization-code and refresh grants on top of
// x/oauth2. Provider adapters embed it and add identity, revoke and quirks.
type oauthAdapter struct {
	descriptor  Descriptor
	credentials *CredentialResolver
	endpoint    oauth2.Endpoint
	httpClient  *http.Client
	authParams  []oauth2.AuthCodeOption
}

func newOAuthAdapter(descriptor Descriptor, credentials *CredentialResolver, o options, authParams ...oauth2.AuthCodeOption) oauthAdapter {
	return oauthAdapter{
		descriptor:  descriptor,
		credentials: credentials,
		endpoint: oauth2.Endpoint{
			AuthURL:   descriptor.AuthURL,
			TokenURL:  descriptor.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		httpClient: o.httpClient,
		authParams: authParams,
	}
}

func (a *oauthAdapter) Descriptor() Descriptor {
	return a.descriptor
}

func (a *oauthAdapter) Config(ctx context.Context, organizationID string) (Credentials, error) {
	return a.credentials.Resolve(ctx, organizationID, a.descriptor.Name)
}

func (a *oauthAdapter) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func (a *oauthAdapter) oauthConfig(ctx context.Context, organizationID, redirectURI string, scopes []string) (*oauth2.Config, error) {
	creds, err := a.Config(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     a.endpoint,
		RedirectURL:  redirectURI,
		Scopes:       scopes,
	}, nil
}

func (a *oauthAdapter) authorizationURL(ctx context.Context, organizationID, redirectURI, state string, scopes []string) (string, error) {
	cfg, err := a.oauthConfig(ctx, organizationID, redirectURI, scopes)
	if err != nil {
		return "", err
	}
	return cfg.AuthCodeURL(state, a.authParams...), nil
}

func (a *oauthAdapter) exchange(ctx context.Context, code, redirectURI, organizationID string) (*oauth2.Token, error) {
	cfg, err := a.oauthConfig(ctx, organizationID, redirectURI, a.descriptor.Scopes)
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(a.clientContext(ctx), code)
	if err != nil {
		return nil, fromOAuth2Error(a.descriptor.Name, "exchange", err)
	}
	if tok.AccessToken == "" {
		return nil, NewProviderError(a.descriptor.Name, "exchange", http.StatusOK, "", "token response carried no access token", nil)
	}
	return tok, nil
}

func (a *oauthAdapter) refresh(ctx context.Context, refreshToken, organizationID string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, NewProviderError(a.descriptor.Name, "refresh", 0, "invalid_refresh_token", "no refresh token", nil)
	}
	cfg, err := a.oauthConfig(ctx, organizationID, "", a.descriptor.Scopes)
	if err != nil {
		return nil, err
	}
	// An already-expired token forces the source to hit the token endpoint.
	stale := &oauth2.Token{RefreshToken: refreshToken, Expiry: time.Unix(1, 0)}
	tok, err := cfg.TokenSource(a.clientContext(ctx), stale).Token()
	if err != nil {
		return nil, fromOAuth2Error(a.descriptor.Name, "refresh", err)
	}
	if tok.AccessToken == "" {
		return nil, NewProviderError(a.descriptor.Name, "refresh", http.StatusOK, "", "token response carried no access token", nil)
	}
	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	return tok, nil
}

// tokenSet converts an oauth2 token. Scopes come from the response when the provider
// reports them, otherwise the requested set is assumed.
func (a *oauthAdapter) tokenSet(tok *oauth2.Token) *TokenSet {
	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Scopes:       a.descriptor.Scopes,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		set.ExpiresAt = &expiry
	}
	if granted, ok := tok.Extra("scope").(string); ok && strings.TrimSpace(granted) != "" {
		set.Scopes = strings.Fields(granted)
	}
	return set
}
