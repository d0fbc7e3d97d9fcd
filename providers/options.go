package providers

import (
	"net/http"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

type options struct {
	httpClient *http.Client
	authURL    string
	tokenURL   string
	revokeURL  string
	apiURL     string
	issuer     string
	scopes     []string
}

// Option customises an adapter. Endpoint options exist so tests can point adapters at
// local servers.
type Option func(*options)

func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithEndpoints overrides the consent screen and token endpoints.
func WithEndpoints(authURL, tokenURL string) Option {
	return func(o *options) {
		o.authURL = authURL
		o.tokenURL = tokenURL
	}
}

func WithRevokeURL(revokeURL string) Option {
	return func(o *options) {
		o.revokeURL = revokeURL
	}
}

// WithAPIBaseURL overrides the base URL of the provider's REST API (identity and revoke calls).
func WithAPIBaseURL(apiURL string) Option {
	return func(o *options) {
		o.apiURL = apiURL
	}
}

// WithIssuer overrides the OpenID Connect issuer used for identity lookups.
func WithIssuer(issuer string) Option {
	return func(o *options) {
		o.issuer = issuer
	}
}

// WithScopes replaces the union-of-features scope set.
func WithScopes(scopes ...string) Option {
	return func(o *options) {
		o.scopes = scopes
	}
}

func buildOptions(defaults options, opts []Option) options {
	o := defaults
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return o
}
