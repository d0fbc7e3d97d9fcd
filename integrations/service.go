// Package integrations drives the OAuth connection lifecycle: initiate, callback, refresh
// and revoke, plus the read-only status view.
package integrations

import (
	"errors"
	"strings"
	"time"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/identity"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/providers"
	"golang.org/x/sync/singleflight"
)

// CallbackPath is where providers send the browser back to.
const CallbackPath = "/oauth/callback"

const (
	DefaultStateLookupAttempts = 3
	DefaultStateLookupBackoff  = 100 * time.Millisecond
	DefaultMaxRefreshFailures  = 3
)

// Deps are the collaborators of a Service.
type Deps struct {
	Registry    *providers.Registry
	Connections *connections.Store
	States      oauthstate.Repo
	// EncryptionKey seals tokens at rest.
	EncryptionKey string
	// BaseURL is the public URL of this service; the redirect URI is BaseURL + CallbackPath.
	BaseURL string
}

type Service struct {
	registry      *providers.Registry
	connections   *connections.Store
	states        oauthstate.Repo
	encryptionKey string
	redirectURI   string

	stateTTL           time.Duration
	lookupAttempts     int
	lookupBackoff      time.Duration
	maxRefreshFailures int
	now                func() time.Time

	refreshes singleflight.Group
}

type Option func(*Service)

func WithNowTime(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithStateTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.stateTTL = ttl
	}
}

// WithStateLookup sets how often a missing state is looked up again before the callback
// gives up, and the initial delay between lookups (doubling each time).
func WithStateLookup(attempts int, backoff time.Duration) Option {
	return func(s *Service) {
		s.lookupAttempts = max(attempts, 1)
		s.lookupBackoff = backoff
	}
}

// WithMaxRefreshFailures sets the consecutive transient failures that deactivate a connection.
func WithMaxRefreshFailures(n int) Option {
	return func(s *Service) {
		s.maxRefreshFailures = max(n, 1)
	}
}

func New(deps Deps, opts ...Option) (*Service, error) {
	if deps.Registry == nil || deps.Connections == nil || deps.States == nil {
		return nil, errors.New("integrations: registry, connections and states are required")
	}
	if deps.BaseURL == "" {
		return nil, errors.New("integrations: base url is required")
	}
	s := &Service{
		registry:           deps.Registry,
		connections:        deps.Connections,
		states:             deps.States,
		encryptionKey:      deps.EncryptionKey,
		redirectURI:        strings.TrimRight(deps.BaseURL, "/") + CallbackPath,
		stateTTL:           oauthstate.DefaultTTL,
		lookupAttempts:     DefaultStateLookupAttempts,
		lookupBackoff:      DefaultStateLookupBackoff,
		maxRefreshFailures: DefaultMaxRefreshFailures,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RedirectURI is the callback URL registered with providers.
func (s *Service) RedirectURI() string {
	return s.redirectURI
}

// Registry exposes the provider registry.
func (s *Service) Registry() *providers.Registry {
	return s.registry
}

func (s *Service) adapter(name providers.Name) (providers.Adapter, error) {
	a, ok := s.registry.Get(name)
	if !ok {
		return nil, interrors.WithCode(interrors.CodeInvalidProvider, interrors.ErrUnknownProvider, "unknown provider "+string(name))
	}
	return a, nil
}

// authorize checks, in order, the provider, the caller's identity and their access to the
// organization. manage additionally requires an admin role.
func (s *Service) authorize(principal *identity.Principal, provider providers.Name, organizationID string, manage bool) (providers.Adapter, error) {
	a, err := s.adapter(provider)
	if err != nil {
		return nil, err
	}
	if principal == nil {
		return nil, interrors.New(interrors.CodeUnauthenticated, "authentication required")
	}
	if organizationID == "" {
		return nil, interrors.New(interrors.CodeInvalidArgument, "organizationId is required")
	}
	if manage && !principal.CanManage(organizationID) {
		return nil, interrors.New(interrors.CodePermissionDenied, "organization admin role required")
	}
	if !principal.CanAccess(organizationID) {
		return nil, interrors.New(interrors.CodePermissionDenied, "not a member of this organization")
	}
	return a, nil
}

// providerFailure maps adapter errors onto caller-facing codes.
func providerFailure(err error, message string) error {
	var cfgErr *providers.ConfigError
	if errors.As(err, &cfgErr) {
		return interrors.WithCode(interrors.CodeFailedPrecondition, err, cfgErr.Error())
	}
	var coded *interrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return interrors.WithCode(interrors.CodeInternal, err, message)
}
