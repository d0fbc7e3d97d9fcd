package integrations

import (
	"context"

	"github.com/jrsteele09/go-integrations-server/identity"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/rs/zerolog/log"
)

type InitiateRequest struct {
	Provider       providers.Name `json:"provider"`
	OrganizationID string         `json:"organizationId"`
	// RedirectURL is where the browser returns once the authorization completes.
	RedirectURL string `json:"redirectUrl"`
}

type InitiateResponse struct {
	AuthURL string `json:"authUrl"`
	State   string `json:"state"`
}

// Initiate starts an authorization for an organization admin: it stores a fresh state and
// returns the provider's consent URL carrying it.
func (s *Service) Initiate(ctx context.Context, principal *identity.Principal, req InitiateRequest) (*InitiateResponse, error) {
	adapter, err := s.authorize(principal, req.Provider, req.OrganizationID, true)
	if err != nil {
		return nil, err
	}
	if !validRedirectURL(req.RedirectURL) {
		return nil, interrors.New(interrors.CodeInvalidArgument, "redirectUrl must be an absolute http(s) URL")
	}

	token, err := oauthstate.NewStateToken()
	if err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not create state")
	}
	now := s.now().UTC()
	state := &oauthstate.State{
		State:          token,
		Provider:       req.Provider,
		OrganizationID: req.OrganizationID,
		UserID:         principal.UserID,
		RedirectURL:    req.RedirectURL,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.stateTTL),
	}

	// Build the URL first so a configuration error leaves no orphaned state behind.
	authURL, err := adapter.BuildAuthorizationURL(ctx, req.OrganizationID, s.redirectURI, token)
	if err != nil {
		return nil, providerFailure(err, "could not build authorization url")
	}
	if err := s.states.Create(ctx, state); err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not store state")
	}

	log.Info().
		Str("provider", req.Provider.String()).
		Str("organizationId", req.OrganizationID).
		Str("userId", principal.UserID).
		Msg("OAuth authorization initiated")
	return &InitiateResponse{AuthURL: authURL, State: token}, nil
}
