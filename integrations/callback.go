package integrations

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/docstore"
	"github.com/jrsteele09/go-integrations-server/envelope"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/internal/utils"
	"github.com/jrsteele09/go-integrations-server/oauthstate"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/rs/zerolog/log"
)

// CallbackRequest carries the query parameters a provider redirects back with.
type CallbackRequest struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string
}

// CallbackOutcome is where to send the browser. RedirectURL is empty only when no
// return address could be recovered.
type CallbackOutcome struct {
	RedirectURL    string
	Provider       providers.Name
	OrganizationID string
	Connection     *ConnectionStatus
}

// Callback completes an authorization. The state is consumed on success and on every
// terminal failure after it was found, so it can never be used twice. On failure the
// returned outcome still carries an error redirect when one is recoverable.
func (s *Service) Callback(ctx context.Context, req CallbackRequest) (*CallbackOutcome, error) {
	if req.State == "" {
		return &CallbackOutcome{}, interrors.New(interrors.CodeInvalidArgument, "state is required")
	}

	state, err := s.lookupState(ctx, req.State)
	if err != nil {
		return &CallbackOutcome{}, err
	}
	out := &CallbackOutcome{Provider: state.Provider, OrganizationID: state.OrganizationID}
	fail := func(err error, redirectCode string) (*CallbackOutcome, error) {
		s.consumeState(ctx, state.State)
		out.RedirectURL = errorRedirect(state.RedirectURL, redirectCode, state.Provider.String())
		log.Warn().Err(err).
			Str("provider", state.Provider.String()).
			Str("organizationId", state.OrganizationID).
			Msg("OAuth callback failed")
		return out, err
	}

	now := s.now()
	if state.Expired(now) {
		err := interrors.WithCode(interrors.CodeExpiredState, interrors.ErrStateExpired, "authorization request expired")
		return fail(err, string(interrors.CodeExpiredState))
	}
	if req.Error != "" {
		err := interrors.New(interrors.CodeFailedPrecondition, "provider returned "+req.Error)
		return fail(err, req.Error)
	}
	if req.Code == "" {
		err := interrors.New(interrors.CodeInvalidArgument, "code is required")
		return fail(err, string(interrors.CodeInvalidArgument))
	}
	adapter, err := s.adapter(state.Provider)
	if err != nil {
		return fail(err, string(interrors.CodeOf(err)))
	}

	tokens, err := adapter.ExchangeCode(ctx, req.Code, s.redirectURI, state.OrganizationID)
	if err != nil {
		err = providerFailure(err, "code exchange failed")
		return fail(err, string(interrors.CodeOf(err)))
	}

	c, err := s.storeConnection(ctx, adapter, state, tokens)
	if err != nil {
		return fail(err, string(interrors.CodeOf(err)))
	}

	s.consumeState(ctx, state.State)
	out.RedirectURL = successRedirect(state.RedirectURL, state.Provider.String())
	out.Connection = statusOf(c, false)
	log.Info().
		Str("provider", state.Provider.String()).
		Str("organizationId", state.OrganizationID).
		Str("connectionId", c.ConnectionID).
		Msg("OAuth connection established")
	return out, nil
}

// lookupState retries not-found lookups with doubling delays to ride out replication lag.
func (s *Service) lookupState(ctx context.Context, token string) (*oauthstate.State, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.lookupBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var state *oauthstate.State
	op := func() error {
		st, err := s.states.Get(ctx, token)
		if errors.Is(err, interrors.ErrStateNotFound) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		state = st
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(s.lookupAttempts-1)), ctx))
	switch {
	case errors.Is(err, interrors.ErrStateNotFound):
		return nil, interrors.WithCode(interrors.CodeNotFound, err, "invalid or expired state")
	case err != nil:
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not read state")
	}
	return state, nil
}

func (s *Service) consumeState(ctx context.Context, token string) {
	if err := s.states.Delete(ctx, token); err != nil {
		log.Error().Err(err).Msg("Failed to delete OAuth state")
	}
}

// storeConnection seals the tokens and writes the connection together with any auxiliary
// provider documents in one batch.
func (s *Service) storeConnection(ctx context.Context, adapter providers.Adapter, state *oauthstate.State, tokens *providers.TokenSet) (*connections.Connection, error) {
	key := connections.Key{OrganizationID: state.OrganizationID, Provider: state.Provider}
	if s.connections.IsMultiConnection(state.Provider) {
		key.ConnectionID = tokens.ConnectionID
		if key.ConnectionID == "" {
			key.ConnectionID = tokens.Account.ID
		}
		if key.ConnectionID == "" {
			return nil, interrors.New(interrors.CodeInternal, "provider returned no connection identifier")
		}
	}

	access, err := envelope.Encrypt(tokens.AccessToken, s.encryptionKey)
	if err != nil {
		return nil, interrors.WithCode(interrors.CodeFailedPrecondition, err, "token encryption is not configured")
	}
	var refresh string
	if tokens.RefreshToken != "" {
		if refresh, err = envelope.Encrypt(tokens.RefreshToken, s.encryptionKey); err != nil {
			return nil, interrors.WithCode(interrors.CodeFailedPrecondition, err, "token encryption is not configured")
		}
	}

	now := s.now().UTC()
	patch := connections.Patch{
		AccountEmail:               &tokens.Account.Email,
		AccountName:                &tokens.Account.Name,
		AccountID:                  &tokens.Account.ID,
		AccessToken:                &access,
		RefreshToken:               &refresh,
		Scopes:                     scopesOrEmpty(tokens.Scopes),
		IsActive:                   utils.Ptr(true),
		ConnectedAt:                &now,
		ConnectedBy:                &state.UserID,
		LastRefreshedAt:            &now,
		ConsecutiveRefreshFailures: utils.Ptr(0),
		RequiresReconnection:       utils.Ptr(false),
		LastRefreshError:           utils.Ptr(""),
		Metadata:                   tokens.Extra,
	}
	setExpiry(&patch, tokens.ExpiresAt)

	write, err := s.connections.UpsertWrite(key, patch)
	if err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not store connection")
	}
	writes := []docstore.Write{write}
	if rec, ok := adapter.(providers.AuxiliaryRecorder); ok {
		for path, data := range rec.AuxiliaryDocuments(state.OrganizationID, tokens, now) {
			writes = append(writes, docstore.MergeWrite(path, data))
		}
	}
	if err := s.connections.Docs().Commit(ctx, writes); err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not store connection")
	}

	c, err := s.connections.Get(ctx, key)
	if err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not read stored connection")
	}
	return c, nil
}

func setExpiry(p *connections.Patch, expiresAt *time.Time) {
	if expiresAt == nil {
		p.ClearTokenExpiry = true
		return
	}
	t := expiresAt.UTC()
	p.TokenExpiresAt = &t
}

func scopesOrEmpty(scopes []string) []string {
	if scopes == nil {
		return []string{}
	}
	return scopes
}
