package integrations

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/envelope"
	"github.com/jrsteele09/go-integrations-server/identity"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/internal/utils"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/rs/zerolog/log"
)

// Outcome classifies what a refresh attempt did to the connection.
type Outcome string

const (
	OutcomeRefreshed         Outcome = "refreshed"
	OutcomeTransientFailure  Outcome = "transient_failure"
	OutcomeDeactivated       Outcome = "deactivated"
	OutcomeReconnectRequired Outcome = "reconnect_required"
	OutcomeNotAttempted      Outcome = "not_attempted"
)

// ConnectionRequest addresses one connection on behalf of a caller.
type ConnectionRequest struct {
	Provider       providers.Name `json:"provider"`
	OrganizationID string         `json:"organizationId"`
	ConnectionID   string         `json:"connectionId,omitempty"`
}

type RefreshResult struct {
	Connection *connections.Connection
	Outcome    Outcome
}

// Refresh refreshes a connection for any member of its organization.
func (s *Service) Refresh(ctx context.Context, principal *identity.Principal, req ConnectionRequest) (*ConnectionStatus, error) {
	if _, err := s.authorize(principal, req.Provider, req.OrganizationID, false); err != nil {
		return nil, err
	}
	key, err := s.requestKey(principal, req)
	if err != nil {
		return nil, err
	}
	res, err := s.RefreshConnection(ctx, key)
	if err != nil {
		return nil, err
	}
	return statusOf(res.Connection, false), nil
}

// RefreshConnection refreshes the connection at key. Concurrent calls for the same
// connection share one provider round trip. A connection still at a legacy location is
// migrated first. Failures are recorded on the connection per the failure policy and
// returned alongside the result.
func (s *Service) RefreshConnection(ctx context.Context, key connections.Key) (*RefreshResult, error) {
	v, err, _ := s.refreshes.Do(connections.CanonicalPath(key), func() (any, error) {
		return s.refresh(ctx, key)
	})
	res, _ := v.(*RefreshResult)
	return res, err
}

func (s *Service) refresh(ctx context.Context, key connections.Key) (*RefreshResult, error) {
	adapter, err := s.adapter(key.Provider)
	if err != nil {
		return nil, err
	}
	c, err := s.canonicalConnection(ctx, key)
	if err != nil {
		return nil, err
	}
	key = connections.KeyOf(c)
	notAttempted := &RefreshResult{Connection: c, Outcome: OutcomeNotAttempted}

	if !c.IsActive {
		return notAttempted, interrors.WithCode(interrors.CodeFailedPrecondition, interrors.ErrConnectionInactive, "connection is inactive, reconnect to continue")
	}

	desc := adapter.Descriptor()
	sealed := c.RefreshToken
	if sealed == "" && !desc.IssuesRefreshTokens {
		// Long-lived tokens are validated rather than exchanged.
		sealed = c.AccessToken
	}
	if sealed == "" {
		return notAttempted, interrors.WithCode(interrors.CodeFailedPrecondition, interrors.ErrNoRefreshToken, "connection has no refresh token")
	}

	credential, err := envelope.Open(sealed, s.encryptionKey)
	if err != nil {
		return s.recordFailure(ctx, key, c, err, true)
	}

	tokens, err := adapter.Refresh(ctx, credential, key.OrganizationID)
	if err != nil {
		var cfgErr *providers.ConfigError
		if errors.As(err, &cfgErr) {
			return notAttempted, providerFailure(err, "provider is not configured")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return notAttempted, interrors.WithCode(interrors.CodeInternal, err, "refresh interrupted")
		}
		return s.recordFailure(ctx, key, c, err, providers.IsPermanent(err))
	}

	access, err := envelope.Encrypt(tokens.AccessToken, s.encryptionKey)
	if err != nil {
		return notAttempted, interrors.WithCode(interrors.CodeFailedPrecondition, err, "token encryption is not configured")
	}
	var refresh string
	if tokens.RefreshToken != "" {
		if refresh, err = envelope.Encrypt(tokens.RefreshToken, s.encryptionKey); err != nil {
			return notAttempted, interrors.WithCode(interrors.CodeFailedPrecondition, err, "token encryption is not configured")
		}
	}

	now := s.now().UTC()
	patch := connections.Patch{
		AccessToken:                &access,
		RefreshToken:               &refresh,
		IsActive:                   utils.Ptr(true),
		LastRefreshedAt:            &now,
		ConsecutiveRefreshFailures: utils.Ptr(0),
		RequiresReconnection:       utils.Ptr(false),
		LastRefreshError:           utils.Ptr(""),
	}
	if len(tokens.Scopes) > 0 {
		patch.Scopes = tokens.Scopes
	}
	setExpiry(&patch, tokens.ExpiresAt)

	updated, err := s.connections.Upsert(ctx, key, patch)
	if err != nil {
		return notAttempted, interrors.WithCode(interrors.CodeInternal, err, "could not store refreshed tokens")
	}
	log.Debug().
		Str("provider", key.Provider.String()).
		Str("organizationId", key.OrganizationID).
		Msg("Connection refreshed")
	return &RefreshResult{Connection: updated, Outcome: OutcomeRefreshed}, nil
}

// recordFailure applies the failure policy. A permanent failure deactivates the connection
// and asks for a reconnect. A transient one counts towards maxRefreshFailures, after which
// the connection is deactivated without the reconnect flag.
func (s *Service) recordFailure(ctx context.Context, key connections.Key, c *connections.Connection, cause error, permanent bool) (*RefreshResult, error) {
	failures := c.ConsecutiveRefreshFailures + 1
	patch := connections.Patch{
		ConsecutiveRefreshFailures: &failures,
		LastRefreshError:           utils.Ptr(cause.Error()),
	}

	var outcome Outcome
	var err error
	switch {
	case permanent:
		outcome = OutcomeReconnectRequired
		patch.IsActive = utils.Ptr(false)
		patch.RequiresReconnection = utils.Ptr(true)
		err = interrors.WithCode(interrors.CodeFailedPrecondition, cause, "authorization was revoked, reconnect required")
	case failures >= s.maxRefreshFailures:
		outcome = OutcomeDeactivated
		patch.IsActive = utils.Ptr(false)
		patch.RequiresReconnection = utils.Ptr(false)
		err = interrors.WithCode(interrors.CodeInternal, cause, "refresh failed repeatedly, connection deactivated")
	default:
		outcome = OutcomeTransientFailure
		err = interrors.WithCode(interrors.CodeInternal, cause, "refresh failed, will retry")
	}

	updated, storeErr := s.connections.Upsert(ctx, key, patch)
	if storeErr != nil {
		log.Error().Err(storeErr).Str("provider", key.Provider.String()).Str("organizationId", key.OrganizationID).Msg("Failed to record refresh failure")
		updated = c
	}
	log.Warn().Err(cause).
		Str("provider", key.Provider.String()).
		Str("organizationId", key.OrganizationID).
		Str("outcome", string(outcome)).
		Int("consecutiveFailures", failures).
		Msg("Connection refresh failed")
	return &RefreshResult{Connection: updated, Outcome: outcome}, err
}

// canonicalConnection finds the connection, migrating a legacy record first.
func (s *Service) canonicalConnection(ctx context.Context, key connections.Key) (*connections.Connection, error) {
	m, err := s.connections.Find(ctx, key)
	if errors.Is(err, interrors.ErrConnectionNotFound) {
		return nil, interrors.WithCode(interrors.CodeNotFound, err, "connection not found")
	}
	if err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not read connection")
	}
	if !m.Legacy() {
		return m.Connection, nil
	}
	c, err := s.connections.MigrateLegacy(ctx, m, "")
	if err != nil {
		return nil, interrors.WithCode(interrors.CodeInternal, err, "could not migrate legacy connection")
	}
	log.Info().
		Str("provider", key.Provider.String()).
		Str("organizationId", key.OrganizationID).
		Str("from", m.Path).
		Msg("Migrated legacy connection")
	return c, nil
}

// requestKey builds the key for a caller's request. Multi-connection providers need a
// connection id.
func (s *Service) requestKey(principal *identity.Principal, req ConnectionRequest) (connections.Key, error) {
	key := connections.Key{
		OrganizationID: req.OrganizationID,
		Provider:       req.Provider,
		ConnectionID:   req.ConnectionID,
		UserID:         principal.UserID,
	}
	if s.connections.IsMultiConnection(req.Provider) && req.ConnectionID == "" {
		return key, interrors.New(interrors.CodeInvalidArgument, "connectionId is required for "+req.Provider.String())
	}
	if !s.connections.IsMultiConnection(req.Provider) {
		key.ConnectionID = ""
	}
	return key, nil
}
