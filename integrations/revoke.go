package integrations

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/docstore"
	"github.com/jrsteele09/go-integrations-server/envelope"
	"github.com/jrsteele09/go-integrations-server/identity"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/internal/utils"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/rs/zerolog/log"
)

// Revoke disconnects a provider. Provider-side revocation is best effort; the local record
// is always removed (canonical) or deactivated with its tokens cleared (legacy).
func (s *Service) Revoke(ctx context.Context, principal *identity.Principal, req ConnectionRequest) error {
	adapter, err := s.authorize(principal, req.Provider, req.OrganizationID, true)
	if err != nil {
		return err
	}
	key, err := s.requestKey(principal, req)
	if err != nil {
		return err
	}

	m, err := s.connections.Find(ctx, key)
	if errors.Is(err, interrors.ErrConnectionNotFound) {
		return interrors.WithCode(interrors.CodeNotFound, err, "connection not found")
	}
	if err != nil {
		return interrors.WithCode(interrors.CodeInternal, err, "could not read connection")
	}
	c := m.Connection
	logger := log.With().
		Str("provider", req.Provider.String()).
		Str("organizationId", req.OrganizationID).
		Str("location", m.Location.Name).
		Logger()

	if access, err := envelope.Open(c.AccessToken, s.encryptionKey); err != nil {
		logger.Warn().Err(err).Msg("Could not decrypt access token, skipping provider revocation")
	} else if access != "" {
		if err := adapter.Revoke(ctx, access, req.OrganizationID); err != nil {
			logger.Warn().Err(err).Msg("Provider revocation failed")
		}
	}

	var writes []docstore.Write
	if m.Legacy() {
		f := connections.Patch{
			IsActive:             utils.Ptr(false),
			RequiresReconnection: utils.Ptr(false),
		}.Fields(s.now())
		f["accessToken"] = docstore.DeleteField
		f["refreshToken"] = docstore.DeleteField
		writes = append(writes, docstore.MergeWrite(m.Path, f))
	} else {
		writes = append(writes, docstore.DeleteWrite(m.Path))
	}
	if rec, ok := adapter.(providers.AuxiliaryRecorder); ok && c.ConnectionID != "" {
		for _, path := range rec.AuxiliaryPaths(req.OrganizationID, c.ConnectionID) {
			writes = append(writes, docstore.DeleteWrite(path))
		}
	}
	if err := s.connections.Docs().Commit(ctx, writes); err != nil {
		return interrors.WithCode(interrors.CodeInternal, err, "could not remove connection")
	}
	logger.Info().Str("connectionId", c.ConnectionID).Msg("Connection revoked")
	return nil
}
