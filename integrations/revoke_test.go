package integrations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/jrsteele09/go-integrations-server/connections"
	"github.com/jrsteele09/go-integrations-server/docstore"
	"github.com/jrsteele09/go-integrations-server/envelope"
	"github.com/jrsteele09/go-integrations-server/integrations"
	interrors "github.com/jrsteele09/go-integrations-server/internal/errors"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/stretchr/testify/require"
)

var revokeGoogle = integrations.ConnectionRequest{Provider: providers.Google, OrganizationID: "org1"}

// TestRevoke_RemovesConnection tests provider revocation and local removal
func TestRevoke_RemovesConnection(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, 0)

	require.NoError(t, f.service.Revoke(context.Background(), admin, revokeGoogle))
	require.Equal(t, []string{"stored-access"}, f.google.RevokeCalls())

	_, err := f.conns.Get(context.Background(), googleKey)
	require.ErrorIs(t, err, interrors.ErrConnectionNotFound)
}

// TestRevoke_UndecryptableToken tests that local state is removed even when the token cannot be opened
func TestRevoke_UndecryptableToken(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, 0)
	foreign, err := envelope.Encrypt("stored-access", "another-secret-of-at-least-32-chars")
	require.NoError(t, err)
	_, err = f.conns.Upsert(context.Background(), googleKey, connections.Patch{AccessToken: &foreign})
	require.NoError(t, err)

	require.NoError(t, f.service.Revoke(context.Background(), admin, revokeGoogle))
	require.Empty(t, f.google.RevokeCalls())

	_, err = f.conns.Get(context.Background(), googleKey)
	require.ErrorIs(t, err, interrors.ErrConnectionNotFound)
}

// TestRevoke_ProviderFailureIgnored tests that a failing provider revoke does not block removal
func TestRevoke_ProviderFailureIgnored(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, 0)
	f.google.RevokeFunc = func(string) error { return errors.New("provider down") }

	require.NoError(t, f.service.Revoke(context.Background(), admin, revokeGoogle))
	_, err := f.conns.Get(context.Background(), googleKey)
	require.ErrorIs(t, err, interrors.ErrConnectionNotFound)
}

// TestRevoke_LegacyIsDeactivated tests that a legacy record is deactivated and stripped of tokens
func TestRevoke_LegacyIsDeactivated(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	path := "organizations/org1/cloudIntegrations/google"
	require.NoError(t, f.docs.Set(ctx, path, map[string]any{
		"accessToken":  "legacy-access",
		"refreshToken": "legacy-refresh",
		"isActive":     true,
	}))

	require.NoError(t, f.service.Revoke(ctx, admin, revokeGoogle))
	require.Equal(t, []string{"legacy-access"}, f.google.RevokeCalls())

	doc, err := f.docs.Get(ctx, path)
	require.NoError(t, err)
	require.Equal(t, false, doc.Data["isActive"])
	require.NotContains(t, doc.Data, "accessToken")
	require.NotContains(t, doc.Data, "refreshToken")
}

// TestRevoke_MultiConnection tests workspace revocation including auxiliary documents
func TestRevoke_MultiConnection(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.connect(t, providers.Slack, "c1")

	err := f.service.Revoke(ctx, admin, integrations.ConnectionRequest{Provider: providers.Slack, OrganizationID: "org1"})
	require.Equal(t, interrors.CodeInvalidArgument, interrors.CodeOf(err))

	require.NoError(t, f.service.Revoke(ctx, admin, integrations.ConnectionRequest{Provider: providers.Slack, OrganizationID: "org1", ConnectionID: "T1"}))
	require.Equal(t, []string{"xoxb-c1"}, f.slack.RevokeCalls())

	_, err = f.docs.Get(ctx, "fakeAux/T1")
	require.ErrorIs(t, err, docstore.ErrNotFound)
	_, err = f.conns.Get(ctx, connections.Key{OrganizationID: "org1", Provider: providers.Slack, ConnectionID: "T1"})
	require.ErrorIs(t, err, interrors.ErrConnectionNotFound)
}

// TestRevoke_Rejections tests authorization and missing connections
func TestRevoke_Rejections(t *testing.T) {
	f := setupTestFixture(t)
	f.seed(t, 0)
	ctx := context.Background()

	err := f.service.Revoke(ctx, member, revokeGoogle)
	require.Equal(t, interrors.CodePermissionDenied, interrors.CodeOf(err))

	err = f.service.Revoke(ctx, admin, integrations.ConnectionRequest{Provider: providers.Box, OrganizationID: "org1"})
	require.Equal(t, interrors.CodeInvalidProvider, interrors.CodeOf(err))

	require.NoError(t, f.service.Revoke(ctx, admin, revokeGoogle))
	err = f.service.Revoke(ctx, admin, revokeGoogle)
	require.Equal(t, interrors.CodeNotFound, interrors.CodeOf(err))
}

// TestRevoke_LegacyWorkspaceMismatch tests that a legacy record for one workspace is never revoked on behalf of another
func TestRevoke_LegacyWorkspaceMismatch(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	path := "organizations/org1/cloudIntegrations/slack"
	require.NoError(t, f.docs.Set(ctx, path, map[string]any{
		"accountId":   "T1",
		"accessToken": "xoxb-legacy",
		"isActive":    true,
	}))

	err := f.service.Revoke(ctx, admin, integrations.ConnectionRequest{Provider: providers.Slack, OrganizationID: "org1", ConnectionID: "T2"})
	require.Equal(t, interrors.CodeNotFound, interrors.CodeOf(err))
	require.Empty(t, f.slack.RevokeCalls())

	doc, err := f.docs.Get(ctx, path)
	require.NoError(t, err)
	require.Equal(t, true, doc.Data["isActive"])
	require.Equal(t, "xoxb-legacy", doc.Data["accessToken"])

	require.NoError(t, f.service.Revoke(ctx, admin, integrations.ConnectionRequest{Provider: providers.Slack, OrganizationID: "org1", ConnectionID: "T1"}))
	require.Equal(t, []string{"xoxb-legacy"}, f.slack.RevokeCalls())
}
