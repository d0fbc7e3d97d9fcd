package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadProviders(t *testing.T) {
	t.Run("env only", func(t *testing.T) {
		t.Setenv("BOX_CLIENT_ID", "box-id")
		t.Setenv("BOX_CLIENT_SECRET", "box-secret")

		p, err := config.LoadProviders("")
		require.NoError(t, err)

		creds, ok := p.GetProviderCredentials("box")
		require.True(t, ok)
		require.True(t, creds.Complete())
		require.Equal(t, "box-id", creds.ClientID)

		_, ok = p.GetProviderCredentials("google")
		require.False(t, ok)
	})

	t.Run("file overlays env", func(t *testing.T) {
		t.Setenv("GOOGLE_CLIENT_ID", "env-id")
		t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")

		path := filepath.Join(t.TempDir(), "providers.yaml")
		content := "providers:\n  google:\n    clientSecret: file-secret\n  Slack:\n    clientId: slack-id\n    clientSecret: slack-secret\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		p, err := config.LoadProviders(path)
		require.NoError(t, err)

		google, _ := p.GetProviderCredentials("google")
		require.Equal(t, "env-id", google.ClientID)
		require.Equal(t, "file-secret", google.ClientSecret)

		slack, ok := p.GetProviderCredentials("slack")
		require.True(t, ok)
		require.Equal(t, "slack-id", slack.ClientID)
	})

	t.Run("missing file is ignored", func(t *testing.T) {
		_, err := config.LoadProviders(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "providers.yaml")
		require.NoError(t, os.WriteFile(path, []byte("providers: [::"), 0o600))

		_, err := config.LoadProviders(path)
		require.Error(t, err)
	})
}

func TestParseAllowedOrigins(t *testing.T) {
	origins := config.ParseAllowedOrigins(" https://app.example.com, ,http://localhost:3000")
	require.True(t, origins.IsAllowedOrigin("https://app.example.com"))
	require.True(t, origins.IsAllowedOrigin("http://localhost:3000"))
	require.False(t, origins.IsAllowedOrigin(""))
}
