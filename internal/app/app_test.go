package app_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jrsteele09/go-integrations-server/internal/app"
	"github.com/jrsteele09/go-integrations-server/internal/config"
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef"

func setupConfig(t *testing.T, env map[string]string) config.Config {
	t.Helper()
	t.Setenv("TOKEN_ENCRYPTION_KEY", testKey)
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STATE_STORE", "memory")
	t.Setenv("PROVIDERS_FILE", "")
	for k, v := range env {
		t.Setenv(k, v)
	}
	cfg, err := config.New()
	require.NoError(t, err)
	return cfg
}

func newApp(t *testing.T, env map[string]string) *app.Application {
	t.Helper()
	a, err := app.New(context.Background(), setupConfig(t, env))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// TestNewRejectsBadConfiguration tests that startup fails fast on unusable settings
func TestNewRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "short encryption key", env: map[string]string{"TOKEN_ENCRYPTION_KEY": "short"}},
		{name: "unknown store driver", env: map[string]string{"STORE_DRIVER": "postgres"}},
		{name: "unknown state store", env: map[string]string{"STATE_STORE": "memcached"}},
		{name: "unreachable redis", env: map[string]string{"STATE_STORE": "redis", "REDIS_ADDR": "127.0.0.1:1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.New(context.Background(), setupConfig(t, tt.env))
			require.Error(t, err)
		})
	}
}

// TestNewWithRedisStates tests that the redis state store is wired when selected
func TestNewWithRedisStates(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newApp(t, map[string]string{"STATE_STORE": "redis", "REDIS_ADDR": mr.Addr()})

	summary, err := a.RunSweep(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Organizations)
}

// TestSaveCredentials tests storing an organization's own OAuth client
func TestSaveCredentials(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()

	require.NoError(t, a.SaveCredentials(ctx, "org1", providers.Google, "id", "secret"))
	require.Error(t, a.SaveCredentials(ctx, "org1", providers.Name("myspace"), "id", "secret"))
}

// TestDedupe tests that dedupe runs without an organization record and rejects unknown providers
func TestDedupe(t *testing.T) {
	a := newApp(t, nil)
	ctx := context.Background()

	report, err := a.Dedupe(ctx, "org1", providers.Google, true)
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Zero(t, report.Annotated)

	_, err = a.Dedupe(ctx, "org1", providers.Name("myspace"), true)
	require.Error(t, err)
}

// TestServeRequiresVerifier tests that the server refuses to start without a way to verify identities
func TestServeRequiresVerifier(t *testing.T) {
	a := newApp(t, map[string]string{"IDENTITY_SECRET": "", "IDENTITY_OIDC_ISSUER": ""})
	err := a.Serve(context.Background(), false)
	require.ErrorContains(t, err, "IDENTITY_SECRET")
}

// TestServeShutsDownOnCancel tests graceful shutdown when the context ends
func TestServeShutsDownOnCancel(t *testing.T) {
	a := newApp(t, map[string]string{"IDENTITY_SECRET": testKey, "PORT": "0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, true) }()
	cancel()
	require.NoError(t, <-done)
}
