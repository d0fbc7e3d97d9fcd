package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

// TestSubcommands tests that every operational subcommand is registered
func TestSubcommands(t *testing.T) {
	for _, name := range []string{"serve", "sweep", "dedupe", "credentials"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		require.Equal(t, name, cmd.Name())
	}
}

// TestDedupeRequiresFlags tests that dedupe refuses to run without an organization and provider
func TestDedupeRequiresFlags(t *testing.T) {
	_, err := execute(t, "dedupe")
	require.ErrorContains(t, err, "required flag")
}

// TestCredentialsSetRequiresFlags tests that credentials set needs the full client registration
func TestCredentialsSetRequiresFlags(t *testing.T) {
	_, err := execute(t, "credentials", "set", "--org", "org1", "--provider", "google")
	require.ErrorContains(t, err, "client-id")
}

// TestBootstrapConfigError tests that a bad environment surfaces as a configuration error
func TestBootstrapConfigError(t *testing.T) {
	t.Setenv("TOKEN_ENCRYPTION_KEY", "short")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STATE_STORE", "memory")
	_, err := execute(t, "sweep")
	var cfgErr *configError
	require.ErrorAs(t, err, &cfgErr)
}
