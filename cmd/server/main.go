package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
)

const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1
	// ExitCodeConfig means the process could not be configured (bad env, unreachable store).
	ExitCodeConfig = 2
)

var rootCmd = &cobra.Command{
	Use:   "integrations-server",
	Short: "Connect organizations to third-party providers over OAuth",
	Long: `integrations-server runs the OAuth connection lifecycle for organizations:
connect, callback, status, refresh and disconnect over HTTP, plus a background
sweep that keeps expiring tokens fresh.`,
	SilenceUsage: true,
}

type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

func init() {
	rootCmd.AddCommand(newServeCmd(), newSweepCmd(), newDedupeCmd(), newCredentialsCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var cfgErr *configError
		if errors.As(err, &cfgErr) {
			os.Exit(ExitCodeConfig)
		}
		os.Exit(ExitCodeError)
	}
	os.Exit(ExitCodeSuccess)
}
