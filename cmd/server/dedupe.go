package main

import (
	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/spf13/cobra"
)

func newDedupeCmd() *cobra.Command {
	var (
		organizationID string
		provider       string
		dryRun         bool
	)
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Collapse duplicate connection records for one organization and provider",
		Long: `dedupe keeps one record per account email and marks the others as migrated.
Legacy per-user and per-organization records are included. Nothing is deleted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, application, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			report, err := application.Dedupe(cmd.Context(), organizationID, providers.Name(provider), dryRun)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().StringVar(&organizationID, "org", "", "organization id")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name, e.g. google")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "report what would change without writing")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}
