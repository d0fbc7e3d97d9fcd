package main

import (
	"fmt"

	"github.com/jrsteele09/go-integrations-server/providers"
	"github.com/spf13/cobra"
)

func newCredentialsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage per-organization OAuth client credentials",
	}
	cmd.AddCommand(newCredentialsSetCmd())
	return cmd
}

func newCredentialsSetCmd() *cobra.Command {
	var organizationID, provider, clientID, clientSecret string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an organization's own client id and secret for a provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, application, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			if err := application.SaveCredentials(cmd.Context(), organizationID, providers.Name(provider), clientID, clientSecret); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s credentials for %s\n", provider, organizationID)
			return nil
		},
	}
	cmd.Flags().StringVar(&organizationID, "org", "", "organization id")
	cmd.Flags().StringVar(&provider, "provider", "", "provider name")
	cmd.Flags().StringVar(&clientID, "client-id", "", "OAuth client id")
	cmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth client secret")
	for _, name := range []string{"org", "provider", "client-id", "client-secret"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
