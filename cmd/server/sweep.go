package main

import (
	"github.com/spf13/cobra"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Refresh every connection that is about to expire, once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, application, err := bootstrap(cmd.Context())
			if err != nil {
				return err
			}
			defer application.Close()

			summary, err := application.RunSweep(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), summary)
		},
	}
}
