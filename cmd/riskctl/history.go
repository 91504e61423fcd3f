package main

import (
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently updated analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, ctx, release, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer release()

			rows, err := app.History.ListRecent(ctx, limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), rows)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of analyses to list")

	return cmd
}
