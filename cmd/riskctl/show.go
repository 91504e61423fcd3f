package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func showCmd() *cobra.Command {
	var (
		asJSON     bool
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "show <document-id>",
		Short: "Show a persisted analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, release, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer release()

			track, err := app.Reconciler.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(track); err != nil {
					return fmt.Errorf("encode track: %w", err)
				}
			} else {
				renderTrack(cmd.OutOrStdout(), track)
			}

			if reportPath != "" {
				if err := exportReport(app, track, reportPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", reportPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the track as JSON")
	cmd.Flags().StringVar(&reportPath, "report", "", "write an xlsx report to this path")

	return cmd
}
