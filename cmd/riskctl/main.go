package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	logLevel      string
	snapshotStore string
	rootCmd       = &cobra.Command{
		Use:   "riskctl",
		Short: "Contract risk analysis from the terminal",
		Long: `riskctl runs the progressive contract risk analysis in-process, queues documents
for the worker, and inspects persisted analyses.

An interrupted analysis is persisted and resumes when analyze is run again
with the same document.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&snapshotStore, "store", "", "snapshot store override (memory, postgres)")

	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(enqueueCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(catalogCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		slog.Debug("riskctl_failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
