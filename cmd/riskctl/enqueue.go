package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func enqueueCmd() *cobra.Command {
	var (
		knownRisks []string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "enqueue <file>",
		Short: "Queue a contract for the worker",
		Long: `Store the contract and publish an analysis request on the queue. With --watch
the command follows the worker's progress events until the analysis stops.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, release, err := openApp(cmd, false)
			if err != nil {
				return err
			}
			defer release()

			file, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open document: %w", err)
			}
			defer file.Close()

			req, err := app.Enqueuer.Enqueue(ctx, filepath.Base(args[0]), file, knownRisks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s as %s\n", req.Filename, req.DocumentID)
			if !watch {
				return nil
			}

			watchCtx, stopWatching := context.WithCancel(ctx)
			defer stopWatching()

			var (
				mu   sync.Mutex
				last domain.ProgressEvent
			)
			view := newProgressView(cmd.ErrOrStderr())
			err = app.Queue.SubscribeProgress(watchCtx, req.DocumentID, func(event domain.ProgressEvent) {
				mu.Lock()
				defer mu.Unlock()
				view.Apply(event)
				last = event
				if event.Kind == domain.EventTrackCompleted || event.Kind == domain.EventTrackFailed {
					stopWatching()
				}
			})
			mu.Lock()
			defer mu.Unlock()
			view.Finish()
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return fmt.Errorf("stopped watching %s; the worker keeps running", req.DocumentID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s finished in phase %s with %d findings\n", req.DocumentID, last.Phase, last.FindingsTotal)
			if last.Kind == domain.EventTrackFailed {
				return fmt.Errorf("analysis of %s failed: %s", req.DocumentID, failureLine(last.Failure))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&knownRisks, "known-risk", nil, "risk already identified elsewhere; repeatable")
	cmd.Flags().BoolVar(&watch, "watch", false, "follow progress until the analysis stops")

	return cmd
}
