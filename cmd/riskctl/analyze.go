package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/usecase"
)

func analyzeCmd() *cobra.Command {
	var (
		documentID    string
		knownRisks    []string
		reportPath    string
		acceptPartial bool
	)

	cmd := &cobra.Command{
		Use:   "analyze <file>",
		Short: "Analyze a plain-text contract in-process",
		Long: `Run category sequencing and deep analysis for one contract and print the findings.

The analysis is persisted after every step. If it is interrupted or fails on a
transient error, running the same command again resumes where it stopped.`,
		Example: `  riskctl analyze supply-agreement.txt --report supply-agreement.xlsx
  riskctl analyze nda.txt --known-risk "Unlimited liability" --accept-partial`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, ctx, release, err := openApp(cmd, true)
			if err != nil {
				return err
			}
			defer release()

			derivedID, text, err := loadDocument(ctx, app, args[0])
			if err != nil {
				return err
			}
			if documentID == "" {
				documentID = derivedID
			}

			reconciler := app.Reconciler
			events, unsubscribe := reconciler.Subscribe(256)
			view := newProgressView(cmd.ErrOrStderr())
			rendered := make(chan struct{})
			go func() {
				defer close(rendered)
				for event := range events {
					if event.DocumentID == documentID {
						view.Apply(event)
					}
				}
			}()
			stopRendering := func() {
				unsubscribe()
				<-rendered
				view.Finish()
			}

			if _, err := reconciler.SetForeground(ctx, documentID); err != nil {
				stopRendering()
				return err
			}
			track, err := reconciler.StartAnalysis(ctx, domain.StartRequest{
				DocumentID: documentID,
				Text:       text,
				KnownRisks: knownRisks,
			})
			if err == nil {
				track, err = reconciler.Wait(ctx, documentID)
			}
			for err == nil && acceptPartial && canAcceptPartial(track) {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping %s and continuing\n", track.Failure.Category)
				if _, err = reconciler.AcceptPartial(ctx, documentID); err == nil {
					track, err = reconciler.Wait(ctx, documentID)
				}
			}
			stopRendering()

			if err != nil {
				if errors.Is(err, ctx.Err()) {
					return fmt.Errorf("analysis of %s interrupted; run analyze again to resume", documentID)
				}
				if usecase.IsUserFixable(err) {
					return fmt.Errorf("configuration problem, fix it before retrying: %w", err)
				}
				return err
			}

			renderTrack(cmd.OutOrStdout(), track)
			if reportPath != "" {
				if err := exportReport(app, track, reportPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\nReport written to %s\n", reportPath)
			}
			if track.Phase == domain.PhaseFailed {
				return failureError(track)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document id (default: derived from the file contents)")
	cmd.Flags().StringArrayVar(&knownRisks, "known-risk", nil, "risk already identified elsewhere; repeatable")
	cmd.Flags().StringVar(&reportPath, "report", "", "write an xlsx report to this path")
	cmd.Flags().BoolVar(&acceptPartial, "accept-partial", false, "skip categories that exhaust their retries instead of stopping")

	return cmd
}

func canAcceptPartial(track domain.Track) bool {
	return track.Phase == domain.PhaseFailed &&
		track.Failure != nil &&
		track.Failure.Resumable &&
		track.Failure.Class != domain.ErrorClassConfiguration &&
		track.Failure.Category != ""
}

func failureError(track domain.Track) error {
	if track.Failure == nil {
		return fmt.Errorf("analysis of %s failed", track.DocumentID)
	}
	if track.Failure.Class == domain.ErrorClassConfiguration {
		return fmt.Errorf("analysis of %s failed: %s (fix the configuration, then run analyze again)", track.DocumentID, track.Failure.Message)
	}
	if track.Failure.Resumable {
		return fmt.Errorf("analysis of %s failed: %s (run analyze again to retry)", track.DocumentID, track.Failure.Message)
	}
	return fmt.Errorf("analysis of %s failed: %s", track.DocumentID, track.Failure.Message)
}
