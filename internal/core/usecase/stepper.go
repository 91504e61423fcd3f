package usecase

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
)

type StepKind string

const (
	StepStarted   StepKind = "started"
	StepCompleted StepKind = "completed"
	StepFallback  StepKind = "fallback"
	// StepFailed ends the sequence: the elaborator needs a configuration fix.
	StepFailed StepKind = "failed"
)

// StepUpdate is one per-item update of the deep analysis. Completed/Total is the
// progress after this update.
type StepUpdate struct {
	Kind      StepKind
	Index     int
	Completed int
	Total     int
	Finding   domain.Finding
	Calls     int
	Err       error
}

type DeepAnalysisStepper struct {
	elaborator ports.FindingElaborator
	executor   ports.CallExecutor
	classify   func(error) domain.ErrorClass
	itemDelay  time.Duration
}

func NewDeepAnalysisStepper(
	elaborator ports.FindingElaborator,
	executor ports.CallExecutor,
	classify func(error) domain.ErrorClass,
	itemDelay time.Duration,
) *DeepAnalysisStepper {
	return &DeepAnalysisStepper{
		elaborator: elaborator,
		executor:   executor,
		classify:   classify,
		itemDelay:  itemDelay,
	}
}

// Run elaborates findings one at a time, starting at the first one that is not yet
// complete. Exhausted retries and fatal errors give the finding the fallback body. A
// configuration error yields StepFailed with the finding left incomplete and ends the
// sequence; it also ends early when ctx is done.
func (s *DeepAnalysisStepper) Run(ctx context.Context, findings []domain.Finding, onTransient func(index int, err error)) iter.Seq[StepUpdate] {
	items := domain.CloneFindings(findings)

	return func(yield func(StepUpdate) bool) {
		total := len(items)
		completed := 0
		for _, f := range items {
			if f.ElaborationComplete {
				completed++
			}
		}

		paced := false
		for idx := range items {
			if items[idx].ElaborationComplete {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if paced && !s.pause(ctx) {
				return
			}
			paced = true

			items[idx].Analyzing = true
			if !yield(StepUpdate{Kind: StepStarted, Index: idx, Completed: completed, Total: total, Finding: items[idx].Clone()}) {
				return
			}

			elaboration, calls, err := s.elaborate(ctx, idx, items[idx], onTransient)
			if err != nil && ctx.Err() != nil {
				return
			}

			if err != nil && s.classify(err) == domain.ErrorClassConfiguration {
				items[idx].Analyzing = false
				slog.Error("elaboration_configuration_failed", "finding_id", items[idx].ID, "error", err)
				yield(StepUpdate{Kind: StepFailed, Index: idx, Completed: completed, Total: total, Finding: items[idx].Clone(), Calls: calls, Err: err})
				return
			}

			kind := StepCompleted
			if err != nil {
				slog.Warn("elaboration_fallback", "finding_id", items[idx].ID, "attempts", calls, "error", err)
				elaboration = domain.FallbackElaboration()
				kind = StepFallback
			}

			items[idx].Elaboration = &elaboration
			items[idx].Analyzing = false
			items[idx].ElaborationComplete = true
			completed++

			if !yield(StepUpdate{Kind: kind, Index: idx, Completed: completed, Total: total, Finding: items[idx].Clone(), Calls: calls, Err: err}) {
				return
			}
		}
	}
}

func (s *DeepAnalysisStepper) elaborate(ctx context.Context, idx int, finding domain.Finding, onTransient func(int, error)) (domain.Elaboration, int, error) {
	classify := s.classify
	if onTransient != nil {
		classify = func(err error) domain.ErrorClass {
			class := s.classify(err)
			if class == domain.ErrorClassTransient {
				onTransient(idx, err)
			}
			return class
		}
	}

	var out domain.Elaboration
	calls := 0
	err := s.executor.Execute(ctx, "elaborate", func(callCtx context.Context) error {
		calls++
		elaboration, err := s.elaborator.Elaborate(callCtx, finding.ElaborationRequest())
		if err != nil {
			return err
		}
		out = elaboration
		return nil
	}, classify)
	return out, calls, err
}

func (s *DeepAnalysisStepper) pause(ctx context.Context) bool {
	if s.itemDelay <= 0 {
		return true
	}
	timer := time.NewTimer(s.itemDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
