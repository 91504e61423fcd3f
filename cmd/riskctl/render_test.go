package main

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func TestProgressViewFollowsPhases(t *testing.T) {
	view := newProgressView(io.Discard)

	view.Apply(domain.ProgressEvent{Kind: domain.EventTrackStarted, Phase: domain.PhaseSequencing, CategoryTotal: 8})
	if view.bar == nil || view.phase != domain.PhaseSequencing {
		t.Fatalf("expected sequencing bar, got phase=%q bar=%v", view.phase, view.bar)
	}
	view.Apply(domain.ProgressEvent{Kind: domain.EventCategoryCompleted, Phase: domain.PhaseSequencing, CategoryCursor: 3, CategoryTotal: 8})
	if got := view.bar.State().CurrentNum; got != 3 {
		t.Fatalf("expected cursor 3, got %d", got)
	}

	view.Apply(domain.ProgressEvent{Kind: domain.EventPhaseChanged, Phase: domain.PhaseDeepAnalysis, FindingsTotal: 2})
	if view.phase != domain.PhaseDeepAnalysis || view.bar == nil {
		t.Fatalf("expected deep analysis bar")
	}
	view.Apply(domain.ProgressEvent{Kind: domain.EventTrackCompleted, Phase: domain.PhaseComplete})
	if view.bar != nil {
		t.Fatalf("expected bar to finish on completion")
	}
}

func TestProgressViewSkipsEmptyDeepAnalysis(t *testing.T) {
	view := newProgressView(io.Discard)
	view.Apply(domain.ProgressEvent{Kind: domain.EventPhaseChanged, Phase: domain.PhaseDeepAnalysis})
	if view.bar != nil {
		t.Fatalf("expected no bar without findings")
	}
}

func TestProgressViewReportsFailure(t *testing.T) {
	var out bytes.Buffer
	view := newProgressView(&out)
	view.Apply(domain.ProgressEvent{Kind: domain.EventTrackStarted, Phase: domain.PhaseSequencing, CategoryTotal: 4})
	view.Apply(domain.ProgressEvent{
		Kind:  domain.EventTrackFailed,
		Phase: domain.PhaseFailed,
		Failure: &domain.Failure{
			Class:    domain.ErrorClassTransient,
			Category: "Liability",
			Message:  "retries exhausted",
		},
	})
	if view.bar != nil {
		t.Fatalf("expected bar to stop on failure")
	}
	if !strings.Contains(out.String(), "transient: category Liability: retries exhausted") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRenderTrack(t *testing.T) {
	var out bytes.Buffer
	renderTrack(&out, domain.Track{
		DocumentID:         "doc-1",
		Phase:              domain.PhaseComplete,
		CategoryCursor:     8,
		CategoryTotal:      8,
		DeepAnalysisCursor: 2,
		SkippedCategories:  []string{"Termination"},
		Findings: []domain.Finding{
			{
				Title:               "Uncapped indemnity",
				Severity:            domain.SeverityHigh,
				Category:            "Liability",
				Location:            "Section 9.2",
				ElaborationComplete: true,
				Elaboration:         &domain.Elaboration{BusinessImpact: "Unlimited exposure"},
			},
			{
				Title:               "Auto-renewal",
				Severity:            domain.SeverityLow,
				Category:            "Term",
				ElaborationComplete: true,
				Elaboration:         &domain.Elaboration{Fallback: true},
			},
		},
	})

	text := out.String()
	for _, want := range []string{"doc-1", "Skipped:    Termination", "Uncapped indemnity", "Section 9.2", "elaborated", "fallback", "Impact: Unlimited exposure"} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestRenderHistory(t *testing.T) {
	var out bytes.Buffer
	renderHistory(&out, nil)
	if !strings.Contains(out.String(), "No persisted analyses") {
		t.Fatalf("unexpected empty output %q", out.String())
	}

	out.Reset()
	renderHistory(&out, []domain.SnapshotSummary{{
		DocumentID:    "doc-7",
		Phase:         domain.PhaseFailed,
		FindingsTotal: 3,
		UpdatedAt:     time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}})
	if !strings.Contains(out.String(), "doc-7") || !strings.Contains(out.String(), "failed") {
		t.Fatalf("unexpected history output %q", out.String())
	}
}
