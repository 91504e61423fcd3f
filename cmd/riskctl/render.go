package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/schollz/progressbar/v3"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

// progressView renders one track's progress feed as a bar per phase.
type progressView struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	phase domain.Phase
}

func newProgressView(out io.Writer) *progressView {
	return &progressView{out: out}
}

func (v *progressView) Apply(event domain.ProgressEvent) {
	switch event.Kind {
	case domain.EventRetrying:
		if v.bar != nil {
			v.bar.Describe(fmt.Sprintf("%s (retrying %s)", phaseLabel(v.phase), event.Category))
		}
		return
	case domain.EventTrackCompleted:
		v.Finish()
		return
	case domain.EventTrackFailed:
		v.abort()
		fmt.Fprintf(v.out, "analysis stopped: %s\n", failureLine(event.Failure))
		return
	case domain.EventRoleChanged:
		return
	}

	if event.Phase != v.phase {
		v.Finish()
		v.start(event)
	}
	if v.bar == nil {
		return
	}
	v.bar.Describe(phaseLabel(event.Phase))
	switch event.Phase {
	case domain.PhaseSequencing:
		_ = v.bar.Set(event.CategoryCursor)
	case domain.PhaseDeepAnalysis:
		_ = v.bar.Set(event.DeepAnalysisCursor)
	}
}

func (v *progressView) start(event domain.ProgressEvent) {
	v.phase = event.Phase
	total := 0
	switch event.Phase {
	case domain.PhaseSequencing:
		total = event.CategoryTotal
	case domain.PhaseDeepAnalysis:
		total = event.FindingsTotal
	}
	if total <= 0 {
		return
	}
	v.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(v.out),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(phaseLabel(event.Phase)),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(v.out)
		}),
	)
}

// Finish completes the current bar, if any.
func (v *progressView) Finish() {
	if v.bar == nil {
		return
	}
	_ = v.bar.Finish()
	v.bar = nil
}

func (v *progressView) abort() {
	if v.bar == nil {
		return
	}
	_ = v.bar.Exit()
	fmt.Fprintln(v.out)
	v.bar = nil
}

func phaseLabel(phase domain.Phase) string {
	switch phase {
	case domain.PhaseSequencing:
		return "Scanning categories"
	case domain.PhaseDeepAnalysis:
		return "Deep analysis"
	default:
		return string(phase)
	}
}

func failureLine(failure *domain.Failure) string {
	if failure == nil {
		return "unknown failure"
	}
	parts := []string{string(failure.Class)}
	if failure.Category != "" {
		parts = append(parts, "category "+failure.Category)
	}
	parts = append(parts, failure.Message)
	return strings.Join(parts, ": ")
}

func renderTrack(w io.Writer, track domain.Track) {
	fmt.Fprintf(w, "Document:   %s\n", track.DocumentID)
	fmt.Fprintf(w, "Phase:      %s\n", track.Phase)
	fmt.Fprintf(w, "Categories: %d/%d\n", track.CategoryCursor, track.CategoryTotal)
	fmt.Fprintf(w, "Elaborated: %d/%d\n", track.DeepAnalysisCursor, len(track.Findings))
	if len(track.SkippedCategories) > 0 {
		fmt.Fprintf(w, "Skipped:    %s\n", strings.Join(track.SkippedCategories, ", "))
	}
	if track.Failure != nil {
		fmt.Fprintf(w, "Failure:    %s\n", failureLine(track.Failure))
	}

	if len(track.Findings) == 0 {
		fmt.Fprintln(w, "\nNo risks found.")
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tCATEGORY\tTITLE\tLOCATION\tSTATUS")
	for _, finding := range track.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			finding.Severity,
			finding.Category,
			finding.Title,
			dashIfEmpty(finding.Location),
			findingStatus(finding),
		)
	}
	_ = tw.Flush()

	for _, finding := range track.Findings {
		if finding.Elaboration == nil || finding.Elaboration.Fallback {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", finding.Title)
		if finding.Elaboration.BusinessImpact != "" {
			fmt.Fprintf(w, "  Impact: %s\n", finding.Elaboration.BusinessImpact)
		}
		if finding.Elaboration.SuggestedReplacementText != "" {
			fmt.Fprintf(w, "  Suggested text: %s\n", finding.Elaboration.SuggestedReplacementText)
		}
	}
}

func findingStatus(finding domain.Finding) string {
	switch {
	case finding.Analyzing:
		return "analyzing"
	case !finding.ElaborationComplete:
		return "pending"
	case finding.Elaboration != nil && finding.Elaboration.Fallback:
		return "fallback"
	default:
		return "elaborated"
	}
}

func dashIfEmpty(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func renderHistory(w io.Writer, rows []domain.SnapshotSummary) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No persisted analyses.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DOCUMENT\tPHASE\tCATEGORIES\tELABORATED\tFINDINGS\tUPDATED")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
			row.DocumentID,
			row.Phase,
			row.CategoryCursor,
			row.DeepAnalysisCursor,
			row.FindingsTotal,
			row.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}
