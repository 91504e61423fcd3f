// Package xlsx renders analysis tracks as Excel workbooks.
package xlsx

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

const (
	findingsSheet = "Findings"
	summarySheet  = "Summary"
)

var findingsHeader = []any{
	"Severity", "Category", "Location", "Title", "Description", "Clause",
	"Business impact", "Recommendations", "Suggested wording", "Manual review",
}

type Exporter struct{}

func NewExporter() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (e *Exporter) Extension() string {
	return "xlsx"
}

// Export writes one row per finding in display order plus a summary sheet.
func (e *Exporter) Export(w io.Writer, snapshot domain.TrackSnapshot) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", findingsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeFindings(f, snapshot.Track); err != nil {
		return err
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	if err := writeSummary(f, snapshot.Track); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeFindings(f *excelize.File, track domain.Track) error {
	if err := f.SetSheetRow(findingsSheet, "A1", &findingsHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetCellStyle(findingsSheet, "A1", "J1", bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}
	if err := f.SetColWidth(findingsSheet, "D", "I", 40); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	findings := domain.CloneFindings(track.Findings)
	domain.SortFindings(findings)
	for i, finding := range findings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		row := findingRow(finding)
		if err := f.SetSheetRow(findingsSheet, cell, &row); err != nil {
			return fmt.Errorf("write finding row %d: %w", i+1, err)
		}
	}
	return nil
}

func findingRow(finding domain.Finding) []any {
	var impact, wording, recommendations string
	manual := "no"
	if el := finding.Elaboration; el != nil {
		impact = el.BusinessImpact
		wording = el.SuggestedReplacementText
		parts := make([]string, 0, len(el.Recommendations))
		for _, rec := range el.Recommendations {
			parts = append(parts, fmt.Sprintf("[%s] %s", rec.Priority, rec.Action))
		}
		recommendations = strings.Join(parts, "\n")
		if el.Fallback {
			manual = "yes"
		}
	}
	return []any{
		string(finding.Severity), finding.Category, finding.Location, finding.Title, finding.Description,
		finding.SourceSpan, impact, recommendations, wording, manual,
	}
}

func writeSummary(f *excelize.File, track domain.Track) error {
	counts := map[domain.Severity]int{}
	for _, finding := range track.Findings {
		counts[finding.Severity]++
	}
	rows := [][]any{
		{"Document", track.DocumentID},
		{"Phase", string(track.Phase)},
		{"Categories analyzed", fmt.Sprintf("%d/%d", track.CategoryCursor, track.CategoryTotal)},
		{"Findings", len(track.Findings)},
		{"High", counts[domain.SeverityHigh]},
		{"Medium", counts[domain.SeverityMedium]},
		{"Low", counts[domain.SeverityLow]},
		{"Manual review", track.Stats.FallbackElaborations},
		{"Skipped categories", strings.Join(track.SkippedCategories, ", ")},
	}
	for _, summary := range track.Summaries {
		rows = append(rows, []any{"Note", summary})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary row %d: %w", i+1, err)
		}
	}
	return nil
}
