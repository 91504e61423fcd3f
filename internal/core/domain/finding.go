package domain

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// ParseSeverity maps free-form collaborator output onto the three known levels.
// Unknown values are treated as medium.
func ParseSeverity(raw string) Severity {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "high", "critical", "severe":
		return SeverityHigh
	case "low", "minor":
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Rank orders severities for sorting: high < medium < low.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	default:
		return 2
	}
}

type Recommendation struct {
	Action   string `json:"action"`
	Priority string `json:"priority"`
	Effort   string `json:"effort"`
}

// Elaboration is the deep-analysis body attached to a finding.
type Elaboration struct {
	BusinessImpact           string           `json:"business_impact,omitempty"`
	Recommendations          []Recommendation `json:"recommendations,omitempty"`
	SuggestedReplacementText string           `json:"suggested_replacement_text,omitempty"`
	Fallback                 bool             `json:"fallback,omitempty"`
}

type Finding struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	SourceSpan  string   `json:"source_span"`
	Category    string   `json:"category"`
	Location    string   `json:"location,omitempty"`

	Elaboration         *Elaboration `json:"elaboration,omitempty"`
	Analyzing           bool         `json:"analyzing"`
	ElaborationComplete bool         `json:"elaboration_complete"`
}

// ElaborationRequest is what the elaboration collaborator receives for one finding.
type ElaborationRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	SourceSpan  string `json:"source_span"`
}

func (f Finding) ElaborationRequest() ElaborationRequest {
	return ElaborationRequest{
		Title:       f.Title,
		Description: f.Description,
		SourceSpan:  f.SourceSpan,
	}
}

// Clone returns a deep copy so published findings never alias track state.
func (f Finding) Clone() Finding {
	out := f
	if f.Elaboration != nil {
		elaboration := *f.Elaboration
		elaboration.Recommendations = append([]Recommendation(nil), f.Elaboration.Recommendations...)
		out.Elaboration = &elaboration
	}
	return out
}

func CloneFindings(findings []Finding) []Finding {
	if findings == nil {
		return nil
	}
	out := make([]Finding, len(findings))
	for i, f := range findings {
		out[i] = f.Clone()
	}
	return out
}

// FallbackElaboration is attached when elaboration fails after all retries.
func FallbackElaboration() Elaboration {
	return Elaboration{
		BusinessImpact: "Automated analysis was unavailable for this clause. Its business impact has not been assessed.",
		Recommendations: []Recommendation{{
			Action:   "Review this clause manually with legal counsel.",
			Priority: "high",
			Effort:   "medium",
		}},
		Fallback: true,
	}
}

// CategoryResult is the classification collaborator's answer for one category.
type CategoryResult struct {
	Findings []Finding `json:"findings"`
	Summary  string    `json:"summary"`
}

var locationNumberPattern = regexp.MustCompile(`\d+(\.\d+)?`)

// LocationNumber extracts the first number from a section reference such as "Section 5.2".
func LocationNumber(location string) (float64, bool) {
	match := locationNumberPattern.FindString(location)
	if match == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// SortFindings orders findings by severity, then resolvable numeric location ascending.
// Findings without a resolvable location follow and keep their insertion order.
func SortFindings(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		a, b := findings[i], findings[j]
		if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
			return ra < rb
		}
		na, okA := LocationNumber(a.Location)
		nb, okB := LocationNumber(b.Location)
		switch {
		case okA && okB:
			return na < nb
		case okA != okB:
			return okA
		default:
			return false
		}
	})
}
