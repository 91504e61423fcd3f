package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Category is an immutable risk category descriptor. Lower priority is analyzed first.
type Category struct {
	Name       string   `json:"name" yaml:"name"`
	Priority   int      `json:"priority" yaml:"priority"`
	FocusAreas []string `json:"focus_areas" yaml:"focus_areas"`
}

// DefaultCategories is the catalog used when no catalog file is configured.
func DefaultCategories() []Category {
	return []Category{
		{Name: "LIABILITY", Priority: 1, FocusAreas: []string{"limitation of liability", "uncapped liability", "consequential damages exclusions"}},
		{Name: "TERMINATION", Priority: 2, FocusAreas: []string{"termination for convenience", "notice periods", "post-termination obligations"}},
		{Name: "PAYMENT", Priority: 3, FocusAreas: []string{"payment terms", "late fees", "price escalation"}},
		{Name: "INTELLECTUAL_PROPERTY", Priority: 4, FocusAreas: []string{"ownership of deliverables", "license grants", "background IP"}},
		{Name: "CONFIDENTIALITY", Priority: 5, FocusAreas: []string{"definition of confidential information", "duration", "permitted disclosures"}},
		{Name: "INDEMNIFICATION", Priority: 6, FocusAreas: []string{"indemnity scope", "defense obligations", "caps on indemnity"}},
		{Name: "DISPUTE_RESOLUTION", Priority: 7, FocusAreas: []string{"governing law", "jurisdiction", "arbitration"}},
		{Name: "COMPLIANCE", Priority: 8, FocusAreas: []string{"data protection", "regulatory obligations", "audit rights"}},
	}
}

// NormalizeCatalog validates a catalog and returns a copy ordered by priority.
// Categories with equal priority keep their declared order.
func NormalizeCatalog(categories []Category) ([]Category, error) {
	if len(categories) == 0 {
		return nil, WrapError(ErrInvalidInput, "normalize catalog", fmt.Errorf("catalog is empty"))
	}

	seen := make(map[string]struct{}, len(categories))
	out := make([]Category, 0, len(categories))
	for idx, category := range categories {
		name := strings.ToUpper(strings.TrimSpace(category.Name))
		if name == "" {
			return nil, WrapError(ErrInvalidInput, "normalize catalog", fmt.Errorf("category #%d has empty name", idx))
		}
		if _, dup := seen[name]; dup {
			return nil, WrapError(ErrInvalidInput, "normalize catalog", fmt.Errorf("duplicate category %s", name))
		}
		seen[name] = struct{}{}

		focus := make([]string, 0, len(category.FocusAreas))
		for _, area := range category.FocusAreas {
			if area = strings.TrimSpace(area); area != "" {
				focus = append(focus, area)
			}
		}
		out = append(out, Category{Name: name, Priority: category.Priority, FocusAreas: focus})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out, nil
}
