// Package prompt builds the classification and elaboration prompts shared by the
// LLM providers and parses their JSON answers.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

// MaxDocumentRunes bounds the contract text sent in a single prompt.
const MaxDocumentRunes = 60000

const maxKnownInPrompt = 50

const SystemRole = "You are a senior contracts lawyer reviewing agreements for risk. Answer with strict JSON only."

func Category(text string, category domain.Category, alreadyKnown []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review the contract below for %s risks only.\n", category.Name)
	if len(category.FocusAreas) > 0 {
		fmt.Fprintf(&b, "Focus on: %s.\n", strings.Join(category.FocusAreas, "; "))
	}
	b.WriteString(`Return a JSON object with keys:
findings (array of objects with keys title, description, severity ("high"|"medium"|"low"), source_span (exact quote from the contract), location (section reference or empty)),
summary (one sentence about this category).
Return an empty findings array when nothing is problematic. No markdown, no extra keys.
`)

	known := nonEmpty(alreadyKnown)
	if len(known) > maxKnownInPrompt {
		known = known[len(known)-maxKnownInPrompt:]
	}
	if len(known) > 0 {
		b.WriteString("\nDo not report clauses that were already found:\n")
		for _, span := range known {
			fmt.Fprintf(&b, "- %s\n", span)
		}
	}

	b.WriteString("\nContract:\n")
	b.WriteString(truncateRunes(text, MaxDocumentRunes))
	return b.String()
}

func Elaboration(req domain.ElaborationRequest) string {
	return fmt.Sprintf(`Analyze the contract risk below in depth.
Return a JSON object with keys:
business_impact (string),
recommendations (array of objects with keys action, priority ("high"|"medium"|"low"), effort ("low"|"medium"|"high")),
suggested_replacement_text (string with safer wording for the clause).
No markdown, no extra keys.

Risk: %s
Details: %s
Clause:
%s
`, req.Title, req.Description, req.SourceSpan)
}

// ParseCategoryResult decodes a classification answer. A malformed answer is a
// temporary failure: the next attempt usually produces valid JSON.
func ParseCategoryResult(raw string) (domain.CategoryResult, error) {
	var result domain.CategoryResult
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &result); err != nil {
		return domain.CategoryResult{}, domain.WrapError(domain.ErrTemporary, "parse classification json", err)
	}
	if result.Findings == nil {
		result.Findings = []domain.Finding{}
	}
	return result, nil
}

func ParseElaboration(raw string) (domain.Elaboration, error) {
	var result domain.Elaboration
	if err := json.Unmarshal([]byte(ExtractJSONObject(raw)), &result); err != nil {
		return domain.Elaboration{}, domain.WrapError(domain.ErrTemporary, "parse elaboration json", err)
	}
	result.Fallback = false
	if strings.TrimSpace(result.BusinessImpact) == "" && len(result.Recommendations) == 0 {
		return domain.Elaboration{}, domain.WrapError(domain.ErrTemporary, "parse elaboration json", fmt.Errorf("empty elaboration"))
	}
	return result, nil
}

func ExtractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func nonEmpty(texts []string) []string {
	out := make([]string, 0, len(texts))
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
