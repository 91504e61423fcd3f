package prompt

import (
	"strings"
	"testing"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func TestCategoryPromptListsKnownRisks(t *testing.T) {
	got := Category("The contract text.", domain.Category{Name: "PAYMENT", FocusAreas: []string{"late fees"}}, []string{"", "Net 90 payment terms"})

	for _, want := range []string{"PAYMENT", "late fees", "- Net 90 payment terms", "The contract text."} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected prompt to contain %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "- \n") {
		t.Fatalf("empty known risks must be skipped")
	}
}

func TestCategoryPromptTruncatesByRunes(t *testing.T) {
	text := strings.Repeat("ж", MaxDocumentRunes+10)
	got := Category(text, domain.Category{Name: "LIABILITY"}, nil)
	if strings.Count(got, "ж") != MaxDocumentRunes {
		t.Fatalf("expected %d runes of contract text, got %d", MaxDocumentRunes, strings.Count(got, "ж"))
	}
}

func TestParseCategoryResultStripsProse(t *testing.T) {
	raw := "Sure, here you go:\n```json\n{\"findings\":[{\"title\":\"Uncapped liability\",\"severity\":\"high\",\"source_span\":\"liability is unlimited\",\"location\":\"Section 5\"}],\"summary\":\"one risk\"}\n```"
	result, err := ParseCategoryResult(raw)
	if err != nil {
		t.Fatalf("ParseCategoryResult() error = %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].SourceSpan != "liability is unlimited" || result.Summary != "one risk" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestParseMalformedAnswerIsTemporary(t *testing.T) {
	if _, err := ParseCategoryResult("not json"); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if _, err := ParseElaboration(`{"business_impact":""}`); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error for empty elaboration, got %v", err)
	}
}

func TestParseElaboration(t *testing.T) {
	raw := `{"business_impact":"Exposure to unlimited damages.","recommendations":[{"action":"Add a cap","priority":"high","effort":"low"}],"suggested_replacement_text":"Liability is capped at fees paid.","fallback":true}`
	got, err := ParseElaboration(raw)
	if err != nil {
		t.Fatalf("ParseElaboration() error = %v", err)
	}
	if got.Fallback {
		t.Fatalf("model output must never mark itself as fallback")
	}
	if len(got.Recommendations) != 1 || got.SuggestedReplacementText == "" {
		t.Fatalf("unexpected elaboration: %+v", got)
	}
}
