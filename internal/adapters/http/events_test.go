package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/contract-risk-analyzer/internal/config"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func TestStreamEventsFiltersByDocument(t *testing.T) {
	analysis := newAnalysisFake(domain.Track{DocumentID: "doc-1", Phase: domain.PhaseSequencing, CategoryTotal: 8})
	analysis.events = []domain.ProgressEvent{
		{Kind: domain.EventCategoryCompleted, DocumentID: "doc-2", Category: "PAYMENT", Sequence: 1},
		{Kind: domain.EventCategoryCompleted, DocumentID: "doc-1", Category: "LIABILITY", Sequence: 2},
		{Kind: domain.EventPhaseChanged, DocumentID: "doc-1", Phase: domain.PhaseDeepAnalysis, Sequence: 3},
	}
	handler := newTestHandler(t, config.Config{}, analysis, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/events?document_id=doc-1", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if ct := res.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := res.Body.String()
	for _, want := range []string{"event: snapshot\n", "event: category_completed\n", `"category":"LIABILITY"`, "event: phase_changed\n"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in stream:\n%s", want, body)
		}
	}
	if strings.Contains(body, "PAYMENT") {
		t.Fatalf("events of other documents must be filtered out:\n%s", body)
	}
	if strings.Index(body, "event: snapshot") > strings.Index(body, "event: category_completed") {
		t.Fatalf("snapshot must open the stream:\n%s", body)
	}
}

func TestStreamEventsWithoutFilterCarriesAllDocuments(t *testing.T) {
	analysis := newAnalysisFake()
	analysis.events = []domain.ProgressEvent{
		{Kind: domain.EventTrackStarted, DocumentID: "doc-1"},
		{Kind: domain.EventTrackStarted, DocumentID: "doc-2"},
	}
	handler := newTestHandler(t, config.Config{}, analysis, RouterOptions{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/events", nil))

	if got := strings.Count(res.Body.String(), "event: track_started"); got != 2 {
		t.Fatalf("expected 2 events, got %d:\n%s", got, res.Body.String())
	}
}
