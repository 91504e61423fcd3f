package mcpadapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

type analysisFake struct {
	tracks     map[string]domain.Track
	started    []domain.StartRequest
	foreground string
	acceptErr  error
}

func (f *analysisFake) StartAnalysis(_ context.Context, req domain.StartRequest) (domain.Track, error) {
	f.started = append(f.started, req)
	track := domain.Track{DocumentID: req.DocumentID, Phase: domain.PhaseSequencing, CategoryTotal: 8}
	f.tracks[req.DocumentID] = track
	return track, nil
}

func (f *analysisFake) SetForeground(_ context.Context, documentID string) (*domain.Track, error) {
	f.foreground = documentID
	track, ok := f.tracks[documentID]
	if !ok {
		return nil, nil
	}
	return &track, nil
}

func (f *analysisFake) RetryFromFailure(ctx context.Context, documentID string) (domain.Track, error) {
	return f.Get(ctx, documentID)
}

func (f *analysisFake) AcceptPartial(ctx context.Context, documentID string) (domain.Track, error) {
	if f.acceptErr != nil {
		return domain.Track{}, f.acceptErr
	}
	return f.Get(ctx, documentID)
}

func (f *analysisFake) Get(_ context.Context, documentID string) (domain.Track, error) {
	track, ok := f.tracks[documentID]
	if !ok {
		return domain.Track{}, domain.WrapError(domain.ErrTrackNotFound, "get track", fmt.Errorf("document_id=%s", documentID))
	}
	return track, nil
}

func (f *analysisFake) Foreground() (domain.Track, bool) {
	track, ok := f.tracks[f.foreground]
	return track, ok
}

func (f *analysisFake) List() []domain.Track {
	out := make([]domain.Track, 0, len(f.tracks))
	for _, track := range f.tracks {
		out = append(out, track)
	}
	return out
}

func (f *analysisFake) Subscribe(int) (<-chan domain.ProgressEvent, func()) {
	ch := make(chan domain.ProgressEvent)
	close(ch)
	return ch, func() {}
}

func callTool(t *testing.T, target tool, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Name = target.Definition().Name
	req.Params.Arguments = args
	result, err := target.Handle(context.Background(), req)
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	return result
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestStartAnalysisTool(t *testing.T) {
	analysis := &analysisFake{tracks: map[string]domain.Track{}}
	result := callTool(t, &startAnalysisTool{analysis: analysis}, map[string]any{
		"document_id": "doc-1",
		"text":        "The Customer shall pay within 90 days.",
		"known_risks": []any{"Late payment"},
	})

	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, result))
	}
	if len(analysis.started) != 1 || analysis.started[0].Text == "" || len(analysis.started[0].KnownRisks) != 1 {
		t.Fatalf("unexpected start request: %+v", analysis.started)
	}
	if !strings.Contains(resultText(t, result), `"phase": "sequencing"`) {
		t.Fatalf("expected track json, got %s", resultText(t, result))
	}
}

func TestToolsRequireDocumentID(t *testing.T) {
	analysis := &analysisFake{tracks: map[string]domain.Track{}}
	for _, target := range newTools(analysis) {
		if target.Definition().Name == "list_analyses" {
			continue
		}
		result := callTool(t, target, map[string]any{})
		if !result.IsError {
			t.Fatalf("%s: expected error without document_id", target.Definition().Name)
		}
	}
}

func TestSetForegroundUnknownDocument(t *testing.T) {
	analysis := &analysisFake{tracks: map[string]domain.Track{}}
	result := callTool(t, &setForegroundTool{analysis: analysis}, map[string]any{"document_id": "doc-9"})
	if result.IsError || !strings.Contains(resultText(t, result), "Nothing is known about doc-9") {
		t.Fatalf("unexpected result: %+v", result)
	}
	if analysis.foreground != "doc-9" {
		t.Fatalf("expected foreground pointer to move")
	}
}

func TestAcceptPartialReportsConfigurationProblem(t *testing.T) {
	analysis := &analysisFake{
		tracks:    map[string]domain.Track{"doc-1": {DocumentID: "doc-1", Phase: domain.PhaseFailed}},
		acceptErr: domain.WrapError(domain.ErrConfiguration, "accept partial", errors.New("api key rejected")),
	}
	result := callTool(t, &acceptPartialTool{analysis: analysis}, map[string]any{"document_id": "doc-1"})
	if !result.IsError || !strings.Contains(resultText(t, result), "configuration problem") {
		t.Fatalf("expected configuration error result, got %+v", result)
	}
}

func TestGetAnalysisNotFound(t *testing.T) {
	analysis := &analysisFake{tracks: map[string]domain.Track{}}
	result := callTool(t, &getAnalysisTool{analysis: analysis}, map[string]any{"document_id": "missing"})
	if !result.IsError {
		t.Fatalf("expected error result for unknown track")
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	analysis := &analysisFake{tracks: map[string]domain.Track{}}
	if NewServer(analysis) == nil {
		t.Fatalf("expected server")
	}
	names := map[string]bool{}
	for _, target := range newTools(analysis) {
		names[target.Definition().Name] = true
	}
	for _, want := range []string{"start_analysis", "set_foreground", "retry_analysis", "accept_partial", "get_analysis", "list_analyses"} {
		if !names[want] {
			t.Fatalf("missing tool %s", want)
		}
	}
}
