package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func completionServer(t *testing.T, status int, body string, captured *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		if captured != nil {
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func completion(content string) string {
	raw, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"model":   "gpt-4o-mini",
		"choices": []any{map[string]any{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}}},
	})
	return string(raw)
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(" ", "", ""); !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestClassifyCategoryUsesJSONMode(t *testing.T) {
	var payload map[string]any
	server := completionServer(t, http.StatusOK, completion(`{"findings":[{"title":"Auto-renewal","severity":"medium","source_span":"renews automatically"}],"summary":"ok"}`), &payload)

	client, err := New("sk-test", "gpt-4o-mini", server.URL+"/v1")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	result, err := NewRiskClassifier(client).ClassifyCategory(context.Background(), "text", domain.Category{Name: "TERMINATION"}, nil)
	if err != nil {
		t.Fatalf("ClassifyCategory() error = %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].SourceSpan != "renews automatically" {
		t.Fatalf("unexpected result: %+v", result)
	}
	format, _ := payload["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %+v", payload["response_format"])
	}
}

func TestStatusCodesMapToErrorKinds(t *testing.T) {
	cases := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, domain.ErrConfiguration},
		{http.StatusNotFound, domain.ErrConfiguration},
		{http.StatusTooManyRequests, domain.ErrTemporary},
		{http.StatusBadGateway, domain.ErrTemporary},
	}
	for _, tc := range cases {
		server := completionServer(t, tc.status, `{"error":{"message":"nope","type":"invalid_request_error","code":"x"}}`, nil)
		client, err := New("sk-test", "", server.URL+"/v1")
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		_, err = NewElaborator(client).Elaborate(context.Background(), domain.ElaborationRequest{Title: "x"})
		if !domain.IsKind(err, tc.kind) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.kind, err)
		}
	}
}
