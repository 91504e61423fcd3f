package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func TestClassifyCategorySendsCategoryPrompt(t *testing.T) {
	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"{\"findings\":[{\"title\":\"Uncapped liability\",\"severity\":\"high\",\"source_span\":\"liability is unlimited\"}],\"summary\":\"risky\"}"}`))
	}))
	defer server.Close()

	classifier := NewRiskClassifier(New(server.URL, "llama3", time.Second))
	result, err := classifier.ClassifyCategory(context.Background(), "The liability is unlimited.", domain.Category{Name: "LIABILITY"}, []string{"known clause"})
	if err != nil {
		t.Fatalf("ClassifyCategory() error = %v", err)
	}
	if len(result.Findings) != 1 || result.Findings[0].Title != "Uncapped liability" {
		t.Fatalf("unexpected result: %+v", result)
	}
	promptText, _ := payload["prompt"].(string)
	if !strings.Contains(promptText, "LIABILITY") || !strings.Contains(promptText, "known clause") {
		t.Fatalf("unexpected prompt: %s", promptText)
	}
	if payload["format"] != "json" || payload["model"] != "llama3" {
		t.Fatalf("unexpected request payload: %+v", payload)
	}
}

func TestElaborateParsesAnswer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"{\"business_impact\":\"High exposure\",\"recommendations\":[{\"action\":\"Cap it\",\"priority\":\"high\",\"effort\":\"low\"}]}"}`))
	}))
	defer server.Close()

	elaborator := NewElaborator(New(server.URL, "llama3", time.Second))
	got, err := elaborator.Elaborate(context.Background(), domain.ElaborationRequest{Title: "Uncapped liability"})
	if err != nil {
		t.Fatalf("Elaborate() error = %v", err)
	}
	if got.BusinessImpact != "High exposure" || len(got.Recommendations) != 1 {
		t.Fatalf("unexpected elaboration: %+v", got)
	}
}

func TestCallErrorsAreClassified(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		kind   error
	}{
		{"overloaded", http.StatusServiceUnavailable, "busy", domain.ErrTemporary},
		{"rate limited", http.StatusTooManyRequests, "slow down", domain.ErrTemporary},
		{"missing model", http.StatusNotFound, `{"error":"model \"llama3\" not found, try pulling it first"}`, domain.ErrConfiguration},
		{"unauthorized", http.StatusUnauthorized, "", domain.ErrConfiguration},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, tc.body, tc.status)
			}))
			defer server.Close()

			_, err := NewRiskClassifier(New(server.URL, "llama3", time.Second)).
				ClassifyCategory(context.Background(), "text", domain.Category{Name: "LIABILITY"}, nil)
			if !domain.IsKind(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			if tc.body != "" && !strings.Contains(err.Error(), strings.Split(tc.body, " ")[0]) {
				t.Fatalf("expected response body in error, got %v", err)
			}
		})
	}
}

func TestBadRequestIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad options", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := NewElaborator(New(server.URL, "llama3", time.Second)).Elaborate(context.Background(), domain.ElaborationRequest{})
	if err == nil || domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected untyped fatal error, got %v", err)
	}
}

func TestUnreachableServerIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewElaborator(New(url, "llama3", time.Second)).Elaborate(context.Background(), domain.ElaborationRequest{})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestTruncatedResponseIsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response": "{\"risks\": [`))
	}))
	defer server.Close()

	_, err := NewElaborator(New(server.URL, "llama3", time.Second)).Elaborate(context.Background(), domain.ElaborationRequest{})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}
