package bootstrap

import (
	"context"
	"testing"

	"github.com/kirillkom/contract-risk-analyzer/internal/config"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func TestNewLLMRejectsUnknownProvider(t *testing.T) {
	_, _, err := newLLM(config.Config{LLMProvider: "bard"})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestNewLLMOpenAIRequiresKey(t *testing.T) {
	_, _, err := newLLM(config.Config{LLMProvider: "openai"})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing key, got %v", err)
	}
}

func TestNewLLMDefaultsToOllama(t *testing.T) {
	classifier, elaborator, err := newLLM(config.Config{OllamaURL: "http://localhost:11434", OllamaGenModel: "llama3.1:8b"})
	if err != nil {
		t.Fatalf("newLLM() error = %v", err)
	}
	if classifier == nil || elaborator == nil {
		t.Fatalf("expected ollama collaborators")
	}
}

func TestNewWithMemoryStoreAndNoQueue(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, config.Config{
		LLMProvider:   "ollama",
		OllamaURL:     "http://127.0.0.1:1",
		SnapshotStore: "memory",
		StoragePath:   t.TempDir(),
	}, Options{WithoutQueue: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer app.Close()

	if app.Enqueuer != nil || app.Queue != nil {
		t.Fatalf("expected no queue-backed collaborators")
	}
	if len(app.Categories) != len(domain.DefaultCategories()) {
		t.Fatalf("expected default catalog, got %d categories", len(app.Categories))
	}
	if app.History == nil || app.Reconciler == nil || app.Processor == nil {
		t.Fatalf("expected wired app, got %+v", app)
	}
}

func TestNewRejectsUnknownSnapshotStore(t *testing.T) {
	_, err := New(context.Background(), config.Config{SnapshotStore: "redis", StoragePath: t.TempDir()}, Options{WithoutQueue: true})
	if !domain.IsKind(err, domain.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
