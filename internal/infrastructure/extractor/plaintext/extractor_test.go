package plaintext

import (
	"context"
	"strings"
	"testing"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/storage/localfs"
)

func TestLoadTrimsTextAndBOM(t *testing.T) {
	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	ctx := context.Background()
	if err := storage.Save(ctx, "doc.txt", strings.NewReader("\uFEFF  1. Liability is unlimited.\n")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	text, err := NewLoader(storage).Load(ctx, "doc.txt")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "1. Liability is unlimited." {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestLoadRejectsBinary(t *testing.T) {
	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	ctx := context.Background()
	if err := storage.Save(ctx, "doc.pdf", strings.NewReader("%PDF-\xff\xfe")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := NewLoader(storage).Load(ctx, "doc.pdf"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
