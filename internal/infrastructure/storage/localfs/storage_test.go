package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func TestSaveAndOpenNestedKey(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	if err := storage.Save(ctx, "reports/doc-1.xlsx", strings.NewReader("payload")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	rc, err := storage.Open(ctx, "reports/doc-1.xlsx")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()
	raw, _ := io.ReadAll(rc)
	if string(raw) != "payload" {
		t.Fatalf("unexpected payload %q", raw)
	}
}

func TestKeysCannotEscapeBasePath(t *testing.T) {
	dir := t.TempDir()
	storage, err := New(filepath.Join(dir, "objects"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := storage.Save(context.Background(), "../../escape.txt", strings.NewReader("x")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "objects", "escape.txt")); err != nil {
		t.Fatalf("expected object inside base path: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.txt")); err == nil {
		t.Fatalf("object escaped base path")
	}
}

func TestOpenMissingKeyIsNotFound(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, err := storage.Open(context.Background(), "missing.txt"); !domain.IsKind(err, domain.ErrTrackNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := storage.Save(context.Background(), " ", strings.NewReader("x")); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty key, got %v", err)
	}
}
