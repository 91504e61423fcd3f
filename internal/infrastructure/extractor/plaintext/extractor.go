package plaintext

import (
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
)

// MaxDocumentBytes bounds how much text is read from one stored document.
const MaxDocumentBytes = 8 << 20

type Loader struct {
	storage ports.ObjectStorage
}

func NewLoader(storage ports.ObjectStorage) *Loader {
	return &Loader{storage: storage}
}

func (l *Loader) Load(ctx context.Context, storageKey string) (string, error) {
	reader, err := l.storage.Open(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(io.LimitReader(reader, MaxDocumentBytes+1))
	if err != nil {
		return "", fmt.Errorf("read source document: %w", err)
	}
	if len(raw) > MaxDocumentBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "load document", fmt.Errorf("document exceeds %d bytes", MaxDocumentBytes))
	}

	if !utf8.Valid(raw) {
		return "", domain.WrapError(domain.ErrInvalidInput, "load document", fmt.Errorf("only UTF-8 plain text is supported: %s", storageKey))
	}
	return strings.TrimSpace(strings.TrimPrefix(string(raw), "\uFEFF")), nil
}
