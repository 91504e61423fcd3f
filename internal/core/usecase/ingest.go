package usecase

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
)

// EnqueueAnalysisUseCase stores a document's text and queues it for a worker.
type EnqueueAnalysisUseCase struct {
	storage ports.ObjectStorage
	queue   ports.AnalysisRequestQueue
	newID   func() string
	now     func() time.Time
}

func NewEnqueueAnalysisUseCase(
	storage ports.ObjectStorage,
	queue ports.AnalysisRequestQueue,
) *EnqueueAnalysisUseCase {
	return &EnqueueAnalysisUseCase{
		storage: storage,
		queue:   queue,
		newID:   uuid.NewString,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (uc *EnqueueAnalysisUseCase) Enqueue(
	ctx context.Context,
	filename string,
	body io.Reader,
	knownRisks []string,
) (domain.AnalysisRequest, error) {
	if body == nil {
		return domain.AnalysisRequest{}, domain.WrapError(domain.ErrInvalidInput, "enqueue analysis", fmt.Errorf("document body is required"))
	}

	id := uc.newID()
	storageKey := fmt.Sprintf("documents/%s_%s", id, sanitizeFilename(filename))

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return domain.AnalysisRequest{}, fmt.Errorf("save to object storage: %w", err)
	}

	req := domain.AnalysisRequest{
		DocumentID:  id,
		StorageKey:  storageKey,
		Filename:    filename,
		KnownRisks:  normalizeKnown(knownRisks),
		RequestedAt: uc.now(),
	}
	if err := uc.queue.PublishAnalysisRequested(ctx, req); err != nil {
		return domain.AnalysisRequest{}, fmt.Errorf("publish analysis request: %w", err)
	}

	return req, nil
}

// ReportKey is the object storage key of a document's exported report.
func ReportKey(documentID, extension string) string {
	return fmt.Sprintf("reports/%s.%s", sanitizeFilename(documentID), strings.TrimPrefix(extension, "."))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "document.txt"
	}
	return base
}
