package ports

import (
	"context"
	"io"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

// AnalysisCommands is the inbound contract for driving analysis tracks.
type AnalysisCommands interface {
	StartAnalysis(ctx context.Context, req domain.StartRequest) (domain.Track, error)
	SetForeground(ctx context.Context, documentID string) (*domain.Track, error)
	RetryFromFailure(ctx context.Context, documentID string) (domain.Track, error)
	AcceptPartial(ctx context.Context, documentID string) (domain.Track, error)
}

// AnalysisReader is the read model the display layer uses.
type AnalysisReader interface {
	Get(ctx context.Context, documentID string) (domain.Track, error)
	Foreground() (domain.Track, bool)
	List() []domain.Track
}

// ProgressFeed is the subscription-style feed of track progress events.
type ProgressFeed interface {
	Subscribe(buffer int) (<-chan domain.ProgressEvent, func())
}

// AnalysisService bundles everything inbound adapters need.
type AnalysisService interface {
	AnalysisCommands
	AnalysisReader
	ProgressFeed
}

// AnalysisEnqueuer stores a document and queues it for background analysis.
type AnalysisEnqueuer interface {
	Enqueue(ctx context.Context, filename string, body io.Reader, knownRisks []string) (domain.AnalysisRequest, error)
}
