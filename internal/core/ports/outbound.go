package ports

import (
	"context"
	"io"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

// RiskClassifier runs one classification pass for a single risk category.
type RiskClassifier interface {
	ClassifyCategory(ctx context.Context, text string, category domain.Category, alreadyKnown []string) (domain.CategoryResult, error)
}

// FindingElaborator produces the deep-analysis body for one finding.
type FindingElaborator interface {
	Elaborate(ctx context.Context, req domain.ElaborationRequest) (domain.Elaboration, error)
}

// CallExecutor wraps a single collaborator call with the retry policy.
type CallExecutor interface {
	Execute(ctx context.Context, operation string, fn func(context.Context) error, classify func(error) domain.ErrorClass) error
}

// SnapshotStore persists track snapshots as an idempotent upsert keyed by document id.
type SnapshotStore interface {
	Persist(ctx context.Context, snapshot domain.TrackSnapshot) error
	GetByDocumentID(ctx context.Context, documentID string) (*domain.TrackSnapshot, error)
}

// SnapshotHistory lists persisted tracks, most recently updated first.
type SnapshotHistory interface {
	ListRecent(ctx context.Context, limit int) ([]domain.SnapshotSummary, error)
}

// ProgressPublisher forwards track progress events outside the process.
type ProgressPublisher interface {
	PublishProgress(ctx context.Context, event domain.ProgressEvent) error
}

// AnalysisRequestQueue publishes/consumes queued analysis requests.
type AnalysisRequestQueue interface {
	PublishAnalysisRequested(ctx context.Context, req domain.AnalysisRequest) error
	SubscribeAnalysisRequested(ctx context.Context, handler func(context.Context, domain.AnalysisRequest) error) error
}

// ObjectStorage stores document text and exported reports.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// TextLoader loads plain document text from storage.
type TextLoader interface {
	Load(ctx context.Context, storageKey string) (string, error)
}

// ReportExporter renders a finished track as a downloadable report.
type ReportExporter interface {
	Export(w io.Writer, snapshot domain.TrackSnapshot) error
	ContentType() string
	Extension() string
}
