package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*SnapshotRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	repo := NewSnapshotRepository(db)
	repo.now = func() time.Time { return time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC) }
	return repo, mock, func() { _ = db.Close() }
}

func TestPersistUpsertsByDocumentID(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	snapshot := domain.TrackSnapshot{
		Track: domain.Track{
			DocumentID:         "doc-1",
			Phase:              domain.PhaseDeepAnalysis,
			CategoryCursor:     8,
			DeepAnalysisCursor: 3,
			Findings:           []domain.Finding{{ID: "f-1"}, {ID: "f-2"}},
			Sequence:           42,
		},
		DocumentText: "contract",
	}

	mock.ExpectExec("INSERT INTO track_snapshots").
		WithArgs("doc-1", "deep-analysis", 8, 3, 2, int64(42), sqlmock.AnyArg(), "contract", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Persist(context.Background(), snapshot); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPersistRejectsMissingDocumentID(t *testing.T) {
	repo, _, done := newRepoWithMock(t)
	defer done()

	if err := repo.Persist(context.Background(), domain.TrackSnapshot{}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestGetByDocumentIDReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT track, document_text").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByDocumentID(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrTrackNotFound) {
		t.Fatalf("expected ErrTrackNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByDocumentIDDecodesTrack(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	raw, err := json.Marshal(domain.Track{
		DocumentID:     "doc-1",
		Phase:          domain.PhaseFailed,
		CategoryCursor: 2,
		Failure:        &domain.Failure{Class: domain.ErrorClassTransient, Resumable: true, Category: "PAYMENT", Cursor: 2},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mock.ExpectQuery("SELECT track, document_text").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"track", "document_text"}).AddRow(raw, "contract"))

	snapshot, err := repo.GetByDocumentID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByDocumentID() error = %v", err)
	}
	if snapshot.Track.Failure == nil || snapshot.Track.Failure.Category != "PAYMENT" || !snapshot.Track.Failure.Resumable {
		t.Fatalf("unexpected failure: %+v", snapshot.Track.Failure)
	}
	if snapshot.DocumentText != "contract" || snapshot.Track.Findings == nil {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}
}

func TestListRecentScansSummaries(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	updated := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT document_id, phase").
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{"document_id", "phase", "category_cursor", "deep_analysis_cursor", "findings_total", "updated_at"}).
			AddRow("doc-1", "complete", 8, 5, 5, updated).
			AddRow("doc-2", "sequencing", 3, 0, 4, updated))

	items, err := repo.ListRecent(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(items) != 2 || items[0].Phase != domain.PhaseComplete || items[1].FindingsTotal != 4 {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WithArgs(int64(2026101801)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS track_snapshots").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
