package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

type SnapshotRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *SnapshotRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101801)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS track_snapshots (
	document_id TEXT PRIMARY KEY,
	phase TEXT NOT NULL,
	category_cursor INTEGER NOT NULL DEFAULT 0,
	deep_analysis_cursor INTEGER NOT NULL DEFAULT 0,
	findings_total INTEGER NOT NULL DEFAULT 0,
	sequence BIGINT NOT NULL DEFAULT 0,
	track JSONB NOT NULL,
	document_text TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_track_snapshots_phase ON track_snapshots(phase);
CREATE INDEX IF NOT EXISTS idx_track_snapshots_updated_at ON track_snapshots(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Persist upserts the snapshot of one document. A snapshot older than the stored one
// (lower event sequence) is ignored, so replays never move cursors backwards.
func (r *SnapshotRepository) Persist(ctx context.Context, snapshot domain.TrackSnapshot) error {
	track := snapshot.Track
	if track.DocumentID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "persist snapshot", errors.New("document_id is required"))
	}
	trackJSON, err := json.Marshal(track)
	if err != nil {
		return fmt.Errorf("marshal track: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO track_snapshots (
	document_id, phase, category_cursor, deep_analysis_cursor, findings_total, sequence, track, document_text, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (document_id) DO UPDATE SET
	phase = EXCLUDED.phase,
	category_cursor = EXCLUDED.category_cursor,
	deep_analysis_cursor = EXCLUDED.deep_analysis_cursor,
	findings_total = EXCLUDED.findings_total,
	sequence = EXCLUDED.sequence,
	track = EXCLUDED.track,
	document_text = EXCLUDED.document_text,
	updated_at = EXCLUDED.updated_at
WHERE track_snapshots.sequence <= EXCLUDED.sequence
`,
		track.DocumentID, string(track.Phase), track.CategoryCursor, track.DeepAnalysisCursor, len(track.Findings),
		int64(track.Sequence), trackJSON, snapshot.DocumentText, r.now(),
	)
	if err != nil {
		return fmt.Errorf("upsert track snapshot: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.TrackSnapshot, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT track, document_text
FROM track_snapshots
WHERE document_id = $1
`, documentID)

	var trackRaw []byte
	var snapshot domain.TrackSnapshot
	if err := row.Scan(&trackRaw, &snapshot.DocumentText); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrTrackNotFound, "get track snapshot", fmt.Errorf("document_id=%s", documentID))
		}
		return nil, fmt.Errorf("scan track snapshot: %w", err)
	}
	if err := json.Unmarshal(trackRaw, &snapshot.Track); err != nil {
		return nil, fmt.Errorf("unmarshal track: %w", err)
	}
	if snapshot.Track.Findings == nil {
		snapshot.Track.Findings = []domain.Finding{}
	}
	return &snapshot, nil
}

func (r *SnapshotRepository) ListRecent(ctx context.Context, limit int) ([]domain.SnapshotSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT document_id, phase, category_cursor, deep_analysis_cursor, findings_total, updated_at
FROM track_snapshots
ORDER BY updated_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list track snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]domain.SnapshotSummary, 0)
	for rows.Next() {
		var item domain.SnapshotSummary
		var phase string
		if err := rows.Scan(&item.DocumentID, &phase, &item.CategoryCursor, &item.DeepAnalysisCursor, &item.FindingsTotal, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan track snapshot summary: %w", err)
		}
		item.Phase = domain.Phase(phase)
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate track snapshots: %w", err)
	}
	return out, nil
}
