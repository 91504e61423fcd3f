package memory

import (
	"context"
	"testing"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

func TestSnapshotStoreUpsertKeepsNewest(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()

	newer := domain.TrackSnapshot{Track: domain.Track{DocumentID: "doc-1", Sequence: 10, CategoryCursor: 4}}
	older := domain.TrackSnapshot{Track: domain.Track{DocumentID: "doc-1", Sequence: 5, CategoryCursor: 2}}
	if err := store.Persist(ctx, newer); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := store.Persist(ctx, older); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if err := store.Persist(ctx, newer); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}

	got, err := store.GetByDocumentID(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetByDocumentID() error = %v", err)
	}
	if got.Track.CategoryCursor != 4 {
		t.Fatalf("expected newest snapshot, got cursor %d", got.Track.CategoryCursor)
	}
}

func TestSnapshotStoreReturnsCopies(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	findings := []domain.Finding{{ID: "f-1", Title: "original"}}
	if err := store.Persist(ctx, domain.TrackSnapshot{Track: domain.Track{DocumentID: "doc-1", Findings: findings}}); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	findings[0].Title = "mutated"

	got, _ := store.GetByDocumentID(ctx, "doc-1")
	if got.Track.Findings[0].Title != "original" {
		t.Fatalf("store must not alias caller state")
	}
	if _, err := store.GetByDocumentID(ctx, "missing"); !domain.IsKind(err, domain.ErrTrackNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSnapshotStoreListRecent(t *testing.T) {
	store := NewSnapshotStore()
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"doc-a", "doc-b", "doc-c"} {
		snapshot := domain.TrackSnapshot{Track: domain.Track{
			DocumentID: id,
			Phase:      domain.PhaseSequencing,
			Findings:   make([]domain.Finding, i),
			UpdatedAt:  base.Add(time.Duration(i) * time.Minute),
		}}
		if err := store.Persist(ctx, snapshot); err != nil {
			t.Fatalf("Persist() error = %v", err)
		}
	}

	got, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if len(got) != 2 || got[0].DocumentID != "doc-c" || got[1].DocumentID != "doc-b" {
		t.Fatalf("unexpected listing: %+v", got)
	}
	if got[0].FindingsTotal != 2 {
		t.Fatalf("expected 2 findings for doc-c, got %d", got[0].FindingsTotal)
	}
}
