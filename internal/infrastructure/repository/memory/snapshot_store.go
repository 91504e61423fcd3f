// Package memory holds an in-process snapshot store for single-binary runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]domain.TrackSnapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{snapshots: make(map[string]domain.TrackSnapshot)}
}

func (s *SnapshotStore) Persist(_ context.Context, snapshot domain.TrackSnapshot) error {
	id := snapshot.Track.DocumentID
	if id == "" {
		return domain.WrapError(domain.ErrInvalidInput, "persist snapshot", errors.New("document_id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.snapshots[id]; ok && current.Track.Sequence > snapshot.Track.Sequence {
		return nil
	}
	s.snapshots[id] = domain.TrackSnapshot{Track: snapshot.Track.Clone(), DocumentText: snapshot.DocumentText}
	return nil
}

func (s *SnapshotStore) GetByDocumentID(_ context.Context, documentID string) (*domain.TrackSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.snapshots[documentID]
	if !ok {
		return nil, domain.WrapError(domain.ErrTrackNotFound, "get track snapshot", fmt.Errorf("document_id=%s", documentID))
	}
	out := domain.TrackSnapshot{Track: snapshot.Track.Clone(), DocumentText: snapshot.DocumentText}
	return &out, nil
}

func (s *SnapshotStore) ListRecent(_ context.Context, limit int) ([]domain.SnapshotSummary, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	s.mu.RLock()
	out := make([]domain.SnapshotSummary, 0, len(s.snapshots))
	for _, snapshot := range s.snapshots {
		track := snapshot.Track
		out = append(out, domain.SnapshotSummary{
			DocumentID:         track.DocumentID,
			Phase:              track.Phase,
			CategoryCursor:     track.CategoryCursor,
			DeepAnalysisCursor: track.DeepAnalysisCursor,
			FindingsTotal:      len(track.Findings),
			UpdatedAt:          track.UpdatedAt,
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
