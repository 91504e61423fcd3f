package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
)

// TrackRunner is the part of the reconciler a queue worker drives.
type TrackRunner interface {
	StartAnalysis(ctx context.Context, req domain.StartRequest) (domain.Track, error)
	Wait(ctx context.Context, documentID string) (domain.Track, error)
}

// ProcessAnalysisUseCase handles one queued analysis request: it loads the document
// text, runs the track to a stop and exports the report of a completed track.
type ProcessAnalysisUseCase struct {
	loader   ports.TextLoader
	runner   TrackRunner
	exporter ports.ReportExporter
	storage  ports.ObjectStorage
}

func NewProcessAnalysisUseCase(
	loader ports.TextLoader,
	runner TrackRunner,
	exporter ports.ReportExporter,
	storage ports.ObjectStorage,
) *ProcessAnalysisUseCase {
	return &ProcessAnalysisUseCase{
		loader:   loader,
		runner:   runner,
		exporter: exporter,
		storage:  storage,
	}
}

func (uc *ProcessAnalysisUseCase) Process(ctx context.Context, req domain.AnalysisRequest) (domain.Track, error) {
	if strings.TrimSpace(req.DocumentID) == "" {
		return domain.Track{}, domain.WrapError(domain.ErrInvalidInput, "process analysis", errors.New("document_id is required"))
	}

	text, err := uc.loadText(ctx, req.StorageKey)
	if err != nil {
		return domain.Track{}, err
	}

	if _, err := uc.runner.StartAnalysis(ctx, domain.StartRequest{
		DocumentID: req.DocumentID,
		Text:       text,
		KnownRisks: req.KnownRisks,
	}); err != nil {
		return domain.Track{}, fmt.Errorf("start analysis: %w", err)
	}

	track, err := uc.runner.Wait(ctx, req.DocumentID)
	if err != nil {
		return domain.Track{}, fmt.Errorf("wait for track: %w", err)
	}

	switch track.Phase {
	case domain.PhaseComplete:
		if err := uc.exportReport(ctx, track, text); err != nil {
			return track, err
		}
		return track, nil
	case domain.PhaseFailed:
		return track, failureError(track)
	default:
		// Interrupted by shutdown; the snapshot lets the next delivery resume.
		return track, domain.WrapError(domain.ErrTemporary, "process analysis", fmt.Errorf("track %s stopped in phase %s", track.DocumentID, track.Phase))
	}
}

func (uc *ProcessAnalysisUseCase) loadText(ctx context.Context, storageKey string) (string, error) {
	if strings.TrimSpace(storageKey) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "load text", errors.New("storage_key is required"))
	}
	text, err := uc.loader.Load(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("load document text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "load text", errors.New("empty document text"))
	}
	return text, nil
}

func (uc *ProcessAnalysisUseCase) exportReport(ctx context.Context, track domain.Track, text string) error {
	if uc.exporter == nil || uc.storage == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := uc.exporter.Export(&buf, domain.TrackSnapshot{Track: track, DocumentText: text}); err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	if err := uc.storage.Save(ctx, ReportKey(track.DocumentID, uc.exporter.Extension()), &buf); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}

func failureError(track domain.Track) error {
	if track.Failure == nil {
		return domain.WrapError(domain.ErrFatal, "process analysis", fmt.Errorf("track %s failed", track.DocumentID))
	}
	kind := domain.ErrFatal
	switch track.Failure.Class {
	case domain.ErrorClassConfiguration:
		kind = domain.ErrConfiguration
	case domain.ErrorClassTransient:
		kind = domain.ErrRetriesExhausted
	}
	if track.Failure.Category == "" {
		return domain.WrapError(kind, "process analysis", fmt.Errorf("deep analysis at finding %d: %s", track.Failure.Cursor, track.Failure.Message))
	}
	return domain.WrapError(kind, "process analysis", fmt.Errorf("category %s: %s", track.Failure.Category, track.Failure.Message))
}
