package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
)

type textLoaderFake struct {
	text string
	err  error
}

func (f *textLoaderFake) Load(context.Context, string) (string, error) {
	return f.text, f.err
}

type runnerFake struct {
	started []domain.StartRequest
	final   domain.Track
	err     error
}

func (f *runnerFake) StartAnalysis(_ context.Context, req domain.StartRequest) (domain.Track, error) {
	if f.err != nil {
		return domain.Track{}, f.err
	}
	f.started = append(f.started, req)
	return domain.Track{DocumentID: req.DocumentID, Phase: domain.PhaseSequencing}, nil
}

func (f *runnerFake) Wait(context.Context, string) (domain.Track, error) {
	return f.final, nil
}

type exporterFake struct {
	exported []string
}

func (f *exporterFake) Export(w io.Writer, snapshot domain.TrackSnapshot) error {
	f.exported = append(f.exported, snapshot.Track.DocumentID)
	_, err := fmt.Fprintf(w, "report:%s:%d", snapshot.Track.DocumentID, len(snapshot.Track.Findings))
	return err
}

func (f *exporterFake) ContentType() string { return "text/plain" }
func (f *exporterFake) Extension() string   { return "txt" }

func TestProcessRunsTrackAndExportsReport(t *testing.T) {
	runner := &runnerFake{final: domain.Track{
		DocumentID: "doc-1",
		Phase:      domain.PhaseComplete,
		Findings:   []domain.Finding{{ID: "f-1"}},
	}}
	exporter := &exporterFake{}
	storage := &ingestStorageFake{}
	uc := NewProcessAnalysisUseCase(&textLoaderFake{text: "contract text"}, runner, exporter, storage)

	track, err := uc.Process(context.Background(), domain.AnalysisRequest{DocumentID: "doc-1", StorageKey: "documents/doc-1.txt", KnownRisks: []string{"known"}})
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if track.Phase != domain.PhaseComplete {
		t.Fatalf("expected complete track, got %s", track.Phase)
	}
	if len(runner.started) != 1 || runner.started[0].Text != "contract text" || runner.started[0].KnownRisks[0] != "known" {
		t.Fatalf("unexpected start request: %+v", runner.started)
	}
	if got := storage.saved["reports/doc-1.txt"]; got != "report:doc-1:1" {
		t.Fatalf("expected stored report, got %q", got)
	}
}

func TestProcessMapsFailureClass(t *testing.T) {
	cases := []struct {
		class domain.ErrorClass
		want  error
	}{
		{domain.ErrorClassConfiguration, domain.ErrConfiguration},
		{domain.ErrorClassTransient, domain.ErrRetriesExhausted},
		{domain.ErrorClassFatal, domain.ErrFatal},
	}
	for _, tc := range cases {
		runner := &runnerFake{final: domain.Track{
			DocumentID: "doc-1",
			Phase:      domain.PhaseFailed,
			Failure:    &domain.Failure{Class: tc.class, Category: "LIABILITY", Message: "boom"},
		}}
		exporter := &exporterFake{}
		uc := NewProcessAnalysisUseCase(&textLoaderFake{text: "x"}, runner, exporter, &ingestStorageFake{})

		_, err := uc.Process(context.Background(), domain.AnalysisRequest{DocumentID: "doc-1", StorageKey: "k"})
		if !errors.Is(err, tc.want) {
			t.Fatalf("class %s: expected %v, got %v", tc.class, tc.want, err)
		}
		if len(exporter.exported) != 0 {
			t.Fatalf("failed track must not be exported")
		}
	}
}

func TestProcessInterruptedTrackIsTemporary(t *testing.T) {
	runner := &runnerFake{final: domain.Track{DocumentID: "doc-1", Phase: domain.PhaseDeepAnalysis}}
	uc := NewProcessAnalysisUseCase(&textLoaderFake{text: "x"}, runner, nil, nil)

	_, err := uc.Process(context.Background(), domain.AnalysisRequest{DocumentID: "doc-1", StorageKey: "k"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
}

func TestProcessRejectsEmptyText(t *testing.T) {
	runner := &runnerFake{}
	uc := NewProcessAnalysisUseCase(&textLoaderFake{text: "  \n"}, runner, nil, nil)

	_, err := uc.Process(context.Background(), domain.AnalysisRequest{DocumentID: "doc-1", StorageKey: "k"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if len(runner.started) != 0 {
		t.Fatalf("analysis must not start without text")
	}
}

func TestProcessLoaderError(t *testing.T) {
	uc := NewProcessAnalysisUseCase(&textLoaderFake{err: errors.New("disk")}, &runnerFake{}, nil, nil)
	_, err := uc.Process(context.Background(), domain.AnalysisRequest{DocumentID: "doc-1", StorageKey: "k"})
	if err == nil || !strings.Contains(err.Error(), "load document text") {
		t.Fatalf("expected load error, got %v", err)
	}
}
