package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/contract-risk-analyzer/internal/config"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/ports"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/usecase"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/catalog"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/llm/openai"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/repository/memory"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/storage/localfs"
)

// Options tune which collaborators a process needs.
type Options struct {
	Logger        *slog.Logger
	TrackObserver usecase.TrackObserver
	RetryObserver resilience.RetryObserver
	// WithoutQueue skips the NATS connection; enqueueing is then unavailable and
	// progress stays in-process.
	WithoutQueue bool
}

type App struct {
	Config config.Config

	Reconciler *usecase.TrackReconciler
	Enqueuer   ports.AnalysisEnqueuer
	Processor  *usecase.ProcessAnalysisUseCase
	History    ports.SnapshotHistory
	Exporter   ports.ReportExporter
	Storage    ports.ObjectStorage
	Queue      *nats.Queue
	Categories []domain.Category

	closeFn func()
}

// New wires the application. Tracks started through the returned reconciler run
// under ctx and are interrupted when it is canceled.
func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	categories, err := catalog.Load(cfg.CategoryCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load category catalog: %w", err)
	}

	classifier, elaborator, err := newLLM(cfg)
	if err != nil {
		return nil, fmt.Errorf("init llm provider: %w", err)
	}

	snapshots, history, db, err := newSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	closeDB := func() {
		if db != nil {
			_ = db.Close()
		}
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		closeDB()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	var executorOpts []resilience.Option
	if opts.RetryObserver != nil {
		executorOpts = append(executorOpts, resilience.WithObserver(opts.RetryObserver))
	}
	executor := resilience.NewExecutor(resilience.Config{
		MaxRetries:     cfg.RetryMaxRetries,
		BaseBackoff:    cfg.RetryBaseBackoff(),
		CallTimeout:    cfg.LLMCallTimeout(),
		BreakerEnabled: cfg.BreakerEnabled,
	}, executorOpts...)

	var queue *nats.Queue
	if !opts.WithoutQueue {
		queue, err = nats.NewWithOptions(cfg.NATSURL, cfg.NATSRequestSubject, nats.Options{
			ProgressSubject: cfg.NATSProgressSubject,
			ResilienceExecutor: resilience.NewExecutor(resilience.Config{
				MaxRetries:     2,
				BaseBackoff:    200 * time.Millisecond,
				MaxBackoff:     2 * time.Second,
				CallTimeout:    5 * time.Second,
				BreakerEnabled: true,
			}, executorOpts...),
		})
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
	}

	sequencer := usecase.NewCategorySequencer(categories, classifier, executor, resilience.ClassifyDomainError)
	stepper := usecase.NewDeepAnalysisStepper(elaborator, executor, resilience.ClassifyDomainError, cfg.DeepAnalysisItemDelay())

	reconcilerOpts := usecase.ReconcilerOptions{
		Observer: opts.TrackObserver,
		Logger:   logger,
	}
	if queue != nil {
		reconcilerOpts.Publisher = queue
	}
	reconciler := usecase.NewTrackReconciler(ctx, sequencer, stepper, snapshots, reconcilerOpts)

	exporter := xlsx.NewExporter()
	processUC := usecase.NewProcessAnalysisUseCase(plaintext.NewLoader(storage), reconciler, exporter, storage)

	app := &App{
		Config:     cfg,
		Reconciler: reconciler,
		Processor:  processUC,
		History:    history,
		Exporter:   exporter,
		Storage:    storage,
		Queue:      queue,
		Categories: categories,
		closeFn: func() {
			reconciler.Close()
			if queue != nil {
				queue.Close()
			}
			closeDB()
		},
	}
	if queue != nil {
		app.Enqueuer = usecase.NewEnqueueAnalysisUseCase(storage, queue)
	}

	logger.Info("bootstrap_ready",
		"llm_provider", cfg.LLMProvider,
		"snapshot_store", cfg.SnapshotStore,
		"categories", len(categories),
		"queue", queue != nil,
	)
	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func newLLM(cfg config.Config) (ports.RiskClassifier, ports.FindingElaborator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.LLMProvider)) {
	case "", "ollama":
		client := ollama.New(cfg.OllamaURL, cfg.OllamaGenModel, cfg.LLMCallTimeout())
		return ollama.NewRiskClassifier(client), ollama.NewElaborator(client), nil
	case "openai":
		client, err := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return openai.NewRiskClassifier(client), openai.NewElaborator(client), nil
	default:
		return nil, nil, domain.WrapError(domain.ErrConfiguration, "select llm provider", fmt.Errorf("unknown LLM_PROVIDER %q", cfg.LLMProvider))
	}
}

func newSnapshotStore(ctx context.Context, cfg config.Config) (ports.SnapshotStore, ports.SnapshotHistory, *sql.DB, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.SnapshotStore)) {
	case "memory":
		store := memory.NewSnapshotStore()
		return store, store, nil, nil
	case "", "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewSnapshotRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, repo, db, nil
	default:
		return nil, nil, nil, domain.WrapError(domain.ErrConfiguration, "select snapshot store", errors.New("SNAPSHOT_STORE must be postgres or memory"))
	}
}
