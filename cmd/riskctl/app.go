package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kirillkom/contract-risk-analyzer/internal/bootstrap"
	"github.com/kirillkom/contract-risk-analyzer/internal/config"
	"github.com/kirillkom/contract-risk-analyzer/internal/core/domain"
	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/contract-risk-analyzer/internal/observability/logging"
)

// openApp bootstraps the application under a context the returned release func
// cancels before closing, so running tracks are interrupted and persisted.
func openApp(cmd *cobra.Command, withoutQueue bool) (*bootstrap.App, context.Context, func(), error) {
	cfg := loadConfig()
	logger := logging.NewJSONLoggerTo(cmd.ErrOrStderr(), "riskctl", logLevel)

	ctx, cancel := context.WithCancel(cmd.Context())
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:       logger,
		WithoutQueue: withoutQueue,
	})
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("bootstrap: %w", err)
	}
	release := func() {
		cancel()
		app.Close()
	}
	return app, ctx, release, nil
}

func loadConfig() config.Config {
	cfg := config.Load()
	if snapshotStore != "" {
		cfg.SnapshotStore = snapshotStore
	}
	return cfg
}

// loadDocument stores the file under documents/ and reads it back through the
// plain-text loader so the CLI applies the same validation as the worker.
func loadDocument(ctx context.Context, app *bootstrap.App, path string) (string, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", "", fmt.Errorf("open document: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, plaintext.MaxDocumentBytes+1))
	if err != nil {
		return "", "", fmt.Errorf("read document: %w", err)
	}
	key := "documents/" + documentIDFor(raw) + "_" + filepath.Base(path)
	if err := app.Storage.Save(ctx, key, strings.NewReader(string(raw))); err != nil {
		return "", "", fmt.Errorf("store document: %w", err)
	}
	text, err := plaintext.NewLoader(app.Storage).Load(ctx, key)
	if err != nil {
		return "", "", err
	}
	return documentIDFor(raw), text, nil
}

// documentIDFor derives a stable id from the document bytes so rerunning
// analyze on the same file resumes the persisted track.
func documentIDFor(raw []byte) string {
	sum := sha256.Sum256(raw)
	return "doc-" + hex.EncodeToString(sum[:])[:12]
}

func exportReport(app *bootstrap.App, track domain.Track, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := app.Exporter.Export(out, domain.TrackSnapshot{Track: track}); err != nil {
		_ = out.Close()
		return fmt.Errorf("export report: %w", err)
	}
	return out.Close()
}
