package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/contract-risk-analyzer/internal/adapters/mcp"
	"github.com/kirillkom/contract-risk-analyzer/internal/bootstrap"
	"github.com/kirillkom/contract-risk-analyzer/internal/config"
	"github.com/kirillkom/contract-risk-analyzer/internal/observability/logging"
)

// The MCP server speaks over stdio, so logs go to stderr.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Logger:       logger,
		WithoutQueue: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap error: %v\n", err)
		os.Exit(1)
	}

	err = server.ServeStdio(mcpadapter.NewServer(app.Reconciler))
	stop()
	app.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp server error: %v\n", err)
		os.Exit(1)
	}
}
