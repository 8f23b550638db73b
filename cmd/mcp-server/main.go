// Package main provides the MCP server entry point for document question answering.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mike-a-ellis/docqa/internal/app"
	"github.com/mike-a-ellis/docqa/internal/config"
	"github.com/mike-a-ellis/docqa/internal/logging"
	mcpserver "github.com/mike-a-ellis/docqa/internal/mcp"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// stdout carries the MCP stdio protocol; logs go to stderr.
	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if res, err := a.Pipeline.Sweep(ctx); err != nil {
		logger.Warn("startup sweep failed", "error", err)
	} else if len(res.Removed) > 0 {
		logger.Info("removed orphaned artifacts", "count", len(res.Removed))
	}

	server := mcpserver.NewServer(&mcpserver.Config{
		Service: a.Service,
		UserID:  cfg.UserID,
		Logger:  logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(
		mcpserver.HealthFunc(a.Registry.Ping),
		a.Store,
	))
	mux.Handle("/mcp", server.HTTPHandler(false))
	mux.HandleFunc("/", mcpserver.NewLandingHandler())

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.ServerMode {
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "user_id", cfg.UserID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	// Stdio mode still serves /health for local testing.
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("health server error", "error", err)
		}
	}()

	logger.Info("Starting docqa MCP server (stdio mode)", "user_id", cfg.UserID)
	return server.Run(ctx)
}
