// Command tenacity-auditd runs the audit pipeline once and serves the
// interactive dashboard plus its JSON API until stopped.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/celerix-dev/tenacity-audit/internal/api"
	"github.com/celerix-dev/tenacity-audit/internal/audit"
	"github.com/celerix-dev/tenacity-audit/internal/config"
	"github.com/celerix-dev/tenacity-audit/internal/engine"
	"github.com/celerix-dev/tenacity-audit/internal/graph"
	"github.com/celerix-dev/tenacity-audit/internal/i18n"
	"github.com/celerix-dev/tenacity-audit/internal/report"
	"github.com/celerix-dev/tenacity-audit/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	port := flag.Int("port", 0, "HTTP port for the dashboard (default 7810)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		exitWithError(err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		exitWithError(err)
	}

	logger := telemetry.NewLogger(os.Stderr, cfg.Logging.Level)
	ctx := context.Background()

	client := graph.NewClient(graph.Config{
		TenantID:     cfg.Graph.TenantID,
		ClientID:     cfg.Graph.ClientID,
		ClientSecret: cfg.Graph.ClientSecret,
		BaseURL:      cfg.Graph.BaseURL,
		LoginURL:     cfg.Graph.LoginURL,
		Timeout:      cfg.Graph.Timeout,
	}, logger)

	result, err := audit.Run(ctx, cfg, client, logger)
	if err != nil {
		logger.Error("audit failed, refusing to serve an empty dashboard", slog.Any("err", err))
		os.Exit(1)
	}

	var archive *report.Archive
	if cfg.Output.ArchiveDir != "" {
		archive, err = report.NewArchive(cfg.Output.ArchiveDir)
		if err != nil {
			exitWithError(err)
		}
		if name, err := archive.Save(result); err != nil {
			logger.Warn("could not archive run snapshot", slog.Any("err", err))
		} else {
			logger.Info("archived run snapshot", slog.String("name", name))
		}
	}

	handler := &api.Handler{
		State:   engine.NewState(result),
		Archive: archive,
		Bundle:  i18n.Pick(cfg.Audit.Language),
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("dashboard listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("err", err))
	}
	logger.Info("server stopped")
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}
