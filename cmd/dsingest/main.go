// Entry point for the dsingest HTTP service: dataset ingestion with
// perceptual dedup, image preprocessing and a JSON-backed dataset store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/dsingest/dbopen"
	"github.com/hazyhaar/dsingest/ingester"
	"github.com/hazyhaar/dsingest/observability"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults apply when empty)")
	flag.Parse()

	cfg := ingester.DefaultConfig()
	if *configPath != "" {
		loaded, err := ingester.LoadConfig(*configPath)
		if err != nil {
			slog.Error("load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Observability DB (events + audit).
	eventsDB, err := dbopen.Open(cfg.EventsDBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("events db", "error", err)
		os.Exit(1)
	}
	defer eventsDB.Close()
	if err := observability.Init(eventsDB); err != nil {
		slog.Error("events init", "error", err)
		os.Exit(1)
	}
	events := observability.NewEventLogger(eventsDB)
	audit := observability.NewAuditLogger(eventsDB, 256)
	defer audit.Close()

	ing, err := ingester.New(cfg,
		ingester.WithEvents(events),
		ingester.WithAudit(audit),
		ingester.WithLogger(logger),
	)
	if err != nil {
		slog.Error("ingester init", "error", err)
		os.Exit(1)
	}
	defer ing.Close()

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           ingester.Handler(ing),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "listen", cfg.Listen, "uploads_dir", cfg.UploadsDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}
