package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ckubal/mc-adventure-finder/app/adapter"
	"github.com/ckubal/mc-adventure-finder/app/api"
	"github.com/ckubal/mc-adventure-finder/app/cfg"
	"github.com/ckubal/mc-adventure-finder/app/database"
	"github.com/ckubal/mc-adventure-finder/app/event"
	"github.com/ckubal/mc-adventure-finder/app/ingest"
	"github.com/ckubal/mc-adventure-finder/app/metrics"
	"github.com/ckubal/mc-adventure-finder/app/tasks"
	"github.com/ckubal/mc-adventure-finder/app/timezone"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	logLevel := slog.LevelInfo
	if appCfg.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Adventure Finder", "version", appCfg.Version, "zone", appCfg.Timezone, "window_days", appCfg.WindowDays)

	resolver, err := timezone.NewResolver(appCfg.Timezone)
	if err != nil {
		slog.Error("Invalid deployment zone", "zone", appCfg.Timezone, "error", err)
		os.Exit(1)
	}

	sourceCache := adapter.NewSourceCache(appCfg.SourcesDir)
	if err := sourceCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", appCfg.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "dir", appCfg.SourcesDir, "count", sourceCache.GetConfigCount())

	registry := adapter.BuildRegistry(sourceCache.GetEnabledConfigs(), adapter.Deps{
		Resolver:          resolver,
		UserAgent:         appCfg.UserAgent,
		FetchTimeout:      appCfg.FetchTimeout,
		DetailConcurrency: appCfg.DetailConcurrency,
		BrowserEnabled:    appCfg.BrowserEnabled,
		WindowDays:        appCfg.WindowDays,
		Now:               time.Now,
	})
	slog.Info("Source adapters ready", "active", registry.Len())

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	eventRepo := database.NewEventRepository(db)

	appMetrics := metrics.New()
	orchestrator := ingest.NewOrchestrator(event.NewNormalizer(resolver))
	ingestor := ingest.NewIngestor(registry, orchestrator, eventRepo, appMetrics)

	if appCfg.RunSchedule != "" {
		opts := ingest.Options{
			WindowDays:        appCfg.WindowDays,
			PerAdapterTimeout: appCfg.AdapterTimeout,
		}
		scheduler, err := tasks.NewScheduler(appCfg.RunSchedule, 1, tasks.DefaultTaskTimeout, func() []tasks.TaskInterface {
			return []tasks.TaskInterface{
				tasks.NewPrunePastTask(eventRepo, resolver),
				tasks.NewIngestTask(ingestor, opts),
			}
		})
		if err != nil {
			slog.Error("Failed to create scheduler", "error", err)
			os.Exit(1)
		}
		scheduler.RunOnStart(appCfg.RunOnStart)
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		slog.Info("Scheduled ingestion disabled (RUN_SCHEDULE not set)")
	}

	apiHandler := api.NewHandler(sourceCache, registry, orchestrator, ingestor, eventRepo, resolver, appCfg.WindowDays, appCfg.AdapterTimeout)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey, appMetrics.Handler())

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}
}
