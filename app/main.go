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

	"threadhub/app/api"
	"threadhub/app/cfg"
	"threadhub/app/cookies"
	"threadhub/app/database"
	"threadhub/app/digest"
	"threadhub/app/httpx"
	"threadhub/app/source"
	"threadhub/app/source/feeds"
	"threadhub/app/source/hackernews"
	"threadhub/app/source/hostloc"
	"threadhub/app/source/linuxdo"
	"threadhub/app/source/nodeseek"
	"threadhub/app/source/v2ex"
	"threadhub/app/source/zhihu"
	"threadhub/app/summarize"
	"threadhub/app/tasks"
)

// Sources whose top items make up the cover digest.
var digestSources = []string{"hostloc", "nodeseek", "linuxdo"}

func main() {
	config, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if config == nil {
		// Help was shown, exit gracefully
		return
	}

	logLevel := slog.LevelInfo
	if config.Debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting threadhub server", "version", config.Version)

	db, err := database.New(config.DBPath)
	if err != nil {
		slog.Error("Failed to open database", "path", config.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", config.DBPath, "schema_version", version, "dirty", dirty)

	cacheRepo := database.NewCacheRepository(db)
	credRepo := database.NewCredentialRepository(db)
	prefRepo := database.NewPreferenceRepository(db)

	configCache := source.NewConfigCache(config.SourcesDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load source configurations", "dir", config.SourcesDir, "error", err)
		os.Exit(1)
	}
	slog.Info("Source configurations loaded", "dir", config.SourcesDir, "count", configCache.GetConfigCount())

	client := httpx.NewClient(config.UserAgent,
		time.Duration(config.HTTPTimeout)*time.Second, config.MaxConcurrent)
	jar := cookies.NewStoreJar(credRepo)

	registry := source.NewRegistry()
	adapters := []source.Adapter{
		hackernews.New(client),
		linuxdo.New(client, jar),
		hostloc.New(client, jar),
		nodeseek.New(client, jar),
		v2ex.New(client),
		zhihu.New(client, jar, prefRepo),
		feeds.New(client, configCache),
	}
	for _, adapter := range adapters {
		if err := registry.Register(adapter); err != nil {
			slog.Error("Failed to register source", "source", adapter.ID(), "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Sources registered", "count", registry.Count())

	summarizer := summarize.NewClient(config.SummaryAPIKey, config.SummaryBaseURL, config.SummaryModel)
	if !summarizer.Available() {
		slog.Info("Summarization disabled (SUMMARY_API_KEY not set), digest uses fallback text")
	}

	aggregator := digest.New(registry, digestSources, summarizer, cacheRepo,
		time.Duration(config.DigestFresh)*time.Minute,
		time.Duration(config.DigestStale)*time.Minute)

	scheduler := tasks.NewScheduler(configCache, registry, cacheRepo, aggregator)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Background scheduler started", "workers", config.WorkerCount, "interval_seconds", config.SchedulerInterval)

	handler := api.NewHandler(registry, configCache, cacheRepo, credRepo, jar, client, aggregator, scheduler)
	server := api.NewServer(handler, config.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", config.Port)
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

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}
