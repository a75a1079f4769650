package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"icu-risk/internal/cfg"
	"icu-risk/internal/ensemble"
	"icu-risk/internal/feed"
	"icu-risk/internal/metrics"
	"icu-risk/internal/ml"
	"icu-risk/internal/narrative"
	"icu-risk/internal/server"
	"icu-risk/internal/storage"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	configureLogging(c.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	reg := ml.LoadRegistry(c.RegistryConfig(mw, nil))
	engine, err := ensemble.FromRegistry(reg, c.Ensemble, ensemble.WithMetrics(mw))
	if err != nil {
		log.Fatal().Err(err).Msg("engine initialization failed")
	}

	reportLatestThresholdRun(c)

	opts := []server.Option{server.WithMetrics(mw)}
	if c.NarrativeURL != "" {
		opts = append(opts, server.WithNarrative(narrative.New(c.NarrativeURL, c.NarrativeToken, c.NarrativeTimeout, mw)))
		log.Info().Str("url", c.NarrativeURL).Msg("Narrative enrichment enabled")
	}

	var hub *feed.Hub
	if c.FeedEnabled {
		hub = feed.NewHub(mw, 0)
		if err := hub.Start(); err != nil {
			log.Fatal().Err(err).Msg("feed start failed")
		}
		opts = append(opts, server.WithFeed(hub))
	}

	srv := server.New(engine, server.Config{
		Port:             c.ListenPort,
		RequestTimeout:   c.RequestTimeout,
		NarrativeTimeout: c.NarrativeTimeout,
		Gatherer:         prometheus.DefaultGatherer,
	}, opts...)

	var wg sync.WaitGroup
	startServer(ctx, &wg, srv, cancel, m)

	waitForShutdown(ctx, cancel, &wg)
	if hub != nil {
		hub.Stop()
	}
}

// configureLogging sets the global level; the service logs JSON to stderr.
func configureLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "icu-risk").Logger()
}

// reportLatestThresholdRun logs the most recent offline threshold run so operators can
// compare it with the configured decision threshold. The store is released right away
// because the thresholds command writes to the same file.
func reportLatestThresholdRun(c cfg.Settings) {
	if c.DataPath == "" {
		return
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage unavailable, skipping threshold run lookup")
		return
	}
	defer store.Close()

	run, err := store.LatestThresholdRun()
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("failed to read latest threshold run")
		return
	}

	evt := log.Info().
		Time("run_at", run.RunAt).
		Str("dataset", run.Dataset).
		Float64("auc", run.Set.AUC).
		Float64("configured_threshold", c.Ensemble.DecisionThreshold)
	if p, ok := run.Set.Policy(c.DecisionPolicy); ok {
		evt = evt.Str("policy", p.Name).Float64("policy_threshold", p.Threshold)
	}
	evt.Msg("Latest threshold run")
}

// startServer runs the HTTP server until ctx ends.
func startServer(ctx context.Context, wg *sync.WaitGroup, srv *server.Server, cancel context.CancelFunc, m *metrics.Metrics) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("failed to shutdown server")
		}
	}()

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
			m.ErrorsTotal.Inc()
			cancel()
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
