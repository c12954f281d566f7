// Package matchingservice wires configuration, storage, the vector index,
// the pair scorer and the HTTP API into a runnable matching service.
package matchingservice

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sphere-social/sphere-matching/internal/api"
	"github.com/sphere-social/sphere-matching/internal/api/recovery"
	"github.com/sphere-social/sphere-matching/internal/config"
	emb "github.com/sphere-social/sphere-matching/internal/embeddings"
	"github.com/sphere-social/sphere-matching/internal/factory"
	"github.com/sphere-social/sphere-matching/internal/health"
	"github.com/sphere-social/sphere-matching/internal/matching"
	"github.com/sphere-social/sphere-matching/internal/notify"
	"github.com/sphere-social/sphere-matching/internal/platform/logger"
	"github.com/sphere-social/sphere-matching/internal/scorer"
	"github.com/sphere-social/sphere-matching/internal/searchindex"
	"github.com/sphere-social/sphere-matching/internal/store"
	"github.com/sphere-social/sphere-matching/internal/workqueue"
)

// Run starts the matching service HTTP server and blocks until shutdown or error.
func Run() error {
	log := logger.New("matching-service")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("Failed to load configuration")
		return err
	}

	log.Info().
		Str("build_target", cfg.BuildTarget).
		Str("db_driver", cfg.DBDriver).
		Int("http_port", cfg.HTTPPort).
		Str("search_index_url", cfg.SearchIndexURL).
		Str("embed_model", cfg.EmbedModel).
		Str("gemini_model", cfg.GeminiModel).
		Msg("Matching service starting")

	// Create cancellable root context bound to SIGINT/SIGTERM
	ctx, stop := newServerContext()
	defer stop()

	// Initialize dependencies (store, index, embedder, scorer)
	st, idx, embedProvider, pairScorer, err := initDependencies(ctx, cfg, log)
	if err != nil {
		return err
	}

	orch := factory.NewOrchestrator(cfg, st, idx, pairScorer, log)

	// Background run queue keyed by user id so overlapping triggers serialize
	exec := workqueue.NewShardExecutor(workqueue.Config{
		Shards:    cfg.RunQueueShards,
		QueueSize: cfg.RunQueueSize,
		Logger:    log,
		ErrorHandler: func(err error) {
			log.Error().Err(err).Msg("queued matching run exhausted retries")
		},
	})
	defer exec.Stop()

	// Build router
	router := buildRouter(st, idx, embedProvider, orch, exec, log)

	// Start health checkers and bind service health
	svcHealth := startHealthCheckers(ctx, cfg, log, st, idx, embedProvider)

	// Block startup until dependencies report healthy; fail fast otherwise
	if err := waitUntilHealthy(ctx, cfg, svcHealth); err != nil {
		log.Error().Stack().Err(err).Msg("startup health check failed")
		return err
	}

	// HTTP server and serve
	server := newHTTPServer(ctx, cfg, router)
	errCh := serveHTTP(server, log, cfg)

	// Graceful shutdown on context cancel or server error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctxShutdown); err != nil {
			log.Error().Stack().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		return err
	}
}

// initDependencies constructs required components and enforces fail-fast on missing deps.
func initDependencies(ctx context.Context, cfg *config.Config, log zerolog.Logger) (store.Store, searchindex.Index, emb.EmbeddingProvider, scorer.PairScorer, error) {
	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Store adapter unavailable")
		return nil, nil, nil, nil, err
	}

	idx, err := factory.NewSearchIndex(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Search index adapter unavailable")
		return nil, nil, nil, nil, err
	}

	embProvider := factory.NewEmbeddingProvider(ctx, cfg, log)
	if embProvider == nil {
		return nil, nil, nil, nil, fmt.Errorf("embedding provider not configured")
	}

	pairScorer, err := factory.NewPairScorer(ctx, cfg, log)
	if err != nil {
		log.Error().Stack().Err(err).Msg("Pair scorer unavailable")
		return nil, nil, nil, nil, err
	}
	return st, idx, embProvider, pairScorer, nil
}

// buildRouter wires HTTP routes to handlers.
func buildRouter(st store.Store, idx searchindex.Index, embProvider emb.EmbeddingProvider, orch *matching.Orchestrator, exec *workqueue.ShardExecutor, log zerolog.Logger) *mux.Router {
	root := mux.NewRouter()
	root.Use(recovery.Middleware)

	// Profiles
	profiles := api.NewProfileHandler(st, embProvider, idx, log)
	root.HandleFunc("/v0/profiles/{userId}", profiles.PutProfile).Methods("PUT")
	root.HandleFunc("/v0/profiles/{userId}", profiles.GetProfile).Methods("GET")
	root.HandleFunc("/v0/profiles/{userId}/embeddings", profiles.GenerateEmbeddings).Methods("POST")

	// Matches
	tracker := notify.NewTracker(st, log)
	matches := api.NewMatchHandler(st, tracker)
	root.HandleFunc("/v0/users/{userId}/matches", matches.ListMatches).Methods("GET")
	root.HandleFunc("/v0/users/{userId}/matches/unnotified", matches.ListUnnotified).Methods("GET")
	root.HandleFunc("/v0/matches/{matchId}/status", matches.UpdateStatus).Methods("POST")
	root.HandleFunc("/v0/matches/{matchId}/notified", matches.MarkNotified).Methods("POST")
	root.HandleFunc("/v0/matches/{matchId}/feedback", matches.SetFeedback).Methods("POST")

	// Matching runs
	runs := api.NewRunHandler(orch, exec, log)
	root.HandleFunc("/v0/matching/runs", runs.TriggerRun).Methods("POST")

	// Health
	healthHandler := api.NewHealthHandler()
	root.HandleFunc("/v0/health", healthHandler.CheckHealth).Methods("GET")

	return root
}

// startHealthCheckers starts component checkers and service-level aggregator; binds health.
func startHealthCheckers(ctx context.Context, cfg *config.Config, log zerolog.Logger, st store.Store, idx searchindex.Index, embProvider emb.EmbeddingProvider) *health.ServiceHealthChecker {
	var checkers []health.HealthChecker
	probeTimeout := time.Duration(cfg.HealthProbeTimeoutSeconds) * time.Second
	interval := time.Duration(cfg.HealthIntervalSeconds) * time.Second

	for name, dep := range map[string]interface{}{
		"store":        st,
		"search-index": idx,
		"embedder":     embProvider,
	} {
		pinger, ok := dep.(health.HealthPinger)
		if !ok {
			log.Warn().Str("checker", name).Msg("dependency exposes no health ping, skipping")
			continue
		}
		checker := health.NewPingChecker(name, pinger, log, probeTimeout)
		go checker.Start(ctx, interval)
		checkers = append(checkers, checker)
	}

	svcHealth := health.NewServiceHealthChecker(log, checkers...)
	go svcHealth.Start(ctx, interval)
	api.BindServiceHealth(svcHealth.IsHealthy)
	return svcHealth
}

func newHTTPServer(ctx context.Context, cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func serveHTTP(server *http.Server, log zerolog.Logger, cfg *config.Config) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// calculateStartupHealthTimeout returns the startup health timeout in seconds,
// calculated as interval*2 with a minimum of 60 seconds.
func calculateStartupHealthTimeout(healthIntervalSeconds int) int {
	timeout := healthIntervalSeconds * 2
	if timeout < 60 {
		return 60
	}
	return timeout
}

// waitUntilHealthy blocks until service health is healthy or the startup window expires.
func waitUntilHealthy(ctx context.Context, cfg *config.Config, svcHealth *health.ServiceHealthChecker) error {
	timeoutSeconds := calculateStartupHealthTimeout(cfg.HealthIntervalSeconds)
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		if svcHealth.IsHealthy() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("startup aborted: dependencies not healthy within %d seconds", timeoutSeconds)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// newServerContext returns a cancellable context that is cancelled on SIGINT/SIGTERM.
func newServerContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
