package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fieldsync/internal/api"
	"fieldsync/internal/config"
	"fieldsync/internal/database"
	"fieldsync/internal/domain"
	"fieldsync/internal/events"
	"fieldsync/internal/export"
	"fieldsync/internal/logging"
	"fieldsync/internal/metrics"
	"fieldsync/internal/netmon"
	"fieldsync/internal/repository"
	"fieldsync/internal/service"
	"fieldsync/internal/swcache"
	"fieldsync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}
	logger := baseLogger.With().Str("component", "agent-main").Logger()

	metrics.Register()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiClient := api.NewClient(
		cfg.Server.BaseURL,
		cfg.Server.APIKey,
		time.Duration(cfg.Server.TimeoutSeconds)*time.Second,
		cfg.Server.RateLimitRPS,
		cfg.Server.RateLimitBurst,
	)

	viewCache := initViewCache(ctx, cfg, &logger)
	eventBus := events.NewEventBus()
	subscribeViewInvalidation(eventBus, viewCache, &logger)

	reporter := export.NewReporter(db, cfg.Exports.Path)
	reporter.Subscribe(eventBus, &logger)

	retryPolicy := worker.RetryPolicy{
		MaxRetries:    cfg.Sync.MaxRetries,
		InitialDelay:  config.Duration(cfg.Sync.InitialDelay, 2*time.Second),
		MaxDelay:      config.Duration(cfg.Sync.MaxDelay, time.Minute),
		BackoffFactor: cfg.Sync.BackoffFactor,
		Jitter:        0.2,
	}
	engine := worker.NewEngine(db, apiClient, retryPolicy, eventBus, nil, &logger)

	monitor := netmon.NewMonitor(
		apiClient,
		engine,
		config.Duration(cfg.Sync.ProbeInterval, 30*time.Second),
		config.Duration(cfg.Sync.DrainInterval, 5*time.Minute),
		&logger,
	)
	go monitor.Start(ctx)

	janitor := database.NewJanitor(
		db,
		time.Duration(cfg.Sync.RetentionHours)*time.Hour,
		config.Duration(cfg.Sync.PruneInterval, time.Hour),
		&logger,
	)
	go janitor.Start(ctx)

	transport := swcache.NewChannelTransport(8)
	cacheController, err := swcache.NewController(db, transport, eventBus, cfg.Cache.ManifestPath, &logger)
	if err != nil {
		return err
	}
	go logPageMessages(ctx, transport, &logger)
	logger.Info().Str("version", cacheController.ActiveVersion()).Msg("Cache controller restored")

	jobService := service.NewJobService(db, apiClient, viewCache, eventBus, &logger)

	// Best effort warm-up; offline start just keeps serving the cache.
	if n, err := jobService.RefreshJobs(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial job refresh failed, serving cached data")
	} else {
		logger.Info().Int("jobs", n).Msg("Initial job refresh complete")
	}

	if cfg.Monitoring.PrometheusEnabled {
		go serveMetrics(cfg.Monitoring.PrometheusPort, &logger)
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down")
	return nil
}

func initViewCache(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) domain.ViewCache {
	ttl := time.Duration(cfg.Redis.TTL) * time.Second
	memory := repository.NewMemoryViewCache(ttl)
	if !cfg.Redis.Enabled {
		return memory
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, client); err != nil {
		logger.Warn().Err(err).Msg("Redis unreachable, using in-memory view cache")
		return memory
	}
	return repository.NewFailoverViewCache(repository.NewRedisViewCache(client, ttl), memory, logger)
}

// subscribeViewInvalidation keeps the hot cache coherent with queue
// transitions: any entry reaching synced, failed or stalled changes what the
// merged view should show.
func subscribeViewInvalidation(bus *events.EventBus, views domain.ViewCache, logger *zerolog.Logger) {
	handler := func(event *events.Event) error {
		var payload events.UpdateEventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return err
		}
		if err := views.Invalidate(context.Background(), payload.JobID); err != nil {
			logger.Warn().Err(err).Int64("job_id", payload.JobID).Msg("View invalidation failed")
		}
		return nil
	}

	bus.Subscribe(events.EventUpdateSynced, handler)
	bus.Subscribe(events.EventUpdateFailed, handler)
	bus.Subscribe(events.EventUpdateStalled, handler)
}

func logPageMessages(ctx context.Context, transport *swcache.ChannelTransport, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-transport.Messages():
			logger.Info().Str("type", msg.Type).Str("version", msg.Version).Msg("Page notification")
		}
	}
}

func serveMetrics(port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("Metrics endpoint listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("Metrics endpoint failed")
	}
}
