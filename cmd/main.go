package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mozilla/fxa-amplitude-send/internal/adapters/delivery"
	"github.com/mozilla/fxa-amplitude-send/internal/adapters/http/ops"
	"github.com/mozilla/fxa-amplitude-send/internal/adapters/mq/batch"
	"github.com/mozilla/fxa-amplitude-send/internal/adapters/mq/source"
	service "github.com/mozilla/fxa-amplitude-send/internal/app"
	"github.com/mozilla/fxa-amplitude-send/internal/config"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/ack"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/filter"
	"github.com/mozilla/fxa-amplitude-send/internal/domain/identity"
	"github.com/mozilla/fxa-amplitude-send/internal/watchdog"
	"github.com/mozilla/fxa-amplitude-send/pkg/logger"
	"github.com/mozilla/fxa-amplitude-send/pkg/metrics"
)

const systemMetricsInterval = 10 * time.Second

func main() {
	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	log := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal(ctx, "failed to load config", logger.Error(err))
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	hasher, err := identity.NewHasher(cfg.HMACKey)
	if err != nil {
		log.Fatal(ctx, "failed to create hasher", logger.Error(err))
	}

	fltr, err := filter.ParseRules(cfg.IgnoredEvents)
	if err != nil {
		log.Fatal(ctx, "failed to parse ignored_events", logger.Error(err))
	}

	router, err := delivery.NewRouter(routes(cfg))
	if err != nil {
		log.Fatal(ctx, "failed to build endpoint router", logger.Error(err))
	}

	correlator := ack.New(
		ack.WithNackDelayWindow(cfg.NackDelayMin, cfg.NackDelayMax),
	)

	client := delivery.NewHTTPClient(cfg.APIKey)
	queues := make(map[string]*batch.Queue)
	for _, ep := range router.Endpoints() {
		queues[ep.Name] = batch.New(ep, client, correlator,
			batch.WithCapacity(cfg.MaxEventsPerBatch),
			batch.WithWorkers(cfg.WorkerCount),
			batch.WithMaxRetries(cfg.MaxRetries),
			batch.WithRetryBackoff(cfg.RetryBackoff),
			batch.WithFlushInterval(cfg.FlushInterval),
		)
	}

	src, err := source.NewPubSub(ctx, cfg.PubSubProject, cfg.PubSubSubscription)
	if err != nil {
		log.Fatal(ctx, "failed to connect subscription", logger.Error(err))
	}
	defer func() {
		_ = src.Close()
	}()

	svc := service.New(src, hasher, fltr, router, correlator, queues,
		service.WithStaleThreshold(cfg.StaleThreshold),
		service.WithWatchdog(watchdog.New(
			watchdog.WithIdleTimeout(cfg.IdleTimeout),
		)),
	)

	opsServer := ops.New(cfg.OpsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(gctx) })
	g.Go(func() error { return opsServer.Run(gctx) })
	g.Go(func() error {
		runSystemMetricsUpdater(gctx)
		return nil
	})

	log.Info(ctx, "forwarder started",
		logger.String("endpointMode", cfg.EndpointMode),
		logger.String("subscription", cfg.PubSubSubscription),
		logger.String("opsAddr", cfg.OpsAddr),
	)

	if err := g.Wait(); err != nil {
		log.Error(ctx, "forwarder exited with error", logger.Error(err))
		os.Exit(1)
	}
	log.Info(ctx, "forwarder stopped")
}

// routes maps event classes to endpoints for the configured deployment
// variant.
func routes(cfg *config.Config) map[delivery.EventClass]delivery.Endpoint {
	if cfg.EndpointMode == config.ModeCombined {
		combined := delivery.Endpoint{Name: "batch", URL: cfg.BatchEndpoint}
		return map[delivery.EventClass]delivery.Endpoint{
			delivery.ClassPrimary:  combined,
			delivery.ClassIdentify: combined,
		}
	}
	return map[delivery.EventClass]delivery.Endpoint{
		delivery.ClassPrimary:  {Name: "httpapi", URL: cfg.HTTPAPIEndpoint},
		delivery.ClassIdentify: {Name: "identify", URL: cfg.IdentifyEndpoint, Identify: true},
	}
}

// runSystemMetricsUpdater periodically samples runtime health gauges.
func runSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
		}
	}
}
