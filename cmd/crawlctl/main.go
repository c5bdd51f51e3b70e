// Package main wires the admission and scheduling service together: config,
// logging, the durable store, the live status cache, the resource ledger,
// the work-queue transport, the admission engine, and the HTTP surface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearwell/crawlctl/internal/api"
	"github.com/clearwell/crawlctl/internal/clock/system"
	"github.com/clearwell/crawlctl/internal/config"
	"github.com/clearwell/crawlctl/internal/crawl"
	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/estimate"
	"github.com/clearwell/crawlctl/internal/id/uuid"
	"github.com/clearwell/crawlctl/internal/intake"
	"github.com/clearwell/crawlctl/internal/ledger"
	"github.com/clearwell/crawlctl/internal/logging"
	"github.com/clearwell/crawlctl/internal/metrics"
	"github.com/clearwell/crawlctl/internal/priority"
	"github.com/clearwell/crawlctl/internal/progress"
	"github.com/clearwell/crawlctl/internal/progress/sinks"
	"github.com/clearwell/crawlctl/internal/statuscache"
	"github.com/clearwell/crawlctl/internal/store"
	"github.com/clearwell/crawlctl/internal/store/postgres"
	memorystore "github.com/clearwell/crawlctl/internal/store/memory"
	"github.com/clearwell/crawlctl/internal/transport"
	memorytransport "github.com/clearwell/crawlctl/internal/transport/memory"
	pubsubtransport "github.com/clearwell/crawlctl/internal/transport/pubsub"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobStore, closeStore, err := setupJobStore(ctx, cfg)
	if err != nil {
		logger.Error("job store init failed", zap.Error(err))
		os.Exit(1)
	}
	defer closeStore()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis client close failed", zap.Error(err))
		}
	}()
	cache := statuscache.New(redisClient)
	rl := ledger.New(redisClient, cfg.UserLimit.Window(), domain.UserLimits{
		MaxThreadsPerWindow: cfg.UserLimit.MaxThreadsPerWindow,
		MaxJobsPerWindow:    cfg.UserLimit.MaxJobsPerWindow,
	}, logger.Named("ledger"))

	publisher, subscriber, closeTransport, err := setupTransport(ctx, cfg, logger)
	if err != nil {
		logger.Error("transport init failed", zap.Error(err))
		os.Exit(1)
	}
	defer closeTransport()

	capacity := domain.WorkerCapacity{
		TotalInstances:        cfg.Worker.TotalInstances,
		MaxThreadsPerInstance: cfg.Worker.MaxThreadsPerInstance,
	}
	clock := system.New()
	idGen := uuid.NewGenerator()
	estimator := estimate.New(jobStore)
	engine := priority.New(rl, clock)
	fetcher := crawl.NewHTTPFetcher(crawl.Config{})

	promSink, err := sinks.NewPrometheusSink(nil)
	if err != nil {
		logger.Error("prometheus sink init failed", zap.Error(err))
		os.Exit(1)
	}
	hub := progress.NewHub(progress.Config{
		Logger: logger.Named("progress"),
	},
		sinks.NewLiveStatusSink(cache, logger.Named("progress_lsc")),
		sinks.NewLogSink(logger.Named("progress_log")),
		promSink,
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	svc := intake.New(intake.Config{
		Store:     jobStore,
		Publisher: publisher,
		Engine:    engine,
		Estimator: estimator,
		Ledger:    rl,
		Cache:     cache,
		Fetcher:   fetcher,
		Hub:       hub,
		IDs:       idGen,
		Clock:     clock,
		Capacity:  capacity,
		Logger:    logger.Named("intake"),
	})

	apiServer := api.NewServer(svc, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("subscriber started")
		if err := subscriber.Receive(ctx, svc.HandleDelivery); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("subscriber receive error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("dispatch loop started", zap.Duration("tick", cfg.Dispatch.TickInterval()))
		svc.RunDispatchLoop(ctx, cfg.Dispatch.TickInterval())
	}()

	reconciler := ledger.NewReconciler(rl, cfg.Dispatch.StatsCleanupInterval(), logger.Named("ledger_reconciler"))
	go func() {
		logger.Info("ledger reconciler started", zap.Duration("interval", cfg.Dispatch.StatsCleanupInterval()))
		reconciler.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := subscriber.Close(); err != nil {
		logger.Warn("subscriber close failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func setupJobStore(ctx context.Context, cfg config.Config) (store.JobStore, func(), error) {
	if cfg.DB.DSN == "" {
		return memorystore.New(), func() {}, nil
	}
	pgStore, err := postgres.New(ctx, postgres.Config{
		DSN:          cfg.DB.DSN,
		MaxOpenConns: int32(cfg.DB.MaxOpenConns),
		MaxIdleConns: int32(cfg.DB.MaxIdleConns),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open durable job store: %w", err)
	}
	return pgStore, func() {}, nil
}

func setupTransport(ctx context.Context, cfg config.Config, logger *zap.Logger) (transport.Publisher, transport.Subscriber, func(), error) {
	if cfg.Transport.ProjectID == "" {
		logger.Warn("no work-queue project configured, using in-memory transport")
		q := memorytransport.New(cfg.Transport.Partitions * 64)
		return q, q, func() {}, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.Transport.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pubsub client init: %w", err)
	}
	topic := client.Topic(cfg.Transport.TopicName)
	topic.EnableMessageOrdering = true
	sub := client.Subscription(cfg.Transport.SubscriptionID)

	publisher := pubsubtransport.NewPublisher(topic, logger.Named("transport_pub"))
	subscriber := pubsubtransport.NewSubscriber(sub)
	closeFn := func() {
		if err := publisher.Close(); err != nil {
			logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	return publisher, subscriber, closeFn, nil
}
