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
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/archive"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/auth/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/events"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ingest/validator"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ocr"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/ocr/tesseract"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/pipeline"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/runs"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/search"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/service"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/internal/web"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Image-Text-Search-Platform/pkg/resilience"
)

const (
	analyticsBatchSize     = 500
	analyticsFlushInterval = 5 * time.Second
	limiterPruneInterval   = time.Minute
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting image text search", "port", cfg.Server.Port, "store", cfg.Store.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(prometheus.DefaultRegisterer)
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	engine := tesseract.New(cfg.OCR.Languages)
	slog.Info("ocr engine ready", "engine", engine.Name(), "version", engine.Version(), "languages", cfg.OCR.Languages)
	extractor := ocr.NewAdapter(engine)
	snapshots := store.NewCSVStore(cfg.Store.Path)

	// Query cache
	var (
		redisClient *pkgredis.Client
		queryCache  *search.QueryCache
	)
	searchOpts := []search.Option{search.WithMetrics(m)}
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = search.NewQueryCache(redisClient, cfg.Redis.CacheTTL)
			searchOpts = append(searchOpts, search.WithCache(queryCache))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	searcher := search.NewEngine(snapshots, searchOpts...)

	pipelineOpts := []pipeline.Option{pipeline.WithMetrics(m)}

	// Run ledger
	var (
		db     *postgres.Client
		ledger *runs.Ledger
	)
	if cfg.Postgres.Enabled {
		db, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, run ledger disabled", "error", err)
		} else {
			defer db.Close()
			ledger = runs.NewLedger(db)
			if err := ledger.Migrate(ctx); err != nil {
				slog.Error("failed to migrate run ledger", "error", err)
				os.Exit(1)
			}
			pipelineOpts = append(pipelineOpts, pipeline.OnFinish(ledger.Hook()))
			slog.Info("run ledger enabled", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		}
	}

	// Snapshot events and analytics transport
	aggregator := analytics.NewAggregator()
	var analyticsSink analytics.Publisher = aggregator
	if cfg.Kafka.Enabled {
		snapshotProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.SnapshotCommitted)
		defer snapshotProducer.Close()
		pipelineOpts = append(pipelineOpts, pipeline.OnCommit(events.NewPublisher(snapshotProducer).Hook()))

		if queryCache != nil {
			invalidator := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.SnapshotCommitted, "cache-invalidator",
				events.InvalidationHandler(queryCache))
			go runConsumer(ctx, "cache-invalidator", invalidator)
		}

		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		analyticsSink = analyticsProducer
		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, "analytics",
			aggregator.HandleMessage)
		go runConsumer(ctx, "analytics", analyticsConsumer)
		slog.Info("kafka enabled", "brokers", cfg.Kafka.Brokers)
	} else if queryCache != nil {
		pipelineOpts = append(pipelineOpts, pipeline.OnCommit(events.InvalidateHook(queryCache)))
	}

	collector := analytics.NewCollector(analyticsSink, analyticsBatchSize, analyticsFlushInterval)
	collector.Start(ctx)

	walker := archive.NewWalker(cfg.OCR.Extensions, cfg.OCR.MaxEntryBytes)
	ingester := pipeline.New(walker, extractor, snapshots, cfg.OCR, pipelineOpts...)
	uploads := validator.New(cfg.Ingest.MaxUploadBytes)
	svc := service.New(ingester, searcher, uploads, service.WithTracker(collector), service.WithMaxQueryLength(cfg.Search.MaxQueryLength))

	limiter := ratelimit.New(cfg.Ingest.RateLimit, cfg.Ingest.RateWindow)
	go limiter.Run(ctx, limiterPruneInterval)
	proxies, err := web.ParseTrustedProxies(cfg.Ingest.TrustedProxies)
	if err != nil {
		slog.Error("invalid trusted proxies", "error", err)
		os.Exit(1)
	}

	checker := health.NewChecker()
	checker.Register("snapshot_store", health.Probe(true, func(ctx context.Context) error {
		_, err := snapshots.Version(ctx)
		if errors.Is(err, apperrors.ErrStoreNotFound) {
			return nil
		}
		return err
	}))
	checker.Register("ocr_engine", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{Status: health.StatusUp, Message: engine.Name() + " " + engine.Version()}
	})
	if redisClient != nil {
		checker.Register("redis", health.Probe(false, redisClient.Ping))
	}
	if db != nil {
		checker.Register("postgres", health.Probe(false, db.Ping))
	}
	if ledger != nil {
		checker.Register("run_ledger", func(context.Context) health.ComponentHealth {
			if state := ledger.BreakerState(); state != resilience.StateClosed {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "writes short-circuited: " + state.String()}
			}
			return health.ComponentHealth{Status: health.StatusUp}
		})
	}

	handlerOpts := []web.Option{
		web.WithAnalytics(analytics.NewHandler(aggregator)),
		web.WithHealth(checker),
		web.WithUploadLimit(limiter, proxies...),
	}
	if ledger != nil {
		handlerOpts = append(handlerOpts, web.WithRuns(ledger))
	}
	if queryCache != nil {
		handlerOpts = append(handlerOpts, web.WithCache(queryCache))
	}
	router := web.NewRouter(web.NewHandler(svc, uploads, handlerOpts...), web.RouterConfig{
		Metrics: m,
		Timeout: cfg.Server.WriteTimeout,
		CORS:    web.DefaultCORSConfig(),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("http server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	stop()
	collector.Close()
	slog.Info("image text search stopped")
}

func runConsumer(ctx context.Context, name string, c *kafka.Consumer) {
	if err := c.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("kafka consumer stopped", "consumer", name, "error", err)
	}
}
