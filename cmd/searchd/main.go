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
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/server/handler"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stdout)
	if err := run(cfg); err != nil {
		slog.Error("searchd exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var mappings []schema.FieldMapping
	if len(cfg.Schema) > 0 {
		mappings = cfg.Schema
	}
	s, err := searcher.Open(cfg.Indexer.DataDir, mappings,
		searcher.WithAnalyzer(cfg.Indexer.Analyzer),
		searcher.WithCompression(cfg.Indexer.Compression),
		searcher.WithMaxPendingDocs(cfg.Indexer.MaxPendingDocs),
		searcher.WithCollectors(m),
	)
	if err != nil {
		return fmt.Errorf("opening index %s: %w", cfg.Indexer.DataDir, err)
	}
	defer s.Close()
	slog.Info("index opened", "dir", cfg.Indexer.DataDir, "generation", s.Generation())

	checker := health.NewChecker(cfg.Search.Timeout)
	checker.Register("index", health.Ping(func(context.Context) error {
		if s.Closed() {
			return apperrors.ErrClosed
		}
		return nil
	}, false))

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer rc.Close()
			queryCache = cache.New(rc, cfg.Redis.CacheTTL, s.Generation, m, cfg.Redis.Breaker)
			checker.Register("redis", health.Ping(rc.Ping, true))
			s.OnCommit(func(generation, _ uint64) {
				go func() {
					if err := queryCache.DropGeneration(context.Background(), generation-1); err != nil {
						slog.Warn("dropping stale cache entries failed", "error", err)
					}
				}()
			})
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var wg sync.WaitGroup
	if cfg.Kafka.Enabled {
		notices := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexCommitted)
		defer notices.Close()
		notifier := publisher.NewNotifier(notices)
		handle := consumer.HandleMessage(s, consumer.Options{
			Retry:   cfg.Indexer.Retry,
			Timeout: cfg.Server.RequestTimeout,
			Metrics: m,
		})
		kc := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, handle)
		// Offsets advance only once the events they cover are on disk.
		kc.DeferCommits()
		s.OnCommit(func(generation, docs uint64) {
			kc.MarkDurable()
			go notifier.Notify(context.Background(), generation, docs)
		})
		ic := consumer.New(kc)
		checker.Register("kafka", health.Ping(func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka)
		}, true))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ic.Start(ctx); err != nil {
				slog.Error("index consumer error", "error", err)
			}
		}()
		slog.Info("consuming ingest events", "topic", cfg.Kafka.Topics.DocumentIngest, "group", cfg.Kafka.ConsumerGroup)
	}

	if cfg.Indexer.CommitInterval > 0 {
		s.StartCommitLoop(ctx, cfg.Indexer.CommitInterval, cfg.Indexer.Retry)
	}

	if cfg.Metrics.Enabled {
		shutdownMetrics, err := metrics.StartServer(cfg.Metrics.Port, reg)
		if err != nil {
			return err
		}
		defer shutdownMetrics(context.Background())
	}

	mux := http.NewServeMux()
	handler.New(s, queryCache, cfg.Search).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Metrics(m),
	}
	if cfg.Server.WriteRateLimit > 0 {
		limiter := middleware.NewLimiter(cfg.Server.WriteRateLimit, cfg.Server.RateWindow)
		go limiter.Sweep(ctx, 5*time.Minute)
		mws = append(mws, middleware.RateLimitWrites(limiter))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.RequestTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
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

	slog.Info("searchd listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	wg.Wait()

	if err := s.Commit(context.Background()); err != nil {
		slog.Error("final commit failed", "error", err)
	}
	slog.Info("searchd stopped", "generation", s.Generation())
	return nil
}
