package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion/source"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	publish := flag.Bool("publish", false, "publish add events to Kafka instead of writing the local index")
	overwrite := flag.Bool("overwrite", false, "replace documents whose ids already exist")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()
	n, err := load(ctx, cfg, *publish, *overwrite)
	if err != nil {
		slog.Error("bulk load failed", "loaded", n, "error", err)
		os.Exit(1)
	}
	slog.Info("bulk load complete", "documents", n, "publish", *publish, "duration", time.Since(start).Round(time.Millisecond))
}

func load(ctx context.Context, cfg *config.Config, publish, overwrite bool) (int, error) {
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var (
		sc     *schema.Schema
		sink   func(ctx context.Context, batch []document.Document) error
		finish func(ctx context.Context) error
	)
	if publish {
		if len(cfg.Schema) == 0 {
			return 0, errors.New("publishing needs the schema section of the config")
		}
		if sc, err = schema.New(cfg.Schema); err != nil {
			return 0, err
		}
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
		defer producer.Close()
		pub := publisher.New(producer)
		sink = func(ctx context.Context, batch []document.Document) error {
			_, err := pub.Add(ctx, batch, overwrite, false)
			return err
		}
		finish = func(ctx context.Context) error {
			_, err := pub.Commit(ctx)
			return err
		}
	} else {
		var mappings []schema.FieldMapping
		if len(cfg.Schema) > 0 {
			mappings = cfg.Schema
		}
		s, err := searcher.Open(cfg.Indexer.DataDir, mappings,
			searcher.WithAnalyzer(cfg.Indexer.Analyzer),
			searcher.WithCompression(cfg.Indexer.Compression),
			searcher.WithMaxPendingDocs(cfg.Indexer.MaxPendingDocs),
		)
		if err != nil {
			return 0, err
		}
		defer s.Close()
		sc = s.Schema()
		sink = func(ctx context.Context, batch []document.Document) error {
			return s.AddDocuments(ctx, batch, overwrite)
		}
		finish = func(ctx context.Context) error {
			retry := cfg.Indexer.Retry
			retry.Retryable = func(err error) bool { return errors.Is(err, apperrors.ErrCommitFailure) }
			return resilience.Retry(ctx, "final commit", retry, func() error { return s.Commit(ctx) })
		}
	}

	var total int
	err = db.InReadTx(ctx, func(tx *sql.Tx) error {
		src := source.NewPostgres(tx, sc, cfg.Postgres.Table, cfg.Postgres.IDColumn, cfg.Postgres.BatchSize)
		var err error
		total, err = src.Each(ctx, func(batch []document.Document) error {
			return sink(ctx, batch)
		})
		return err
	})
	if err != nil {
		return total, err
	}
	return total, finish(ctx)
}
