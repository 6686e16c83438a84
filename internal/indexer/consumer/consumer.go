// Package consumer applies document-ingest events from Kafka to the index.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
)

// Index is the write side of a searcher.
type Index interface {
	AddDocuments(ctx context.Context, batch []document.Document, overwriteExisting bool) error
	DeleteDocuments(ctx context.Context, ids []int64, commitImmediately bool) error
	Commit(ctx context.Context) error
	Exists(id int64) bool
}

type Options struct {
	// Retry governs commits requested by events.
	Retry resilience.RetryConfig
	// Timeout bounds the handling of one event; zero means none.
	Timeout time.Duration
	Metrics *metrics.Metrics
}

// IndexConsumer drives the handler from a Kafka consumer.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns the handler applying one IndexEvent to idx.
//
// Malformed events and documents the schema rejects are logged and
// acknowledged, since redelivery cannot fix them. An add refused because
// some of its ids are already present is retried with only the absent
// documents, so a redelivered or overlapping batch still admits what is
// new; when every id is present the event counts as a duplicate. Engine
// failures are returned so the offset is not committed.
func HandleMessage(idx Index, opts Options) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	retry := opts.Retry
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool { return errors.Is(err, apperrors.ErrCommitFailure) }
	}

	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.IndexEvent](value)
		if err != nil {
			logger.Error("dropping undecodable event", "key", string(key), "error", err)
			m.IngestEventsTotal.WithLabelValues("unknown", "invalid").Inc()
			return nil
		}
		if err := validator.ValidateEvent(&event); err != nil {
			logger.Error("dropping invalid event", "event_id", event.EventID, "error", err)
			m.IngestEventsTotal.WithLabelValues(string(event.Type), "invalid").Inc()
			return nil
		}

		status := "ok"
		err = resilience.WithTimeout(ctx, opts.Timeout, "ingest event", func(ctx context.Context) error {
			var applyErr error
			switch event.Type {
			case ingestion.EventAdd:
				applyErr = idx.AddDocuments(ctx, event.Documents, event.Overwrite)
				if errors.Is(applyErr, apperrors.ErrDocumentExists) {
					fresh := absent(idx, event.Documents)
					switch {
					case len(fresh) == 0:
						status = "duplicate"
						logger.Info("event already applied", "event_id", event.EventID)
						applyErr = nil
					case len(fresh) < len(event.Documents):
						logger.Info("skipping documents already present",
							"event_id", event.EventID,
							"present", len(event.Documents)-len(fresh),
							"admitted", len(fresh),
						)
						applyErr = idx.AddDocuments(ctx, fresh, false)
					}
				}
			case ingestion.EventDelete:
				applyErr = idx.DeleteDocuments(ctx, event.IDs, false)
			}
			switch {
			case applyErr == nil:
			case rejected(applyErr):
				status = "rejected"
				logger.Error("event rejected", "event_id", event.EventID, "error", applyErr)
				return nil
			default:
				return fmt.Errorf("applying %s event %s: %w", event.Type, event.EventID, applyErr)
			}

			if event.Commit || event.Type == ingestion.EventCommit {
				if err := resilience.Retry(ctx, "commit", retry, func() error { return idx.Commit(ctx) }); err != nil {
					return fmt.Errorf("committing after event %s: %w", event.EventID, err)
				}
			}
			return nil
		})
		if err != nil {
			m.IngestEventsTotal.WithLabelValues(string(event.Type), "error").Inc()
			return err
		}
		m.IngestEventsTotal.WithLabelValues(string(event.Type), status).Inc()
		logger.Debug("event applied",
			"event_id", event.EventID,
			"type", event.Type,
			"documents", len(event.Documents),
			"ids", len(event.IDs),
			"status", status,
		)
		return nil
	}
}

// absent returns the documents whose ids idx does not hold.
func absent(idx Index, docs []document.Document) []document.Document {
	var out []document.Document
	for _, d := range docs {
		if !idx.Exists(d.ID) {
			out = append(out, d)
		}
	}
	return out
}

// rejected reports errors that redelivery cannot fix. ErrDocumentExists
// only gets here for an id repeated within one event.
func rejected(err error) bool {
	return errors.Is(err, apperrors.ErrDocumentExists) ||
		errors.Is(err, apperrors.ErrUnknownField) ||
		errors.Is(err, apperrors.ErrFieldTypeMismatch) ||
		errors.Is(err, apperrors.ErrInvalidInput)
}
