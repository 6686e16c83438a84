// Package publisher writes ingest events and commit notices to Kafka.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/kafka"
)

// EventWriter is satisfied by *kafka.Producer.
type EventWriter interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Publisher produces IndexEvents for the document-ingest topic.
type Publisher struct {
	w      EventWriter
	now    func() time.Time
	logger *slog.Logger
}

func New(w EventWriter) *Publisher {
	return &Publisher{
		w:      w,
		now:    time.Now,
		logger: slog.Default().With("component", "publisher"),
	}
}

// Add publishes docs as one add event and returns its id.
func (p *Publisher) Add(ctx context.Context, docs []document.Document, overwrite, commit bool) (string, error) {
	return p.publish(ctx, ingestion.IndexEvent{
		Type:      ingestion.EventAdd,
		Documents: docs,
		Overwrite: overwrite,
		Commit:    commit,
	})
}

func (p *Publisher) Delete(ctx context.Context, ids []int64, commit bool) (string, error) {
	return p.publish(ctx, ingestion.IndexEvent{Type: ingestion.EventDelete, IDs: ids, Commit: commit})
}

func (p *Publisher) Commit(ctx context.Context) (string, error) {
	return p.publish(ctx, ingestion.IndexEvent{Type: ingestion.EventCommit})
}

func (p *Publisher) publish(ctx context.Context, e ingestion.IndexEvent) (string, error) {
	e.EventID = uuid.NewString()
	e.ProducedAt = p.now().UTC()
	if err := validator.ValidateEvent(&e); err != nil {
		return "", fmt.Errorf("invalid %s event: %w", e.Type, err)
	}
	if err := p.w.Publish(ctx, kafka.Event{Key: e.EventID, Value: e}); err != nil {
		return "", err
	}
	p.logger.Debug("event published",
		"event_id", e.EventID,
		"type", e.Type,
		"documents", len(e.Documents),
		"ids", len(e.IDs),
	)
	return e.EventID, nil
}

// Notifier publishes a CommitNotice after each commit.
type Notifier struct {
	w      EventWriter
	host   string
	logger *slog.Logger
}

func NewNotifier(w EventWriter) *Notifier {
	host, _ := os.Hostname()
	return &Notifier{
		w:      w,
		host:   host,
		logger: slog.Default().With("component", "commit-notifier"),
	}
}

// Notify publishes the notice. Failures are logged, never returned: a lost
// notice does not undo the commit.
func (n *Notifier) Notify(ctx context.Context, generation, docs uint64) {
	notice := ingestion.CommitNotice{
		Generation:  generation,
		Documents:   docs,
		CommittedAt: time.Now().UTC(),
		Host:        n.host,
	}
	if err := n.w.Publish(ctx, kafka.Event{Key: n.host, Value: notice}); err != nil {
		n.logger.Warn("commit notice not published", "generation", generation, "error", err)
	}
}
