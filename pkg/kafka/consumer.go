// Package kafka provides the ingest consumer and the commit notification
// producer, both backed by segmentio/kafka-go.
package kafka

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/config"
)

// MessageHandler processes one message. Returning an error leaves the
// offset uncommitted so the message is redelivered after a rebalance or
// restart.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

type Consumer struct {
	reader  *kafka.Reader
	logger  *slog.Logger
	handler MessageHandler
	commit  func(ctx context.Context, msgs ...kafka.Message) error

	// pending is nil unless offset commits wait for MarkDurable.
	pending *offsets
	flush   chan struct{}
}

// NewConsumer reads topic from the oldest retained offset when the group
// has none, so a fresh index replays the full ingest history.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return &Consumer{
		reader:  r,
		logger:  slog.Default().With("component", "kafka-consumer", "topic", topic),
		handler: handler,
		commit:  r.CommitMessages,
	}
}

// DeferCommits holds offset commits back until MarkDurable reports that the
// effects of the handled messages are persisted, so a crash before that
// point redelivers them. Call it before Start.
func (c *Consumer) DeferCommits() {
	c.pending = newOffsets()
	c.flush = make(chan struct{}, 1)
}

// MarkDurable makes every message handled so far eligible for an offset
// commit. It does no I/O and never blocks.
func (c *Consumer) MarkDurable() {
	if c.pending == nil || !c.pending.markDurable() {
		return
	}
	select {
	case c.flush <- struct{}{}:
	default:
	}
}

// Start fetches and dispatches messages until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	defer c.reader.Close()
	if c.pending != nil {
		done := make(chan struct{})
		go func() {
			defer close(done)
			c.commitLoop(ctx)
		}()
		defer func() { <-done }()
	}
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer stopping", "reason", ctx.Err())
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			continue
		}
		c.logger.Debug("message received",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"value_size", len(msg.Value),
		)
		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.logger.Error("failed to process message",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if c.pending != nil {
			c.pending.handle(msg)
			continue
		}
		if err := c.commit(ctx, msg); err != nil {
			c.logger.Error("failed to commit offset",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// commitLoop commits durable offsets whenever MarkDurable signals, and once
// more on shutdown.
func (c *Consumer) commitLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.commitDurable(flushCtx)
			cancel()
			return
		case <-c.flush:
			c.commitDurable(ctx)
		}
	}
}

func (c *Consumer) commitDurable(ctx context.Context) {
	msgs := c.pending.take()
	if len(msgs) == 0 {
		return
	}
	if err := c.commit(ctx, msgs...); err != nil {
		// Retried with the next durable batch.
		c.pending.restore(msgs)
		c.logger.Error("failed to commit offsets", "partitions", len(msgs), "error", err)
		return
	}
	c.logger.Debug("offsets committed", "partitions", len(msgs))
}

// offsets keeps, per partition, the latest handled message and the latest
// message whose effects are durable.
type offsets struct {
	mu      sync.Mutex
	handled map[int]kafka.Message
	durable map[int]kafka.Message
}

func newOffsets() *offsets {
	return &offsets{
		handled: make(map[int]kafka.Message),
		durable: make(map[int]kafka.Message),
	}
}

func (o *offsets) handle(msg kafka.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	keepLatest(o.handled, msg)
}

// markDurable promotes every handled message and reports whether anything
// is waiting to be committed.
func (o *offsets) markDurable() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, msg := range o.handled {
		keepLatest(o.durable, msg)
	}
	clear(o.handled)
	return len(o.durable) > 0
}

// take removes and returns the durable messages ordered by partition.
func (o *offsets) take() []kafka.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.durable) == 0 {
		return nil
	}
	out := make([]kafka.Message, 0, len(o.durable))
	for _, msg := range o.durable {
		out = append(out, msg)
	}
	clear(o.durable)
	slices.SortFunc(out, func(a, b kafka.Message) int { return cmp.Compare(a.Partition, b.Partition) })
	return out
}

func (o *offsets) restore(msgs []kafka.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, msg := range msgs {
		keepLatest(o.durable, msg)
	}
}

func keepLatest(m map[int]kafka.Message, msg kafka.Message) {
	if cur, ok := m[msg.Partition]; ok && cur.Offset >= msg.Offset {
		return
	}
	m[msg.Partition] = msg
}

func (c *Consumer) Stats() kafka.ReaderStats {
	return c.reader.Stats()
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var result T
	if err := json.Unmarshal(value, &result); err != nil {
		return result, fmt.Errorf("decoding kafka message: %w", err)
	}
	return result, nil
}
