package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	fail      bool
	committed []kafka.Message
}

func (r *recorder) commit(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker unavailable")
	}
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *recorder) offsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

func deferred(r *recorder) *Consumer {
	c := &Consumer{logger: slog.Default(), commit: r.commit}
	c.DeferCommits()
	return c
}

func TestOffsetsWaitForMarkDurable(t *testing.T) {
	r := &recorder{}
	c := deferred(r)

	c.pending.handle(kafka.Message{Partition: 0, Offset: 1})
	c.pending.handle(kafka.Message{Partition: 0, Offset: 2})
	c.pending.handle(kafka.Message{Partition: 1, Offset: 7})
	c.commitDurable(context.Background())
	assert.Empty(t, r.offsets(), "handled messages are not committed before the index is durable")

	c.MarkDurable()
	c.pending.handle(kafka.Message{Partition: 0, Offset: 3})
	c.commitDurable(context.Background())
	assert.Equal(t, []int64{2, 7}, r.offsets(), "latest durable offset per partition")

	c.MarkDurable()
	c.commitDurable(context.Background())
	assert.Equal(t, []int64{2, 7, 3}, r.offsets())
}

func TestFailedOffsetCommitIsKept(t *testing.T) {
	r := &recorder{fail: true}
	c := deferred(r)

	c.pending.handle(kafka.Message{Partition: 0, Offset: 4})
	c.MarkDurable()
	c.commitDurable(context.Background())
	assert.Empty(t, r.offsets())

	r.fail = false
	c.pending.handle(kafka.Message{Partition: 1, Offset: 9})
	c.MarkDurable()
	c.commitDurable(context.Background())
	assert.Equal(t, []int64{4, 9}, r.offsets())
}

func TestCommitLoopFlushesOnSignalAndShutdown(t *testing.T) {
	r := &recorder{}
	c := deferred(r)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.commitLoop(ctx)
	}()

	c.pending.handle(kafka.Message{Partition: 0, Offset: 10})
	c.MarkDurable()
	require.Eventually(t, func() bool { return len(r.offsets()) == 1 }, time.Second, 5*time.Millisecond)

	c.pending.handle(kafka.Message{Partition: 0, Offset: 11})
	c.pending.markDurable()
	cancel()
	<-done
	assert.Equal(t, []int64{10, 11}, r.offsets())
}

func TestMarkDurableWithoutDeferIsNoop(t *testing.T) {
	c := &Consumer{logger: slog.Default()}
	assert.NotPanics(t, c.MarkDurable)
}
