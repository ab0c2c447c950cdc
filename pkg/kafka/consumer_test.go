package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader hands out queued messages, then blocks until ctx ends.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func testConsumer(reader messageReader, handler MessageHandler) *Consumer {
	logger := ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {})
	return newConsumer(reader, ConsumerConfig{
		Topic:        "scraped-listings",
		RetryBackoff: time.Millisecond,
		RetryMaxWait: 5 * time.Millisecond,
	}, logger, handler)
}

func TestConsumer_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{
		{Topic: "scraped-listings", Offset: 7},
		{Topic: "scraped-listings", Offset: 8},
	}}

	var (
		mu    sync.Mutex
		calls []int64
	)
	failures := map[int64]int{7: 2}
	c := testConsumer(reader, func(_ context.Context, msg *IncomingMessage) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, msg.Offset)
		if failures[msg.Offset] > 0 {
			failures[msg.Offset]--
			return errors.New("database unavailable")
		}
		return nil
	})

	require.NoError(t, c.Start(context.Background()))
	require.Eventually(t, func() bool { return len(reader.commits()) == 2 }, time.Second, time.Millisecond)
	require.NoError(t, c.Stop())

	assert.Equal(t, []int64{7, 8}, reader.commits())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{7, 7, 7, 8}, calls)
}

func TestConsumer_StopDuringRetryLeavesMessageUncommitted(t *testing.T) {
	reader := &fakeReader{queue: []kafka.Message{{Topic: "scraped-listings", Offset: 3}}}
	attempted := make(chan struct{}, 1)
	c := testConsumer(reader, func(context.Context, *IncomingMessage) error {
		select {
		case attempted <- struct{}{}:
		default:
		}
		return io.ErrUnexpectedEOF
	})

	require.NoError(t, c.Start(context.Background()))
	<-attempted
	require.NoError(t, c.Stop())

	assert.Empty(t, reader.commits())
}

func TestBackoffConfig_Next(t *testing.T) {
	b := backoffConfig{initial: 100 * time.Millisecond, max: 300 * time.Millisecond}

	tests := []struct {
		current time.Duration
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{100 * time.Millisecond, 200 * time.Millisecond},
		{200 * time.Millisecond, 300 * time.Millisecond},
		{300 * time.Millisecond, 300 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.next(tt.current))
	}
}
