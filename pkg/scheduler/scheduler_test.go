package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	runs atomic.Int32
	err  error
	seen chan context.Context
}

func (j *countingJob) RematchAll(ctx context.Context) error {
	j.runs.Add(1)
	if j.seen != nil {
		j.seen <- ctx
	}
	return j.err
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestScheduler_RunSwallowsErrors(t *testing.T) {
	job := &countingJob{err: errors.New("db down")}
	s := New(silentLogger(), job, "@every 1h", 0)

	s.Run(context.Background())
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestScheduler_RunAppliesTimeout(t *testing.T) {
	job := &countingJob{seen: make(chan context.Context, 1)}
	s := New(silentLogger(), job, "@every 1h", time.Minute)

	s.Run(context.Background())
	ctx := <-job.seen
	_, ok := ctx.Deadline()
	assert.True(t, ok)
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := New(silentLogger(), &countingJob{}, "every now and then", 0)
	assert.Error(t, s.Start(context.Background()))
}

func TestScheduler_StartStop(t *testing.T) {
	job := &countingJob{seen: make(chan context.Context, 4)}
	s := New(silentLogger(), job, "@every 1s", 0)

	require.NoError(t, s.Start(context.Background()))
	select {
	case <-job.seen:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}

func TestFields(t *testing.T) {
	assert.Equal(t, map[string]any{"entry": 1, "now": "x"}, fields([]any{"entry", 1, "now", "x", "dangling"}))
}
