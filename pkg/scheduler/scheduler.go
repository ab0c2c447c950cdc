// Package scheduler runs the periodic rematch of every buyer against the
// listing pool.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/robfig/cron/v3"
)

// Job is satisfied by *processor.Processor.
type Job interface {
	RematchAll(ctx context.Context) error
}

// Scheduler wraps robfig/cron. A run still in progress when the next tick
// fires causes that tick to be skipped.
type Scheduler struct {
	cron    *cron.Cron
	logger  ectologger.Logger
	job     Job
	spec    string
	timeout time.Duration
	cancel  context.CancelFunc
}

// New creates a Scheduler firing on spec, e.g. "@every 15m". timeout bounds a
// single run; zero means unbounded.
func New(logger ectologger.Logger, job Job, spec string, timeout time.Duration) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:  logger,
		job:     job,
		spec:    spec,
		timeout: timeout,
	}
}

// Start registers the rematch job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	if _, err := s.cron.AddFunc(s.spec, func() { s.Run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("cron.AddFunc %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.logger.WithContext(ctx).WithField("spec", s.spec).Info("Rematch scheduler started")
	return nil
}

// Stop stops scheduling and waits for a running job, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	if s.cancel != nil {
		defer s.cancel()
	}

	select {
	case <-done.Done():
		s.logger.WithContext(ctx).Info("Rematch scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes one rematch. Errors are logged, never returned.
func (s *Scheduler) Run(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.job.RematchAll(ctx); err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Scheduled rematch failed")
		return
	}
	s.logger.WithContext(ctx).WithField("duration_ms", time.Since(start).Milliseconds()).Info("Scheduled rematch complete")
}

// cronLogger adapts ectologger to cron.Logger.
type cronLogger struct {
	logger ectologger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.WithError(err).WithFields(fields(keysAndValues)).Error(msg)
}

func fields(keysAndValues []any) map[string]any {
	out := make(map[string]any, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		out[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return out
}
