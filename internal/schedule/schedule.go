// Package schedule triggers aggregation runs on a cron schedule.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonathan/discount-watch/internal/aggregate"
)

// parser accepts standard five-field specs, an optional leading seconds
// field, and descriptors such as @every 10m.
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Runner is what the scheduler triggers.
type Runner interface {
	Run(ctx context.Context) (*aggregate.Report, error)
}

// ValidateSpec reports whether spec is a cron expression the scheduler accepts.
func ValidateSpec(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return nil
}

// Scheduler runs a Runner on a cron schedule. Overlapping triggers are
// skipped rather than queued.
type Scheduler struct {
	cron       *cron.Cron
	runner     Runner
	logger     *slog.Logger
	runOnStart bool

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	startWG sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// WithRunOnStart triggers one run as soon as Start is called.
func WithRunOnStart(on bool) Option {
	return func(s *Scheduler) { s.runOnStart = on }
}

// New registers runner under spec.
func New(spec string, runner Runner, opts ...Option) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("runner is required")
	}
	s := &Scheduler{runner: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := s.cron.AddFunc(spec, s.trigger); err != nil {
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins scheduling. Runs use ctx; cancelling it aborts an active run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	if s.runOnStart {
		s.startWG.Add(1)
		go func() {
			defer s.startWG.Done()
			s.trigger()
		}()
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "next_run", s.Next())
}

// Stop stops scheduling, cancels an active run, and waits for it to return.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-done.Done()
	s.startWG.Wait()
	s.logger.Info("scheduler stopped")
}

// Next returns the time of the next scheduled run, zero before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) trigger() {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}

	report, err := s.runner.Run(ctx)
	switch {
	case errors.Is(err, aggregate.ErrRunInProgress):
		s.logger.Info("scheduled run skipped, previous run still active")
	case err != nil:
		s.logger.Error("scheduled run failed", "error", err)
	case report != nil:
		s.logger.Info("scheduled run completed",
			"run_id", report.RunID.String(),
			"succeeded", report.Succeeded(),
			"failed", report.Failed())
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
