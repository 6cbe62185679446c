// Package aggregate runs every source concurrently and applies the successful
// results to the snapshot in one step.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/discount-watch/internal/notify"
	"github.com/jonathan/discount-watch/internal/snapshot"
	"github.com/jonathan/discount-watch/internal/types"
)

const meterName = "github.com/jonathan/discount-watch/internal/aggregate"

// DefaultSourceTimeout applies to sources configured without a timeout.
const DefaultSourceTimeout = 2 * time.Minute

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("aggregation run already in progress")

// Fetcher produces one source's result.
type Fetcher interface {
	SourceID() string
	Fetch(ctx context.Context) (*types.SourceResult, error)
}

// Source is a fetcher with its time limit.
type Source struct {
	Fetcher Fetcher
	Timeout time.Duration
}

// Snapshot is the part of the snapshot cache the orchestrator writes to.
type Snapshot interface {
	Apply(ctx context.Context, batch map[string]types.SourceResult) error
	Changes(sourceID string) ([]snapshot.Change, bool)
}

// RunRecorder keeps a history of run reports.
type RunRecorder interface {
	RecordRun(ctx context.Context, report *Report) error
}

// Orchestrator fans out one fetch per source and joins before applying.
type Orchestrator struct {
	sources  []Source
	snap     Snapshot
	notifier notify.Notifier
	recorder RunRecorder
	logger   *slog.Logger
	now      func() time.Time

	running atomic.Bool
	last    atomic.Pointer[Report]

	runDuration   metric.Float64Histogram
	sourceFetches metric.Int64Counter
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithNotifier sets where start and finish messages go.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

// WithRecorder stores every finished report.
func WithRecorder(r RunRecorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator over sources writing to snap.
func New(sources []Source, snap Snapshot, opts ...Option) (*Orchestrator, error) {
	if snap == nil {
		return nil, errors.New("snapshot is required")
	}
	seen := make(map[string]bool, len(sources))
	for i, s := range sources {
		if s.Fetcher == nil {
			return nil, fmt.Errorf("source %d has no fetcher", i)
		}
		id := s.Fetcher.SourceID()
		if seen[id] {
			return nil, fmt.Errorf("duplicate source %q", id)
		}
		seen[id] = true
	}

	o := &Orchestrator{
		sources: append([]Source(nil), sources...),
		snap:    snap,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	meter := otel.Meter(meterName)
	var err error
	o.runDuration, err = meter.Float64Histogram("discountwatch.run.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Duration of aggregation runs"))
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}
	o.sourceFetches, err = meter.Int64Counter("discountwatch.source.fetches",
		metric.WithDescription("Source fetches by outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create source fetch counter: %w", err)
	}

	return o, nil
}

// SourceIDs lists the configured sources in configuration order.
func (o *Orchestrator) SourceIDs() []string {
	ids := make([]string, len(o.sources))
	for i, s := range o.sources {
		ids[i] = s.Fetcher.SourceID()
	}
	return ids
}

// Running reports whether a run is active.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// LastReport returns the report of the most recent finished run, or nil.
func (o *Orchestrator) LastReport() *Report {
	return o.last.Load()
}

// Run fetches every source concurrently, waits for all of them, and applies
// the successful results in one batch. A failed source is left out of the
// batch so its cached data stays as it was. Only an apply failure is
// returned as an error; source failures are reported in the Report.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.Warn("run skipped, previous run still active")
		return nil, ErrRunInProgress
	}
	defer o.running.Store(false)

	report := &Report{RunID: uuid.New(), StartedAt: o.now()}
	sw := &stopwatch{now: o.now}
	logger := o.logger.With("run_id", report.RunID.String())
	logger.Info("run started", "sources", len(o.sources))

	sw.start(StageNotify)
	notify.Detached(o.notifier, StartMessage(report.RunID, o.SourceIDs()), logger)

	sw.start(StageFetch)
	results := o.fetchAll(ctx, logger)

	batch := make(map[string]types.SourceResult, len(results))
	for _, r := range results {
		report.Sources = append(report.Sources, r.outcome)
		if r.outcome.OK {
			batch[r.outcome.SourceID] = *r.result
		}
	}

	sw.start(StageApply)
	var applyErr error
	if err := o.snap.Apply(ctx, batch); err != nil {
		applyErr = fmt.Errorf("failed to apply batch: %w", err)
		report.ApplyError = applyErr.Error()
		logger.Error("apply failed", "error", err)
	} else {
		for id := range batch {
			report.Applied = append(report.Applied, id)
		}
	}
	sw.stop()

	report.Stages = sw.stages
	report.FinishedAt = o.now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	report.sortSources()

	o.runDuration.Record(ctx, report.Duration.Seconds(),
		metric.WithAttributes(attribute.Bool("apply_ok", applyErr == nil)))
	o.last.Store(report)

	if o.recorder != nil {
		if err := o.recorder.RecordRun(ctx, report); err != nil {
			logger.Warn("failed to record run", "error", err)
		}
	}

	var changes map[string][]snapshot.Change
	if applyErr == nil {
		changes = make(map[string][]snapshot.Change, len(report.Applied))
		for _, id := range report.Applied {
			if c, ok := o.snap.Changes(id); ok && len(c) > 0 {
				changes[id] = c
			}
		}
	}
	notify.Detached(o.notifier, FinishMessage(report, changes), logger)

	logger.Info("run finished",
		"duration", report.Duration,
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"applied", len(report.Applied))

	return report, applyErr
}

type fetched struct {
	outcome SourceOutcome
	result  *types.SourceResult
}

func (o *Orchestrator) fetchAll(ctx context.Context, logger *slog.Logger) []fetched {
	results := make([]fetched, len(o.sources))

	// Goroutines never return errors: a failing source must not cancel the others.
	var g errgroup.Group
	for i, src := range o.sources {
		g.Go(func() error {
			results[i] = o.fetchOne(ctx, src, logger)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (o *Orchestrator) fetchOne(ctx context.Context, src Source, logger *slog.Logger) (f fetched) {
	id := src.Fetcher.SourceID()
	timeout := src.Timeout
	if timeout <= 0 {
		timeout = DefaultSourceTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := o.now()
	f.outcome.SourceID = id
	defer func() {
		if r := recover(); r != nil {
			f.result = nil
			f.outcome.OK = false
			f.outcome.Error = fmt.Sprintf("panic: %v", r)
		}
		f.outcome.Duration = o.now().Sub(start)

		outcome := "ok"
		if !f.outcome.OK {
			outcome = "failed"
			logger.Warn("source failed", "source", id, "error", f.outcome.Error, "duration", f.outcome.Duration)
		} else {
			logger.Info("source fetched", "source", id, "items", f.outcome.Items,
				"broken", f.outcome.Broken, "duration", f.outcome.Duration)
		}
		o.sourceFetches.Add(ctx, 1, metric.WithAttributes(
			attribute.String("source", id),
			attribute.String("outcome", outcome)))
	}()

	res, err := src.Fetcher.Fetch(ctx)
	if err == nil && res == nil {
		err = errors.New("fetcher returned no result")
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, err)
		}
		f.outcome.Error = err.Error()
		return f
	}

	f.result = res
	f.outcome.OK = true
	f.outcome.Items = len(res.Items)
	f.outcome.Broken = len(res.Broken)
	return f
}
