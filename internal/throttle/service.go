// Package throttle fetches and parses one source's pages while enforcing a
// minimum interval between network fetches of the same URL.
package throttle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonathan/discount-watch/internal/extract"
	"github.com/jonathan/discount-watch/internal/fetch"
	"github.com/jonathan/discount-watch/internal/types"
)

const tracerName = "github.com/jonathan/discount-watch/internal/throttle"

// URL is one page of a source, optionally pinned to a category.
type URL struct {
	Address  string
	Category *types.Category
}

// Config is the immutable per-source configuration.
type Config struct {
	SourceID    string
	URLs        []URL
	MinInterval time.Duration
}

// SourceError is returned when no page of the source could be obtained.
type SourceError struct {
	SourceID string
	Message  string
	Cause    error
}

func (e *SourceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("source %s: %s: %v", e.SourceID, e.Message, e.Cause)
	}
	return fmt.Sprintf("source %s: %s", e.SourceID, e.Message)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

type urlState struct {
	fetchedAt time.Time
	items     []types.ItemRecord
	broken    []types.BrokenEntry
}

// Service owns one adapter, its URL list and the per-URL fetch state.
type Service struct {
	cfg        Config
	adapter    extract.Overrides
	getter     fetch.Getter
	classifier *extract.Classifier
	logger     *slog.Logger
	now        func() time.Time
	tracer     trace.Tracer

	mu    sync.Mutex
	state map[string]*urlState
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClassifier sets the keyword classifier used for items without a pinned category.
func WithClassifier(c *extract.Classifier) Option {
	return func(s *Service) { s.classifier = c }
}

// New creates a service for one source.
func New(cfg Config, adapter extract.Overrides, getter fetch.Getter, opts ...Option) (*Service, error) {
	if cfg.SourceID == "" {
		return nil, errors.New("throttle: source id is required")
	}
	if len(cfg.URLs) == 0 {
		return nil, fmt.Errorf("throttle: source %s has no URLs", cfg.SourceID)
	}
	if adapter == nil || getter == nil {
		return nil, fmt.Errorf("throttle: source %s needs an adapter and a getter", cfg.SourceID)
	}
	if cfg.MinInterval < 0 {
		return nil, fmt.Errorf("throttle: source %s has a negative interval", cfg.SourceID)
	}

	s := &Service{
		cfg:     cfg,
		adapter: adapter,
		getter:  getter,
		logger:  slog.Default(),
		now:     time.Now,
		tracer:  otel.Tracer(tracerName),
		state:   make(map[string]*urlState, len(cfg.URLs)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("source", cfg.SourceID)
	return s, nil
}

// SourceID returns the source key.
func (s *Service) SourceID() string { return s.cfg.SourceID }

// Fetch walks the URL list in order and concatenates the records of every page.
// A URL fetched less than MinInterval ago is served from its last result without
// a network call. A failing URL contributes nothing; Fetch fails only when every
// URL failed, or the context ended.
func (s *Service) Fetch(ctx context.Context) (*types.SourceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &types.SourceResult{
		SourceID: s.cfg.SourceID,
		Items:    make([]types.ItemRecord, 0),
		Broken:   make([]types.BrokenEntry, 0),
	}

	var errs []error
	for _, u := range s.cfg.URLs {
		if err := ctx.Err(); err != nil {
			return nil, &SourceError{SourceID: s.cfg.SourceID, Message: "fetch interrupted", Cause: err}
		}

		st, fresh := s.cached(u.Address)
		if !fresh {
			var err error
			st, err = s.fetchURL(ctx, u)
			if err != nil {
				s.logger.Warn("url fetch failed", "url", u.Address, "error", err)
				errs = append(errs, err)
				continue
			}
			s.state[u.Address] = st
		} else {
			s.logger.Debug("url served from cache", "url", u.Address, "age", s.now().Sub(st.fetchedAt))
		}

		result.Items = append(result.Items, st.items...)
		result.Broken = append(result.Broken, st.broken...)
		if st.fetchedAt.After(result.FetchedAt) {
			result.FetchedAt = st.fetchedAt
		}
	}

	if len(errs) == len(s.cfg.URLs) {
		return nil, &SourceError{
			SourceID: s.cfg.SourceID,
			Message:  fmt.Sprintf("all %d URLs failed", len(errs)),
			Cause:    errors.Join(errs...),
		}
	}

	return result, nil
}

// cached returns the last state for addr and whether it is still within the interval.
func (s *Service) cached(addr string) (*urlState, bool) {
	st, ok := s.state[addr]
	if !ok {
		return nil, false
	}
	return st, s.now().Sub(st.fetchedAt) < s.cfg.MinInterval
}

func (s *Service) fetchURL(ctx context.Context, u URL) (st *urlState, err error) {
	ctx, span := s.tracer.Start(ctx, "throttle.fetch_url", trace.WithAttributes(
		attribute.String("source", s.cfg.SourceID),
		attribute.String("url", u.Address),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	res, err := s.getter.Get(ctx, u.Address)
	if err != nil {
		return nil, err
	}

	items, broken, err := extract.Extract(res.HTML, s.adapter, extract.Options{
		PageURL:    u.Address,
		Category:   u.Category,
		Classifier: s.classifier,
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int("items", len(items)), attribute.Int("broken", len(broken)))
	if len(broken) > 0 {
		s.logger.Warn("broken entries on page", "url", u.Address, "broken", len(broken))
	}
	s.logger.Info("url fetched", "url", u.Address, "items", len(items), "duration", res.Duration)

	return &urlState{fetchedAt: s.now(), items: items, broken: broken}, nil
}
