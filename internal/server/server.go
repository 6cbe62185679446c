// Package server provides the read-only HTTP API over the snapshot.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/server/ratelimit"
	"github.com/jonathan/discount-watch/internal/snapshot"
	"github.com/jonathan/discount-watch/internal/types"
)

// DefaultMaxDeals caps deal listings when no limit is configured.
const DefaultMaxDeals = 10

// Snapshot is the read side of the snapshot cache.
type Snapshot interface {
	View() *snapshot.State
	Get(sourceID string) (types.SourceResult, bool)
	GetPrevious(sourceID string) (types.SourceResult, bool)
	Changes(sourceID string) ([]snapshot.Change, bool)
}

// Runner triggers and reports aggregation runs.
type Runner interface {
	Run(ctx context.Context) (*aggregate.Report, error)
	LastReport() *aggregate.Report
	Running() bool
	SourceIDs() []string
}

// RunHistory lists stored run reports.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]aggregate.Report, error)
}

// Server is the HTTP API server
type Server struct {
	httpServer  *http.Server
	handler     http.Handler
	snap        Snapshot
	runner      Runner
	history     RunHistory
	rateLimiter *ratelimit.Limiter
	logger      *slog.Logger
	maxDeals    int

	// runCtx is the parent context of runs started through the API
	runCtx context.Context
}

// Config holds server configuration
type Config struct {
	Port     int
	MaxDeals int
	// History is optional; without it /runs lists only the last report.
	History RunHistory
	Logger  *slog.Logger
	// RateLimits overrides ratelimit.DefaultRules when set.
	RateLimits []ratelimit.Rule
}

// New creates a new server instance
func New(cfg Config, snap Snapshot, runner Runner) (*Server, error) {
	if snap == nil || runner == nil {
		return nil, errors.New("server needs a snapshot and a runner")
	}
	if cfg.MaxDeals <= 0 {
		cfg.MaxDeals = DefaultMaxDeals
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	rules := cfg.RateLimits
	if rules == nil {
		rules = ratelimit.DefaultRules()
	}

	s := &Server{
		snap:        snap,
		runner:      runner,
		history:     cfg.History,
		rateLimiter: ratelimit.NewLimiter(rules),
		logger:      cfg.Logger,
		maxDeals:    cfg.MaxDeals,
		runCtx:      context.Background(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Sources
	mux.HandleFunc("GET /sources", s.handleListSources)
	mux.HandleFunc("GET /sources/{id}", s.handleGetSource)
	mux.HandleFunc("GET /sources/{id}/previous", s.handleGetPrevious)
	mux.HandleFunc("GET /sources/{id}/presence", s.handlePresence)
	mux.HandleFunc("GET /sources/{id}/deals", s.handleDeals)
	mux.HandleFunc("GET /sources/{id}/changes", s.handleChanges)

	// Runs
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/last", s.handleLastRun)
	mux.HandleFunc("POST /runs", s.handleTriggerRun)

	s.handler = s.withRateLimit(s.withLogging(s.withCORS(mux)))
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // synchronous runs
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.runCtx = ctx

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	pruneTicker := time.NewTicker(10 * time.Minute)
	defer pruneTicker.Stop()

	for {
		select {
		case err, ok := <-errCh:
			if ok {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		case <-pruneTicker.C:
			if n := s.rateLimiter.Prune(); n > 0 {
				s.logger.Debug("pruned rate limit buckets", "count", n)
			}
		case <-ctx.Done():
			s.logger.Info("shutting down server")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			s.logger.Info("server stopped")
			return nil
		}
	}
}

// withCORS adds CORS headers for the presentation layer
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects clients over their request budget
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(clientID(r), r.Method, r.URL.Path)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	// round up so clients never retry early
	retry := int(info.RetryAfter.Seconds()) + 1
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retry))

	s.logger.Warn("rate limit exceeded",
		"client", clientID(r),
		"method", r.Method,
		"path", r.URL.Path,
		"limit", info.Limit)

	s.jsonResponse(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limit_exceeded",
		"message":     "Rate limit exceeded. Please try again later.",
		"limit":       info.Limit,
		"remaining":   info.Remaining,
		"reset_at":    info.ResetTime.Format(time.RFC3339),
		"retry_after": retry,
	})
}

// statusRecorder captures the status code for request logs
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr)
	})
}

// clientID uses the IP from RemoteAddr
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("error encoding JSON response", "error", err)
	}
}

// errorResponse writes an error response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// writeError maps err to a status code and writes it
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.errorResponse(w, status, err.Error())
}
