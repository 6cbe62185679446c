package server

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/presence"
	"github.com/jonathan/discount-watch/internal/snapshot"
	"github.com/jonathan/discount-watch/internal/types"
)

// SourceSummary is one entry of GET /sources
type SourceSummary struct {
	ID          string     `json:"id"`
	Configured  bool       `json:"configured"`
	HasData     bool       `json:"has_data"`
	Items       int        `json:"items"`
	Broken      int        `json:"broken"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	HasPrevious bool       `json:"has_previous"`
}

// PresenceResponse is the response for /sources/{id}/presence
type PresenceResponse struct {
	SourceID   string                   `json:"source_id"`
	FetchedAt  time.Time                `json:"fetched_at"`
	Categories []presence.CategoryState `json:"categories"`
}

// DealsResponse is the response for /sources/{id}/deals
type DealsResponse struct {
	SourceID  string             `json:"source_id"`
	FetchedAt time.Time          `json:"fetched_at"`
	Deals     []types.ItemRecord `json:"deals"`
	Truncated bool               `json:"truncated"`
}

// ChangesResponse is the response for /sources/{id}/changes
type ChangesResponse struct {
	SourceID    string            `json:"source_id"`
	HasPrevious bool              `json:"has_previous"`
	Changes     []snapshot.Change `json:"changes"`
}

// handleHealth reports liveness and the snapshot version
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.snap.View()
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"snapshot_version": st.Version,
		"running":          s.runner.Running(),
	})
}

// handleListSources lists configured sources and any cached ones
func (s *Server) handleListSources(w http.ResponseWriter, _ *http.Request) {
	st := s.snap.View()

	configured := map[string]bool{}
	for _, id := range s.runner.SourceIDs() {
		configured[id] = true
	}
	ids := make([]string, 0, len(configured)+len(st.Current))
	for id := range configured {
		ids = append(ids, id)
	}
	for id := range st.Current {
		if !configured[id] {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	out := make([]SourceSummary, 0, len(ids))
	for _, id := range ids {
		sum := SourceSummary{ID: id, Configured: configured[id]}
		if cur, ok := st.Current[id]; ok {
			fetched := cur.FetchedAt
			sum.HasData = true
			sum.Items = len(cur.Items)
			sum.Broken = len(cur.Broken)
			sum.FetchedAt = &fetched
		}
		_, sum.HasPrevious = st.Previous[id]
		out = append(out, sum)
	}

	s.jsonResponse(w, http.StatusOK, out)
}

// handleGetSource returns the current result of a source
func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, ok := s.snap.Get(id)
	if !ok {
		s.writeError(w, &ErrNoData{SourceID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleGetPrevious returns the result the current one replaced
func (s *Server) handleGetPrevious(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, ok := s.snap.GetPrevious(id)
	if !ok {
		s.writeError(w, &ErrNoData{SourceID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handlePresence returns per-category presence states of a source
func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, ok := s.snap.Get(id)
	if !ok {
		s.writeError(w, &ErrNoData{SourceID: id})
		return
	}

	q := r.URL.Query()
	onlyDiscounts, err := boolParam(q.Get("only_discounts"))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "only_discounts", Message: "must be a boolean"})
		return
	}

	states := presence.Summarize(res.Items)
	if onlyDiscounts {
		states = presence.OnlyDiscounts(states)
	}
	switch q.Get("sort") {
	case "", "category":
	case "state":
		states = presence.ByState(states)
	default:
		s.writeError(w, &ErrValidation{Field: "sort", Message: "must be category or state"})
		return
	}

	s.jsonResponse(w, http.StatusOK, PresenceResponse{
		SourceID:   id,
		FetchedAt:  res.FetchedAt,
		Categories: states,
	})
}

// handleDeals returns eligible discounted items of a source
func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	limit := s.maxDeals
	if raw := r.URL.Query().Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, &ErrValidation{Field: "max", Message: "must be a positive integer"})
			return
		}
		limit = n
	}

	res, ok := s.snap.Get(id)
	if !ok {
		s.writeError(w, &ErrNoData{SourceID: id})
		return
	}

	deals, truncated := presence.Deals(res.Items, limit)
	s.jsonResponse(w, http.StatusOK, DealsResponse{
		SourceID:  id,
		FetchedAt: res.FetchedAt,
		Deals:     deals,
		Truncated: truncated,
	})
}

// handleChanges lists items that became more interesting since the previous result
func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changes, ok := s.snap.Changes(id)
	if !ok {
		s.writeError(w, &ErrNoData{SourceID: id})
		return
	}
	if changes == nil {
		changes = []snapshot.Change{}
	}
	_, hasPrevious := s.snap.GetPrevious(id)
	s.jsonResponse(w, http.StatusOK, ChangesResponse{
		SourceID:    id,
		HasPrevious: hasPrevious,
		Changes:     changes,
	})
}

// handleLastRun returns the most recent run report since startup
func (s *Server) handleLastRun(w http.ResponseWriter, _ *http.Request) {
	report := s.runner.LastReport()
	if report == nil {
		s.writeError(w, errNoRuns)
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

// handleListRuns lists stored run reports, newest first
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		limit = n
	}

	if s.history == nil {
		reports := []aggregate.Report{}
		if last := s.runner.LastReport(); last != nil {
			reports = append(reports, *last)
		}
		s.jsonResponse(w, http.StatusOK, reports)
		return
	}

	reports, err := s.history.RecentRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reports == nil {
		reports = []aggregate.Report{}
	}
	s.jsonResponse(w, http.StatusOK, reports)
}

// handleTriggerRun starts an aggregation run.
// With wait=true the request blocks until the run finishes.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	wait, err := boolParam(r.URL.Query().Get("wait"))
	if err != nil {
		s.writeError(w, &ErrValidation{Field: "wait", Message: "must be a boolean"})
		return
	}
	if s.runner.Running() {
		s.writeError(w, aggregate.ErrRunInProgress)
		return
	}

	if !wait {
		go func() {
			if _, err := s.runner.Run(s.runCtx); err != nil {
				s.logger.Warn("triggered run failed", "error", err)
			}
		}()
		s.jsonResponse(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	report, err := s.runner.Run(r.Context())
	if errors.Is(err, aggregate.ErrRunInProgress) {
		s.writeError(w, err)
		return
	}
	if err != nil {
		s.logger.Error("triggered run failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	s.jsonResponse(w, http.StatusOK, report)
}

func boolParam(raw string) (bool, error) {
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}
