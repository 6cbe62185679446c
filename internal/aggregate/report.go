package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage names used in the timing breakdown.
const (
	StageNotify = "notify"
	StageFetch  = "fetch"
	StageApply  = "apply"
)

// SourceOutcome is the per-source result of one run.
type SourceOutcome struct {
	SourceID string        `json:"source_id"`
	OK       bool          `json:"ok"`
	Items    int           `json:"items"`
	Broken   int           `json:"broken"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Stage is one timed step of a run.
type Stage struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// Report describes a finished run.
type Report struct {
	RunID      uuid.UUID       `json:"run_id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Duration   time.Duration   `json:"duration"`
	Stages     []Stage         `json:"stages"`
	Sources    []SourceOutcome `json:"sources"`
	Applied    []string        `json:"applied"`
	ApplyError string          `json:"apply_error,omitempty"`
}

// Succeeded counts sources that returned a result.
func (r *Report) Succeeded() int {
	n := 0
	for _, s := range r.Sources {
		if s.OK {
			n++
		}
	}
	return n
}

// Failed counts sources excluded from the apply.
func (r *Report) Failed() int {
	return len(r.Sources) - r.Succeeded()
}

// Outcome returns the outcome for one source.
func (r *Report) Outcome(sourceID string) (SourceOutcome, bool) {
	for _, s := range r.Sources {
		if s.SourceID == sourceID {
			return s, true
		}
	}
	return SourceOutcome{}, false
}

// Breakdown renders the stage timings as a small table, one stage per line.
func (r *Report) Breakdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-8s %10s %6s\n", "stage", "ms", "%")
	for _, st := range r.Stages {
		pct := 0.0
		if r.Duration > 0 {
			pct = float64(st.Duration) / float64(r.Duration) * 100
		}
		fmt.Fprintf(&sb, "%-8s %10d %5.1f%%\n", st.Name, st.Duration.Milliseconds(), pct)
	}
	return sb.String()
}

func (r *Report) sortSources() {
	sort.Slice(r.Sources, func(i, j int) bool { return r.Sources[i].SourceID < r.Sources[j].SourceID })
	sort.Strings(r.Applied)
}

// stopwatch records sequential stage durations.
type stopwatch struct {
	now     func() time.Time
	stages  []Stage
	current string
	started time.Time
}

func (s *stopwatch) start(name string) {
	s.stop()
	s.current = name
	s.started = s.now()
}

func (s *stopwatch) stop() {
	if s.current == "" {
		return
	}
	s.stages = append(s.stages, Stage{Name: s.current, Duration: s.now().Sub(s.started)})
	s.current = ""
}
