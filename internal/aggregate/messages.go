package aggregate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/discount-watch/internal/notify"
	"github.com/jonathan/discount-watch/internal/snapshot"
)

// maxChangesListed caps the change lines in a finish message.
const maxChangesListed = 20

// StartMessage announces a run.
func StartMessage(runID uuid.UUID, sourceIDs []string) notify.Message {
	return notify.Message{
		Level: notify.LevelInfo,
		Title: "Aggregation run started",
		Body:  "Sources: " + strings.Join(sourceIDs, ", "),
		Fields: map[string]string{
			"run_id":  runID.String(),
			"sources": strconv.Itoa(len(sourceIDs)),
		},
	}
}

// FinishMessage summarizes a finished run with its stage timings, failed
// sources, and the notable changes per applied source.
func FinishMessage(r *Report, changes map[string][]snapshot.Change) notify.Message {
	level := notify.LevelInfo
	switch {
	case r.ApplyError != "":
		level = notify.LevelError
	case r.Failed() > 0:
		level = notify.LevelWarn
	}

	var body strings.Builder
	body.WriteString(r.Breakdown())

	for _, s := range r.Sources {
		if !s.OK {
			fmt.Fprintf(&body, "FAILED %s: %s\n", s.SourceID, s.Error)
		}
	}
	if r.ApplyError != "" {
		fmt.Fprintf(&body, "APPLY FAILED: %s\n", r.ApplyError)
	}

	ids := make([]string, 0, len(changes))
	for id := range changes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	listed := 0
	for _, id := range ids {
		for _, c := range changes[id] {
			if listed == maxChangesListed {
				fmt.Fprintf(&body, "... and more\n")
				break
			}
			fmt.Fprintf(&body, "%s %s: %s", id, c.Kind, c.Item.Name)
			if c.Item.Discount != nil {
				fmt.Fprintf(&body, " (-%s%%)", c.Item.Discount.String())
			}
			body.WriteString("\n")
			listed++
		}
	}

	return notify.Message{
		Level: level,
		Title: "Aggregation run finished",
		Body:  body.String(),
		Fields: map[string]string{
			"run_id":      r.RunID.String(),
			"duration_ms": strconv.FormatInt(r.Duration.Milliseconds(), 10),
			"succeeded":   strconv.Itoa(r.Succeeded()),
			"failed":      strconv.Itoa(r.Failed()),
		},
	}
}
