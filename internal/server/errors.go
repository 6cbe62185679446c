package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/discount-watch/internal/aggregate"
)

// ErrNoData indicates the snapshot holds nothing for the source yet
type ErrNoData struct {
	SourceID string
}

func (e *ErrNoData) Error() string {
	return fmt.Sprintf("no data yet for source %s", e.SourceID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// errNoRuns is returned when no run has finished since startup
var errNoRuns = errors.New("no run has finished yet")

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var noData *ErrNoData
	var invalid *ErrValidation
	switch {
	case errors.As(err, &noData), errors.Is(err, errNoRuns):
		return http.StatusNotFound
	case errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, aggregate.ErrRunInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
