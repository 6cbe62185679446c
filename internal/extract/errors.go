package extract

import "fmt"

// PageError means the markup as a whole could not be processed.
type PageError struct {
	URL     string
	Message string
	Cause   error
}

func (e *PageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("page error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("page error for %s: %s", e.URL, e.Message)
}

func (e *PageError) Unwrap() error {
	return e.Cause
}

// ItemError describes why a single container could not become a record.
// It never leaves the package; it is turned into a broken entry.
type ItemError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ItemError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ItemError) Unwrap() error {
	return e.Cause
}
