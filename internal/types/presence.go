package types

import (
	"fmt"
	"strings"
)

// PresenceState is the merged availability/discount status of a category.
// Lower values rank higher.
type PresenceState int

const (
	Discount PresenceState = iota
	InStock
	NotInStock
)

var presenceNames = [...]string{"DISCOUNT", "IN_STOCK", "NOT_IN_STOCK"}

func (s PresenceState) String() string {
	if s < Discount || s > NotInStock {
		return fmt.Sprintf("PresenceState(%d)", int(s))
	}
	return presenceNames[s]
}

// Outranks reports whether s has strictly higher priority than other.
func (s PresenceState) Outranks(other PresenceState) bool {
	return s < other
}

// MarshalText implements encoding.TextMarshaler.
func (s PresenceState) MarshalText() ([]byte, error) {
	if s < Discount || s > NotInStock {
		return nil, fmt.Errorf("invalid presence state %d", int(s))
	}
	return []byte(presenceNames[s]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *PresenceState) UnmarshalText(text []byte) error {
	for i, name := range presenceNames {
		if strings.EqualFold(string(text), name) {
			*s = PresenceState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown presence state %q", string(text))
}
