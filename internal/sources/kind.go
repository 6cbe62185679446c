// Package sources provides the per-storefront extraction variants.
//
// Each variant is a value, not a type hierarchy: an Adapter holds its selector
// set and the four extraction functions chosen for its Kind.
package sources

import (
	"fmt"
	"strings"
)

// Kind identifies a storefront variant.
type Kind string

const (
	// KindStandard reads both prices, computes the discount and treats the
	// stock selector, when set, as an availability marker (e.g. a buy button).
	KindStandard Kind = "standard"
	// KindLabeled reads an availability label and compares it against the
	// configured out-of-stock text; the discount badge is parsed when present.
	KindLabeled Kind = "labeled"
	// KindCatalog lists only purchasable items, so every item is in stock;
	// the discount badge is parsed when present.
	KindCatalog Kind = "catalog"
)

// Kinds returns every supported kind.
func Kinds() []Kind {
	return []Kind{KindStandard, KindLabeled, KindCatalog}
}

// ParseKind converts a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown source kind %q", s)
}
