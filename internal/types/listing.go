// Package types provides type definitions for structured data used throughout the discount-watch system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// UnknownCategoryName is the category assigned when no keyword matches.
const UnknownCategoryName = "OTHER"

// Category is an enumerated item type with a stable ordinal used as sort key.
type Category struct {
	Name    string `json:"name"`
	Ordinal int    `json:"ordinal"`
}

// UnknownCategory sorts after every configured category.
var UnknownCategory = Category{Name: UnknownCategoryName, Ordinal: math.MaxInt32}

// IsUnknown reports whether the category is the fallback category.
func (c Category) IsUnknown() bool {
	return c.Name == UnknownCategoryName
}

// ItemRecord is one scraped product line.
type ItemRecord struct {
	Category Category         `json:"category"`
	Name     string           `json:"name"`
	URL      string           `json:"url,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`     // current (sale) price
	OldPrice *decimal.Decimal `json:"old_price,omitempty"` // price before discount
	InStock  bool             `json:"in_stock"`
	// Discount is the percent off, nil when the source gives no discount data.
	// A zero value is a real "0%" and is distinct from nil.
	Discount *decimal.Decimal `json:"discount,omitempty"`
}

// HasDiscount reports whether both prices are known and the old price is above the current one.
func (r ItemRecord) HasDiscount() bool {
	return r.OldPrice != nil && r.Price != nil && r.OldPrice.GreaterThan(*r.Price)
}

// BrokenEntry references an item the extractor could not structure.
type BrokenEntry struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// SourceResult is the outcome of one fetch cycle for one storefront.
type SourceResult struct {
	SourceID  string        `json:"source_id"`
	Items     []ItemRecord  `json:"items"`
	Broken    []BrokenEntry `json:"broken"`
	FetchedAt time.Time     `json:"fetched_at"`
}

// Clone returns a copy whose slices do not alias the receiver's.
// Nil slices stay nil and empty ones stay empty.
func (r SourceResult) Clone() SourceResult {
	out := r
	if r.Items != nil {
		out.Items = make([]ItemRecord, len(r.Items))
		copy(out.Items, r.Items)
	}
	if r.Broken != nil {
		out.Broken = make([]BrokenEntry, len(r.Broken))
		copy(out.Broken, r.Broken)
	}
	return out
}
