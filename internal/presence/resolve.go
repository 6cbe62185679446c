// Package presence reduces item records to a per-category availability state.
package presence

import (
	"github.com/jonathan/discount-watch/internal/types"
)

// StateOf classifies one item.
func StateOf(item types.ItemRecord) types.PresenceState {
	if !item.InStock {
		return types.NotInStock
	}
	if item.HasDiscount() {
		return types.Discount
	}
	return types.InStock
}

// Resolve returns the highest-ranked state among items. The result does not
// depend on item order. An empty list resolves to NotInStock.
func Resolve(items []types.ItemRecord) types.PresenceState {
	best := types.NotInStock
	for _, it := range items {
		if s := StateOf(it); s.Outranks(best) {
			best = s
			if best == types.Discount {
				break
			}
		}
	}
	return best
}

// Eligible reports whether an item belongs in a detailed deal listing:
// in stock with both prices known.
func Eligible(item types.ItemRecord) bool {
	return item.InStock && item.OldPrice != nil && item.Price != nil
}

// Deals returns up to max eligible items in their original order and whether
// more eligible items were left out. max <= 0 means no limit.
func Deals(items []types.ItemRecord, max int) (deals []types.ItemRecord, truncated bool) {
	deals = make([]types.ItemRecord, 0)
	for _, it := range items {
		if !Eligible(it) {
			continue
		}
		if max > 0 && len(deals) == max {
			return deals, true
		}
		deals = append(deals, it)
	}
	return deals, false
}
