package snapshot

import (
	"github.com/jonathan/discount-watch/internal/types"
)

// ChangeKind classifies a difference between two results of one source.
type ChangeKind string

const (
	ChangeNewDiscount    ChangeKind = "new_discount"
	ChangeDeeperDiscount ChangeKind = "deeper_discount"
	ChangeBackInStock    ChangeKind = "back_in_stock"
)

// Change is one item that became more interesting since the previous result.
type Change struct {
	Kind   ChangeKind        `json:"kind"`
	Item   types.ItemRecord  `json:"item"`
	Before *types.ItemRecord `json:"before,omitempty"`
}

func itemKey(r types.ItemRecord) string {
	if r.URL != "" {
		return r.URL
	}
	return r.Name
}

// Changes lists, in current order, items that gained a discount, got a deeper
// discount, or came back in stock. A nil previous reports every discounted item as new.
func Changes(previous *types.SourceResult, current types.SourceResult) []Change {
	before := map[string]types.ItemRecord{}
	if previous != nil {
		for _, it := range previous.Items {
			before[itemKey(it)] = it
		}
	}

	out := make([]Change, 0)
	for _, it := range current.Items {
		prev, seen := before[itemKey(it)]
		var prevPtr *types.ItemRecord
		if seen {
			p := prev
			prevPtr = &p
		}

		switch {
		case it.InStock && it.HasDiscount() && (!seen || !prev.HasDiscount() || !prev.InStock):
			out = append(out, Change{Kind: ChangeNewDiscount, Item: it, Before: prevPtr})
		case it.InStock && it.HasDiscount() && deeper(prev, it):
			out = append(out, Change{Kind: ChangeDeeperDiscount, Item: it, Before: prevPtr})
		case it.InStock && seen && !prev.InStock:
			out = append(out, Change{Kind: ChangeBackInStock, Item: it, Before: prevPtr})
		}
	}
	return out
}

func deeper(prev, cur types.ItemRecord) bool {
	if prev.Discount == nil || cur.Discount == nil {
		return false
	}
	return cur.Discount.GreaterThan(*prev.Discount)
}

// Changes reports what changed for one source between its previous and current result.
func (c *Cache) Changes(sourceID string) ([]Change, bool) {
	cur, prev, ok := c.Pair(sourceID)
	if !ok {
		return nil, false
	}
	return Changes(prev, cur), true
}
