package presence

import (
	"sort"

	"github.com/jonathan/discount-watch/internal/types"
)

// CategoryState is the resolved state of one category.
type CategoryState struct {
	Category types.Category      `json:"category"`
	State    types.PresenceState `json:"state"`
	Items    int                 `json:"items"`
}

// Summarize groups items by category name and resolves each group.
// The result is sorted by category ordinal, then name.
func Summarize(items []types.ItemRecord) []CategoryState {
	groups := map[string][]types.ItemRecord{}
	cats := map[string]types.Category{}
	for _, it := range items {
		name := it.Category.Name
		if name == "" {
			it.Category = types.UnknownCategory
			name = it.Category.Name
		}
		groups[name] = append(groups[name], it)
		cats[name] = it.Category
	}

	out := make([]CategoryState, 0, len(groups))
	for name, group := range groups {
		out = append(out, CategoryState{
			Category: cats[name],
			State:    Resolve(group),
			Items:    len(group),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Category, out[j].Category
		if a.Ordinal != b.Ordinal {
			return a.Ordinal < b.Ordinal
		}
		return a.Name < b.Name
	})
	return out
}

// OnlyDiscounts keeps the categories whose state is Discount.
func OnlyDiscounts(states []CategoryState) []CategoryState {
	out := make([]CategoryState, 0, len(states))
	for _, s := range states {
		if s.State == types.Discount {
			out = append(out, s)
		}
	}
	return out
}

// ByState orders categories best state first, keeping the ordinal order
// within one state.
func ByState(states []CategoryState) []CategoryState {
	out := append([]CategoryState(nil), states...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].State.Outranks(out[j].State) })
	return out
}
