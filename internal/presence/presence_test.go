package presence

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/discount-watch/internal/types"
)

var (
	pla  = types.Category{Name: "PLA", Ordinal: 0}
	petg = types.Category{Name: "PETG", Ordinal: 1}
	abs  = types.Category{Name: "ABS", Ordinal: 2}
)

func dec(s string) *decimal.Decimal {
	if s == "" {
		return nil
	}
	d := decimal.RequireFromString(s)
	return &d
}

func item(cat types.Category, name, old, cur string, inStock bool) types.ItemRecord {
	return types.ItemRecord{Category: cat, Name: name, OldPrice: dec(old), Price: dec(cur), InStock: inStock}
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		name string
		item types.ItemRecord
		want types.PresenceState
	}{
		{"out of stock wins over prices", item(pla, "a", "1000", "800", false), types.NotInStock},
		{"discounted", item(pla, "a", "1000", "800", true), types.Discount},
		{"only current price", item(pla, "a", "", "800", true), types.InStock},
		{"old price not above current", item(pla, "a", "800", "800", true), types.InStock},
		{"no prices", item(pla, "a", "", "", true), types.InStock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.item))
		})
	}
}

func TestResolve(t *testing.T) {
	assert.Equal(t, types.NotInStock, Resolve(nil))
	assert.Equal(t, types.NotInStock, Resolve([]types.ItemRecord{item(pla, "a", "", "1", false)}))
	assert.Equal(t, types.InStock, Resolve([]types.ItemRecord{
		item(pla, "a", "", "1", false),
		item(pla, "b", "", "1", true),
	}))
	assert.Equal(t, types.Discount, Resolve([]types.ItemRecord{
		item(pla, "a", "", "1", false),
		item(pla, "b", "", "1", true),
		item(pla, "c", "2", "1", true),
	}))
}

func TestResolve_PermutationInvariant(t *testing.T) {
	base := []types.ItemRecord{
		item(pla, "a", "", "1", false),
		item(pla, "b", "", "1", true),
		item(pla, "c", "2", "1", true),
		item(pla, "d", "2", "1", false),
		item(pla, "e", "1", "2", true),
	}
	rng := rand.New(rand.NewSource(42))

	for n := 0; n <= len(base); n++ {
		subset := append([]types.ItemRecord(nil), base[:n]...)
		want := Resolve(subset)
		for i := 0; i < 50; i++ {
			rng.Shuffle(len(subset), func(a, b int) { subset[a], subset[b] = subset[b], subset[a] })
			require.Equal(t, want, Resolve(subset), "subset of %d, shuffle %d", n, i)
		}
	}
}

func TestSummarize(t *testing.T) {
	items := []types.ItemRecord{
		item(abs, "abs 1", "", "10", false),
		item(pla, "pla 1", "", "10", true),
		item(types.UnknownCategory, "mystery", "", "10", true),
		item(petg, "petg 1", "", "10", true),
		item(pla, "pla 2", "12", "10", true),
		{Name: "no category", InStock: false},
	}

	got := Summarize(items)
	require.Len(t, got, 4)
	assert.Equal(t, "PLA", got[0].Category.Name)
	assert.Equal(t, types.Discount, got[0].State)
	assert.Equal(t, 2, got[0].Items)
	assert.Equal(t, "PETG", got[1].Category.Name)
	assert.Equal(t, types.InStock, got[1].State)
	assert.Equal(t, "ABS", got[2].Category.Name)
	assert.Equal(t, types.NotInStock, got[2].State)
	assert.True(t, got[3].Category.IsUnknown())
	assert.Equal(t, 2, got[3].Items)
	assert.Equal(t, types.InStock, got[3].State)

	assert.Empty(t, Summarize(nil))
}

func TestOnlyDiscountsAndByState(t *testing.T) {
	states := []CategoryState{
		{Category: pla, State: types.InStock},
		{Category: petg, State: types.Discount},
		{Category: abs, State: types.NotInStock},
		{Category: types.UnknownCategory, State: types.Discount},
	}

	only := OnlyDiscounts(states)
	require.Len(t, only, 2)
	assert.Equal(t, "PETG", only[0].Category.Name)

	ranked := ByState(states)
	names := []string{}
	for _, s := range ranked {
		names = append(names, s.Category.Name)
	}
	assert.Equal(t, []string{"PETG", types.UnknownCategoryName, "PLA", "ABS"}, names)
	assert.Equal(t, "PLA", states[0].Category.Name, "input must not be reordered")
}

func TestDeals(t *testing.T) {
	items := []types.ItemRecord{
		item(pla, "a", "10", "8", true),
		item(pla, "b", "", "8", true),
		item(pla, "c", "10", "8", false),
		item(pla, "d", "10", "9", true),
		item(pla, "e", "10", "10", true),
	}

	deals, truncated := Deals(items, 0)
	assert.False(t, truncated)
	require.Len(t, deals, 3)
	assert.Equal(t, "a", deals[0].Name)
	assert.Equal(t, "e", deals[2].Name)

	deals, truncated = Deals(items, 2)
	assert.True(t, truncated)
	assert.Len(t, deals, 2)

	deals, truncated = Deals(items, 3)
	assert.False(t, truncated)
	assert.Len(t, deals, 3)

	deals, _ = Deals(nil, 5)
	assert.NotNil(t, deals)
	assert.Empty(t, deals)
}
