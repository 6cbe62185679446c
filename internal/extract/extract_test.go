package extract

import (
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/discount-watch/internal/pricing"
	"github.com/jonathan/discount-watch/internal/types"
)

// fakeOverrides reads a fixed markup layout used across these tests.
type fakeOverrides struct {
	panicOn string
}

func (fakeOverrides) ContainerSelector() string { return ".product" }

func (f fakeOverrides) Prices(item *goquery.Selection) (*decimal.Decimal, *decimal.Decimal, error) {
	if f.panicOn != "" && strings.Contains(item.Text(), f.panicOn) {
		panic("boom")
	}
	old, err := pricing.ParseOptional(item.Find(".old").Text())
	if err != nil {
		return nil, nil, err
	}
	cur, err := pricing.ParseOptional(item.Find(".new").Text())
	if err != nil {
		return nil, nil, err
	}
	return old, cur, nil
}

func (fakeOverrides) Product(item *goquery.Selection) (string, string, error) {
	a := item.Find("a.name")
	href, _ := a.Attr("href")
	return a.Text(), href, nil
}

func (fakeOverrides) InStock(item *goquery.Selection) bool {
	return item.Find(".out-of-stock").Length() == 0
}

func (fakeOverrides) DiscountPercent(_ *goquery.Selection, old, cur *decimal.Decimal) (*decimal.Decimal, error) {
	return pricing.DiscountPercent(old, cur), nil
}

func testClassifier() *Classifier {
	return NewClassifier([]Rule{
		{Category: types.Category{Name: "PLA", Ordinal: 0}, Keywords: []string{"pla"}},
		{Category: types.Category{Name: "PETG", Ordinal: 1}, Keywords: []string{"petg"}},
		{Category: types.Category{Name: "PET", Ordinal: 2}, Keywords: []string{"pet"}},
	})
}

func product(name, href, oldPrice, newPrice string, inStock bool) string {
	var b strings.Builder
	b.WriteString(`<div class="product">`)
	fmt.Fprintf(&b, `<a class="name" href="%s">%s</a>`, href, name)
	if oldPrice != "" {
		fmt.Fprintf(&b, `<span class="old">%s</span>`, oldPrice)
	}
	if newPrice != "" {
		fmt.Fprintf(&b, `<span class="new">%s</span>`, newPrice)
	}
	if !inStock {
		b.WriteString(`<span class="out-of-stock">Немає</span>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func page(products ...string) string {
	return "<html><body><div class=\"catalog\">" + strings.Join(products, "\n") + "</div></body></html>"
}

func TestExtract_RecordsInMarkupOrder(t *testing.T) {
	html := page(
		product("PLA Silk Gold 1kg", "/p/1", "1 000 грн", "800 грн", true),
		product("PETG Black", "/p/2", "", "650 грн", true),
		product("Nylon CF", "https://shop.example/p/3", "", "1 900 грн", false),
	)

	items, broken, err := Extract(html, fakeOverrides{}, Options{
		PageURL:    "https://shop.example/catalog?page=1",
		Classifier: testClassifier(),
	})
	require.NoError(t, err)
	assert.Empty(t, broken)
	require.Len(t, items, 3)

	assert.Equal(t, "PLA Silk Gold 1kg", items[0].Name)
	assert.Equal(t, "https://shop.example/p/1", items[0].URL)
	assert.Equal(t, "PLA", items[0].Category.Name)
	require.NotNil(t, items[0].Discount)
	assert.True(t, items[0].Discount.Equal(decimal.NewFromInt(20)))
	assert.True(t, items[0].InStock)

	assert.Equal(t, "PETG", items[1].Category.Name)
	assert.Nil(t, items[1].OldPrice)
	assert.Nil(t, items[1].Discount)

	assert.True(t, items[2].Category.IsUnknown())
	assert.False(t, items[2].InStock)
	assert.Equal(t, "https://shop.example/p/3", items[2].URL)
}

func TestExtract_BrokenEntryContainment(t *testing.T) {
	const n = 5
	products := make([]string, 0, n)
	for i := 0; i < n; i++ {
		newPrice := fmt.Sprintf("%d грн", 500+i)
		if i == 2 {
			newPrice = ""
		}
		products = append(products, product(fmt.Sprintf("PLA %d", i), fmt.Sprintf("/p/%d", i), "", newPrice, true))
	}

	items, broken, err := Extract(page(products...), fakeOverrides{}, Options{
		PageURL:    "https://shop.example/",
		Classifier: testClassifier(),
	})
	require.NoError(t, err)
	assert.Len(t, items, n-1)
	require.Len(t, broken, 1)
	assert.Equal(t, "https://shop.example/p/2", broken[0].Ref)
	assert.Contains(t, broken[0].Reason, "missing price")
}

func TestExtract_UnparsableNumberBecomesBrokenEntry(t *testing.T) {
	html := page(
		product("PLA ok", "/p/1", "", "500", true),
		product("PLA weird", "/p/2", "", "ціна за запитом", true),
	)

	items, broken, err := Extract(html, fakeOverrides{}, Options{PageURL: "https://shop.example/"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Len(t, broken, 1)
	assert.Contains(t, broken[0].Reason, "failed to read price")
}

func TestExtract_PanicInOverrideIsContained(t *testing.T) {
	html := page(
		product("PLA one", "/p/1", "", "500", true),
		product("PLA explode", "/p/2", "", "500", true),
		product("PLA three", "/p/3", "", "500", true),
	)

	items, broken, err := Extract(html, fakeOverrides{panicOn: "explode"}, Options{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	require.Len(t, broken, 1)
	assert.Contains(t, broken[0].Reason, "panic")
}

func TestExtract_MissingNameUsesContainerText(t *testing.T) {
	html := page(`<div class="product"><span class="new">500</span></div>`)

	items, broken, err := Extract(html, fakeOverrides{}, Options{})
	require.NoError(t, err)
	assert.Empty(t, items)
	require.Len(t, broken, 1)
	assert.Equal(t, "500", broken[0].Ref)
}

func TestExtract_CategoryHintWins(t *testing.T) {
	hint := types.Category{Name: "ABS", Ordinal: 5}
	html := page(product("PLA labelled wrongly", "/p/1", "", "500", true))

	items, _, err := Extract(html, fakeOverrides{}, Options{Category: &hint, Classifier: testClassifier()})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, hint, items[0].Category)
}

func TestExtract_NoContainersIsNotAnError(t *testing.T) {
	items, broken, err := Extract("<html><body><p>Каталог порожній</p></body></html>", fakeOverrides{}, Options{})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, broken)
}

func TestExtract_EmptyPage(t *testing.T) {
	_, _, err := Extract("   ", fakeOverrides{}, Options{PageURL: "https://shop.example/"})
	require.Error(t, err)

	var pageErr *PageError
	assert.ErrorAs(t, err, &pageErr)
	assert.Contains(t, err.Error(), "empty page")
}

func TestExtract_DiscountDroppedWithoutBothPrices(t *testing.T) {
	html := page(product("PLA old only", "/p/1", "1000", "", true))

	items, broken, err := Extract(html, badgeOverrides{}, Options{})
	require.NoError(t, err)
	assert.Empty(t, broken)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Discount)
	assert.NotNil(t, items[0].OldPrice)
}

// badgeOverrides always reports a 15% badge.
type badgeOverrides struct{ fakeOverrides }

func (badgeOverrides) DiscountPercent(*goquery.Selection, *decimal.Decimal, *decimal.Decimal) (*decimal.Decimal, error) {
	v := decimal.NewFromInt(15)
	return &v, nil
}
