package sources

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/jonathan/discount-watch/internal/pricing"
)

// Selectors is the declarative selector set of one storefront.
type Selectors struct {
	Container   string `json:"container" yaml:"container"`
	OldPrice    string `json:"old_price,omitempty" yaml:"old_price,omitempty"`
	NewPrice    string `json:"new_price,omitempty" yaml:"new_price,omitempty"`
	ProductName string `json:"product_name,omitempty" yaml:"product_name,omitempty"`
	ProductLink string `json:"product_link,omitempty" yaml:"product_link,omitempty"`
	LinkAttr    string `json:"link_attr,omitempty" yaml:"link_attr,omitempty"`
	// Stock is optional. Without it the source is assumed to list only items in stock.
	Stock          string `json:"stock,omitempty" yaml:"stock,omitempty"`
	OutOfStockText string `json:"out_of_stock_text,omitempty" yaml:"out_of_stock_text,omitempty"`
	Discount       string `json:"discount,omitempty" yaml:"discount,omitempty"`
}

type (
	pricesFunc   func(sel Selectors, item *goquery.Selection) (old, current *decimal.Decimal, err error)
	productFunc  func(sel Selectors, item *goquery.Selection) (name, link string, err error)
	stockFunc    func(sel Selectors, item *goquery.Selection) bool
	discountFunc func(sel Selectors, item *goquery.Selection, old, current *decimal.Decimal) (*decimal.Decimal, error)
)

// Adapter specializes the extractor for one storefront. It implements extract.Overrides.
type Adapter struct {
	kind      Kind
	selectors Selectors

	prices   pricesFunc
	product  productFunc
	inStock  stockFunc
	discount discountFunc
}

// New builds the adapter variant for kind.
func New(kind Kind, sel Selectors) (*Adapter, error) {
	if sel.LinkAttr == "" {
		sel.LinkAttr = "href"
	}
	if err := sel.check(kind); err != nil {
		return nil, err
	}

	a := &Adapter{
		kind:      kind,
		selectors: sel,
		prices:    selectorPrices,
		product:   selectorProduct,
	}

	switch kind {
	case KindStandard:
		a.inStock = markerStock
		a.discount = computedDiscount
	case KindLabeled:
		a.inStock = labeledStock
		a.discount = badgeDiscount
	case KindCatalog:
		a.inStock = alwaysInStock
		a.discount = badgeDiscount
	default:
		return nil, fmt.Errorf("unknown source kind %q", kind)
	}
	return a, nil
}

// Kind returns the variant tag.
func (a *Adapter) Kind() Kind { return a.kind }

// Selectors returns a copy of the selector set.
func (a *Adapter) Selectors() Selectors { return a.selectors }

func (a *Adapter) ContainerSelector() string { return a.selectors.Container }

func (a *Adapter) Prices(item *goquery.Selection) (old, current *decimal.Decimal, err error) {
	return a.prices(a.selectors, item)
}

func (a *Adapter) Product(item *goquery.Selection) (name, link string, err error) {
	return a.product(a.selectors, item)
}

func (a *Adapter) InStock(item *goquery.Selection) bool {
	return a.inStock(a.selectors, item)
}

func (a *Adapter) DiscountPercent(item *goquery.Selection, old, current *decimal.Decimal) (*decimal.Decimal, error) {
	return a.discount(a.selectors, item, old, current)
}

func (s Selectors) check(kind Kind) error {
	if strings.TrimSpace(s.Container) == "" {
		return fmt.Errorf("source %s: container selector is required", kind)
	}
	if s.ProductName == "" && s.ProductLink == "" {
		return fmt.Errorf("source %s: product_name or product_link selector is required", kind)
	}
	if s.OldPrice == "" && s.NewPrice == "" {
		return fmt.Errorf("source %s: at least one price selector is required", kind)
	}
	if kind == KindLabeled && (s.Stock == "" || s.OutOfStockText == "") {
		return fmt.Errorf("source %s: stock and out_of_stock_text are required", kind)
	}
	return nil
}

func firstText(item *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(item.Find(selector).First().Text())
}

func selectorPrices(sel Selectors, item *goquery.Selection) (old, current *decimal.Decimal, err error) {
	old, err = pricing.ParseOptional(firstText(item, sel.OldPrice))
	if err != nil {
		return nil, nil, fmt.Errorf("old price: %w", err)
	}
	current, err = pricing.ParseOptional(firstText(item, sel.NewPrice))
	if err != nil {
		return nil, nil, fmt.Errorf("new price: %w", err)
	}
	return old, current, nil
}

func selectorProduct(sel Selectors, item *goquery.Selection) (name, link string, err error) {
	nameSel := sel.ProductName
	if nameSel == "" {
		nameSel = sel.ProductLink
	}
	linkSel := sel.ProductLink
	if linkSel == "" {
		linkSel = sel.ProductName
	}

	name = firstText(item, nameSel)
	if href, ok := item.Find(linkSel).First().Attr(sel.LinkAttr); ok {
		link = strings.TrimSpace(href)
	}
	return name, link, nil
}

func alwaysInStock(Selectors, *goquery.Selection) bool { return true }

// markerStock treats a matching element (a buy button, an availability icon) as "in stock".
func markerStock(sel Selectors, item *goquery.Selection) bool {
	if sel.Stock == "" {
		return true
	}
	return item.Find(sel.Stock).Length() > 0
}

// labeledStock is out of stock only when the label says so.
func labeledStock(sel Selectors, item *goquery.Selection) bool {
	label := strings.ToLower(firstText(item, sel.Stock))
	if label == "" {
		return true
	}
	return !strings.Contains(label, strings.ToLower(sel.OutOfStockText))
}

func computedDiscount(_ Selectors, _ *goquery.Selection, old, current *decimal.Decimal) (*decimal.Decimal, error) {
	return pricing.DiscountPercent(old, current), nil
}

// badgeDiscount reads the discount badge and falls back to the computed percent
// when there is no badge or it carries no number ("SALE").
func badgeDiscount(sel Selectors, item *goquery.Selection, old, current *decimal.Decimal) (*decimal.Decimal, error) {
	text := firstText(item, sel.Discount)
	if text == "" {
		return pricing.DiscountPercent(old, current), nil
	}
	pct, err := pricing.ParsePercent(text)
	if errors.Is(err, pricing.ErrNoDigits) {
		return pricing.DiscountPercent(old, current), nil
	}
	if err != nil {
		return nil, err
	}
	return &pct, nil
}
