// Package extract turns storefront listing markup into item records.
// Container discovery, classification and record assembly are shared; the
// per-storefront differences live behind the Overrides interface.
package extract

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/jonathan/discount-watch/internal/types"
)

// maxRefLength bounds the container text kept as a broken entry reference.
const maxRefLength = 80

// Overrides are the four extraction points a storefront variant supplies,
// plus the selector that finds item containers.
type Overrides interface {
	ContainerSelector() string
	Prices(item *goquery.Selection) (old, current *decimal.Decimal, err error)
	Product(item *goquery.Selection) (name, link string, err error)
	InStock(item *goquery.Selection) bool
	DiscountPercent(item *goquery.Selection, old, current *decimal.Decimal) (*decimal.Decimal, error)
}

// Options carries per-page context for an extraction.
type Options struct {
	// PageURL is used to resolve relative product links and label errors.
	PageURL string
	// Category, when set, is assigned to every item on the page instead of keyword matching.
	Category *types.Category
	// Classifier maps product names to categories. Nil classifies everything as unknown.
	Classifier *Classifier
}

// Extract parses markup and returns the records in markup order together with the
// containers that could not be structured. It fails only when the page as a whole
// cannot be processed.
func Extract(markup string, ov Overrides, opts Options) ([]types.ItemRecord, []types.BrokenEntry, error) {
	if strings.TrimSpace(markup) == "" {
		return nil, nil, &PageError{URL: opts.PageURL, Message: "empty page"}
	}

	sel := ov.ContainerSelector()
	if sel == "" {
		return nil, nil, &PageError{URL: opts.PageURL, Message: "no container selector configured"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, nil, &PageError{URL: opts.PageURL, Message: "failed to parse HTML", Cause: err}
	}

	var base *url.URL
	if opts.PageURL != "" {
		base, _ = url.Parse(opts.PageURL)
	}

	items := make([]types.ItemRecord, 0)
	broken := make([]types.BrokenEntry, 0)

	doc.Find(sel).Each(func(i int, container *goquery.Selection) {
		rec, ref, err := extractItem(container, ov, base, opts)
		if err != nil {
			if ref == "" {
				ref = containerRef(i, container)
			}
			broken = append(broken, types.BrokenEntry{Ref: ref, Reason: err.Error()})
			return
		}
		items = append(items, rec)
	})

	return items, broken, nil
}

// extractItem builds one record. ref is the best identifier found so far, returned
// even on failure so the broken entry can point at the product.
func extractItem(container *goquery.Selection, ov Overrides, base *url.URL, opts Options) (rec types.ItemRecord, ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ItemError{Field: "container", Message: fmt.Sprintf("panic during extraction: %v", r)}
		}
	}()

	name, link, err := ov.Product(container)
	if err != nil {
		return rec, "", &ItemError{Field: "product", Message: "failed to read product", Cause: err}
	}
	link = resolveLink(base, link)
	ref = link

	name = collapseSpace(name)
	if name == "" {
		return rec, ref, &ItemError{Field: "product", Message: "missing product name"}
	}
	if ref == "" {
		ref = name
	}

	old, current, err := ov.Prices(container)
	if err != nil {
		return rec, ref, &ItemError{Field: "price", Message: "failed to read price", Cause: err}
	}
	if old == nil && current == nil {
		return rec, ref, &ItemError{Field: "price", Message: "missing price"}
	}

	discount, err := ov.DiscountPercent(container, old, current)
	if err != nil {
		return rec, ref, &ItemError{Field: "discount", Message: "failed to read discount", Cause: err}
	}

	rec = types.ItemRecord{
		Name:     name,
		URL:      link,
		Price:    current,
		OldPrice: old,
		InStock:  ov.InStock(container),
		Discount: discount,
	}
	if !rec.HasDiscount() {
		rec.Discount = nil
	}

	switch {
	case opts.Category != nil:
		rec.Category = *opts.Category
	default:
		rec.Category = opts.Classifier.Classify(name)
	}

	return rec, ref, nil
}

func resolveLink(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

func containerRef(i int, container *goquery.Selection) string {
	text := collapseSpace(container.Text())
	if text == "" {
		return fmt.Sprintf("container #%d", i)
	}
	if utf8.RuneCountInString(text) > maxRefLength {
		runes := []rune(text)
		text = string(runes[:maxRefLength]) + "..."
	}
	return text
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
