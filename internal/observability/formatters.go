// Package observability provides logging setup and formatted CLI output.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/presence"
	"github.com/jonathan/discount-watch/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 10
)

// stateMarks are the short markers shown next to a category.
var stateMarks = map[types.PresenceState]string{
	types.Discount:   "[SALE]",
	types.InStock:    "[ -- ]",
	types.NotInStock: "[ XX ]",
}

// Printer handles formatted output for the CLI
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		// Truncate long lines
		if r := []rune(line); len(r) > boxWidth-4 {
			line = string(r[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintReport outputs the outcome of an aggregation run.
func (p *Printer) PrintReport(r *aggregate.Report) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:      %s\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Duration: %s\n", r.Duration.Round(time.Millisecond)))
	sb.WriteString(fmt.Sprintf("Sources:  %d ok, %d failed\n", r.Succeeded(), r.Failed()))
	sb.WriteString("\n")

	for _, s := range r.Sources {
		if s.OK {
			sb.WriteString(fmt.Sprintf("  ✓ %-20s %4d items %3d broken\n", s.SourceID, s.Items, s.Broken))
		} else {
			sb.WriteString(fmt.Sprintf("  ✗ %-20s %s\n", s.SourceID, s.Error))
		}
	}
	if r.ApplyError != "" {
		sb.WriteString(fmt.Sprintf("\nApply failed: %s\n", r.ApplyError))
	}

	sb.WriteString("\n")
	sb.WriteString(r.Breakdown())

	p.printBox("AGGREGATION RUN", sb.String())
}

// PrintSource outputs the items and broken entries of one source result.
func (p *Printer) PrintSource(r *types.SourceResult) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Fetched: %s\n", r.FetchedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("Items:   %d\n", len(r.Items)))
	sb.WriteString("\n")

	count := min(len(r.Items), maxItemsToShow)
	for i := 0; i < count; i++ {
		it := r.Items[i]
		sb.WriteString(fmt.Sprintf("  • [%s] %s %s\n", it.Category.Name, it.Name, priceText(it)))
	}
	if len(r.Items) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(r.Items)-maxItemsToShow))
	}

	if len(r.Broken) > 0 {
		sb.WriteString(fmt.Sprintf("\nBroken: %d\n", len(r.Broken)))
		count := min(len(r.Broken), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  ! %s: %s\n", r.Broken[i].Ref, r.Broken[i].Reason))
		}
	}

	p.printBox("SOURCE "+strings.ToUpper(r.SourceID), sb.String())
}

// PrintPresence outputs the per-category states of a source.
func (p *Printer) PrintPresence(sourceID string, states []presence.CategoryState) {
	var sb strings.Builder
	if len(states) == 0 {
		sb.WriteString("No data yet\n")
	}
	for _, s := range states {
		sb.WriteString(fmt.Sprintf("%s %-12s %d items\n", stateMarks[s.State], s.Category.Name+":", s.Items))
	}
	p.printBox("PRESENCE "+strings.ToUpper(sourceID), sb.String())
}

// PrintDeals outputs a deal listing.
func (p *Printer) PrintDeals(sourceID string, deals []types.ItemRecord, truncated bool) {
	var sb strings.Builder
	if len(deals) == 0 {
		sb.WriteString("No deals\n")
	}
	for _, it := range deals {
		sb.WriteString(fmt.Sprintf("%s %s\n", it.Name, priceText(it)))
		if it.URL != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", it.URL))
		}
	}
	if truncated {
		sb.WriteString("... more on the storefront\n")
	}
	p.printBox("DEALS "+strings.ToUpper(sourceID), sb.String())
}

func priceText(it types.ItemRecord) string {
	var parts []string
	if it.OldPrice != nil {
		parts = append(parts, "was "+it.OldPrice.String())
	}
	if it.Price != nil {
		parts = append(parts, "now "+it.Price.String())
	}
	if it.Discount != nil {
		parts = append(parts, "-"+it.Discount.String()+"%")
	}
	if !it.InStock {
		parts = append(parts, "out of stock")
	}
	return strings.Join(parts, ", ")
}
