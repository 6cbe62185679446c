package extract

import (
	"sort"
	"strings"

	"github.com/jonathan/discount-watch/internal/types"
)

// Rule maps keywords to a category.
type Rule struct {
	Category types.Category
	Keywords []string
}

// Classifier assigns categories by case-insensitive keyword substring match.
// When several keywords match, the longest wins so that "PETG" beats "PET";
// equal lengths are broken by category ordinal.
type Classifier struct {
	rules  []Rule
	byName map[string]types.Category
}

// NewClassifier builds a classifier. Keywords are lowercased and blank ones dropped.
func NewClassifier(rules []Rule) *Classifier {
	c := &Classifier{byName: make(map[string]types.Category, len(rules))}
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				kws = append(kws, kw)
			}
		}
		c.rules = append(c.rules, Rule{Category: r.Category, Keywords: kws})
		c.byName[strings.ToUpper(r.Category.Name)] = r.Category
	}
	sort.SliceStable(c.rules, func(i, j int) bool {
		return c.rules[i].Category.Ordinal < c.rules[j].Category.Ordinal
	})
	return c
}

// Classify returns the best matching category or types.UnknownCategory.
func (c *Classifier) Classify(text string) types.Category {
	if c == nil {
		return types.UnknownCategory
	}
	lower := strings.ToLower(text)

	best := types.UnknownCategory
	bestLen := 0
	for _, r := range c.rules {
		for _, kw := range r.Keywords {
			if len(kw) > bestLen && strings.Contains(lower, kw) {
				best = r.Category
				bestLen = len(kw)
			}
		}
	}
	return best
}

// Lookup finds a configured category by name, case-insensitively.
func (c *Classifier) Lookup(name string) (types.Category, bool) {
	if c == nil {
		return types.Category{}, false
	}
	cat, ok := c.byName[strings.ToUpper(strings.TrimSpace(name))]
	return cat, ok
}

// Categories returns the configured categories in ordinal order.
func (c *Classifier) Categories() []types.Category {
	if c == nil {
		return nil
	}
	out := make([]types.Category, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.Category)
	}
	return out
}
