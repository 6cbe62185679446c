package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/discount-watch/internal/aggregate"
	"github.com/jonathan/discount-watch/internal/extract"
	"github.com/jonathan/discount-watch/internal/fetch"
	"github.com/jonathan/discount-watch/internal/notify"
	"github.com/jonathan/discount-watch/internal/sources"
	"github.com/jonathan/discount-watch/internal/throttle"
	"github.com/jonathan/discount-watch/internal/types"
)

// Classifier builds the category classifier from the configured categories.
func (c *Config) Classifier() *extract.Classifier {
	rules := make([]extract.Rule, 0, len(c.Categories))
	for _, cat := range c.Categories {
		kws := cat.Keywords
		if len(kws) == 0 {
			kws = []string{cat.Name}
		}
		rules = append(rules, extract.Rule{
			Category: types.Category{Name: strings.ToUpper(cat.Name), Ordinal: cat.Ordinal},
			Keywords: kws,
		})
	}
	return extract.NewClassifier(rules)
}

// FetchOptions converts the fetch section to client options.
func (c *Config) FetchOptions() *fetch.Options {
	return &fetch.Options{
		Timeout:    c.Fetch.Timeout.Std(),
		UserAgent:  c.Fetch.UserAgent,
		Headers:    c.Fetch.Headers,
		RetryCount: c.Fetch.RetryCount,
		RetryWait:  c.Fetch.RetryWait.Std(),
	}
}

// BuildSources creates one throttled fetch service per configured source.
// HTTP sources share one client; browser sources get their own renderer.
func (c *Config) BuildSources(logger *slog.Logger) ([]aggregate.Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	classifier := c.Classifier()
	client := fetch.NewClient(c.FetchOptions(), logger)

	out := make([]aggregate.Source, 0, len(c.Sources))
	for _, sc := range c.Sources {
		kind, err := sources.ParseKind(sc.Kind)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.ID, err)
		}
		adapter, err := sources.New(kind, sc.Selectors)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.ID, err)
		}

		var getter fetch.Getter = client
		if sc.Render == RenderBrowser {
			getter = fetch.NewBrowser(fetch.BrowserOptions{
				Timeout: c.Fetch.Timeout.Std(),
				WaitFor: sc.Selectors.Container,
			}, logger)
		}

		urls := make([]throttle.URL, 0, len(sc.URLs))
		for _, u := range sc.URLs {
			tu := throttle.URL{Address: u.URL}
			if u.Category != "" {
				cat, ok := classifier.Lookup(u.Category)
				if !ok {
					return nil, fmt.Errorf("source %s: unknown category %q", sc.ID, u.Category)
				}
				tu.Category = &cat
			}
			urls = append(urls, tu)
		}

		svc, err := throttle.New(throttle.Config{
			SourceID:    sc.ID,
			URLs:        urls,
			MinInterval: sc.MinInterval.Std(),
		}, adapter, getter,
			throttle.WithLogger(logger),
			throttle.WithClassifier(classifier),
		)
		if err != nil {
			return nil, err
		}
		out = append(out, aggregate.Source{Fetcher: svc, Timeout: sc.Timeout.Std()})
	}
	return out, nil
}

// Notifier builds the admin notifier: always the log, plus the webhook when set.
func (c *Config) Notifier(logger *slog.Logger) notify.Notifier {
	n := notify.Multi{notify.LogNotifier{Logger: logger}}
	if c.Notify.WebhookURL != "" {
		n = append(n, notify.NewWebhookNotifier(c.Notify.WebhookURL, c.Notify.Timeout.Std()))
	}
	return n
}
