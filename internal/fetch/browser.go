// Package fetch - browser.go renders script-built storefront pages in a headless browser.
package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// DefaultSettleTime is how long the page may run scripts after the body is ready.
const DefaultSettleTime = 2 * time.Second

// Browser fetches pages through headless Chrome. Requires Chrome/Chromium on the host.
type Browser struct {
	timeout  time.Duration
	settle   time.Duration
	waitFor  string
	logger   *slog.Logger
	execOpts []chromedp.ExecAllocatorOption
}

// BrowserOptions configures a Browser.
type BrowserOptions struct {
	Timeout time.Duration
	Settle  time.Duration
	// WaitFor is a selector that must be visible before the HTML is captured,
	// typically the source's item container. Defaults to "body".
	WaitFor string
}

// NewBrowser creates a headless renderer.
func NewBrowser(opts BrowserOptions, logger *slog.Logger) *Browser {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Settle == 0 {
		opts.Settle = DefaultSettleTime
	}
	if opts.WaitFor == "" {
		opts.WaitFor = "body"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{
		timeout: opts.Timeout,
		settle:  opts.Settle,
		waitFor: opts.WaitFor,
		logger:  logger,
		execOpts: append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.UserAgent(DefaultUserAgent),
		),
	}
}

// Get renders urlStr and returns the resulting document HTML. A non-2xx
// navigation response is reported as an *Error carrying its status code.
func (b *Browser) Get(ctx context.Context, urlStr string) (*Result, error) {
	start := time.Now()
	b.logger.Debug("browser render", "url", urlStr)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, b.execOpts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, b.timeout)
	defer cancel()

	resp, err := chromedp.RunResponse(browserCtx, chromedp.Navigate(urlStr))
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "browser navigation failed",
			Cause:   fmt.Errorf("navigate: %w", err),
		}
	}
	status, err := navigationStatus(urlStr, resp)
	if err != nil {
		return nil, err
	}

	var html string
	err = chromedp.Run(browserCtx,
		chromedp.WaitReady(b.waitFor),
		chromedp.Sleep(b.settle),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return nil, &Error{
			URL:        urlStr,
			StatusCode: status,
			Message:    "browser rendering failed",
			Cause:      fmt.Errorf("render: %w", err),
		}
	}

	b.logger.Debug("browser rendered", "url", urlStr, "status", status, "bytes", len(html))

	return &Result{
		URL:         urlStr,
		HTML:        html,
		ContentType: "text/html; charset=utf-8",
		StatusCode:  status,
		Duration:    time.Since(start),
	}, nil
}

// navigationStatus maps the main document response to a status code.
// Navigations without a network response (same-document, cache) count as 200.
func navigationStatus(urlStr string, resp *network.Response) (int, error) {
	if resp == nil {
		return http.StatusOK, nil
	}
	status := int(resp.Status)
	if status < 200 || status > 299 {
		return status, &Error{
			URL:        urlStr,
			StatusCode: status,
			Message:    fmt.Sprintf("HTTP status %d", status),
		}
	}
	return status, nil
}
