// Package fetch provides HTTP retrieval of storefront pages.
// Bodies are decoded to UTF-8 using the declared or sniffed charset.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html/charset"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is the user agent string for HTTP requests.
const DefaultUserAgent = "Mozilla/5.0 (compatible; DiscountWatch/1.0)"

// Result holds the content retrieved from a URL.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
	Duration    time.Duration
}

// Error represents an error during URL fetching.
type Error struct {
	URL        string
	StatusCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Getter retrieves a page. Both the HTTP client and the headless browser implement it.
type Getter interface {
	Get(ctx context.Context, urlStr string) (*Result, error)
}

// Options configures the fetch behavior.
type Options struct {
	Timeout    time.Duration
	UserAgent  string
	Headers    map[string]string
	RetryCount int
	RetryWait  time.Duration
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:    DefaultTimeout,
		UserAgent:  DefaultUserAgent,
		RetryCount: 2,
		RetryWait:  500 * time.Millisecond,
	}
}

// Client fetches pages over HTTP.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a client. A nil opts uses DefaultOptions; a nil logger uses slog.Default().
func NewClient(opts *Options, logger *slog.Logger) *Client {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}

	rc := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml").
		SetHeaders(opts.Headers).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWait).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	c := &Client{http: rc, logger: logger}
	rc.OnAfterResponse(c.onAfterResponse)
	rc.OnError(c.onError)
	return c
}

func (c *Client) onAfterResponse(_ *resty.Client, res *resty.Response) error {
	c.logger.Debug("fetch response",
		"url", res.Request.URL,
		"status", res.StatusCode(),
		"bytes", len(res.Body()),
		"duration", res.Time())
	return nil
}

func (c *Client) onError(req *resty.Request, err error) {
	c.logger.Debug("fetch request failed", "url", req.URL, "error", err)
}

// Get retrieves HTML content from a URL. On a non-2xx status the Result is
// returned together with an *Error.
func (c *Client) Get(ctx context.Context, urlStr string) (*Result, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{
			URL:     urlStr,
			Message: "invalid URL",
			Cause:   err,
		}
	}

	resp, err := c.http.R().SetContext(ctx).Get(urlStr)
	if err != nil {
		return nil, &Error{
			URL:     urlStr,
			Message: "HTTP request failed",
			Cause:   err,
		}
	}

	contentType := resp.Header().Get("Content-Type")
	if !resp.IsSuccess() {
		return &Result{
			URL:         urlStr,
			HTML:        string(resp.Body()),
			ContentType: contentType,
			StatusCode:  resp.StatusCode(),
			Duration:    resp.Time(),
		}, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("HTTP status %d", resp.StatusCode()),
		}
	}

	body, err := decodeBody(resp.Body(), contentType)
	if err != nil {
		return nil, &Error{
			URL:        urlStr,
			StatusCode: resp.StatusCode(),
			Message:    "failed to decode response body",
			Cause:      err,
		}
	}

	return &Result{
		URL:         urlStr,
		HTML:        body,
		ContentType: contentType,
		StatusCode:  resp.StatusCode(),
		Duration:    resp.Time(),
	}, nil
}

// decodeBody converts raw bytes to UTF-8 text based on the content type and any <meta> charset.
// An empty body decodes to "".
func decodeBody(raw []byte, contentType string) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	r, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return "", err
	}
	decoded, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
