// Package notify delivers admin notifications about aggregation runs.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// DetachedTimeout bounds a detached send.
const DetachedTimeout = 10 * time.Second

// Level is the severity of a message.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Message is one admin notification.
type Message struct {
	Level  Level             `json:"level"`
	Title  string            `json:"title"`
	Body   string            `json:"body,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Notifier sends messages to an admin channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs msg at the level it carries.
func (n LogNotifier) Notify(ctx context.Context, msg Message) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := make([]any, 0, 2+2*len(msg.Fields))
	if msg.Body != "" {
		attrs = append(attrs, "body", msg.Body)
	}
	for k, v := range msg.Fields {
		attrs = append(attrs, k, v)
	}
	switch msg.Level {
	case LevelError:
		logger.ErrorContext(ctx, msg.Title, attrs...)
	case LevelWarn:
		logger.WarnContext(ctx, msg.Title, attrs...)
	default:
		logger.InfoContext(ctx, msg.Title, attrs...)
	}
	return nil
}

// WebhookNotifier posts messages as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *resty.Client
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = DetachedTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &WebhookNotifier{url: url, client: client}
}

// Notify posts msg. Any non-2xx status is an error.
func (n *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	resp, err := n.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}
	return nil
}

// Multi fans a message out to several notifiers. Every notifier is tried;
// the first error is returned.
type Multi []Notifier

// Notify sends msg to every notifier.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Detached sends msg on its own goroutine with DetachedTimeout. Failures are
// logged and otherwise ignored. The returned channel closes when the send ends.
func Detached(n Notifier, msg Message, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if n == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("notification panicked", "title", msg.Title, "panic", fmt.Sprint(r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), DetachedTimeout)
		defer cancel()
		if err := n.Notify(ctx, msg); err != nil {
			logger.Warn("notification failed", "title", msg.Title, "error", err)
		}
	}()
	return done
}
