// Package ratelimit limits API requests per client with token buckets.
package ratelimit

import (
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleBucketTTL is how long an unused bucket is kept.
const idleBucketTTL = time.Hour

// Rule allows Limit requests per Window for one method and path. A path
// ending in "/" matches by prefix. Limit <= 0 means unlimited. Burst is the
// bucket capacity and defaults to Limit.
type Rule struct {
	Method string
	Path   string
	Limit  int
	Window time.Duration
	Burst  int
}

// DefaultRules guard manual run triggers strictly and reads leniently.
func DefaultRules() []Rule {
	return []Rule{
		{Method: "GET", Path: "/health", Limit: 0},
		{Method: "POST", Path: "/runs", Limit: 6, Window: time.Hour, Burst: 2},
		{Method: "GET", Path: "/", Limit: 600, Window: time.Minute},
	}
}

// Match returns the first rule for method and path: exact matches before
// prefix matches. Nil when nothing matches.
func Match(method, path string, rules []Rule) *Rule {
	for i := range rules {
		r := &rules[i]
		if r.Method == method && r.Path == path {
			return r
		}
	}
	for i := range rules {
		r := &rules[i]
		if r.Method == method && strings.HasSuffix(r.Path, "/") && strings.HasPrefix(path, r.Path) {
			return r
		}
	}
	return nil
}

// bucket is one client's limiter for one rule.
type bucket struct {
	lim      *rate.Limiter
	lastUsed time.Time
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Limiter manages one bucket per client and rule.
type Limiter struct {
	rules []Rule
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewLimiter creates a limiter. Requests matching no rule are allowed.
func NewLimiter(rules []Rule) *Limiter {
	return &Limiter{
		rules:   rules,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes a token for the client if one is available.
func (l *Limiter) Allow(clientID, method, path string) (bool, Info) {
	rule := Match(method, path, l.rules)
	if rule == nil || rule.Limit <= 0 || rule.Window <= 0 {
		return true, Info{Allowed: true}
	}

	now := l.now()
	key := clientID + " " + rule.Method + " " + rule.Path

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		burst := rule.Burst
		if burst <= 0 {
			burst = rule.Limit
		}
		b = &bucket{lim: rate.NewLimiter(rate.Limit(float64(rule.Limit)/rule.Window.Seconds()), burst)}
		l.buckets[key] = b
	}
	b.lastUsed = now

	allowed := b.lim.AllowN(now, 1)
	tokens := max(b.lim.TokensAt(now), 0)
	perSecond := float64(b.lim.Limit())

	info := Info{
		Allowed:   allowed,
		Limit:     rule.Limit,
		Remaining: int(tokens),
		ResetTime: now.Add(time.Duration((float64(b.lim.Burst()) - tokens) / perSecond * float64(time.Second))),
	}
	if !allowed {
		info.RetryAfter = time.Duration((1 - tokens) / perSecond * float64(time.Second))
	}
	return allowed, info
}

// Prune drops buckets unused for an hour and returns how many were removed.
func (l *Limiter) Prune() int {
	cutoff := l.now().Add(-idleBucketTTL)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}
