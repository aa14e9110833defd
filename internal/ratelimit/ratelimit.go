// Package ratelimit implements the per-client request budget used by the
// WebSocket transport: a fixed one-minute window keyed by client identity.
package ratelimit

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultWindow is the length of one rate limit window.
const DefaultWindow = time.Minute

// Window holds the counters of one client identity.
type Window struct {
	Count   int
	ResetAt time.Time
}

// Limiter tracks a request budget per identity.
//
// Windows are created lazily and never removed, so the table grows with the
// number of distinct identities seen during the limiter's lifetime.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	clock   clock.PassiveClock
	windows map[string]*Window
}

// New returns a Limiter allowing limit requests per identity per minute.
// A limit <= 0 disables limiting. A nil clock uses the real clock.
func New(limit int, clk clock.PassiveClock) *Limiter {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Limiter{
		limit:   limit,
		window:  DefaultWindow,
		clock:   clk,
		windows: make(map[string]*Window),
	}
}

// Limit returns the configured per-window budget.
func (l *Limiter) Limit() int {
	return l.limit
}

// Enabled reports whether requests can be rejected at all.
func (l *Limiter) Enabled() bool {
	return l.limit > 0
}

// Allow records one request from identity and reports whether it fits in the
// current window. A rejected request does not count against the budget.
func (l *Limiter) Allow(identity string) bool {
	if !l.Enabled() {
		return true
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok || !now.Before(w.ResetAt) {
		l.windows[identity] = &Window{Count: 1, ResetAt: now.Add(l.window)}
		return true
	}

	if w.Count >= l.limit {
		return false
	}
	w.Count++
	return true
}

// Window returns a copy of the window for identity.
func (l *Limiter) Window(identity string) (Window, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identity]
	if !ok {
		return Window{}, false
	}
	return *w, true
}

// Tracked returns the number of identities with a window.
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// HotClients returns how many identities have used more than half their budget.
// Expired windows still count with their last value until they are reset by
// the next request, matching what a client would see.
func (l *Limiter) HotClients() int {
	if !l.Enabled() {
		return 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	hot := 0
	for _, w := range l.windows {
		if w.Count*2 > l.limit {
			hot++
		}
	}
	return hot
}
