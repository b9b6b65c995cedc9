// Package quota enforces per-client request rates and daily document quotas.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

var (
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrDailyQuotaExceeded = errors.New("daily document quota exceeded")
)

// ExceededError reports a rejected request and when the client may retry.
type ExceededError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("%v, retry after %s", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *ExceededError) Unwrap() error { return e.Err }

// RetryAfter returns the wait carried by err, if it is an ExceededError.
func RetryAfter(err error) (time.Duration, bool) {
	var ex *ExceededError
	if errors.As(err, &ex) {
		return ex.RetryAfter, true
	}
	return 0, false
}

// Limits configures a Manager. Zero values disable the matching check.
type Limits struct {
	// RPS is the sustained request rate per client.
	RPS float64
	// Burst defaults to two seconds worth of RPS.
	Burst int
	// DailyDocuments caps document redactions per client per UTC day.
	DailyDocuments int
}

// DocumentCounter counts documents a client already redacted in [from, to).
// The audit store satisfies it, so quotas survive restarts.
type DocumentCounter interface {
	CountDocuments(ctx context.Context, clientID string, from, to time.Time) (int, error)
}

// idleTTL is how long a client's limiter survives without requests. A
// bucket idle this long has refilled, so dropping it loses nothing.
const idleTTL = 10 * time.Minute

// Manager applies Limits per client id.
type Manager struct {
	limits    Limits
	counter   DocumentCounter
	limiters  map[string]*limiterEntry
	daily     map[string]*dayCount
	idle      time.Duration
	lastSweep time.Time
	mu        sync.Mutex
	now       func() time.Time
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

type dayCount struct {
	day time.Time
	n   int
}

// NewManager creates a quota manager. counter may be nil, in which case
// daily counts are kept in memory.
func NewManager(limits Limits, counter DocumentCounter) *Manager {
	if limits.RPS > 0 && limits.Burst <= 0 {
		limits.Burst = int(limits.RPS * 2)
		if limits.Burst < 1 {
			limits.Burst = 1
		}
	}
	idle := idleTTL
	if limits.RPS > 0 {
		if full := time.Duration(float64(limits.Burst) / limits.RPS * float64(time.Second)); full > idle {
			idle = full
		}
	}
	return &Manager{
		limits:   limits,
		counter:  counter,
		limiters: make(map[string]*limiterEntry),
		daily:    make(map[string]*dayCount),
		idle:     idle,
		now:      time.Now,
	}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

// Allow takes one request token for clientID.
func (m *Manager) Allow(clientID string) error {
	if m.limits.RPS <= 0 {
		return nil
	}
	now := m.now()
	lim := m.limiter(clientID, now)
	if lim.AllowN(now, 1) {
		return nil
	}
	r := lim.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	if wait < time.Second {
		wait = time.Second
	}
	return &ExceededError{Err: ErrRateLimitExceeded, RetryAfter: wait}
}

// ConsumeDocument counts one document against clientID's daily quota. The
// slot is taken before the work starts so concurrent uploads cannot overrun
// the cap; call RefundDocument if the redaction then fails.
func (m *Manager) ConsumeDocument(ctx context.Context, clientID string) error {
	if m.limits.DailyDocuments <= 0 {
		return nil
	}
	now := m.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastSweep) >= m.idle {
		m.sweep(now)
	}
	dc, ok := m.daily[clientID]
	if !ok || !dc.day.Equal(dayStart) {
		dc = &dayCount{day: dayStart}
		if m.counter != nil {
			n, err := m.counter.CountDocuments(ctx, clientID, dayStart, dayEnd)
			if err != nil {
				return fmt.Errorf("counting documents: %w", err)
			}
			dc.n = n
		}
		m.daily[clientID] = dc
	}
	if dc.n >= m.limits.DailyDocuments {
		return &ExceededError{Err: ErrDailyQuotaExceeded, RetryAfter: dayEnd.Sub(now)}
	}
	dc.n++
	return nil
}

// RefundDocument returns a slot taken by ConsumeDocument today.
func (m *Manager) RefundDocument(clientID string) {
	if m.limits.DailyDocuments <= 0 {
		return
	}
	now := m.now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	m.mu.Lock()
	defer m.mu.Unlock()
	if dc, ok := m.daily[clientID]; ok && dc.day.Equal(dayStart) && dc.n > 0 {
		dc.n--
	}
}

func (m *Manager) limiter(clientID string, now time.Time) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Sub(m.lastSweep) >= m.idle {
		m.sweep(now)
	}
	e, ok := m.limiters[clientID]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(rate.Limit(m.limits.RPS), m.limits.Burst)}
		m.limiters[clientID] = e
	}
	e.seen = now
	return e.lim
}

// sweep drops idle limiters and day counts from earlier days. Callers hold mu.
func (m *Manager) sweep(now time.Time) {
	m.lastSweep = now
	for id, e := range m.limiters {
		if now.Sub(e.seen) >= m.idle {
			delete(m.limiters, id)
		}
	}
	u := now.UTC()
	today := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	for id, dc := range m.daily {
		if dc.day.Before(today) {
			delete(m.daily, id)
		}
	}
}
