package budget

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrExhausted is matched by every *ExhaustedError.
var ErrExhausted = errors.New("daily request budget exhausted")

// ExhaustedError reports a refused request and when the budget resets.
type ExhaustedError struct {
	Provider string
	Used     int64
	Limit    int64
	ResetAt  time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted for %s: %d/%d requests used, resets at %s",
		e.Provider, e.Used, e.Limit, e.ResetAt.Format("15:04 UTC"))
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// Tracker counts upstream requests per UTC day. A zero limit means unlimited.
type Tracker struct {
	provider      string
	limit         int64
	resetHour     int
	warnThreshold float64

	mu        sync.Mutex
	used      int64
	lastReset time.Time
	now       func() time.Time
}

// NewTracker creates a tracker resetting at resetHour UTC. warnThreshold outside (0,1]
// defaults to 0.8.
func NewTracker(provider string, limit int64, resetHour int, warnThreshold float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnThreshold <= 0 || warnThreshold > 1 {
		warnThreshold = 0.8
	}
	t := &Tracker{
		provider:      provider,
		limit:         limit,
		resetHour:     resetHour,
		warnThreshold: warnThreshold,
		now:           time.Now,
	}
	t.lastReset = lastResetTime(t.now().UTC(), resetHour)
	return t
}

func lastResetTime(now time.Time, resetHour int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Hour() >= resetHour {
		return today
	}
	return today.AddDate(0, 0, -1)
}

// roll must be called with mu held.
func (t *Tracker) roll() {
	now := t.now().UTC()
	if !now.Before(t.lastReset.Add(24 * time.Hour)) {
		t.used = 0
		t.lastReset = lastResetTime(now, t.resetHour)
	}
}

// Consume records one request, or returns an *ExhaustedError without counting it.
func (t *Tracker) Consume() error {
	if t == nil || t.limit <= 0 {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	if t.used >= t.limit {
		return &ExhaustedError{
			Provider: t.provider,
			Used:     t.used,
			Limit:    t.limit,
			ResetAt:  t.lastReset.Add(24 * time.Hour),
		}
	}
	t.used++
	return nil
}

// Stats is a snapshot of a tracker.
type Stats struct {
	Provider    string    `json:"provider"`
	Limit       int64     `json:"limit"`
	Used        int64     `json:"used"`
	Remaining   int64     `json:"remaining"`
	Utilization float64   `json:"utilization"`
	NextReset   time.Time `json:"next_reset"`
	Warning     bool      `json:"warning"`
}

// Stats returns the current usage.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.roll()

	s := Stats{
		Provider:  t.provider,
		Limit:     t.limit,
		Used:      t.used,
		Remaining: t.limit - t.used,
		NextReset: t.lastReset.Add(24 * time.Hour),
	}
	if t.limit > 0 {
		s.Utilization = float64(t.used) / float64(t.limit)
		s.Warning = s.Utilization >= t.warnThreshold
	}
	return s
}

// Reset zeroes the counter.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.used = 0
	t.lastReset = lastResetTime(t.now().UTC(), t.resetHour)
}
