// Package budget tracks daily request budgets per provider, adapted from
// the teacher's internal/net/budget/budget.go. Used by the Live Fetcher's
// transport wrapper to fail fast before a rate-limited request would push
// a provider over its configured daily request allowance.
package budget

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ExhaustedError is returned once the daily limit has been reached.
type ExhaustedError struct {
	Provider string
	Used     int64
	Limit    int64
	ETA      time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("budget exhausted for %s: %d/%d requests used, resets at %s",
		e.Provider, e.Used, e.Limit, e.ETA.Format("15:04 UTC"))
}

// WarningError is returned once usage crosses the warn threshold but before
// the hard limit.
type WarningError struct {
	Provider  string
	Used      int64
	Limit     int64
	Threshold float64
}

func (e *WarningError) Error() string {
	utilization := float64(e.Used) / float64(e.Limit) * 100
	return fmt.Sprintf("budget warning for %s: %.1f%% used (%d/%d), threshold %.1f%%",
		e.Provider, utilization, e.Used, e.Limit, e.Threshold*100)
}

// Tracker tracks daily usage for a single provider, resetting at a
// configured UTC hour.
type Tracker struct {
	provider      string
	limit         int64
	used          int64 // atomic
	resetHour     int
	warnThreshold float64
	mu            sync.RWMutex
	lastReset     time.Time
}

// NewTracker creates a budget tracker for provider with the given daily
// limit, UTC reset hour (0-23), and warn threshold (0,1].
func NewTracker(provider string, limit int64, resetHour int, warnThreshold float64) *Tracker {
	if resetHour < 0 || resetHour > 23 {
		resetHour = 0
	}
	if warnThreshold <= 0 || warnThreshold > 1 {
		warnThreshold = 0.8
	}
	return &Tracker{
		provider:      provider,
		limit:         limit,
		resetHour:     resetHour,
		warnThreshold: warnThreshold,
		lastReset:     lastResetTime(time.Now().UTC(), resetHour),
	}
}

func lastResetTime(now time.Time, resetHour int) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), resetHour, 0, 0, 0, time.UTC)
	if now.Hour() >= resetHour {
		return today
	}
	return today.AddDate(0, 0, -1)
}

func (t *Tracker) nextReset() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastReset.Add(24 * time.Hour)
}

func (t *Tracker) resetIfDue() {
	now := time.Now().UTC()
	if now.After(t.nextReset()) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if now.After(t.lastReset.Add(24 * time.Hour)) {
			atomic.StoreInt64(&t.used, 0)
			t.lastReset = lastResetTime(now, t.resetHour)
		}
	}
}

// Allow checks whether a request is currently permitted without consuming
// budget.
func (t *Tracker) Allow() error {
	t.resetIfDue()
	used := atomic.LoadInt64(&t.used)
	if used >= t.limit {
		return &ExhaustedError{Provider: t.provider, Used: used, Limit: t.limit, ETA: t.nextReset()}
	}
	if float64(used)/float64(t.limit) >= t.warnThreshold {
		return &WarningError{Provider: t.provider, Used: used, Limit: t.limit, Threshold: t.warnThreshold}
	}
	return nil
}

// Consume increments usage by one, returning ExhaustedError if the limit is
// now exceeded (the increment is reverted) or WarningError if the
// threshold is crossed (the increment stands).
func (t *Tracker) Consume() error {
	t.resetIfDue()
	used := atomic.AddInt64(&t.used, 1)
	if used > t.limit {
		atomic.AddInt64(&t.used, -1)
		return &ExhaustedError{Provider: t.provider, Used: used - 1, Limit: t.limit, ETA: t.nextReset()}
	}
	if float64(used)/float64(t.limit) >= t.warnThreshold {
		return &WarningError{Provider: t.provider, Used: used, Limit: t.limit, Threshold: t.warnThreshold}
	}
	return nil
}

// Stats reports current usage.
type Stats struct {
	Used            int64
	Limit           int64
	UtilizationRate float64
	IsWarning       bool
	IsExhausted     bool
	NextReset       time.Time
}

// Stats returns a snapshot of current usage.
func (t *Tracker) Stats() Stats {
	t.resetIfDue()
	used := atomic.LoadInt64(&t.used)
	rate := float64(used) / float64(t.limit)
	return Stats{
		Used: used, Limit: t.limit, UtilizationRate: rate,
		IsWarning: rate >= t.warnThreshold, IsExhausted: used >= t.limit,
		NextReset: t.nextReset(),
	}
}

// Manager manages one Tracker per provider.
type Manager struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
}

// NewManager creates an empty budget manager.
func NewManager() *Manager {
	return &Manager{trackers: make(map[string]*Tracker)}
}

// AddProvider registers a tracker for a provider.
func (m *Manager) AddProvider(name string, limit int64, resetHour int, warnThreshold float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[name] = NewTracker(name, limit, resetHour, warnThreshold)
}

// GetTracker returns the tracker for a provider, if registered.
func (m *Manager) GetTracker(provider string) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[provider]
	return t, ok
}

// Allow delegates to the named provider's tracker; providers with no
// tracker registered are always allowed.
func (m *Manager) Allow(provider string) error {
	t, ok := m.GetTracker(provider)
	if !ok {
		return nil
	}
	return t.Allow()
}

// Consume delegates to the named provider's tracker; providers with no
// tracker registered consume nothing.
func (m *Manager) Consume(provider string) error {
	t, ok := m.GetTracker(provider)
	if !ok {
		return nil
	}
	return t.Consume()
}
