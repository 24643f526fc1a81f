// Package circuit adapts the teacher's hand-rolled per-provider circuit
// breaker manager (internal/net/circuit/circuit.go: Breaker/Manager with
// AddProvider/GetBreaker/Call/Stats) onto the real third-party
// github.com/sony/gobreaker implementation, since a maintained ecosystem
// breaker is preferable to reimplementing the state machine by hand.
package circuit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a call is rejected because the breaker is
// open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a single provider's breaker.
type Config struct {
	FailureThreshold uint32        // consecutive failures to open the circuit
	SuccessThreshold uint32        // consecutive successes in half-open to close
	Timeout          time.Duration // time open before trying half-open
}

// Manager manages one gobreaker.CircuitBreaker per provider, mirroring the
// teacher's Manager API.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewManager creates an empty circuit breaker manager.
func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

// AddProvider registers a breaker for a provider under the given config.
func (m *Manager) AddProvider(name string, cfg Config) {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.SuccessThreshold,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakers[name] = gobreaker.NewCircuitBreaker(settings)
}

// Call executes fn through the named provider's breaker. If no breaker is
// registered for the provider, fn runs unprotected.
func (m *Manager) Call(ctx context.Context, provider string, fn func(ctx context.Context) error) error {
	m.mu.RLock()
	b, ok := m.breakers[provider]
	m.mu.RUnlock()
	if !ok {
		return fn(ctx)
	}
	_, err := b.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// State reports the current state of a provider's breaker as a string
// ("closed", "open", "half-open"), or "unknown" if unregistered.
func (m *Manager) State(provider string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.breakers[provider]
	if !ok {
		return "unknown"
	}
	switch b.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Stats returns counts for all registered providers, keyed by provider
// name.
func (m *Manager) Stats() map[string]gobreaker.Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]gobreaker.Counts, len(m.breakers))
	for name, b := range m.breakers {
		out[name] = b.Counts()
	}
	return out
}

// GetUnhealthyProviders returns providers whose breaker is not closed.
func (m *Manager) GetUnhealthyProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var unhealthy []string
	for name, b := range m.breakers {
		if b.State() != gobreaker.StateClosed {
			unhealthy = append(unhealthy, fmt.Sprintf("%s (state: %s)", name, m.State(name)))
		}
	}
	return unhealthy
}
