// Package client composes budget, rate-limit, and circuit-breaker
// middleware around an http.RoundTripper, adapted directly from the
// teacher's internal/net/client/wrap.go Wrapper/Manager. This is the
// transport the Live and Funding fetchers build their *http.Client on.
package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/terrylica/data-source-manager-sub003/internal/netutil/budget"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/circuit"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/ratelimit"
)

// Config configures a single provider's wrapped transport.
type Config struct {
	Provider       string
	Host           string
	RequestTimeout time.Duration
	RateLimiter    *ratelimit.Manager
	CircuitBreaker *circuit.Manager
	BudgetTracker  *budget.Manager
}

// Wrapper implements http.RoundTripper, gating every request through
// budget -> rate limit -> circuit breaker -> the real transport, in that
// order (budget is checked before rate limiting so an exhausted provider
// fails fast without first queuing on the limiter).
type Wrapper struct {
	cfg       Config
	transport http.RoundTripper
	userAgent string
}

// NewWrapper wraps transport (http.DefaultTransport if nil) with the
// configured middleware stack.
func NewWrapper(cfg Config, transport http.RoundTripper) *Wrapper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Wrapper{cfg: cfg, transport: transport, userAgent: "data-source-manager/1.0"}
}

// RoundTrip implements http.RoundTripper.
func (w *Wrapper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	if w.cfg.BudgetTracker != nil {
		if err := w.cfg.BudgetTracker.Allow(w.cfg.Provider); err != nil {
			if _, exhausted := err.(*budget.ExhaustedError); exhausted {
				return nil, &Error{Provider: w.cfg.Provider, Type: "budget", Err: err}
			}
		}
	}

	if w.cfg.RateLimiter != nil {
		if err := w.cfg.RateLimiter.Wait(req.Context(), w.cfg.Provider, w.cfg.Host); err != nil {
			return nil, &Error{Provider: w.cfg.Provider, Type: "rate_limit", Err: fmt.Errorf("rate limit wait failed: %w", err)}
		}
	}

	var resp *http.Response
	execute := func(ctx context.Context) error {
		if w.cfg.BudgetTracker != nil {
			if err := w.cfg.BudgetTracker.Consume(w.cfg.Provider); err != nil {
				if _, exhausted := err.(*budget.ExhaustedError); exhausted {
					return &Error{Provider: w.cfg.Provider, Type: "budget", Err: err}
				}
			}
		}
		var err error
		resp, err = w.transport.RoundTrip(req.WithContext(ctx))
		if err != nil {
			return &Error{Provider: w.cfg.Provider, Type: "transport", Err: err}
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			return &Error{Provider: w.cfg.Provider, Type: "rate_limit", StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP 429"), RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			return &Error{Provider: w.cfg.Provider, Type: "http_error", StatusCode: resp.StatusCode, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
		}
		return nil
	}

	var err error
	if w.cfg.CircuitBreaker != nil {
		err = w.cfg.CircuitBreaker.Call(req.Context(), w.cfg.Provider, execute)
	} else {
		err = execute(req.Context())
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := time.ParseDuration(header + "s"); err == nil {
		return secs
	}
	return 0
}

// Error represents a transport-level error with provider context, adapted
// from the teacher's ProviderError.
type Error struct {
	Provider   string
	Type       string // "rate_limit", "budget", "circuit", "transport", "http_error"
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s %s error (HTTP %d): %v", e.Provider, e.Type, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("provider %s %s error: %v", e.Provider, e.Type, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRateLimited reports whether err is a rate-limit transport error.
func (e *Error) IsRateLimited() bool { return e.Type == "rate_limit" }

// IsCircuitOpen reports whether err is a circuit-open transport error.
func (e *Error) IsCircuitOpen() bool { return e.Type == "circuit" || e.Err == circuit.ErrCircuitOpen }

// NewClient builds an *http.Client with the wrapped transport and the
// provider's configured per-request timeout.
func NewClient(cfg Config) *http.Client {
	return &http.Client{Transport: NewWrapper(cfg, http.DefaultTransport), Timeout: cfg.RequestTimeout}
}
