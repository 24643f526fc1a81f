package client

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terrylica/data-source-manager-sub003/internal/netutil/budget"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/circuit"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/ratelimit"
)

func TestWrapperPassesThroughSuccessfulRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{Provider: "live", Host: srv.Listener.Addr().String(), RequestTimeout: time.Second})
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWrapperRejectsWhenBudgetExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	budgetMgr := budget.NewManager()
	budgetMgr.AddProvider("live", 0, 0, 0.8) // zero daily budget

	c := NewClient(Config{Provider: "live", Host: srv.Listener.Addr().String(), RequestTimeout: time.Second, BudgetTracker: budgetMgr})
	_, err := c.Get(srv.URL)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "budget", perr.Type)
}

func TestWrapperMapsServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cbMgr := circuit.NewManager()
	cbMgr.AddProvider("live", circuit.Config{FailureThreshold: 100, SuccessThreshold: 1, Timeout: time.Minute})

	c := NewClient(Config{Provider: "live", Host: srv.Listener.Addr().String(), RequestTimeout: time.Second, CircuitBreaker: cbMgr})
	_, err := c.Get(srv.URL)
	require.Error(t, err)
	var perr *Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "http_error", perr.Type)
}

func TestWrapperWaitsOnRateLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rlMgr := ratelimit.NewManager()
	rlMgr.AddProvider("live", 1000, 5)

	c := NewClient(Config{Provider: "live", Host: srv.Listener.Addr().String(), RequestTimeout: time.Second, RateLimiter: rlMgr})
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
