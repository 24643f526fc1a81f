package circuit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCallUnprotectedWithoutProvider(t *testing.T) {
	m := NewManager()
	err := m.Call(context.Background(), "unregistered", func(context.Context) error { return nil })
	require.NoError(t, err)
}

func TestCallOpensAfterConsecutiveFailures(t *testing.T) {
	m := NewManager()
	m.AddProvider("live", Config{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Minute})

	boom := errors.New("boom")
	fail := func(context.Context) error { return boom }

	require.ErrorIs(t, m.Call(context.Background(), "live", fail), boom)
	require.ErrorIs(t, m.Call(context.Background(), "live", fail), boom)

	err := m.Call(context.Background(), "live", func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	require.Equal(t, "open", m.State("live"))
}

func TestStateUnknownForUnregistered(t *testing.T) {
	m := NewManager()
	require.Equal(t, "unknown", m.State("nope"))
}

func TestGetUnhealthyProviders(t *testing.T) {
	m := NewManager()
	m.AddProvider("live", Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})
	_ = m.Call(context.Background(), "live", func(context.Context) error { return errors.New("x") })
	require.NotEmpty(t, m.GetUnhealthyProviders())
}
