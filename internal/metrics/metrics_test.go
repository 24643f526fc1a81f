package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegisterDoesNotPanicOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NotPanics(t, func() { Register(reg) })
}

func TestCircuitStateValueMapping(t *testing.T) {
	require.Equal(t, float64(0), CircuitStateValue("closed"))
	require.Equal(t, float64(1), CircuitStateValue("half-open"))
	require.Equal(t, float64(2), CircuitStateValue("open"))
	require.Equal(t, float64(0), CircuitStateValue("unknown"))
}
