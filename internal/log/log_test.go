package log

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func withCapturedLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })
	return &buf
}

func TestFetchTimeoutEmitsStructuredFields(t *testing.T) {
	buf := withCapturedLogger(t)
	FetchTimeout("BTCUSDT", "1m", "live", 1000, 2000, 3*time.Second, 2)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	require.Equal(t, "BTCUSDT", fields["symbol"])
	require.Equal(t, "live", fields["source"])
	require.Equal(t, float64(2), fields["attempt"])
}

func TestGapEmitsStructuredFields(t *testing.T) {
	buf := withCapturedLogger(t)
	Gap("ETHUSDT", "5m", 1000, 2000, 7)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &fields))
	require.Equal(t, "ETHUSDT", fields["symbol"])
	require.Equal(t, float64(7), fields["missing"])
}
