package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
)

func rawRow(openMs int64) []any {
	return []any{openMs, "100", "105", "95", "102", "10", openMs + 59999, "1000", 5, "4", "400"}
}

func TestFetchDropsIncompleteFinalBar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		rows := [][]any{
			rawRow(timeutil.ToMicros(now.Add(-2*time.Minute)) / 1000),
			rawRow(timeutil.ToMicros(now) / 1000), // current, still-forming bar
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	f := NewFetcher(Config{BaseURL: srv.URL, MaxConcurrent: 2, RestMaxChunks: 5, ChunkSize: 10, RetryCount: 1, RequestTimeout: 2 * time.Second}, srv.Client())
	a0, a1 := timeutil.AlignWindow(timeutil.ToMicros(time.Now().Add(-2*time.Minute)), timeutil.ToMicros(time.Now()), mustIvUs(t))

	frame, err := f.Fetch(context.Background(), bar.MarketSpot, "BTCUSDT", timeutil.Interval1m, a0, a1)
	require.NoError(t, err)
	require.Len(t, frame.Bars, 1)
	require.Equal(t, bar.SourceLive, frame.Bars[0].DataSource)
}

func TestFetchRejectsRangeExceedingMaxChunks(t *testing.T) {
	f := NewFetcher(Config{BaseURL: "http://unused.invalid", MaxConcurrent: 2, RestMaxChunks: 1, ChunkSize: 10, RetryCount: 1}, http.DefaultClient)
	_, err := f.Fetch(context.Background(), bar.MarketSpot, "BTCUSDT", timeutil.Interval1m, 0, int64(1000)*60_000_000)
	require.Error(t, err)
}

func mustIvUs(t *testing.T) uint64 {
	us, err := timeutil.IntervalMicros(timeutil.Interval1m)
	require.NoError(t, err)
	return us
}
