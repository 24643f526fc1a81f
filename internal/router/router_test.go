package router

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/config"
	"github.com/terrylica/data-source-manager-sub003/internal/errorsx"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
)

func TestRouteUnsupportedCombinationIsInvalidInput(t *testing.T) {
	caps := config.CapabilityTable{} // empty: nothing supported anywhere
	_, err := Route(0, 1, bar.MarketSpot, bar.ChartKlines, timeutil.Interval1m, time.Now(), caps, 48*time.Hour, 10, 1000)
	require.Error(t, err)
	require.True(t, errorsx.Is(err, errorsx.InvalidInput))
}

func TestRouteArchiveOnlyCombination(t *testing.T) {
	caps := config.CapabilityTable{
		config.Key{MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Interval: timeutil.Interval1d}: {ArchiveSupported: true},
	}
	d, err := Route(0, 1, bar.MarketSpot, bar.ChartKlines, timeutil.Interval1d, time.Now(), caps, 48*time.Hour, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, DecisionArchive, d)
}

func TestRouteLiveOnlyCombination(t *testing.T) {
	caps := config.CapabilityTable{
		config.Key{MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Interval: timeutil.Interval1s}: {LiveSupported: true},
	}
	d, err := Route(0, 1, bar.MarketSpot, bar.ChartKlines, timeutil.Interval1s, time.Now(), caps, 48*time.Hour, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, DecisionLive, d)
}

func TestRouteAgeBasedDecision(t *testing.T) {
	caps := config.CapabilityTable{
		config.Key{MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Interval: timeutil.Interval1h}: {ArchiveSupported: true, LiveSupported: true},
	}
	now := time.Now()
	lag := 48 * time.Hour

	oldSegEnd := timeutil.ToMicros(now.Add(-72 * time.Hour))
	d, err := Route(oldSegEnd-1, oldSegEnd, bar.MarketSpot, bar.ChartKlines, timeutil.Interval1h, now, caps, lag, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, DecisionArchive, d)

	recentSegEnd := timeutil.ToMicros(now.Add(-time.Hour))
	d2, err := Route(recentSegEnd-1, recentSegEnd, bar.MarketSpot, bar.ChartKlines, timeutil.Interval1h, now, caps, lag, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, DecisionLive, d2)
}

func TestRouteOversizedSegmentRoutesToArchiveDespiteRecency(t *testing.T) {
	caps := config.CapabilityTable{
		config.Key{MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Interval: timeutil.Interval1m}: {ArchiveSupported: true, LiveSupported: true},
	}
	now := time.Now()
	lag := 48 * time.Hour

	// A recent 2000-bar segment would decide LIVE on age alone, but at
	// restMaxChunks=1, chunkSize=1000 the Live Fetcher can only ever serve
	// 1000 bars per call, so it must route to ARCHIVE instead.
	ivUs, err := timeutil.IntervalMicros(timeutil.Interval1m)
	require.NoError(t, err)
	segEnd := timeutil.ToMicros(now.Add(-time.Hour))
	segStart := segEnd - int64(1999)*int64(ivUs)

	d, err := Route(segStart, segEnd, bar.MarketSpot, bar.ChartKlines, timeutil.Interval1m, now, caps, lag, 1, 1000)
	require.NoError(t, err)
	require.Equal(t, DecisionArchive, d)

	// The same segment with enough chunk budget still routes LIVE by age.
	d2, err := Route(segStart, segEnd, bar.MarketSpot, bar.ChartKlines, timeutil.Interval1m, now, caps, lag, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, DecisionLive, d2)
}

func TestFallbackOnlyLiveDegradesToArchive(t *testing.T) {
	d, ok := Fallback(DecisionLive)
	require.True(t, ok)
	require.Equal(t, DecisionArchive, d)

	_, ok2 := Fallback(DecisionArchive)
	require.False(t, ok2)
}
