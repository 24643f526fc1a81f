package fcp

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/terrylica/data-source-manager-sub003/internal/archive"
	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/cache"
	"github.com/terrylica/data-source-manager-sub003/internal/config"
	"github.com/terrylica/data-source-manager-sub003/internal/funding"
	"github.com/terrylica/data-source-manager-sub003/internal/live"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
)

func csvRow(openMs int64) string {
	return fmt.Sprintf("%d,100,105,95,102,10,%d,1000,5,4,400\n", openMs, openMs+59999)
}

// newTestOrchestrator wires an Orchestrator against fake archive/live HTTP
// backends and a temp-dir cache, mirroring pkg/dsm.New's component wiring.
func newTestOrchestrator(t *testing.T, archiveURL, liveURL string) *Orchestrator {
	t.Helper()
	dir := t.TempDir()
	store := cache.NewStore(dir, 0)

	archiveFetcher := archive.NewFetcher(archive.Config{
		BaseURL: archiveURL, MaxConcurrent: 2, RetryCount: 1, RequestTimeout: 2 * time.Second,
	}, http.DefaultClient)
	liveFetcher := live.NewFetcher(live.Config{
		BaseURL: liveURL, MaxConcurrent: 2, RestMaxChunks: 50, ChunkSize: 2000, RetryCount: 1, RequestTimeout: 2 * time.Second,
	}, http.DefaultClient)
	fundingFetcher := funding.NewFetcher(funding.Config{
		BaseURL: liveURL, RetryCount: 1, RequestTimeout: 2 * time.Second,
	}, http.DefaultClient)

	cfg := config.Default()
	cfg.Archive.MaxConcurrent = 2
	cfg.Live.MaxConcurrent = 2
	cfg.Router.ArchivePublishLagHours = 48

	return NewOrchestrator(cfg, config.DefaultCapabilityTable(), store, archiveFetcher, liveFetcher, fundingFetcher)
}

func oldWindow() (int64, int64) {
	end := timeutil.ToMicros(time.Now().Add(-72 * time.Hour))
	start := end - int64(59*time.Minute/time.Microsecond)
	return start, end
}

func TestGetFullCacheMissRoutesToArchive(t *testing.T) {
	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer archiveSrv.Close()

	liveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer liveSrv.Close()

	o := newTestOrchestrator(t, archiveSrv.URL, liveSrv.URL)
	start, end := oldWindow()

	frame, prov, err := o.Get(context.Background(), Request{
		MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Symbol: "BTCUSDT",
		Interval: timeutil.Interval1m, StartUs: start, EndUs: end,
	})
	require.NoError(t, err)
	require.False(t, prov.Complete)
	require.NotEmpty(t, prov.Gaps)
	require.Equal(t, 0, frame.Len())
	require.Greater(t, prov.Stats.Misses, 0)
	require.Equal(t, 0, prov.Stats.Errors) // an unpublished archive day is a gap, not a fetch error
}

func TestGetLiveFailureFallsBackToArchive(t *testing.T) {
	now := time.Now()
	liveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer liveSrv.Close()

	archiveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gz := gzip.NewWriter(w)
		defer gz.Close()
		_, _ = gz.Write([]byte(csvRow(timeutil.ToMicros(now) / 1000)))
	}))
	defer archiveSrv.Close()

	o := newTestOrchestrator(t, archiveSrv.URL, liveSrv.URL)
	start := timeutil.ToMicros(now.Add(-1 * time.Minute))
	end := timeutil.ToMicros(now)

	frame, _, err := o.Get(context.Background(), Request{
		MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Symbol: "BTCUSDT",
		Interval: timeutil.Interval1m, StartUs: start, EndUs: end,
	})
	require.NoError(t, err)
	require.NotEmpty(t, frame.Bars)
	require.Equal(t, bar.SourceArchive, frame.Bars[0].DataSource)
}

func TestGetFundingPathAlwaysLive(t *testing.T) {
	liveSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := []struct {
			FundingTime string `json:"fundingTime"`
			FundingRate string `json:"fundingRate"`
			MarkPrice   string `json:"markPrice"`
		}{
			{FundingTime: fmt.Sprintf("%d", timeutil.ToMicros(time.Now().Add(-96*time.Hour))/1000), FundingRate: "0.0001", MarkPrice: "42000"},
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer liveSrv.Close()

	o := newTestOrchestrator(t, "http://unused.invalid", liveSrv.URL)
	start := timeutil.ToMicros(time.Now().Add(-97 * time.Hour))
	end := timeutil.ToMicros(time.Now().Add(-95 * time.Hour))

	frame, prov, err := o.Get(context.Background(), Request{
		MarketType: bar.MarketFuturesUSDT, ChartType: bar.ChartFundingRate, Symbol: "BTCUSDT",
		StartUs: start, EndUs: end,
	})
	require.NoError(t, err)
	require.True(t, prov.Complete)
	require.Len(t, frame.Fundings, 1)
}

func TestGetRejectsStartAfterEnd(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid", "http://unused.invalid")
	_, _, err := o.Get(context.Background(), Request{
		MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Symbol: "BTCUSDT",
		Interval: timeutil.Interval1m, StartUs: 100, EndUs: 0,
	})
	require.Error(t, err)
}

func TestGetRejectsZeroDurationWindow(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid", "http://unused.invalid")
	frame, _, err := o.Get(context.Background(), Request{
		MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Symbol: "BTCUSDT",
		Interval: timeutil.Interval1m, StartUs: 100, EndUs: 100,
	})
	require.Error(t, err)
	require.Equal(t, 0, frame.Len())
}

func TestGetRejectsEmptySymbol(t *testing.T) {
	o := newTestOrchestrator(t, "http://unused.invalid", "http://unused.invalid")
	_, _, err := o.Get(context.Background(), Request{
		MarketType: bar.MarketSpot, ChartType: bar.ChartKlines, Symbol: "",
		Interval: timeutil.Interval1m, StartUs: 0, EndUs: 60_000_000,
	})
	require.Error(t, err)
}
