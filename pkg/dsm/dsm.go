// Package dsm is the small public facade re-exporting the FCP
// Orchestrator's Get operation and supporting types for callers outside
// this module (and for cmd/dsm), mirroring the teacher's own thin
// cmd-facing packages that sit in front of the internal/ implementation.
package dsm

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terrylica/data-source-manager-sub003/internal/archive"
	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/cache"
	"github.com/terrylica/data-source-manager-sub003/internal/config"
	"github.com/terrylica/data-source-manager-sub003/internal/fcp"
	"github.com/terrylica/data-source-manager-sub003/internal/funding"
	"github.com/terrylica/data-source-manager-sub003/internal/live"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/budget"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/circuit"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/client"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/ratelimit"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
)

// Re-exported types so callers need only import pkg/dsm.
type (
	MarketType = bar.MarketType
	ChartType  = bar.ChartType
	Interval   = timeutil.Interval
	Frame      = bar.Frame
	Request    = fcp.Request
	Provenance = fcp.Provenance
	GapRecord  = fcp.GapRecord
)

const (
	MarketSpot        = bar.MarketSpot
	MarketFuturesUSDT = bar.MarketFuturesUSDT
	MarketFuturesCoin = bar.MarketFuturesCoin

	ChartKlines      = bar.ChartKlines
	ChartFundingRate = bar.ChartFundingRate
)

// Manager owns the fully wired Orchestrator and the Cache Store used for
// the supplemental validate/repair operations.
type Manager struct {
	orch  *fcp.Orchestrator
	cache *cache.Store
}

// New builds a Manager from a loaded Config, wiring the cache store,
// netutil transport stack (rate limit + circuit breaker + budget), and
// every fetcher, exactly as cmd/dsm's bootstrap does.
func New(cfg config.Config) *Manager {
	caps := config.DefaultCapabilityTable()
	cacheStore := cache.NewStore(cfg.Cache.RootPath, time.Duration(cfg.Cache.ExpiryMinutesRecent)*time.Minute)
	if cfg.Cache.RedisAddr != "" {
		cacheStore.SetRedis(redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr}))
	}

	rlMgr := ratelimit.NewManager()
	rlMgr.AddProvider("live", cfg.Live.RPS, cfg.Live.Burst)
	cbMgr := circuit.NewManager()
	cbMgr.AddProvider("live", circuit.Config{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second})
	budgetMgr := budget.NewManager()
	budgetMgr.AddProvider("live", cfg.Live.DailyBudget, 0, 0.8)

	liveClient := client.NewClient(client.Config{
		Provider: "live", Host: cfg.Live.Host, RequestTimeout: cfg.Live.RequestTimeout,
		RateLimiter: rlMgr, CircuitBreaker: cbMgr, BudgetTracker: budgetMgr,
	})

	archiveFetcher := archive.NewFetcher(archive.Config{
		BaseURL: cfg.Archive.BaseURL, MaxConcurrent: cfg.Archive.MaxConcurrent,
		RetryCount: cfg.Archive.RetryCount, RequestTimeout: cfg.Archive.RequestTimeout,
		Compression: archive.Compression(cfg.Archive.Compression),
	}, http.DefaultClient)

	liveFetcher := live.NewFetcher(live.Config{
		BaseURL: cfg.Live.BaseURL, MaxConcurrent: cfg.Live.MaxConcurrent,
		RestMaxChunks: cfg.Live.RestMaxChunks, ChunkSize: cfg.Live.ChunkSize,
		RetryCount: cfg.Live.RetryCount, RequestTimeout: cfg.Live.RequestTimeout,
	}, liveClient)

	fundingFetcher := funding.NewFetcher(funding.Config{
		BaseURL: cfg.Funding.BaseURL, RetryCount: cfg.Live.RetryCount, RequestTimeout: cfg.Live.RequestTimeout,
	}, liveClient)

	orch := fcp.NewOrchestrator(cfg, caps, cacheStore, archiveFetcher, liveFetcher, fundingFetcher)
	return &Manager{orch: orch, cache: cacheStore}
}

// Get is the public entry point, delegating straight to the Orchestrator.
func (m *Manager) Get(ctx context.Context, req Request) (Frame, Provenance, error) {
	return m.orch.Get(ctx, req)
}

// ValidateCache runs the Cache Store's integrity sweep.
func (m *Manager) ValidateCache(ctx context.Context) (cache.Report, error) {
	return m.cache.Validate(ctx)
}

// RepairCache drops corrupt/missing cache entries so they refetch cleanly.
func (m *Manager) RepairCache(ctx context.Context) (cache.Report, error) {
	return m.cache.Repair(ctx)
}

// CacheStats reports aggregate counts over the cache's current holdings,
// backing the `dsm cache stats` CLI subcommand.
func (m *Manager) CacheStats(ctx context.Context) (cache.Stats, error) {
	return m.cache.Stats(ctx)
}
