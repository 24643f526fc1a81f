package config

import (
	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
)

// Capability records whether a given (provider, market type, chart type,
// interval) combination is supported by the archive and/or the live
// endpoint, generalizing the teacher's per-provider HasCapability switch
// (src/infrastructure/providers/binance.go) and the original's
// _should_use_vision_api check into an explicit, inspectable table
// (SPEC_FULL.md §3 supplement).
type Capability struct {
	ArchiveSupported bool
	LiveSupported    bool
}

// Key identifies one entry in the capability table.
type Key struct {
	MarketType bar.MarketType
	ChartType  bar.ChartType
	Interval   timeutil.Interval
}

// CapabilityTable maps a Key to its support matrix.
type CapabilityTable map[Key]Capability

// DefaultCapabilityTable returns the table's default contents: for SPOT
// and the two futures market types, every KLINES interval from 1m to 1w is
// both archive- and live-supported; 1s is live-supported for SPOT only and
// never archive-supported (the archive never publishes sub-minute files,
// matching spec §4.7's explicit 1s/SPOT/LIVE-only rule). 1M is not listed,
// so it looks up as supported nowhere.
func DefaultCapabilityTable() CapabilityTable {
	t := make(CapabilityTable)
	intervals := []timeutil.Interval{
		timeutil.Interval1m, timeutil.Interval3m, timeutil.Interval5m,
		timeutil.Interval15m, timeutil.Interval30m, timeutil.Interval1h,
		timeutil.Interval2h, timeutil.Interval4h, timeutil.Interval6h,
		timeutil.Interval8h, timeutil.Interval12h, timeutil.Interval1d,
		timeutil.Interval3d, timeutil.Interval1w,
	}
	markets := []bar.MarketType{bar.MarketSpot, bar.MarketFuturesUSDT, bar.MarketFuturesCoin}
	for _, m := range markets {
		for _, iv := range intervals {
			t[Key{MarketType: m, ChartType: bar.ChartKlines, Interval: iv}] = Capability{ArchiveSupported: true, LiveSupported: true}
		}
		// 1s: live-only, and only for SPOT per spec §4.7.
		t[Key{MarketType: m, ChartType: bar.ChartKlines, Interval: timeutil.Interval1s}] = Capability{
			ArchiveSupported: false,
			LiveSupported:    m == bar.MarketSpot,
		}
		// FUNDING_RATE has no archive variant in this design: funding history
		// is always served live (internal/funding.Fetcher has no archive
		// counterpart), so it is capability-gated to LIVE only.
		t[Key{MarketType: m, ChartType: bar.ChartFundingRate, Interval: ""}] = Capability{ArchiveSupported: false, LiveSupported: true}
	}
	return t
}

// Lookup returns the capability for a key, defaulting to "supported
// nowhere" for unlisted combinations so an unknown combination surfaces as
// InvalidInput rather than silently routing.
func (t CapabilityTable) Lookup(k Key) Capability {
	if c, ok := t[k]; ok {
		return c
	}
	return Capability{}
}
