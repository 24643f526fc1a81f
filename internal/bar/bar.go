// Package bar defines the canonical record schema (spec §4.2) and the
// Frame it is carried in. Parsers from any source (archive file, live
// REST response) must produce this schema directly; both sources in this
// design already share the same positional row layout, so there is no
// foreign-to-canonical column mapping step to perform.
package bar

import (
	"fmt"
	"sort"
)

// Source tags which fetcher produced a record, used for provenance and for
// the CACHE > ARCHIVE > LIVE collision-priority rule in the merge step.
type Source string

const (
	SourceCache   Source = "CACHE"
	SourceArchive Source = "ARCHIVE"
	SourceLive    Source = "LIVE"
)

// priority ranks sources for dedup-collision resolution; higher wins.
var priority = map[Source]int{
	SourceCache:   3,
	SourceArchive: 2,
	SourceLive:    1,
}

// Priority returns the collision-resolution rank of a source: higher wins.
func Priority(s Source) int { return priority[s] }

// ChartType selects which schema/fetcher variant is in play.
type ChartType string

const (
	ChartKlines      ChartType = "KLINES"
	ChartFundingRate ChartType = "FUNDING_RATE"
)

// MarketType determines symbol normalization and endpoint family.
type MarketType string

const (
	MarketSpot         MarketType = "SPOT"
	MarketFuturesUSDT  MarketType = "FUTURES_USDT"
	MarketFuturesCoin  MarketType = "FUTURES_COIN"
)

// Bar is the canonical OHLCV record, indexed by OpenTimeUs.
type Bar struct {
	OpenTimeUs  int64 // UTC instant aligned to an interval boundary; primary key
	CloseTimeUs int64 // OpenTimeUs + interval - 1us

	Open                 float64
	High                 float64
	Low                  float64
	Close                float64
	Volume               float64
	QuoteVolume          float64
	TakerBuyVolume       float64
	TakerBuyQuoteVolume  float64
	Trades               uint64

	DataSource Source // provenance, optional in output
}

// FundingRecord is the schema variant dispatched when ChartType ==
// ChartFundingRate.
type FundingRecord struct {
	FundingTimeUs int64
	FundingRate   float64
	MarkPrice     *float64 // optional
	Symbol        string

	DataSource Source
}

// Frame is an ordered sequence of Bar, strictly monotonically increasing by
// OpenTimeUs, no duplicates, UTC throughout.
type Frame struct {
	ChartType ChartType
	Bars      []Bar
	Fundings  []FundingRecord
}

// EmptyFrame returns a schema-valid, zero-row Frame for the given chart
// type. Used for zero-duration windows and fully-gapped ranges so
// downstream code can always assume structure (spec §4.2, §8 scenario 6).
func EmptyFrame(ct ChartType) Frame {
	f := Frame{ChartType: ct}
	if ct == ChartKlines {
		f.Bars = []Bar{}
	} else {
		f.Fundings = []FundingRecord{}
	}
	return f
}

// Len returns the number of records regardless of chart type.
func (f Frame) Len() int {
	if f.ChartType == ChartFundingRate {
		return len(f.Fundings)
	}
	return len(f.Bars)
}

// SortByOpenTime sorts Bars (or Fundings) ascending by open/funding time in
// place.
func (f *Frame) SortByOpenTime() {
	if f.ChartType == ChartFundingRate {
		sort.Slice(f.Fundings, func(i, j int) bool {
			return f.Fundings[i].FundingTimeUs < f.Fundings[j].FundingTimeUs
		})
		return
	}
	sort.Slice(f.Bars, func(i, j int) bool {
		return f.Bars[i].OpenTimeUs < f.Bars[j].OpenTimeUs
	})
}

// DedupPreferPriority removes duplicate-keyed records, keeping the one with
// the highest Source priority (CACHE > ARCHIVE > LIVE) on collision. The
// Frame must already be sorted by SortByOpenTime.
func (f *Frame) DedupPreferPriority() {
	if f.ChartType == ChartFundingRate {
		f.Fundings = dedupFundings(f.Fundings)
		return
	}
	f.Bars = dedupBars(f.Bars)
}

func dedupBars(in []Bar) []Bar {
	if len(in) == 0 {
		return in
	}
	out := make([]Bar, 0, len(in))
	out = append(out, in[0])
	for _, b := range in[1:] {
		last := &out[len(out)-1]
		if b.OpenTimeUs == last.OpenTimeUs {
			if Priority(b.DataSource) > Priority(last.DataSource) {
				*last = b
			}
			continue
		}
		out = append(out, b)
	}
	return out
}

func dedupFundings(in []FundingRecord) []FundingRecord {
	if len(in) == 0 {
		return in
	}
	out := make([]FundingRecord, 0, len(in))
	out = append(out, in[0])
	for _, r := range in[1:] {
		last := &out[len(out)-1]
		if r.FundingTimeUs == last.FundingTimeUs {
			if Priority(r.DataSource) > Priority(last.DataSource) {
				*last = r
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// TrimToWindow filters the Frame to [t0,t1] inclusive on open/funding time,
// applied against the original (unaligned) user window per spec §4.8 step 8.
func (f *Frame) TrimToWindow(t0Us, t1Us int64) {
	if f.ChartType == ChartFundingRate {
		out := make([]FundingRecord, 0, len(f.Fundings))
		for _, r := range f.Fundings {
			if r.FundingTimeUs >= t0Us && r.FundingTimeUs <= t1Us {
				out = append(out, r)
			}
		}
		f.Fundings = out
		return
	}
	out := make([]Bar, 0, len(f.Bars))
	for _, b := range f.Bars {
		if b.OpenTimeUs >= t0Us && b.OpenTimeUs <= t1Us {
			out = append(out, b)
		}
	}
	f.Bars = out
}

// Validate enforces invariants I1-I4 (spec §3). ivUs and complete are
// only meaningful for KLINES frames; complete indicates the caller believes
// the region has no legitimate gaps, enabling the I4 consecutive-spacing
// check.
func Validate(f Frame, ivUs uint64, complete bool) error {
	if f.ChartType == ChartFundingRate {
		return validateFundings(f.Fundings)
	}
	return validateBars(f.Bars, ivUs, complete)
}

func validateBars(bars []Bar, ivUs uint64, complete bool) error {
	for i, b := range bars {
		if ivUs > 0 && b.OpenTimeUs%int64(ivUs) != 0 {
			return fmt.Errorf("bar: I2 violated at index %d: open_time %d not aligned to interval %d", i, b.OpenTimeUs, ivUs)
		}
		if ivUs > 0 && b.CloseTimeUs != b.OpenTimeUs+int64(ivUs)-1 {
			return fmt.Errorf("bar: I3 violated at index %d: close_time %d != open_time+iv-1", i, b.CloseTimeUs)
		}
		if i > 0 {
			prev := bars[i-1]
			if b.OpenTimeUs <= prev.OpenTimeUs {
				return fmt.Errorf("bar: I1 violated at index %d: open_time %d not strictly increasing after %d", i, b.OpenTimeUs, prev.OpenTimeUs)
			}
			if complete && ivUs > 0 && b.OpenTimeUs-prev.OpenTimeUs != int64(ivUs) {
				return fmt.Errorf("bar: I4 violated at index %d: gap of %d between consecutive bars in a region marked complete", i, b.OpenTimeUs-prev.OpenTimeUs)
			}
		}
	}
	return nil
}

func validateFundings(records []FundingRecord) error {
	for i := 1; i < len(records); i++ {
		if records[i].FundingTimeUs <= records[i-1].FundingTimeUs {
			return fmt.Errorf("bar: I1 violated at index %d: funding_time %d not strictly increasing after %d", i, records[i].FundingTimeUs, records[i-1].FundingTimeUs)
		}
	}
	return nil
}
