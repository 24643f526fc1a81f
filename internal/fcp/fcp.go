// Package fcp implements the FCP Orchestrator (spec §4.8): the central
// get() operation that aligns the requested window, probes the cache,
// computes the missing ranges, routes each to Archive or Live, dispatches
// them concurrently, merges by source priority, writes fully-covered days
// back to the cache, and reports completeness and provenance.
//
// The per-day cascade (try the fast tier, fall back, track what answered)
// is adapted from the teacher's internal/replication/bridge.go
// cascadeGet, generalized from a sequential tier walk into a
// concurrently-dispatched one built on internal/taskmanager (itself an
// errgroup-based rebuild of executors_warm_cold.go's bounded-fan-out
// shape).
package fcp

import (
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/terrylica/data-source-manager-sub003/internal/archive"
	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/cache"
	"github.com/terrylica/data-source-manager-sub003/internal/config"
	"github.com/terrylica/data-source-manager-sub003/internal/errorsx"
	"github.com/terrylica/data-source-manager-sub003/internal/funding"
	"github.com/terrylica/data-source-manager-sub003/internal/live"
	dsmlog "github.com/terrylica/data-source-manager-sub003/internal/log"
	"github.com/terrylica/data-source-manager-sub003/internal/metrics"
	"github.com/terrylica/data-source-manager-sub003/internal/router"
	"github.com/terrylica/data-source-manager-sub003/internal/taskmanager"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"

	"context"
)

// Request is the input to Get, carrying the dimensions of spec §6's
// primary get() signature.
type Request struct {
	MarketType bar.MarketType
	ChartType  bar.ChartType
	Symbol     string
	Interval   timeutil.Interval // ignored for ChartFundingRate
	StartUs    int64
	EndUs      int64

	ForceRefresh bool // bypass cache reads (still writes back on success)
}

// GapRecord describes one missing stretch in the returned Frame.
type GapRecord struct {
	StartUs int64
	EndUs   int64
	Missing uint64
}

// Stats carries the per-call counters of the operation contract's stats
// block (spec §6): cache hits/misses from the probe step, and
// errors/timeouts from the per-day dispatch loop.
type Stats struct {
	Hits     int
	Misses   int
	Errors   int
	Timeouts int
}

// Provenance reports how the returned Frame was assembled. RequestID
// correlates this call's log lines (archive/live fetch attempts, gap
// records) for operators tracing a single Get end to end. Partial is set
// when the overall deadline (config.OverallDeadline) was exceeded before
// every day finished dispatching, distinguishing "some days are gapped
// because the source doesn't have them" from "the call ran out of time".
type Provenance struct {
	RequestID    string
	Complete     bool
	Partial      bool
	Gaps         []GapRecord
	SourceCounts map[bar.Source]int
	Stats        Stats
}

// isTimeout reports whether err represents a timeout, either the
// taxonomy's own Timeout kind or a bare context.DeadlineExceeded
// surfaced directly by a fetcher's retry loop.
func isTimeout(err error) bool {
	return errorsx.Is(err, errorsx.Timeout) || errors.Is(err, context.DeadlineExceeded)
}

// Orchestrator owns references to every component needed to answer Get.
type Orchestrator struct {
	cfg     config.Config
	caps    config.CapabilityTable
	cache   *cache.Store
	archive *archive.Fetcher
	live    *live.Fetcher
	funding *funding.Fetcher
}

// NewOrchestrator wires the FCP engine from its pre-constructed
// components; pkg/dsm.New builds each one from Config.
func NewOrchestrator(cfg config.Config, caps config.CapabilityTable, cacheStore *cache.Store, archiveFetcher *archive.Fetcher, liveFetcher *live.Fetcher, fundingFetcher *funding.Fetcher) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, caps: caps, cache: cacheStore,
		archive: archiveFetcher, live: liveFetcher, funding: fundingFetcher,
	}
}

// Get is the primary operation (spec §4.8, §6). It returns a schema-valid,
// sorted, deduplicated Frame trimmed to [req.StartUs, req.EndUs], along
// with provenance describing completeness and any gaps.
func (o *Orchestrator) Get(ctx context.Context, req Request) (bar.Frame, Provenance, error) {
	ctx, cancel := context.WithTimeout(ctx, config.OverallDeadline)
	defer cancel()

	requestID := uuid.NewString()
	logger := log.With().Str("request_id", requestID).Str("symbol", req.Symbol).Logger()
	logger.Debug().Str("chart_type", string(req.ChartType)).Int64("start_us", req.StartUs).Int64("end_us", req.EndUs).Msg("get: starting")

	if req.StartUs >= req.EndUs {
		return bar.EmptyFrame(req.ChartType), Provenance{RequestID: requestID}, errorsx.New(errorsx.InvalidInput, "fcp", "start not strictly before end", nil)
	}
	if req.Symbol == "" {
		return bar.EmptyFrame(req.ChartType), Provenance{RequestID: requestID}, errorsx.New(errorsx.InvalidInput, "fcp", "empty symbol", nil)
	}

	var (
		frame bar.Frame
		prov  Provenance
		err   error
	)
	if req.ChartType == bar.ChartFundingRate {
		frame, prov, err = o.getFunding(ctx, req)
	} else {
		frame, prov, err = o.getKlines(ctx, req)
	}
	prov.RequestID = requestID
	logger.Debug().Bool("complete", prov.Complete).Int("gaps", len(prov.Gaps)).Msg("get: done")
	return frame, prov, err
}

// --- KLINES path -----------------------------------------------------------

func (o *Orchestrator) getKlines(ctx context.Context, req Request) (bar.Frame, Provenance, error) {
	ivUs, err := timeutil.IntervalMicros(req.Interval)
	if err != nil {
		return bar.EmptyFrame(bar.ChartKlines), Provenance{}, errorsx.New(errorsx.InvalidInput, "fcp", "unsupported interval", err)
	}

	cap := o.caps.Lookup(config.Key{MarketType: req.MarketType, ChartType: bar.ChartKlines, Interval: req.Interval})
	if !cap.ArchiveSupported && !cap.LiveSupported {
		return bar.EmptyFrame(bar.ChartKlines), Provenance{}, errorsx.New(errorsx.InvalidInput, "fcp", "unsupported market/interval combination", nil)
	}

	a0, a1 := timeutil.AlignWindow(req.StartUs, req.EndUs, ivUs)
	days := dayBoundaries(a0, a1, ivUs)

	key := cache.Key{
		Provider: "default", MarketType: string(req.MarketType),
		ChartType: string(bar.ChartKlines), Symbol: req.Symbol, Interval: string(req.Interval),
	}

	type dayResult struct {
		day   dayRange
		frame bar.Frame
		err   error
	}
	results := make([]dayResult, len(days))
	var stats Stats

	for i, d := range days {
		if !req.ForceRefresh {
			if frame, hit, _ := o.cache.Get(ctx, key, d.label); hit {
				metrics.CacheHits.Inc()
				stats.Hits++
				tagSource(frame, bar.SourceCache)
				results[i] = dayResult{day: d, frame: *frame}
				continue
			}
		}
		metrics.CacheMisses.Inc()
		stats.Misses++
		results[i] = dayResult{day: d, frame: bar.Frame{}, err: errMissing}
	}

	scope, sctx := taskmanager.NewScope(ctx, o.cfg.Archive.MaxConcurrent+o.cfg.Live.MaxConcurrent)
	for i := range results {
		if results[i].err != errMissing {
			continue
		}
		i := i
		scope.Go(func() error {
			frame, src, ferr := o.fetchDay(sctx, req, results[i].day, ivUs)
			results[i].frame = frame
			results[i].err = ferr
			if ferr != nil {
				metrics.FetchErrors.WithLabelValues(string(src)).Inc()
			}
			return nil // never abort siblings: a failed day degrades to a gap, not a hard failure
		})
	}
	_ = scope.Wait()

	merged := bar.EmptyFrame(bar.ChartKlines)
	sourceCounts := map[bar.Source]int{}
	var gaps []GapRecord

	for _, r := range results {
		if r.err != nil && r.err != errMissing {
			stats.Errors++
			if isTimeout(r.err) {
				stats.Timeouts++
				metrics.FetchTimeouts.Inc()
			}
			gaps = append(gaps, GapRecord{StartUs: r.day.startUs, EndUs: r.day.endUs, Missing: timeutil.ExpectedCount(r.day.startUs, r.day.endUs, ivUs)})
			continue
		}
		merged.Bars = append(merged.Bars, r.frame.Bars...)
		for _, b := range r.frame.Bars {
			sourceCounts[b.DataSource]++
		}

		expected := timeutil.ExpectedCount(r.day.startUs, r.day.endUs, ivUs)
		fullDay := r.day.endUs-r.day.startUs == int64(24*time.Hour/time.Microsecond)-int64(ivUs)
		if fullDay && uint64(len(r.frame.Bars)) == expected && expected > 0 && r.frame.Bars[0].DataSource != bar.SourceCache {
			expiresAt := cacheExpiryFor(r.day, ivUs, time.Duration(o.cfg.Cache.ExpiryMinutesRecent)*time.Minute)
			if putErr := o.cache.Put(ctx, key, r.day.label, r.frame, expiresAt); putErr != nil {
				dsmlog.Gap(req.Symbol, string(req.Interval), r.day.startUs, r.day.endUs, 0) // write-back failed; day stays a cache miss next call
			}
		} else if uint64(len(r.frame.Bars)) < expected {
			missing := expected - uint64(len(r.frame.Bars))
			gaps = append(gaps, GapRecord{StartUs: r.day.startUs, EndUs: r.day.endUs, Missing: missing})
			metrics.GapRecords.Add(float64(missing))
			dsmlog.Gap(req.Symbol, string(req.Interval), r.day.startUs, r.day.endUs, missing)
		}
	}

	merged.SortByOpenTime()
	merged.DedupPreferPriority()
	if err := bar.Validate(merged, ivUs, false); err != nil {
		return merged, Provenance{}, errorsx.New(errorsx.InternalInvariant, "fcp", "merged frame failed validation", err)
	}
	merged.TrimToWindow(req.StartUs, req.EndUs)

	prov := Provenance{Complete: len(gaps) == 0, Gaps: gaps, SourceCounts: sourceCounts, Stats: stats}
	if ctx.Err() != nil {
		prov.Partial = true
	}
	return merged, prov, nil
}

var errMissing = errorsx.New(errorsx.SourceUnavailable, "fcp", "cache miss sentinel", nil)

// fetchDay resolves and dispatches a single missing day via the Source
// Router, applying the one-shot LIVE->ARCHIVE fallback on failure (never
// the reverse, per spec §4.7).
func (o *Orchestrator) fetchDay(ctx context.Context, req Request, d dayRange, ivUs uint64) (bar.Frame, router.Decision, error) {
	decision, err := router.Route(d.startUs, d.endUs, req.MarketType, bar.ChartKlines, req.Interval, time.Now(), o.caps, time.Duration(o.cfg.Router.ArchivePublishLagHours)*time.Hour, o.cfg.Live.RestMaxChunks, o.cfg.Live.ChunkSize)
	if err != nil {
		return bar.EmptyFrame(bar.ChartKlines), decision, err
	}

	start := time.Now()
	frame, err := o.dispatchDecision(ctx, req, d, decision)
	metrics.FetchDuration.WithLabelValues(string(decision)).Observe(time.Since(start).Seconds())
	if err == nil {
		return frame, decision, nil
	}

	fallback, ok := router.Fallback(decision)
	if !ok {
		return frame, decision, err
	}
	if isTimeout(err) {
		dsmlog.FetchTimeout(req.Symbol, string(req.Interval), string(decision), d.startUs, d.endUs, time.Since(start), 1)
	}
	frame, ferr := o.dispatchDecision(ctx, req, d, fallback)
	return frame, fallback, ferr
}

func (o *Orchestrator) dispatchDecision(ctx context.Context, req Request, d dayRange, decision router.Decision) (bar.Frame, error) {
	switch decision {
	case router.DecisionArchive:
		return o.archive.FetchDays(ctx, req.MarketType, req.Symbol, req.Interval, []string{d.label})
	default:
		return o.live.Fetch(ctx, req.MarketType, req.Symbol, req.Interval, d.startUs, d.endUs)
	}
}

func tagSource(f *bar.Frame, src bar.Source) {
	for i := range f.Bars {
		f.Bars[i].DataSource = src
	}
	for i := range f.Fundings {
		f.Fundings[i].DataSource = src
	}
}

// cacheExpiryFor returns zero (no expiry) for days that have fully
// elapsed, and a TTL of recent (60 minutes when recent is not positive)
// for "today" whose last bar may still be provisional at the edge of the
// window — matching spec §4.3's recent-vs-historical expiry split.
func cacheExpiryFor(d dayRange, ivUs uint64, recent time.Duration) time.Time {
	nowUs := timeutil.ToMicros(time.Now())
	if timeutil.IsBarComplete(d.endUs, ivUs, nowUs) {
		return time.Time{}
	}
	if recent <= 0 {
		recent = 60 * time.Minute
	}
	return time.Now().Add(recent)
}

// --- FUNDING_RATE path -------------------------------------------------

func (o *Orchestrator) getFunding(ctx context.Context, req Request) (bar.Frame, Provenance, error) {
	cap := o.caps.Lookup(config.Key{MarketType: req.MarketType, ChartType: bar.ChartFundingRate})
	if !cap.LiveSupported {
		return bar.EmptyFrame(bar.ChartFundingRate), Provenance{}, errorsx.New(errorsx.InvalidInput, "fcp", "funding rate unsupported for this market type", nil)
	}

	key := cache.Key{
		Provider: "default", MarketType: string(req.MarketType),
		ChartType: string(bar.ChartFundingRate), Symbol: req.Symbol, Interval: "funding",
	}
	days := calendarDays(req.StartUs, req.EndUs)

	merged := bar.EmptyFrame(bar.ChartFundingRate)
	sourceCounts := map[bar.Source]int{}
	var gaps []GapRecord
	var stats Stats

	for _, d := range days {
		if !req.ForceRefresh {
			if frame, hit, _ := o.cache.Get(ctx, key, d.label); hit {
				metrics.CacheHits.Inc()
				stats.Hits++
				tagSource(frame, bar.SourceCache)
				merged.Fundings = append(merged.Fundings, frame.Fundings...)
				for _, r := range frame.Fundings {
					sourceCounts[r.DataSource]++
				}
				continue
			}
		}
		metrics.CacheMisses.Inc()
		stats.Misses++

		frame, err := o.funding.Fetch(ctx, req.MarketType, req.Symbol, d.startUs, d.endUs)
		if err != nil {
			metrics.FetchErrors.WithLabelValues("live").Inc()
			stats.Errors++
			if isTimeout(err) {
				stats.Timeouts++
				metrics.FetchTimeouts.Inc()
			}
			gaps = append(gaps, GapRecord{StartUs: d.startUs, EndUs: d.endUs})
			continue
		}
		merged.Fundings = append(merged.Fundings, frame.Fundings...)
		for _, r := range frame.Fundings {
			sourceCounts[r.DataSource]++
		}
		fullDay := d.endUs-d.startUs == int64(24*time.Hour/time.Microsecond)-1
		if fullDay && timeutil.IsBarComplete(d.endUs, uint64(24*time.Hour/time.Microsecond), timeutil.ToMicros(time.Now())) {
			o.cache.Put(ctx, key, d.label, frame, time.Time{})
		}
	}

	merged.SortByOpenTime()
	merged.DedupPreferPriority()
	if err := bar.Validate(merged, 0, false); err != nil {
		return merged, Provenance{}, errorsx.New(errorsx.InternalInvariant, "fcp", "merged funding frame failed validation", err)
	}
	merged.TrimToWindow(req.StartUs, req.EndUs)

	prov := Provenance{Complete: len(gaps) == 0, Gaps: gaps, SourceCounts: sourceCounts, Stats: stats}
	if ctx.Err() != nil {
		prov.Partial = true
	}
	return merged, prov, nil
}

// --- day breakdown -------------------------------------------------------

type dayRange struct {
	label           string // YYYY-MM-DD
	startUs, endUs int64  // open_times of first/last bar of the UTC calendar day, clipped to [a0,a1]
}

// dayBoundaries splits [a0,a1] into per-UTC-day aligned sub-ranges, each
// clipped to the overall window so the first and last day may be partial
// spans of a full calendar day (spec §4.4 boundary policy: the fetchers
// themselves still retrieve the whole file/page for that day; only the
// final TrimToWindow call narrows the output).
func dayBoundaries(a0, a1 int64, ivUs uint64) []dayRange {
	const dayUs = int64(24 * time.Hour / time.Microsecond)
	var out []dayRange
	cur := a0
	for cur <= a1 {
		dayStart := (cur / dayUs) * dayUs
		dayEnd := dayStart + dayUs - int64(ivUs)
		start := dayStart
		if start < a0 {
			start = a0
		}
		end := dayEnd
		if end > a1 {
			end = a1
		}
		label := timeutil.FromMicros(dayStart).Format("2006-01-02")
		out = append(out, dayRange{label: label, startUs: start, endUs: end})
		cur = dayEnd + int64(ivUs)
	}
	return out
}

// calendarDays splits [t0,t1] into UTC calendar day buckets for the
// funding path, which has no bar-interval alignment.
func calendarDays(t0Us, t1Us int64) []dayRange {
	const dayUs = int64(24 * time.Hour / time.Microsecond)
	var out []dayRange
	cur := (t0Us / dayUs) * dayUs
	for cur <= t1Us {
		end := cur + dayUs - 1
		if end > t1Us {
			end = t1Us
		}
		label := timeutil.FromMicros(cur).Format("2006-01-02")
		out = append(out, dayRange{label: label, startUs: cur, endUs: end})
		cur += dayUs
	}
	return out
}

// sortGaps orders gaps ascending by StartUs.
func sortGaps(gaps []GapRecord) {
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].StartUs < gaps[j].StartUs })
}
