// Package live implements the Live Fetcher (spec §4.5): paginated REST
// retrieval against the exchange's recent-data endpoint, chunked to the
// endpoint's per-request row cap, with the guardrail that refuses windows
// requiring more chunks than configured rather than hammering the API.
//
// Transport (rate limiting, circuit breaking, daily budget) is supplied by
// internal/netutil/client, itself grounded on the teacher's
// internal/net/client/wrap.go composition. Row parsing follows the same
// raw-array convention as the archive (teacher's binance.go
// convertKlineToBar), since the live endpoint and the archive share a row
// shape up to the precision cutover.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/errorsx"
	"github.com/terrylica/data-source-manager-sub003/internal/netutil/client"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
)

// HTTPDoer is satisfied by *http.Client and the netutil client wrapper.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Fetcher.
type Config struct {
	BaseURL        string
	MaxConcurrent  int
	RestMaxChunks  int // guardrail: refuse windows requiring more REST pages than this
	ChunkSize      int // max rows per page
	RetryCount     int
	RequestTimeout time.Duration
}

// ErrRangeTooLarge is returned when a requested window would require more
// chunks than RestMaxChunks permits.
type ErrRangeTooLarge struct {
	Chunks, Max int
}

func (e *ErrRangeTooLarge) Error() string {
	return fmt.Sprintf("live: range requires %d chunks, exceeds max %d", e.Chunks, e.Max)
}

// Fetcher retrieves and parses live kline pages.
type Fetcher struct {
	cfg    Config
	client HTTPDoer
}

// NewFetcher constructs a live Fetcher. client must already carry the
// rate-limit/circuit-breaker/budget middleware stack (internal/netutil/client.NewClient).
func NewFetcher(cfg Config, client HTTPDoer) *Fetcher {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	return &Fetcher{cfg: cfg, client: client}
}

// chunkCount returns how many ChunkSize-row pages are needed to cover
// [a0,a1] inclusive at the given interval.
func (f *Fetcher) chunkCount(a0, a1 int64, ivUs uint64) int {
	n := timeutil.ExpectedCount(a0, a1, ivUs)
	cs := uint64(f.cfg.ChunkSize)
	return int((n + cs - 1) / cs)
}

// Fetch retrieves [t0,t1] (aligned open_times, inclusive) for symbol/iv via
// paginated REST chunks, dispatched concurrently up to MaxConcurrent. A
// window too large for RestMaxChunks is rejected up front — the caller
// (Source Router / FCP Orchestrator) is expected not to route such ranges
// here in the first place, but the guardrail protects against a routing
// bug or an operator override.
func (f *Fetcher) Fetch(ctx context.Context, marketType bar.MarketType, symbol string, iv timeutil.Interval, a0, a1 int64) (bar.Frame, error) {
	frame := bar.EmptyFrame(bar.ChartKlines)

	ivUs, err := timeutil.IntervalMicros(iv)
	if err != nil {
		return frame, errorsx.New(errorsx.InvalidInput, "live", "unsupported interval", err)
	}

	chunks := f.chunkCount(a0, a1, ivUs)
	maxChunks := f.cfg.RestMaxChunks
	if maxChunks <= 0 {
		maxChunks = 10
	}
	if chunks > maxChunks {
		return frame, errorsx.New(errorsx.InvalidInput, "live", "range too large for live", &ErrRangeTooLarge{Chunks: chunks, Max: maxChunks})
	}

	ranges := splitIntoChunks(a0, a1, ivUs, uint64(f.cfg.ChunkSize))

	sem := make(chan struct{}, maxInt(f.cfg.MaxConcurrent, 1))
	results := make([][]bar.Bar, len(ranges))
	errs := make([]error, len(ranges))
	done := make(chan int, len(ranges))

	for i, r := range ranges {
		i, r := i, r
		sem <- struct{}{}
		go func() {
			defer func() { <-sem; done <- i }()
			bars, err := f.fetchPage(ctx, marketType, symbol, iv, r.start, r.end)
			results[i] = bars
			errs[i] = err
		}()
	}
	for range ranges {
		<-done
	}

	for i := range ranges {
		if errs[i] != nil {
			return frame, errs[i]
		}
		frame.Bars = append(frame.Bars, results[i]...)
	}

	frame.SortByOpenTime()
	frame.DedupPreferPriority()
	dropIncompleteFinalBar(&frame, ivUs, timeutil.ToMicros(time.Now()))
	return frame, nil
}

// dropIncompleteFinalBar removes the last bar if it has not yet fully
// elapsed as of now, since the live endpoint returns a provisional,
// still-accumulating row for the current interval (spec §4.5).
func dropIncompleteFinalBar(f *bar.Frame, ivUs uint64, nowUs int64) {
	n := len(f.Bars)
	if n == 0 {
		return
	}
	last := f.Bars[n-1]
	if !timeutil.IsBarComplete(last.OpenTimeUs, ivUs, nowUs) {
		f.Bars = f.Bars[:n-1]
	}
}

type chunkRange struct{ start, end int64 }

// splitIntoChunks breaks [a0,a1] into contiguous open_time ranges of at
// most size bars each.
func splitIntoChunks(a0, a1 int64, ivUs, size uint64) []chunkRange {
	if size == 0 {
		size = 1000
	}
	var out []chunkRange
	cur := a0
	span := int64(size-1) * int64(ivUs)
	for cur <= a1 {
		end := cur + span
		if end > a1 {
			end = a1
		}
		out = append(out, chunkRange{start: cur, end: end})
		cur = end + int64(ivUs)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (f *Fetcher) fetchPage(ctx context.Context, marketType bar.MarketType, symbol string, iv timeutil.Interval, startUs, endUs int64) ([]bar.Bar, error) {
	var lastErr error
	retries := f.cfg.RetryCount
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		bars, err := f.attemptPage(ctx, marketType, symbol, iv, startUs, endUs)
		if err == nil {
			return bars, nil
		}
		lastErr = err
		if !errorsx.Is(err, errorsx.RateLimited) && !errorsx.Is(err, errorsx.TransientNetwork) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == retries-1 {
			break
		}
		wait := time.Duration(1<<attempt) * 200 * time.Millisecond
		var transportErr *client.Error
		if errors.As(err, &transportErr) && transportErr.RetryAfter > wait {
			wait = transportErr.RetryAfter
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (f *Fetcher) attemptPage(ctx context.Context, marketType bar.MarketType, symbol string, iv timeutil.Interval, startUs, endUs int64) ([]bar.Bar, error) {
	reqCtx := ctx
	if f.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.cfg.RequestTimeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", string(iv))
	q.Set("marketType", string(marketType))
	q.Set("startTime", strconv.FormatInt(startUs/1000, 10))
	q.Set("endTime", strconv.FormatInt(endUs/1000, 10))

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.cfg.BaseURL+"/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errorsx.New(errorsx.TransientNetwork, "live", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errorsx.New(errorsx.RateLimited, "live", "429 from live endpoint", nil)
	}
	if resp.StatusCode >= 500 {
		return nil, errorsx.New(errorsx.TransientNetwork, "live", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errorsx.New(errorsx.InvalidInput, "live", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var rows [][]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, errorsx.New(errorsx.InternalInvariant, "live", "decode response", err)
	}
	return parseRawRows(rows, iv)
}

// parseRawRows converts the live endpoint's raw positional row format
// (matching the archive's column order) into canonical Bars.
func parseRawRows(rows [][]json.Number, iv timeutil.Interval) ([]bar.Bar, error) {
	ivUs, err := timeutil.IntervalMicros(iv)
	if err != nil {
		return nil, err
	}
	var bars []bar.Bar
	for _, row := range rows {
		if len(row) < 11 {
			continue
		}
		openRaw, err := row[0].Int64()
		if err != nil {
			continue
		}
		_, openUs, err := timeutil.DetectPrecision(openRaw)
		if err != nil {
			continue
		}
		open, _ := row[1].Float64()
		high, _ := row[2].Float64()
		low, _ := row[3].Float64()
		closeP, _ := row[4].Float64()
		volume, _ := row[5].Float64()
		quoteVolume, _ := row[7].Float64()
		trades, _ := row[8].Int64()
		takerBuyVol, _ := row[9].Float64()
		takerBuyQuoteVol, _ := row[10].Float64()

		b := bar.Bar{
			OpenTimeUs:          timeutil.Floor(openUs, ivUs),
			Open:                open,
			High:                high,
			Low:                 low,
			Close:               closeP,
			Volume:              volume,
			QuoteVolume:         quoteVolume,
			TakerBuyVolume:      takerBuyVol,
			TakerBuyQuoteVolume: takerBuyQuoteVol,
			Trades:              uint64(trades),
			DataSource:          bar.SourceLive,
		}
		b.CloseTimeUs = timeutil.CloseTime(b.OpenTimeUs, ivUs)
		bars = append(bars, b)
	}
	return bars, nil
}
