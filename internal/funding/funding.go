// Package funding implements the Funding Fetcher (spec §4.6): the
// FUNDING_RATE schema variant, sharing the Live Fetcher's REST transport
// (one unpaginated request per Fetch) but parsing a different row layout (funding_time,
// funding_rate, optional mark_price), grounded on the teacher's
// src/infrastructure/providers' funding-rate adapter path alongside
// binance.go's raw-row convention used for klines.
package funding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/terrylica/data-source-manager-sub003/internal/bar"
	"github.com/terrylica/data-source-manager-sub003/internal/errorsx"
	"github.com/terrylica/data-source-manager-sub003/internal/timeutil"
)

// HTTPDoer is satisfied by *http.Client and the netutil client wrapper.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config configures a Fetcher. FUNDING_RATE has no archive variant in this
// design (spec §4.6): every window is served live.
type Config struct {
	BaseURL        string
	RetryCount     int
	RequestTimeout time.Duration
}

// Fetcher retrieves and parses funding-rate records.
type Fetcher struct {
	cfg    Config
	client HTTPDoer
}

// NewFetcher constructs a funding Fetcher. client must already carry the
// rate-limit/circuit-breaker/budget middleware stack.
func NewFetcher(cfg Config, client HTTPDoer) *Fetcher {
	return &Fetcher{cfg: cfg, client: client}
}

// Fetch retrieves funding records for symbol within [t0Us,t1Us] inclusive.
func (f *Fetcher) Fetch(ctx context.Context, marketType bar.MarketType, symbol string, t0Us, t1Us int64) (bar.Frame, error) {
	frame := bar.EmptyFrame(bar.ChartFundingRate)

	var lastErr error
	retries := f.cfg.RetryCount
	if retries <= 0 {
		retries = 1
	}
	for attempt := 0; attempt < retries; attempt++ {
		records, err := f.attempt(ctx, marketType, symbol, t0Us, t1Us)
		if err == nil {
			frame.Fundings = records
			frame.SortByOpenTime()
			frame.DedupPreferPriority()
			return frame, nil
		}
		lastErr = err
		if !errorsx.Is(err, errorsx.RateLimited) && !errorsx.Is(err, errorsx.TransientNetwork) {
			return frame, err
		}
		if ctx.Err() != nil {
			return frame, ctx.Err()
		}
		if attempt == retries-1 {
			break
		}
		select {
		case <-time.After(time.Duration(1<<attempt) * 200 * time.Millisecond):
		case <-ctx.Done():
			return frame, ctx.Err()
		}
	}
	return frame, lastErr
}

func (f *Fetcher) attempt(ctx context.Context, marketType bar.MarketType, symbol string, t0Us, t1Us int64) ([]bar.FundingRecord, error) {
	reqCtx := ctx
	if f.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.cfg.RequestTimeout)
		defer cancel()
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("marketType", string(marketType))
	q.Set("startTime", strconv.FormatInt(t0Us/1000, 10))
	q.Set("endTime", strconv.FormatInt(t1Us/1000, 10))

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, f.cfg.BaseURL+"/fundingRate?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errorsx.New(errorsx.TransientNetwork, "funding", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errorsx.New(errorsx.RateLimited, "funding", "429 from funding endpoint", nil)
	}
	if resp.StatusCode >= 500 {
		return nil, errorsx.New(errorsx.TransientNetwork, "funding", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		return nil, errorsx.New(errorsx.InvalidInput, "funding", fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var rows []rawFundingRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, errorsx.New(errorsx.InternalInvariant, "funding", "decode response", err)
	}

	out := make([]bar.FundingRecord, 0, len(rows))
	for _, row := range rows {
		fundingRaw, err := strconv.ParseInt(row.FundingTime, 10, 64)
		if err != nil {
			continue
		}
		_, fundingUs, err := timeutil.DetectPrecision(fundingRaw)
		if err != nil {
			continue
		}
		rate, _ := strconv.ParseFloat(row.FundingRate, 64)

		rec := bar.FundingRecord{
			FundingTimeUs: fundingUs,
			FundingRate:   rate,
			Symbol:        symbol,
			DataSource:    bar.SourceLive,
		}
		if row.MarkPrice != "" {
			if mp, err := strconv.ParseFloat(row.MarkPrice, 64); err == nil {
				rec.MarkPrice = &mp
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// rawFundingRow matches the funding endpoint's raw JSON row shape.
type rawFundingRow struct {
	FundingTime string `json:"fundingTime"`
	FundingRate string `json:"fundingRate"`
	MarkPrice   string `json:"markPrice"`
}
