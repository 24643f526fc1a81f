// Package log initializes and wraps structured logging, grounded on the
// teacher's cmd/cprotocol/root.go zerolog bootstrap and
// internal/log/progress.go's field-heavy style.
package log

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global zerolog logger: Unix time fields and a
// console writer in dev, JSON in prod.
func Init(pretty bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// FetchTimeout logs a per-request or overall timeout with the detailed
// fields the original's _log_timeout_with_details emits: symbol, interval,
// window, elapsed, source, and attempt count (SPEC_FULL.md §3 supplement).
func FetchTimeout(symbol, interval, source string, t0Us, t1Us int64, elapsed time.Duration, attempt int) {
	log.Warn().
		Str("symbol", symbol).
		Str("interval", interval).
		Str("source", source).
		Int64("window_start_us", t0Us).
		Int64("window_end_us", t1Us).
		Dur("elapsed", elapsed).
		Int("attempt", attempt).
		Msg("fetch timed out")
}

// Gap logs a detected gap in the merged frame.
func Gap(symbol, interval string, startUs, endUs int64, missing uint64) {
	log.Info().
		Str("symbol", symbol).
		Str("interval", interval).
		Int64("gap_start_us", startUs).
		Int64("gap_end_us", endUs).
		Uint64("missing", missing).
		Msg("gap in merged frame")
}
