// Package timeutil implements interval arithmetic, boundary alignment, and
// timestamp precision normalization for the FCP engine.
//
// Internally all instants are canonical UTC microseconds since epoch
// (int64). Callers that receive millisecond or raw-digit timestamps from an
// archive file or a live REST response must run them through DetectPrecision
// before doing arithmetic on them.
package timeutil

import (
	"fmt"
	"time"
)

// Interval is a discrete enum of supported bar durations.
type Interval string

const (
	Interval1s  Interval = "1s"
	Interval1m  Interval = "1m"
	Interval3m  Interval = "3m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval2h  Interval = "2h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval3d  Interval = "3d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// intervalMicros holds the fixed duration of each interval in microseconds.
// 1M (calendar month) has no fixed duration and is absent, so
// IntervalMicros rejects it; no helper in this package computes
// calendar-month boundaries.
var intervalMicros = map[Interval]uint64{
	Interval1s:  uint64(time.Second / time.Microsecond),
	Interval1m:  uint64(time.Minute / time.Microsecond),
	Interval3m:  uint64(3 * time.Minute / time.Microsecond),
	Interval5m:  uint64(5 * time.Minute / time.Microsecond),
	Interval15m: uint64(15 * time.Minute / time.Microsecond),
	Interval30m: uint64(30 * time.Minute / time.Microsecond),
	Interval1h:  uint64(time.Hour / time.Microsecond),
	Interval2h:  uint64(2 * time.Hour / time.Microsecond),
	Interval4h:  uint64(4 * time.Hour / time.Microsecond),
	Interval6h:  uint64(6 * time.Hour / time.Microsecond),
	Interval8h:  uint64(8 * time.Hour / time.Microsecond),
	Interval12h: uint64(12 * time.Hour / time.Microsecond),
	Interval1d:  uint64(24 * time.Hour / time.Microsecond),
	Interval3d:  uint64(3 * 24 * time.Hour / time.Microsecond),
	Interval1w:  uint64(7 * 24 * time.Hour / time.Microsecond),
}

// ErrUnsupportedInterval is returned by IntervalMicros for 1M or any
// unrecognized interval string.
type ErrUnsupportedInterval struct{ Interval Interval }

func (e *ErrUnsupportedInterval) Error() string {
	return fmt.Sprintf("timeutil: interval %q has no fixed microsecond duration", e.Interval)
}

// IntervalMicros returns the number of microseconds spanned by one bar of
// the given interval.
func IntervalMicros(iv Interval) (uint64, error) {
	us, ok := intervalMicros[iv]
	if !ok {
		return 0, &ErrUnsupportedInterval{Interval: iv}
	}
	return us, nil
}

// Floor returns the largest interval boundary <= t, in canonical
// microseconds.
func Floor(tUs int64, ivUs uint64) int64 {
	if ivUs == 0 {
		return tUs
	}
	rem := tUs % int64(ivUs)
	if rem < 0 {
		rem += int64(ivUs)
	}
	return tUs - rem
}

// Ceil returns the smallest interval boundary >= t; equal to t if t is
// already aligned.
func Ceil(tUs int64, ivUs uint64) int64 {
	floored := Floor(tUs, ivUs)
	if floored == tUs {
		return tUs
	}
	return floored + int64(ivUs)
}

// AlignWindow aligns [t0,t1] to interval boundaries. a0 is floor(t0); a1 is
// floor(t1), bumped to a0+iv if it would otherwise collapse the window. Both
// a0 and a1 are open_times: a1 is the open_time of the last expected bar,
// not an exclusive end.
func AlignWindow(t0Us, t1Us int64, ivUs uint64) (a0, a1 int64) {
	a0 = Floor(t0Us, ivUs)
	a1 = Floor(t1Us, ivUs)
	if a1 <= a0 {
		a1 = a0 + int64(ivUs)
	}
	return a0, a1
}

// ExpectedCount returns the number of bars expected between a0 and a1
// inclusive, given a0 and a1 are both open_times aligned to ivUs.
func ExpectedCount(a0, a1 int64, ivUs uint64) uint64 {
	if ivUs == 0 || a1 < a0 {
		return 0
	}
	return uint64(a1-a0)/ivUs + 1
}

// CloseTime returns the close_time of a bar with the given open_time:
// open_time + interval - 1 microsecond.
func CloseTime(openTimeUs int64, ivUs uint64) int64 {
	return openTimeUs + int64(ivUs) - 1
}

// IsBarComplete reports whether a bar with the given open_time has fully
// elapsed as of now: now >= open_time + iv.
func IsBarComplete(openTimeUs int64, ivUs uint64, nowUs int64) bool {
	return nowUs >= openTimeUs+int64(ivUs)
}

// Precision identifies the unit of a raw, externally supplied timestamp
// before it has been normalized to canonical microseconds.
type Precision int

const (
	PrecisionUnknown     Precision = iota
	PrecisionMillisecond           // 13-digit timestamps, pre-cutover archive/live format
	PrecisionMicrosecond          // 16-digit timestamps, post-cutover archive format
)

// microsecondDigits is the digit count of a microsecond-precision Unix
// timestamp; a 13-digit timestamp is milliseconds. Mirrors the archive
// format's historical cutover from ms to us.
const microsecondDigits = 16
const millisecondDigits = 13

// DetectPrecision inspects the decimal digit count of a raw sample
// timestamp and returns both the detected precision and the value
// normalized to canonical microseconds. Returns an error for any digit
// count other than 13 or 16, since those are the only two formats the
// archive has ever emitted.
func DetectPrecision(sample int64) (Precision, int64, error) {
	digits := digitCount(sample)
	switch digits {
	case millisecondDigits:
		return PrecisionMillisecond, sample * 1000, nil
	case microsecondDigits:
		return PrecisionMicrosecond, sample, nil
	default:
		return PrecisionUnknown, 0, fmt.Errorf("timeutil: cannot detect timestamp precision for %d-digit value %d (expected %d or %d digits)", digits, sample, millisecondDigits, microsecondDigits)
	}
}

func digitCount(v int64) int {
	if v < 0 {
		v = -v
	}
	if v == 0 {
		return 1
	}
	n := 0
	for v > 0 {
		n++
		v /= 10
	}
	return n
}

// ToMicros converts a time.Time to canonical UTC microseconds since epoch.
func ToMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

// FromMicros converts canonical UTC microseconds since epoch to a UTC
// time.Time.
func FromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

// OutputPrecision is the single configuration knob (spec §4.1) governing
// the precision at which canonical microseconds are re-emitted at the
// frame boundary. Default is milliseconds, matching the live endpoint.
type OutputPrecision int

const (
	OutputMilliseconds OutputPrecision = iota
	OutputMicroseconds
)

// ToOutputPrecision converts a canonical microsecond instant to the
// configured output precision, returning the integer value a caller would
// serialize.
func ToOutputPrecision(us int64, p OutputPrecision) int64 {
	switch p {
	case OutputMicroseconds:
		return us
	default:
		return us / 1000
	}
}
