package timeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalMicros(t *testing.T) {
	us, err := IntervalMicros(Interval1m)
	require.NoError(t, err)
	assert.Equal(t, uint64(60_000_000), us)

	_, err = IntervalMicros(Interval1M)
	assert.Error(t, err)
}

func TestFloorCeilAlignment(t *testing.T) {
	ivUs, _ := IntervalMicros(Interval1m)

	// 90s past epoch in us, not aligned to a minute boundary
	t0 := int64(90_000_000)
	assert.Equal(t, int64(60_000_000), Floor(t0, ivUs))
	assert.Equal(t, int64(120_000_000), Ceil(t0, ivUs))

	// already aligned
	aligned := int64(120_000_000)
	assert.Equal(t, aligned, Floor(aligned, ivUs))
	assert.Equal(t, aligned, Ceil(aligned, ivUs))
}

func TestAlignWindowCollapseBump(t *testing.T) {
	ivUs, _ := IntervalMicros(Interval1m)
	// t0 and t1 both fall in the same minute -> a1 must be bumped by one iv
	a0, a1 := AlignWindow(61_000_000, 65_000_000, ivUs)
	assert.Equal(t, int64(60_000_000), a0)
	assert.Equal(t, int64(120_000_000), a1)
}

func TestExpectedCount(t *testing.T) {
	ivUs, _ := IntervalMicros(Interval1h)
	a0 := int64(0)
	a1 := int64(3600_000_000 * 9) // 9 hours later, inclusive => 10 bars
	assert.Equal(t, uint64(10), ExpectedCount(a0, a1, ivUs))
}

func TestCloseTime(t *testing.T) {
	ivUs, _ := IntervalMicros(Interval1m)
	open := int64(60_000_000)
	assert.Equal(t, open+60_000_000-1, CloseTime(open, ivUs))
}

func TestIsBarComplete(t *testing.T) {
	ivUs, _ := IntervalMicros(Interval1m)
	open := int64(0)
	assert.False(t, IsBarComplete(open, ivUs, 59_999_999))
	assert.True(t, IsBarComplete(open, ivUs, 60_000_000))
}

func TestDetectPrecision(t *testing.T) {
	// 13-digit ms sample
	p, us, err := DetectPrecision(1_700_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, PrecisionMillisecond, p)
	assert.Equal(t, int64(1_700_000_000_000_000), us)

	// 16-digit us sample
	p, us, err = DetectPrecision(1_700_000_000_000_000)
	require.NoError(t, err)
	assert.Equal(t, PrecisionMicrosecond, p)
	assert.Equal(t, int64(1_700_000_000_000_000), us)

	// bad digit count
	_, _, err = DetectPrecision(12345)
	assert.Error(t, err)
}

func TestOutputPrecisionRoundTrip(t *testing.T) {
	us := int64(1_700_000_000_123_456)
	assert.Equal(t, us/1000, ToOutputPrecision(us, OutputMilliseconds))
	assert.Equal(t, us, ToOutputPrecision(us, OutputMicroseconds))
}
