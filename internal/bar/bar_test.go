package bar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mkBar(openUs int64, ivUs uint64, src Source) Bar {
	return Bar{OpenTimeUs: openUs, CloseTimeUs: openUs + int64(ivUs) - 1, Close: 1, DataSource: src}
}

func TestEmptyFrameSchemaValid(t *testing.T) {
	f := EmptyFrame(ChartKlines)
	assert.Equal(t, 0, f.Len())
	assert.NotNil(t, f.Bars)
}

func TestDedupPreferPriority(t *testing.T) {
	const ivUs = uint64(60_000_000)
	f := Frame{ChartType: ChartKlines, Bars: []Bar{
		mkBar(0, ivUs, SourceLive),
		mkBar(0, ivUs, SourceArchive),
		mkBar(int64(ivUs), ivUs, SourceLive),
	}}
	f.SortByOpenTime()
	f.DedupPreferPriority()
	require.Len(t, f.Bars, 2)
	assert.Equal(t, SourceArchive, f.Bars[0].DataSource)
}

func TestValidateDetectsMisalignment(t *testing.T) {
	const ivUs = uint64(60_000_000)
	bars := []Bar{mkBar(1, ivUs, SourceCache)}
	err := validateBars(bars, ivUs, false)
	assert.Error(t, err)
}

func TestValidateCompleteGapDetection(t *testing.T) {
	const ivUs = uint64(60_000_000)
	bars := []Bar{mkBar(0, ivUs, SourceCache), mkBar(int64(2*ivUs), ivUs, SourceCache)}
	assert.Error(t, validateBars(bars, ivUs, true))
	assert.NoError(t, validateBars(bars, ivUs, false))
}

func TestTrimToWindow(t *testing.T) {
	const ivUs = uint64(60_000_000)
	f := Frame{ChartType: ChartKlines, Bars: []Bar{
		mkBar(0, ivUs, SourceCache),
		mkBar(int64(ivUs), ivUs, SourceCache),
		mkBar(int64(2*ivUs), ivUs, SourceCache),
	}}
	f.TrimToWindow(int64(ivUs), int64(ivUs))
	require.Len(t, f.Bars, 1)
	assert.Equal(t, int64(ivUs), f.Bars[0].OpenTimeUs)
}
