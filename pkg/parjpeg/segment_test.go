package parjpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSegments_PartitionsEveryScan(t *testing.T) {
	p := Parameters{Quality: 75, RestartInterval: 3, SamplingFactors: factors420()}
	l, err := ComputeLayout(rgbParams(99, 101), p)
	require.NoError(t, err)
	segments, err := BuildSegments(l, p.RestartInterval)
	require.NoError(t, err)

	// Segments are concatenated scan by scan and partition each scan's MCU
	// range with no gaps or overlaps.
	scan, next := 0, 0
	total := 0
	for _, s := range segments {
		if s.ScanIndex != scan {
			assert.Equal(t, l.ScanMCUCount(scan), next, "scan %d not fully covered", scan)
			require.Equal(t, scan+1, s.ScanIndex, "scan order")
			scan, next = s.ScanIndex, 0
		}
		assert.Equal(t, next, s.MCUStart)
		assert.LessOrEqual(t, s.MCUCount, p.RestartInterval)
		assert.Positive(t, s.MCUCount)
		assert.False(t, s.Resolved())
		next = s.MCUStart + s.MCUCount
		total++
	}
	assert.Equal(t, l.ScanMCUCount(scan), next, "last scan not fully covered")

	want := 0
	for _, c := range l.Components {
		want += c.SegmentCount
	}
	assert.Equal(t, want, total)
}

func TestBuildSegments_NoRestartIntervalMeansOnePerScan(t *testing.T) {
	p := Parameters{Quality: 75}
	l, err := ComputeLayout(rgbParams(40, 24), p)
	require.NoError(t, err)
	segments, err := BuildSegments(l, 0)
	require.NoError(t, err)

	require.Len(t, segments, l.Scans())
	for scan, s := range segments {
		assert.Equal(t, scan, s.ScanIndex)
		assert.Equal(t, 0, s.MCUStart)
		assert.Equal(t, l.ScanMCUCount(scan), s.MCUCount)
	}
}

func TestBuildSegments_InterleavedSingleScan(t *testing.T) {
	p := Parameters{Quality: 75, RestartInterval: 2, Interleaved: true, SamplingFactors: factors420()}
	l, err := ComputeLayout(rgbParams(32, 32), p)
	require.NoError(t, err)
	segments, err := BuildSegments(l, p.RestartInterval)
	require.NoError(t, err)

	require.Len(t, segments, 2) // ceil(4/2)
	for _, s := range segments {
		assert.Equal(t, 0, s.ScanIndex)
		assert.Equal(t, 2, s.MCUCount)
	}
}

func TestSegment_ResolvesExactlyOnce(t *testing.T) {
	s := Segment{ScanIndex: 0, MCUStart: 0, MCUCount: 4, Offset: unresolvedOffset}
	require.False(t, s.Resolved())

	require.NoError(t, s.resolve(0, 17))
	assert.True(t, s.Resolved())
	assert.Equal(t, int32(17), s.Size)

	err := s.resolve(17, 3)
	require.ErrorIs(t, err, ErrEncodeFailed)

	s.reset()
	assert.False(t, s.Resolved())
	require.NoError(t, s.resolve(4, 9))
}

func TestSegmentRecord_RoundTrip(t *testing.T) {
	segs := []Segment{
		{ScanIndex: 0, Offset: unresolvedOffset},
		{ScanIndex: 2, Offset: unresolvedOffset},
	}
	buf := make([]byte, len(segs)*segmentRecordSize)
	for i := range segs {
		putSegmentRecord(buf, i, &segs[i])
	}

	segmentRecordSetSize(buf, 1, 123)
	assert.Equal(t, int32(0), segmentRecordSizeAt(buf, 0))
	assert.Equal(t, int32(123), segmentRecordSizeAt(buf, 1))
}
