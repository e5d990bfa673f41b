package parjpeg

import (
	"encoding/binary"
	"fmt"
)

// unresolvedOffset marks a segment whose entropy coding has not completed.
const unresolvedOffset = -1

// Segment is the unit of parallel entropy-coding work: the run of MCUs
// between two restart points of one scan. Its compressed offset and size are
// unknown until the coding pass finishes; they resolve exactly once per
// encode and are never mutated afterwards.
type Segment struct {
	// ScanIndex is 0 in interleaved mode, else the component index.
	ScanIndex int

	// MCUStart and MCUCount give this segment's MCU range within its scan.
	MCUStart int
	MCUCount int

	// Offset is the byte offset of this segment's data within the
	// compacted compressed stream, unresolvedOffset until coding completes.
	Offset int32

	// Size is the compressed byte count, valid once Offset is resolved.
	Size int32
}

// Resolved reports whether the segment's compressed range has been filled in.
func (s *Segment) Resolved() bool { return s.Offset != unresolvedOffset }

// resolve fills in the compressed byte range. A segment resolves exactly
// once per encode; a second resolve indicates a coder bug.
func (s *Segment) resolve(offset, size int32) error {
	if s.Resolved() {
		return fmt.Errorf("%w: segment for scan %d mcu %d already resolved",
			ErrEncodeFailed, s.ScanIndex, s.MCUStart)
	}
	s.Offset = offset
	s.Size = size
	return nil
}

// reset returns the segment to the unresolved state for the next encode.
func (s *Segment) reset() {
	s.Offset = unresolvedOffset
	s.Size = 0
}

// segmentRecordSize is the wire size of one segment in the device-resident
// segment table: scan index, compressed offset, compressed size as little
// endian int32s.
const segmentRecordSize = 12

// putSegmentRecord serializes s into the device segment table at index i.
func putSegmentRecord(dst []byte, i int, s *Segment) {
	rec := dst[i*segmentRecordSize:]
	binary.LittleEndian.PutUint32(rec[0:], uint32(int32(s.ScanIndex)))
	binary.LittleEndian.PutUint32(rec[4:], uint32(s.Offset))
	binary.LittleEndian.PutUint32(rec[8:], uint32(s.Size))
}

// segmentRecordSetSize writes only the compressed size field of record i.
// Entropy kernels use it to publish their byte counts without touching the
// rest of the record.
func segmentRecordSetSize(dst []byte, i int, size int32) {
	binary.LittleEndian.PutUint32(dst[i*segmentRecordSize+8:], uint32(size))
}

// segmentRecordSizeAt reads the compressed size field of record i.
func segmentRecordSizeAt(src []byte, i int) int32 {
	return int32(binary.LittleEndian.Uint32(src[i*segmentRecordSize+8:]))
}

// BuildSegments partitions every scan's MCU sequence into segments of at
// most restartInterval MCUs (one segment per scan when the interval is
// zero). Segments are stored concatenated, scan 0 first, so a segment's
// index is stable across encodes and indexes the compressed buffer.
func BuildSegments(l *Layout, restartInterval int) ([]Segment, error) {
	var segments []Segment
	for scan := 0; scan < l.Scans(); scan++ {
		mcus := l.ScanMCUCount(scan)
		if mcus <= 0 {
			return nil, fmt.Errorf("%w: scan %d has no MCUs", ErrInvalidParameters, scan)
		}
		interval := restartInterval
		if interval <= 0 {
			interval = mcus
		}
		for start := 0; start < mcus; start += interval {
			count := interval
			if start+count > mcus {
				count = mcus - start
			}
			segments = append(segments, Segment{
				ScanIndex: scan,
				MCUStart:  start,
				MCUCount:  count,
				Offset:    unresolvedOffset,
			})
		}
	}
	return segments, nil
}
