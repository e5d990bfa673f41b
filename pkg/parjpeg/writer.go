package parjpeg

import (
	"bytes"
	"fmt"
)

// Bitstream writer: assembles the final JPEG stream from the encoder's
// tables, layout, and the finalized segment table. Segment boundaries map
// one-to-one onto restart markers, which is what makes the independently
// coded segments concatenate into a legal scan.

type bitstreamWriter struct {
	buf *bytes.Buffer
}

func (w *bitstreamWriter) writeMarker(m uint16) {
	w.buf.WriteByte(byte(m >> 8))
	w.buf.WriteByte(byte(m))
}

// writeSegment writes a marker segment: marker, big-endian length covering
// the length field itself, then data.
func (w *bitstreamWriter) writeSegment(marker uint16, data []byte) {
	w.writeMarker(marker)
	n := len(data) + 2
	w.buf.WriteByte(byte(n >> 8))
	w.buf.WriteByte(byte(n))
	w.buf.Write(data)
}

func (w *bitstreamWriter) writeAPP0() {
	w.writeSegment(markerAPP0, []byte{
		'J', 'F', 'I', 'F', 0x00, // identifier
		0x01, 0x01, // version 1.1
		0x00,       // aspect ratio units
		0x00, 0x01, // x density
		0x00, 0x01, // y density
		0x00, 0x00, // no thumbnail
	})
}

// writeDQT emits one DQT segment per component class in use, 8-bit
// precision, in zig-zag order.
func (w *bitstreamWriter) writeDQT(tables *TableStore, classes int) {
	data := make([]byte, 0, classes*(1+blockSize))
	for class := Luminance; class < Class(classes); class++ {
		data = append(data, byte(class))
		q := tables.Quant(class)
		for zig := 0; zig < blockSize; zig++ {
			data = append(data, byte(q.Table[unzig[zig]]))
		}
	}
	w.writeSegment(markerDQT, data)
}

func (w *bitstreamWriter) writeSOF0(img ImageParameters, l *Layout) {
	data := make([]byte, 6+3*len(l.Components))
	data[0] = 8 // sample precision
	data[1] = byte(img.Height >> 8)
	data[2] = byte(img.Height)
	data[3] = byte(img.Width >> 8)
	data[4] = byte(img.Width)
	data[5] = byte(len(l.Components))
	for i, c := range l.Components {
		data[6+3*i] = byte(i + 1) // component id
		data[7+3*i] = byte(c.Sampling.Horizontal<<4 | c.Sampling.Vertical)
		data[8+3*i] = byte(classOf(i)) // quant table id
	}
	w.writeSegment(markerSOF0, data)
}

// writeDHT emits the Huffman table specs, luminance pair first and the
// chrominance pair only when more than one component exists.
func (w *bitstreamWriter) writeDHT(tables *TableStore, classes int) {
	var data []byte
	for class := Luminance; class < Class(classes); class++ {
		for _, role := range []Role{DC, AC} {
			spec := tables.Huffman(class, role).spec
			data = append(data, byte(int(role)<<4|int(class)))
			data = append(data, spec.count[:]...)
			data = append(data, spec.values...)
		}
	}
	w.writeSegment(markerDHT, data)
}

func (w *bitstreamWriter) writeDRI(restartInterval int) {
	w.writeSegment(markerDRI, []byte{
		byte(restartInterval >> 8),
		byte(restartInterval),
	})
}

// writeSOS emits one scan header: all components in interleaved mode, the
// single scan component otherwise.
func (w *bitstreamWriter) writeSOS(l *Layout, scan int) {
	var comps []int
	if l.Interleaved {
		for i := range l.Components {
			comps = append(comps, i)
		}
	} else {
		comps = []int{scan}
	}
	data := make([]byte, 1+2*len(comps)+3)
	data[0] = byte(len(comps))
	for i, ci := range comps {
		class := byte(classOf(ci))
		data[1+2*i] = byte(ci + 1)     // component id
		data[2+2*i] = class<<4 | class // DC, AC table ids
	}
	// Ss=0, Se=63, Ah/Al=0 for baseline sequential.
	data[len(data)-3] = 0x00
	data[len(data)-2] = 0x3f
	data[len(data)-1] = 0x00
	w.writeSegment(markerSOS, data)
}

// writeStream assembles the complete JPEG byte stream into buf. compressed
// is the compacted entropy-coded data the resolved segment table indexes.
func writeStream(buf *bytes.Buffer, img ImageParameters, p Parameters, l *Layout, tables *TableStore, segments []Segment, compressed []byte) error {
	classes := 1
	if len(l.Components) > 1 {
		classes = int(classCount)
	}

	w := &bitstreamWriter{buf: buf}
	w.writeMarker(markerSOI)
	w.writeAPP0()
	w.writeDQT(tables, classes)
	w.writeSOF0(img, l)
	w.writeDHT(tables, classes)
	if p.RestartInterval > 0 {
		w.writeDRI(p.RestartInterval)
	}

	si := 0
	for scan := 0; scan < l.Scans(); scan++ {
		w.writeSOS(l, scan)
		rst := 0
		for ; si < len(segments) && segments[si].ScanIndex == scan; si++ {
			seg := &segments[si]
			if !seg.Resolved() {
				return fmt.Errorf("%w: unresolved segment in scan %d", ErrEncodeFailed, scan)
			}
			if seg.MCUStart > 0 {
				w.writeMarker(uint16(markerRST0 + rst))
				rst = (rst + 1) & 7
			}
			buf.Write(compressed[seg.Offset : seg.Offset+seg.Size])
		}
	}

	w.writeMarker(markerEOI)
	return nil
}
