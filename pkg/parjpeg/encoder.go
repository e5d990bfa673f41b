package parjpeg

import (
	"bytes"
	"fmt"

	"github.com/jpfielding/parjpeg.go/pkg/accel"
)

// blockCompressedBound is the worst-case compressed size of one 8x8 block:
// every coefficient at the longest codeword plus maximal value bits, doubled
// for byte stuffing, rounded up.
const blockCompressedBound = 448

// Encoder is the encoder context: it owns the layout, segment table, table
// store, and the paired host/device buffers, and drives the pipeline stages
// through the device. An encoder is created for one image shape and may
// encode any number of same-shaped images; it is not safe for concurrent use.
type Encoder struct {
	img    ImageParameters
	params Parameters

	layout   *Layout
	segments []Segment
	tables   *TableStore
	dev      accel.Device

	// Geometry derived once from the layout.
	planeOff  []int // per-component offset into the preprocessed planes
	coeffBase []int // per-component word offset into the coefficient buffer
	mcuBase   []int // per-component first MCU in the flat transform grid
	compBlock []int // per-component word offset of its blocks within one interleaved MCU
	mcuCols   int
	segStride int

	// Accelerator-resident buffer set. The host-side mirrors below are the
	// other ownership group; data crosses between them only at the explicit
	// upload/download points in Encode.
	dSource     accel.Buffer
	dPre        accel.Buffer
	dCoeff      accel.Buffer
	dCompressed accel.Buffer
	dSegments   accel.Buffer

	// Host-side mirrors.
	segScratch []byte       // serialized segment table
	compressed []byte       // compacted entropy-coded bytes
	out        bytes.Buffer // assembled JPEG stream, valid until next Encode

	broken bool
	closed bool
}

// New validates the parameters, computes the layout and segment table, and
// allocates every buffer the pipeline needs. Construction is all-or-nothing:
// on error nothing stays allocated. The caller retains ownership of dev and
// must keep it open for the encoder's lifetime.
func New(img ImageParameters, params Parameters, dev accel.Device) (*Encoder, error) {
	layout, err := ComputeLayout(img, params)
	if err != nil {
		return nil, err
	}
	segments, err := BuildSegments(layout, params.RestartInterval)
	if err != nil {
		return nil, err
	}
	tables, err := NewTableStore(params.Quality)
	if err != nil {
		return nil, err
	}

	e := &Encoder{
		img:      img,
		params:   params,
		layout:   layout,
		segments: segments,
		tables:   tables,
		dev:      dev,
	}
	e.deriveGeometry()

	if err := e.alloc(); err != nil {
		e.Close()
		return nil, err
	}
	if err := tables.sync(dev); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

func (e *Encoder) deriveGeometry() {
	l := e.layout
	e.planeOff = make([]int, len(l.Components))
	e.coeffBase = make([]int, len(l.Components))
	e.mcuBase = make([]int, len(l.Components))
	e.compBlock = make([]int, len(l.Components))
	planeOff, coeffBase, mcuBase, compBlock := 0, 0, 0, 0
	maxSegBlocks := 0
	for i, c := range l.Components {
		e.planeOff[i] = planeOff
		e.coeffBase[i] = coeffBase
		e.mcuBase[i] = mcuBase
		e.compBlock[i] = compBlock
		planeOff += c.DataSize
		coeffBase += c.DataSize
		mcuBase += c.MCUCount
		compBlock += c.MCUSize
	}
	if l.Interleaved {
		e.mcuCols = divCeil(e.img.Width, 8*l.MaxH)
	}
	for _, s := range e.segments {
		blocks := s.MCUCount * l.MCUSize / blockSize
		if blocks > maxSegBlocks {
			maxSegBlocks = blocks
		}
	}
	e.segStride = maxSegBlocks * blockCompressedBound
}

func (e *Encoder) alloc() error {
	l := e.layout
	allocs := []struct {
		dst   *accel.Buffer
		words bool
		n     int
		what  string
	}{
		{&e.dSource, false, e.img.SourceSize(), "source"},
		{&e.dPre, false, l.DataSize, "preprocessed"},
		{&e.dCoeff, true, l.DataSize, "coefficients"},
		{&e.dCompressed, false, len(e.segments) * e.segStride, "compressed"},
		{&e.dSegments, false, len(e.segments) * segmentRecordSize, "segment table"},
	}
	for _, a := range allocs {
		var buf accel.Buffer
		var err error
		if a.words {
			buf, err = e.dev.MallocWords(a.n)
		} else {
			buf, err = e.dev.Malloc(a.n)
		}
		if err != nil {
			return fmt.Errorf("%w: %s buffer: %v", ErrAllocationFailure, a.what, err)
		}
		*a.dst = buf
	}
	e.segScratch = make([]byte, len(e.segments)*segmentRecordSize)
	return nil
}

// Layout returns the computed component layout.
func (e *Encoder) Layout() *Layout { return e.layout }

// Segments returns a copy of the segment table, with offsets and sizes from
// the most recent Encode.
func (e *Encoder) Segments() []Segment {
	out := make([]Segment, len(e.segments))
	copy(out, e.segments)
	return out
}

// Tables returns the encoder's table store.
func (e *Encoder) Tables() *TableStore { return e.tables }

// SetQuality rescales the quantization tables for subsequent encodes. Must
// not be called while an Encode is in flight.
func (e *Encoder) SetQuality(quality int) error {
	if e.closed {
		return ErrEncoderClosed
	}
	return e.tables.SetQuality(quality)
}

// Encode compresses one image. src must be exactly SourceSize bytes of
// packed samples in the image's color space. The returned slice is owned by
// the encoder and is valid only until the next Encode or Close. After a
// pipeline failure the encoder is poisoned and must be recreated.
func (e *Encoder) Encode(src []byte) ([]byte, error) {
	if e.closed {
		return nil, ErrEncoderClosed
	}
	if e.broken {
		return nil, fmt.Errorf("%w: encoder poisoned by previous failure", ErrEncodeFailed)
	}
	if len(src) != e.img.SourceSize() {
		return nil, fmt.Errorf("%w: source is %d bytes, want %d", ErrEncodeFailed, len(src), e.img.SourceSize())
	}

	for i := range e.segments {
		e.segments[i].reset()
	}

	if err := e.run(src); err != nil {
		e.broken = true
		return nil, err
	}
	return e.out.Bytes(), nil
}

// run drives the pipeline: upload, preprocess, transform+quantize, entropy
// code, then download and assemble. Barriers separate the stages; within the
// entropy stage every segment is independent.
func (e *Encoder) run(src []byte) error {
	if err := e.dSource.Upload(src); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	if err := e.tables.sync(e.dev); err != nil {
		return err
	}

	e.dev.Dispatch(len(e.layout.Components), e.preprocessKernel)
	if err := e.dev.Barrier(); err != nil {
		return fmt.Errorf("%w: preprocess: %v", ErrEncodeFailed, err)
	}

	e.dev.Dispatch(e.layout.MCUCount, e.transformKernel)
	if err := e.dev.Barrier(); err != nil {
		return fmt.Errorf("%w: transform: %v", ErrEncodeFailed, err)
	}

	for i := range e.segments {
		putSegmentRecord(e.segScratch, i, &e.segments[i])
	}
	if err := e.dSegments.Upload(e.segScratch); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	e.dev.Dispatch(len(e.segments), e.entropyKernel)
	if err := e.dev.Barrier(); err != nil {
		return fmt.Errorf("%w: entropy: %v", ErrEncodeFailed, err)
	}

	if err := e.gatherSegments(); err != nil {
		return err
	}

	e.out.Reset()
	return writeStream(&e.out, e.img, e.params, e.layout, e.tables, e.segments, e.compressed)
}

// preprocessKernel unpacks component ci's padded plane.
func (e *Encoder) preprocessKernel(ci int) error {
	comp := e.layout.Components[ci]
	dst := e.dPre.Bytes()[e.planeOff[ci] : e.planeOff[ci]+comp.DataSize]
	preprocessPlane(dst, comp, ci, e.dSource.Bytes(), e.img, e.layout.MaxH, e.layout.MaxV)
	return nil
}

// transformKernel transforms and quantizes the blocks of one MCU, writing
// them block-linear in scan order.
func (e *Encoder) transformKernel(m int) error {
	l := e.layout
	coeff := e.dCoeff.Words()
	pre := e.dPre.Bytes()

	if !l.Interleaved {
		// Flat grid over all components' blocks; one MCU is one block.
		ci := len(l.Components) - 1
		for ci > 0 && m < e.mcuBase[ci] {
			ci--
		}
		comp := l.Components[ci]
		b := m - e.mcuBase[ci]
		cols := comp.DataWidth / 8
		quant := e.tables.deviceQuant(classOf(ci)).Words()
		plane := pre[e.planeOff[ci] : e.planeOff[ci]+comp.DataSize]
		out := coeff[e.coeffBase[ci]+b*blockSize:]
		fdctQuantBlock(out[:blockSize], plane, comp.DataWidth, b%cols, b/cols, quant)
		return nil
	}

	mx, my := m%e.mcuCols, m/e.mcuCols
	base := m * l.MCUSize
	for ci, comp := range l.Components {
		quant := e.tables.deviceQuant(classOf(ci)).Words()
		plane := pre[e.planeOff[ci] : e.planeOff[ci]+comp.DataSize]
		out := base + e.compBlock[ci]
		fh, fv := comp.Sampling.Horizontal, comp.Sampling.Vertical
		for v := 0; v < fv; v++ {
			for h := 0; h < fh; h++ {
				fdctQuantBlock(coeff[out:out+blockSize], plane, comp.DataWidth, mx*fh+h, my*fv+v, quant)
				out += blockSize
			}
		}
	}
	return nil
}

// entropyKernel Huffman-codes one segment into its slot of the compressed
// buffer and publishes the byte count through the device segment table. DC
// predictors start at zero: the restart marker the writer places before this
// segment resets the decoder the same way.
func (e *Encoder) entropyKernel(si int) error {
	l := e.layout
	seg := &e.segments[si]
	coeff := e.dCoeff.Words()
	slot := e.dCompressed.Bytes()[si*e.segStride : (si+1)*e.segStride]
	coder := &segmentCoder{out: slot}

	if !l.Interleaved {
		ci := seg.ScanIndex
		class := classOf(ci)
		dc := loadKernelTable(e.tables.deviceHuffman(class, DC).Words())
		ac := loadKernelTable(e.tables.deviceHuffman(class, AC).Words())
		var pred int32
		base := e.coeffBase[ci]
		for mcu := seg.MCUStart; mcu < seg.MCUStart+seg.MCUCount; mcu++ {
			b := coeff[base+mcu*blockSize:]
			coder.encodeBlock(b[:blockSize], dc, ac, &pred)
		}
	} else {
		var kt [classCount][2]*kernelTable
		for class := Luminance; class < classCount; class++ {
			kt[class][DC] = loadKernelTable(e.tables.deviceHuffman(class, DC).Words())
			kt[class][AC] = loadKernelTable(e.tables.deviceHuffman(class, AC).Words())
		}
		preds := make([]int32, len(l.Components))
		for mcu := seg.MCUStart; mcu < seg.MCUStart+seg.MCUCount; mcu++ {
			base := mcu * l.MCUSize
			for ci, comp := range l.Components {
				class := classOf(ci)
				off := base + e.compBlock[ci]
				for n := 0; n < comp.MCUSize/blockSize; n++ {
					b := coeff[off : off+blockSize]
					coder.encodeBlock(b, kt[class][DC], kt[class][AC], &preds[ci])
					off += blockSize
				}
			}
		}
	}

	n, err := coder.finish()
	if err != nil {
		return err
	}
	segmentRecordSetSize(e.dSegments.Bytes(), si, int32(n))
	return nil
}

// gatherSegments downloads the device segment table, resolves every
// segment's offset by prefix sum over the published sizes, and compacts the
// per-segment slots into one contiguous host buffer.
func (e *Encoder) gatherSegments() error {
	if err := e.dSegments.Download(e.segScratch); err != nil {
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	var total int32
	for i := range e.segments {
		size := segmentRecordSizeAt(e.segScratch, i)
		if err := e.segments[i].resolve(total, size); err != nil {
			return err
		}
		total += size
	}

	if cap(e.compressed) < int(total) {
		e.compressed = make([]byte, 0, total)
	}
	e.compressed = e.compressed[:0]
	slots := e.dCompressed.Bytes()
	for i := range e.segments {
		seg := &e.segments[i]
		slot := slots[i*e.segStride : i*e.segStride+int(seg.Size)]
		e.compressed = append(e.compressed, slot...)
	}
	return nil
}

// Close releases every buffer the encoder owns, host and device. Close is
// idempotent; the device itself stays open for its owner.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	for _, buf := range []accel.Buffer{e.dSource, e.dPre, e.dCoeff, e.dCompressed, e.dSegments} {
		if buf != nil {
			buf.Free()
		}
	}
	e.dSource, e.dPre, e.dCoeff, e.dCompressed, e.dSegments = nil, nil, nil, nil, nil
	if e.tables != nil {
		e.tables.free()
	}
	e.segScratch = nil
	e.compressed = nil
	e.out = bytes.Buffer{}
	return nil
}
