package parjpeg

import "fmt"

// Entropy-coding stage. Each segment is coded by an independent kernel with
// freshly reset DC predictors, which is exactly what the restart markers the
// writer later places between segments promise a decoder. A kernel stages
// its Huffman tables out of the device mirrors into locals first, then emits
// bits MSB-first with 0xFF byte stuffing into the segment's slot of the
// compressed buffer.

// unzig maps from the zig-zag ordering to the natural ordering.
var unzig = [blockSize]int{
	0, 1, 8, 16, 9, 2, 3, 10,
	17, 24, 32, 25, 18, 11, 4, 5,
	12, 19, 26, 33, 40, 48, 41, 34,
	27, 20, 13, 6, 7, 14, 21, 28,
	35, 42, 49, 56, 57, 50, 43, 36,
	29, 22, 15, 23, 30, 37, 44, 51,
	58, 59, 52, 45, 38, 31, 39, 46,
	53, 60, 61, 54, 47, 55, 62, 63,
}

// bitCount counts the number of bits needed to hold an integer.
var bitCount = [256]byte{
	0, 1, 2, 2, 3, 3, 3, 3, 4, 4, 4, 4, 4, 4, 4, 4,
	5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6, 6,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7, 7,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
	8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8, 8,
}

// kernelTable is a Huffman table staged into kernel-local storage from its
// device mirror (the shared-memory load a GPU coder would do).
type kernelTable struct {
	code [256]uint16
	size [256]uint8
}

func loadKernelTable(words []int16) *kernelTable {
	t := &kernelTable{}
	for sym := 0; sym < 256; sym++ {
		t.code[sym] = uint16(words[2*sym])
		t.size[sym] = uint8(words[2*sym+1])
	}
	return t
}

// segmentCoder packs Huffman-coded bits into one segment's slot of the
// compressed buffer. Bits accumulate MSB-first; every emitted 0xFF byte is
// followed by a stuffed 0x00 so no marker can appear inside entropy data.
type segmentCoder struct {
	out   []byte
	n     int
	bits  uint32
	nBits uint32
	full  bool
}

func (c *segmentCoder) writeByte(b byte) {
	if c.n >= len(c.out) {
		c.full = true
		return
	}
	c.out[c.n] = b
	c.n++
}

// emit appends the least significant nBits bits of bits to the stream.
// Precondition: bits < 1<<nBits && nBits <= 16.
func (c *segmentCoder) emit(bits, nBits uint32) {
	nBits += c.nBits
	bits <<= 32 - nBits
	bits |= c.bits
	for nBits >= 8 {
		b := uint8(bits >> 24)
		c.writeByte(b)
		if b == 0xff {
			c.writeByte(0x00)
		}
		bits <<= 8
		nBits -= 8
	}
	c.bits, c.nBits = bits, nBits
}

func (c *segmentCoder) emitHuff(t *kernelTable, symbol int32) {
	c.emit(uint32(t.code[symbol]), uint32(t.size[symbol]))
}

// emitHuffRLE emits the (run, size) symbol followed by value's size bits.
func (c *segmentCoder) emitHuffRLE(t *kernelTable, runLength, value int32) {
	a, b := value, value
	if a < 0 {
		a, b = -value, value-1
	}
	var nBits uint32
	if a < 0x100 {
		nBits = uint32(bitCount[a])
	} else {
		nBits = 8 + uint32(bitCount[a>>8])
	}
	c.emitHuff(t, runLength<<4|int32(nBits))
	if nBits > 0 {
		c.emit(uint32(b)&(1<<nBits-1), nBits)
	}
}

// encodeBlock codes one quantized block (natural order), updating the DC
// predictor for the block's component.
func (c *segmentCoder) encodeBlock(b []int16, dc, ac *kernelTable, dcPred *int32) {
	d := int32(b[0]) - *dcPred
	*dcPred = int32(b[0])
	c.emitHuffRLE(dc, 0, d)

	runLength := int32(0)
	for zig := 1; zig < blockSize; zig++ {
		v := int32(b[unzig[zig]])
		if v == 0 {
			runLength++
			continue
		}
		for runLength > 15 {
			c.emitHuff(ac, 0xf0)
			runLength -= 16
		}
		c.emitHuffRLE(ac, runLength, v)
		runLength = 0
	}
	if runLength > 0 {
		c.emitHuff(ac, 0x00)
	}
}

// finish pads the final partial byte with 1-bits and returns the segment's
// compressed length.
func (c *segmentCoder) finish() (int, error) {
	if c.nBits > 0 {
		pad := 8 - c.nBits
		c.emit(1<<pad-1, pad)
	}
	if c.full {
		return 0, fmt.Errorf("%w: segment slot overflow", ErrEncodeFailed)
	}
	return c.n, nil
}
