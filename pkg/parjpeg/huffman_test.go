package parjpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// kernelTablesFor serializes the host K.3 tables through the device word
// layout, the same round trip the entropy kernels take.
func kernelTablesFor(t *testing.T, class Class) (dc, ac *kernelTable) {
	t.Helper()
	pack := func(ht *HuffmanTable) *kernelTable {
		words := make([]int16, huffmanWords)
		for sym := 0; sym < 256; sym++ {
			words[2*sym] = int16(ht.Code[sym])
			words[2*sym+1] = int16(ht.Size[sym])
		}
		return loadKernelTable(words)
	}
	dcHost := buildHuffmanTable(theHuffmanSpecs[HuffmanKey{class, DC}])
	acHost := buildHuffmanTable(theHuffmanSpecs[HuffmanKey{class, AC}])
	return pack(dcHost), pack(acHost)
}

func TestSegmentCoder_ZeroBlock(t *testing.T) {
	dc, ac := kernelTablesFor(t, Luminance)

	out := make([]byte, 16)
	c := &segmentCoder{out: out}
	var pred int32
	c.encodeBlock(make([]int16, blockSize), dc, ac, &pred)
	n, err := c.finish()
	require.NoError(t, err)

	// DC diff 0 is code 00, EOB is 1010, then 1-padding: 0010 1011.
	require.Equal(t, 1, n)
	assert.Equal(t, byte(0x2b), out[0])
}

func TestSegmentCoder_DCPrediction(t *testing.T) {
	dc, ac := kernelTablesFor(t, Luminance)

	block := make([]int16, blockSize)
	block[0] = 5

	// Two identical blocks in one segment: the second DC diff is zero, so it
	// costs only the 2-bit zero-size code.
	one := &segmentCoder{out: make([]byte, 16)}
	var pred int32
	one.encodeBlock(block, dc, ac, &pred)
	assert.Equal(t, int32(5), pred)
	firstBits := one.n*8 + int(one.nBits)

	one.encodeBlock(block, dc, ac, &pred)
	secondBits := one.n*8 + int(one.nBits) - firstBits
	assert.Equal(t, 2+4, secondBits) // DC code 00 + EOB 1010
}

func TestSegmentCoder_StuffsFF(t *testing.T) {
	c := &segmentCoder{out: make([]byte, 4)}
	c.emit(0xff, 8)
	c.emit(0xa5, 8)

	assert.Equal(t, []byte{0xff, 0x00, 0xa5}, c.out[:c.n])
	assert.False(t, c.full)
}

func TestSegmentCoder_NegativeValueBits(t *testing.T) {
	dc, _ := kernelTablesFor(t, Luminance)

	// Value -1 codes as size 1 with value bits 0; value 1 as size 1, bits 1.
	neg := &segmentCoder{out: make([]byte, 4)}
	neg.emitHuffRLE(dc, 0, -1)
	pos := &segmentCoder{out: make([]byte, 4)}
	pos.emitHuffRLE(dc, 0, 1)

	require.Equal(t, neg.nBits, pos.nBits)
	assert.NotEqual(t, neg.bits, pos.bits)
	// Size-1 symbol in the luminance DC table is 010, so 4 bits total.
	assert.Equal(t, uint32(4), neg.nBits)
	assert.Equal(t, uint32(0b0100)<<28, neg.bits)
	assert.Equal(t, uint32(0b0101)<<28, pos.bits)
}

func TestSegmentCoder_ZeroRunLength(t *testing.T) {
	dc, ac := kernelTablesFor(t, Luminance)

	// 20 zero coefficients before a 1 force a ZRL (run 16) then (run 4, size 1).
	block := make([]int16, blockSize)
	block[unzig[21]] = 1
	c := &segmentCoder{out: make([]byte, 32)}
	var pred int32
	c.encodeBlock(block, dc, ac, &pred)
	_, err := c.finish()
	require.NoError(t, err)

	// Spot-check against an independent bit count: DC(0)=2, ZRL=11, (4,1)=6+1,
	// EOB=4, total 24 bits -> exactly 3 bytes.
	assert.Equal(t, 3, c.n)
}

func TestSegmentCoder_SlotOverflow(t *testing.T) {
	dc, ac := kernelTablesFor(t, Luminance)

	block := make([]int16, blockSize)
	for i := range block {
		block[i] = int16(i%2)*200 - 100
	}
	c := &segmentCoder{out: make([]byte, 2)}
	var pred int32
	c.encodeBlock(block, dc, ac, &pred)
	_, err := c.finish()
	require.ErrorIs(t, err, ErrEncodeFailed)
}
