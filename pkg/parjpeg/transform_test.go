package parjpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiv_RoundsToNearest(t *testing.T) {
	assert.Equal(t, int32(4), div(7, 2))
	assert.Equal(t, int32(-4), div(-7, 2))
	assert.Equal(t, int32(1), div(5, 10))
	assert.Equal(t, int32(-1), div(-5, 10))
	assert.Equal(t, int32(0), div(4, 10))
	assert.Equal(t, int32(0), div(-4, 10))
}

func TestFDCT_FlatBlock(t *testing.T) {
	// A constant block has only a DC term: 8x the level-shifted sample.
	for _, v := range []byte{0, 77, 128, 200, 255} {
		plane := make([]byte, blockSize)
		for i := range plane {
			plane[i] = v
		}
		var coef [blockSize]int32
		fdct(plane, 8, &coef)

		assert.Equal(t, 8*(int32(v)-128), coef[0], "dc for %d", v)
		for i := 1; i < blockSize; i++ {
			assert.Zero(t, coef[i], "ac %d for %d", i, v)
		}
	}
}

func TestFDCT_UsesStride(t *testing.T) {
	// The same block content must transform identically regardless of the
	// plane stride it sits in.
	plane := make([]byte, 16*16)
	for i := range plane {
		plane[i] = byte(i * 7)
	}
	var wide, tight [blockSize]int32
	fdct(plane[8*16+8:], 16, &wide)

	block := make([]byte, blockSize)
	for y := 0; y < 8; y++ {
		copy(block[y*8:], plane[(8+y)*16+8:(8+y)*16+16])
	}
	fdct(block, 8, &tight)

	assert.Equal(t, tight, wide)
}

func TestFDCTQuantBlock(t *testing.T) {
	plane := make([]byte, blockSize)
	for i := range plane {
		plane[i] = 130
	}

	// Quality 50 leaves the K.1 luminance table unscaled, so the flat DC term
	// 8*(130-128)=16 divides by q[0]=16 to exactly 1.
	quant := make([]int16, blockSize)
	for i, v := range scaleQuant(&baseQuant[Luminance], 50) {
		quant[i] = int16(v)
	}
	out := make([]int16, blockSize)
	fdctQuantBlock(out, plane, 8, 0, 0, quant)

	assert.Equal(t, int16(1), out[0])
	for i := 1; i < blockSize; i++ {
		assert.Zero(t, out[i], "ac %d", i)
	}
}
