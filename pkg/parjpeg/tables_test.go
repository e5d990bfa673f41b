package parjpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpfielding/parjpeg.go/pkg/accel"
)

func TestNewTableStore_QualityScaling(t *testing.T) {
	s50, err := NewTableStore(50)
	require.NoError(t, err)
	s90, err := NewTableStore(90)
	require.NoError(t, err)
	s10, err := NewTableStore(10)
	require.NoError(t, err)

	// Quality 50 is the identity scale for the K.1 tables.
	assert.Equal(t, baseQuant[Luminance], s50.Quant(Luminance).Table)
	assert.Equal(t, baseQuant[Chrominance], s50.Quant(Chrominance).Table)

	// Higher quality never divides harder, lower quality never divides softer.
	for class := Luminance; class < classCount; class++ {
		for i := 0; i < blockSize; i++ {
			assert.LessOrEqual(t, s90.Quant(class).Table[i], s50.Quant(class).Table[i])
			assert.GreaterOrEqual(t, s10.Quant(class).Table[i], s50.Quant(class).Table[i])
		}
	}

	// Divisors always stay DQT-encodable.
	s0, err := NewTableStore(0)
	require.NoError(t, err)
	s100, err := NewTableStore(100)
	require.NoError(t, err)
	for class := Luminance; class < classCount; class++ {
		for i := 0; i < blockSize; i++ {
			assert.GreaterOrEqual(t, s0.Quant(class).Table[i], int32(1))
			assert.LessOrEqual(t, s0.Quant(class).Table[i], int32(255))
			assert.Equal(t, int32(1), s100.Quant(class).Table[i])
		}
	}
}

func TestTableStore_InvalidQuality(t *testing.T) {
	_, err := NewTableStore(101)
	require.ErrorIs(t, err, ErrInvalidParameters)

	s, err := NewTableStore(75)
	require.NoError(t, err)
	require.ErrorIs(t, s.SetQuality(-1), ErrInvalidParameters)
	assert.Equal(t, 75, s.Quality())
}

func TestBuildHuffmanTable_CanonicalCodes(t *testing.T) {
	lumDC := buildHuffmanTable(theHuffmanSpecs[HuffmanKey{Luminance, DC}])

	// Canonical assignment over the K.3 luminance DC counts: one 2-bit code,
	// then five 3-bit codes.
	assert.Equal(t, uint8(2), lumDC.Size[0])
	assert.Equal(t, uint16(0b00), lumDC.Code[0])
	assert.Equal(t, uint8(3), lumDC.Size[1])
	assert.Equal(t, uint16(0b010), lumDC.Code[1])
	assert.Equal(t, uint8(3), lumDC.Size[5])
	assert.Equal(t, uint16(0b110), lumDC.Code[5])
	assert.Equal(t, uint8(4), lumDC.Size[6])
	assert.Equal(t, uint16(0b1110), lumDC.Code[6])

	// EOB in the luminance AC table is the well-known 1010.
	lumAC := buildHuffmanTable(theHuffmanSpecs[HuffmanKey{Luminance, AC}])
	assert.Equal(t, uint8(4), lumAC.Size[0x00])
	assert.Equal(t, uint16(0b1010), lumAC.Code[0x00])

	// Symbols the table does not define have no codeword.
	assert.Zero(t, lumDC.Size[200])
}

func TestTableStore_SyncMirrors(t *testing.T) {
	dev := accel.NewCPU(accel.CPUOptions{Workers: 1})
	defer dev.Close()

	s, err := NewTableStore(75)
	require.NoError(t, err)
	assert.Nil(t, s.deviceQuant(Luminance), "no mirror before first sync")

	require.NoError(t, s.sync(dev))
	buf := s.deviceQuant(Luminance)
	require.NotNil(t, buf)
	for i, v := range s.Quant(Luminance).Table {
		assert.Equal(t, int16(v), buf.Words()[i])
	}

	hbuf := s.deviceHuffman(Luminance, AC)
	require.NotNil(t, hbuf)
	ht := s.Huffman(Luminance, AC)
	assert.Equal(t, int16(ht.Code[0x00]), hbuf.Words()[2*0x00])
	assert.Equal(t, int16(ht.Size[0x00]), hbuf.Words()[2*0x00+1])

	// SetQuality dirties the quant mirrors; the next sync rewrites them in
	// place without reallocating.
	before := dev.InUse()
	require.NoError(t, s.SetQuality(90))
	require.NoError(t, s.sync(dev))
	assert.Equal(t, before, dev.InUse())
	assert.Same(t, buf, s.deviceQuant(Luminance))
	for i, v := range s.Quant(Luminance).Table {
		assert.Equal(t, int16(v), buf.Words()[i])
	}

	s.free()
	assert.Zero(t, dev.InUse(), "free releases every mirror")
	assert.NotNil(t, s.Quant(Luminance), "host tables survive free")
}
