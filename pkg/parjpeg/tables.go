package parjpeg

import (
	"fmt"

	"github.com/jpfielding/parjpeg.go/pkg/accel"
)

// Class selects the component type a table applies to. Component 0 is
// luminance; all others share the chrominance tables.
type Class int

const (
	Luminance Class = iota
	Chrominance
	classCount
)

func classOf(component int) Class {
	if component == 0 {
		return Luminance
	}
	return Chrominance
}

// Role selects which coefficient a Huffman table codes.
type Role int

const (
	DC Role = iota
	AC
)

// HuffmanKey identifies one Huffman table: component class x table role.
type HuffmanKey struct {
	Class Class
	Role  Role
}

// baseQuant are the unscaled K.1 quantization tables in natural order. Each
// store copies and scales them according to its quality parameter.
var baseQuant = [classCount][blockSize]int32{
	// Luminance.
	{
		16, 11, 10, 16, 24, 40, 51, 61,
		12, 12, 14, 19, 26, 58, 60, 55,
		14, 13, 16, 24, 40, 57, 69, 56,
		14, 17, 22, 29, 51, 87, 80, 62,
		18, 22, 37, 56, 68, 109, 103, 77,
		24, 35, 55, 64, 81, 104, 113, 92,
		49, 64, 78, 87, 103, 121, 120, 101,
		72, 92, 95, 98, 112, 100, 103, 99,
	},
	// Chrominance.
	{
		17, 18, 24, 47, 99, 99, 99, 99,
		18, 21, 26, 66, 99, 99, 99, 99,
		24, 26, 56, 99, 99, 99, 99, 99,
		47, 66, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
		99, 99, 99, 99, 99, 99, 99, 99,
	},
}

// scaleQuant applies the IJG quality-to-scale mapping and clamps divisors to
// [1,255] so they stay encodable in a baseline DQT segment.
func scaleQuant(base *[blockSize]int32, quality int) [blockSize]int32 {
	if quality < 1 {
		quality = 1
	}
	var scale int32
	if quality < 50 {
		scale = int32(5000 / quality)
	} else {
		scale = int32(200 - quality*2)
	}
	var out [blockSize]int32
	for i, v := range base {
		q := (v*scale + 50) / 100
		if q < 1 {
			q = 1
		}
		if q > 255 {
			q = 255
		}
		out[i] = q
	}
	return out
}

// QuantTable is one host-resident quantization table in natural order.
type QuantTable struct {
	Table [blockSize]int32
}

// huffmanSpec specifies a Huffman table the way DHT carries it: codeword
// counts per bit length and the symbol values in code order.
type huffmanSpec struct {
	count  [16]byte
	values []byte
}

// theHuffmanSpecs are the section K.3 tables, keyed (class, role).
var theHuffmanSpecs = map[HuffmanKey]huffmanSpec{
	{Luminance, DC}: {
		[16]byte{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0},
		[]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
	{Luminance, AC}: {
		[16]byte{0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 125},
		[]byte{
			0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12,
			0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
			0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xa1, 0x08,
			0x23, 0x42, 0xb1, 0xc1, 0x15, 0x52, 0xd1, 0xf0,
			0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0a, 0x16,
			0x17, 0x18, 0x19, 0x1a, 0x25, 0x26, 0x27, 0x28,
			0x29, 0x2a, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39,
			0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
			0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59,
			0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
			0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79,
			0x7a, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
			0x8a, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98,
			0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7,
			0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4, 0xb5, 0xb6,
			0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3, 0xc4, 0xc5,
			0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2, 0xd3, 0xd4,
			0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda, 0xe1, 0xe2,
			0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9, 0xea,
			0xf1, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	},
	{Chrominance, DC}: {
		[16]byte{0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0},
		[]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	},
	{Chrominance, AC}: {
		[16]byte{0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 119},
		[]byte{
			0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21,
			0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61, 0x71,
			0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91,
			0xa1, 0xb1, 0xc1, 0x09, 0x23, 0x33, 0x52, 0xf0,
			0x15, 0x62, 0x72, 0xd1, 0x0a, 0x16, 0x24, 0x34,
			0xe1, 0x25, 0xf1, 0x17, 0x18, 0x19, 0x1a, 0x26,
			0x27, 0x28, 0x29, 0x2a, 0x35, 0x36, 0x37, 0x38,
			0x39, 0x3a, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
			0x49, 0x4a, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58,
			0x59, 0x5a, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
			0x69, 0x6a, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78,
			0x79, 0x7a, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
			0x88, 0x89, 0x8a, 0x92, 0x93, 0x94, 0x95, 0x96,
			0x97, 0x98, 0x99, 0x9a, 0xa2, 0xa3, 0xa4, 0xa5,
			0xa6, 0xa7, 0xa8, 0xa9, 0xaa, 0xb2, 0xb3, 0xb4,
			0xb5, 0xb6, 0xb7, 0xb8, 0xb9, 0xba, 0xc2, 0xc3,
			0xc4, 0xc5, 0xc6, 0xc7, 0xc8, 0xc9, 0xca, 0xd2,
			0xd3, 0xd4, 0xd5, 0xd6, 0xd7, 0xd8, 0xd9, 0xda,
			0xe2, 0xe3, 0xe4, 0xe5, 0xe6, 0xe7, 0xe8, 0xe9,
			0xea, 0xf2, 0xf3, 0xf4, 0xf5, 0xf6, 0xf7, 0xf8,
			0xf9, 0xfa,
		},
	},
}

// HuffmanTable is one host-resident Huffman coding table: the DHT spec plus
// the derived per-symbol codeword/length lookup used by the coder.
type HuffmanTable struct {
	spec huffmanSpec

	// Code and Size are indexed by symbol. Size 0 means the symbol has no
	// codeword in this table.
	Code [256]uint16
	Size [256]uint8
}

func buildHuffmanTable(spec huffmanSpec) *HuffmanTable {
	t := &HuffmanTable{spec: spec}
	code, k := uint16(0), 0
	for i := 0; i < 16; i++ {
		for j := byte(0); j < spec.count[i]; j++ {
			t.Code[spec.values[k]] = code
			t.Size[spec.values[k]] = uint8(i + 1)
			code++
			k++
		}
		code <<= 1
	}
	return t
}

// huffmanWords is the device wire size of one Huffman table: a code word and
// a size word per symbol.
const huffmanWords = 512

// TableStore holds the quantization and Huffman tables with a host copy and
// an accelerator-resident mirror per table. Host mutations mark the table
// dirty; sync refreshes dirty mirrors and must run before any stage reads
// them. Tables are immutable during an encode.
type TableStore struct {
	quality int

	quant map[Class]*QuantTable
	huff  map[HuffmanKey]*HuffmanTable

	quantDirty map[Class]bool
	huffDirty  map[HuffmanKey]bool

	dQuant map[Class]accel.Buffer
	dHuff  map[HuffmanKey]accel.Buffer
}

// NewTableStore builds the default tables: K.1 quantization scaled to the
// given quality and the standard K.3 Huffman tables. Everything starts
// dirty; the first sync populates the device mirrors.
func NewTableStore(quality int) (*TableStore, error) {
	if quality < 0 || quality > 100 {
		return nil, fmt.Errorf("%w: quality %d", ErrInvalidParameters, quality)
	}
	s := &TableStore{
		quality:    quality,
		quant:      make(map[Class]*QuantTable, classCount),
		huff:       make(map[HuffmanKey]*HuffmanTable, len(theHuffmanSpecs)),
		quantDirty: make(map[Class]bool, classCount),
		huffDirty:  make(map[HuffmanKey]bool, len(theHuffmanSpecs)),
		dQuant:     make(map[Class]accel.Buffer, classCount),
		dHuff:      make(map[HuffmanKey]accel.Buffer, len(theHuffmanSpecs)),
	}
	for class := Luminance; class < classCount; class++ {
		s.quant[class] = &QuantTable{Table: scaleQuant(&baseQuant[class], quality)}
		s.quantDirty[class] = true
	}
	s.loadDefaultHuffman()
	return s, nil
}

// loadDefaultHuffman populates the standard DC/AC tables per component class.
func (s *TableStore) loadDefaultHuffman() {
	for key, spec := range theHuffmanSpecs {
		s.huff[key] = buildHuffmanTable(spec)
		s.huffDirty[key] = true
	}
}

// Quality returns the quality the quantization tables are scaled for.
func (s *TableStore) Quality() int { return s.quality }

// SetQuality rebuilds the host quantization tables for the new quality and
// marks them dirty. Must not overlap a live Encode on the owning context.
func (s *TableStore) SetQuality(quality int) error {
	if quality < 0 || quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidParameters, quality)
	}
	s.quality = quality
	for class := Luminance; class < classCount; class++ {
		s.quant[class] = &QuantTable{Table: scaleQuant(&baseQuant[class], quality)}
		s.quantDirty[class] = true
	}
	return nil
}

// Quant returns the host quantization table for a component class.
func (s *TableStore) Quant(class Class) *QuantTable { return s.quant[class] }

// Huffman returns the host Huffman table for (class, role).
func (s *TableStore) Huffman(class Class, role Role) *HuffmanTable {
	return s.huff[HuffmanKey{class, role}]
}

// sync refreshes dirty device mirrors, allocating them on first use. Quant
// mirrors hold the 64 divisors as words in natural order; Huffman mirrors
// hold (code, size) word pairs per symbol.
func (s *TableStore) sync(dev accel.Device) error {
	for class, dirty := range s.quantDirty {
		if !dirty {
			continue
		}
		buf := s.dQuant[class]
		if buf == nil {
			var err error
			if buf, err = dev.MallocWords(blockSize); err != nil {
				return fmt.Errorf("%w: quant table mirror: %v", ErrAllocationFailure, err)
			}
			s.dQuant[class] = buf
		}
		words := buf.Words()
		for i, v := range s.quant[class].Table {
			words[i] = int16(v)
		}
		s.quantDirty[class] = false
	}
	for key, dirty := range s.huffDirty {
		if !dirty {
			continue
		}
		buf := s.dHuff[key]
		if buf == nil {
			var err error
			if buf, err = dev.MallocWords(huffmanWords); err != nil {
				return fmt.Errorf("%w: huffman table mirror: %v", ErrAllocationFailure, err)
			}
			s.dHuff[key] = buf
		}
		words := buf.Words()
		t := s.huff[key]
		for sym := 0; sym < 256; sym++ {
			words[2*sym] = int16(t.Code[sym])
			words[2*sym+1] = int16(t.Size[sym])
		}
		s.huffDirty[key] = false
	}
	return nil
}

// deviceQuant returns the device mirror for a class; nil before first sync.
func (s *TableStore) deviceQuant(class Class) accel.Buffer { return s.dQuant[class] }

// deviceHuffman returns the device mirror for (class, role).
func (s *TableStore) deviceHuffman(class Class, role Role) accel.Buffer {
	return s.dHuff[HuffmanKey{class, role}]
}

// free releases all device mirrors. Host tables stay usable.
func (s *TableStore) free() {
	for class, buf := range s.dQuant {
		if buf != nil {
			buf.Free()
		}
		delete(s.dQuant, class)
		s.quantDirty[class] = true
	}
	for key, buf := range s.dHuff {
		if buf != nil {
			buf.Free()
		}
		delete(s.dHuff, key)
		s.huffDirty[key] = true
	}
}
