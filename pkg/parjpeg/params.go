// Package parjpeg implements a baseline JPEG encoder whose entropy-coding
// stage is decomposed into independently codable segments.
//
// JPEG's Huffman coder is sequential: DC prediction state flows from block to
// block. Restart markers reset that state, so partitioning each scan's MCU
// sequence into restart-interval-aligned segments yields units that can be
// coded out of order or simultaneously and later concatenated, separated by
// restart markers, into one legal bitstream. The encoder keeps a host-side
// mirror of everything the device touches and runs the pipeline stages
// (preprocess, transform+quantize, entropy code, bitstream write) through an
// accel.Device.
package parjpeg

import "fmt"

const (
	// MaxComponents is the maximum number of color components.
	MaxComponents = 4

	// blockSize is the number of samples in an 8x8 coding block.
	blockSize = 64

	// maxSamplingFactor bounds each sampling factor axis.
	maxSamplingFactor = 4
)

// ColorSpace identifies the layout of the packed source samples handed to
// Encode. Three-component sources are either RGB (converted to YCbCr during
// preprocessing) or already YCbCr.
type ColorSpace int

const (
	ColorSpaceRGB ColorSpace = iota
	ColorSpaceYCbCr
	ColorSpaceGray
)

func (c ColorSpace) String() string {
	switch c {
	case ColorSpaceRGB:
		return "rgb"
	case ColorSpaceYCbCr:
		return "ycbcr"
	case ColorSpaceGray:
		return "gray"
	}
	return fmt.Sprintf("colorspace(%d)", int(c))
}

// ImageParameters describe the source image. They are immutable for the
// lifetime of one encoder.
type ImageParameters struct {
	Width      int
	Height     int
	Components int
	ColorSpace ColorSpace
}

// SourceSize is the byte size Encode expects: packed interleaved 8-bit
// samples at the image's real dimensions.
func (p ImageParameters) SourceSize() int {
	return p.Width * p.Height * p.Components
}

func (p ImageParameters) validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: image dimensions %dx%d", ErrInvalidParameters, p.Width, p.Height)
	}
	if p.Components < 1 || p.Components > MaxComponents {
		return fmt.Errorf("%w: component count %d", ErrInvalidParameters, p.Components)
	}
	if p.ColorSpace == ColorSpaceGray && p.Components != 1 {
		return fmt.Errorf("%w: gray color space with %d components", ErrInvalidParameters, p.Components)
	}
	if p.ColorSpace != ColorSpaceGray && p.Components == 1 {
		return fmt.Errorf("%w: single component requires gray color space", ErrInvalidParameters)
	}
	return nil
}

// SamplingFactor is a per-component horizontal/vertical sampling pair,
// relative to the image's maximum factor. 4:2:0 is {2,2},{1,1},{1,1}.
type SamplingFactor struct {
	Horizontal int
	Vertical   int
}

// Parameters configure one encoder.
type Parameters struct {
	// Quality in [0,100] maps to quantization scaling via the IJG formula.
	Quality int

	// RestartInterval is the number of MCUs per entropy-coded segment.
	// Zero disables segmentation: one segment per scan.
	RestartInterval int

	// Interleaved selects a single scan covering all components
	// (Y Cb Cr Y Cb Cr ...) instead of one scan per component.
	Interleaved bool

	// SamplingFactors holds one factor pair per component. Components
	// beyond the slice default to 1x1.
	SamplingFactors []SamplingFactor
}

// DefaultParameters mirror the original encoder's defaults: quality 75,
// restart interval 8, non-interleaved, 4:4:4.
func DefaultParameters() Parameters {
	return Parameters{
		Quality:         75,
		RestartInterval: 8,
	}
}

// factor returns the sampling pair for component i, defaulting to 1x1.
func (p Parameters) factor(i int) SamplingFactor {
	if i < len(p.SamplingFactors) {
		return p.SamplingFactors[i]
	}
	return SamplingFactor{1, 1}
}

func (p Parameters) validate(img ImageParameters) error {
	if p.Quality < 0 || p.Quality > 100 {
		return fmt.Errorf("%w: quality %d", ErrInvalidParameters, p.Quality)
	}
	if p.RestartInterval < 0 {
		return fmt.Errorf("%w: restart interval %d", ErrInvalidParameters, p.RestartInterval)
	}
	if len(p.SamplingFactors) > img.Components {
		return fmt.Errorf("%w: %d sampling factors for %d components",
			ErrInvalidParameters, len(p.SamplingFactors), img.Components)
	}
	mcuBlocks := 0
	for i := 0; i < img.Components; i++ {
		sf := p.factor(i)
		if sf.Horizontal < 1 || sf.Horizontal > maxSamplingFactor ||
			sf.Vertical < 1 || sf.Vertical > maxSamplingFactor {
			return fmt.Errorf("%w: sampling factor %dx%d for component %d",
				ErrInvalidParameters, sf.Horizontal, sf.Vertical, i)
		}
		mcuBlocks += sf.Horizontal * sf.Vertical
	}
	// T.81 B.2.3: an interleaved MCU may hold at most 10 blocks.
	if p.Interleaved && mcuBlocks > 10 {
		return fmt.Errorf("%w: %d blocks per interleaved MCU (max 10)", ErrInvalidParameters, mcuBlocks)
	}
	return nil
}
