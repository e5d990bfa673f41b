package parjpeg

import "fmt"

// Component describes how one color component maps onto its padded block
// grid. Real dimensions come from the image parameters scaled by the
// component's sampling factor relative to the maximum factor; data dimensions
// are the allocated plane, rounded up to whole 8x8 blocks and, in interleaved
// mode, to whole MCUs.
type Component struct {
	Sampling SamplingFactor

	// Real dimensions in samples.
	Width  int
	Height int

	// Allocated plane dimensions, multiples of 8.
	DataWidth  int
	DataHeight int
	// DataSize = DataWidth * DataHeight.
	DataSize int

	// MCUSize is the samples this component contributes per MCU; MCUCount
	// is the number of MCUs in this component's scan (in interleaved mode,
	// the shared count). MCUCount*MCUSize == DataSize.
	MCUSize  int
	MCUCount int

	// SegmentCount is ceil(MCUCount/restartInterval), or 1 when the
	// restart interval is zero.
	SegmentCount int
}

// Layout is the result of the layout calculation: the component descriptors
// plus the shared MCU geometry. It is computed once per parameter set and
// reused across encodes.
type Layout struct {
	Components  []Component
	Interleaved bool

	// MCUCount and MCUSize describe the shared interleaved MCU grid. In
	// non-interleaved mode they aggregate the per-component values: the
	// total MCU count across scans and the per-block size.
	MCUCount int
	MCUSize  int

	// DataSize is the total allocated sample count across components.
	DataSize int

	// MaxH and MaxV are the maximum sampling factors across components.
	MaxH int
	MaxV int
}

// Scans returns the number of entropy-coded scans: one in interleaved mode,
// one per component otherwise.
func (l *Layout) Scans() int {
	if l.Interleaved {
		return 1
	}
	return len(l.Components)
}

// ScanMCUCount returns the MCU count of the given scan.
func (l *Layout) ScanMCUCount(scan int) int {
	if l.Interleaved {
		return l.MCUCount
	}
	return l.Components[scan].MCUCount
}

func divCeil(a, b int) int { return (a + b - 1) / b }

func roundUp(a, multiple int) int { return divCeil(a, multiple) * multiple }

// ComputeLayout validates the parameters and derives every component's
// padded grid and MCU geometry. It allocates nothing device-side; errors here
// surface before any buffer is sized.
func ComputeLayout(img ImageParameters, p Parameters) (*Layout, error) {
	if err := img.validate(); err != nil {
		return nil, err
	}
	if err := p.validate(img); err != nil {
		return nil, err
	}

	maxH, maxV := 1, 1
	for i := 0; i < img.Components; i++ {
		sf := p.factor(i)
		if sf.Horizontal > maxH {
			maxH = sf.Horizontal
		}
		if sf.Vertical > maxV {
			maxV = sf.Vertical
		}
	}

	l := &Layout{
		Components:  make([]Component, img.Components),
		Interleaved: p.Interleaved,
		MaxH:        maxH,
		MaxV:        maxV,
	}

	// Shared MCU grid in samples of the max-sampled component.
	mcuCols := divCeil(img.Width, 8*maxH)
	mcuRows := divCeil(img.Height, 8*maxV)

	for i := range l.Components {
		sf := p.factor(i)
		c := Component{Sampling: sf}
		c.Width = divCeil(img.Width*sf.Horizontal, maxH)
		c.Height = divCeil(img.Height*sf.Vertical, maxV)

		if p.Interleaved {
			// Whole MCUs: the plane holds Horizontal x Vertical blocks
			// per shared MCU cell.
			c.DataWidth = mcuCols * 8 * sf.Horizontal
			c.DataHeight = mcuRows * 8 * sf.Vertical
			c.MCUSize = sf.Horizontal * sf.Vertical * blockSize
			c.MCUCount = mcuCols * mcuRows
		} else {
			c.DataWidth = roundUp(c.Width, 8)
			c.DataHeight = roundUp(c.Height, 8)
			c.MCUSize = blockSize
			c.MCUCount = (c.DataWidth / 8) * (c.DataHeight / 8)
		}
		c.DataSize = c.DataWidth * c.DataHeight

		if c.MCUCount <= 0 {
			return nil, fmt.Errorf("%w: component %d has no MCUs", ErrInvalidParameters, i)
		}
		if c.MCUCount*c.MCUSize != c.DataSize {
			return nil, fmt.Errorf("%w: component %d MCU geometry inconsistent", ErrInvalidParameters, i)
		}

		if p.RestartInterval > 0 {
			c.SegmentCount = divCeil(c.MCUCount, p.RestartInterval)
		} else {
			c.SegmentCount = 1
		}

		l.Components[i] = c
		l.DataSize += c.DataSize
	}

	if p.Interleaved {
		l.MCUCount = mcuCols * mcuRows
		for _, c := range l.Components {
			l.MCUSize += c.MCUSize
		}
	} else {
		for _, c := range l.Components {
			l.MCUCount += c.MCUCount
		}
		l.MCUSize = blockSize
	}

	return l, nil
}
