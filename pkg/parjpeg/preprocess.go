package parjpeg

// Preprocessor stage: unpacks the interleaved 8-bit source into one padded
// plane per component, applying color conversion and chroma decimation as
// the sampling factors require. Padding replicates the last real sample row
// and column out to the block/MCU-aligned data dimensions, the conventional
// JPEG edge policy (flat extrapolation keeps the high-frequency cost of
// partial blocks down).

func clamp8(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// rgbToYCbCr is the JFIF integer conversion. Coefficient rows sum to 65536
// (Y) and 0 (Cb, Cr).
func rgbToYCbCr(r, g, b int32) (uint8, uint8, uint8) {
	y := (19595*r + 38470*g + 7471*b + 32768) >> 16
	cb := ((-11056*r - 21712*g + 32768*b) >> 16) + 128
	cr := ((32768*r - 27440*g - 5328*b) >> 16) + 128
	return clamp8(y), clamp8(cb), clamp8(cr)
}

// channelAt reads component ci of the source pixel (x, y) in the image's
// color space, converting RGB on the fly.
func channelAt(src []byte, img ImageParameters, ci, x, y int) uint8 {
	switch img.ColorSpace {
	case ColorSpaceGray:
		return src[y*img.Width+x]
	case ColorSpaceYCbCr:
		return src[(y*img.Width+x)*img.Components+ci]
	default:
		p := (y*img.Width + x) * img.Components
		r, g, b := int32(src[p]), int32(src[p+1]), int32(src[p+2])
		yy, cb, cr := rgbToYCbCr(r, g, b)
		switch ci {
		case 0:
			return yy
		case 1:
			return cb
		default:
			return cr
		}
	}
}

// preprocessPlane fills component ci's padded plane. Each target sample
// box-averages the source region its sampling factor maps it onto; targets
// past the real component edge clamp to the last real sample.
func preprocessPlane(dst []byte, comp Component, ci int, src []byte, img ImageParameters, maxH, maxV int) {
	fh, fv := comp.Sampling.Horizontal, comp.Sampling.Vertical
	for y := 0; y < comp.DataHeight; y++ {
		cy := y
		if cy >= comp.Height {
			cy = comp.Height - 1
		}
		sy0 := cy * maxV / fv
		sy1 := (cy + 1) * maxV / fv
		if sy1 <= sy0 {
			sy1 = sy0 + 1
		}
		if sy1 > img.Height {
			sy1 = img.Height
		}
		if sy0 >= img.Height {
			sy0 = img.Height - 1
			sy1 = img.Height
		}
		row := dst[y*comp.DataWidth:]
		for x := 0; x < comp.DataWidth; x++ {
			cx := x
			if cx >= comp.Width {
				cx = comp.Width - 1
			}
			sx0 := cx * maxH / fh
			sx1 := (cx + 1) * maxH / fh
			if sx1 <= sx0 {
				sx1 = sx0 + 1
			}
			if sx1 > img.Width {
				sx1 = img.Width
			}
			if sx0 >= img.Width {
				sx0 = img.Width - 1
				sx1 = img.Width
			}
			var sum, n int32
			for sy := sy0; sy < sy1; sy++ {
				for sx := sx0; sx < sx1; sx++ {
					sum += int32(channelAt(src, img, ci, sx, sy))
					n++
				}
			}
			row[x] = uint8((sum + n/2) / n)
		}
	}
}
