package cmd

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpfielding/parjpeg.go/pkg/accel"
	"github.com/jpfielding/parjpeg.go/pkg/parjpeg"
	"github.com/jpfielding/parjpeg.go/pkg/util"
)

// subsamplingPresets map the usual chroma subsampling names onto
// per-component sampling factors.
var subsamplingPresets = map[string][]parjpeg.SamplingFactor{
	"444": {{Horizontal: 1, Vertical: 1}, {Horizontal: 1, Vertical: 1}, {Horizontal: 1, Vertical: 1}},
	"422": {{Horizontal: 2, Vertical: 1}, {Horizontal: 1, Vertical: 1}, {Horizontal: 1, Vertical: 1}},
	"420": {{Horizontal: 2, Vertical: 2}, {Horizontal: 1, Vertical: 1}, {Horizontal: 1, Vertical: 1}},
}

// NewEncodeCmd creates the encode cobra command
func NewEncodeCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "encode an image to baseline JPEG",
		Long:  "Reads a PNG or JPEG image and re-encodes it with the segment-parallel encoder.",
		RunE: func(cmd *cobra.Command, args []string) error {
			inPath, _ := cmd.Flags().GetString("in")
			outPath, _ := cmd.Flags().GetString("out")
			quality, _ := cmd.Flags().GetInt("quality")
			restart, _ := cmd.Flags().GetInt("restart-interval")
			interleaved, _ := cmd.Flags().GetBool("interleaved")
			subsampling, _ := cmd.Flags().GetString("subsampling")
			workers, _ := cmd.Flags().GetInt("workers")

			if inPath == "" && len(args) > 0 {
				inPath = args[0]
			}
			if inPath == "" {
				return fmt.Errorf("input path is required. Use --in flag or provide as argument")
			}
			if outPath == "" {
				outPath = inPath + ".out.jpg"
			}

			return runEncode(ctx, inPath, outPath, quality, restart, interleaved, subsampling, workers)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringP("in", "i", "", "input image (png or jpeg)")
	pf.StringP("out", "o", "", "output jpeg path (default <in>.out.jpg)")
	pf.IntP("quality", "q", 75, "quality 0-100")
	pf.Int("restart-interval", 8, "MCUs per restart segment (0 = one segment per scan)")
	pf.Bool("interleaved", false, "single interleaved scan instead of one scan per component")
	pf.String("subsampling", "444", "chroma subsampling (444, 422, 420)")
	pf.Int("workers", 0, "entropy-coder workers (0 = NumCPU)")

	return cmd
}

func runEncode(ctx context.Context, inPath, outPath string, quality, restart int, interleaved bool, subsampling string, workers int) error {
	f, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("failed to open input: %w", err)
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode input: %w", err)
	}

	img, samples := packSamples(src)
	params := parjpeg.Parameters{
		Quality:         quality,
		RestartInterval: restart,
		Interleaved:     interleaved,
	}
	if img.Components == 3 {
		factors, ok := subsamplingPresets[subsampling]
		if !ok {
			return fmt.Errorf("unknown subsampling %q", subsampling)
		}
		params.SamplingFactors = factors
	}

	jobID := util.HashID(struct {
		In     string
		Img    parjpeg.ImageParameters
		Params parjpeg.Parameters
	}{inPath, img, params})

	dev := accel.NewCPU(accel.CPUOptions{Workers: workers})
	defer dev.Close()
	enc, err := parjpeg.New(img, params, dev)
	if err != nil {
		return err
	}
	defer enc.Close()

	start := time.Now()
	jpg, err := enc.Encode(samples)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, jpg, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	slog.InfoContext(ctx, "encoded",
		"job", jobID,
		"in", inPath,
		"out", outPath,
		"width", img.Width,
		"height", img.Height,
		"components", img.Components,
		"segments", len(enc.Segments()),
		"bytes", len(jpg),
		"md5", util.Md5ThenHex(jpg),
		"elapsed", time.Since(start),
	)
	return nil
}

// packSamples flattens a decoded image into the packed layout the encoder
// expects: gray planes stay single-component, everything else becomes RGB.
func packSamples(src image.Image) (parjpeg.ImageParameters, []byte) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	if g, ok := src.(*image.Gray); ok {
		img := parjpeg.ImageParameters{Width: w, Height: h, Components: 1, ColorSpace: parjpeg.ColorSpaceGray}
		samples := make([]byte, w*h)
		for y := 0; y < h; y++ {
			copy(samples[y*w:(y+1)*w], g.Pix[y*g.Stride:y*g.Stride+w])
		}
		return img, samples
	}

	img := parjpeg.ImageParameters{Width: w, Height: h, Components: 3, ColorSpace: parjpeg.ColorSpaceRGB}
	samples := make([]byte, w*h*3)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := src.At(x, y).RGBA()
			samples[i] = byte(r >> 8)
			samples[i+1] = byte(g >> 8)
			samples[i+2] = byte(bl >> 8)
			i += 3
		}
	}
	return img, samples
}
