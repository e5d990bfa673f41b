package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpfielding/parjpeg.go/pkg/parjpeg"
)

// NewLayoutCmd creates the layout cobra command
func NewLayoutCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "show the component layout and segment table for given parameters",
		Long:  "Computes the padded block grids, MCU geometry, and restart segment partition the encoder would use, without encoding anything.",
		RunE: func(cmd *cobra.Command, args []string) error {
			width, _ := cmd.Flags().GetInt("width")
			height, _ := cmd.Flags().GetInt("height")
			components, _ := cmd.Flags().GetInt("components")
			restart, _ := cmd.Flags().GetInt("restart-interval")
			interleaved, _ := cmd.Flags().GetBool("interleaved")
			subsampling, _ := cmd.Flags().GetString("subsampling")
			format, _ := cmd.Flags().GetString("format")

			img := parjpeg.ImageParameters{Width: width, Height: height, Components: components}
			if components == 1 {
				img.ColorSpace = parjpeg.ColorSpaceGray
			}
			params := parjpeg.Parameters{
				Quality:         75,
				RestartInterval: restart,
				Interleaved:     interleaved,
			}
			if components == 3 {
				factors, ok := subsamplingPresets[subsampling]
				if !ok {
					return fmt.Errorf("unknown subsampling %q", subsampling)
				}
				params.SamplingFactors = factors
			}

			layout, err := parjpeg.ComputeLayout(img, params)
			if err != nil {
				return err
			}
			segments, err := parjpeg.BuildSegments(layout, params.RestartInterval)
			if err != nil {
				return err
			}

			switch format {
			case "text":
				fmt.Printf("scans=%d mcu_count=%d mcu_size=%d data_size=%d\n",
					layout.Scans(), layout.MCUCount, layout.MCUSize, layout.DataSize)
				for i, c := range layout.Components {
					fmt.Printf("component %d: %dx%d data %dx%d sampling %dx%d mcus=%d segments=%d\n",
						i, c.Width, c.Height, c.DataWidth, c.DataHeight,
						c.Sampling.Horizontal, c.Sampling.Vertical, c.MCUCount, c.SegmentCount)
				}
				for i, s := range segments {
					fmt.Printf("segment %d: scan=%d mcus=[%d,%d)\n",
						i, s.ScanIndex, s.MCUStart, s.MCUStart+s.MCUCount)
				}
			default:
				j, _ := json.Marshal(struct {
					Layout   *parjpeg.Layout   `json:"layout"`
					Segments []parjpeg.Segment `json:"segments"`
				}{layout, segments})
				os.Stdout.Write(j)
				fmt.Println()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.Int("width", 1920, "image width")
	pf.Int("height", 1080, "image height")
	pf.Int("components", 3, "component count (1 or 3)")
	pf.Int("restart-interval", 8, "MCUs per restart segment (0 = one segment per scan)")
	pf.Bool("interleaved", false, "single interleaved scan")
	pf.String("subsampling", "444", "chroma subsampling (444, 422, 420)")
	pf.StringP("format", "f", "json", "output format (text|json)")

	return cmd
}
