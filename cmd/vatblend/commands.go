package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/airbusgeo/vatblend"
	"github.com/airbusgeo/vatblend/gdalio"
	"github.com/spf13/cobra"
)

var visualizations []string
var blends []string
var tileExtents []string
var tileSize int
var pixelCount int
var blockMultiple int
var outDir string

func init() {
	for _, cmd := range []*cobra.Command{tiledCmd, tilesCmd, workflowCmd} {
		flags := cmd.Flags()
		flags.IntVar(&tileSize, "tileSize", 0, "tile width and height, in pixels")
		flags.IntVar(&pixelCount, "pixelCount", 0, "target number of pixels per tile, ignored if --tileSize is set")
		flags.IntVar(&blockMultiple, "blockMultiple", 256, "align tiles to this number of pixels")
	}
	for _, cmd := range []*cobra.Command{tiledCmd, workflowCmd} {
		flags := cmd.Flags()
		flags.StringVar(&outDir, "out", "", "output directory (default: directory of the input)")
		flags.StringSliceVar(&visualizations, "vis", nil, "visualizations to export as 8bit images, e.g. svf,slope,opns. "+
			"Outputs are named after the visualization only: <stem>_<vis>.tif, or <vis>/<left>_<bottom>_rvt_<vis>.tif per tile")
		flags.StringSliceVar(&blends, "blend", nil, "blended products, e.g. vat_combined,rrim,e4MSTP")
	}
	tiledCmd.Flags().StringArrayVar(&tileExtents, "tile", nil, "only process this left,bottom,right,top extent (repeatable)")
}

var combinedCmd = &cobra.Command{
	Use:   "combined srcdir dstdir",
	Short: "render the combined VAT of every .tif elevation model of srcdir",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := newConfig(combinedFill)
		if err != nil {
			return err
		}
		report, err := vatblend.CombinedVAT(ctx, vatblend.CombinedOptions{
			Config:    cfg,
			InputDir:  args[0],
			OutputDir: args[1],
			Opacity:   opacity,
			Save8bit:  save8bit,
		})
		if err != nil {
			return err
		}
		return logReport(ctx, report)
	},
}

var tiledCmd = &cobra.Command{
	Use:   "tiled mosaic.vrt",
	Short: "render visualizations and blends of a single raster, optionally tile by tile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := newConfig(tiledFill)
		if err != nil {
			return err
		}
		opts := vatblend.TiledOptions{
			Config:         cfg,
			Input:          args[0],
			OutputDir:      outDir,
			Visualizations: visualizations,
			Blends:         blends,
			TilerOptions:   tilerOptions(),
			Opacity:        opacity,
			Save8bit:       save8bit,
		}
		for _, s := range tileExtents {
			ext, err := parseExtent(s)
			if err != nil {
				return err
			}
			opts.Tiles = append(opts.Tiles, ext)
		}
		report, err := vatblend.Tiled(ctx, opts)
		if err != nil {
			return err
		}
		return logReport(ctx, report)
	},
}

var tilesCmd = &cobra.Command{
	Use:   "tiles mosaic.vrt",
	Short: "print the tile extents of a raster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exts, err := tiles(cmd, args[0])
		if err != nil {
			return err
		}
		for _, ext := range exts {
			fmt.Println(formatExtent(ext))
		}
		return nil
	},
}

// tilerOptions returns nil when no tiling was requested
func tilerOptions() []vatblend.TilerOption {
	var opts []vatblend.TilerOption
	switch {
	case tileSize > 0:
		opts = append(opts, vatblend.TileSize(tileSize, tileSize))
	case pixelCount > 0:
		opts = append(opts, vatblend.TargetPixelCount(pixelCount))
	default:
		return nil
	}
	return append(opts, vatblend.BlockMultiple(blockMultiple))
}

func tiles(cmd *cobra.Command, input string) ([]vatblend.Extent, error) {
	p, err := gdalio.Source{}.Describe(cmd.Context(), input)
	if err != nil {
		return nil, err
	}
	opts := tilerOptions()
	if opts == nil {
		return []vatblend.Extent{p.Transform.Bounds(p.Width, p.Height)}, nil
	}
	tiler, err := vatblend.NewTiler(p.Width, p.Height, p.Transform, opts...)
	if err != nil {
		return nil, fmt.Errorf("newtiler: %w", err)
	}
	return tiler.Extents(), nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatExtent(e vatblend.Extent) string {
	return strings.Join([]string{formatFloat(e.Left), formatFloat(e.Bottom), formatFloat(e.Right), formatFloat(e.Top)}, ",")
}

func parseExtent(s string) (vatblend.Extent, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return vatblend.Extent{}, fmt.Errorf("invalid extent %q: expected left,bottom,right,top", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return vatblend.Extent{}, fmt.Errorf("invalid extent %q: %w", s, err)
		}
		v[i] = f
	}
	ext := vatblend.Extent{Left: v[0], Bottom: v[1], Right: v[2], Top: v[3]}
	if ext.Right <= ext.Left || ext.Top <= ext.Bottom {
		return vatblend.Extent{}, fmt.Errorf("invalid extent %q: empty", s)
	}
	return ext, nil
}

// outputDir mirrors the default of vatblend.Tiled
func outputDir(input string) string {
	if outDir != "" {
		return outDir
	}
	return vatblend.Dir(input)
}
