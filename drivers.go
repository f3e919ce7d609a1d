package vatblend

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// A RasterDescriber returns the size and georeferencing of a raster without
// reading its pixels
type RasterDescriber interface {
	Describe(ctx context.Context, path string) (Profile, error)
}

// Config holds the collaborators and settings shared by the drivers. It is
// not modified by the drivers.
type Config struct {
	// Recipe is the base VAT recipe, DefaultVATRecipe if empty
	Recipe CombinationSpec
	// Terrains lists the terrain profiles, DefaultTerrains if empty
	Terrains TerrainDocument

	Source   RasterSource
	Provider Provider
	Sink     RasterSink
	Store    Store

	// Workers is the number of units processed concurrently
	Workers            int
	FillNoData         bool
	KeepOriginalNoData bool
}

func (c Config) resolve() (map[TerrainProfile]Terrain, error) {
	recipe := c.Recipe
	if len(recipe.Layers) == 0 {
		recipe = DefaultVATRecipe()
	} else if err := recipe.Validate(); err != nil {
		return nil, err
	}
	doc := c.Terrains
	if len(doc.Terrains) == 0 {
		doc = DefaultTerrains()
	}
	return ResolveTerrains(doc, recipe, General, Flat)
}

func (c Config) runner(terrains map[TerrainProfile]Terrain, g *Graph) (Runner, error) {
	if c.Source == nil || c.Provider == nil || c.Sink == nil || c.Store == nil {
		return Runner{}, invalidArgumentf("source, provider, sink and store are required")
	}
	return Runner{
		Dispatcher: Dispatcher{
			Source:             c.Source,
			Provider:           c.Provider,
			Params:             ParamsOf(terrains),
			FillNoData:         c.FillNoData,
			KeepOriginalNoData: c.KeepOriginalNoData,
		},
		Graph:   g,
		Sink:    c.Sink,
		Store:   c.Store,
		Workers: c.Workers,
	}, nil
}

// CombinedOptions configure CombinedVAT
type CombinedOptions struct {
	Config
	InputDir  string
	OutputDir string
	// Opacity of VAT general over VAT flat, DefaultCombinedOpacity when zero
	Opacity  float64
	Save8bit bool
}

// CombinedVAT renders the VAT combined blend of every GeoTIFF DEM found in
// InputDir to <OutputDir>/<stem>_VCOMB_<opacity>.tif. Terrain and recipe
// settings are validated before any raster is opened.
func CombinedVAT(ctx context.Context, opts CombinedOptions) (Report, error) {
	terrains, err := opts.resolve()
	if err != nil {
		return Report{}, err
	}
	g, err := BuildGraph(RecipeConfig{Terrains: terrains, CombinedOpacity: opts.Opacity, Save8bit: opts.Save8bit})
	if err != nil {
		return Report{}, err
	}
	r, err := opts.runner(terrains, g)
	if err != nil {
		return Report{}, err
	}
	entries, err := os.ReadDir(opts.InputDir)
	if err != nil {
		return Report{}, IOError(opts.InputDir, err)
	}
	var units []Unit
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".tif") {
			continue
		}
		units = append(units, Unit{
			Name:   e.Name(),
			Source: filepath.Join(opts.InputDir, e.Name()),
			OutDir: opts.OutputDir,
			Stem:   Stem(e.Name()),
		})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return r.Run(ctx, units, VATCombined)
}

// TiledOptions configure Tiled
type TiledOptions struct {
	Config
	// Input is a GeoTIFF or VRT mosaic
	Input string
	// OutputDir defaults to the directory of Input
	OutputDir string
	// Visualizations are derivative names exported as 8-bit images
	Visualizations []string
	// Blends are product identifiers, e.g. rrim or e4MSTP
	Blends []string
	// Tiles restricts processing to these extents. When empty and
	// TilerOptions are given, tiles are generated by a Tiler over the whole
	// input. Otherwise the input is processed as a single image.
	Tiles        []Extent
	TilerOptions []TilerOption
	// Opacity and Save8bit parameterize the VAT combined products. A zero
	// Opacity selects DefaultCombinedOpacity.
	Opacity  float64
	Save8bit bool
}

// Products returns the product identifiers requested by the options
func (o TiledOptions) Products() ([]string, error) {
	var ids []string
	for _, v := range o.Visualizations {
		k, err := ParseKind(v)
		if err != nil {
			return nil, err
		}
		if !Supported(k) {
			return nil, invalidArgumentf("unsupported visualization type requested: %s", k)
		}
		ids = append(ids, k.String())
	}
	return append(ids, o.Blends...), nil
}

// Tiled renders the requested visualizations and blends of Input, either as a
// whole or tile by tile
func Tiled(ctx context.Context, opts TiledOptions) (Report, error) {
	terrains, err := opts.resolve()
	if err != nil {
		return Report{}, err
	}
	ids, err := opts.Products()
	if err != nil {
		return Report{}, err
	}
	g, err := BuildGraph(RecipeConfig{Terrains: terrains, CombinedOpacity: opts.Opacity, Save8bit: opts.Save8bit})
	if err != nil {
		return Report{}, err
	}
	if _, err := g.Plan(ids...); err != nil {
		return Report{}, err
	}
	r, err := opts.runner(terrains, g)
	if err != nil {
		return Report{}, err
	}
	outDir := opts.OutputDir
	if outDir == "" {
		outDir = Dir(opts.Input)
	}
	stem := Stem(opts.Input)

	tiles := opts.Tiles
	if len(tiles) == 0 && len(opts.TilerOptions) > 0 {
		if tiles, err = generateTiles(ctx, opts.Source, opts.Input, opts.TilerOptions); err != nil {
			return Report{}, err
		}
	}
	var units []Unit
	if len(tiles) == 0 {
		units = []Unit{{Name: stem, Source: opts.Input, OutDir: outDir, Stem: stem}}
	}
	for i := range tiles {
		tile := tiles[i]
		units = append(units, Unit{
			Name:   tile.Name(),
			Source: opts.Input,
			Tile:   &tile,
			OutDir: outDir,
			Stem:   stem,
		})
	}
	return r.Run(ctx, units, ids...)
}

func generateTiles(ctx context.Context, src RasterSource, path string, options []TilerOption) ([]Extent, error) {
	d, ok := src.(RasterDescriber)
	if !ok {
		return nil, invalidArgumentf("raster source cannot describe %s, tiles must be given explicitly", path)
	}
	p, err := d.Describe(ctx, path)
	if err != nil {
		return nil, err
	}
	tiler, err := NewTiler(p.Width, p.Height, p.Transform, options...)
	if err != nil {
		return nil, err
	}
	return tiler.Extents(), nil
}
