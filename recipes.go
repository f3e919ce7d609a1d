package vatblend

import (
	"fmt"
	"math"
)

// Product identifiers
const (
	VATGeneral      = "vat_general"
	VATFlat         = "vat_flat"
	VATCombined     = "vat_combined"
	VATCombined8bit = "vat_combined_8bit"
	RRIM            = "rrim"
	CRIM            = "crim"
	E2MSTP          = "e2MSTP"
	E3MSTP          = "e3MSTP"
	E4MSTP          = "e4MSTP"
	ColouredSlope   = "coloured_slope"
	SVFCombined     = "svf_combined"
	OpennessLD      = "opns_ld"
)

// DefaultCombinedOpacity is the opacity of VAT general over VAT flat used by
// vat_combined_8bit, and by vat_combined when none is configured
const DefaultCombinedOpacity = 50

// RecipeConfig parameterizes the built-in products
type RecipeConfig struct {
	// Terrains must contain the general and flat profiles
	Terrains map[TerrainProfile]Terrain
	// CombinedOpacity is the opacity of VAT general over VAT flat, in
	// (0,100]. Zero selects DefaultCombinedOpacity.
	CombinedOpacity float64
	// Save8bit adds an 8-bit companion to the VAT combined output
	Save8bit bool
}

func (c RecipeConfig) validate() error {
	for _, p := range []TerrainProfile{General, Flat} {
		if _, ok := c.Terrains[p]; !ok {
			return configErrorf("terrain profile %q not configured", p)
		}
	}
	if c.CombinedOpacity < 0 || c.CombinedOpacity > 100 || math.IsNaN(c.CombinedOpacity) {
		return configErrorf("combined opacity %g not in [0,100]", c.CombinedOpacity)
	}
	return nil
}

// CombinedName is the output name of the VAT combined product
func (c RecipeConfig) CombinedName() string {
	return fmt.Sprintf("VCOMB_%g", c.CombinedOpacity)
}

// layerSet collects derivative and product images into a combination
type layerSet struct {
	a   *Arena
	c   *Combination
	err error
}

func newLayerSet(a *Arena, name string) *layerSet {
	return &layerSet{a: a, c: NewCombination(name)}
}

func (ls *layerSet) derivative(k Key) Image {
	if ls.err != nil {
		return Image{}
	}
	img, err := ls.a.Derivative(k)
	ls.err = err
	return img
}

func (ls *layerSet) product(id string) Image {
	if ls.err != nil {
		return Image{}
	}
	img, err := ls.a.Get(id)
	ls.err = err
	return img
}

func (ls *layerSet) combine(a, b Image, fn func(x, y float64) float64) Image {
	if ls.err != nil {
		return Image{}
	}
	img, err := Combine(a, b, fn)
	ls.err = err
	return img
}

func (ls *layerSet) add(l Layer) {
	if ls.err != nil {
		return
	}
	ls.err = ls.c.CreateLayer(l)
}

func (ls *layerSet) render() (Image, error) {
	if ls.err != nil {
		return Image{}, ls.err
	}
	return ls.c.Render()
}

func opnsDiff(x, y float64) float64 { return x - y }

func opnsHalfDiff(x, y float64) float64 { return (x - y) / 2 }

// maskAndClamp sets img to NaN wherever ref has no data, and caps it to 1
func maskAndClamp(img, ref Image) Image {
	img.Mask(ref.NoDataMask())
	img.ClampMax(1)
	return img
}

// BuildGraph registers the VAT, relief and MSTP blends, and one byte scaled
// product per computable derivative kind.
func BuildGraph(cfg RecipeConfig) (*Graph, error) {
	if cfg.CombinedOpacity == 0 {
		cfg.CombinedOpacity = DefaultCombinedOpacity
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	general, flat := cfg.Terrains[General], cfg.Terrains[Flat]
	generalKeys, err := general.Recipe.Keys(General)
	if err != nil {
		return nil, configError("general recipe", err)
	}
	flatKeys, err := flat.Recipe.Keys(Flat)
	if err != nil {
		return nil, configError("flat recipe", err)
	}
	slope := GeneralKey(Slope)
	opns, negOpns := GeneralKey(OpennessPositive), GeneralKey(OpennessNegative)
	unit := Range{0, 1}

	g := NewGraph()
	products := []*Product{
		{
			ID: VATGeneral, Name: "VAT_general", Keys: generalKeys, Float: true,
			Render: func(a *Arena) (Image, error) {
				c, err := general.Recipe.Build("VAT general", General, a.Derivatives().Layers)
				if err != nil {
					return Image{}, err
				}
				return c.Render()
			},
		},
		{
			ID: VATFlat, Name: "VAT_flat", Keys: flatKeys, Float: true,
			Render: func(a *Arena) (Image, error) {
				c, err := flat.Recipe.Build("VAT flat", Flat, a.Derivatives().Layers)
				if err != nil {
					return Image{}, err
				}
				return c.Render()
			},
		},
		{
			ID: VATCombined, Name: cfg.CombinedName(), Deps: []string{VATGeneral, VATFlat},
			Float: true, Byte: cfg.Save8bit, ByteRange: unit,
			Render: func(a *Arena) (Image, error) {
				return renderCombined(a, cfg.CombinedOpacity)
			},
		},
		{
			ID: VATCombined8bit, Name: "VAT_combined_8bit", Deps: []string{VATGeneral, VATFlat},
			Byte: true, ByteRange: unit,
			Render: func(a *Arena) (Image, error) {
				return renderCombined(a, DefaultCombinedOpacity)
			},
		},
		{
			ID: RRIM, Name: "RRIM", Keys: []Key{slope, opns, negOpns}, Byte: true, ByteRange: unit,
			Render: func(a *Arena) (Image, error) {
				ls := newLayerSet(a, "RRIM")
				ls.add(Layer{Name: "Slope gradient", Image: ls.derivative(slope), Min: 0, Max: 45,
					Invert: true, Mode: Normal, Opacity: 50, Colormap: "Reds_r", MaxCut: 1})
				diff := ls.combine(ls.derivative(opns), ls.derivative(negOpns), opnsHalfDiff)
				ls.add(Layer{Name: "Openness difference/2", Image: diff, Min: -25, Max: 25,
					Mode: Normal, Opacity: 100, Colormap: "Greys_r", MaxCut: 1})
				return ls.render()
			},
		},
		{
			ID: CRIM, Name: "CRIM", Keys: []Key{slope, opns, negOpns}, Byte: true, ByteRange: unit,
			Render: func(a *Arena) (Image, error) {
				ls := newLayerSet(a, "CRIM")
				diff := ls.combine(ls.derivative(opns), ls.derivative(negOpns), opnsDiff)
				ls.add(Layer{Name: "Openness difference", Image: diff, Min: -28, Max: 28,
					Mode: Overlay, Opacity: 50})
				ls.add(Layer{Name: "Openness difference", Image: diff, Min: -28, Max: 28,
					Mode: Luminosity, Opacity: 50})
				ls.add(Layer{Name: "Slope gradient red", Image: ls.derivative(slope), Min: 0, Max: 45,
					Mode: Normal, Opacity: 100, Colormap: "OrRd", MaxCut: 1})
				return ls.render()
			},
		},
		{
			ID: E2MSTP, Name: "e2MSTP", Deps: []string{RRIM},
			Keys: []Key{GeneralKey(SLRM), GeneralKey(MSTP)}, Byte: true, ByteRange: unit,
			Render: func(a *Arena) (Image, error) {
				return renderEnhancedMSTP(a, "e2MSTP", RRIM)
			},
		},
		{
			ID: E3MSTP, Name: "e3MSTP", Deps: []string{CRIM},
			Keys: []Key{GeneralKey(SLRM), GeneralKey(MSTP)}, Byte: true, ByteRange: unit,
			Render: func(a *Arena) (Image, error) {
				return renderEnhancedMSTP(a, "e3MSTP", CRIM)
			},
		},
		{
			ID: ColouredSlope, Name: "coloured_slope", Keys: []Key{slope}, Float: true,
			Render: func(a *Arena) (Image, error) {
				ls := newLayerSet(a, "coloured slope")
				ls.add(Layer{Name: "Slope gradient", Image: ls.derivative(slope), Min: 0, Max: 55,
					Invert: true, Mode: Normal, Opacity: 100, Colormap: "Reds_r", MaxCut: 1})
				return ls.render()
			},
		},
		{
			ID: SVFCombined, Name: "svf_combined", Keys: []Key{GeneralKey(SVF), FlatKey(SVF)}, Float: true,
			Render: func(a *Arena) (Image, error) {
				ls := newLayerSet(a, "svf combined")
				ls.add(Layer{Name: "Sky-View Factor", Image: ls.derivative(GeneralKey(SVF)), Min: 0.7, Max: 1,
					Mode: Normal, Opacity: 50})
				ls.add(Layer{Name: "Sky-View Factor", Image: ls.derivative(FlatKey(SVF)), Min: 0.9, Max: 1,
					Mode: Normal, Opacity: 100})
				return ls.render()
			},
		},
		{
			ID: OpennessLD, Name: "opns_ld", Keys: []Key{opns, negOpns, GeneralKey(LocalDominance)}, Float: true,
			Render: func(a *Arena) (Image, error) {
				ls := newLayerSet(a, "openness local dominance")
				diff := ls.combine(ls.derivative(opns), ls.derivative(negOpns), opnsDiff)
				ls.add(Layer{Name: "Openness difference", Image: diff, Min: -15, Max: 15,
					Mode: Normal, Opacity: 50})
				ls.add(Layer{Name: "Local dominance", Image: ls.derivative(GeneralKey(LocalDominance)),
					Min: 0.5, Max: 1.8, Mode: Normal, Opacity: 100})
				return ls.render()
			},
		},
		{
			ID: E4MSTP, Name: "e4MSTP", Deps: []string{ColouredSlope, SVFCombined, OpennessLD},
			Keys: []Key{GeneralKey(MSTP)}, Byte: true, ByteRange: unit,
			Render: func(a *Arena) (Image, error) {
				ls := newLayerSet(a, "e4MSTP")
				mstp := ls.derivative(GeneralKey(MSTP))
				ls.add(Layer{Name: "mstp", Image: mstp, Min: 0, Max: 1, Mode: Overlay, Opacity: 90})
				ls.add(Layer{Name: "svf combined", Image: ls.product(SVFCombined), Min: -0.5, Max: 0.5,
					Mode: Multiply, Opacity: 25})
				ls.add(Layer{Name: "openness local dominance", Image: ls.product(OpennessLD), Min: 0, Max: 1,
					Mode: Multiply, Opacity: 100})
				ls.add(Layer{Name: "coloured slope", Image: ls.product(ColouredSlope), Min: 0, Max: 1,
					Mode: Normal, Opacity: 100})
				img, err := ls.render()
				if err != nil {
					return Image{}, err
				}
				return maskAndClamp(img, mstp), nil
			},
		},
	}
	for _, p := range products {
		if err := g.Add(p); err != nil {
			return nil, err
		}
	}

	params := general.Params
	for _, k := range Kinds() {
		k := k
		r, ok := params.ByteScaleRange(k)
		if !Supported(k) || !ok {
			continue
		}
		err := g.Add(&Product{
			ID: k.String(), Name: k.String(), Keys: []Key{GeneralKey(k)}, Byte: true, ByteRange: r,
			Render: func(a *Arena) (Image, error) {
				return a.Derivative(GeneralKey(k))
			},
		})
		if err != nil {
			return nil, err
		}
	}
	return g, nil
}

func renderCombined(a *Arena, opacity float64) (Image, error) {
	ls := newLayerSet(a, "VAT combined")
	ls.add(Layer{Name: "VAT general", Image: ls.product(VATGeneral), Min: 0, Max: 1, Mode: Normal, Opacity: opacity})
	ls.add(Layer{Name: "VAT flat", Image: ls.product(VATFlat), Min: 0, Max: 1, Mode: Normal, Opacity: 100})
	return ls.render()
}

// renderEnhancedMSTP blends a relief image over the MSTP, with a local relief
// highlight on top
func renderEnhancedMSTP(a *Arena, name, relief string) (Image, error) {
	ls := newLayerSet(a, name)
	rel := ls.product(relief)
	ls.add(Layer{Name: "slrm", Image: ls.derivative(GeneralKey(SLRM)), Min: -0.5, Max: 0.5,
		Mode: Screen, Opacity: 25})
	ls.add(Layer{Name: relief, Image: rel, Min: 0, Max: 1, Mode: SoftLight, Opacity: 70})
	ls.add(Layer{Name: "mstp", Image: ls.derivative(GeneralKey(MSTP)), Min: 0, Max: 1,
		Mode: Normal, Opacity: 100})
	img, err := ls.render()
	if err != nil {
		return Image{}, err
	}
	return maskAndClamp(img, rel), nil
}
