package vatblend

import (
	"math"
)

// A Layer is one entry of a Combination: an image with the policy used to bring
// it to [0,1] and the way it is composited onto the layers beneath it.
type Layer struct {
	Name  string
	Image Image

	Normalization Normalization
	Min, Max      float64
	// Invert maps normalized values x to 1-x
	Invert bool

	Mode BlendMode
	// Opacity in [0,100]. Ignored for the bottom layer.
	Opacity float64

	// Colormap is an optional ramp name (see LookupColormap). When set, the
	// normalized single band image is mapped to RGB using the [MinCut,MaxCut]
	// portion of the ramp.
	Colormap       string
	MinCut, MaxCut float64
}

// A Combination is an ordered stack of layers. Layers are created top first:
// the first created layer is the topmost, the last created layer is the
// bottom one onto which the others are composited.
type Combination struct {
	Name     string
	layers   []Layer
	rendered bool
}

func NewCombination(name string) *Combination {
	return &Combination{Name: name}
}

// Layers returns the layers top first: Layers()[0] is composited last, over
// all the others, and the last layer is the backdrop
func (c *Combination) Layers() []Layer {
	return c.layers
}

func (c *Combination) Len() int {
	return len(c.layers)
}

// CreateLayer validates l and appends it below the existing layers
func (c *Combination) CreateLayer(l Layer) error {
	if c.rendered {
		return invalidArgumentf("combination %s already rendered", c.Name)
	}
	if l.Image.Empty() {
		return invalidArgumentf("layer %s: empty image", l.Name)
	}
	if l.Opacity < 0 || l.Opacity > 100 || math.IsNaN(l.Opacity) {
		return invalidArgumentf("layer %s: opacity %g not in [0,100]", l.Name, l.Opacity)
	}
	if l.Normalization == NormValue && !(l.Min < l.Max) {
		return invalidArgumentf("layer %s: normalization min %g must be lower than max %g", l.Name, l.Min, l.Max)
	}
	if l.Colormap != "" {
		if _, err := LookupColormap(l.Colormap); err != nil {
			return err
		}
		if l.Image.NBands() != 1 {
			return invalidArgumentf("layer %s: colormap requires a single band image", l.Name)
		}
		if l.MinCut == 0 && l.MaxCut == 0 {
			l.MaxCut = 1
		}
	}
	if len(c.layers) > 0 && !c.layers[0].Image.SameShape(l.Image) {
		f := c.layers[0].Image
		return invalidArgumentf("layer %s: shape %dx%d does not match %dx%d",
			l.Name, l.Image.Width, l.Image.Height, f.Width, f.Height)
	}
	if nb := l.Image.NBands(); nb != 1 && nb != 3 {
		return invalidArgumentf("layer %s: unsupported band count %d", l.Name, nb)
	}
	c.layers = append(c.layers, l)
	return nil
}

// prepare normalizes, inverts and colorizes a layer
func (l Layer) prepare() (Image, error) {
	img, err := Normalize(l.Image, l.Normalization, l.Min, l.Max)
	if err != nil {
		return Image{}, err
	}
	if l.Invert {
		for _, band := range img.Bands {
			for i, v := range band {
				band[i] = 1 - v
			}
		}
	}
	if l.Colormap != "" {
		cm, err := LookupColormap(l.Colormap)
		if err != nil {
			return Image{}, err
		}
		return cm.Apply(img, l.MinCut, l.MaxCut)
	}
	return img, nil
}

func matchBands(a, b Image) (Image, Image, error) {
	n := a.NBands()
	if b.NBands() > n {
		n = b.NBands()
	}
	var err error
	if a, err = a.Expand(n); err != nil {
		return a, b, invalidArgumentf("%v", err)
	}
	if b, err = b.Expand(n); err != nil {
		return a, b, invalidArgumentf("%v", err)
	}
	return a, b, nil
}

// mixOpacity linearly interpolates between backdrop (opacity 0) and blended
// (opacity 100)
func mixOpacity(backdrop, blended Image, opacity float64) {
	o := opacity / 100
	for c, band := range blended.Bands {
		bb := backdrop.Bands[c]
		for i, v := range band {
			band[i] = bb[i] + (v-bb[i])*o
		}
	}
}

// Render composites the layers bottom-up and returns an image of 1 or 3 bands
// with values in [0,1]. A pixel that is NaN in any layer is NaN in the result.
// The combination cannot be modified once rendered.
func (c *Combination) Render() (Image, error) {
	if len(c.layers) == 0 {
		return Image{}, invalidArgumentf("combination %s has no layers", c.Name)
	}
	c.rendered = true
	bottom := c.layers[len(c.layers)-1]
	composite, err := bottom.prepare()
	if err != nil {
		return Image{}, err
	}
	nodata := composite.NoDataMask()
	for i := len(c.layers) - 2; i >= 0; i-- {
		l := c.layers[i]
		source, err := l.prepare()
		if err != nil {
			return Image{}, err
		}
		for p, m := range source.NoDataMask() {
			nodata[p] = nodata[p] || m
		}
		if composite, source, err = matchBands(composite, source); err != nil {
			return Image{}, err
		}
		blended := l.Mode.blend(composite, source)
		mixOpacity(composite, blended, l.Opacity)
		composite = blended
	}
	composite.Mask(nodata)
	return composite, nil
}
