package vatblend

import (
	"math"
	"strings"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// 9-class sequential ColorBrewer ramps, light to dark
var brewerRamps = map[string][]string{
	"reds":    {"#fff5f0", "#fee0d2", "#fcbba1", "#fc9272", "#fb6a4a", "#ef3b2c", "#cb181d", "#a50f15", "#67000d"},
	"greys":   {"#ffffff", "#f0f0f0", "#d9d9d9", "#bdbdbd", "#969696", "#737373", "#525252", "#252525", "#000000"},
	"orrd":    {"#fff7ec", "#fee8c8", "#fdd49e", "#fdbb84", "#fc8d59", "#ef6548", "#d7301f", "#b30000", "#7f0000"},
	"blues":   {"#f7fbff", "#deebf7", "#c6dbef", "#9ecae1", "#6baed6", "#4292c6", "#2171b5", "#08519c", "#08306b"},
	"greens":  {"#f7fcf5", "#e5f5e0", "#c7e9c0", "#a1d99b", "#74c476", "#41ab5d", "#238b45", "#006d2c", "#00441b"},
	"oranges": {"#fff5eb", "#fee6ce", "#fdd0a2", "#fdae6b", "#fd8d3c", "#f16913", "#d94801", "#a63603", "#7f2704"},
	"purples": {"#fcfbfd", "#efedf5", "#dadaeb", "#bcbddc", "#9e9ac8", "#807dba", "#6a51a3", "#54278f", "#3f007d"},
}

// A Colormap maps a normalized value in [0,1] to an RGB triplet, each channel
// in [0,1]
type Colormap struct {
	name  string
	stops []colorful.Color
}

// LookupColormap returns the named ramp. A "_r" suffix reverses it. Names are
// case insensitive.
func LookupColormap(name string) (Colormap, error) {
	base := strings.ToLower(name)
	reversed := strings.HasSuffix(base, "_r")
	base = strings.TrimSuffix(base, "_r")
	hexes, ok := brewerRamps[base]
	if !ok {
		return Colormap{}, invalidArgumentf("unknown colormap %q", name)
	}
	stops := make([]colorful.Color, len(hexes))
	for i, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			return Colormap{}, invalidArgumentf("colormap %s: %v", name, err)
		}
		if reversed {
			stops[len(hexes)-1-i] = c
		} else {
			stops[i] = c
		}
	}
	return Colormap{name: name, stops: stops}, nil
}

func (cm Colormap) Name() string {
	return cm.name
}

// At interpolates the ramp at t, which is clamped to [0,1]
func (cm Colormap) At(t float64) colorful.Color {
	if t <= 0 {
		return cm.stops[0]
	}
	if t >= 1 {
		return cm.stops[len(cm.stops)-1]
	}
	pos := t * float64(len(cm.stops)-1)
	i := int(math.Floor(pos))
	return cm.stops[i].BlendRgb(cm.stops[i+1], pos-float64(i))
}

// Apply maps a normalized single band image to 3 channels. Only the
// [minCut,maxCut] portion of the ramp is used. NaN samples stay NaN on every
// channel.
func (cm Colormap) Apply(img Image, minCut, maxCut float64) (Image, error) {
	if len(img.Bands) != 1 {
		return Image{}, invalidArgumentf("colormap %s needs a single band image, got %d bands", cm.name, len(img.Bands))
	}
	if minCut < 0 || maxCut > 1 || minCut > maxCut {
		return Image{}, invalidArgumentf("colormap cut [%g,%g] not within [0,1]", minCut, maxCut)
	}
	out := NewImage(img.Width, img.Height, 3)
	for i, v := range img.Bands[0] {
		if math.IsNaN(v) {
			out.Bands[0][i], out.Bands[1][i], out.Bands[2][i] = v, v, v
			continue
		}
		c := cm.At(minCut + v*(maxCut-minCut))
		out.Bands[0][i], out.Bands[1][i], out.Bands[2][i] = c.R, c.G, c.B
	}
	return out, nil
}
