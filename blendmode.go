package vatblend

import (
	"math"
	"strings"
)

// BlendMode selects the per-pixel formula combining a layer (source) with the
// composite of the layers beneath it (backdrop). All formulas work on values in
// [0,1].
type BlendMode int

const (
	Normal BlendMode = iota
	Multiply
	Screen
	Overlay
	SoftLight
	Luminosity
)

var blendModeNames = map[BlendMode]string{
	Normal:     "normal",
	Multiply:   "multiply",
	Screen:     "screen",
	Overlay:    "overlay",
	SoftLight:  "soft_light",
	Luminosity: "luminosity",
}

func (m BlendMode) String() string {
	if n, ok := blendModeNames[m]; ok {
		return n
	}
	return "unknown"
}

// ParseBlendMode accepts the mode names used in recipe documents, case
// insensitively ("Soft light", "soft_light" and "softlight" are equivalent)
func ParseBlendMode(name string) (BlendMode, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(n)
	switch n {
	case "normal":
		return Normal, nil
	case "multiply":
		return Multiply, nil
	case "screen":
		return Screen, nil
	case "overlay":
		return Overlay, nil
	case "softlight":
		return SoftLight, nil
	case "luminosity":
		return Luminosity, nil
	}
	return Normal, invalidArgumentf("unsupported blend mode %q", name)
}

func (m BlendMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *BlendMode) UnmarshalText(b []byte) error {
	mode, err := ParseBlendMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

func blendMultiply(b, s float64) float64 {
	return b * s
}

func blendScreen(b, s float64) float64 {
	return 1 - (1-b)*(1-s)
}

func blendOverlay(b, s float64) float64 {
	if b < 0.5 {
		return 2 * b * s
	}
	return 1 - 2*(1-b)*(1-s)
}

func blendSoftLight(b, s float64) float64 {
	if s <= 0.5 {
		return b - (1-2*s)*b*(1-b)
	}
	var d float64
	if b <= 0.25 {
		d = ((16*b-12)*b + 4) * b
	} else {
		d = math.Sqrt(b)
	}
	return b + (2*s-1)*(d-b)
}

// separable returns the per-channel formula of m, or nil for Luminosity which
// mixes channels
func (m BlendMode) separable() func(b, s float64) float64 {
	switch m {
	case Multiply:
		return blendMultiply
	case Screen:
		return blendScreen
	case Overlay:
		return blendOverlay
	case SoftLight:
		return blendSoftLight
	case Normal:
		return func(_, s float64) float64 { return s }
	}
	return nil
}

func lum(r, g, b float64) float64 {
	return 0.3*r + 0.59*g + 0.11*b
}

func clipColor(r, g, b float64) (float64, float64, float64) {
	l := lum(r, g, b)
	n := math.Min(r, math.Min(g, b))
	x := math.Max(r, math.Max(g, b))
	if n < 0 {
		r = l + (r-l)*l/(l-n)
		g = l + (g-l)*l/(l-n)
		b = l + (b-l)*l/(l-n)
	}
	if x > 1 {
		r = l + (r-l)*(1-l)/(x-l)
		g = l + (g-l)*(1-l)/(x-l)
		b = l + (b-l)*(1-l)/(x-l)
	}
	return r, g, b
}

func setLum(r, g, b, l float64) (float64, float64, float64) {
	d := l - lum(r, g, b)
	return clipColor(r+d, g+d, b+d)
}

// blend applies m between backdrop and source, which must have the same shape
// and band count (1 or 3)
func (m BlendMode) blend(backdrop, source Image) Image {
	out := NewImage(backdrop.Width, backdrop.Height, len(backdrop.Bands))
	if fn := m.separable(); fn != nil {
		for c := range out.Bands {
			bb, sb, ob := backdrop.Bands[c], source.Bands[c], out.Bands[c]
			for i := range ob {
				ob[i] = fn(bb[i], sb[i])
			}
		}
		return out
	}
	// luminosity of a gray source replaces the gray backdrop entirely
	if len(out.Bands) == 1 {
		copy(out.Bands[0], source.Bands[0])
		return out
	}
	br, bg, bb := backdrop.Bands[0], backdrop.Bands[1], backdrop.Bands[2]
	sr, sg, sb := source.Bands[0], source.Bands[1], source.Bands[2]
	for i := range out.Bands[0] {
		out.Bands[0][i], out.Bands[1][i], out.Bands[2][i] =
			setLum(br[i], bg[i], bb[i], lum(sr[i], sg[i], sb[i]))
	}
	return out
}
