package vatblend

import (
	"math"
	"sort"
	"strings"
)

// Normalization selects how a layer's raw values are mapped to [0,1]
type Normalization int

const (
	// NormValue clips to [Min,Max] and scales linearly
	NormValue Normalization = iota
	// NormPercent cuts Min percent of the lowest and Max percent of the
	// highest values, then behaves like NormValue on the resulting bounds
	NormPercent
)

func (n Normalization) String() string {
	if n == NormPercent {
		return "perc"
	}
	return "value"
}

func ParseNormalization(name string) (Normalization, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "value", "val":
		return NormValue, nil
	case "perc", "percent", "percentile":
		return NormPercent, nil
	}
	return NormValue, invalidArgumentf("unsupported normalization %q", name)
}

func (n Normalization) MarshalText() ([]byte, error) {
	return []byte(n.String()), nil
}

func (n *Normalization) UnmarshalText(b []byte) error {
	v, err := ParseNormalization(string(b))
	if err != nil {
		return err
	}
	*n = v
	return nil
}

func normalizeLinear(img Image, min, max float64) Image {
	out := NewImage(img.Width, img.Height, len(img.Bands))
	scale := max - min
	for b, band := range img.Bands {
		ob := out.Bands[b]
		for i, v := range band {
			switch {
			case math.IsNaN(v):
				ob[i] = v
			case v <= min:
				ob[i] = 0
			case v >= max:
				ob[i] = 1
			default:
				ob[i] = (v - min) / scale
			}
		}
	}
	return out
}

// percentileBounds computes the value bounds cutting lowCut percent of the
// lowest and highCut percent of the highest valid samples
func percentileBounds(img Image, lowCut, highCut float64) (float64, float64, bool) {
	valid := make([]float64, 0, img.Width*img.Height*len(img.Bands))
	for _, band := range img.Bands {
		for _, v := range band {
			if !math.IsNaN(v) {
				valid = append(valid, v)
			}
		}
	}
	if len(valid) == 0 {
		return 0, 0, false
	}
	sort.Float64s(valid)
	return percentile(valid, lowCut/100), percentile(valid, 1-highCut/100), true
}

// percentile interpolates linearly between the closest ranks of the sorted
// samples, the sample of rank (n-1)*p being the p quantile
func percentile(sorted []float64, p float64) float64 {
	r := p * float64(len(sorted)-1)
	lo := int(math.Floor(r))
	hi := int(math.Ceil(r))
	if lo == hi {
		return sorted[lo]
	}
	f := r - float64(lo)
	return sorted[lo] + f*(sorted[hi]-sorted[lo])
}

// Normalize maps img to [0,1] following the normalization policy. NaN samples
// are preserved.
func Normalize(img Image, norm Normalization, min, max float64) (Image, error) {
	switch norm {
	case NormPercent:
		if min < 0 || max < 0 || min+max >= 100 {
			return Image{}, invalidArgumentf("percent cuts %g/%g out of range", min, max)
		}
		lo, hi, ok := percentileBounds(img, min, max)
		if !ok {
			return img.Clone(), nil
		}
		if hi <= lo {
			// flat image: everything maps to 0
			return normalizeLinear(img, lo, lo+1), nil
		}
		return normalizeLinear(img, lo, hi), nil
	default:
		if !(min < max) {
			return Image{}, invalidArgumentf("normalization minimum %g must be lower than maximum %g", min, max)
		}
		return normalizeLinear(img, min, max), nil
	}
}

// ByteScale linearly rescales img to 8 bits: round(clamp((x-cmin)/(cmax-cmin),0,1)*255).
// NaN samples become 0. A zero range is treated as a unit range.
func ByteScale(img Image, cmin, cmax float64) ([][]uint8, error) {
	scale := cmax - cmin
	if scale < 0 {
		return nil, invalidArgumentf("byte scale maximum %g lower than minimum %g", cmax, cmin)
	}
	if scale == 0 {
		scale = 1
	}
	out := make([][]uint8, len(img.Bands))
	for b, band := range img.Bands {
		ob := make([]uint8, len(band))
		for i, v := range band {
			if math.IsNaN(v) {
				continue
			}
			t := (v - cmin) / scale
			if t < 0 {
				t = 0
			} else if t > 1 {
				t = 1
			}
			ob[i] = uint8(math.Round(t * 255))
		}
		out[b] = ob
	}
	return out, nil
}
