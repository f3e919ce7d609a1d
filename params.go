package vatblend

import (
	"math"
)

// Range is a closed [Min,Max] interval
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type SlopeParams struct {
	// Units is one of degree, percent or radian
	Units string `json:"units"`
}

type HillshadeParams struct {
	Azimuth   float64 `json:"azimuth"`
	Elevation float64 `json:"elevation"`
}

type MultiHillshadeParams struct {
	Directions int     `json:"directions"`
	Elevation  float64 `json:"elevation"`
}

type SLRMParams struct {
	Radius int `json:"radius"`
}

// SVFParams drive the joint sky-view factor and openness computation. Radius
// is the horizon search distance in pixels.
type SVFParams struct {
	Directions int `json:"directions"`
	Radius     int `json:"radius"`
	// Noise removal level, 0 (none) to 3 (high)
	Noise int `json:"noise"`
}

type LocalDominanceParams struct {
	MinRadius         int     `json:"min_radius"`
	MaxRadius         int     `json:"max_radius"`
	RadiusIncrement   int     `json:"radius_increment"`
	AngularResolution float64 `json:"angular_resolution"`
	ObserverHeight    float64 `json:"observer_height"`
}

// MSRMParams are expressed in pixels
type MSRMParams struct {
	FeatureMin    float64 `json:"feature_min"`
	FeatureMax    float64 `json:"feature_max"`
	ScalingFactor int     `json:"scaling_factor"`
}

// Scale is a range of radii, in pixels
type Scale struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Step int `json:"step"`
}

func (s Scale) Radii() []int {
	var rs []int
	step := s.Step
	if step <= 0 {
		step = 1
	}
	for r := s.Min; r <= s.Max; r += step {
		rs = append(rs, r)
	}
	return rs
}

type MSTPParams struct {
	Local     Scale   `json:"local"`
	Meso      Scale   `json:"meso"`
	Broad     Scale   `json:"broad"`
	Lightness float64 `json:"lightness"`
}

// Params holds the algorithm parameters of every derivative for one terrain
// profile, together with the ranges used when a derivative is exported as an
// 8-bit visualization.
type Params struct {
	Slope          SlopeParams          `json:"slope"`
	Hillshade      HillshadeParams      `json:"hillshade"`
	MultiHillshade MultiHillshadeParams `json:"multi_hillshade"`
	SLRM           SLRMParams           `json:"slrm"`
	SVF            SVFParams            `json:"svf"`
	LocalDominance LocalDominanceParams `json:"ld"`
	MSRM           MSRMParams           `json:"msrm"`
	MSTP           MSTPParams           `json:"mstp"`
	ByteScale      map[Kind]Range       `json:"bytscl,omitempty"`
}

func defaultByteScale() map[Kind]Range {
	return map[Kind]Range{
		Slope:            {0, 51},
		Hillshade:        {0, 1},
		MultiHillshade:   {0, 1},
		SVF:              {0.6375, 1},
		OpennessPositive: {60, 95},
		OpennessNegative: {60, 95},
		LocalDominance:   {0.5, 1.8},
		SLRM:             {-2, 2},
		MSRM:             {-2.5, 2.5},
		MSTP:             {0, 1},
	}
}

// DefaultParams returns the reference parameter set, used for the general
// terrain profile
func DefaultParams() Params {
	return Params{
		Slope:          SlopeParams{Units: "degree"},
		Hillshade:      HillshadeParams{Azimuth: 315, Elevation: 35},
		MultiHillshade: MultiHillshadeParams{Directions: 16, Elevation: 35},
		SLRM:           SLRMParams{Radius: 20},
		SVF:            SVFParams{Directions: 16, Radius: 10, Noise: 0},
		LocalDominance: LocalDominanceParams{
			MinRadius: 10, MaxRadius: 20, RadiusIncrement: 1,
			AngularResolution: 15, ObserverHeight: 1.7,
		},
		MSRM: MSRMParams{FeatureMin: 1, FeatureMax: 5, ScalingFactor: 3},
		MSTP: MSTPParams{
			Local:     Scale{3, 21, 2},
			Meso:      Scale{23, 203, 18},
			Broad:     Scale{223, 2023, 180},
			Lightness: 1.2,
		},
		ByteScale: defaultByteScale(),
	}
}

// ByteScaleRange returns the value range mapped to [0,255] when k is exported
// as a visualization
func (p Params) ByteScaleRange(k Kind) (Range, bool) {
	if r, ok := p.ByteScale[k]; ok {
		return r, true
	}
	r, ok := defaultByteScale()[k]
	return r, ok
}

// Buffer returns the halo, in pixels, needed to compute k without edge
// effects. The second return is false for kinds that cannot be computed.
func (p Params) Buffer(k Kind) (int, bool) {
	switch k {
	case Slope, Hillshade, MultiHillshade:
		return 1, true
	case SVF, OpennessPositive, OpennessNegative:
		return p.SVF.Radius, true
	case LocalDominance:
		return p.LocalDominance.MaxRadius, true
	case SLRM:
		return p.SLRM.Radius, true
	case MSTP:
		return p.MSTP.Broad.Max, true
	case MSRM:
		return int(math.Ceil(p.MSRM.FeatureMax)), true
	}
	return 0, false
}

// Validate checks parameter consistency
func (p Params) Validate() error {
	switch p.Slope.Units {
	case "degree", "percent", "radian":
	default:
		return configErrorf("unknown slope units %q", p.Slope.Units)
	}
	if p.SVF.Radius < 1 || p.SVF.Directions < 1 {
		return configErrorf("svf radius and directions must be >=1")
	}
	if p.SVF.Noise < 0 || p.SVF.Noise > 3 {
		return configErrorf("svf noise level %d not in [0,3]", p.SVF.Noise)
	}
	if p.SLRM.Radius < 1 {
		return configErrorf("slrm radius must be >=1")
	}
	ld := p.LocalDominance
	if ld.MinRadius < 0 || ld.MaxRadius < ld.MinRadius || ld.RadiusIncrement < 1 || ld.AngularResolution <= 0 {
		return configErrorf("invalid local dominance radii %d-%d/%d", ld.MinRadius, ld.MaxRadius, ld.RadiusIncrement)
	}
	if p.MultiHillshade.Directions < 1 {
		return configErrorf("multi hillshade directions must be >=1")
	}
	for _, s := range []Scale{p.MSTP.Local, p.MSTP.Meso, p.MSTP.Broad} {
		if s.Min < 1 || s.Max < s.Min {
			return configErrorf("invalid mstp scale %d-%d", s.Min, s.Max)
		}
	}
	if p.MSTP.Lightness <= 0 {
		return configErrorf("mstp lightness must be >0")
	}
	if p.MSRM.FeatureMin <= 0 || p.MSRM.FeatureMax < p.MSRM.FeatureMin || p.MSRM.ScalingFactor < 2 {
		return configErrorf("invalid msrm feature sizes %g-%g", p.MSRM.FeatureMin, p.MSRM.FeatureMax)
	}
	for k, r := range p.ByteScale {
		if r.Max < r.Min {
			return configErrorf("byte scale range of %s: max %g lower than min %g", k, r.Max, r.Min)
		}
	}
	return nil
}
