package terrain

import (
	"fmt"
	"math"
	"sort"

	"github.com/airbusgeo/vatblend"
)

func errBands(n int) error {
	return fmt.Errorf("expected a non empty single band elevation model, got %d bands", n)
}

// percentage of the search radius ignored for each noise removal level
var noiseMinRadius = [4]float64{0, 10, 20, 40}

type shift struct {
	dx, dy int
	dist   float64
}

// horizonShifts lists, for each direction, the distinct pixel offsets met when
// walking from minRadius to maxRadius, sorted by increasing distance
func horizonShifts(directions, maxRadius, minRadius int) [][]shift {
	const scale = 3.0
	out := make([][]shift, directions)
	nr := int(float64(maxRadius-minRadius)*scale) + 1
	for d := 0; d < directions; d++ {
		a := 2 * math.Pi / float64(directions) * float64(d)
		ca, sa := math.Cos(a), math.Sin(a)
		seen := map[[2]int]bool{}
		var shifts []shift
		for i := 0; i < nr; i++ {
			r := float64(i)/scale + float64(minRadius)
			dx, dy := int(math.Round(ca*r)), int(math.Round(sa*r))
			if seen[[2]int{dx, dy}] || (dx == 0 && dy == 0) {
				continue
			}
			seen[[2]int{dx, dy}] = true
			shifts = append(shifts, shift{dx: dx, dy: dy, dist: math.Hypot(float64(dx), float64(dy))})
		}
		sort.Slice(shifts, func(i, j int) bool { return shifts[i].dist < shifts[j].dist })
		out[d] = shifts
	}
	return out
}

// horizon computes, per pixel, the sky-view factor and the mean horizon
// elevation angle of sign*dem. Heights are expressed in pixel units.
func (n Native) horizon(dem vatblend.Image, res float64, sv vatblend.SVFParams, sign float64, svf, opns []float64) {
	w, h := dem.Width, dem.Height
	z := dem.Bands[0]
	minRadius := math.Max(math.Round(float64(sv.Radius)*noiseMinRadius[sv.Noise]/100), 1)
	moves := horizonShifts(sv.Directions, sv.Radius, int(minRadius))
	nd := float64(sv.Directions)
	n.rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				z0 := z[y*w+x]
				if math.IsNaN(z0) {
					continue
				}
				z0 = sign * z0 / res
				var sumSVF, sumAngle float64
				for _, dir := range moves {
					maxSlope := -1000.0
					for _, s := range dir {
						tx, ty := x+s.dx, y+s.dy
						if tx < 0 || ty < 0 || tx >= w || ty >= h {
							continue
						}
						zt := z[ty*w+tx]
						if math.IsNaN(zt) {
							continue
						}
						if m := (sign*zt/res - z0) / s.dist; m > maxSlope {
							maxSlope = m
						}
					}
					angle := math.Atan(maxSlope)
					sumSVF += 1 - math.Sin(math.Max(angle, 0))
					sumAngle += angle
				}
				if svf != nil {
					svf[y*w+x] = sumSVF / nd
				}
				if opns != nil {
					opns[y*w+x] = (math.Pi/2 - sumAngle/nd) * 180 / math.Pi
				}
			}
		}
	})
}

// SkyView computes the sky-view factor and the positive openness, in degrees,
// with a single horizon search
func (n Native) SkyView(dem vatblend.Image, res float64, p vatblend.Params, svf, openness bool) (vatblend.SkyView, error) {
	if _, err := single(dem); err != nil {
		return vatblend.SkyView{}, err
	}
	out := vatblend.SkyView{}
	var svfBand, opnsBand []float64
	if svf {
		out.SVF = nanImage(dem.Width, dem.Height, 1)
		svfBand = out.SVF.Bands[0]
	}
	if openness {
		out.Openness = nanImage(dem.Width, dem.Height, 1)
		opnsBand = out.Openness.Bands[0]
	}
	if svf || openness {
		n.horizon(dem, res, p.SVF, 1, svfBand, opnsBand)
	}
	return out, nil
}

// NegativeOpenness is the openness of the inverted elevation model
func (n Native) NegativeOpenness(dem vatblend.Image, res float64, p vatblend.Params) (vatblend.Image, error) {
	if _, err := single(dem); err != nil {
		return vatblend.Image{}, err
	}
	out := nanImage(dem.Width, dem.Height, 1)
	n.horizon(dem, res, p.SVF, -1, nil, out.Bands[0])
	return out, nil
}

// LocalDominance measures how much an observer standing on each cell overlooks
// the surrounding terrain, between MinRadius and MaxRadius pixels away
func (n Native) LocalDominance(dem vatblend.Image, p vatblend.Params) (vatblend.Image, error) {
	z, err := single(dem)
	if err != nil {
		return vatblend.Image{}, err
	}
	ld := p.LocalDominance
	w, h := dem.Width, dem.Height
	nAng := int(359/ld.AngularResolution + 1)
	inc := float64(ld.RadiusIncrement)

	type sample struct {
		dx, dy       int
		dist, factor float64
	}
	var samples []sample
	norma := 0.0
	for r := ld.MinRadius; r <= ld.MaxRadius; r += ld.RadiusIncrement {
		dist := float64(r)
		if dist == 0 {
			continue
		}
		norma += ld.ObserverHeight / dist * (2*dist + inc) * float64(nAng)
		for a := 0; a < nAng; a++ {
			ang := float64(a) * ld.AngularResolution * math.Pi / 180
			samples = append(samples, sample{
				dx:     int(math.Round(math.Cos(ang) * dist)),
				dy:     int(math.Round(math.Sin(ang) * dist)),
				dist:   dist,
				factor: 2*dist + inc,
			})
		}
	}
	out := nanImage(w, h, 1)
	if norma == 0 {
		return out, nil
	}
	n.rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				z0 := z[y*w+x]
				if math.IsNaN(z0) {
					continue
				}
				observer := z0 + ld.ObserverHeight
				sum := 0.0
				for _, s := range samples {
					tx, ty := x+s.dx, y+s.dy
					if tx < 0 || ty < 0 || tx >= w || ty >= h {
						continue
					}
					zt := z[ty*w+tx]
					if zt < observer {
						sum += (observer - zt) / s.dist * s.factor
					}
				}
				out.Bands[0][y*w+x] = sum / norma
			}
		}
	})
	return out, nil
}
