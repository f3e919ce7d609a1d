package terrain

import (
	"math"

	"github.com/airbusgeo/vatblend"
)

// integral holds summed-area tables of a band, ignoring NaN samples. Values
// are offset by the first valid sample to limit the loss of precision of the
// squared sums.
type integral struct {
	w, h    int
	offset  float64
	sum, sq []float64
	count   []int32
}

func newIntegral(z []float64, w, h int) *integral {
	it := &integral{
		w: w, h: h,
		sum:   make([]float64, (w+1)*(h+1)),
		sq:    make([]float64, (w+1)*(h+1)),
		count: make([]int32, (w+1)*(h+1)),
	}
	for _, v := range z {
		if !math.IsNaN(v) {
			it.offset = v
			break
		}
	}
	stride := w + 1
	for y := 0; y < h; y++ {
		var rs, rq float64
		var rc int32
		for x := 0; x < w; x++ {
			if v := z[y*w+x]; !math.IsNaN(v) {
				v -= it.offset
				rs += v
				rq += v * v
				rc++
			}
			i := (y+1)*stride + x + 1
			it.sum[i] = it.sum[i-stride] + rs
			it.sq[i] = it.sq[i-stride] + rq
			it.count[i] = it.count[i-stride] + rc
		}
	}
	return it
}

// window returns the mean and standard deviation of the valid samples of the
// square of radius r centered on x,y, clipped to the band
func (it *integral) window(x, y, r int) (mean, std float64, n int) {
	x0, y0 := max(x-r, 0), max(y-r, 0)
	x1, y1 := min(x+r+1, it.w), min(y+r+1, it.h)
	stride := it.w + 1
	a, b, c, d := y0*stride+x0, y0*stride+x1, y1*stride+x0, y1*stride+x1
	n = int(it.count[d] - it.count[b] - it.count[c] + it.count[a])
	if n == 0 {
		return math.NaN(), math.NaN(), 0
	}
	s := it.sum[d] - it.sum[b] - it.sum[c] + it.sum[a]
	q := it.sq[d] - it.sq[b] - it.sq[c] + it.sq[a]
	m := s / float64(n)
	v := q/float64(n) - m*m
	if v < 0 {
		v = 0
	}
	return m + it.offset, math.Sqrt(v), n
}

// meanFilter returns the mean of the valid samples in a square of radius r
// around each valid cell
func (n Native) meanFilter(z []float64, w, h int, it *integral, r int) []float64 {
	out := make([]float64, w*h)
	n.rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				if math.IsNaN(z[y*w+x]) {
					out[y*w+x] = math.NaN()
					continue
				}
				out[y*w+x], _, _ = it.window(x, y, r)
			}
		}
	})
	return out
}

// SLRM is the difference between the elevation and its mean over a square of
// the given radius
func (n Native) SLRM(dem vatblend.Image, p vatblend.Params) (vatblend.Image, error) {
	z, err := single(dem)
	if err != nil {
		return vatblend.Image{}, err
	}
	w, h := dem.Width, dem.Height
	trend := n.meanFilter(z, w, h, newIntegral(z, w, h), p.SLRM.Radius)
	out := vatblend.NewImage(w, h, 1)
	for i, v := range z {
		out.Bands[0][i] = v - trend[i]
	}
	return out, nil
}

// msrmRadii returns the low-pass radii, growing geometrically from FeatureMin
// by ScalingFactor, and ending on FeatureMax
func msrmRadii(p vatblend.MSRMParams) []int {
	r := int(math.Ceil(p.FeatureMin))
	last := int(math.Floor(p.FeatureMax))
	radii := []int{r}
	for r*p.ScalingFactor < last {
		r *= p.ScalingFactor
		radii = append(radii, r)
	}
	if radii[len(radii)-1] < last {
		radii = append(radii, last)
	}
	return radii
}

// MSRM averages the relief between successive low-pass filtered versions of
// the elevation model
func (n Native) MSRM(dem vatblend.Image, res float64, p vatblend.Params) (vatblend.Image, error) {
	z, err := single(dem)
	if err != nil {
		return vatblend.Image{}, err
	}
	w, h := dem.Width, dem.Height
	it := newIntegral(z, w, h)
	radii := msrmRadii(p.MSRM)
	out := vatblend.NewImage(w, h, 1)
	acc := out.Bands[0]
	if len(radii) < 2 {
		for i, v := range z {
			if math.IsNaN(v) {
				acc[i] = v
			}
		}
		return out, nil
	}
	prev := n.meanFilter(z, w, h, it, radii[0])
	for _, r := range radii[1:] {
		next := n.meanFilter(z, w, h, it, r)
		for i := range acc {
			acc[i] += prev[i] - next[i]
		}
		prev = next
	}
	for i := range acc {
		acc[i] /= float64(len(radii) - 1)
	}
	return out, nil
}

// maxDeviation returns, for each cell, the deviation from the mean elevation
// with the largest magnitude over the radii of s, in standard deviations
func (n Native) maxDeviation(z []float64, w, h int, it *integral, s vatblend.Scale) []float64 {
	out := make([]float64, w*h)
	radii := s.Radii()
	n.rows(h, func(y0, y1 int) {
		for y := y0; y < y1; y++ {
			for x := 0; x < w; x++ {
				z0 := z[y*w+x]
				if math.IsNaN(z0) {
					out[y*w+x] = math.NaN()
					continue
				}
				best := 0.0
				for _, r := range radii {
					mean, std, _ := it.window(x, y, r)
					if std == 0 || math.IsNaN(std) {
						continue
					}
					if dev := (z0 - mean) / std; math.Abs(dev) > math.Abs(best) {
						best = dev
					}
				}
				out[y*w+x] = best
			}
		}
	})
	return out
}

// MSTP maps the broad, meso and local scale topographic positions to the red,
// green and blue bands
func (n Native) MSTP(dem vatblend.Image, p vatblend.Params) (vatblend.Image, error) {
	z, err := single(dem)
	if err != nil {
		return vatblend.Image{}, err
	}
	w, h := dem.Width, dem.Height
	it := newIntegral(z, w, h)
	out := vatblend.NewImage(w, h, 3)
	for b, s := range []vatblend.Scale{p.MSTP.Broad, p.MSTP.Meso, p.MSTP.Local} {
		dev := n.maxDeviation(z, w, h, it, s)
		for i, v := range dev {
			out.Bands[b][i] = 1 - math.Exp(-p.MSTP.Lightness*math.Abs(v))
		}
	}
	return out, nil
}
