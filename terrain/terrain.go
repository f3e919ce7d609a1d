// Package terrain computes terrain derivatives from elevation models
package terrain

import (
	"math"

	"github.com/airbusgeo/vatblend"
	"github.com/tbonfort/gobs"
)

// Native is a pure Go vatblend.Provider. Rows of the heavier derivatives are
// spread over Workers goroutines.
type Native struct {
	Workers int
}

var _ vatblend.Provider = Native{}

// rows calls fn on disjoint row ranges covering [0,height)
func (n Native) rows(height int, fn func(y0, y1 int)) {
	workers := n.Workers
	if workers <= 1 || height < 2*workers {
		fn(0, height)
		return
	}
	pool := gobs.NewPool(workers)
	batch := pool.Batch()
	step := (height + workers - 1) / workers
	for y0 := 0; y0 < height; y0 += step {
		y0, y1 := y0, y0+step
		if y1 > height {
			y1 = height
		}
		batch.Submit(func() error {
			fn(y0, y1)
			return nil
		})
	}
	_ = batch.Wait()
}

func nanImage(w, h, bands int) vatblend.Image {
	return vatblend.NewImageFill(w, h, bands, math.NaN())
}

func single(dem vatblend.Image) ([]float64, error) {
	if dem.NBands() != 1 || dem.Empty() {
		return nil, errBands(dem.NBands())
	}
	return dem.Bands[0], nil
}

// gradient returns the tangent of the slope and the downslope azimuth, in
// radians clockwise from north, from central differences. ok is false on the
// border and next to no-data.
func gradient(z []float64, w, h, x, y int, resX, resY float64) (tanSlope, aspect float64, ok bool) {
	if x == 0 || y == 0 || x == w-1 || y == h-1 {
		return 0, 0, false
	}
	west, east := z[y*w+x-1], z[y*w+x+1]
	north, south := z[(y-1)*w+x], z[(y+1)*w+x]
	if math.IsNaN(west) || math.IsNaN(east) || math.IsNaN(north) || math.IsNaN(south) || math.IsNaN(z[y*w+x]) {
		return 0, 0, false
	}
	dzdx := (west - east) / 2 / resX
	dzdy := (south - north) / 2 / resY
	if dzdy == 0 {
		dzdy = 10e-9
	}
	return math.Hypot(dzdx, dzdy), math.Atan2(dzdx, dzdy), true
}

// Slope returns the steepest gradient of each cell in the requested units
func (n Native) Slope(dem vatblend.Image, resX, resY float64, p vatblend.Params) (vatblend.Image, error) {
	z, err := single(dem)
	if err != nil {
		return vatblend.Image{}, err
	}
	w, h := dem.Width, dem.Height
	out := nanImage(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t, _, ok := gradient(z, w, h, x, y, resX, resY)
			if !ok {
				continue
			}
			var v float64
			switch p.Slope.Units {
			case "percent":
				v = t * 100
			case "radian":
				v = math.Atan(t)
			default:
				v = math.Atan(t) * 180 / math.Pi
			}
			out.Bands[0][y*w+x] = v
		}
	}
	return out, nil
}

func hillshadeBand(z []float64, w, h int, resX, resY, azimuth, elevation float64, out []float64) {
	zenith := math.Pi/2 - elevation*math.Pi/180
	az := azimuth * math.Pi / 180
	cz, sz := math.Cos(zenith), math.Sin(zenith)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t, aspect, ok := gradient(z, w, h, x, y, resX, resY)
			if !ok {
				continue
			}
			slope := math.Atan(t)
			out[y*w+x] = cz*math.Cos(slope) + sz*math.Sin(slope)*math.Cos(aspect-az)
		}
	}
}

// Hillshade returns the cosine of the solar incidence angle
func (n Native) Hillshade(dem vatblend.Image, resX, resY float64, p vatblend.Params) (vatblend.Image, error) {
	z, err := single(dem)
	if err != nil {
		return vatblend.Image{}, err
	}
	out := nanImage(dem.Width, dem.Height, 1)
	hillshadeBand(z, dem.Width, dem.Height, resX, resY, p.Hillshade.Azimuth, p.Hillshade.Elevation, out.Bands[0])
	return out, nil
}

// MultiHillshade returns one hillshade band per direction, the sun azimuths
// being evenly spread clockwise from north
func (n Native) MultiHillshade(dem vatblend.Image, resX, resY float64, p vatblend.Params) (vatblend.Image, error) {
	z, err := single(dem)
	if err != nil {
		return vatblend.Image{}, err
	}
	dirs := p.MultiHillshade.Directions
	out := nanImage(dem.Width, dem.Height, dirs)
	for d := 0; d < dirs; d++ {
		az := 360 / float64(dirs) * float64(d)
		hillshadeBand(z, dem.Width, dem.Height, resX, resY, az, p.MultiHillshade.Elevation, out.Bands[d])
	}
	return out, nil
}
