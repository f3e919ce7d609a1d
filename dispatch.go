package vatblend

import (
	"context"
	"fmt"
	"math"

	"github.com/airbusgeo/vatblend/log"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// A pass is one call into the Provider, producing one or more derivative kinds
// from the same buffered DEM
type pass struct {
	name    string
	kinds   []Kind
	compute func(pv Provider, dem Image, w Window, p Params, want map[Kind]bool) (map[Kind]Image, error)
}

func single(k Kind, fn func(pv Provider, dem Image, w Window, p Params) (Image, error)) *pass {
	return &pass{
		name:  k.String(),
		kinds: []Kind{k},
		compute: func(pv Provider, dem Image, w Window, p Params, _ map[Kind]bool) (map[Kind]Image, error) {
			img, err := fn(pv, dem, w, p)
			if err != nil {
				return nil, err
			}
			return map[Kind]Image{k: img}, nil
		},
	}
}

var skyViewPass = &pass{
	name:  "sky_view",
	kinds: []Kind{SVF, OpennessPositive, OpennessNegative},
	compute: func(pv Provider, dem Image, w Window, p Params, want map[Kind]bool) (map[Kind]Image, error) {
		out := map[Kind]Image{}
		if want[SVF] || want[OpennessPositive] {
			sv, err := pv.SkyView(dem, w.ResX, p, want[SVF], want[OpennessPositive])
			if err != nil {
				return nil, err
			}
			if want[SVF] {
				out[SVF] = sv.SVF
			}
			if want[OpennessPositive] {
				out[OpennessPositive] = sv.Openness
			}
		}
		if want[OpennessNegative] {
			neg, err := pv.NegativeOpenness(dem, w.ResX, p)
			if err != nil {
				return nil, err
			}
			out[OpennessNegative] = neg
		}
		return out, nil
	},
}

// passes maps each kind to the pass computing it. Kinds without a pass cannot
// be requested.
var passes = [numKinds]*pass{
	Slope: single(Slope, func(pv Provider, dem Image, w Window, p Params) (Image, error) {
		return pv.Slope(dem, w.ResX, w.ResY, p)
	}),
	Hillshade: single(Hillshade, func(pv Provider, dem Image, w Window, p Params) (Image, error) {
		return pv.Hillshade(dem, w.ResX, w.ResY, p)
	}),
	MultiHillshade: single(MultiHillshade, func(pv Provider, dem Image, w Window, p Params) (Image, error) {
		return pv.MultiHillshade(dem, w.ResX, w.ResY, p)
	}),
	SVF:              skyViewPass,
	OpennessPositive: skyViewPass,
	OpennessNegative: skyViewPass,
	LocalDominance: single(LocalDominance, func(pv Provider, dem Image, _ Window, p Params) (Image, error) {
		return pv.LocalDominance(dem, p)
	}),
	SLRM: single(SLRM, func(pv Provider, dem Image, _ Window, p Params) (Image, error) {
		return pv.SLRM(dem, p)
	}),
	MSTP: single(MSTP, func(pv Provider, dem Image, _ Window, p Params) (Image, error) {
		return pv.MSTP(dem, p)
	}),
	MSRM: single(MSRM, func(pv Provider, dem Image, w Window, p Params) (Image, error) {
		return pv.MSRM(dem, w.ResX, p)
	}),
}

// Supported reports whether derivatives of kind k can be computed
func Supported(k Kind) bool {
	return k >= 0 && k < numKinds && passes[k] != nil
}

// Dispatcher computes a set of derivatives from a single buffered read
type Dispatcher struct {
	Source   RasterSource
	Provider Provider
	// Params per terrain profile
	Params map[TerrainProfile]Params
	// FillNoData interpolates no-data cells from their neighbours before
	// computing derivatives
	FillNoData bool
	// KeepOriginalNoData resets derivative cells to NaN where the source DEM
	// had no data
	KeepOriginalNoData bool
}

// Derivatives is the result of a dispatch. All layers share the unbuffered
// size of Window.Profile.
type Derivatives struct {
	Window Window
	Layers map[Key]Image
}

func (d Derivatives) Get(k Key) (Image, bool) {
	img, ok := d.Layers[k]
	return img, ok
}

type group struct {
	pass    *pass
	profile TerrainProfile
	params  Params
	buffer  int
	want    map[Kind]bool
}

// plan resolves the passes needed for keys and returns the largest buffer they
// require. Unknown kinds and terrain profiles are reported without any I/O.
func (d Dispatcher) plan(keys []Key) ([]*group, int, error) {
	type gk struct {
		p       *pass
		profile TerrainProfile
	}
	idx := map[gk]*group{}
	var groups []*group
	maxBuffer := 0
	for _, k := range keys {
		if !Supported(k.Kind) {
			return nil, 0, invalidArgumentf("unsupported visualization type requested: %s", k.Kind)
		}
		params, ok := d.Params[k.Profile]
		if !ok {
			return nil, 0, configErrorf("unknown terrain profile %q", k.Profile)
		}
		p := passes[k.Kind]
		g, ok := idx[gk{p, k.Profile}]
		if !ok {
			g = &group{pass: p, profile: k.Profile, params: params, want: map[Kind]bool{}}
			for _, pk := range p.kinds {
				if b, _ := params.Buffer(pk); b > g.buffer {
					g.buffer = b
				}
			}
			idx[gk{p, k.Profile}] = g
			groups = append(groups, g)
		}
		g.want[k.Kind] = true
		if g.buffer > maxBuffer {
			maxBuffer = g.buffer
		}
	}
	return groups, maxBuffer, nil
}

// Buffer returns the read buffer a dispatch of keys would use
func (d Dispatcher) Buffer(keys []Key) (int, error) {
	_, b, err := d.plan(keys)
	return b, err
}

// Compute reads the DEM at path once, with the largest buffer required by keys,
// and computes every requested derivative on a slice of that read trimmed to
// its own buffer.
func (d Dispatcher) Compute(ctx context.Context, path string, extent *Extent, keys []Key) (Derivatives, error) {
	groups, maxBuffer, err := d.plan(keys)
	if err != nil {
		return Derivatives{}, err
	}
	win, err := d.Source.Read(ctx, path, extent, maxBuffer)
	if err != nil {
		return Derivatives{}, err
	}
	w, h := win.Profile.Width, win.Profile.Height
	if win.Data.Width != w+2*maxBuffer || win.Data.Height != h+2*maxBuffer || win.Data.NBands() == 0 {
		return Derivatives{}, computeError(fmt.Sprintf("read window %dx%d does not match %dx%d with buffer %d",
			win.Data.Width, win.Data.Height, w, h, maxBuffer), nil)
	}

	dem := win.Data.Band(0).Clone()
	if win.HasNoData && !math.IsNaN(win.NoData) {
		for i, v := range dem.Bands[0] {
			if v == win.NoData {
				dem.Bands[0][i] = math.NaN()
			}
		}
	}
	win.NoData, win.HasNoData = math.NaN(), true
	win.Data = dem

	var nodata []bool
	if d.KeepOriginalNoData {
		mask := dem.NoDataMask()
		if nodata, err = cropMask(mask, dem.Width, dem.Height, maxBuffer); err != nil {
			return Derivatives{}, computeError("crop no-data mask", err)
		}
	}
	if d.FillNoData {
		dem = FillNoData(dem)
	}

	logger := log.Logger(ctx)
	out := Derivatives{Window: win, Layers: map[Key]Image{}}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return Derivatives{}, err
		}
		slice, err := dem.Crop(maxBuffer - g.buffer)
		if err != nil {
			return Derivatives{}, computeError("slice "+g.pass.name, err)
		}
		res, err := g.pass.compute(d.Provider, slice, win, g.params, g.want)
		if err != nil {
			return Derivatives{}, computeError(fmt.Sprintf("%s (%s)", g.pass.name, g.profile), err)
		}
		for kind := range g.want {
			img, ok := res[kind]
			if !ok {
				return Derivatives{}, computeError(fmt.Sprintf("%s not returned by %s pass", kind, g.pass.name), nil)
			}
			if !img.SameShape(slice) {
				return Derivatives{}, computeError(fmt.Sprintf("%s returned %dx%d for a %dx%d input",
					kind, img.Width, img.Height, slice.Width, slice.Height), nil)
			}
			if img, err = img.Crop(g.buffer); err != nil {
				return Derivatives{}, computeError("trim "+kind.String(), err)
			}
			if img.Width != w || img.Height != h {
				return Derivatives{}, computeError(fmt.Sprintf("%s misaligned: %dx%d instead of %dx%d",
					kind, img.Width, img.Height, w, h), nil)
			}
			if nodata != nil {
				img.Mask(nodata)
			}
			out.Layers[Key{Kind: kind, Profile: g.profile}] = img
		}
		logger.Debug("computed derivatives", zap.String("pass", g.pass.name),
			zap.String("profile", string(g.profile)), zap.Int("buffer", g.buffer))
	}
	return out, nil
}

func cropMask(mask []bool, width, height, n int) ([]bool, error) {
	if n == 0 {
		return mask, nil
	}
	w, h := width-2*n, height-2*n
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("cannot crop %d pixels from %dx%d mask", n, width, height)
	}
	out := make([]bool, w*h)
	for y := 0; y < h; y++ {
		copy(out[y*w:(y+1)*w], mask[(y+n)*width+n:(y+n)*width+n+w])
	}
	return out, nil
}

// FillNoData returns a copy of a single band image where NaN cells are replaced
// by the mean of their already valid 8-neighbours, growing inwards from the
// valid cells. An image without any valid cell is returned unchanged.
func FillNoData(img Image) Image {
	out := img.Clone()
	w, h := out.Width, out.Height
	for _, band := range out.Bands {
		valid := make([]bool, len(band))
		var frontier []int
		nvalid := 0
		for i, v := range band {
			if !math.IsNaN(v) {
				valid[i] = true
				nvalid++
			}
		}
		if nvalid == 0 || nvalid == len(band) {
			continue
		}
		queued := make([]bool, len(band))
		push := func(i int) {
			x, y := i%w, i/w
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					ni := ny*w + nx
					if !valid[ni] && !queued[ni] {
						queued[ni] = true
						frontier = append(frontier, ni)
					}
				}
			}
		}
		for i := range band {
			if valid[i] {
				push(i)
			}
		}
		for len(frontier) > 0 {
			layer := frontier
			frontier = nil
			vals := make([]float64, len(layer))
			neighbours := make([]float64, 0, 8)
			for li, i := range layer {
				x, y := i%w, i/w
				neighbours = neighbours[:0]
				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := x+dx, y+dy
						if nx < 0 || ny < 0 || nx >= w || ny >= h {
							continue
						}
						if ni := ny*w + nx; valid[ni] {
							neighbours = append(neighbours, band[ni])
						}
					}
				}
				vals[li] = stat.Mean(neighbours, nil)
			}
			for li, i := range layer {
				band[i] = vals[li]
				valid[i] = true
			}
			for _, i := range layer {
				push(i)
			}
		}
	}
	return out
}
