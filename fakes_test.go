package vatblend

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"sync"
)

// memSource serves reads from in-memory DEMs
type memSource struct {
	mu      sync.Mutex
	dems    map[string]Image
	gt      GeoTransform
	nodata  float64
	reads   int
	buffers []int
}

func newMemSource(gt GeoTransform, nodata float64) *memSource {
	return &memSource{dems: map[string]Image{}, gt: gt, nodata: nodata}
}

func (s *memSource) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

func (s *memSource) Describe(ctx context.Context, path string) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dem, ok := s.dems[path]
	if !ok {
		return Profile{}, IOError(path, fs.ErrNotExist)
	}
	return Profile{Driver: "GTiff", Width: dem.Width, Height: dem.Height, Count: 1, Transform: s.gt}, nil
}

func (s *memSource) Read(ctx context.Context, path string, extent *Extent, buffer int) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	s.buffers = append(s.buffers, buffer)
	dem, ok := s.dems[path]
	if !ok {
		return Window{}, IOError(path, fs.ErrNotExist)
	}
	col, row, w, h := 0, 0, dem.Width, dem.Height
	if extent != nil {
		c, r := s.gt.Pixel(extent.Left, extent.Top)
		col, row = int(math.Round(c)), int(math.Round(r))
		w = int(math.Round((extent.Right - extent.Left) / s.gt[1]))
		h = int(math.Round((extent.Top - extent.Bottom) / -s.gt[5]))
	}
	if w <= 0 || h <= 0 {
		return Window{}, IOError(path, fmt.Errorf("empty window"))
	}
	data := NewImageFill(w+2*buffer, h+2*buffer, 1, s.nodata)
	for y := 0; y < data.Height; y++ {
		for x := 0; x < data.Width; x++ {
			sx, sy := col-buffer+x, row-buffer+y
			if sx >= 0 && sy >= 0 && sx < dem.Width && sy < dem.Height {
				data.Set(0, x, y, dem.At(0, sx, sy))
			}
		}
	}
	resx, resy := s.gt.Resolution()
	gt := s.gt.Offset(col, row)
	return Window{
		Data:              data,
		Buffer:            buffer,
		ResX:              resx,
		ResY:              resy,
		NoData:            s.nodata,
		HasNoData:         true,
		BufferedTransform: s.gt.Offset(col-buffer, row-buffer),
		Transform:         gt,
		Profile:           Profile{Driver: "GTiff", Width: w, Height: h, Count: 1, Transform: gt},
	}, nil
}

// echoProvider returns its input DEM for every derivative, which makes
// misaligned slicing visible in the results
type echoProvider struct {
	mu     sync.Mutex
	inputs map[string][]int
	fail   string
	// short returns an image one pixel too narrow for this method
	short string
}

func (p *echoProvider) echo(method string, dem Image, bands int) (Image, error) {
	p.mu.Lock()
	if p.inputs == nil {
		p.inputs = map[string][]int{}
	}
	p.inputs[method] = append(p.inputs[method], dem.Width)
	p.mu.Unlock()
	if method == p.fail {
		return Image{}, fmt.Errorf("%s failed", method)
	}
	out := dem.Clone()
	if method == p.short {
		out, _ = out.Crop(1)
	}
	return out.Expand(bands)
}

func (p *echoProvider) Inputs(method string) []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputs[method]
}

func (p *echoProvider) Slope(dem Image, resX, resY float64, _ Params) (Image, error) {
	return p.echo("slope", dem, 1)
}

func (p *echoProvider) Hillshade(dem Image, resX, resY float64, _ Params) (Image, error) {
	return p.echo("hillshade", dem, 1)
}

func (p *echoProvider) MultiHillshade(dem Image, resX, resY float64, _ Params) (Image, error) {
	return p.echo("multi_hillshade", dem, 3)
}

func (p *echoProvider) SkyView(dem Image, res float64, _ Params, svf, openness bool) (SkyView, error) {
	img, err := p.echo("sky_view", dem, 1)
	if err != nil {
		return SkyView{}, err
	}
	sv := SkyView{}
	if svf {
		sv.SVF = img
	}
	if openness {
		sv.Openness = img.Clone()
	}
	return sv, nil
}

func (p *echoProvider) NegativeOpenness(dem Image, res float64, _ Params) (Image, error) {
	return p.echo("neg_opns", dem, 1)
}

func (p *echoProvider) LocalDominance(dem Image, _ Params) (Image, error) {
	return p.echo("ld", dem, 1)
}

func (p *echoProvider) SLRM(dem Image, _ Params) (Image, error) {
	return p.echo("slrm", dem, 1)
}

func (p *echoProvider) MSRM(dem Image, res float64, _ Params) (Image, error) {
	return p.echo("msrm", dem, 1)
}

func (p *echoProvider) MSTP(dem Image, _ Params) (Image, error) {
	return p.echo("mstp", dem, 3)
}

// memSink keeps written outputs in memory, and doubles as a Store
type memSink struct {
	mu     sync.Mutex
	floats map[string]Image
	bytes  map[string][][]uint8
	fail   string
}

func newMemSink() *memSink {
	return &memSink{floats: map[string]Image{}, bytes: map[string][][]uint8{}}
}

func (s *memSink) WriteFloat32(ctx context.Context, path string, profile Profile, img Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == s.fail {
		return IOError(path, fmt.Errorf("disk full"))
	}
	if profile.Width != img.Width || profile.Height != img.Height || profile.Count != img.NBands() {
		return fmt.Errorf("profile mismatch")
	}
	s.floats[path] = img
	return nil
}

func (s *memSink) WriteByte(ctx context.Context, path string, profile Profile, bands [][]uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == s.fail {
		return IOError(path, fmt.Errorf("disk full"))
	}
	if profile.DataType != Byte || profile.NoData != nil {
		return fmt.Errorf("byte profile expected")
	}
	s.bytes[path] = bands
	return nil
}

func (s *memSink) Exists(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, f := s.floats[path]
	_, b := s.bytes[path]
	return f || b, nil
}

func (s *memSink) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ps []string
	for p := range s.floats {
		ps = append(ps, p)
	}
	for p := range s.bytes {
		ps = append(ps, p)
	}
	return ps
}

// smallParams keeps buffers small enough for tiny test rasters
func smallParams() Params {
	p := DefaultParams()
	p.SVF.Radius = 3
	p.SLRM.Radius = 2
	p.LocalDominance.MinRadius, p.LocalDominance.MaxRadius = 1, 2
	p.MSTP.Local = Scale{1, 1, 1}
	p.MSTP.Meso = Scale{2, 2, 1}
	p.MSTP.Broad = Scale{3, 4, 1}
	p.MSRM.FeatureMax = 2
	return p
}

func testDEM(w, h int) Image {
	img := NewImage(w, h, 1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(0, x, y, float64(x+y*w))
		}
	}
	return img
}
