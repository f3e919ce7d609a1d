package vatblend

import (
	"fmt"
	"math"
)

// An Image is a Width*Height stack of co-registered bands. Samples are stored
// row-major, NaN marks a no-data sample.
type Image struct {
	Width, Height int
	Bands         [][]float64
}

// NewImage allocates a zeroed image with the given number of bands
func NewImage(width, height, bands int) Image {
	img := Image{Width: width, Height: height, Bands: make([][]float64, bands)}
	for b := range img.Bands {
		img.Bands[b] = make([]float64, width*height)
	}
	return img
}

// NewImageFill allocates an image whose samples are all set to val
func NewImageFill(width, height, bands int, val float64) Image {
	img := NewImage(width, height, bands)
	for _, band := range img.Bands {
		for i := range band {
			band[i] = val
		}
	}
	return img
}

// SingleBand wraps a row-major sample slice into a 1-band image
func SingleBand(width, height int, data []float64) Image {
	return Image{Width: width, Height: height, Bands: [][]float64{data}}
}

func (img Image) NBands() int {
	return len(img.Bands)
}

func (img Image) Empty() bool {
	return img.Width == 0 || img.Height == 0 || len(img.Bands) == 0
}

// At returns the sample of band b at column x, row y
func (img Image) At(b, x, y int) float64 {
	return img.Bands[b][y*img.Width+x]
}

func (img Image) Set(b, x, y int, v float64) {
	img.Bands[b][y*img.Width+x] = v
}

func (img Image) SameShape(o Image) bool {
	return img.Width == o.Width && img.Height == o.Height
}

func (img Image) Clone() Image {
	c := Image{Width: img.Width, Height: img.Height, Bands: make([][]float64, len(img.Bands))}
	for b := range img.Bands {
		c.Bands[b] = append([]float64(nil), img.Bands[b]...)
	}
	return c
}

// Band returns band b as a standalone single band image sharing its samples
func (img Image) Band(b int) Image {
	return SingleBand(img.Width, img.Height, img.Bands[b])
}

// Crop removes n pixels symmetrically from each edge. Crop(0) returns img
// itself.
func (img Image) Crop(n int) (Image, error) {
	if n == 0 {
		return img, nil
	}
	if n < 0 || 2*n >= img.Width || 2*n >= img.Height {
		return Image{}, fmt.Errorf("cannot crop %d pixels from %dx%d image", n, img.Width, img.Height)
	}
	w, h := img.Width-2*n, img.Height-2*n
	out := NewImage(w, h, len(img.Bands))
	for b, band := range img.Bands {
		for y := 0; y < h; y++ {
			copy(out.Bands[b][y*w:(y+1)*w], band[(y+n)*img.Width+n:(y+n)*img.Width+n+w])
		}
	}
	return out, nil
}

// Expand replicates a single band image to n bands. Images that already have n
// bands are returned unchanged.
func (img Image) Expand(n int) (Image, error) {
	switch len(img.Bands) {
	case n:
		return img, nil
	case 1:
		out := Image{Width: img.Width, Height: img.Height, Bands: make([][]float64, n)}
		for b := range out.Bands {
			out.Bands[b] = append([]float64(nil), img.Bands[0]...)
		}
		return out, nil
	}
	return Image{}, fmt.Errorf("cannot expand %d-band image to %d bands", len(img.Bands), n)
}

// NoDataMask returns for each pixel whether any band is NaN
func (img Image) NoDataMask() []bool {
	mask := make([]bool, img.Width*img.Height)
	for _, band := range img.Bands {
		for i, v := range band {
			if math.IsNaN(v) {
				mask[i] = true
			}
		}
	}
	return mask
}

// Mask sets all bands to NaN wherever mask is set
func (img Image) Mask(mask []bool) {
	for _, band := range img.Bands {
		for i, m := range mask {
			if m {
				band[i] = math.NaN()
			}
		}
	}
}

// ClampMax caps all samples to max, leaving NaN untouched
func (img Image) ClampMax(max float64) {
	for _, band := range img.Bands {
		for i, v := range band {
			if v > max {
				band[i] = max
			}
		}
	}
}

// Combine returns a new image computed sample-wise from a and b, which must
// share the same shape and band count.
func Combine(a, b Image, fn func(x, y float64) float64) (Image, error) {
	if !a.SameShape(b) || len(a.Bands) != len(b.Bands) {
		return Image{}, invalidArgumentf("shape mismatch %dx%dx%d vs %dx%dx%d",
			a.Width, a.Height, len(a.Bands), b.Width, b.Height, len(b.Bands))
	}
	out := NewImage(a.Width, a.Height, len(a.Bands))
	for bi := range a.Bands {
		ab, bb, ob := a.Bands[bi], b.Bands[bi], out.Bands[bi]
		for i := range ob {
			ob[i] = fn(ab[i], bb[i])
		}
	}
	return out, nil
}

// Extent is a rectangle in the coordinate reference system of a raster
type Extent struct {
	Left, Bottom, Right, Top float64
}

func (e Extent) Buffer(dx, dy float64) Extent {
	return Extent{Left: e.Left - dx, Bottom: e.Bottom - dy, Right: e.Right + dx, Top: e.Top + dy}
}

// Name is the identifier used for per-tile output files
func (e Extent) Name() string {
	return fmt.Sprintf("%.0f_%.0f", e.Left, e.Bottom)
}

func (e Extent) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", e.Left, e.Bottom, e.Right, e.Top)
}

// GeoTransform is a GDAL style affine transform:
// Xgeo = gt[0] + col*gt[1] + row*gt[2], Ygeo = gt[3] + col*gt[4] + row*gt[5]
type GeoTransform [6]float64

// Offset returns the transform of a window whose upper left pixel is at
// col,row in the frame of gt
func (gt GeoTransform) Offset(col, row int) GeoTransform {
	out := gt
	out[0] = gt[0] + float64(col)*gt[1] + float64(row)*gt[2]
	out[3] = gt[3] + float64(col)*gt[4] + float64(row)*gt[5]
	return out
}

// Pixel returns the fractional pixel position of a world coordinate. Rotated
// transforms are not supported.
func (gt GeoTransform) Pixel(x, y float64) (col, row float64) {
	return (x - gt[0]) / gt[1], (y - gt[3]) / gt[5]
}

func (gt GeoTransform) Resolution() (float64, float64) {
	return math.Abs(gt[1]), math.Abs(gt[5])
}

// Bounds returns the extent covered by a width*height raster
func (gt GeoTransform) Bounds(width, height int) Extent {
	x0, y0 := gt[0], gt[3]
	x1 := gt[0] + float64(width)*gt[1]
	y1 := gt[3] + float64(height)*gt[5]
	return Extent{
		Left:   math.Min(x0, x1),
		Right:  math.Max(x0, x1),
		Bottom: math.Min(y0, y1),
		Top:    math.Max(y0, y1),
	}
}

// DataType of an output raster
type DataType int

const (
	Float32 DataType = iota
	Byte
)

func (dt DataType) String() string {
	switch dt {
	case Byte:
		return "uint8"
	default:
		return "float32"
	}
}

// Profile describes an output raster
type Profile struct {
	Driver    string
	Width     int
	Height    int
	Count     int
	DataType  DataType
	CRS       string
	Transform GeoTransform
	// NoData is only set for float products, where it is NaN
	NoData *float64
}

// WithData returns a copy of the profile adapted to hold img with type dt
func (p Profile) WithData(img Image, dt DataType) Profile {
	out := p
	out.Width, out.Height, out.Count = img.Width, img.Height, len(img.Bands)
	out.DataType = dt
	out.NoData = nil
	if dt == Float32 {
		nan := math.NaN()
		out.NoData = &nan
	}
	return out
}

// A Window is the result of a buffered read
type Window struct {
	// Data is the buffered array, Buffer pixels wider than the requested
	// extent on each side
	Data       Image
	Buffer     int
	ResX, ResY float64
	NoData     float64
	HasNoData  bool
	// BufferedTransform references Data, Transform the unbuffered extent
	BufferedTransform GeoTransform
	Transform         GeoTransform
	CRS               string
	Profile           Profile
}
