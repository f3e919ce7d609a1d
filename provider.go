package vatblend

import "context"

// SkyView is the result of the joint sky-view factor and positive openness
// computation. Fields that were not requested are empty.
type SkyView struct {
	SVF      Image
	Openness Image
}

// A Provider computes terrain derivatives. Every method receives a buffered
// DEM and returns an image of the same size; trimming the buffer off the result
// is left to the caller.
type Provider interface {
	Slope(dem Image, resX, resY float64, p Params) (Image, error)
	Hillshade(dem Image, resX, resY float64, p Params) (Image, error)
	MultiHillshade(dem Image, resX, resY float64, p Params) (Image, error)
	SkyView(dem Image, res float64, p Params, svf, openness bool) (SkyView, error)
	NegativeOpenness(dem Image, res float64, p Params) (Image, error)
	LocalDominance(dem Image, p Params) (Image, error)
	SLRM(dem Image, p Params) (Image, error)
	MSRM(dem Image, res float64, p Params) (Image, error)
	MSTP(dem Image, p Params) (Image, error)
}

// A RasterSource performs buffered windowed reads. A nil extent designates the
// whole raster. Parts of the buffered window falling outside of the raster are
// filled with the no-data value.
type RasterSource interface {
	Read(ctx context.Context, path string, extent *Extent, buffer int) (Window, error)
}

// A RasterSink persists rendered products
type RasterSink interface {
	WriteFloat32(ctx context.Context, path string, profile Profile, img Image) error
	WriteByte(ctx context.Context, path string, profile Profile, bands [][]uint8) error
}

// A Store reports whether an output already exists and is complete
type Store interface {
	Exists(ctx context.Context, path string) (bool, error)
}
