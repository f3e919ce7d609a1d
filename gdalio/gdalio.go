// Package gdalio reads elevation models and writes rendered products through
// GDAL
package gdalio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/vatblend"
	"github.com/google/uuid"
)

// isLocal reports whether path designates a file on the local filesystem, as
// opposed to a url or a GDAL virtual path handled by a VSI handler
func isLocal(path string) bool {
	return !strings.Contains(path, "://") && !strings.HasPrefix(path, "/vsi")
}

func open(path string) (*godal.Dataset, error) {
	if isLocal(path) {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return nil, vatblend.IOError(path, fs.ErrNotExist)
		}
	}
	ds, err := godal.Open(path, godal.RasterOnly())
	if err != nil {
		return nil, vatblend.IOError(path, fmt.Errorf("godal.open: %w", err))
	}
	return ds, nil
}

// Source is a vatblend.RasterSource reading the first band of any raster GDAL
// can open. Remote inputs require the matching VSI handler to be registered.
type Source struct{}

var (
	_ vatblend.RasterSource    = Source{}
	_ vatblend.RasterDescriber = Source{}
)

func (Source) Describe(ctx context.Context, path string) (vatblend.Profile, error) {
	if err := ctx.Err(); err != nil {
		return vatblend.Profile{}, err
	}
	ds, err := open(path)
	if err != nil {
		return vatblend.Profile{}, err
	}
	defer ds.Close()
	return describe(path, ds)
}

func describe(path string, ds *godal.Dataset) (vatblend.Profile, error) {
	st := ds.Structure()
	gt, err := ds.GeoTransform()
	if err != nil {
		return vatblend.Profile{}, vatblend.IOError(path, fmt.Errorf("geotransform: %w", err))
	}
	return vatblend.Profile{
		Driver:    "GTiff",
		Width:     st.SizeX,
		Height:    st.SizeY,
		Count:     st.NBands,
		CRS:       ds.Projection(),
		Transform: vatblend.GeoTransform(gt),
	}, nil
}

// Read performs a boundless buffered read of the first band. The requested
// extent is converted to a pixel window by rounding, grown by buffer pixels on
// each side, and the parts of the window falling outside of the raster are
// filled with the band's no-data value, or NaN if it has none.
func (Source) Read(ctx context.Context, path string, extent *vatblend.Extent, buffer int) (vatblend.Window, error) {
	if err := ctx.Err(); err != nil {
		return vatblend.Window{}, err
	}
	ds, err := open(path)
	if err != nil {
		return vatblend.Window{}, err
	}
	defer ds.Close()
	base, err := describe(path, ds)
	if err != nil {
		return vatblend.Window{}, err
	}
	bands := ds.Bands()
	if len(bands) == 0 {
		return vatblend.Window{}, vatblend.IOError(path, fmt.Errorf("no bands"))
	}
	band := bands[0]
	nodata, hasNoData := band.NoData()
	fill := nodata
	if !hasNoData {
		fill = math.NaN()
	}

	gt := base.Transform
	col, row, w, h := 0, 0, base.Width, base.Height
	if extent != nil {
		c0, r0 := gt.Pixel(extent.Left, extent.Top)
		c1, r1 := gt.Pixel(extent.Right, extent.Bottom)
		col, row = int(math.Round(c0)), int(math.Round(r0))
		w, h = int(math.Round(c1))-col, int(math.Round(r1))-row
	}
	if w <= 0 || h <= 0 {
		return vatblend.Window{}, vatblend.IOError(path, fmt.Errorf("empty window %dx%d", w, h))
	}

	bx, by := col-buffer, row-buffer
	data := vatblend.NewImageFill(w+2*buffer, h+2*buffer, 1, fill)
	x0, y0 := max(bx, 0), max(by, 0)
	x1, y1 := min(bx+data.Width, base.Width), min(by+data.Height, base.Height)
	if x1 > x0 && y1 > y0 {
		iw, ih := x1-x0, y1-y0
		buf := make([]float64, iw*ih)
		if err := band.Read(x0, y0, buf, iw, ih); err != nil {
			return vatblend.Window{}, vatblend.IOError(path, fmt.Errorf("read %d,%d+%dx%d: %w", x0, y0, iw, ih, err))
		}
		dst := data.Bands[0]
		for y := 0; y < ih; y++ {
			off := (y+y0-by)*data.Width + x0 - bx
			copy(dst[off:off+iw], buf[y*iw:(y+1)*iw])
		}
	}

	resX, resY := gt.Resolution()
	transform := gt.Offset(col, row)
	profile := base
	profile.Width, profile.Height, profile.Count = w, h, 1
	profile.Transform = transform
	return vatblend.Window{
		Data:              data,
		Buffer:            buffer,
		ResX:              resX,
		ResY:              resY,
		NoData:            fill,
		HasNoData:         hasNoData,
		BufferedTransform: gt.Offset(bx, by),
		Transform:         transform,
		CRS:               base.CRS,
		Profile:           profile,
	}, nil
}

// An Uploader moves a finished local file to its final, possibly remote,
// destination
type Uploader interface {
	Upload(ctx context.Context, local, dst string) error
}

// DefaultCreationOptions are the GeoTIFF creation options of every product
var DefaultCreationOptions = []string{"COMPRESS=LZW", "PREDICTOR=2", "TILED=YES", "BIGTIFF=IF_SAFER"}

// Sink is a vatblend.RasterSink writing GeoTIFFs. Files are written under a
// temporary name and only appear at their final path once complete. Outputs
// whose path is a url are staged in TempDir and handed over to Uploader.
type Sink struct {
	Uploader        Uploader
	CreationOptions []string
	TempDir         string
}

var _ vatblend.RasterSink = Sink{}

func (s Sink) WriteFloat32(ctx context.Context, path string, profile vatblend.Profile, img vatblend.Image) error {
	if img.Width != profile.Width || img.Height != profile.Height || len(img.Bands) != profile.Count {
		return vatblend.IOError(path, fmt.Errorf("image %dx%dx%d does not match profile %dx%dx%d",
			img.Width, img.Height, len(img.Bands), profile.Width, profile.Height, profile.Count))
	}
	bufs := make([]interface{}, len(img.Bands))
	for b, band := range img.Bands {
		buf := make([]float32, len(band))
		for i, v := range band {
			buf[i] = float32(v)
		}
		bufs[b] = buf
	}
	return s.write(ctx, path, profile, godal.Float32, bufs)
}

func (s Sink) WriteByte(ctx context.Context, path string, profile vatblend.Profile, bands [][]uint8) error {
	if len(bands) != profile.Count {
		return vatblend.IOError(path, fmt.Errorf("got %d bands, profile has %d", len(bands), profile.Count))
	}
	bufs := make([]interface{}, len(bands))
	for b, band := range bands {
		if len(band) != profile.Width*profile.Height {
			return vatblend.IOError(path, fmt.Errorf("band %d has %d pixels, expected %d", b, len(band), profile.Width*profile.Height))
		}
		bufs[b] = band
	}
	return s.write(ctx, path, profile, godal.Byte, bufs)
}

func (s Sink) write(ctx context.Context, path string, profile vatblend.Profile, dtype godal.DataType, bands []interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var tmp string
	if isLocal(path) {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return vatblend.IOError(path, err)
		}
		tmp = filepath.Join(dir, "."+uuid.New().String()+".tif")
	} else {
		if s.Uploader == nil {
			return vatblend.IOError(path, fmt.Errorf("no uploader configured for remote outputs"))
		}
		tmp = filepath.Join(s.tempDir(), uuid.New().String()+".tif")
	}
	defer os.Remove(tmp)

	if err := s.create(tmp, profile, dtype, bands); err != nil {
		return vatblend.IOError(path, err)
	}
	if !isLocal(path) {
		return s.Uploader.Upload(ctx, tmp, path)
	}
	if err := os.Rename(tmp, path); err != nil {
		return vatblend.IOError(path, err)
	}
	return nil
}

func (s Sink) tempDir() string {
	if s.TempDir != "" {
		return s.TempDir
	}
	return os.TempDir()
}

func (s Sink) create(name string, profile vatblend.Profile, dtype godal.DataType, bands []interface{}) error {
	copts := s.CreationOptions
	if len(copts) == 0 {
		copts = DefaultCreationOptions
	}
	ds, err := godal.Create(godal.GTiff, name, len(bands), dtype, profile.Width, profile.Height,
		godal.CreationOption(copts...))
	if err != nil {
		return fmt.Errorf("godal.create: %w", err)
	}
	if err := fill(ds, profile, bands); err != nil {
		ds.Close()
		return err
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func fill(ds *godal.Dataset, profile vatblend.Profile, bands []interface{}) error {
	if err := ds.SetGeoTransform([6]float64(profile.Transform)); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if profile.CRS != "" {
		if err := ds.SetProjection(profile.CRS); err != nil {
			return fmt.Errorf("set projection: %w", err)
		}
	}
	for i, band := range ds.Bands() {
		if profile.NoData != nil {
			if err := band.SetNoData(*profile.NoData); err != nil {
				return fmt.Errorf("band %d set nodata: %w", i+1, err)
			}
		}
		if err := band.Write(0, 0, bands[i], profile.Width, profile.Height); err != nil {
			return fmt.Errorf("band %d write: %w", i+1, err)
		}
	}
	return nil
}
