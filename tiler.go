package vatblend

import (
	"fmt"
	"math"
)

// A Tiler splits a raster into tiles of roughly similar sizes that can be
// processed as independent units of work. Tile edges are aligned to a multiple
// of the source's block size so that no source block is decoded by more than
// two neighbouring tiles, and tiles thinner than one block are merged into
// their neighbour.
//
// Tiles do not overlap: the halo needed by the derivatives is added by the
// buffered reads of each unit.
type Tiler struct {
	width, height         int
	transform             GeoTransform
	tileWidth, tileHeight int
	blockMultiple         int
}

type ErrInvalidOption struct {
	msg string
}

func (err ErrInvalidOption) Error() string {
	return err.msg
}

type TilerOption func(t *Tiler) error

// TileSize sets the target tile size, in pixels
func TileSize(width, height int) TilerOption {
	return func(t *Tiler) error {
		if width <= 0 || height <= 0 {
			return ErrInvalidOption{"tile width and height must be >=1"}
		}
		t.tileWidth, t.tileHeight = width, height
		return nil
	}
}

// TargetPixelCount sets the approximate number of pixels of a single square
// tile, i.e. a single unit of work will have to process approximately this
// number of pixels, whatever the size of the whole image.
func TargetPixelCount(count int) TilerOption {
	return func(t *Tiler) error {
		if count <= 0 {
			return ErrInvalidOption{"target pixel count must be >=1"}
		}
		side := int(math.Sqrt(float64(count)))
		if side < 1 {
			side = 1
		}
		t.tileWidth, t.tileHeight = side, side
		return nil
	}
}

// BlockMultiple forces tile sizes to be a multiple of n pixels, typically the
// internal tiling size of the source dataset
func BlockMultiple(n int) TilerOption {
	return func(t *Tiler) error {
		if n <= 0 {
			return ErrInvalidOption{"block multiple must be >=1"}
		}
		t.blockMultiple = n
		return nil
	}
}

// NewTiler creates a tiler for a raster of given size and geotransform.
// Default options are:
// - 4096x4096 tiles
// - aligned to 256 pixels
func NewTiler(width, height int, gt GeoTransform, options ...TilerOption) (Tiler, error) {
	t := Tiler{
		width:         width,
		height:        height,
		transform:     gt,
		tileWidth:     4096,
		tileHeight:    4096,
		blockMultiple: 256,
	}
	for _, o := range options {
		if err := o(&t); err != nil {
			return t, err
		}
	}
	if width <= 0 || height <= 0 {
		return t, ErrInvalidOption{"cannot tile 0-sized image"}
	}
	if gt[1] == 0 || gt[5] == 0 {
		return t, ErrInvalidOption{"invalid geotransform"}
	}
	if gt[2] != 0 || gt[4] != 0 {
		return t, ErrInvalidOption{"rotated geotransforms are not supported"}
	}
	return t, nil
}

func (t Tiler) Size() (int, int) {
	return t.width, t.height
}

func (t Tiler) TileSize() (int, int) {
	return t.tileWidth, t.tileHeight
}

func (t Tiler) BlockMultiple() int {
	return t.blockMultiple
}

// A Tile is a rectangle of Width*Height pixels whose upper left corner is at
// column X, row Y of the source raster
type Tile struct {
	X, Y          int
	Width, Height int
	Extent        Extent
}

type span struct {
	off, size int
}

// split divides size pixels into spans of roughly target pixels, aligned to
// the block multiple
func (t Tiler) split(size, target int) []span {
	n := size / target
	if n == 0 {
		n = 1
	}
	step := size / n
	if step <= t.blockMultiple {
		step = t.blockMultiple
	}
	if step%t.blockMultiple != 0 {
		step = (step/t.blockMultiple + 1) * t.blockMultiple
	}
	count := int(math.Ceil(float64(size) / float64(step)))
	var spans []span
	off := 0
	for s := 0; s < count; s++ {
		this := step
		if off+step > size {
			this = size - off
		}
		if s > 0 && this < t.blockMultiple {
			spans[len(spans)-1].size += this
		} else {
			spans = append(spans, span{off: off, size: this})
		}
		off += step
	}
	return spans
}

// Tiles returns the tiles covering the raster, row by row from the top
func (t Tiler) Tiles() []Tile {
	cols := t.split(t.width, t.tileWidth)
	rows := t.split(t.height, t.tileHeight)
	tiles := make([]Tile, 0, len(cols)*len(rows))
	for _, r := range rows {
		for _, c := range cols {
			tiles = append(tiles, Tile{
				X: c.off, Y: r.off,
				Width: c.size, Height: r.size,
				Extent: t.transform.Offset(c.off, r.off).Bounds(c.size, r.size),
			})
		}
	}
	return tiles
}

// Extents returns the world extents of the tiles
func (t Tiler) Extents() []Extent {
	tiles := t.Tiles()
	exts := make([]Extent, len(tiles))
	for i, tile := range tiles {
		exts[i] = tile.Extent
	}
	return exts
}

func (t Tile) String() string {
	return fmt.Sprintf("%dx%d+%d+%d", t.Width, t.Height, t.X, t.Y)
}
