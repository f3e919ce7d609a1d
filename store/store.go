// Package store checks for and uploads rendered products on the local
// filesystem and on cloud storage
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/vatblend"
	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
)

// Layout holds the fields of the first IFD of a TIFF file needed to check
// that it was completely written
type Layout struct {
	ImageWidth      uint64   `tiff:"field,tag=256"`
	ImageLength     uint64   `tiff:"field,tag=257"`
	BitsPerSample   []uint16 `tiff:"field,tag=258"`
	Compression     uint16   `tiff:"field,tag=259"`
	StripOffsets    []uint64 `tiff:"field,tag=273"`
	SamplesPerPixel uint16   `tiff:"field,tag=277"`
	StripByteCounts []uint64 `tiff:"field,tag=279"`
	Predictor       uint16   `tiff:"field,tag=317"`
	TileOffsets     []uint64 `tiff:"field,tag=324"`
	TileByteCounts  []uint64 `tiff:"field,tag=325"`
	SampleFormat    []uint16 `tiff:"field,tag=339"`
	NoData          string   `tiff:"field,tag=42113"`
}

// Inspect parses the first IFD of a TIFF file
func Inspect(r tiff.ReadAtReadSeeker) (Layout, error) {
	l := Layout{}
	tif, err := tiff.Parse(r, nil, nil)
	if err != nil {
		return l, fmt.Errorf("tiff.parse: %w", err)
	}
	ifds := tif.IFDs()
	if len(ifds) == 0 {
		return l, fmt.Errorf("no ifd")
	}
	if err := tiff.UnmarshalIFD(ifds[0], &l); err != nil {
		return l, fmt.Errorf("tiff.unmarshal: %w", err)
	}
	return l, nil
}

// Check verifies that every strip or tile of the layout lies within a file of
// the given size
func (l Layout) Check(size int64) error {
	offs, counts := l.StripOffsets, l.StripByteCounts
	if len(l.TileOffsets) > 0 {
		offs, counts = l.TileOffsets, l.TileByteCounts
	}
	if len(offs) == 0 {
		return fmt.Errorf("no strips or tiles")
	}
	if len(offs) != len(counts) {
		return fmt.Errorf("inconsistent offset/length count")
	}
	for i := range offs {
		if offs[i]+counts[i] > uint64(size) {
			return fmt.Errorf("block %d ends at %d past end of file %d", i, offs[i]+counts[i], size)
		}
	}
	return nil
}

// ValidTIFF reports whether the file at path is a TIFF whose data blocks are
// all present
func ValidTIFF(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return false, err
	}
	l, err := Inspect(f)
	if err != nil {
		return false, nil
	}
	return l.Check(st.Size()) == nil, nil
}

// Local is a vatblend.Store for files on the local filesystem. Existing .tif
// files are only reported if they are readable, so that outputs truncated by
// an interrupted run get recomputed.
type Local struct{}

var _ vatblend.Store = Local{}

func (Local) Exists(ctx context.Context, path string) (bool, error) {
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, vatblend.IOError(path, err)
	}
	if st.IsDir() {
		return false, vatblend.IOError(path, fmt.Errorf("is a directory"))
	}
	if !strings.HasSuffix(strings.ToLower(path), ".tif") {
		return true, nil
	}
	ok, err := ValidTIFF(path)
	if err != nil {
		return false, vatblend.IOError(path, err)
	}
	return ok, nil
}

// Upload moves a local file to its destination path
func (Local) Upload(ctx context.Context, local, dst string) error {
	if err := os.Rename(local, dst); err != nil {
		return vatblend.IOError(dst, err)
	}
	return nil
}

// ParseURL splits a gs://bucket/object url
func ParseURL(u string) (bucket, object string, err error) {
	if !strings.HasPrefix(u, "gs://") {
		return "", "", fmt.Errorf("%s: not a gs:// url", u)
	}
	bucket, object, _ = strings.Cut(strings.TrimPrefix(u, "gs://"), "/")
	if bucket == "" || object == "" {
		return "", "", fmt.Errorf("%s: missing bucket or object", u)
	}
	return bucket, object, nil
}

// GCS is a vatblend.Store for gs:// outputs
type GCS struct {
	Client *storage.Client
}

var _ vatblend.Store = GCS{}

func (g GCS) Exists(ctx context.Context, path string) (bool, error) {
	bucket, object, err := ParseURL(path)
	if err != nil {
		return false, vatblend.IOError(path, err)
	}
	attrs, err := g.Client.Bucket(bucket).Object(object).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, vatblend.IOError(path, err)
	}
	return attrs.Size > 0, nil
}

// Upload copies a local file to a gs:// url and removes the local copy. The
// object only becomes visible once the upload is complete.
func (g GCS) Upload(ctx context.Context, local, dst string) error {
	bucket, object, err := ParseURL(dst)
	if err != nil {
		return vatblend.IOError(dst, err)
	}
	f, err := os.Open(local)
	if err != nil {
		return vatblend.IOError(dst, err)
	}
	defer f.Close()
	w := g.Client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "image/tiff"
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return vatblend.IOError(dst, fmt.Errorf("upload: %w", err))
	}
	if err := w.Close(); err != nil {
		return vatblend.IOError(dst, fmt.Errorf("upload: %w", err))
	}
	_ = os.Remove(local)
	return nil
}

// Router dispatches to GCS for gs:// paths and to Local otherwise
type Router struct {
	Local Local
	// GCS is nil when no cloud storage client was configured
	GCS *GCS
}

var _ vatblend.Store = Router{}

func (r Router) Exists(ctx context.Context, path string) (bool, error) {
	if strings.HasPrefix(path, "gs://") {
		if r.GCS == nil {
			return false, vatblend.IOError(path, fmt.Errorf("no cloud storage client"))
		}
		return r.GCS.Exists(ctx, path)
	}
	return r.Local.Exists(ctx, path)
}

func (r Router) Upload(ctx context.Context, local, dst string) error {
	if strings.HasPrefix(dst, "gs://") {
		if r.GCS == nil {
			return vatblend.IOError(dst, fmt.Errorf("no cloud storage client"))
		}
		return r.GCS.Upload(ctx, local, dst)
	}
	return r.Local.Upload(ctx, local, dst)
}
