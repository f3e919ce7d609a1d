package vatblend

import (
	"path"
	"path/filepath"
	"strings"
)

const gsPrefix = "gs://"

// joinPath joins path elements, preserving a gs:// scheme on the first one
func joinPath(elem ...string) string {
	if len(elem) > 0 && strings.HasPrefix(elem[0], gsPrefix) {
		rest := append([]string{strings.TrimPrefix(elem[0], gsPrefix)}, elem[1:]...)
		return gsPrefix + path.Join(rest...)
	}
	return filepath.Join(elem...)
}

// Dir returns all but the last element of p, preserving a gs:// scheme
func Dir(p string) string {
	if strings.HasPrefix(p, gsPrefix) {
		return gsPrefix + path.Dir(strings.TrimPrefix(p, gsPrefix))
	}
	return filepath.Dir(p)
}

// Stem returns the file name of p without directory nor extension
func Stem(p string) string {
	base := path.Base(filepath.ToSlash(p))
	return strings.TrimSuffix(base, path.Ext(base))
}

// ProductPath names the output of a product for a unit of work: single images
// produce <dir>/<stem>_<name>.tif, tiles <dir>/<name>/<left>_<bottom>_rvt_<name>.tif.
// Names never encode the derivative parameters, so outputs rendered with
// different terrain settings must go to different directories.
func ProductPath(dir, stem string, tile *Extent, name string) string {
	if tile == nil {
		return joinPath(dir, stem+"_"+name+".tif")
	}
	return joinPath(dir, name, tile.Name()+"_rvt_"+name+".tif")
}

// Companion8bit names the 8-bit version of a float output
func Companion8bit(p string) string {
	return strings.TrimSuffix(p, ".tif") + "_8bit.tif"
}

// An Output is one file written for a product
type Output struct {
	Product   *Product
	Path      string
	DataType  DataType
	ByteRange Range
}

// Outputs lists the files persisted for p
func (u Unit) Outputs(p *Product) []Output {
	base := ProductPath(u.OutDir, u.Stem, u.Tile, p.Name)
	var outs []Output
	if p.Float {
		outs = append(outs, Output{Product: p, Path: base, DataType: Float32})
	}
	if p.Byte {
		bp := base
		if p.Float {
			bp = Companion8bit(base)
		}
		outs = append(outs, Output{Product: p, Path: bp, DataType: Byte, ByteRange: p.ByteRange})
	}
	return outs
}
