package vatblend

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProductPath(t *testing.T) {
	tile := &Extent{Left: 410000, Bottom: 5020000, Right: 411000, Top: 5021000}
	assert.Equal(t, filepath.Join("out", "dem_svf.tif"), ProductPath("out", "dem", nil, "svf"))
	assert.Equal(t, filepath.Join("out", "RRIM", "410000_5020000_rvt_RRIM.tif"), ProductPath("out", "dem", tile, "RRIM"))
	assert.Equal(t, "gs://bucket/vis/e4MSTP/410000_5020000_rvt_e4MSTP.tif", ProductPath("gs://bucket/vis/", "dem", tile, "e4MSTP"))
	assert.Equal(t, "out/dem_VCOMB_50_8bit.tif", Companion8bit("out/dem_VCOMB_50.tif"))
	assert.Equal(t, "mosaic", Stem("gs://bucket/dir/mosaic.vrt"))
	assert.Equal(t, "dem.v2", Stem("/data/dem.v2.tif"))
	assert.Equal(t, "gs://bucket/dir", Dir("gs://bucket/dir/mosaic.vrt"))
	assert.Equal(t, filepath.Join("data", "in"), Dir(filepath.Join("data", "in", "dem.tif")))
}

func TestUnitOutputs(t *testing.T) {
	u := Unit{OutDir: "out", Stem: "dem"}
	both := &Product{ID: "c", Name: "VCOMB_50", Float: true, Byte: true, ByteRange: Range{0, 1}}
	outs := u.Outputs(both)
	assert.Len(t, outs, 2)
	assert.Equal(t, filepath.Join("out", "dem_VCOMB_50.tif"), outs[0].Path)
	assert.Equal(t, Float32, outs[0].DataType)
	assert.Equal(t, filepath.Join("out", "dem_VCOMB_50_8bit.tif"), outs[1].Path)
	assert.Equal(t, Byte, outs[1].DataType)

	vis := &Product{ID: "svf", Name: "svf", Byte: true, ByteRange: Range{0.6375, 1}}
	outs = u.Outputs(vis)
	assert.Len(t, outs, 1)
	assert.Equal(t, filepath.Join("out", "dem_svf.tif"), outs[0].Path)
	assert.Equal(t, Range{0.6375, 1}, outs[0].ByteRange)

	assert.Empty(t, u.Outputs(&Product{ID: "hidden"}))
}
