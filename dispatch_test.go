package vatblend

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTransform = GeoTransform{500000, 1, 0, 6000000, 0, -1}

func testDispatcher(src RasterSource, pv Provider) Dispatcher {
	flat := smallParams()
	flat.SVF.Radius = 5
	return Dispatcher{
		Source:   src,
		Provider: pv,
		Params:   map[TerrainProfile]Params{General: smallParams(), Flat: flat},
	}
}

func TestCropBufferedRead(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["dem"] = testDEM(10, 8)
	ext := Extent{Left: 500002, Bottom: 5999994, Right: 500006, Top: 5999998}
	win, err := src.Read(context.Background(), "dem", &ext, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, win.Data.Width)
	assert.Equal(t, 10, win.Data.Height)
	// outside of the raster
	assert.Equal(t, -9999.0, win.Data.At(0, 0, 0))
	crop, err := win.Data.Crop(3)
	require.NoError(t, err)
	assert.Equal(t, 4, crop.Width)
	assert.Equal(t, 4, crop.Height)
	assert.Equal(t, float64(2+2*10), crop.At(0, 0, 0))
	assert.Equal(t, float64(5+5*10), crop.At(0, 3, 3))

	_, err = crop.Crop(2)
	assert.Error(t, err)
	same, err := crop.Crop(0)
	require.NoError(t, err)
	assert.Equal(t, crop, same)
}

func TestDispatchSingleRead(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["dem"] = testDEM(12, 12)
	pv := &echoProvider{}
	d := testDispatcher(src, pv)
	keys := []Key{GeneralKey(Slope), GeneralKey(SVF), GeneralKey(OpennessPositive), FlatKey(SVF), GeneralKey(MultiHillshade)}

	buf, err := d.Buffer(keys)
	require.NoError(t, err)
	assert.Equal(t, 5, buf)

	res, err := d.Compute(context.Background(), "dem", nil, keys)
	require.NoError(t, err)
	assert.Equal(t, 1, src.Reads())
	assert.Equal(t, []int{5}, src.buffers)

	// each pass receives the read trimmed to its own buffer
	assert.Equal(t, []int{14}, pv.Inputs("slope"))
	assert.Equal(t, []int{14}, pv.Inputs("multi_hillshade"))
	// svf and opns general share a pass, svf flat has its own
	assert.ElementsMatch(t, []int{18, 22}, pv.Inputs("sky_view"))

	dem := src.dems["dem"]
	require.Len(t, res.Layers, len(keys))
	for _, k := range keys {
		img, ok := res.Get(k)
		require.True(t, ok, k.String())
		assert.Equal(t, dem.Bands[0], img.Bands[0], k.String())
	}
	mh, _ := res.Get(GeneralKey(MultiHillshade))
	assert.Equal(t, 3, mh.NBands())
	assert.Equal(t, 12, res.Window.Profile.Width)
}

func TestDispatchTile(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["dem"] = testDEM(20, 20)
	d := testDispatcher(src, &echoProvider{})
	ext := Extent{Left: 500010, Bottom: 5999980, Right: 500020, Top: 5999990}
	res, err := d.Compute(context.Background(), "dem", &ext, []Key{GeneralKey(SLRM)})
	require.NoError(t, err)
	img, _ := res.Get(GeneralKey(SLRM))
	assert.Equal(t, 10, img.Width)
	assert.Equal(t, float64(10+10*20), img.At(0, 0, 0))
	assert.Equal(t, float64(19+19*20), img.At(0, 9, 9))
}

func TestDispatchNoRead(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["dem"] = testDEM(8, 8)
	d := testDispatcher(src, &echoProvider{})

	_, err := d.Compute(context.Background(), "dem", nil, []Key{GeneralKey(SkyIllumination)})
	var ia ErrInvalidArgument
	assert.True(t, errors.As(err, &ia))

	_, err = d.Compute(context.Background(), "dem", nil, []Key{{Kind: SVF, Profile: "steep"}})
	var ce ErrConfiguration
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, src.Reads())

	_, err = d.Compute(context.Background(), "missing", nil, []Key{GeneralKey(Slope)})
	var ioe ErrIO
	assert.True(t, errors.As(err, &ioe))
}

func TestDispatchComputeErrors(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["dem"] = testDEM(8, 8)
	var ce ErrCompute

	_, err := testDispatcher(src, &echoProvider{short: "hillshade"}).
		Compute(context.Background(), "dem", nil, []Key{GeneralKey(Hillshade)})
	assert.True(t, errors.As(err, &ce))

	_, err = testDispatcher(src, &echoProvider{fail: "ld"}).
		Compute(context.Background(), "dem", nil, []Key{GeneralKey(LocalDominance)})
	assert.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), "ld failed")
}

func TestDispatchNoData(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	dem := testDEM(6, 6)
	dem.Set(0, 2, 3, -9999)
	src.dems["dem"] = dem

	d := testDispatcher(src, &echoProvider{})
	res, err := d.Compute(context.Background(), "dem", nil, []Key{GeneralKey(Slope)})
	require.NoError(t, err)
	img, _ := res.Get(GeneralKey(Slope))
	assert.True(t, math.IsNaN(img.At(0, 2, 3)))
	assert.True(t, math.IsNaN(res.Window.NoData))

	d.FillNoData = true
	res, err = d.Compute(context.Background(), "dem", nil, []Key{GeneralKey(Slope)})
	require.NoError(t, err)
	img, _ = res.Get(GeneralKey(Slope))
	assert.False(t, math.IsNaN(img.At(0, 2, 3)))
	assert.False(t, math.IsNaN(img.At(0, 0, 0)))

	d.KeepOriginalNoData = true
	res, err = d.Compute(context.Background(), "dem", nil, []Key{GeneralKey(Slope)})
	require.NoError(t, err)
	img, _ = res.Get(GeneralKey(Slope))
	assert.True(t, math.IsNaN(img.At(0, 2, 3)))
	assert.False(t, math.IsNaN(img.At(0, 2, 2)))
}

func TestFillNoData(t *testing.T) {
	nan := math.NaN()
	img := SingleBand(3, 3, []float64{
		1, 1, 1,
		1, nan, 3,
		3, 3, 3,
	})
	out := FillNoData(img)
	assert.InDelta(t, 2, out.At(0, 1, 1), 1e-12)
	assert.True(t, math.IsNaN(img.At(0, 1, 1)))

	empty := NewImageFill(2, 2, 1, nan)
	assert.True(t, math.IsNaN(FillNoData(empty).At(0, 0, 0)))
}

func TestParseKind(t *testing.T) {
	for name, kind := range map[string]Kind{
		"svf": SVF, "opns": OpennessPositive, "opns_pos": OpennessPositive, "neg_opns": OpennessNegative,
		"local_dominance": LocalDominance, "Sky-View Factor": SVF, "Slope gradient": Slope,
		"MSRM": MSRM, "multi_hillshade": MultiHillshade,
	} {
		k, err := ParseKind(name)
		require.NoError(t, err, name)
		assert.Equal(t, kind, k, name)
	}
	_, err := ParseKind("hypsometry")
	assert.EqualError(t, err, `invalid argument: unsupported visualization type requested: "hypsometry"`)
	assert.False(t, Supported(SkyIllumination))
	assert.False(t, Supported(ShadowHorizon))
	assert.True(t, Supported(MSRM))
	assert.Equal(t, "svf_flat", FlatKey(SVF).String())
}
