package vatblend

import (
	"errors"
	"math"
	"testing"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeValue(t *testing.T) {
	img := SingleBand(5, 1, []float64{-1, 0, 5, 10, math.NaN()})
	out, err := Normalize(img, NormValue, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0.5}, out.Bands[0][:3])
	assert.Equal(t, 1.0, out.Bands[0][3])
	assert.True(t, math.IsNaN(out.Bands[0][4]))
	// input untouched
	assert.Equal(t, -1.0, img.Bands[0][0])

	_, err = Normalize(img, NormValue, 10, 10)
	var ia ErrInvalidArgument
	assert.True(t, errors.As(err, &ia))
}

func TestNormalizePercent(t *testing.T) {
	data := make([]float64, 100)
	for i := range data {
		data[i] = float64(i)
	}
	data[0] = math.NaN()
	out, err := Normalize(SingleBand(10, 10, data), NormPercent, 10, 10)
	require.NoError(t, err)
	band := out.Bands[0]
	assert.True(t, math.IsNaN(band[0]))
	assert.Equal(t, 0.0, band[1])
	assert.Equal(t, 0.0, band[5])
	assert.Equal(t, 1.0, band[95])
	assert.Equal(t, 1.0, band[99])
	assert.InDelta(t, 0.5, band[50], 0.03)
	for i := 2; i < 100; i++ {
		assert.GreaterOrEqual(t, band[i], band[i-1])
	}

	flat, err := Normalize(NewImageFill(3, 3, 1, 5), NormPercent, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 9), flat.Bands[0])

	_, err = Normalize(flat, NormPercent, 50, 50)
	var ia ErrInvalidArgument
	assert.True(t, errors.As(err, &ia))
}

func TestPercentileBounds(t *testing.T) {
	ramp := make([]float64, 101)
	for i := range ramp {
		ramp[i] = float64(i)
	}
	for _, tc := range []struct {
		name      string
		data      []float64
		low, high float64
		lo, hi    float64
	}{
		{"ramp 2/2", ramp, 2, 2, 2, 98},
		{"ramp 0/0", ramp, 0, 0, 0, 100},
		{"ramp 25/10", ramp, 25, 10, 25, 90},
		{"between ranks", []float64{4, 0, 10, 2}, 10, 10, 0.6, 8.2},
		{"single", []float64{7}, 2, 2, 7, 7},
	} {
		lo, hi, ok := percentileBounds(SingleBand(len(tc.data), 1, tc.data), tc.low, tc.high)
		require.True(t, ok, tc.name)
		assert.InDelta(t, tc.lo, lo, 1e-9, tc.name)
		assert.InDelta(t, tc.hi, hi, 1e-9, tc.name)
	}

	out, err := Normalize(SingleBand(101, 1, ramp), NormPercent, 2, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out.At(0, 50, 0), 1e-9)
	assert.InDelta(t, 0.0, out.At(0, 2, 0), 1e-9)
	assert.InDelta(t, 1.0, out.At(0, 98, 0), 1e-9)
}

func TestParseNormalization(t *testing.T) {
	n, err := ParseNormalization("Value")
	require.NoError(t, err)
	assert.Equal(t, NormValue, n)
	n, err = ParseNormalization("perc")
	require.NoError(t, err)
	assert.Equal(t, NormPercent, n)
	_, err = ParseNormalization("log")
	assert.Error(t, err)
}

func TestByteScale(t *testing.T) {
	img := Image{Width: 6, Height: 1, Bands: [][]float64{{-1, 0, 0.5, 1, 2, math.NaN()}}}
	out, err := ByteScale(img, 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint8{0, 0, 128, 255, 255, 0}, out[0])

	out, err = ByteScale(SingleBand(1, 1, []float64{1}), 0.5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, []uint8{128}, out[0])

	_, err = ByteScale(img, 1, 0)
	assert.Error(t, err)
}

func TestColormap(t *testing.T) {
	cm, err := LookupColormap("Reds_r")
	require.NoError(t, err)
	dark, _ := colorful.Hex("#67000d")
	light, _ := colorful.Hex("#fff5f0")
	assert.Equal(t, dark, cm.At(0))
	assert.Equal(t, light, cm.At(1))
	assert.Equal(t, light, cm.At(2))

	fwd, err := LookupColormap("reds")
	require.NoError(t, err)
	assert.Equal(t, light, fwd.At(0))
	mid := fwd.At(0.5)
	assert.Equal(t, fwd.stops[4], mid)

	img := SingleBand(3, 1, []float64{0, 1, math.NaN()})
	rgb, err := fwd.Apply(img, 0, 0.5)
	require.NoError(t, err)
	require.Equal(t, 3, rgb.NBands())
	assert.InDelta(t, light.R, rgb.Bands[0][0], 1e-12)
	assert.InDelta(t, mid.G, rgb.Bands[1][1], 1e-12)
	for _, band := range rgb.Bands {
		assert.True(t, math.IsNaN(band[2]))
	}

	_, err = fwd.Apply(img, 0.6, 0.4)
	assert.Error(t, err)
	_, err = fwd.Apply(NewImage(1, 1, 3), 0, 1)
	assert.Error(t, err)
	_, err = LookupColormap("jet")
	var ia ErrInvalidArgument
	assert.True(t, errors.As(err, &ia))
}
