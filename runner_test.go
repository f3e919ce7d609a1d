package vatblend

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner(t *testing.T, src *memSource, sink *memSink) Runner {
	t.Helper()
	terrains := testTerrains(t)
	g, err := BuildGraph(RecipeConfig{Terrains: terrains, CombinedOpacity: 50, Save8bit: true})
	require.NoError(t, err)
	return Runner{
		Dispatcher: Dispatcher{Source: src, Provider: &echoProvider{}, Params: ParamsOf(terrains)},
		Graph:      g,
		Sink:       sink,
		Store:      sink,
		Workers:    2,
	}
}

func testUnits(names ...string) []Unit {
	units := make([]Unit, len(names))
	for i, n := range names {
		units[i] = Unit{Name: n, Source: n, OutDir: "out", Stem: n}
	}
	return units
}

func TestRunnerSkipsExisting(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["a"] = testDEM(12, 12)
	src.dems["b"] = testDEM(12, 12)
	sink := newMemSink()
	r := testRunner(t, src, sink)
	ctx := context.Background()

	report, err := r.Run(ctx, testUnits("a", "b"), VATCombined)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Done())
	assert.NoError(t, report.Err())
	assert.Equal(t, 2, src.Reads())
	assert.ElementsMatch(t, []string{
		filepath.Join("out", "a_VCOMB_50.tif"), filepath.Join("out", "a_VCOMB_50_8bit.tif"),
		filepath.Join("out", "b_VCOMB_50.tif"), filepath.Join("out", "b_VCOMB_50_8bit.tif"),
	}, sink.Paths())
	img := sink.floats[filepath.Join("out", "a_VCOMB_50.tif")]
	assert.Equal(t, 12, img.Width)

	report, err = r.Run(ctx, testUnits("a", "b"), VATCombined)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped())
	assert.Equal(t, 2, src.Reads())

	// only the missing output is produced again
	delete(sink.bytes, filepath.Join("out", "b_VCOMB_50_8bit.tif"))
	report, err = r.Run(ctx, testUnits("a", "b"), VATCombined)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped())
	require.Equal(t, 1, report.Done())
	for _, res := range report.Results {
		if res.Status == Done {
			assert.Equal(t, "b", res.Unit)
			assert.Equal(t, []string{filepath.Join("out", "b_VCOMB_50_8bit.tif")}, res.Written)
		}
	}
	assert.Equal(t, 3, src.Reads())
}

func TestRunnerIsolatesFailures(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["a"] = testDEM(12, 12)
	src.dems["c"] = testDEM(12, 12)
	sink := newMemSink()
	sink.fail = filepath.Join("out", "c_svf.tif")
	r := testRunner(t, src, sink)

	report, err := r.Run(context.Background(), testUnits("a", "missing", "c"), "svf", "slope")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Done())
	assert.Equal(t, 2, report.Failed())
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "2/3 units failed")
	for _, res := range report.Results {
		switch res.Unit {
		case "a":
			assert.Equal(t, Done, res.Status)
			assert.Len(t, res.Written, 2)
		default:
			var ioe ErrIO
			assert.True(t, errors.As(res.Err, &ioe), res.Unit)
		}
	}
	assert.Contains(t, sink.bytes, filepath.Join("out", "a_svf.tif"))
	assert.Contains(t, sink.bytes, filepath.Join("out", "a_slope.tif"))
}

func TestRunnerRejectsBeforeReading(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["a"] = testDEM(12, 12)
	r := testRunner(t, src, newMemSink())
	ctx := context.Background()

	_, err := r.Run(ctx, testUnits("a"), "hypsometry")
	assert.True(t, IsConfigError(err))
	_, err = r.Run(ctx, testUnits("a"))
	assert.True(t, IsConfigError(err))

	r.Dispatcher.Params = map[TerrainProfile]Params{General: smallParams()}
	_, err = r.Run(ctx, testUnits("a"), SVFCombined)
	var ce ErrConfiguration
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, 0, src.Reads())
}

func TestRunnerCanceled(t *testing.T) {
	src := newMemSource(testTransform, -9999)
	src.dems["a"] = testDEM(12, 12)
	r := testRunner(t, src, newMemSink())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.Run(ctx, testUnits("a"), "svf")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed())
	assert.ErrorIs(t, report.Results[0].Err, context.Canceled)
	assert.Equal(t, 0, src.Reads())
}
