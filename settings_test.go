package vatblend

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonParams(p Params) (json.RawMessage, error) {
	return json.Marshal(p)
}

const recipeYAML = `
combination:
  name: custom
  layers:
  - layer: "1"
    visualization_method: Sky-View Factor
    norm: value
    min: 0.7
    max: 1
    blend_mode: Soft light
    opacity: 40
  - layer: "2"
    visualization_method: Slope gradient
    norm: perc
    min: 2
    max: 2
    blend_mode: normal
    opacity: 100
    colormap: Reds_r
    max_colormap_cut: 0.8
`

func TestParseRecipe(t *testing.T) {
	r, err := ParseRecipe([]byte(recipeYAML))
	require.NoError(t, err)
	assert.Equal(t, "custom", r.Name)
	require.Len(t, r.Layers, 2)
	assert.Equal(t, SoftLight, r.Layers[0].Mode)
	assert.Equal(t, NormPercent, r.Layers[1].Normalization)
	require.NotNil(t, r.Layers[1].MaxCut)
	assert.Equal(t, 0.8, *r.Layers[1].MaxCut)
	assert.Nil(t, r.Layers[1].MinCut)

	keys, err := r.Keys(Flat)
	require.NoError(t, err)
	assert.Equal(t, []Key{FlatKey(SVF), GeneralKey(Slope)}, keys)

	c, err := r.Build("custom", Flat, map[Key]Image{
		FlatKey(SVF):      NewImageFill(2, 2, 1, 0.8),
		GeneralKey(Slope): NewImageFill(2, 2, 1, 10),
	})
	require.NoError(t, err)
	layers := c.Layers()
	assert.False(t, layers[0].Invert)
	assert.True(t, layers[1].Invert)
	assert.Equal(t, 0.8, layers[1].MaxCut)

	_, err = r.Build("custom", General, map[Key]Image{GeneralKey(Slope): NewImageFill(2, 2, 1, 10)})
	var ia ErrInvalidArgument
	assert.True(t, errors.As(err, &ia))
}

func TestLayerInversion(t *testing.T) {
	for method, inverted := range map[string]bool{
		"Slope gradient":      true,
		"slope":               true,
		"Openness - Negative": true,
		"neg_opns":            true,
		"opns_neg":            true,
		"svf":                 false,
		"Openness - Positive": false,
		"hillshade":           false,
		"hypsometry":          false,
	} {
		assert.Equal(t, inverted, LayerSpec{Method: method}.inverted(), method)
	}
}

func TestParseRecipeErrors(t *testing.T) {
	var ce ErrConfiguration
	for name, doc := range map[string]string{
		"unknown field":  `{"combination":{"name":"x","layers":[{"visualization_method":"svf","min":0,"max":1,"colour":"red"}]}}`,
		"unknown method": `{"combination":{"name":"x","layers":[{"visualization_method":"hypsometry","min":0,"max":1}]}}`,
		"unknown mode":   `{"combination":{"name":"x","layers":[{"visualization_method":"svf","min":0,"max":1,"blend_mode":"dodge"}]}}`,
		"sky":            `{"combination":{"name":"x","layers":[{"visualization_method":"sky_illumination","min":0,"max":1}]}}`,
		"opacity":        `{"combination":{"name":"x","layers":[{"visualization_method":"svf","min":0,"max":1,"opacity":150}]}}`,
		"range":          `{"combination":{"name":"x","layers":[{"visualization_method":"svf","min":1,"max":0}]}}`,
		"empty":          `{"combination":{"name":"x"}}`,
	} {
		_, err := ParseRecipe([]byte(doc))
		assert.True(t, errors.As(err, &ce), name)
	}
	_, err := LoadRecipe("testdata/does-not-exist.yaml")
	assert.True(t, errors.As(err, &ce))
}

func TestDefaultTerrains(t *testing.T) {
	terrains, err := ResolveTerrains(DefaultTerrains(), DefaultVATRecipe(), General, Flat)
	require.NoError(t, err)
	general, flat := terrains[General], terrains[Flat]
	assert.Equal(t, DefaultParams(), general.Params)
	assert.Equal(t, 20, flat.Params.SVF.Radius)
	assert.Equal(t, 15.0, flat.Params.Hillshade.Elevation)
	assert.Equal(t, 315.0, flat.Params.Hillshade.Azimuth)

	assert.Equal(t, 0.7, general.Recipe.Layers[0].Min)
	assert.Equal(t, 0.9, flat.Recipe.Layers[0].Min)
	assert.Equal(t, 85.0, flat.Recipe.Layers[1].Min)
	assert.Equal(t, 15.0, flat.Recipe.Layers[2].Max)
	// the base recipe is left untouched
	assert.Equal(t, 0.7, DefaultVATRecipe().Layers[0].Min)
}

func TestParseTerrains(t *testing.T) {
	doc, err := ParseTerrains([]byte(`
terrains:
- name: general
- name: steep
  params:
    svf:
      radius: 5
  stretch:
    slope: {min: 0, max: 70}
`))
	require.NoError(t, err)
	steep, err := doc.Select("steep")
	require.NoError(t, err)
	terrain, err := steep.Apply(DefaultVATRecipe())
	require.NoError(t, err)
	assert.Equal(t, TerrainProfile("steep"), terrain.Profile)
	assert.Equal(t, 5, terrain.Params.SVF.Radius)
	assert.Equal(t, 16, terrain.Params.SVF.Directions)
	assert.Equal(t, 70.0, terrain.Recipe.Layers[2].Max)

	var ce ErrConfiguration
	_, err = ResolveTerrains(doc, DefaultVATRecipe(), General, Flat)
	require.True(t, errors.As(err, &ce))
	assert.Contains(t, err.Error(), `"flat" not found`)

	_, err = ParseTerrains([]byte(`{"terrains":[{"name":"a"},{"name":"a"}]}`))
	assert.True(t, errors.As(err, &ce))
	_, err = ParseTerrains([]byte(`{"terrains":[{"params":{}}]}`))
	assert.True(t, errors.As(err, &ce))

	bad := TerrainSettings{Name: "bad", Params: json.RawMessage(`{"svf":{"radius":0}}`)}
	_, err = bad.Apply(DefaultVATRecipe())
	assert.True(t, errors.As(err, &ce))
	unknown := TerrainSettings{Name: "bad", Params: json.RawMessage(`{"svf":{"raduis":3}}`)}
	_, err = unknown.Apply(DefaultVATRecipe())
	assert.True(t, errors.As(err, &ce))
}

func TestParamsBuffer(t *testing.T) {
	p := DefaultParams()
	for k, want := range map[Kind]int{
		Slope: 1, Hillshade: 1, SVF: 10, OpennessNegative: 10, LocalDominance: 20, SLRM: 20, MSTP: 2023, MSRM: 5,
	} {
		b, ok := p.Buffer(k)
		assert.True(t, ok)
		assert.Equal(t, want, b, k.String())
	}
	_, ok := p.Buffer(SkyIllumination)
	assert.False(t, ok)

	r, ok := p.ByteScaleRange(SVF)
	assert.True(t, ok)
	assert.Equal(t, Range{0.6375, 1}, r)
	p.ByteScale = nil
	r, ok = p.ByteScaleRange(Slope)
	assert.True(t, ok)
	assert.Equal(t, Range{0, 51}, r)

	p = DefaultParams()
	p.Slope.Units = "gradians"
	assert.Error(t, p.Validate())
	assert.NoError(t, DefaultParams().Validate())
}
