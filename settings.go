package vatblend

import (
	"encoding/json"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"
)

// A LayerSpec describes one layer of a recipe document
type LayerSpec struct {
	Layer         string        `json:"layer,omitempty"`
	Method        string        `json:"visualization_method"`
	Normalization Normalization `json:"norm"`
	Min           float64       `json:"min"`
	Max           float64       `json:"max"`
	Mode          BlendMode     `json:"blend_mode"`
	Opacity       float64       `json:"opacity"`
	Colormap      string        `json:"colormap,omitempty"`
	MinCut        *float64      `json:"min_colormap_cut,omitempty"`
	MaxCut        *float64      `json:"max_colormap_cut,omitempty"`
}

// Kind returns the derivative rendered by the layer
func (l LayerSpec) Kind() (Kind, error) {
	return ParseKind(l.Method)
}

// inverted reports whether the layer's normalized values are flipped, which is
// the case for slope and negative openness so that steep or enclosed areas
// render dark
func (l LayerSpec) inverted() bool {
	k, err := l.Kind()
	return err == nil && (k == Slope || k == OpennessNegative)
}

// A CombinationSpec is an ordered list of layers, top first: the first layer
// is blended over all the others and the last one is the bottom of the stack.
type CombinationSpec struct {
	Name   string      `json:"name"`
	Layers []LayerSpec `json:"layers"`
}

type recipeDocument struct {
	Combination CombinationSpec `json:"combination"`
}

// DefaultVATRecipe is the VAT recipe tuned for general terrain
func DefaultVATRecipe() CombinationSpec {
	return CombinationSpec{
		Name: "VAT",
		Layers: []LayerSpec{
			{Layer: "1", Method: "Sky-View Factor", Min: 0.7, Max: 1, Mode: Multiply, Opacity: 25},
			{Layer: "2", Method: "Openness - Positive", Min: 68, Max: 93, Mode: Overlay, Opacity: 50},
			{Layer: "3", Method: "Slope gradient", Min: 0, Max: 50, Mode: Luminosity, Opacity: 50},
			{Layer: "4", Method: "Hillshade", Min: 0, Max: 1, Mode: Normal, Opacity: 100},
		},
	}
}

// Validate checks every layer of the recipe. The returned errors are
// configuration errors.
func (s CombinationSpec) Validate() error {
	if len(s.Layers) == 0 {
		return configErrorf("recipe %s has no layers", s.Name)
	}
	for i, l := range s.Layers {
		k, err := l.Kind()
		if err != nil {
			return configError(fmt.Sprintf("recipe %s layer %d", s.Name, i+1), err)
		}
		if !Supported(k) {
			return configErrorf("recipe %s layer %d: %s cannot be computed", s.Name, i+1, k)
		}
		if l.Opacity < 0 || l.Opacity > 100 {
			return configErrorf("recipe %s layer %d: opacity %g not in [0,100]", s.Name, i+1, l.Opacity)
		}
		if l.Normalization == NormValue && !(l.Min < l.Max) {
			return configErrorf("recipe %s layer %d: min %g must be lower than max %g", s.Name, i+1, l.Min, l.Max)
		}
		if l.Colormap != "" {
			if _, err := LookupColormap(l.Colormap); err != nil {
				return configError(fmt.Sprintf("recipe %s layer %d", s.Name, i+1), err)
			}
		}
	}
	return nil
}

// Keys returns the derivatives needed to render the recipe with the
// parameters of the given terrain profile
func (s CombinationSpec) Keys(profile TerrainProfile) ([]Key, error) {
	keys := make([]Key, 0, len(s.Layers))
	for _, l := range s.Layers {
		k, err := l.Kind()
		if err != nil {
			return nil, err
		}
		keys = append(keys, recipeKey(k, profile))
	}
	return keys, nil
}

// slope does not depend on the terrain scale, the general one is shared
func recipeKey(k Kind, profile TerrainProfile) Key {
	if k == Slope {
		return GeneralKey(Slope)
	}
	return Key{Kind: k, Profile: profile}
}

// Build creates a combination from the recipe, taking layer images from
// derivatives computed with the given terrain profile
func (s CombinationSpec) Build(name string, profile TerrainProfile, layers map[Key]Image) (*Combination, error) {
	c := NewCombination(name)
	for _, l := range s.Layers {
		k, err := l.Kind()
		if err != nil {
			return nil, err
		}
		key := recipeKey(k, profile)
		img, ok := layers[key]
		if !ok {
			return nil, invalidArgumentf("recipe %s: missing derivative %s", s.Name, key)
		}
		layer := Layer{
			Name:          l.Method,
			Image:         img,
			Normalization: l.Normalization,
			Min:           l.Min,
			Max:           l.Max,
			Invert:        l.inverted(),
			Mode:          l.Mode,
			Opacity:       l.Opacity,
			Colormap:      l.Colormap,
			MaxCut:        1,
		}
		if l.MinCut != nil {
			layer.MinCut = *l.MinCut
		}
		if l.MaxCut != nil {
			layer.MaxCut = *l.MaxCut
		}
		if err := c.CreateLayer(layer); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ParseRecipe decodes a JSON or YAML recipe document of the form
// {"combination":{"name":..., "layers":[...]}}
func ParseRecipe(data []byte) (CombinationSpec, error) {
	doc := recipeDocument{}
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return CombinationSpec{}, configError("decode recipe", err)
	}
	if err := doc.Combination.Validate(); err != nil {
		return CombinationSpec{}, err
	}
	return doc.Combination, nil
}

func LoadRecipe(path string) (CombinationSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CombinationSpec{}, configError("read recipe "+path, err)
	}
	return ParseRecipe(data)
}

// TerrainSettings holds the parameter overrides of one terrain profile, and
// the normalization ranges it applies onto a base recipe
type TerrainSettings struct {
	Name string `json:"name"`
	// Params is a partial Params document applied over DefaultParams
	Params json.RawMessage `json:"params,omitempty"`
	// Stretch overrides the normalization range of the recipe layers
	// rendering the given derivative
	Stretch map[Kind]Range `json:"stretch,omitempty"`
}

// TerrainDocument lists the available terrain profiles
type TerrainDocument struct {
	Terrains []TerrainSettings `json:"terrains"`
}

// DefaultTerrains returns the built-in general and flat profiles
func DefaultTerrains() TerrainDocument {
	return TerrainDocument{Terrains: []TerrainSettings{
		{Name: string(General)},
		{
			Name:   string(Flat),
			Params: json.RawMessage(`{"hillshade":{"elevation":15},"svf":{"radius":20}}`),
			Stretch: map[Kind]Range{
				SVF:              {0.9, 1},
				OpennessPositive: {85, 93},
				Slope:            {0, 15},
			},
		},
	}}
}

func ParseTerrains(data []byte) (TerrainDocument, error) {
	doc := TerrainDocument{}
	if err := yaml.UnmarshalStrict(data, &doc); err != nil {
		return doc, configError("decode terrain settings", err)
	}
	seen := map[string]bool{}
	for _, t := range doc.Terrains {
		if t.Name == "" {
			return doc, configErrorf("terrain settings without a name")
		}
		if seen[t.Name] {
			return doc, configErrorf("duplicate terrain settings %q", t.Name)
		}
		seen[t.Name] = true
	}
	return doc, nil
}

func LoadTerrains(path string) (TerrainDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TerrainDocument{}, configError("read terrain settings "+path, err)
	}
	return ParseTerrains(data)
}

// Select returns the settings of the named profile
func (d TerrainDocument) Select(name TerrainProfile) (TerrainSettings, error) {
	for _, t := range d.Terrains {
		if t.Name == string(name) {
			return t, nil
		}
	}
	return TerrainSettings{}, configErrorf("terrain profile %q not found", name)
}

// A Terrain is a fully resolved terrain profile
type Terrain struct {
	Profile TerrainProfile
	Params  Params
	Recipe  CombinationSpec
}

// Apply resolves the parameters of the profile and its variant of the base
// recipe. base is not modified.
func (t TerrainSettings) Apply(base CombinationSpec) (Terrain, error) {
	params := DefaultParams()
	if len(t.Params) > 0 {
		if err := yaml.UnmarshalStrict(t.Params, &params); err != nil {
			return Terrain{}, configError("terrain "+t.Name+" params", err)
		}
	}
	if err := params.Validate(); err != nil {
		return Terrain{}, fmt.Errorf("terrain %s: %w", t.Name, err)
	}
	recipe := CombinationSpec{Name: base.Name, Layers: append([]LayerSpec(nil), base.Layers...)}
	for i, l := range recipe.Layers {
		k, err := l.Kind()
		if err != nil {
			return Terrain{}, configError("terrain "+t.Name, err)
		}
		if r, ok := t.Stretch[k]; ok {
			recipe.Layers[i].Min, recipe.Layers[i].Max = r.Min, r.Max
		}
	}
	if err := recipe.Validate(); err != nil {
		return Terrain{}, err
	}
	return Terrain{Profile: TerrainProfile(t.Name), Params: params, Recipe: recipe}, nil
}

// ResolveTerrains selects and applies the requested profiles. It fails with a
// configuration error if any of them is missing from the document.
func ResolveTerrains(doc TerrainDocument, base CombinationSpec, profiles ...TerrainProfile) (map[TerrainProfile]Terrain, error) {
	out := make(map[TerrainProfile]Terrain, len(profiles))
	for _, p := range profiles {
		ts, err := doc.Select(p)
		if err != nil {
			return nil, err
		}
		t, err := ts.Apply(base)
		if err != nil {
			return nil, err
		}
		out[p] = t
	}
	return out, nil
}

// ParamsOf extracts the derivative parameters of resolved terrains
func ParamsOf(terrains map[TerrainProfile]Terrain) map[TerrainProfile]Params {
	out := make(map[TerrainProfile]Params, len(terrains))
	for p, t := range terrains {
		out[p] = t.Params
	}
	return out
}
