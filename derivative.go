package vatblend

import (
	"fmt"
	"strings"
)

// Kind identifies a terrain derivative
type Kind int

const (
	Slope Kind = iota
	Hillshade
	MultiHillshade
	SVF
	OpennessPositive
	OpennessNegative
	LocalDominance
	SLRM
	MSTP
	SkyIllumination
	ShadowHorizon
	MSRM

	numKinds
)

var kindNames = [numKinds]string{
	Slope:            "slope",
	Hillshade:        "hillshade",
	MultiHillshade:   "multi_hillshade",
	SVF:              "svf",
	OpennessPositive: "opns",
	OpennessNegative: "neg_opns",
	LocalDominance:   "ld",
	SLRM:             "slrm",
	MSTP:             "mstp",
	SkyIllumination:  "sky_illumination",
	ShadowHorizon:    "shadow_horizon",
	MSRM:             "msrm",
}

var kindAliases = map[string]Kind{
	"opns_pos":                         OpennessPositive,
	"opns_neg":                         OpennessNegative,
	"local_dominance":                  LocalDominance,
	"slope gradient":                   Slope,
	"sky-view factor":                  SVF,
	"openness - positive":              OpennessPositive,
	"openness - negative":              OpennessNegative,
	"multiple directions hillshade":    MultiHillshade,
	"simple local relief model":        SLRM,
	"multi-scale relief model":         MSRM,
	"multi-scale topographic position": MSTP,
	"sky illumination":                 SkyIllumination,
	"shadow":                           ShadowHorizon,
}

// Kinds lists every derivative kind
func Kinds() []Kind {
	ks := make([]Kind, numKinds)
	for k := range ks {
		ks[k] = Kind(k)
	}
	return ks
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves a derivative name. Short names ("svf", "opns", "ld"),
// their long forms ("local_dominance") and the visualization method names
// used in recipe documents ("Sky-View Factor") are accepted.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for k, kn := range kindNames {
		if n == kn {
			return Kind(k), nil
		}
	}
	if k, ok := kindAliases[n]; ok {
		return k, nil
	}
	return 0, invalidArgumentf("unsupported visualization type requested: %q", name)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	kind, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// TerrainProfile names a scale configuration of the derivative parameters
type TerrainProfile string

const (
	General TerrainProfile = "general"
	Flat    TerrainProfile = "flat"
)

// A Key identifies a derivative computed with the parameters of a terrain
// profile
type Key struct {
	Kind    Kind
	Profile TerrainProfile
}

func (k Key) String() string {
	return k.Kind.String() + "_" + string(k.Profile)
}

// GeneralKey is a shortcut for Key{k, General}
func GeneralKey(k Kind) Key {
	return Key{Kind: k, Profile: General}
}

// FlatKey is a shortcut for Key{k, Flat}
func FlatKey(k Kind) Key {
	return Key{Kind: k, Profile: Flat}
}
