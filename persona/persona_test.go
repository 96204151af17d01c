package persona

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve_PresetsNormalized(t *testing.T) {
	e := NewEngine()
	for _, name := range Presets() {
		b, err := e.Resolve(Config{Preset: name})
		assert.NoError(t, err)
		assert.NoError(t, AssertNormalized(b), "preset %s", name)
	}
}

func TestResolve_ContinuousNormalized(t *testing.T) {
	e := NewEngine()
	b, err := e.Resolve(Config{Weights: map[string]float64{
		"authoritative": 2, "encouraging": 1, "analytical": 1, "playful": 0,
	}})
	assert.NoError(t, err)
	assert.NoError(t, AssertNormalized(b))
	assert.InDelta(t, 0.5, b.Weight(AxisAuthoritative), 1e-9)
	assert.Equal(t, AxisAuthoritative, b.Dominant())
}

func TestResolve_NegativeWeightsClamped(t *testing.T) {
	e := NewEngine()
	b, err := e.Resolve(Config{Weights: map[string]float64{
		"authoritative": -3, "encouraging": 1,
	}})
	assert.NoError(t, err)
	assert.Equal(t, 0.0, b.Weight(AxisAuthoritative))
	assert.InDelta(t, 1.0, b.Weight(AxisEncouraging), 1e-9)
}

func TestResolve_ZeroVectorFallsBackToDefault(t *testing.T) {
	e := NewEngine()
	b, err := e.Resolve(Config{Weights: map[string]float64{"playful": 0}})
	assert.NoError(t, err)
	def, _ := e.Resolve(Config{Preset: DefaultPreset})
	assert.InDelta(t, def.Weight(AxisEncouraging), b.Weight(AxisEncouraging), 1e-9)
}

func TestResolve_UnknownPresetMapsToDefault(t *testing.T) {
	e := NewEngine()
	b, err := e.Resolve(Config{Preset: "zen_master"})
	assert.NoError(t, err)
	def, _ := e.Resolve(Config{Preset: DefaultPreset})
	for _, a := range Axes() {
		assert.InDelta(t, def.Weight(a), b.Weight(a), 1e-9)
	}
}

func TestResolve_LegacyThreeAxisMigration(t *testing.T) {
	e := NewEngine()
	// Legacy encodings used strict/supportive/technical and had no playful axis.
	b, err := e.Resolve(Config{Weights: map[string]float64{
		"strict": 1, "supportive": 1, "technical": 2,
	}})
	assert.NoError(t, err)
	assert.NoError(t, AssertNormalized(b))
	assert.Equal(t, 0.0, b.Weight(AxisPlayful))
	assert.InDelta(t, 0.5, b.Weight(AxisAnalytical), 1e-9)
}

func TestPromptFragment_Deterministic(t *testing.T) {
	e := NewEngine()
	cfg := Config{Weights: map[string]float64{"encouraging": 3, "analytical": 1}}
	b1, _ := e.Resolve(cfg)
	b2, _ := e.Resolve(cfg)
	f1 := e.PromptFragment(b1)
	f2 := e.PromptFragment(b2)
	assert.Equal(t, f1, f2)
	assert.Contains(t, f1, "warm and encouraging")
	assert.Contains(t, f1, "encouraging 75%")
}

func TestApology_FollowsDominantAxis(t *testing.T) {
	e := NewEngine()
	b, _ := e.Resolve(Config{Preset: "drill_sergeant"})
	assert.Equal(t, apologies[AxisAuthoritative], e.Apology(b))
	b2, _ := e.Resolve(Config{Preset: "playful"})
	assert.NotEqual(t, e.Apology(b), e.Apology(b2))
}
