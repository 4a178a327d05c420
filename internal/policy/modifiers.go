package policy

import "math"

const (
	// TaxElasticity is the price elasticity of cigarette demand.
	TaxElasticity = -0.5

	// BanStepYears is how often an active public-smoking ban tightens.
	BanStepYears = 5
	// BanStep is the multiplier drop applied at each ban step.
	BanStep = 0.07
)

// TaxAdjustment returns consumption at the given tax rate relative to untaxed
// consumption: (1+rate)^elasticity.
func TaxAdjustment(rate float64) float64 {
	if rate <= 0 {
		return 1
	}
	return math.Pow(1+rate, TaxElasticity)
}

// Factors are the multiplicative policy terms applied to next-tick consumption.
type Factors struct {
	Tax           float64 `json:"tax"`
	PublicSmoking float64 `json:"public_smoking"`
}

// Neutral is the no-policy factor set.
var Neutral = Factors{Tax: 1, PublicSmoking: 1}

// Modifiers tracks the stateful policy terms of a run.
type Modifiers struct {
	PublicSmokingMultiplier float64 `json:"public_smoking_multiplier"`
}

// NewModifiers returns modifiers with no accumulated ban pressure.
func NewModifiers() Modifiers {
	return Modifiers{PublicSmokingMultiplier: 1}
}

// Advance applies the ban ratchet for the tick just reached. While a ban is active the
// multiplier drops by BanStep on every tick that lands on a BanStepYears boundary
// (floor 0). With no ban the multiplier returns to 1.
func (m *Modifiers) Advance(in Inputs, tick, ticksPerYear uint64) {
	if !in.PublicSmokingBan {
		m.PublicSmokingMultiplier = 1
		return
	}
	step := BanStepYears * ticksPerYear
	if tick == 0 || step == 0 || tick%step != 0 {
		return
	}
	m.PublicSmokingMultiplier = math.Max(0, round(m.PublicSmokingMultiplier-BanStep))
}

// LiftBan resets the ban multiplier.
func (m *Modifiers) LiftBan() {
	m.PublicSmokingMultiplier = 1
}

// Factors combines the stateful modifiers with the current inputs.
func (m Modifiers) Factors(in Inputs) Factors {
	return Factors{
		Tax:           TaxAdjustment(in.TaxRate),
		PublicSmoking: m.PublicSmokingMultiplier,
	}
}

// round trims float drift so repeated 0.07 steps land on exact hundredths.
func round(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}
