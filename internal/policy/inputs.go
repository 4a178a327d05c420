// Package policy holds the external influences on a subject's smoking:
// family and peer pressure, life stress, diet recommendations, and government
// measures (tax, public-smoking ban, legal age).
package policy

import (
	"math"

	"github.com/talgya/smokersim/internal/entropy"
)

// Documented defaults substituted for missing or invalid input.
const (
	DefaultLifeStress    = 0.3
	DefaultMinSmokingAge = 21.0
	DefaultRetirementAge = 63.0
	DefaultSugar         = 0.5 // neutral: (sugar - 0.5) = 0
	DefaultOil           = 5.0 // neutral: oil*0.1 - 0.5 = 0

	MinSocialInfluence = -0.2
	MaxSocialInfluence = 0.4
)

// Inputs is the policy-input record read every tick.
type Inputs struct {
	FamilyInfluence     bool    `json:"family_influence"`
	SocialInfluence     float64 `json:"social_influence"` // -0.2 .. 0.4
	LifeStress          float64 `json:"life_stress"`      // 0 .. 1
	TaxRate             float64 `json:"tax_rate"`         // fraction, 0.25 = 25%
	PublicSmokingBan    bool    `json:"public_smoking_ban"`
	MinSmokingAge       float64 `json:"min_smoking_age"`
	RetirementAge       float64 `json:"retirement_age"`
	SugarRecommendation float64 `json:"sugar_recommendation"`
	OilRecommendation   float64 `json:"oil_recommendation"`
}

// DefaultInputs returns the inputs a fresh session starts with.
func DefaultInputs() Inputs {
	return Inputs{
		LifeStress:          DefaultLifeStress,
		MinSmokingAge:       DefaultMinSmokingAge,
		RetirementAge:       DefaultRetirementAge,
		SugarRecommendation: DefaultSugar,
		OilRecommendation:   DefaultOil,
	}
}

// FamilyValue maps the family-influence flag onto 0|1.
func (in Inputs) FamilyValue() float64 {
	if in.FamilyInfluence {
		return 1
	}
	return 0
}

// SetSocialInfluence clamps v into the peer-influence range.
func (in *Inputs) SetSocialInfluence(v float64) {
	if !finite(v) {
		v = 0
	}
	in.SocialInfluence = clamp(v, MinSocialInfluence, MaxSocialInfluence)
}

// SetSmokerFriends applies the smoker-friends checkbox. Checked means strong peer pressure.
// Unchecked gives a coin flip between a mildly discouraging circle and no influence.
func (in *Inputs) SetSmokerFriends(checked bool, src entropy.Source) {
	if checked {
		in.SocialInfluence = MaxSocialInfluence
		return
	}
	if entropy.Chance(src, 0.5) {
		in.SocialInfluence = -entropy.Uniform(src, 0, 0.2)
		return
	}
	in.SocialInfluence = 0
}

// SetLifeStress clamps v into [0, 1].
func (in *Inputs) SetLifeStress(v float64) {
	if !finite(v) {
		v = DefaultLifeStress
	}
	in.LifeStress = clamp(v, 0, 1)
}

// SetTaxRate stores a non-negative tax fraction.
func (in *Inputs) SetTaxRate(v float64) {
	if !finite(v) || v < 0 {
		v = 0
	}
	in.TaxRate = v
}

// SetMinSmokingAge stores the legal age, falling back to 21.
func (in *Inputs) SetMinSmokingAge(v float64) {
	if !finite(v) || v <= 0 {
		v = DefaultMinSmokingAge
	}
	in.MinSmokingAge = v
}

// SetRetirementAge stores the retirement age, falling back to 63.
func (in *Inputs) SetRetirementAge(v float64) {
	if !finite(v) || v <= 0 {
		v = DefaultRetirementAge
	}
	in.RetirementAge = v
}

// SetSugarRecommendation stores the sugar guideline (0 .. 1).
func (in *Inputs) SetSugarRecommendation(v float64) {
	if !finite(v) {
		v = DefaultSugar
	}
	in.SugarRecommendation = clamp(v, 0, 1)
}

// SetOilRecommendation stores the oil guideline (0 .. 10).
func (in *Inputs) SetOilRecommendation(v float64) {
	if !finite(v) {
		v = DefaultOil
	}
	in.OilRecommendation = clamp(v, 0, 10)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
