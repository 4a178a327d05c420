package health

import (
	"math"

	"github.com/talgya/smokersim/internal/policy"
)

// RiskAgeThreshold is where risk curves switch to the accelerated variant.
const RiskAgeThreshold = 50.0

// curve is one logistic risk curve.
type curve struct {
	k, midpoint float64
}

func (c curve) at(x float64) float64 { return sigmoid(x, c.k, c.midpoint) }

// riskCurves is a base curve plus the steeper, earlier curve used from age 50.
type riskCurves struct {
	base, aged curve
}

func (r riskCurves) at(x, age float64) float64 {
	if age < RiskAgeThreshold {
		return r.base.at(x)
	}
	return math.Max(r.base.at(x), r.aged.at(x))
}

var (
	heartAttackCurves = riskCurves{base: curve{0.08, 40}, aged: curve{0.1, 35}}  // on heart stress
	strokeCurves      = riskCurves{base: curve{3, 2.5}, aged: curve{4, 2.2}}     // on blood pressure
	cancerCurves      = riskCurves{base: curve{2.5, 2.8}, aged: curve{3.5, 2.4}} // on blood pressure
)

// Risks are the derived cardiovascular readings of one tick.
type Risks struct {
	BloodPressure   float64 `json:"blood_pressure"`
	OxygenLevel     float64 `json:"oxygen_level"`
	HeartStress     float64 `json:"heart_stress"`
	HeartAttackRisk float64 `json:"heart_attack_risk"`
	StrokeRisk      float64 `json:"stroke_risk"`
	CancerRisk      float64 `json:"cancer_risk"`
}

// BloodPressure is the blood-pressure factor (1 = normal) for a consumption level
// and diet guidance.
func BloodPressure(cigarettes float64, in policy.Inputs) float64 {
	cholesterol := in.OilRecommendation * 0.1
	bp := 1 + cigarettes*0.1 + (in.SugarRecommendation - 0.5) + (cholesterol - 0.5)
	return math.Max(1, bp)
}

// OxygenLevel is blood oxygen saturation given consumption and lung capacity.
func OxygenLevel(cigarettes, lungCapacity float64) float64 {
	return clamp(100-0.4*(cigarettes*0.5)-0.6*((100-lungCapacity)*0.5), 70, 100)
}

// HeartStress combines oxygen deficit and blood pressure on a 0..100 scale.
func HeartStress(oxygen, bp float64) float64 {
	return clamp(0.5*(100-oxygen)+30*(bp-1), 0, 100)
}

// DeriveRisks recomputes every risk scalar from the current state.
func DeriveRisks(s *State, in policy.Inputs) Risks {
	bp := BloodPressure(s.CigarettesPerDay, in)
	oxygen := OxygenLevel(s.CigarettesPerDay, s.LungCapacity)
	stress := HeartStress(oxygen, bp)
	return Risks{
		BloodPressure:   bp,
		OxygenLevel:     oxygen,
		HeartStress:     stress,
		HeartAttackRisk: clamp01(heartAttackCurves.at(stress, s.AgeYears)),
		StrokeRisk:      clamp01(strokeCurves.at(bp, s.AgeYears)),
		CancerRisk:      clamp01(cancerCurves.at(bp, s.AgeYears)),
	}
}

// ApplyRisks stores derived risks on the state.
func ApplyRisks(s *State, r Risks) {
	s.BloodPressureFactor = r.BloodPressure
	s.HeartOxygenLevel = r.OxygenLevel
	s.HeartStress = r.HeartStress
	s.HeartAttackRisk = r.HeartAttackRisk
	s.StrokeRisk = r.StrokeRisk
	s.CancerRisk = r.CancerRisk
}
