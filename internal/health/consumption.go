package health

import (
	"math"

	"github.com/talgya/smokersim/internal/entropy"
	"github.com/talgya/smokersim/internal/policy"
)

// Consumption model constants.
const (
	MinAdultAge        = 21.0  // below this, stress does not compound with time
	StressWeight       = 0.1   // life stress → cigarettes per tick
	InfluenceWeight    = 0.2   // family + peers → cigarettes per tick
	GovtBaselineEffect = -0.05 // standing reduction pressure from public health policy
	LifeEventSpread    = 0.2   // life events perturb within ±0.1
	RetirementTaper    = 20.0  // years past retirement to reach the stress floor
	RetiredStressFloor = 0.5
)

// MaxForAge is the age-banded consumption ceiling. Bands are half-open.
func MaxForAge(age float64) float64 {
	switch {
	case age < 18:
		return 2
	case age < 25:
		return 10
	case age < 35:
		return 15
	case age < 45:
		return 15
	case age < 55:
		return 16
	default:
		return 14
	}
}

// StressMultiplier scales life stress by stage of life.
func StressMultiplier(age, simYears, retirementAge float64) float64 {
	switch {
	case age >= retirementAge:
		return math.Max(RetiredStressFloor, 1-(1-RetiredStressFloor)*(age-retirementAge)/RetirementTaper)
	case age < MinAdultAge:
		return 1
	default:
		return 1 + simYears/30
	}
}

// UpdateAddiction grows the addiction factor with sustained consumption.
func UpdateAddiction(s *State) {
	s.AddictionFactor = math.Min(1, s.AddictionFactor+0.01*s.SimulationYears*(s.CigarettesPerDay/20))
}

// canInitiate reports whether a non-smoker may start this tick. Initiation needs a
// smoking family and legal age.
func canInitiate(s *State, in policy.Inputs) bool {
	return in.FamilyInfluence && s.AgeYears >= in.MinSmokingAge
}

// NextCigarettes computes next-tick consumption and updates the addiction factor.
// lifeStress is the effective stress level for this tick.
func NextCigarettes(s *State, in policy.Inputs, lifeStress float64, f policy.Factors, rnd entropy.Source) float64 {
	UpdateAddiction(s)

	stressFactor := lifeStress * StressWeight * StressMultiplier(s.AgeYears, s.SimulationYears, in.RetirementAge)
	influenceEffect := (in.FamilyValue() + in.SocialInfluence) * InfluenceWeight
	govtEffect := GovtBaselineEffect

	lifeEventImpact := 0.0
	if s.AgeYears > in.MinSmokingAge {
		lifeEventImpact = entropy.Uniform(rnd, -LifeEventSpread/2, LifeEventSpread/2)
	}

	next := s.CigarettesPerDay
	if s.HasStartedSmoking || s.Smoking() || canInitiate(s, in) {
		next += stressFactor + influenceEffect + govtEffect*(1-s.AddictionFactor) + lifeEventImpact + s.WithdrawalSeverity
	}

	next = clamp(next, 0, MaxForAge(s.AgeYears))
	return next * f.Tax * f.PublicSmoking
}

// ApplyConsumption stores the new consumption and the exposure bookkeeping derived from it.
func ApplyConsumption(s *State, next float64) {
	s.CigarettesPerDay = next
	if next > 0 {
		s.HasStartedSmoking = true
		if s.AgeYears > 40 {
			s.YearsSmokedPast40 += TickYears
		}
	}
	if next > s.PeakCigarettesPerDay {
		s.PeakCigarettesPerDay = next
	}
	s.LifetimeCigarettes += next * DaysPerYear * TickYears
}
