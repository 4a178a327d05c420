// Package health implements the physiological model of a simulated smoker:
// consumption dynamics, the respiratory tar accumulator, cardiovascular risk,
// neuro/cognitive accumulators and life expectancy.
//
// All update functions take the subject's State explicitly and mutate nothing else.
package health

import "math"

// Time constants.
const (
	TickYears    = 0.1 // simulated years per tick
	TicksPerYear = 10
	DaysPerYear  = 365
)

// Subject defaults substituted for invalid input.
const (
	DefaultAge          = 25.0
	DefaultCigarettes   = 0.0
	BaseLifeExpectancy  = 83.0
	LifeExpectancyBonus = 7.0  // upper bound above base
	LifeExpectancyFloor = 60.0 // lower bound, unless already older
)

// State is the single mutable record of one simulation run.
type State struct {
	InitialAge              float64 `json:"initial_age"`
	AgeYears                float64 `json:"age_years"`
	SimulationYears         float64 `json:"simulation_years"`
	Ticks                   uint64  `json:"ticks"`
	CigarettesPerDay        float64 `json:"cigarettes_per_day"`
	InitialCigarettesPerDay float64 `json:"initial_cigarettes_per_day"`
	PeakCigarettesPerDay    float64 `json:"peak_cigarettes_per_day"`
	LifetimeCigarettes      float64 `json:"lifetime_cigarettes"`
	YearsSmokedPast40       float64 `json:"years_smoked_past_40"`
	HasStartedSmoking       bool    `json:"has_started_smoking"`

	AddictionFactor         float64 `json:"addiction_factor"`
	WithdrawalSeverity      float64 `json:"withdrawal_severity"`
	NeuroplasticityRecovery float64 `json:"neuroplasticity_recovery"`
	CognitiveDeclineRisk    float64 `json:"cognitive_decline_risk"`
	CognitiveImpact         float64 `json:"cognitive_impact"`

	TarAccumulation float64       `json:"tar_accumulation"`
	LungCapacity    float64       `json:"lung_capacity"`
	LungDamage      float64       `json:"lung_damage"`
	AirParticles    []AirParticle `json:"-"`

	BloodPressureFactor float64 `json:"blood_pressure_factor"`
	HeartOxygenLevel    float64 `json:"heart_oxygen_level"`
	HeartStress         float64 `json:"heart_stress"`
	HeartAttackRisk     float64 `json:"heart_attack_risk"`
	StrokeRisk          float64 `json:"stroke_risk"`
	CancerRisk          float64 `json:"cancer_risk"`

	LifeExpectancyYears float64 `json:"life_expectancy_years"`
	EventPenaltyYears   float64 `json:"event_penalty_years"`
}

// NewState creates the initial state for a run. Invalid age falls back to 25,
// invalid consumption to 0. Derived metrics are not computed here.
func NewState(age, cigarettes float64) *State {
	age = SanitizeAge(age)
	cigarettes = SanitizeCigarettes(cigarettes)
	return &State{
		InitialAge:              age,
		AgeYears:                age,
		CigarettesPerDay:        cigarettes,
		InitialCigarettesPerDay: cigarettes,
		PeakCigarettesPerDay:    cigarettes,
		HasStartedSmoking:       cigarettes > 0,
		NeuroplasticityRecovery: 1,
		LungCapacity:            100,
		BloodPressureFactor:     1,
		HeartOxygenLevel:        100,
		LifeExpectancyYears:     BaseLifeExpectancy,
	}
}

// SanitizeAge substitutes the default for a missing or non-positive age.
func SanitizeAge(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return DefaultAge
	}
	return v
}

// SanitizeCigarettes substitutes 0 for a missing or negative count.
func SanitizeCigarettes(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return DefaultCigarettes
	}
	return v
}

// Advance moves simulated time forward one tick. Years are derived from the tick
// counter so five-year boundaries land on exact ticks.
func (s *State) Advance() {
	s.Ticks++
	s.SimulationYears = float64(s.Ticks) * TickYears
	s.AgeYears = s.InitialAge + s.SimulationYears
}

// Smoking reports whether the subject currently consumes anything.
func (s *State) Smoking() bool {
	return s.CigarettesPerDay > 0
}

// YearsLost is the gap between the non-smoker baseline and the current estimate.
// Outliving the baseline counts as zero.
func (s *State) YearsLost() float64 {
	return math.Max(0, BaseLifeExpectancy-s.LifeExpectancyYears)
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	if s.AirParticles != nil {
		c.AirParticles = append([]AirParticle(nil), s.AirParticles...)
	}
	return &c
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

func clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

func sigmoid(x, k, midpoint float64) float64 {
	return 1 / (1 + math.Exp(-k*(x-midpoint)))
}
