package health

import "math"

const (
	// MinutesPerStick is the life lost per cigarette smoked.
	MinutesPerStick = 20.0
	// PenaltyPast40 is years lost per simulated year of smoking after 40.
	PenaltyPast40 = 0.25
	// MaxReductionAt20 caps the smoking reduction at 10 years for a 20-a-day habit,
	// scaling linearly with the peak habit.
	MaxReductionAt20 = 10.0
)

const minutesPerYear = 60 * 24 * DaysPerYear

// LifeBounds returns the clamp range for the life-expectancy estimate at an age.
func LifeBounds(age float64) (lower, upper float64) {
	return math.Max(LifeExpectancyFloor, age), BaseLifeExpectancy + LifeExpectancyBonus
}

// SmokingReduction is years lost to smoking so far, before event penalties.
func SmokingReduction(s *State) float64 {
	perStick := s.LifetimeCigarettes * MinutesPerStick / minutesPerYear
	reduction := perStick + PenaltyPast40*s.YearsSmokedPast40
	limit := MaxReductionAt20 * s.PeakCigarettesPerDay / 20
	return math.Min(reduction, limit)
}

// LifeExpectancy recomputes the estimate from lifetime exposure and survived events.
func LifeExpectancy(s *State) float64 {
	lower, upper := LifeBounds(s.AgeYears)
	return clamp(BaseLifeExpectancy-SmokingReduction(s)-s.EventPenaltyYears, lower, upper)
}

// ApplyLifeExpectancy stores the recomputed estimate.
func ApplyLifeExpectancy(s *State) float64 {
	s.LifeExpectancyYears = LifeExpectancy(s)
	return s.LifeExpectancyYears
}
