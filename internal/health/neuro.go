package health

import "math"

// Neuro accumulator rates.
const (
	WithdrawalRise     = 0.05
	WithdrawalDecay    = 0.9
	RecoveryGain       = 0.02
	ExposureLoss       = 0.01
	SmokingRecoveryMin = 0.3
	DeclineGain        = 0.002
	DeclineRecovery    = 0.001
	ImpactSmoothing    = 0.05
)

// UpdateNeuro updates withdrawal, neuroplasticity and cognitive accumulators
// after consumption moved from previous to the current value.
func UpdateNeuro(s *State, previous float64) {
	current := s.CigarettesPerDay

	if drop := previous - current; drop > 0 {
		s.WithdrawalSeverity += WithdrawalRise * drop * (1 + s.AddictionFactor)
	} else {
		s.WithdrawalSeverity *= WithdrawalDecay
	}
	s.WithdrawalSeverity = clamp01(s.WithdrawalSeverity)

	reducing := current < previous || current == 0
	if reducing {
		s.NeuroplasticityRecovery += RecoveryGain
	} else {
		s.NeuroplasticityRecovery -= ExposureLoss * current / 20
	}
	s.NeuroplasticityRecovery = clamp01(s.NeuroplasticityRecovery)
	if current > 0 {
		s.NeuroplasticityRecovery = math.Max(SmokingRecoveryMin, s.NeuroplasticityRecovery)
	}

	if current > 0 {
		s.CognitiveDeclineRisk += DeclineGain * current / 20 * (1 - 0.5*s.NeuroplasticityRecovery)
	} else {
		s.CognitiveDeclineRisk -= DeclineRecovery * s.NeuroplasticityRecovery
	}
	s.CognitiveDeclineRisk = clamp01(s.CognitiveDeclineRisk)

	s.CognitiveImpact = clamp01(s.CognitiveImpact + ImpactSmoothing*(s.CognitiveDeclineRisk-s.CognitiveImpact))
}
