package policy

import (
	opensimplex "github.com/ojrac/opensimplex-go"
)

// StressDrift modulates the configured life-stress level with smooth noise over
// simulated years.
type StressDrift struct {
	noise     opensimplex.Noise
	Amplitude float64 // max deviation from the configured level
	Frequency float64 // noise cycles per simulated year
}

// NewStressDrift creates a drift generator. A non-positive amplitude returns nil.
func NewStressDrift(seed int64, amplitude float64) *StressDrift {
	if amplitude <= 0 {
		return nil
	}
	return &StressDrift{
		noise:     opensimplex.NewNormalized(seed),
		Amplitude: amplitude,
		Frequency: 0.15,
	}
}

// Level returns the effective stress at the given simulated year. A nil drift
// returns base unchanged.
func (d *StressDrift) Level(base, simYears float64) float64 {
	if d == nil {
		return base
	}
	// NewNormalized yields [0, 1]; recentre to [-1, 1].
	n := d.noise.Eval2(simYears*d.Frequency, 0)*2 - 1
	return clamp(base+d.Amplitude*n, 0, 1)
}
