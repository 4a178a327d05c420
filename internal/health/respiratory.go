package health

import (
	"math"

	"github.com/talgya/smokersim/internal/entropy"
)

// Respiratory constants.
const (
	ParticleSpawnChance = 0.1
	ParticleSpeed       = 0.03 // progress per tick
	SmokeTarPerStick    = 0.05 // tar per arriving smoke particle, per cigarette/day
	ClearanceThreshold  = 3.0  // below this many per day, lungs self-clean
	ClearanceRate       = 0.05 // tar removed per tick while clearing
	LungDamageCoeff     = 1.0  // capacity lost per unit of tar
	MaxTar              = 100.0
)

// AirParticle is one breath moving down the airway. Progress runs 0 → 1.
type AirParticle struct {
	Progress float64 `json:"progress"`
	Smoke    bool    `json:"smoke"`
}

// LungHealth is the respiratory subset used by lung rendering.
type LungHealth struct {
	Capacity        float64 `json:"capacity"`
	TarAccumulation float64 `json:"tar_accumulation"`
	Damage          float64 `json:"damage"`
}

// Lungs returns the current respiratory readings.
func (s *State) Lungs() LungHealth {
	return LungHealth{
		Capacity:        s.LungCapacity,
		TarAccumulation: s.TarAccumulation,
		Damage:          s.LungDamage,
	}
}

// Respire runs one respiratory step: spawn, advance and deposit particles, then
// apply natural clearance and recompute capacity. Nothing changes while not running.
func Respire(s *State, running bool, rnd entropy.Source) LungHealth {
	if !running {
		return s.Lungs()
	}

	cpd := s.CigarettesPerDay
	if entropy.Chance(rnd, ParticleSpawnChance) {
		smoke := entropy.Chance(rnd, cpd/10)
		s.AirParticles = append(s.AirParticles, AirParticle{Smoke: smoke})
	}

	kept := s.AirParticles[:0]
	for _, p := range s.AirParticles {
		p.Progress += ParticleSpeed
		if p.Progress >= 1 {
			if p.Smoke {
				s.TarAccumulation += SmokeTarPerStick * cpd
			}
			continue
		}
		kept = append(kept, p)
	}
	s.AirParticles = kept

	if cpd < ClearanceThreshold {
		s.TarAccumulation = math.Max(0, s.TarAccumulation-ClearanceRate)
	}
	s.TarAccumulation = clamp(s.TarAccumulation, 0, MaxTar)
	s.LungCapacity = clamp(100-s.TarAccumulation*LungDamageCoeff, 0, 100)
	s.LungDamage = math.Min(100, s.TarAccumulation*0.8)

	return s.Lungs()
}
