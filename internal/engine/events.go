package engine

import (
	"fmt"

	"github.com/talgya/smokersim/internal/entropy"
	"github.com/talgya/smokersim/internal/health"
)

// Event categories.
const (
	CategoryControl     = "control"
	CategoryHeartAttack = "heart_attack"
	CategoryStroke      = "stroke"
	CategoryCancer      = "cancer"
	CategoryBehavior    = "behavior"
	CategoryDeath       = "death"
	CategoryEnd         = "end"
)

// maxEvents bounds the in-memory event log.
const maxEvents = 200

// Event is a notable occurrence during a run.
type Event struct {
	Tick        uint64         `json:"tick" db:"tick"`
	Age         float64        `json:"age" db:"age"`
	Description string         `json:"description" db:"description"`
	Category    string         `json:"category" db:"category"`
	Meta        map[string]any `json:"meta,omitempty" db:"-"`
}

// Adverse-event constants.
const (
	AdverseRiskThreshold = 0.7  // events are only possible above this risk
	AdverseRiskDivisor   = 50.0 // per-tick firing chance is risk/50
	BehaviorChangeChance = 0.7  // chance a survivor cuts down to one a day
	PostScareCigarettes  = 1.0
)

// AdverseEvent describes one kind of stochastic health incident.
type AdverseEvent struct {
	Category       string
	Name           string
	SurvivalChance float64
	PenaltyYears   float64
	Outcome        Outcome
	risk           func(*health.State) float64
}

// AdverseEvents are checked in this order every tick.
var AdverseEvents = []AdverseEvent{
	{
		Category: CategoryHeartAttack, Name: "heart attack",
		SurvivalChance: 0.5, PenaltyYears: 2, Outcome: OutcomeFatalHeartAttack,
		risk: func(s *health.State) float64 { return s.HeartAttackRisk },
	},
	{
		Category: CategoryStroke, Name: "stroke",
		SurvivalChance: 0.5, PenaltyYears: 2, Outcome: OutcomeFatalStroke,
		risk: func(s *health.State) float64 { return s.StrokeRisk },
	},
	{
		Category: CategoryCancer, Name: "cancer diagnosis",
		SurvivalChance: 0.95, PenaltyYears: 5, Outcome: OutcomeFatalCancer,
		risk: func(s *health.State) float64 { return s.CancerRisk },
	},
}

// Fires draws whether the event strikes at the given risk. No draw is taken at or
// below the threshold.
func (a AdverseEvent) Fires(risk float64, rnd entropy.Source) bool {
	if risk <= AdverseRiskThreshold {
		return false
	}
	return entropy.Chance(rnd, risk/AdverseRiskDivisor)
}

// resolveAdverseEvents runs the per-tick event check. Returns true if the subject died.
func (s *Simulation) resolveAdverseEvents() bool {
	st := s.state
	for _, ev := range AdverseEvents {
		risk := ev.risk(st)
		if !ev.Fires(risk, s.rnd) {
			continue
		}

		if !entropy.Chance(s.rnd, ev.SurvivalChance) {
			s.emit(ev.Category, fmt.Sprintf("Fatal %s at age %.1f", ev.Name, st.AgeYears), map[string]any{
				"risk":  risk,
				"fatal": true,
			})
			s.end(ev.Outcome)
			return true
		}

		st.EventPenaltyYears += ev.PenaltyYears
		health.ApplyLifeExpectancy(st)
		s.emit(ev.Category, fmt.Sprintf("Survived %s at age %.1f (-%.0f years)", ev.Name, st.AgeYears, ev.PenaltyYears), map[string]any{
			"risk":          risk,
			"fatal":         false,
			"penalty_years": ev.PenaltyYears,
		})

		if entropy.Chance(s.rnd, BehaviorChangeChance) && st.CigarettesPerDay > PostScareCigarettes {
			st.CigarettesPerDay = PostScareCigarettes
			s.emit(CategoryBehavior, fmt.Sprintf("Cut down to %.0f a day after the %s", PostScareCigarettes, ev.Name), nil)
		}
	}
	return false
}
