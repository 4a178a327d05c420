package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/talgya/smokersim/internal/entropy"
	"github.com/talgya/smokersim/internal/health"
	"github.com/talgya/smokersim/internal/policy"
)

// ErrEnded is returned when starting a run that has already ended.
var ErrEnded = errors.New("simulation ended; reset required")

// Phase is the run state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhasePaused
	PhaseEnded
)

var phaseNames = [...]string{"idle", "running", "paused", "ended"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("phase(%d)", p)
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Outcome records why a run ended.
type Outcome string

const (
	OutcomeNone             Outcome = ""
	OutcomeLifeExpectancy   Outcome = "life_expectancy"
	OutcomeFatalHeartAttack Outcome = "fatal_heart_attack"
	OutcomeFatalStroke      Outcome = "fatal_stroke"
	OutcomeFatalCancer      Outcome = "fatal_cancer"
)

// Snapshot is the read-only view of a run exposed after every tick.
type Snapshot struct {
	Phase                   Phase   `json:"phase"`
	Outcome                 Outcome `json:"outcome,omitempty"`
	Tick                    uint64  `json:"tick"`
	Age                     float64 `json:"age"`
	SimulationYears         float64 `json:"simulation_years"`
	CigarettesPerDay        float64 `json:"cigarettes_per_day"`
	BloodPressure           float64 `json:"blood_pressure"`
	HeartOxygenLevel        float64 `json:"heart_oxygen_level"`
	HeartStress             float64 `json:"heart_stress"`
	HeartAttackRisk         float64 `json:"heart_attack_risk"`
	StrokeRisk              float64 `json:"stroke_risk"`
	CancerRisk              float64 `json:"cancer_risk"`
	LungCapacity            float64 `json:"lung_capacity"`
	TarAccumulation         float64 `json:"tar_accumulation"`
	LifeExpectancy          float64 `json:"life_expectancy"`
	YearsLost               float64 `json:"years_lost"`
	CognitiveImpact         float64 `json:"cognitive_impact"`
	AddictionFactor         float64 `json:"addiction_factor"`
	WithdrawalSeverity      float64 `json:"withdrawal_severity"`
	PublicSmokingMultiplier float64 `json:"public_smoking_multiplier"`
}

// Simulation owns one subject's run: the Idle → Running ⇄ Paused → Ended state
// machine and the per-tick update order. It is not safe for concurrent use;
// Engine serializes access to it.
type Simulation struct {
	state  *health.State
	inputs policy.Inputs
	mods   policy.Modifiers
	rnd    entropy.Source
	drift  *policy.StressDrift

	phase   Phase
	outcome Outcome

	// UI-supplied starting values, applied on reset.
	initialAge        float64
	initialCigarettes float64

	events  []Event
	pending []Event
}

// NewSimulation creates an idle run. A nil source uses crypto/rand.
func NewSimulation(age, cigarettes float64, in policy.Inputs, rnd entropy.Source) *Simulation {
	if rnd == nil {
		rnd = entropy.Crypto{}
	}
	s := &Simulation{
		inputs:            in,
		rnd:               rnd,
		initialAge:        health.SanitizeAge(age),
		initialCigarettes: health.SanitizeCigarettes(cigarettes),
	}
	s.reinit()
	return s
}

// reinit rebuilds the subject from the initial inputs and derives its metrics.
func (s *Simulation) reinit() {
	s.state = health.NewState(s.initialAge, s.initialCigarettes)
	s.mods = policy.NewModifiers()
	s.phase = PhaseIdle
	s.outcome = OutcomeNone
	s.events = nil
	s.pending = nil
	s.derive()
}

func (s *Simulation) derive() {
	health.ApplyRisks(s.state, health.DeriveRisks(s.state, s.inputs))
	health.ApplyLifeExpectancy(s.state)
}

// SetStressDrift installs an optional life-stress modulator.
func (s *Simulation) SetStressDrift(d *policy.StressDrift) {
	s.drift = d
}

// Phase returns the current run state.
func (s *Simulation) Phase() Phase { return s.phase }

// Outcome returns why the run ended, if it has.
func (s *Simulation) Outcome() Outcome { return s.outcome }

// Running reports whether ticks are being applied.
func (s *Simulation) Running() bool { return s.phase == PhaseRunning }

// Start moves Idle or Paused into Running.
func (s *Simulation) Start() error {
	switch s.phase {
	case PhaseEnded:
		return ErrEnded
	case PhaseRunning:
		return nil
	}
	s.phase = PhaseRunning
	s.emit(CategoryControl, "Simulation started", map[string]any{
		"cigarettes_per_day": s.state.CigarettesPerDay,
	})
	return nil
}

// Pause suspends a running simulation. Other phases are left alone.
func (s *Simulation) Pause() {
	if s.phase != PhaseRunning {
		return
	}
	s.phase = PhasePaused
	s.emit(CategoryControl, "Simulation paused", nil)
}

// Reset returns to Idle with a fresh subject built from the current inputs.
func (s *Simulation) Reset() {
	s.reinit()
	s.emit(CategoryControl, "Simulation reset", nil)
}

// Tick advances the run one step. It is a no-op unless Running and reports
// whether a step was applied.
func (s *Simulation) Tick() bool {
	if s.phase != PhaseRunning {
		return false
	}
	st := s.state

	st.Advance()
	s.mods.Advance(s.inputs, st.Ticks, health.TicksPerYear)

	stress := s.drift.Level(s.inputs.LifeStress, st.SimulationYears)
	previous := st.CigarettesPerDay
	next := health.NextCigarettes(st, s.inputs, stress, s.mods.Factors(s.inputs), s.rnd)
	health.ApplyConsumption(st, next)
	health.UpdateNeuro(st, previous)

	health.Respire(st, true, s.rnd)
	s.derive()

	if s.resolveAdverseEvents() {
		return true
	}

	if st.AgeYears >= st.LifeExpectancyYears {
		s.emit(CategoryEnd, fmt.Sprintf("Reached end of life expectancy at age %.1f", st.AgeYears), map[string]any{
			"final_age":  st.AgeYears,
			"years_lost": st.YearsLost(),
		})
		s.end(OutcomeLifeExpectancy)
	}
	return true
}

func (s *Simulation) end(o Outcome) {
	s.phase = PhaseEnded
	s.outcome = o
	slog.Info("simulation ended",
		"outcome", string(o),
		"age", fmt.Sprintf("%.1f", s.state.AgeYears),
		"years_lost", fmt.Sprintf("%.1f", s.state.YearsLost()),
		"tick", s.state.Ticks,
	)
	if o != OutcomeLifeExpectancy {
		s.emit(CategoryDeath, fmt.Sprintf("Died at age %.1f", s.state.AgeYears), map[string]any{
			"outcome": string(o),
		})
	}
}

func (s *Simulation) emit(category, desc string, meta map[string]any) {
	e := Event{
		Tick:        s.state.Ticks,
		Age:         s.state.AgeYears,
		Description: desc,
		Category:    category,
		Meta:        meta,
	}
	s.events = append(s.events, e)
	if len(s.events) > maxEvents {
		s.events = s.events[len(s.events)-maxEvents:]
	}
	s.pending = append(s.pending, e)
	if len(s.pending) > maxEvents {
		s.pending = s.pending[len(s.pending)-maxEvents:]
	}
}

// DrainEvents returns events emitted since the last drain, at most maxEvents of
// the newest.
func (s *Simulation) DrainEvents() []Event {
	out := s.pending
	s.pending = nil
	return out
}

// Events returns a copy of the recent event log.
func (s *Simulation) Events() []Event {
	return append([]Event(nil), s.events...)
}

// Snapshot returns the read-only view of the current state.
func (s *Simulation) Snapshot() Snapshot {
	st := s.state
	return Snapshot{
		Phase:                   s.phase,
		Outcome:                 s.outcome,
		Tick:                    st.Ticks,
		Age:                     st.AgeYears,
		SimulationYears:         st.SimulationYears,
		CigarettesPerDay:        st.CigarettesPerDay,
		BloodPressure:           st.BloodPressureFactor,
		HeartOxygenLevel:        st.HeartOxygenLevel,
		HeartStress:             st.HeartStress,
		HeartAttackRisk:         st.HeartAttackRisk,
		StrokeRisk:              st.StrokeRisk,
		CancerRisk:              st.CancerRisk,
		LungCapacity:            st.LungCapacity,
		TarAccumulation:         st.TarAccumulation,
		LifeExpectancy:          st.LifeExpectancyYears,
		YearsLost:               st.YearsLost(),
		CognitiveImpact:         st.CognitiveImpact,
		AddictionFactor:         st.AddictionFactor,
		WithdrawalSeverity:      st.WithdrawalSeverity,
		PublicSmokingMultiplier: s.mods.PublicSmokingMultiplier,
	}
}

// LungHealth returns the respiratory readings.
func (s *Simulation) LungHealth() health.LungHealth {
	return s.state.Lungs()
}

// State returns a deep copy of the subject.
func (s *Simulation) State() *health.State {
	return s.state.Clone()
}

// Inputs returns the current policy inputs.
func (s *Simulation) Inputs() policy.Inputs {
	return s.inputs
}

// InitialAge returns the age a reset will start from.
func (s *Simulation) InitialAge() float64 { return s.initialAge }

// InitialCigarettes returns the consumption a reset will start from.
func (s *Simulation) InitialCigarettes() float64 { return s.initialCigarettes }

// UpdateInitialAge records a new starting age (invalid → 25). An idle run is
// rebuilt immediately; otherwise the value applies on the next reset.
func (s *Simulation) UpdateInitialAge(v float64) {
	s.initialAge = health.SanitizeAge(v)
	if s.phase == PhaseIdle {
		s.reinit()
	}
}

// UpdateInitialConsumption records a new starting consumption (invalid → 0).
func (s *Simulation) UpdateInitialConsumption(v float64) {
	s.initialCigarettes = health.SanitizeCigarettes(v)
	if s.phase == PhaseIdle {
		s.reinit()
	}
}

// SetFamilyInfluence toggles a smoking family.
func (s *Simulation) SetFamilyInfluence(v bool) { s.inputs.FamilyInfluence = v }

// SetSocialInfluence sets peer influence (-0.2 .. 0.4).
func (s *Simulation) SetSocialInfluence(v float64) { s.inputs.SetSocialInfluence(v) }

// SetSmokerFriends applies the smoker-friends checkbox using the shared source.
func (s *Simulation) SetSmokerFriends(v bool) { s.inputs.SetSmokerFriends(v, s.rnd) }

// SetLifeStress sets the life-stress level (0 .. 1).
func (s *Simulation) SetLifeStress(v float64) { s.inputs.SetLifeStress(v) }

// SetTaxRate sets the tobacco tax fraction.
func (s *Simulation) SetTaxRate(v float64) { s.inputs.SetTaxRate(v) }

// SetPublicSmokingBan toggles the ban. Lifting it resets the ban multiplier.
func (s *Simulation) SetPublicSmokingBan(v bool) {
	s.inputs.PublicSmokingBan = v
	if !v {
		s.mods.LiftBan()
	}
}

// SetMinSmokingAge sets the legal age (invalid → 21).
func (s *Simulation) SetMinSmokingAge(v float64) { s.inputs.SetMinSmokingAge(v) }

// SetRetirementAge sets the retirement age (invalid → 63).
func (s *Simulation) SetRetirementAge(v float64) { s.inputs.SetRetirementAge(v) }

// SetSugarRecommendation sets the sugar guideline.
func (s *Simulation) SetSugarRecommendation(v float64) {
	s.inputs.SetSugarRecommendation(v)
	s.rederiveIdle()
}

// SetOilRecommendation sets the oil guideline.
func (s *Simulation) SetOilRecommendation(v float64) {
	s.inputs.SetOilRecommendation(v)
	s.rederiveIdle()
}

// rederiveIdle refreshes derived metrics so an idle snapshot reflects new diet inputs.
func (s *Simulation) rederiveIdle() {
	if s.phase == PhaseIdle {
		s.derive()
	}
}
