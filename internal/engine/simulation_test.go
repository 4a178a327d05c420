package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/talgya/smokersim/internal/entropy"
	"github.com/talgya/smokersim/internal/health"
	"github.com/talgya/smokersim/internal/policy"
)

func newRunning(t *testing.T, age, cpd float64, in policy.Inputs, rnd entropy.Source) *Simulation {
	t.Helper()
	s := NewSimulation(age, cpd, in, rnd)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return s
}

func TestInitialSnapshotUsesInputs(t *testing.T) {
	s := NewSimulation(math.NaN(), -1, policy.DefaultInputs(), entropy.Fixed(0.5))
	snap := s.Snapshot()
	if snap.Phase != PhaseIdle || snap.Age != health.DefaultAge || snap.CigarettesPerDay != 0 {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
	if snap.LifeExpectancy != health.BaseLifeExpectancy || snap.BloodPressure != 1 {
		t.Fatalf("derived metrics not computed: %+v", snap)
	}
}

func TestTickNoopUnlessRunning(t *testing.T) {
	s := NewSimulation(30, 10, policy.DefaultInputs(), entropy.Fixed(0.5))
	before := s.Snapshot()
	if s.Tick() {
		t.Fatal("idle tick applied")
	}
	if s.Snapshot() != before {
		t.Fatal("idle tick changed state")
	}

	s.Start()
	s.Tick()
	s.Pause()
	paused := s.Snapshot()
	if s.Tick() || s.Snapshot() != paused {
		t.Fatal("paused tick applied")
	}
	if paused.Phase != PhasePaused || paused.Tick != 1 {
		t.Fatalf("unexpected paused snapshot: %+v", paused)
	}
}

func TestBoundsHoldEveryTick(t *testing.T) {
	scenarios := []struct {
		name string
		age  float64
		cpd  float64
		mod  func(*policy.Inputs)
	}{
		{"heavy smoker", 30, 20, nil},
		{"teen with smoking family", 15, 0, func(in *policy.Inputs) { in.FamilyInfluence = true; in.SocialInfluence = 0.4 }},
		{"stressed middle age", 45, 10, func(in *policy.Inputs) { in.LifeStress = 1; in.SugarRecommendation = 1 }},
		{"taxed and banned", 25, 15, func(in *policy.Inputs) { in.TaxRate = 0.5; in.PublicSmokingBan = true }},
		{"retiree", 70, 14, func(in *policy.Inputs) { in.RetirementAge = 60 }},
	}

	for _, sc := range scenarios {
		for seed := int64(1); seed <= 5; seed++ {
			in := policy.DefaultInputs()
			if sc.mod != nil {
				sc.mod(&in)
			}
			s := newRunning(t, sc.age, sc.cpd, in, entropy.NewSeeded(seed))
			for i := 0; i < 800 && s.Tick(); i++ {
				snap := s.Snapshot()
				if snap.CigarettesPerDay < 0 || snap.CigarettesPerDay > health.MaxForAge(snap.Age) {
					t.Fatalf("%s/%d tick %d: cigarettes %v outside [0,%v]", sc.name, seed, snap.Tick, snap.CigarettesPerDay, health.MaxForAge(snap.Age))
				}
				if snap.TarAccumulation < 0 || snap.TarAccumulation > 100 || snap.LungCapacity < 0 || snap.LungCapacity > 100 {
					t.Fatalf("%s/%d tick %d: lungs tar=%v capacity=%v", sc.name, seed, snap.Tick, snap.TarAccumulation, snap.LungCapacity)
				}
				for _, r := range []float64{snap.HeartAttackRisk, snap.StrokeRisk, snap.CancerRisk} {
					if r < 0 || r > 1 {
						t.Fatalf("%s/%d tick %d: risk %v", sc.name, seed, snap.Tick, r)
					}
				}
				st := s.State()
				for _, v := range []float64{st.AddictionFactor, st.WithdrawalSeverity, st.NeuroplasticityRecovery, st.CognitiveDeclineRisk, st.CognitiveImpact} {
					if v < 0 || v > 1 {
						t.Fatalf("%s/%d tick %d: accumulator %v outside [0,1]", sc.name, seed, snap.Tick, v)
					}
				}
				if snap.LifeExpectancy < snap.Age && snap.Phase != PhaseEnded {
					t.Fatalf("%s/%d tick %d: life expectancy %v below age %v", sc.name, seed, snap.Tick, snap.LifeExpectancy, snap.Age)
				}
				if snap.BloodPressure < 1 || snap.HeartOxygenLevel < 70 || snap.HeartOxygenLevel > 100 {
					t.Fatalf("%s/%d tick %d: bp=%v oxygen=%v", sc.name, seed, snap.Tick, snap.BloodPressure, snap.HeartOxygenLevel)
				}
			}
		}
	}
}

func TestSnapshotIdempotent(t *testing.T) {
	s := newRunning(t, 30, 12, policy.DefaultInputs(), entropy.NewSeeded(3))
	for i := 0; i < 25; i++ {
		s.Tick()
	}
	if a, b := s.Snapshot(), s.Snapshot(); a != b {
		t.Fatalf("snapshots differ:\n%+v\n%+v", a, b)
	}
}

func TestResetReproducesInitialState(t *testing.T) {
	in := policy.DefaultInputs()
	in.SugarRecommendation = 0.8
	for _, ticks := range []int{0, 1, 37, 400} {
		s := newRunning(t, 32, 18, in, entropy.NewSeeded(int64(ticks)))
		s.SetPublicSmokingBan(true)
		for i := 0; i < ticks; i++ {
			s.Tick()
		}
		s.Reset()

		fresh := NewSimulation(32, 18, s.Inputs(), entropy.Fixed(0.5))
		if got, want := s.Snapshot(), fresh.Snapshot(); got != want {
			t.Fatalf("after %d ticks reset snapshot differs:\n got %+v\nwant %+v", ticks, got, want)
		}
	}
}

func TestResetUsesUpdatedInputs(t *testing.T) {
	s := newRunning(t, 30, 10, policy.DefaultInputs(), entropy.NewSeeded(9))
	for i := 0; i < 10; i++ {
		s.Tick()
	}
	s.UpdateInitialAge(45)
	s.UpdateInitialConsumption(5)
	if s.Snapshot().Tick != 10 {
		t.Fatal("updating inputs mid-run should not reinitialize")
	}
	s.Reset()
	want := NewSimulation(45, 5, s.Inputs(), nil).Snapshot()
	if got := s.Snapshot(); got != want {
		t.Fatalf("reset ignored updated inputs:\n got %+v\nwant %+v", got, want)
	}

	s.UpdateInitialAge(-10)
	if s.Snapshot().Age != health.DefaultAge {
		t.Fatalf("invalid age should fall back to %v, got %v", health.DefaultAge, s.Snapshot().Age)
	}
}

func TestNonSmokerStaysNonSmoker(t *testing.T) {
	s := newRunning(t, 25, 0, policy.DefaultInputs(), entropy.Crypto{})
	for i := 0; i < 50; i++ {
		s.Tick()
		snap := s.Snapshot()
		if snap.CigarettesPerDay != 0 {
			t.Fatalf("tick %d: non-smoker started smoking (%v/day)", snap.Tick, snap.CigarettesPerDay)
		}
		if snap.TarAccumulation != 0 {
			t.Fatalf("tick %d: tar %v without smoking", snap.Tick, snap.TarAccumulation)
		}
	}
}

func TestBloodPressureMatchesFormulaAfterOneTick(t *testing.T) {
	in := policy.DefaultInputs()
	in.SugarRecommendation = 0.7
	in.OilRecommendation = 6
	s := NewSimulation(30, 20, in, entropy.Fixed(0.5))

	idle := s.Snapshot()
	want := 1 + 20*0.1 + (0.7 - 0.5) + (6*0.1 - 0.5)
	if math.Abs(idle.BloodPressure-want) > 1e-9 {
		t.Fatalf("initial blood pressure = %v, want %v", idle.BloodPressure, want)
	}

	s.Start()
	s.Tick()
	snap := s.Snapshot()
	want = 1 + snap.CigarettesPerDay*0.1 + (0.7 - 0.5) + (6*0.1 - 0.5)
	if math.Abs(snap.BloodPressure-want) > 1e-9 {
		t.Fatalf("blood pressure = %v, want %v", snap.BloodPressure, want)
	}
}

func TestPublicSmokingBanStepsOnFiveYearBoundary(t *testing.T) {
	s := newRunning(t, 25, 0, policy.DefaultInputs(), entropy.Fixed(0.5))
	for i := 0; i < 49; i++ {
		s.Tick()
	}
	s.SetPublicSmokingBan(true)

	s.Tick() // tick 50 = 5 simulated years
	if got := s.Snapshot().PublicSmokingMultiplier; got != 0.93 {
		t.Fatalf("tick 50 multiplier = %v, want 0.93", got)
	}
	for i := 0; i < 49; i++ {
		s.Tick()
		if got := s.Snapshot().PublicSmokingMultiplier; got != 0.93 {
			t.Fatalf("tick %d multiplier = %v, want 0.93", s.Snapshot().Tick, got)
		}
	}
	s.Tick() // tick 100
	if got := s.Snapshot().PublicSmokingMultiplier; math.Abs(got-0.86) > 1e-9 {
		t.Fatalf("tick 100 multiplier = %v, want 0.86", got)
	}

	s.SetPublicSmokingBan(false)
	if got := s.Snapshot().PublicSmokingMultiplier; got != 1 {
		t.Fatalf("lifted ban multiplier = %v, want 1", got)
	}
}

func TestAdverseEventConstants(t *testing.T) {
	want := map[string][2]float64{
		CategoryHeartAttack: {0.5, 2},
		CategoryStroke:      {0.5, 2},
		CategoryCancer:      {0.95, 5},
	}
	if len(AdverseEvents) != len(want) {
		t.Fatalf("got %d adverse events", len(AdverseEvents))
	}
	for _, ev := range AdverseEvents {
		w := want[ev.Category]
		if ev.SurvivalChance != w[0] || ev.PenaltyYears != w[1] {
			t.Errorf("%s: survival=%v penalty=%v, want %v", ev.Category, ev.SurvivalChance, ev.PenaltyYears, w)
		}
	}
	if AdverseEvents[0].Fires(0.7, entropy.Fixed(0)) {
		t.Error("risk at threshold must not fire")
	}
	if !AdverseEvents[0].Fires(0.95, entropy.Fixed(0)) {
		t.Error("risk 0.95 with zero draw must fire")
	}
	if AdverseEvents[0].Fires(0.95, entropy.Fixed(0.02)) {
		t.Error("draw at risk/50 must not fire")
	}
}

func forceRisks(s *Simulation, heart, stroke, cancer float64) {
	s.state.HeartAttackRisk = heart
	s.state.StrokeRisk = stroke
	s.state.CancerRisk = cancer
}

func TestForcedHeartAttackFiresEveryTickAndSurvives(t *testing.T) {
	s := newRunning(t, 30, 20, policy.DefaultInputs(), entropy.Fixed(0))
	s.DrainEvents()

	for i := 1; i <= 3; i++ {
		forceRisks(s, 0.95, 0, 0)
		if died := s.resolveAdverseEvents(); died {
			t.Fatal("zero survival draw should survive")
		}
		if got := s.state.EventPenaltyYears; got != float64(2*i) {
			t.Fatalf("round %d: penalty = %v, want %v", i, got, 2*i)
		}
	}
	if s.state.CigarettesPerDay != PostScareCigarettes {
		t.Fatalf("behavior change should cut to 1/day, got %v", s.state.CigarettesPerDay)
	}
	if s.Phase() != PhaseRunning {
		t.Fatalf("survivor should keep running, phase %v", s.Phase())
	}

	var attacks int
	for _, e := range s.DrainEvents() {
		if e.Category == CategoryHeartAttack {
			attacks++
			if e.Meta["fatal"] != false {
				t.Fatalf("survived event marked fatal: %+v", e)
			}
		}
	}
	if attacks != 3 {
		t.Fatalf("heart attack events = %d, want 3", attacks)
	}
}

func TestFatalEventEndsRun(t *testing.T) {
	cases := []struct {
		name    string
		risks   [3]float64
		draws   []float64
		outcome Outcome
	}{
		{"heart attack", [3]float64{0.95, 0, 0}, []float64{0, 0.5}, OutcomeFatalHeartAttack},
		{"stroke", [3]float64{0, 0.9, 0}, []float64{0, 0.75}, OutcomeFatalStroke},
		{"cancer", [3]float64{0, 0, 0.8}, []float64{0, 0.95}, OutcomeFatalCancer},
	}
	for _, c := range cases {
		s := newRunning(t, 30, 20, policy.DefaultInputs(), entropy.NewSequence(c.draws...))
		forceRisks(s, c.risks[0], c.risks[1], c.risks[2])
		if !s.resolveAdverseEvents() {
			t.Fatalf("%s: expected death", c.name)
		}
		if s.Phase() != PhaseEnded || s.Outcome() != c.outcome {
			t.Fatalf("%s: phase=%v outcome=%v", c.name, s.Phase(), s.Outcome())
		}
		if err := s.Start(); !errors.Is(err, ErrEnded) {
			t.Fatalf("%s: Start after death = %v, want ErrEnded", c.name, err)
		}
	}
}

func TestSurvivedCancerWithoutBehaviorChange(t *testing.T) {
	s := newRunning(t, 30, 12, policy.DefaultInputs(), entropy.NewSequence(0, 0.94, 0.9))
	forceRisks(s, 0, 0, 0.8)
	if s.resolveAdverseEvents() {
		t.Fatal("0.94 < 0.95 should survive cancer")
	}
	if s.state.EventPenaltyYears != 5 {
		t.Fatalf("penalty = %v, want 5", s.state.EventPenaltyYears)
	}
	if s.state.CigarettesPerDay != 12 {
		t.Fatalf("0.9 draw should not force behavior change, cpd=%v", s.state.CigarettesPerDay)
	}
}

func TestNaturalEndThenTicksAreNoops(t *testing.T) {
	s := newRunning(t, 80, 0, policy.DefaultInputs(), entropy.Fixed(0.5))
	for i := 0; i < 40 && s.Phase() == PhaseRunning; i++ {
		s.Tick()
	}
	snap := s.Snapshot()
	if snap.Phase != PhaseEnded || snap.Outcome != OutcomeLifeExpectancy {
		t.Fatalf("expected natural end, got %+v", snap)
	}
	if snap.Age < snap.LifeExpectancy {
		t.Fatalf("ended early: age %v < life expectancy %v", snap.Age, snap.LifeExpectancy)
	}
	if snap.YearsLost != 0 {
		t.Fatalf("non-smoker lost %v years", snap.YearsLost)
	}

	for i := 0; i < 5; i++ {
		if s.Tick() {
			t.Fatal("tick applied after end")
		}
	}
	if s.Snapshot() != snap {
		t.Fatal("state changed after end")
	}
	if err := s.Start(); !errors.Is(err, ErrEnded) {
		t.Fatalf("Start after end = %v, want ErrEnded", err)
	}

	s.Reset()
	if s.Phase() != PhaseIdle {
		t.Fatalf("reset phase = %v", s.Phase())
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start after reset: %v", err)
	}
}

func TestEventLogBounded(t *testing.T) {
	s := NewSimulation(30, 0, policy.DefaultInputs(), entropy.Fixed(0.5))
	for i := 0; i < maxEvents+50; i++ {
		s.Start()
		s.Pause()
	}
	if n := len(s.Events()); n != maxEvents {
		t.Fatalf("event log length = %d, want %d", n, maxEvents)
	}
	pending := s.DrainEvents()
	if n := len(pending); n != maxEvents {
		t.Fatalf("pending events = %d, want %d", n, maxEvents)
	}
	if last := pending[len(pending)-1]; last.Description != "Simulation paused" {
		t.Fatalf("newest pending event = %q", last.Description)
	}
	if len(s.DrainEvents()) != 0 {
		t.Fatal("drain should empty pending events")
	}
}

func TestStressDriftChangesTrajectory(t *testing.T) {
	in := policy.DefaultInputs()
	plain := newRunning(t, 30, 10, in, entropy.Fixed(0.5))
	drifted := newRunning(t, 30, 10, in, entropy.Fixed(0.5))
	drifted.SetStressDrift(policy.NewStressDrift(11, 0.3))

	for i := 0; i < 20; i++ {
		plain.Tick()
		drifted.Tick()
	}
	if plain.Snapshot().CigarettesPerDay == drifted.Snapshot().CigarettesPerDay {
		t.Fatal("stress drift had no effect on consumption")
	}
}

func TestPhaseText(t *testing.T) {
	b, _ := PhaseRunning.MarshalText()
	if string(b) != "running" {
		t.Fatalf("MarshalText = %q", b)
	}
	if Phase(9).String() != "phase(9)" {
		t.Fatalf("unknown phase = %q", Phase(9).String())
	}
}
