package persistence

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/smokersim/internal/engine"
	"github.com/talgya/smokersim/internal/entropy"
	"github.com/talgya/smokersim/internal/policy"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(DialectSQLite, filepath.Join(t.TempDir(), "journal", "runs.sqlite"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if db.Dialect() != DialectSQLite {
		t.Fatalf("dialect = %q", db.Dialect())
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fakeClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func runToEnd(t *testing.T, e *engine.Engine) {
	t.Helper()
	e.Update(func(s *engine.Simulation) {
		if err := s.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
	})
	for i := 0; i < 1000 && e.Step(); i++ {
	}
	if e.Snapshot().Phase != engine.PhaseEnded {
		t.Fatalf("run did not end: %+v", e.Snapshot())
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	if _, err := Open(DialectSQLite, ""); !errors.Is(err, ErrMissingDSN) {
		t.Fatalf("empty path: %v", err)
	}
	if _, err := Open(Dialect("bogus"), "x"); err == nil {
		t.Fatal("expected unsupported dialect error")
	}
}

func TestJournalRoundTrip(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	j.now = fakeClock()

	e := engine.NewEngine(engine.NewSimulation(81, 0, policy.DefaultInputs(), entropy.Fixed(0.5)))
	e.AddObserver(j)
	runToEnd(t, e)
	final := e.Snapshot()

	run, err := db.Run(e.RunID())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.Outcome != string(engine.OutcomeLifeExpectancy) || run.EndedAt == nil {
		t.Fatalf("run not finished: %+v", run)
	}
	if run.InitialAge != 81 || run.InitialCigarettes != 0 {
		t.Fatalf("initial inputs = %v/%v", run.InitialAge, run.InitialCigarettes)
	}
	if run.Ticks != final.Tick || run.FinalAge != final.Age || run.LifeExpectancy != final.LifeExpectancy {
		t.Fatalf("summary %+v does not match final snapshot %+v", run, final)
	}

	samples, err := db.RunSamples(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(samples) == 0 || samples[0].Tick != SampleEvery {
		t.Fatalf("samples = %+v", samples)
	}
	for _, s := range samples {
		if s.Tick%SampleEvery != 0 {
			t.Fatalf("off-cadence sample at tick %d", s.Tick)
		}
	}

	events, err := db.RunEvents(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) < 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Category != engine.CategoryControl || events[len(events)-1].Category != engine.CategoryEnd {
		t.Fatalf("event order: first %q last %q", events[0].Category, events[len(events)-1].Category)
	}

	last, err := db.GetMeta("last_run_id")
	if err != nil || last != run.ID {
		t.Fatalf("last_run_id = %q, %v", last, err)
	}
}

func TestJournalSkipsIdleRuns(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	e := engine.NewEngine(engine.NewSimulation(30, 5, policy.DefaultInputs(), entropy.Fixed(0.5)))
	e.AddObserver(j)

	e.Update(func(s *engine.Simulation) { s.SetTaxRate(0.2) })
	e.Reset()

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Fatalf("idle runs journaled: %+v", runs)
	}
}

func TestJournalClosesResetRun(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	j.now = fakeClock()

	e := engine.NewEngine(engine.NewSimulation(30, 0, policy.DefaultInputs(), entropy.Fixed(0.5)))
	e.AddObserver(j)
	e.Update(func(s *engine.Simulation) {
		if err := s.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
	})
	for i := 0; i < 25; i++ {
		e.Step()
	}
	before := e.Snapshot()
	oldID := e.RunID()
	e.Reset()

	run, err := db.Run(oldID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if run.EndedAt == nil || run.Outcome != OutcomeReset {
		t.Fatalf("reset run left open: ended_at=%v outcome=%q", run.EndedAt, run.Outcome)
	}
	if run.Ticks != 25 || run.FinalAge != before.Age || run.LifeExpectancy != before.LifeExpectancy {
		t.Fatalf("summary %+v does not match last snapshot %+v", run, before)
	}

	// The fresh run stays unjournaled until it starts, and the closed row is not touched again.
	e.Update(func(s *engine.Simulation) { s.SetTaxRate(0.1) })
	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != oldID || runs[0].Ticks != 25 {
		t.Fatalf("runs after reset = %+v", runs)
	}
}

func TestRecentRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	j := NewJournal(db)
	j.now = fakeClock()

	e := engine.NewEngine(engine.NewSimulation(82, 0, policy.DefaultInputs(), entropy.Fixed(0.5)))
	e.AddObserver(j)

	var ids []string
	for i := 0; i < 3; i++ {
		runToEnd(t, e)
		ids = append(ids, e.RunID())
		e.Reset()
	}

	runs, err := db.RecentRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("recent runs = %+v, ids %v", runs, ids)
	}

	if _, err := db.Run("missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("missing run: %v", err)
	}
}

func TestMetaUpsert(t *testing.T) {
	db := openTestDB(t)
	if err := db.SaveMeta("k", "one"); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveMeta("k", "two"); err != nil {
		t.Fatal(err)
	}
	if v, err := db.GetMeta("k"); err != nil || v != "two" {
		t.Fatalf("GetMeta = %q, %v", v, err)
	}
}
