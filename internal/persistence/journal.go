package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/talgya/smokersim/internal/engine"
)

// SampleEvery is the tick spacing of journaled samples (one simulated year).
const SampleEvery = 10

// OutcomeReset marks a run that was reset before it ended.
const OutcomeReset = "reset"

// ErrRunNotFound is returned for an unknown run ID.
var ErrRunNotFound = errors.New("persistence: run not found")

// Run is one journaled simulation run.
type Run struct {
	ID                string  `db:"id" json:"id"`
	StartedAt         string  `db:"started_at" json:"started_at"`
	EndedAt           *string `db:"ended_at" json:"ended_at,omitempty"`
	InitialAge        float64 `db:"initial_age" json:"initial_age"`
	InitialCigarettes float64 `db:"initial_cigarettes" json:"initial_cigarettes"`
	Outcome           string  `db:"outcome" json:"outcome,omitempty"`
	FinalAge          float64 `db:"final_age" json:"final_age"`
	LifeExpectancy    float64 `db:"life_expectancy" json:"life_expectancy"`
	YearsLost         float64 `db:"years_lost" json:"years_lost"`
	Ticks             uint64  `db:"ticks" json:"ticks"`
}

// Sample is a yearly journal point.
type Sample struct {
	Tick             uint64  `db:"tick" json:"tick"`
	Age              float64 `db:"age" json:"age"`
	CigarettesPerDay float64 `db:"cigarettes_per_day" json:"cigarettes_per_day"`
	LifeExpectancy   float64 `db:"life_expectancy" json:"life_expectancy"`
	HeartAttackRisk  float64 `db:"heart_attack_risk" json:"heart_attack_risk"`
	StrokeRisk       float64 `db:"stroke_risk" json:"stroke_risk"`
	CancerRisk       float64 `db:"cancer_risk" json:"cancer_risk"`
	TarAccumulation  float64 `db:"tar_accumulation" json:"tar_accumulation"`
}

// Journal is an engine observer that records runs once they start.
type Journal struct {
	db  *DB
	now func() time.Time

	mu    sync.Mutex
	runID string // run with a row in runs
	seq   int64
	ended bool
	last  engine.Snapshot // latest snapshot seen for runID
}

// NewJournal returns a journal writing to db.
func NewJournal(db *DB) *Journal {
	return &Journal{db: db, now: time.Now}
}

// Observe writes the frame's events, a sample every SampleEvery ticks and the
// final summary. Runs that never leave Idle are not recorded. A run replaced
// before it ended is closed with OutcomeReset.
func (j *Journal) Observe(f engine.Frame) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	snap := f.Snapshot
	if f.RunID != j.runID {
		if err := j.closeAbandoned(); err != nil {
			return fmt.Errorf("close run %s: %w", j.runID, err)
		}
		if snap.Phase == engine.PhaseIdle {
			return nil
		}
		if err := j.beginRun(f); err != nil {
			return fmt.Errorf("begin run %s: %w", f.RunID, err)
		}
	}
	if j.ended {
		return nil
	}

	j.last = snap

	conn := j.db.conn
	tx, err := conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insertEvent := conn.Rebind(`INSERT INTO run_events
		(run_id, seq, tick, age, category, description, meta_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	for _, e := range f.Events {
		meta := ""
		if len(e.Meta) > 0 {
			b, _ := json.Marshal(e.Meta)
			meta = string(b)
		}
		j.seq++
		if _, err := tx.Exec(insertEvent, j.runID, j.seq, int64(e.Tick), e.Age, e.Category, e.Description, meta); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if snap.Tick > 0 && snap.Tick%SampleEvery == 0 {
		_, err := tx.Exec(conn.Rebind(`INSERT INTO run_samples
			(run_id, tick, age, cigarettes_per_day, life_expectancy,
			 heart_attack_risk, stroke_risk, cancer_risk, tar_accumulation)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (run_id, tick) DO NOTHING`),
			j.runID, int64(snap.Tick), snap.Age, snap.CigarettesPerDay, snap.LifeExpectancy,
			snap.HeartAttackRisk, snap.StrokeRisk, snap.CancerRisk, snap.TarAccumulation,
		)
		if err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if snap.Phase == engine.PhaseEnded {
		_, err := tx.Exec(conn.Rebind(`UPDATE runs SET
			ended_at = ?, outcome = ?, final_age = ?, life_expectancy = ?, years_lost = ?, ticks = ?
			WHERE id = ?`),
			j.stamp(), string(snap.Outcome), snap.Age, snap.LifeExpectancy, snap.YearsLost, int64(snap.Tick),
			j.runID,
		)
		if err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
		j.ended = true
	}

	return tx.Commit()
}

// closeAbandoned finishes the current run row from its last seen snapshot.
func (j *Journal) closeAbandoned() error {
	if j.runID == "" || j.ended {
		return nil
	}
	_, err := j.db.conn.Exec(j.db.conn.Rebind(`UPDATE runs SET
		ended_at = ?, outcome = ?, final_age = ?, life_expectancy = ?, years_lost = ?, ticks = ?
		WHERE id = ?`),
		j.stamp(), OutcomeReset, j.last.Age, j.last.LifeExpectancy, j.last.YearsLost, int64(j.last.Tick),
		j.runID,
	)
	if err != nil {
		return err
	}
	j.ended = true
	return nil
}

func (j *Journal) beginRun(f engine.Frame) error {
	_, err := j.db.conn.Exec(j.db.conn.Rebind(`INSERT INTO runs
		(id, started_at, initial_age, initial_cigarettes, ticks)
		VALUES (?, ?, ?, ?, ?)`),
		f.RunID, j.stamp(), f.Snapshot.Age, f.Snapshot.CigarettesPerDay, int64(f.Snapshot.Tick),
	)
	if err != nil {
		return err
	}
	j.runID, j.seq, j.ended = f.RunID, 0, false
	return j.db.SaveMeta("last_run_id", f.RunID)
}

func (j *Journal) stamp() string {
	return j.now().UTC().Format(time.RFC3339Nano)
}

// RecentRuns returns the most recently started runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, db.conn.Rebind(
		`SELECT id, started_at, ended_at, initial_age, initial_cigarettes, outcome,
		        final_age, life_expectancy, years_lost, ticks
		 FROM runs ORDER BY started_at DESC LIMIT ?`), limit)
	return runs, err
}

// Run returns one run by ID.
func (db *DB) Run(id string) (*Run, error) {
	var r Run
	err := db.conn.Get(&r, db.conn.Rebind(
		`SELECT id, started_at, ended_at, initial_age, initial_cigarettes, outcome,
		        final_age, life_expectancy, years_lost, ticks
		 FROM runs WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// RunEvents returns a run's events in emission order.
func (db *DB) RunEvents(runID string) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events, db.conn.Rebind(
		"SELECT tick, age, description, category FROM run_events WHERE run_id = ? ORDER BY seq"), runID)
	return events, err
}

// RunSamples returns a run's yearly samples in tick order.
func (db *DB) RunSamples(runID string) ([]Sample, error) {
	var samples []Sample
	err := db.conn.Select(&samples, db.conn.Rebind(
		`SELECT tick, age, cigarettes_per_day, life_expectancy,
		        heart_attack_risk, stroke_risk, cancer_risk, tar_accumulation
		 FROM run_samples WHERE run_id = ? ORDER BY tick`), runID)
	return samples, err
}
