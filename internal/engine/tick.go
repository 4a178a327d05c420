// Package engine provides the smoker simulation state machine and the
// fixed-interval scheduler that drives it.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/talgya/smokersim/internal/health"
)

// DefaultInterval is the wall time between ticks (one tick = 0.1 simulated years).
const DefaultInterval = 100 * time.Millisecond

// ErrInvalidInterval is returned for a non-positive tick interval.
var ErrInvalidInterval = errors.New("tick interval must be positive")

// Frame is what observers receive after every tick and control transition.
type Frame struct {
	RunID    string   `json:"run_id"`
	Snapshot Snapshot `json:"snapshot"`
	Events   []Event  `json:"events,omitempty"`
}

// Observer watches the engine. Observers run on the scheduler goroutine and must
// not call Engine control methods.
type Observer interface {
	Observe(Frame) error
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(Frame) error

// Observe calls f.
func (f ObserverFunc) Observe(fr Frame) error { return f(fr) }

// Engine drives a Simulation on one cancellable repeating task.
type Engine struct {
	ctrl sync.Mutex // serializes Start/Pause/Reset/Stop/SetInterval

	mu        sync.Mutex // guards everything below
	sim       *Simulation
	runID     string
	interval  time.Duration
	observers []Observer

	// Current timer task. Set and cleared only under ctrl.
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine wraps a simulation with the default tick interval.
func NewEngine(sim *Simulation) *Engine {
	return &Engine{
		sim:      sim,
		runID:    uuid.NewString(),
		interval: DefaultInterval,
	}
}

// AddObserver registers an observer.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Start begins ticking. Starting an ended run returns ErrEnded.
func (e *Engine) Start() error {
	e.ctrl.Lock()
	defer e.ctrl.Unlock()

	e.mu.Lock()
	err := e.sim.Start()
	frame := e.frameLocked()
	interval := e.interval
	e.mu.Unlock()
	if err != nil {
		return err
	}

	// Clear any previous task before arming a new one.
	e.halt()
	e.launch(interval)
	slog.Info("simulation engine started", "run_id", frame.RunID, "interval", interval)
	e.notify(frame)
	return nil
}

// Pause stops ticking and keeps state.
func (e *Engine) Pause() {
	e.ctrl.Lock()
	defer e.ctrl.Unlock()

	e.halt()
	e.mu.Lock()
	e.sim.Pause()
	frame := e.frameLocked()
	e.mu.Unlock()
	e.notify(frame)
}

// Reset stops ticking, then rebuilds the subject from the current inputs under a new run ID.
func (e *Engine) Reset() {
	e.ctrl.Lock()
	defer e.ctrl.Unlock()

	e.halt()
	e.mu.Lock()
	e.sim.Reset()
	e.runID = uuid.NewString()
	frame := e.frameLocked()
	e.mu.Unlock()
	slog.Info("simulation reset", "run_id", frame.RunID)
	e.notify(frame)
}

// Stop halts the timer without changing the run state. Used on shutdown.
func (e *Engine) Stop() {
	e.ctrl.Lock()
	defer e.ctrl.Unlock()
	e.halt()
	slog.Info("simulation engine stopped", "run_id", e.RunID())
}

// SetInterval changes the tick cadence, re-arming the timer if it is running.
func (e *Engine) SetInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	e.ctrl.Lock()
	defer e.ctrl.Unlock()

	e.mu.Lock()
	e.interval = d
	running := e.sim.Running()
	e.mu.Unlock()

	if running && e.cancel != nil {
		e.halt()
		e.launch(d)
	}
	return nil
}

// Interval returns the tick cadence.
func (e *Engine) Interval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// Step applies one tick synchronously and reports whether the run is still going.
func (e *Engine) Step() bool {
	e.mu.Lock()
	if !e.sim.Running() {
		e.mu.Unlock()
		return false
	}
	e.sim.Tick()
	frame := e.frameLocked()
	e.mu.Unlock()

	e.notify(frame)
	return frame.Snapshot.Phase == PhaseRunning
}

// Update runs fn against the simulation under the engine lock, then notifies
// observers. Use it for input and policy setters.
func (e *Engine) Update(fn func(*Simulation)) {
	e.mu.Lock()
	fn(e.sim)
	frame := e.frameLocked()
	e.mu.Unlock()
	e.notify(frame)
}

// Snapshot returns the current read-only view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.Snapshot()
}

// LungHealth returns the respiratory subset of the state.
func (e *Engine) LungHealth() health.LungHealth {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.LungHealth()
}

// Events returns the recent event log.
func (e *Engine) Events() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sim.Events()
}

// RunID identifies the current run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// View runs fn against the simulation under the engine lock without notifying.
func (e *Engine) View(fn func(*Simulation)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.sim)
}

// Ticking reports whether the timer task is alive.
func (e *Engine) Ticking() bool {
	e.ctrl.Lock()
	defer e.ctrl.Unlock()
	if e.done == nil {
		return false
	}
	select {
	case <-e.done:
		return false
	default:
		return true
	}
}

func (e *Engine) frameLocked() Frame {
	return Frame{
		RunID:    e.runID,
		Snapshot: e.sim.Snapshot(),
		Events:   e.sim.DrainEvents(),
	}
}

// launch arms a new timer task. Caller holds ctrl.
func (e *Engine) launch(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel, e.done = cancel, done
	go e.run(ctx, interval, done)
}

// halt cancels the timer task and waits for it to exit. Caller holds ctrl and not mu.
func (e *Engine) halt() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel, e.done = nil, nil
}

func (e *Engine) run(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !e.Step() {
				return
			}
		}
	}
}

// notify delivers a frame to every observer. Failures are logged and never
// interrupt the simulation.
func (e *Engine) notify(frame Frame) {
	e.mu.Lock()
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		deliver(o, frame)
	}
}

func deliver(o Observer, frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("observer panicked", "run_id", frame.RunID, "tick", frame.Snapshot.Tick, "panic", r)
		}
	}()
	if err := o.Observe(frame); err != nil {
		slog.Warn("observer failed", "run_id", frame.RunID, "tick", frame.Snapshot.Tick, "error", err)
	}
}
