// Package history keeps a bounded trail of recent samples for a run and renders
// it as PNG charts.
package history

import (
	"sync"

	"github.com/talgya/smokersim/internal/engine"
	"github.com/talgya/smokersim/internal/health"
)

// DefaultPoints is how many samples a recorder keeps.
const DefaultPoints = 100

// Sample is one charted point.
type Sample struct {
	Tick             uint64  `json:"tick"`
	Age              float64 `json:"age"`
	LifeExpectancy   float64 `json:"life_expectancy"`
	UpperBound       float64 `json:"upper_bound"`
	LowerBound       float64 `json:"lower_bound"`
	CigarettesPerDay float64 `json:"cigarettes_per_day"`
	HeartAttackRisk  float64 `json:"heart_attack_risk"`
	StrokeRisk       float64 `json:"stroke_risk"`
	CancerRisk       float64 `json:"cancer_risk"`
	TarAccumulation  float64 `json:"tar_accumulation"`
}

func sampleOf(s engine.Snapshot) Sample {
	lo, hi := health.LifeBounds(s.Age)
	return Sample{
		Tick:             s.Tick,
		Age:              s.Age,
		LifeExpectancy:   s.LifeExpectancy,
		UpperBound:       hi,
		LowerBound:       lo,
		CigarettesPerDay: s.CigarettesPerDay,
		HeartAttackRisk:  s.HeartAttackRisk,
		StrokeRisk:       s.StrokeRisk,
		CancerRisk:       s.CancerRisk,
		TarAccumulation:  s.TarAccumulation,
	}
}

// Recorder is an engine observer holding the most recent samples of the current run.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	runID    string
	samples  []Sample
}

// NewRecorder returns a recorder keeping up to capacity samples (≤ 0 → DefaultPoints).
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultPoints
	}
	return &Recorder{capacity: capacity, samples: make([]Sample, 0, capacity)}
}

// Observe records a frame. A new run ID or a frame at tick 0 starts a fresh trail;
// a repeated tick replaces the last sample.
func (r *Recorder) Observe(f engine.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if f.RunID != r.runID || f.Snapshot.Tick == 0 {
		r.runID = f.RunID
		r.samples = r.samples[:0]
	}

	s := sampleOf(f.Snapshot)
	if n := len(r.samples); n > 0 && r.samples[n-1].Tick == s.Tick {
		r.samples[n-1] = s
		return nil
	}
	if len(r.samples) == r.capacity {
		copy(r.samples, r.samples[1:])
		r.samples = r.samples[:r.capacity-1]
	}
	r.samples = append(r.samples, s)
	return nil
}

// Samples returns a copy of the trail, oldest first.
func (r *Recorder) Samples() []Sample {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Sample(nil), r.samples...)
}

// RunID is the run the trail belongs to.
func (r *Recorder) RunID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runID
}

// Capacity returns the trail length limit.
func (r *Recorder) Capacity() int { return r.capacity }
