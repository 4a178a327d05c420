// Package entropy provides the shared random source for stochastic health events.
// Every draw in the simulation goes through a Source so runs can be stubbed in tests,
// seeded for reproducibility, or fed from random.org when an API key is configured.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand"
	"sync"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float() float64
}

// Crypto draws from crypto/rand. It is the default source.
type Crypto struct{}

// Float returns a crypto-random float in [0, 1).
func (Crypto) Float() float64 { return cryptoRandFloat() }

// Fixed always returns the same value. Used to force branches in tests.
type Fixed float64

// Float returns the fixed value.
func (f Fixed) Float() float64 { return float64(f) }

// Sequence replays a list of draws, then repeats the last one.
type Sequence struct {
	mu    sync.Mutex
	draws []float64
	next  int
}

// NewSequence creates a replaying source. An empty list behaves like Fixed(0).
func NewSequence(draws ...float64) *Sequence {
	return &Sequence{draws: draws}
}

// Float returns the next scripted draw.
func (s *Sequence) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.draws) == 0 {
		return 0
	}
	if s.next >= len(s.draws) {
		return s.draws[len(s.draws)-1]
	}
	v := s.draws[s.next]
	s.next++
	return v
}

// Seeded is a reproducible source backed by math/rand.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded creates a seeded source.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float returns the next pseudo-random float.
func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// cryptoRandFloat generates a random float64 using crypto/rand.
func cryptoRandFloat() float64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		// This should never happen but return 0.5 as a safe default.
		return 0.5
	}
	// Use only 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Uniform maps a draw onto [lo, hi).
func Uniform(src Source, lo, hi float64) float64 {
	return lo + src.Float()*(hi-lo)
}

// Chance reports whether a draw lands below p.
func Chance(src Source, p float64) bool {
	return src.Float() < p
}
