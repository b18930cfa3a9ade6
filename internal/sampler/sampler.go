// Package sampler rate-limits a live frame stream using wall-clock gating.
package sampler

import (
	"sync/atomic"
	"time"
)

// DefaultInterval caps analysis at 5 frames per second.
const DefaultInterval = 200 * time.Millisecond

// Clock abstracts time so tests can drive the sampler deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// Stats reports sampler counters.
type Stats struct {
	Admitted uint64 `json:"admitted"`
	Dropped  uint64 `json:"dropped"`
}

// Sampler admits at most one frame per interval. Frames arriving inside the
// interval are dropped, never queued.
//
// The last sample time starts at construction, so a frame arriving within one
// interval of New is dropped like any other.
type Sampler struct {
	interval time.Duration
	clock    Clock
	base     time.Time

	last     atomic.Int64 // unix nanos of the last admitted frame or of construction
	admitted atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a Sampler. A non-positive interval falls back to DefaultInterval
// and a nil clock to SystemClock.
func New(interval time.Duration, clock Clock) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	s := &Sampler{
		interval: interval,
		clock:    clock,
		base:     clock.Now(),
	}
	s.last.Store(s.base.UnixNano())
	return s
}

// Interval returns the minimum spacing between admitted frames.
func (s *Sampler) Interval() time.Duration {
	return s.interval
}

// Clock returns the clock the sampler was built with.
func (s *Sampler) Clock() Clock {
	return s.clock
}

// Admit reports whether a frame arriving at now should be processed.
// It is safe for concurrent use and never blocks.
func (s *Sampler) Admit(now time.Time) bool {
	n := now.UnixNano()
	for {
		last := s.last.Load()
		if time.Duration(n-last) <= s.interval {
			s.dropped.Add(1)
			return false
		}
		if s.last.CompareAndSwap(last, n) {
			s.admitted.Add(1)
			return true
		}
	}
}

// Stamp moves the last sample time forward to t, the instant the admitted
// frame was actually handed to the engine. Earlier times are ignored so the
// sample time never goes backwards.
func (s *Sampler) Stamp(t time.Time) {
	n := t.UnixNano()
	for {
		last := s.last.Load()
		if n <= last {
			return
		}
		if s.last.CompareAndSwap(last, n) {
			return
		}
	}
}

// LastSample returns the time of the last admitted frame, or the construction
// time when nothing has been admitted yet.
func (s *Sampler) LastSample() time.Time {
	return time.Unix(0, s.last.Load())
}

// Since returns t relative to the moment the sampler was created.
func (s *Sampler) Since(t time.Time) time.Duration {
	return t.Sub(s.base)
}

// Stats returns a snapshot of the admit and drop counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Admitted: s.admitted.Load(),
		Dropped:  s.dropped.Load(),
	}
}
