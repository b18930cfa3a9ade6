package sampler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClock is a deterministic clock for testing.
type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)}
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newStartedSampler returns a sampler whose clock has moved one interval past
// construction, so the next frame is admitted.
func newStartedSampler(interval time.Duration) (*Sampler, *mockClock) {
	clock := newMockClock()
	s := New(interval, clock)
	clock.Advance(s.Interval() + time.Millisecond)
	return s, clock
}

func TestNew_Defaults(t *testing.T) {
	clock := newMockClock()
	s := New(0, clock)

	assert.Equal(t, DefaultInterval, s.Interval())
	assert.True(t, s.LastSample().Equal(clock.Now()), "sample time starts at construction")

	assert.IsType(t, SystemClock{}, New(0, nil).Clock())
}

func TestSampler_FirstFrameAfterConstruction(t *testing.T) {
	tests := []struct {
		name  string
		after time.Duration
		want  bool
	}{
		{"immediately", 0, false},
		{"inside interval", 50 * time.Millisecond, false},
		{"at interval", DefaultInterval, false},
		{"past interval", DefaultInterval + time.Millisecond, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newMockClock()
			s := New(DefaultInterval, clock)

			clock.Advance(tt.after)
			assert.Equal(t, tt.want, s.Admit(clock.Now()))
		})
	}
}

func TestSampler_RejectsInsideInterval(t *testing.T) {
	s, clock := newStartedSampler(200 * time.Millisecond)

	start := clock.Now()
	require.True(t, s.Admit(start))

	for _, offset := range []time.Duration{0, time.Millisecond, 50 * time.Millisecond, 199 * time.Millisecond, 200 * time.Millisecond} {
		assert.False(t, s.Admit(start.Add(offset)), "frame at +%v should be dropped", offset)
	}

	assert.True(t, s.LastSample().Equal(start), "rejected frames must not move the sample time")

	assert.True(t, s.Admit(start.Add(201*time.Millisecond)))
}

func TestSampler_FiveHertzCap(t *testing.T) {
	s, clock := newStartedSampler(DefaultInterval)

	// 30 fps for two seconds.
	admitted := 0
	for i := 0; i < 60; i++ {
		if s.Admit(clock.Now()) {
			admitted++
		}
		clock.Advance(time.Second / 30)
	}

	// Strictly greater than 200ms means every 7th frame at 30fps (233ms).
	assert.Equal(t, 9, admitted)
	assert.Equal(t, Stats{Admitted: 9, Dropped: 51}, s.Stats())
}

func TestSampler_IrregularDelivery(t *testing.T) {
	s, clock := newStartedSampler(DefaultInterval)
	start := clock.Now()

	arrivals := []struct {
		at   time.Duration
		want bool
	}{
		{at: 0, want: true},
		{at: 10 * time.Millisecond, want: false},
		{at: 900 * time.Millisecond, want: true},
		{at: 901 * time.Millisecond, want: false},
		{at: 1101 * time.Millisecond, want: true},
		{at: 1300 * time.Millisecond, want: false},
	}

	for _, a := range arrivals {
		assert.Equal(t, a.want, s.Admit(start.Add(a.at)), "arrival at %v", a.at)
	}
}

func TestSampler_Stamp(t *testing.T) {
	s, clock := newStartedSampler(DefaultInterval)
	start := clock.Now()

	require.True(t, s.Admit(start))

	// Submission finished 30ms after arrival; the interval counts from there.
	s.Stamp(start.Add(30 * time.Millisecond))
	assert.False(t, s.Admit(start.Add(220*time.Millisecond)))
	assert.True(t, s.Admit(start.Add(231*time.Millisecond)))

	t.Run("never moves backwards", func(t *testing.T) {
		before := s.LastSample()
		s.Stamp(start)
		assert.True(t, s.LastSample().Equal(before))
	})
}

func TestSampler_ClockGoingBackwards(t *testing.T) {
	s, clock := newStartedSampler(DefaultInterval)
	start := clock.Now()

	require.True(t, s.Admit(start))
	assert.False(t, s.Admit(start.Add(-time.Hour)))

	assert.True(t, s.LastSample().Equal(start))
}

func TestSampler_Since(t *testing.T) {
	clock := newMockClock()
	s := New(DefaultInterval, clock)

	clock.Advance(1500 * time.Millisecond)

	assert.Equal(t, 1500*time.Millisecond, s.Since(clock.Now()))
}

func TestSampler_ConcurrentAdmitAdmitsOnce(t *testing.T) {
	s, clock := newStartedSampler(DefaultInterval)
	now := clock.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Admit(now) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, uint64(31), s.Stats().Dropped)
}
