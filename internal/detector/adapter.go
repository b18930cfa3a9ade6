package detector

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// State is the lifecycle of the engine session.
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session identifies a started engine.
type Session struct {
	ID        uuid.UUID `json:"id"`
	StartedAt time.Time `json:"started_at"`
}

// AdapterStats reports hand-off counters.
type AdapterStats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Batches   uint64 `json:"batches"`
}

type job struct {
	img image.Image
	ts  time.Duration
}

// Adapter owns one engine instance, started lazily when the first frame is
// submitted. Submit never blocks: frames are handed to a worker through a
// one-slot mailbox where a newer frame overwrites one the worker has not
// taken yet. Engine results are passed to onResults from a separate
// goroutine.
type Adapter struct {
	cfg       Config
	factory   Factory
	onResults func(Batch)

	state   atomic.Int32
	mu      sync.Mutex // guards engine and session during start and close
	engine  Engine
	session Session

	jobs      chan job
	done      chan struct{}
	closeOnce sync.Once
	workerWg  sync.WaitGroup
	pumpWg    sync.WaitGroup

	submitted atomic.Uint64
	dropped   atomic.Uint64
	batches   atomic.Uint64
}

// NewAdapter validates cfg and returns an adapter whose engine is created by
// factory on first use. A placeholder license yields ErrPlaceholderLicense;
// callers must treat that as fatal.
func NewAdapter(cfg Config, factory Factory, onResults func(Batch)) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate engine config: %w", err)
	}
	if factory == nil {
		return nil, fmt.Errorf("engine factory is required")
	}
	if onResults == nil {
		onResults = func(Batch) {}
	}

	a := &Adapter{
		cfg:       cfg,
		factory:   factory,
		onResults: onResults,
		jobs:      make(chan job, 1),
		done:      make(chan struct{}),
	}

	a.workerWg.Add(1)
	go a.work()

	return a, nil
}

// Submit hands img to the engine and returns immediately. A frame still
// waiting in the mailbox is replaced by img and counted as dropped, so the
// worker always picks up the newest frame. It reports false once the
// adapter is closed.
func (a *Adapter) Submit(img image.Image, ts time.Duration) bool {
	select {
	case <-a.done:
		return false
	default:
	}

	j := job{img: img, ts: ts}
	for {
		select {
		case a.jobs <- j:
			a.submitted.Add(1)
			return true
		default:
		}

		select {
		case <-a.jobs:
			a.dropped.Add(1)
		default:
		}
	}
}

// State returns the current session state.
func (a *Adapter) State() State {
	return State(a.state.Load())
}

// Session returns the running session, if the engine has started.
func (a *Adapter) Session() (Session, bool) {
	if a.State() != StateReady {
		return Session{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, true
}

// Config returns the engine configuration.
func (a *Adapter) Config() Config {
	return a.cfg
}

// Stats returns a snapshot of the hand-off counters.
func (a *Adapter) Stats() AdapterStats {
	return AdapterStats{
		Submitted: a.submitted.Load(),
		Dropped:   a.dropped.Load(),
		Batches:   a.batches.Load(),
	}
}

// Close stops the worker, closes the engine and waits until every result
// already produced has been delivered. The engine is closed before the
// worker is awaited so a Process call stuck on the engine is released.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.done)

		engine := a.currentEngine()
		if engine != nil {
			err = engine.Close()
		}
		a.workerWg.Wait()

		// The worker may have started the engine after the first look.
		if engine == nil {
			if engine = a.currentEngine(); engine != nil {
				err = engine.Close()
			}
		}
		a.pumpWg.Wait()
	})
	return err
}

func (a *Adapter) currentEngine() Engine {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine
}

func (a *Adapter) work() {
	defer a.workerWg.Done()

	for {
		select {
		case <-a.done:
			return
		case j := <-a.jobs:
			select {
			case <-a.done:
				return
			default:
			}

			engine, err := a.ensureStarted()
			if err != nil {
				log.WithError(err).Error("Detection engine failed to start, dropping frame")
				continue
			}
			if err := engine.Process(j.img, j.ts); err != nil && !errors.Is(err, ErrClosed) {
				log.WithError(err).WithField("timestamp", j.ts).Warn("Detection engine rejected frame")
			}
		}
	}
}

// ensureStarted creates and starts the engine exactly once. A failed start
// returns the adapter to StateUninitialized so the next frame tries again.
func (a *Adapter) ensureStarted() (Engine, error) {
	if a.State() == StateReady {
		return a.engine, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.state.CompareAndSwap(int32(StateUninitialized), int32(StateInitializing)) {
		if a.State() == StateReady {
			return a.engine, nil
		}
		return nil, fmt.Errorf("engine is %s", a.State())
	}

	engine, err := a.factory(a.cfg)
	if err != nil {
		a.state.Store(int32(StateUninitialized))
		return nil, fmt.Errorf("create engine: %w", err)
	}
	if err := engine.Start(); err != nil {
		a.state.Store(int32(StateUninitialized))
		return nil, fmt.Errorf("start engine: %w", err)
	}

	a.engine = engine
	a.session = Session{ID: uuid.New(), StartedAt: time.Now()}

	a.pumpWg.Add(1)
	go a.pump(engine.Results())

	a.state.Store(int32(StateReady))

	log.WithFields(log.Fields{
		"session":     a.session.ID,
		"max_faces":   a.cfg.MaxFaces,
		"valence":     a.cfg.Valence,
		"expressions": a.cfg.Expressions,
	}).Info("Detection engine started")

	return engine, nil
}

func (a *Adapter) pump(results <-chan Batch) {
	defer a.pumpWg.Done()
	for batch := range results {
		a.batches.Add(1)
		a.onResults(batch)
	}
}
