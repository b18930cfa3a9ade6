package detector

import (
	"errors"
	"image"
	"sync"
	"time"
)

// Submission is a frame recorded by MockEngine.
type Submission struct {
	Image     image.Image
	Timestamp time.Duration
}

// MockEngine is a test implementation of the Engine interface.
// It allows tests to control start failures and emitted results.
type MockEngine struct {
	mu          sync.Mutex
	config      Config
	starts      int
	startErr    error
	processErr  error
	response    []Face
	respond     bool
	submissions []Submission
	results     chan Batch
	closed      bool
}

// NewMockEngine creates a new MockEngine instance.
func NewMockEngine() *MockEngine {
	return &MockEngine{
		results: make(chan Batch, 64),
	}
}

// Factory returns a Factory that always yields this engine.
func (m *MockEngine) Factory() Factory {
	return func(cfg Config) (Engine, error) {
		m.mu.Lock()
		m.config = cfg
		m.mu.Unlock()
		return m, nil
	}
}

// SetStartError sets the error that will be returned by Start.
func (m *MockEngine) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// SetProcessError sets the error that will be returned by Process.
func (m *MockEngine) SetProcessError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processErr = err
}

// SetResponse makes every processed frame produce a batch with faces.
// An empty slice produces empty batches.
func (m *MockEngine) SetResponse(faces []Face) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = faces
	m.respond = true
}

// Start records the start and returns the configured error.
func (m *MockEngine) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

// Process records the frame and emits the configured response, if any.
func (m *MockEngine) Process(img image.Image, ts time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if m.processErr != nil {
		return m.processErr
	}

	m.submissions = append(m.submissions, Submission{Image: img, Timestamp: ts})
	if m.respond {
		faces := append([]Face(nil), m.response...)
		select {
		case m.results <- Batch{Timestamp: ts, Faces: faces}:
		default:
		}
	}
	return nil
}

// Emit delivers a batch as if the engine had produced it.
func (m *MockEngine) Emit(b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("emit on closed mock engine")
	}
	m.results <- b
	return nil
}

// Results returns the result channel.
func (m *MockEngine) Results() <-chan Batch {
	return m.results
}

// Close closes the result channel. Closing twice is a no-op.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.results)
	}
	return nil
}

// Starts returns how many times Start was called.
func (m *MockEngine) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// Submissions returns the frames processed so far.
func (m *MockEngine) Submissions() []Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Submission(nil), m.submissions...)
}

// Config returns the configuration passed through Factory.
func (m *MockEngine) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}
