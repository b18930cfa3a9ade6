// Package renderer is the frame sink a video call drives. It samples
// incoming frames, converts and orients them, and feeds the detection
// engine, reporting each detected face to the registered consumer.
package renderer

import (
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/emocall/internal/colorspace"
	"github.com/ayusman/emocall/internal/detector"
	"github.com/ayusman/emocall/internal/expression"
	"github.com/ayusman/emocall/internal/frame"
	"github.com/ayusman/emocall/internal/orient"
	"github.com/ayusman/emocall/internal/sampler"
)

// Sink is the interface the call layer uses to push video into the analyser.
type Sink interface {
	OnFrame(f *frame.VideoFrame)
	OnOrientationChanged(o orient.Orientation)
	SupportsOrientationHandling() bool
}

// Config holds the analysis settings.
type Config struct {
	// SamplingInterval is the minimum spacing between analysed frames (default: 200ms).
	SamplingInterval time.Duration

	// Engine configures the detection engine.
	Engine detector.Config
}

// DefaultConfig returns a Config sampling at 5 Hz with the default engine settings.
func DefaultConfig() Config {
	return Config{
		SamplingInterval: sampler.DefaultInterval,
		Engine:           detector.DefaultConfig(),
	}
}

// Option customises a Renderer.
type Option func(*Renderer)

// WithClock sets the clock used for sampling and timestamps.
func WithClock(c sampler.Clock) Option {
	return func(r *Renderer) { r.clock = c }
}

// WithFrameTap registers fn to receive every normalized frame before it is
// handed to the engine. fn runs on the frame goroutine and must not block.
func WithFrameTap(fn func(image.Image)) Option {
	return func(r *Renderer) { r.tap = fn }
}

// Status is a snapshot of the analysis pipeline.
type Status struct {
	Orientation   string                `json:"orientation"`
	Sampler       sampler.Stats         `json:"sampler"`
	Handoff       detector.AdapterStats `json:"handoff"`
	InvalidFrames uint64                `json:"invalid_frames"`
	Engine        string                `json:"engine"`
	Session       *detector.Session     `json:"session,omitempty"`
}

// Renderer implements Sink.
type Renderer struct {
	clock       sampler.Clock
	sampler     *sampler.Sampler
	orientation orient.State
	adapter     *detector.Adapter
	translator  *expression.Translator
	tap         func(image.Image)

	invalid   atomic.Uint64
	unsetOnce sync.Once
}

var _ Sink = (*Renderer)(nil)

// New creates a Renderer whose engine is built by factory on the first
// analysed frame. consumer receives one call per detected face. An invalid
// engine configuration, including a placeholder license, is returned as an
// error and must be treated as fatal.
func New(cfg Config, factory detector.Factory, consumer expression.UpdateFunc, opts ...Option) (*Renderer, error) {
	r := &Renderer{
		clock:      sampler.SystemClock{},
		translator: expression.NewTranslator(consumer),
	}
	for _, opt := range opts {
		opt(r)
	}

	adapter, err := detector.NewAdapter(cfg.Engine, factory, r.translator.Deliver)
	if err != nil {
		return nil, fmt.Errorf("create detection adapter: %w", err)
	}

	r.adapter = adapter
	r.sampler = sampler.New(cfg.SamplingInterval, r.clock)

	return r, nil
}

// OnFrame analyses f if the sampling interval has elapsed. It never blocks
// on the engine. Malformed frames are logged and dropped.
func (r *Renderer) OnFrame(f *frame.VideoFrame) {
	if !r.sampler.Admit(r.clock.Now()) {
		return
	}

	rgba, err := colorspace.Convert(f)
	if err != nil {
		r.invalid.Add(1)
		log.WithError(err).WithField("invalid_frames", r.invalid.Load()).Error("Dropping malformed frame")
		return
	}

	o, ok := r.orientation.Load()
	if !ok {
		r.unsetOnce.Do(func() {
			log.Debug("Orientation not reported yet, assuming up")
		})
		o = orient.Up
	}

	img := orient.Normalize(rgba, o)
	if r.tap != nil {
		r.tap(img)
	}

	submitted := r.clock.Now()
	if !r.adapter.Submit(img, r.sampler.Since(submitted)) {
		log.Debug("Detection adapter closed, frame dropped")
	}
	r.sampler.Stamp(submitted)
}

// OnOrientationChanged records the device orientation for later frames.
func (r *Renderer) OnOrientationChanged(o orient.Orientation) {
	if !r.orientation.Store(o) {
		log.WithField("orientation", int32(o)).Warn("Ignoring invalid orientation")
		return
	}
	log.WithField("orientation", o).Debug("Orientation changed")
}

// SupportsOrientationHandling reports that the renderer normalizes orientation itself.
func (r *Renderer) SupportsOrientationHandling() bool {
	return true
}

// Orientation returns the current orientation, if one has been reported.
func (r *Renderer) Orientation() (orient.Orientation, bool) {
	return r.orientation.Load()
}

// Status returns a snapshot of the pipeline counters and engine state.
func (r *Renderer) Status() Status {
	s := Status{
		Orientation:   "unset",
		Sampler:       r.sampler.Stats(),
		Handoff:       r.adapter.Stats(),
		InvalidFrames: r.invalid.Load(),
		Engine:        r.adapter.State().String(),
	}
	if o, ok := r.orientation.Load(); ok {
		s.Orientation = o.String()
	}
	if session, ok := r.adapter.Session(); ok {
		s.Session = &session
	}
	return s
}

// Close shuts the detection engine down.
func (r *Renderer) Close() error {
	return r.adapter.Close()
}
