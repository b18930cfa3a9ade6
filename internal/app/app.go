// Package app wires the camera, the analyser and the update consumers
// together and keeps the runtime settings in the store.
package app

import (
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/emocall/internal/capture"
	"github.com/ayusman/emocall/internal/detector"
	"github.com/ayusman/emocall/internal/expression"
	"github.com/ayusman/emocall/internal/orient"
	"github.com/ayusman/emocall/internal/plugin"
	"github.com/ayusman/emocall/internal/renderer"
	"github.com/ayusman/emocall/internal/store"
)

// Keys of the settings persisted in the store.
const (
	SettingAnalysisEnabled = "analysis.enabled"
	SettingOrientation     = "camera.orientation"
)

// Config holds configuration options for the application.
type Config struct {
	// Store persists runtime settings. Optional.
	Store *store.Store

	// Camera is the frame source. Optional: without one, frames must be
	// pushed through Sink by the caller.
	Camera capture.Camera

	// Analysis configures sampling and the detection engine.
	Analysis renderer.Config

	// Factory builds the detection engine.
	Factory detector.Factory

	// FrameTap receives every normalized frame handed to the engine. Optional.
	FrameTap func(image.Image)

	// Enabled is the analysis state used when the store has none.
	Enabled bool

	// Orientation is applied at start when the store has none. Zero leaves
	// it unset until the call layer reports one.
	Orientation orient.Orientation

	// PluginDir holds expression plugins. Empty disables plugins.
	PluginDir string

	// PluginTimeout bounds one plugin run (default: plugin.DefaultTimeout).
	PluginTimeout time.Duration
}

// Status is the application snapshot served by the status endpoint.
type Status struct {
	Enabled        bool            `json:"enabled"`
	CameraOpen     bool            `json:"camera_open"`
	FramesCaptured uint64          `json:"frames_captured"`
	CaptureErrors  uint64          `json:"capture_errors"`
	Consumers      int             `json:"consumers"`
	Plugins        []string        `json:"plugins,omitempty"`
	PluginRuns     *plugin.Stats   `json:"plugin_runs,omitempty"`
	Analysis       renderer.Status `json:"analysis"`
}

// App is the main application that feeds camera frames to the analyser and
// fans its updates out to the registered consumers.
type App struct {
	config    Config
	camera    capture.Camera
	renderer  *renderer.Renderer
	consumers []expression.UpdateFunc
	watchers  []func(enabled bool)
	pluginMgr *plugin.Manager
	plugins   *plugin.Dispatcher
	enabled   bool
	mu        sync.RWMutex
	stopCh    chan struct{}
	done      chan struct{}

	captured  atomic.Uint64
	capFailed atomic.Uint64
}

// New creates a new App. An invalid engine configuration, including a
// placeholder license, is returned as an error.
func New(config Config) (*App, error) {
	a := &App{
		config:  config,
		camera:  config.Camera,
		enabled: config.Enabled,
	}

	var opts []renderer.Option
	if config.FrameTap != nil {
		opts = append(opts, renderer.WithFrameTap(config.FrameTap))
	}

	r, err := renderer.New(config.Analysis, config.Factory, a.dispatch, opts...)
	if err != nil {
		return nil, err
	}
	a.renderer = r

	if config.Orientation.Valid() {
		r.OnOrientationChanged(config.Orientation)
	}

	if config.PluginDir != "" {
		a.pluginMgr = plugin.NewManager(config.PluginDir)
		a.plugins = plugin.NewDispatcher(a.pluginMgr, plugin.NewExecutor(config.PluginTimeout))
		a.consumers = append(a.consumers, a.plugins.OnUpdate)
	}

	return a, nil
}

// DiscoverPlugins scans the plugin directory and loads available plugins.
func (a *App) DiscoverPlugins() error {
	if a.pluginMgr == nil {
		return nil
	}
	if err := a.pluginMgr.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}
	log.WithField("count", len(a.pluginMgr.List())).Info("Plugins loaded")
	return nil
}

// PluginManager returns the plugin manager, or nil when plugins are disabled.
func (a *App) PluginManager() *plugin.Manager {
	return a.pluginMgr
}

// AddConsumer registers fn to receive every (score, symbol) update.
// Consumers are called in registration order on the engine's result goroutine.
func (a *App) AddConsumer(fn expression.UpdateFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.consumers = append(a.consumers, fn)
}

// OnEnabledChanged registers fn to be told whenever analysis is paused or
// resumed, whichever surface made the change.
func (a *App) OnEnabledChanged(fn func(enabled bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.watchers = append(a.watchers, fn)
}

func (a *App) dispatch(score float64, symbol string) {
	a.mu.RLock()
	consumers := a.consumers
	a.mu.RUnlock()

	log.WithFields(log.Fields{"score": score, "symbol": symbol}).Debug("Expression update")
	for _, fn := range consumers {
		fn(score, symbol)
	}
}

// LoadSettings restores the persisted settings. Invalid stored values are
// logged and ignored.
func (a *App) LoadSettings() error {
	if a.config.Store == nil {
		return nil
	}
	settings := a.config.Store.Settings()

	enabled, err := settings.GetBool(SettingAnalysisEnabled, a.config.Enabled)
	if err != nil {
		log.WithError(err).Warnf("Ignoring stored %s", SettingAnalysisEnabled)
		enabled = a.config.Enabled
	}
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()

	value, err := settings.Get(SettingOrientation)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("load %s: %w", SettingOrientation, err)
	default:
		o, err := orient.ParseOrientation(value)
		if err != nil {
			log.WithError(err).Warnf("Ignoring stored %s", SettingOrientation)
			break
		}
		a.renderer.OnOrientationChanged(o)
	}

	log.WithField("enabled", enabled).Info("Loaded settings")
	return nil
}

// ValidateSetting checks a setting written through the API before it is
// stored. Unknown keys are accepted as-is.
func (a *App) ValidateSetting(key, value string) error {
	_, err := parseSetting(key, value)
	return err
}

// ApplySetting makes a stored setting live in the running application.
func (a *App) ApplySetting(key, value string) error {
	v, err := parseSetting(key, value)
	if err != nil {
		return err
	}
	switch v := v.(type) {
	case bool:
		a.setEnabled(v)
	case orient.Orientation:
		a.renderer.OnOrientationChanged(v)
	}
	return nil
}

// ResetSetting restores the configured default once a stored setting is
// deleted. Without a configured orientation the analyser falls back to up.
func (a *App) ResetSetting(key string) {
	switch key {
	case SettingAnalysisEnabled:
		a.setEnabled(a.config.Enabled)
	case SettingOrientation:
		o := a.config.Orientation
		if !o.Valid() {
			o = orient.Up
		}
		a.renderer.OnOrientationChanged(o)
	}
}

func parseSetting(key, value string) (any, error) {
	switch key {
	case SettingAnalysisEnabled:
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a boolean", key)
		}
		return enabled, nil
	case SettingOrientation:
		return orient.ParseOrientation(value)
	}
	return nil, nil
}

// SetEnabled enables or disables analysis and persists the choice.
func (a *App) SetEnabled(enabled bool) error {
	a.setEnabled(enabled)
	if a.config.Store == nil {
		return nil
	}
	if err := a.config.Store.Settings().SetBool(SettingAnalysisEnabled, enabled); err != nil {
		return fmt.Errorf("save %s: %w", SettingAnalysisEnabled, err)
	}
	return nil
}

func (a *App) setEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	watchers := a.watchers
	a.mu.Unlock()

	log.WithField("enabled", enabled).Info("Analysis toggled")
	for _, fn := range watchers {
		fn(enabled)
	}
}

// IsEnabled returns whether analysis is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetOrientation forwards a device orientation to the analyser and persists it.
func (a *App) SetOrientation(o orient.Orientation) error {
	if !o.Valid() {
		return fmt.Errorf("invalid orientation %d", int32(o))
	}
	a.renderer.OnOrientationChanged(o)
	if a.config.Store == nil {
		return nil
	}
	if err := a.config.Store.Settings().Set(SettingOrientation, o.String()); err != nil {
		return fmt.Errorf("save %s: %w", SettingOrientation, err)
	}
	return nil
}

// Status returns a snapshot of the application state.
func (a *App) Status() any {
	a.mu.RLock()
	consumers := len(a.consumers)
	a.mu.RUnlock()

	status := Status{
		Enabled:        a.IsEnabled(),
		CameraOpen:     a.camera != nil && a.camera.IsOpen(),
		FramesCaptured: a.captured.Load(),
		CaptureErrors:  a.capFailed.Load(),
		Consumers:      consumers,
		Analysis:       a.renderer.Status(),
	}
	if a.plugins != nil {
		for _, p := range a.pluginMgr.List() {
			status.Plugins = append(status.Plugins, p.Manifest.Name)
		}
		stats := a.plugins.Stats()
		status.PluginRuns = &stats
	}
	return status
}

// Sink returns the frame sink for callers that deliver frames themselves.
func (a *App) Sink() renderer.Sink {
	return a.renderer
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// Start opens the camera and begins feeding frames to the analyser.
// Without a camera it does nothing.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil || a.camera == nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}

	a.stopCh = make(chan struct{})
	a.done = make(chan struct{})
	go a.runPipeline(a.stopCh, a.done)

	log.WithField("fps", a.camera.FPS()).Info("Capture pipeline started")
	return nil
}

// Stop halts the capture pipeline and shuts the analyser down.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, done := a.stopCh, a.done
	a.stopCh, a.done = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-done
	}

	if a.camera != nil {
		if err := a.camera.Close(); err != nil {
			log.WithError(err).Error("Error closing camera")
		}
	}

	if err := a.renderer.Close(); err != nil {
		log.WithError(err).Error("Error closing detection engine")
	}

	if a.plugins != nil {
		a.plugins.Close()
	}

	log.Info("Capture pipeline stopped")
}
