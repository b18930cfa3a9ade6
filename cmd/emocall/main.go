package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/emocall/internal/app"
	"github.com/ayusman/emocall/internal/capture"
	"github.com/ayusman/emocall/internal/config"
	"github.com/ayusman/emocall/internal/detector"
	"github.com/ayusman/emocall/internal/logger"
	"github.com/ayusman/emocall/internal/orient"
	"github.com/ayusman/emocall/internal/renderer"
	"github.com/ayusman/emocall/internal/server"
	"github.com/ayusman/emocall/internal/store"
	"github.com/ayusman/emocall/internal/tray"
)

func main() {
	configPath := flag.String("config", filepath.Join(config.DataDir(), "config.yaml"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logFile, err := logger.Init(cfg.Log)
	if err != nil {
		log.Errorf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	log.Info("emocall - live expression analysis")

	if err := os.MkdirAll(cfg.Store.Dir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	st, err := store.New(cfg.Store.Path())
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer st.Close()

	analysis := renderer.Config{
		SamplingInterval: cfg.Analysis.SamplingInterval,
		Engine: detector.Config{
			MaxFaces:    cfg.Engine.MaxFaces,
			Valence:     cfg.Engine.Valence,
			Expressions: cfg.Engine.Expressions,
			License:     cfg.Engine.License,
		},
	}

	var startOrientation orient.Orientation
	if cfg.Analysis.Orientation != "" {
		startOrientation, err = orient.ParseOrientation(cfg.Analysis.Orientation)
		if err != nil {
			log.Fatalf("Invalid analysis.orientation: %v", err)
		}
	}

	var camera capture.Camera
	if cfg.Camera.Enabled {
		camera = capture.NewCamera(capture.Config{
			DeviceID: cfg.Camera.Device,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		})
	}

	var pluginDir string
	if cfg.Plugins.Enabled {
		pluginDir = cfg.Plugins.Dir
	}

	frames := server.NewFrameTap()
	a, err := app.New(app.Config{
		Store:         st,
		Camera:        camera,
		Analysis:      analysis,
		Factory:       detector.ServiceFactory(serviceOptions(cfg.Engine)),
		FrameTap:      frames.Offer,
		Enabled:       cfg.Analysis.Enabled,
		Orientation:   startOrientation,
		PluginDir:     pluginDir,
		PluginTimeout: cfg.Plugins.Timeout,
	})
	if errors.Is(err, detector.ErrPlaceholderLicense) {
		log.Fatalf("Cannot start analysis: %v (set engine.license or %s_ENGINE_LICENSE)", err, config.EnvPrefix)
	}
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	if err := a.LoadSettings(); err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if err := a.DiscoverPlugins(); err != nil {
		log.WithError(err).Warn("Plugins unavailable")
	}

	hub := server.NewHub()
	a.AddConsumer(hub.Publish)

	var t *tray.Tray
	if cfg.Tray.Enabled {
		t = tray.New(a.IsEnabled())
		a.AddConsumer(t.SetExpression)
		a.OnEnabledChanged(t.SetEnabled)
	}

	webDir := cfg.Server.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.WithField("dir", webDir).Info("Serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:  webDir,
		Store:      st,
		Settings:   a,
		Controller: a,
		Hub:        hub,
		Frames:     frames,
	})

	if err := a.Start(); err != nil {
		log.WithError(err).Error("Camera unavailable; waiting for frames from the call layer")
	}

	go func() {
		log.WithField("addr", cfg.Server.Addr).Info("Starting server")
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	if t != nil {
		t.OnToggle(func(enabled bool) {
			if err := a.SetEnabled(enabled); err != nil {
				log.WithError(err).Error("Failed to save analysis state")
			}
		})
		t.OnSettings(func() { openBrowser(dashboardURL(cfg.Server.Addr)) })
		t.OnQuit(func() { log.Info("Quit requested from tray") })

		go func() {
			waitForSignal()
			t.Quit()
		}()
		t.Run()
	} else {
		waitForSignal()
	}

	log.Info("Shutting down")
	a.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
}

func waitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}

// serviceOptions builds the affect service launcher. Without an explicit
// script the service is discovered next to the binary.
func serviceOptions(cfg config.EngineConfig) detector.ServiceOptions {
	var opts detector.ServiceOptions
	if cfg.Script == "" {
		return opts
	}

	python := cfg.Python
	if python == "" {
		python = "python3"
	}
	script := cfg.Script
	opts.Command = func() (*exec.Cmd, error) {
		if _, err := os.Stat(script); err != nil {
			return nil, err
		}
		return exec.Command(python, script), nil
	}
	return opts
}

// dashboardURL turns a listen address into a browsable URL.
func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.WithError(err).Warn("Failed to open browser")
		return
	}
	go cmd.Wait()
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.emocall/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
