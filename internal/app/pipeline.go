package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/emocall/internal/capture"
)

// runPipeline reads the camera at its frame rate and pushes every frame into
// the analyser while analysis is enabled. Sampling happens in the analyser,
// so the camera rate only bounds preview latency.
func (a *App) runPipeline(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	fps := a.camera.FPS()
	if fps <= 0 {
		fps = capture.DefaultFPS
	}

	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !a.IsEnabled() {
				continue
			}
			a.captureOnce()
		}
	}
}

func (a *App) captureOnce() {
	mat, err := a.camera.ReadFrame()
	if err != nil {
		a.capFailed.Add(1)
		log.WithError(err).Debug("Error reading frame")
		return
	}
	defer mat.Close()

	f, err := capture.ToI420(*mat)
	if err != nil {
		a.capFailed.Add(1)
		log.WithError(err).Warn("Error converting frame")
		return
	}

	a.captured.Add(1)
	a.renderer.OnFrame(f)
}
