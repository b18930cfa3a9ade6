package server

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"sync"

	"github.com/disintegration/imaging"
	log "github.com/sirupsen/logrus"
)

// FrameTap keeps the most recent normalized frame for preview streaming.
// Offer is cheap enough to call from the frame path; encoding happens on
// the HTTP goroutines.
type FrameTap struct {
	mu     sync.Mutex
	img    image.Image
	seq    uint64
	notify chan struct{}
}

// NewFrameTap creates an empty FrameTap.
func NewFrameTap() *FrameTap {
	return &FrameTap{notify: make(chan struct{})}
}

// Offer replaces the latest frame and wakes waiting streams. img must not
// be modified afterwards.
func (t *FrameTap) Offer(img image.Image) {
	t.mu.Lock()
	t.img = img
	t.seq++
	close(t.notify)
	t.notify = make(chan struct{})
	t.mu.Unlock()
}

// Latest returns the most recent frame and its sequence number (0 if none).
func (t *FrameTap) Latest() (image.Image, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.img, t.seq
}

// next returns the frame after seq, or a channel to wait on if there is none yet.
func (t *FrameTap) next(seq uint64) (image.Image, uint64, <-chan struct{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.seq > seq {
		return t.img, t.seq, nil
	}
	return nil, seq, t.notify
}

// StreamHandler serves the analysed frames as MJPEG.
type StreamHandler struct {
	tap     *FrameTap
	quality int
}

// NewStreamHandler creates a new StreamHandler reading from tap.
func NewStreamHandler(tap *FrameTap) *StreamHandler {
	return &StreamHandler{tap: tap, quality: 80}
}

// ServeHTTP streams MJPEG frames to connected clients.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	var (
		seq uint64
		buf bytes.Buffer
	)
	for {
		img, next, wait := h.tap.next(seq)
		if wait != nil {
			select {
			case <-r.Context().Done():
				return
			case <-wait:
				continue
			}
		}
		seq = next

		buf.Reset()
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(h.quality)); err != nil {
			log.WithError(err).Warn("Failed to encode preview frame")
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		if _, err := w.Write(buf.Bytes()); err != nil {
			return
		}
		fmt.Fprintf(w, "\r\n")

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
