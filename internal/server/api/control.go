package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ayusman/emocall/internal/orient"
)

// Controller is the part of the application the control endpoints drive.
type Controller interface {
	Status() any
	SetEnabled(enabled bool) error
	SetOrientation(o orient.Orientation) error
}

// ControlHandler serves /api/status, /api/analysis and /api/orientation.
type ControlHandler struct {
	ctrl Controller
}

// NewControlHandler creates a ControlHandler for ctrl.
func NewControlHandler(ctrl Controller) *ControlHandler {
	return &ControlHandler{ctrl: ctrl}
}

// ServeHTTP implements the http.Handler interface.
func (h *ControlHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimPrefix(r.URL.Path, "/api/") {
	case "status":
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.ctrl.Status())
	case "analysis":
		if r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.setAnalysis(w, r)
	case "orientation":
		if r.Method != http.MethodPost && r.Method != http.MethodPut {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.setOrientation(w, r)
	default:
		http.NotFound(w, r)
	}
}

type analysisRequest struct {
	Enabled *bool `json:"enabled"`
}

type orientationRequest struct {
	Orientation string `json:"orientation"`
}

func (h *ControlHandler) setAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Enabled is required")
		return
	}

	if err := h.ctrl.SetEnabled(*req.Enabled); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update analysis")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

func (h *ControlHandler) setOrientation(w http.ResponseWriter, r *http.Request) {
	var req orientationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	o, err := orient.ParseOrientation(req.Orientation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.ctrl.SetOrientation(o); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update orientation")
		return
	}

	writeJSON(w, http.StatusOK, orientationRequest{Orientation: o.String()})
}
