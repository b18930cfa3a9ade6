package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ayusman/emocall/internal/store"
)

// SettingApplier keeps live state in step with the stored settings.
// Unknown keys are accepted and ignored.
type SettingApplier interface {
	// ValidateSetting rejects a value before anything is stored.
	ValidateSetting(key, value string) error
	// ApplySetting makes a stored value live.
	ApplySetting(key, value string) error
	// ResetSetting restores the default after a stored value is deleted.
	ResetSetting(key string)
}

// SettingsHandler handles HTTP requests for stored settings.
type SettingsHandler struct {
	store   *store.Store
	applier SettingApplier
}

// NewSettingsHandler creates a SettingsHandler. applier may be nil.
func NewSettingsHandler(s *store.Store, applier SettingApplier) *SettingsHandler {
	return &SettingsHandler{store: s, applier: applier}
}

// ServeHTTP routes /api/settings and /api/settings/{key}.
func (h *SettingsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/settings")
	key = strings.TrimPrefix(key, "/")

	if key == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.list(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, r, key)
	case http.MethodPut:
		h.put(w, r, key)
	case http.MethodDelete:
		h.delete(w, r, key)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type settingRequest struct {
	Value *string `json:"value"`
}

type settingResponse struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type listSettingsResponse struct {
	Settings []settingResponse `json:"settings"`
}

func (h *SettingsHandler) list(w http.ResponseWriter, r *http.Request) {
	settings, err := h.store.Settings().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settings")
		return
	}

	response := listSettingsResponse{
		Settings: make([]settingResponse, 0, len(settings)),
	}
	for _, st := range settings {
		response.Settings = append(response.Settings, settingResponse{
			Key:       st.Key,
			Value:     st.Value,
			UpdatedAt: st.UpdatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *SettingsHandler) get(w http.ResponseWriter, r *http.Request, key string) {
	value, err := h.store.Settings().Get(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get setting")
		return
	}

	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value})
}

func (h *SettingsHandler) put(w http.ResponseWriter, r *http.Request, key string) {
	var req settingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "Value is required")
		return
	}

	if h.applier != nil {
		if err := h.applier.ValidateSetting(key, *req.Value); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	previous, prevErr := h.store.Settings().Get(key)
	if err := h.store.Settings().Set(key, *req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save setting")
		return
	}

	if h.applier != nil {
		if err := h.applier.ApplySetting(key, *req.Value); err != nil {
			h.restore(key, previous, prevErr)
			writeError(w, http.StatusInternalServerError, "Failed to apply setting")
			return
		}
	}

	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: *req.Value})
}

func (h *SettingsHandler) delete(w http.ResponseWriter, r *http.Request, key string) {
	if err := h.store.Settings().Delete(key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Setting not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete setting")
		return
	}

	if h.applier != nil {
		h.applier.ResetSetting(key)
	}

	w.WriteHeader(http.StatusNoContent)
}

// restore puts back the stored value a failed apply replaced.
func (h *SettingsHandler) restore(key, previous string, prevErr error) {
	switch {
	case prevErr == nil:
		h.store.Settings().Set(key, previous)
	case errors.Is(prevErr, store.ErrNotFound):
		h.store.Settings().Delete(key)
	}
}
