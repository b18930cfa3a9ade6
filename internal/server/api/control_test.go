package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ayusman/emocall/internal/orient"
)

type fakeController struct {
	enabled     bool
	orientation orient.Orientation
}

func (c *fakeController) Status() any {
	return map[string]any{"enabled": c.enabled, "orientation": c.orientation.String()}
}

func (c *fakeController) SetEnabled(enabled bool) error {
	c.enabled = enabled
	return nil
}

func (c *fakeController) SetOrientation(o orient.Orientation) error {
	c.orientation = o
	return nil
}

func TestControlHandler_Status(t *testing.T) {
	ctrl := &fakeController{enabled: true, orientation: orient.Down}
	handler := NewControlHandler(ctrl)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var got map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["enabled"] != true || got["orientation"] != "down" {
		t.Errorf("unexpected status %v", got)
	}
}

func TestControlHandler_Orientation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       orient.Orientation
	}{
		{name: "left", body: `{"orientation":"left"}`, wantStatus: http.StatusOK, want: orient.Left},
		{name: "case insensitive", body: `{"orientation":"RIGHT"}`, wantStatus: http.StatusOK, want: orient.Right},
		{name: "unknown", body: `{"orientation":"sideways"}`, wantStatus: http.StatusBadRequest},
		{name: "invalid json", body: `nope`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := &fakeController{}
			handler := NewControlHandler(ctrl)

			req := httptest.NewRequest(http.MethodPost, "/api/orientation", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if ctrl.orientation != tt.want {
				t.Errorf("orientation = %v, want %v", ctrl.orientation, tt.want)
			}
		})
	}
}

func TestControlHandler_Analysis(t *testing.T) {
	ctrl := &fakeController{enabled: true}
	handler := NewControlHandler(ctrl)

	req := httptest.NewRequest(http.MethodPut, "/api/analysis", bytes.NewBufferString(`{"enabled":false}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ctrl.enabled {
		t.Error("analysis should be disabled")
	}

	req = httptest.NewRequest(http.MethodPut, "/api/analysis", bytes.NewBufferString(`{}`))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing field: expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestControlHandler_Methods(t *testing.T) {
	handler := NewControlHandler(&fakeController{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/status", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/analysis", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/orientation", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}
}
