// Package plugin runs user-installed executables when the displayed
// expression changes. Each plugin lives in its own directory with a
// plugin.json manifest and receives one JSON request on stdin per event.
package plugin

import (
	"encoding/json"
	"slices"
)

// EventExpression is the event sent when the displayed symbol changes.
const EventExpression = "expression"

// Manifest describes a plugin's metadata and the symbols it reacts to.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Executable  string `json:"executable"`

	// Symbols limits the plugin to these symbol names. Empty means all.
	Symbols []string `json:"symbols,omitempty"`

	// Config is passed through to every request unchanged.
	Config json.RawMessage `json:"config,omitempty"`
}

// Request is written to the plugin's stdin.
type Request struct {
	Event     string          `json:"event"`
	Symbol    string          `json:"symbol"`
	Emoji     string          `json:"emoji"`
	Score     float64         `json:"score"`
	Previous  string          `json:"previous,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Config    json.RawMessage `json:"config,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Reacts reports whether the plugin wants events for symbol.
func (p *Plugin) Reacts(symbol string) bool {
	return len(p.Manifest.Symbols) == 0 || slices.Contains(p.Manifest.Symbols, symbol)
}
