// Package main provides a notification plugin. It shows a desktop
// notification for every expression change it receives, using osascript on
// macOS and notify-send elsewhere.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Event    string          `json:"event"`
	Symbol   string          `json:"symbol"`
	Emoji    string          `json:"emoji"`
	Score    float64         `json:"score"`
	Previous string          `json:"previous"`
	Config   json.RawMessage `json:"config"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Config is the plugin section of plugin.json.
type Config struct {
	Title string `json:"title"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(fmt.Errorf("failed to decode request: %w", err))
		return
	}

	if req.Event != "expression" {
		writeResponse(fmt.Errorf("unknown event: %s", req.Event))
		return
	}

	cfg := Config{Title: "emocall"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(fmt.Errorf("failed to parse config: %w", err))
			return
		}
	}

	cmd := notifyCommand(runtime.GOOS, cfg.Title, message(req))
	if output, err := cmd.CombinedOutput(); err != nil {
		writeResponse(fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
		return
	}

	writeResponse(nil)
}

// message renders the notification body, e.g. "😀 smile-face (valence 40)".
func message(req Request) string {
	return fmt.Sprintf("%s %s (valence %.0f)", req.Emoji, req.Symbol, req.Score)
}

func notifyCommand(goos, title, body string) *exec.Cmd {
	if goos == "darwin" {
		script := fmt.Sprintf(`display notification %q with title %q`, body, title)
		return exec.Command("osascript", "-e", script)
	}
	return exec.Command("notify-send", title, body)
}

func writeResponse(err error) {
	resp := Response{Success: err == nil}
	if err != nil {
		resp.Error = err.Error()
	}
	json.NewEncoder(os.Stdout).Encode(resp)
}
