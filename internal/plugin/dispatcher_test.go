package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// installRecorder installs a plugin that appends every request to events.log.
func installRecorder(t *testing.T, root, name string, symbols []string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := writeManifest(t, root, name, Manifest{
		Name:       name,
		Executable: "record.sh",
		Symbols:    symbols,
		Config:     json.RawMessage(`{"name":"` + name + `"}`),
	})
	script := "#!/bin/sh\ncat >> events.log\necho >> events.log\necho '{\"success\":true}'\n"
	if err := os.WriteFile(filepath.Join(dir, "record.sh"), []byte(script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return filepath.Join(dir, "events.log")
}

func readEvents(t *testing.T, path string) []Request {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("failed to read events: %v", err)
	}

	var events []Request
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			t.Fatalf("bad event line %q: %v", line, err)
		}
		events = append(events, req)
	}
	return events
}

func newTestDispatcher(t *testing.T, root string) *Dispatcher {
	t.Helper()
	manager := NewManager(root)
	if err := manager.Discover(); err != nil {
		t.Fatalf("Discover() failed: %v", err)
	}
	d := NewDispatcher(manager, NewExecutor(5*time.Second))
	t.Cleanup(d.Close)
	return d
}

func TestDispatcher_SymbolChanges(t *testing.T) {
	root := t.TempDir()
	events := installRecorder(t, root, "all", nil)
	d := newTestDispatcher(t, root)

	d.OnUpdate(50, "smile-face")
	waitFor(t, "first run", func() bool { return d.Stats().Runs == 1 })

	d.OnUpdate(55, "smile-face")
	d.OnUpdate(-20, "angry-face")
	waitFor(t, "second run", func() bool { return d.Stats().Runs == 2 })

	got := readEvents(t, events)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Symbol != "smile-face" || got[0].Emoji != "😀" || got[0].Previous != "" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Symbol != "angry-face" || got[1].Score != -20 || got[1].Previous != "smile-face" {
		t.Errorf("second event = %+v", got[1])
	}
	if got[1].Event != EventExpression {
		t.Errorf("event = %q", got[1].Event)
	}
	if string(got[1].Config) != `{"name":"all"}` {
		t.Errorf("config = %s", got[1].Config)
	}
	if s := d.Stats(); s.Failures != 0 {
		t.Errorf("failures = %d", s.Failures)
	}
}

func TestDispatcher_SymbolFilter(t *testing.T) {
	root := t.TempDir()
	happy := installRecorder(t, root, "happy", []string{"laugh-face"})
	all := installRecorder(t, root, "all", nil)
	d := newTestDispatcher(t, root)

	d.OnUpdate(-40, "disappointed-face")
	waitFor(t, "first run", func() bool { return d.Stats().Runs == 1 })
	d.OnUpdate(80, "laugh-face")
	waitFor(t, "laugh runs", func() bool { return d.Stats().Runs == 3 })

	if n := len(readEvents(t, happy)); n != 1 {
		t.Errorf("filtered plugin saw %d events, want 1", n)
	}
	if n := len(readEvents(t, all)); n != 2 {
		t.Errorf("unfiltered plugin saw %d events, want 2", n)
	}
}

func TestDispatcher_CountsFailures(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "broken", Manifest{Name: "broken", Executable: "missing.sh"})
	d := newTestDispatcher(t, root)

	d.OnUpdate(10, "smirk-face")
	waitFor(t, "failed run", func() bool { return d.Stats().Failures == 1 })

	if s := d.Stats(); s.Runs != 1 {
		t.Errorf("runs = %d, want 1", s.Runs)
	}
}

func TestDispatcher_NoPlugins(t *testing.T) {
	d := newTestDispatcher(t, filepath.Join(t.TempDir(), "none"))

	d.OnUpdate(10, "smirk-face")
	d.Close()
	d.OnUpdate(10, "wink-face")

	if s := d.Stats(); s.Runs != 0 || s.Failures != 0 {
		t.Errorf("stats = %+v, want nothing run", s)
	}
}
