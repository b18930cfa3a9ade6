package plugin

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

// ManifestFile is the manifest name expected in every plugin directory.
const ManifestFile = "plugin.json"

// ErrPluginNotFound is returned when a requested plugin cannot be found.
var ErrPluginNotFound = errors.New("plugin not found")

// Manager discovers plugins below a directory.
type Manager struct {
	dir     string
	plugins map[string]*Plugin
	mu      sync.RWMutex
}

// NewManager creates a Manager for dir.
func NewManager(dir string) *Manager {
	return &Manager{
		dir:     dir,
		plugins: make(map[string]*Plugin),
	}
}

// Discover rescans the directory. A missing directory yields no plugins.
// Subdirectories without a readable, valid manifest are skipped.
func (m *Manager) Discover() error {
	plugins := make(map[string]*Plugin)

	entries, err := os.ReadDir(m.dir)
	if os.IsNotExist(err) {
		m.replace(plugins)
		return nil
	}
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		path := filepath.Join(m.dir, entry.Name())
		data, err := os.ReadFile(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}

		var manifest Manifest
		if err := json.Unmarshal(data, &manifest); err != nil {
			log.WithError(err).WithField("dir", path).Warn("Skipping plugin with invalid manifest")
			continue
		}
		if manifest.Name == "" || manifest.Executable == "" {
			log.WithField("dir", path).Warn("Skipping plugin without name or executable")
			continue
		}

		plugins[manifest.Name] = &Plugin{
			Manifest:   manifest,
			Path:       path,
			Executable: filepath.Join(path, manifest.Executable),
		}
	}

	m.replace(plugins)
	log.WithFields(log.Fields{"dir": m.dir, "count": len(plugins)}).Debug("Discovered plugins")
	return nil
}

func (m *Manager) replace(plugins map[string]*Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins = plugins
}

// Get returns a plugin by name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugin, ok := m.plugins[name]
	if !ok {
		return nil, ErrPluginNotFound
	}
	return plugin, nil
}

// List returns the discovered plugins sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	plugins := make([]*Plugin, 0, len(m.plugins))
	for _, plugin := range m.plugins {
		plugins = append(plugins, plugin)
	}
	sort.Slice(plugins, func(i, j int) bool {
		return plugins[i].Manifest.Name < plugins[j].Manifest.Name
	})
	return plugins
}

// Dir returns the plugin directory path.
func (m *Manager) Dir() string {
	return m.dir
}
