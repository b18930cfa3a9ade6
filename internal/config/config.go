// Package config loads the application configuration from defaults, an
// optional YAML file and EMOCALL_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. EMOCALL_ENGINE_LICENSE.
const EnvPrefix = "EMOCALL"

// Config is the top-level application configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Camera   CameraConfig   `mapstructure:"camera"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Tray     TrayConfig     `mapstructure:"tray"`
	Plugins  PluginsConfig  `mapstructure:"plugins"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string `mapstructure:"addr"`
	StaticDir string `mapstructure:"static_dir"` // empty means search the usual places
}

// StoreConfig locates the settings database.
type StoreConfig struct {
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
}

// Path returns the database file path.
func (c StoreConfig) Path() string {
	return filepath.Join(c.Dir, c.File)
}

// CameraConfig selects the local capture device.
type CameraConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Device  int  `mapstructure:"device"`
	Width   int  `mapstructure:"width"`
	Height  int  `mapstructure:"height"`
	FPS     int  `mapstructure:"fps"`
}

// AnalysisConfig holds the frame sampling settings and the startup state.
// Values persisted through the settings API take precedence at runtime.
type AnalysisConfig struct {
	SamplingInterval time.Duration `mapstructure:"sampling_interval"`
	Enabled          bool          `mapstructure:"enabled"`
	Orientation      string        `mapstructure:"orientation"`
}

// EngineConfig configures the external detection engine.
type EngineConfig struct {
	License     string `mapstructure:"license"`
	MaxFaces    int    `mapstructure:"max_faces"`
	Valence     bool   `mapstructure:"valence"`
	Expressions bool   `mapstructure:"expressions"`
	Python      string `mapstructure:"python"`
	Script      string `mapstructure:"script"`
}

// TrayConfig controls the menu bar indicator.
type TrayConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// PluginsConfig controls expression plugins.
type PluginsConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Dir     string        `mapstructure:"dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads the configuration. A missing file at path is not an error;
// an unreadable or malformed one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", path)
		} else {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
			log.Infof("Config loaded from %s", path)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	if cfg.Analysis.SamplingInterval <= 0 {
		return nil, fmt.Errorf("analysis.sampling_interval must be positive, got %s", cfg.Analysis.SamplingInterval)
	}

	return &cfg, nil
}

// DataDir returns ~/.emocall, or .emocall when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".emocall"
	}
	return filepath.Join(home, ".emocall")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.static_dir", "")

	v.SetDefault("store.dir", DataDir())
	v.SetDefault("store.file", "emocall.db")

	v.SetDefault("camera.enabled", true)
	v.SetDefault("camera.device", 0)
	v.SetDefault("camera.width", 640)
	v.SetDefault("camera.height", 480)
	v.SetDefault("camera.fps", 15)

	v.SetDefault("analysis.sampling_interval", "200ms")
	v.SetDefault("analysis.enabled", true)
	v.SetDefault("analysis.orientation", "")

	v.SetDefault("engine.license", "AFFECT_ENGINE_LICENSE")
	v.SetDefault("engine.max_faces", 1)
	v.SetDefault("engine.valence", true)
	v.SetDefault("engine.expressions", true)
	v.SetDefault("engine.python", "")
	v.SetDefault("engine.script", "")

	v.SetDefault("tray.enabled", true)

	v.SetDefault("plugins.enabled", true)
	v.SetDefault("plugins.dir", filepath.Join(DataDir(), "plugins"))
	v.SetDefault("plugins.timeout", "5s")
}
