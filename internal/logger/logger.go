// Package logger configures the global logrus logger.
package logger

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"github.com/ayusman/emocall/internal/config"
)

// Init sets the level, the text formatter and the outputs of the global
// logger. Output always goes to stderr and, when cfg.File is set, is also
// appended to that file. The returned closer releases the file.
func Init(cfg config.LogConfig) (io.Closer, error) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Invalid log level '%s', defaulting to 'info': %v", cfg.Level, err)
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stderr)

	if cfg.File == "" {
		return nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0750); err != nil {
		return nopCloser{}, err
	}
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return nopCloser{}, err
	}

	log.SetOutput(io.MultiWriter(os.Stderr, file))
	log.WithField("file", cfg.File).Debug("Logging additionally to file")

	return file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
