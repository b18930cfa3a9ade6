// Package detector drives an external facial-emotion engine: it owns the
// lazily started engine session, hands frames to it without blocking and
// relays the engine's asynchronous results.
package detector

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"time"
)

// PlaceholderLicense is the credential shipped in sample configuration.
// Running with it is a deployment error.
const PlaceholderLicense = "AFFECT_ENGINE_LICENSE"

var (
	// ErrPlaceholderLicense is returned when the engine credential is missing or left at its placeholder.
	ErrPlaceholderLicense = errors.New("engine license is not configured: set a valid activation credential")
	// ErrClosed is returned by engines used after Close.
	ErrClosed = errors.New("engine closed")
)

// Engine is an external detector. Process hands a frame over and returns
// without waiting for analysis; results arrive later on Results, in an order
// and pairing owned by the engine.
type Engine interface {
	// Start brings the engine up before the first Process. A failed Start
	// releases whatever it acquired and may be retried.
	Start() error

	// Process submits a normalized frame taken ts after the session began.
	Process(img image.Image, ts time.Duration) error

	// Results delivers result batches. The channel is closed by Close.
	Results() <-chan Batch

	// Close releases any resources held by the engine.
	Close() error
}

// Factory builds an engine for the given configuration.
type Factory func(cfg Config) (Engine, error)

// Config holds configuration options for the detection engine.
type Config struct {
	// MaxFaces is the number of faces the engine tracks (default: 1).
	MaxFaces int `json:"max_faces"`

	// Valence enables the continuous valence score.
	Valence bool `json:"valence"`

	// Expressions enables the categorical expression code.
	Expressions bool `json:"expressions"`

	// License is the engine activation credential.
	License string `json:"license"`
}

// DefaultConfig returns a Config with a single tracked face and both
// features enabled. The license must still be set by the caller.
func DefaultConfig() Config {
	return Config{
		MaxFaces:    1,
		Valence:     true,
		Expressions: true,
		License:     PlaceholderLicense,
	}
}

// Validate reports configuration errors that make starting the engine pointless.
func (c Config) Validate() error {
	license := strings.TrimSpace(c.License)
	if license == "" || license == PlaceholderLicense {
		return ErrPlaceholderLicense
	}
	if c.MaxFaces < 1 {
		return fmt.Errorf("max faces must be at least 1, got %d", c.MaxFaces)
	}
	if !c.Valence && !c.Expressions {
		return errors.New("at least one of valence or expressions must be enabled")
	}
	return nil
}

// Expression is the categorical expression code reported by the engine.
type Expression string

// Expression codes understood by the engine. Anything else is treated as unknown.
const (
	ExpressionUnknown       Expression = "unknown"
	ExpressionRage          Expression = "rage"
	ExpressionWink          Expression = "wink"
	ExpressionSmirk         Expression = "smirk"
	ExpressionScream        Expression = "scream"
	ExpressionSmiley        Expression = "smiley"
	ExpressionFlushed       Expression = "flushed"
	ExpressionKissing       Expression = "kissing"
	ExpressionTongueOut     Expression = "tongue-out"
	ExpressionTongueOutWink Expression = "tongue-out-wink"
	ExpressionRelaxed       Expression = "relaxed"
	ExpressionLaughing      Expression = "laughing"
	ExpressionDisappointed  Expression = "disappointed"
)

// Face is the analysis of one tracked face.
type Face struct {
	// Valence is the emotional positivity in [-100, 100].
	Valence float64 `json:"valence"`

	// Expression is the dominant expression code.
	Expression Expression `json:"expression"`
}

// Batch is one result callback from the engine. It carries the session
// timestamp of the frame the engine analysed; Faces may be empty.
type Batch struct {
	Timestamp time.Duration `json:"timestamp"`
	Faces     []Face        `json:"faces"`
}
