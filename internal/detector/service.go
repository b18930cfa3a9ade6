package detector

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

const serviceScript = "affect_service.py"

// ServiceOptions customise how the affect service process is launched.
type ServiceOptions struct {
	// Command builds the process to run. Defaults to the discovered Python
	// interpreter running affect_service.py.
	Command func() (*exec.Cmd, error)

	// Encode turns a frame into the JPEG payload. Defaults to gocv.
	Encode func(img image.Image) ([]byte, error)

	// ResultBuffer is the capacity of the results channel (default: 16).
	ResultBuffer int

	// StopTimeout bounds how long Close waits for the process to exit after
	// its stdin is closed before killing it (default: 3s).
	StopTimeout time.Duration
}

// DefaultStopTimeout is how long Close waits for the service to exit.
const DefaultStopTimeout = 3 * time.Second

// ServiceEngine implements Engine using an external affect service process.
// Frames are written to the process stdin; results are read from its stdout
// as JSON lines and may arrive at any time.
type ServiceEngine struct {
	config  Config
	opts    ServiceOptions
	mu      sync.Mutex // guards the lifecycle fields, never held while writing
	writeMu sync.Mutex // serialises frame records on stdin
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	results chan Batch
	readWg  sync.WaitGroup
	started bool
	closed  bool
}

// NewServiceEngine creates a new service engine. The process is not started
// until Start is called.
func NewServiceEngine(config Config, opts ServiceOptions) (*ServiceEngine, error) {
	if opts.Command == nil {
		if findServiceScript() == "" {
			return nil, fmt.Errorf("%s not found", serviceScript)
		}
		opts.Command = defaultServiceCommand
	}
	if opts.Encode == nil {
		opts.Encode = encodeJPEG
	}
	if opts.ResultBuffer <= 0 {
		opts.ResultBuffer = 16
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}

	return &ServiceEngine{
		config:  config,
		opts:    opts,
		results: make(chan Batch, opts.ResultBuffer),
	}, nil
}

// ServiceFactory returns a Factory producing service engines with opts.
func ServiceFactory(opts ServiceOptions) Factory {
	return func(cfg Config) (Engine, error) {
		return NewServiceEngine(cfg, opts)
	}
}

// Start launches the process and sends the handshake.
func (e *ServiceEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.started {
		return nil
	}

	cmd, err := e.opts.Command()
	if err != nil {
		return fmt.Errorf("build service command: %w", err)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start affect service: %w", err)
	}

	hello := handshake{
		License:     e.config.License,
		MaxFaces:    e.config.MaxFaces,
		Valence:     e.config.Valence,
		Expressions: e.config.Expressions,
	}
	if err := json.NewEncoder(stdin).Encode(hello); err != nil {
		stdin.Close()
		cmd.Wait()
		return fmt.Errorf("write handshake: %w", err)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.started = true

	e.readWg.Add(1)
	go e.readResults(bufio.NewReader(stdout))

	return nil
}

// Process encodes img and writes it to the service. It returns once the
// frame is written; the analysis arrives later on Results. A write blocked
// on a service that stopped reading fails once Close runs.
func (e *ServiceEngine) Process(img image.Image, ts time.Duration) error {
	data, err := e.opts.Encode(img)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	e.mu.Lock()
	closed, started, stdin := e.closed, e.started, e.stdin
	e.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if !started {
		return fmt.Errorf("affect service not started")
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := writeFrame(stdin, ts, data); err != nil {
		if e.isClosed() {
			return ErrClosed
		}
		return err
	}
	return nil
}

// Results returns the channel of result batches. It is closed once the
// process output ends.
func (e *ServiceEngine) Results() <-chan Batch {
	return e.results
}

// Close shuts down the service process. Closing stdin asks the service to
// exit; if it is still running after StopTimeout it is killed.
func (e *ServiceEngine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	started := e.started
	e.mu.Unlock()

	if !started {
		close(e.results)
		return nil
	}

	e.stdin.Close()

	drained := make(chan struct{})
	go func() {
		e.readWg.Wait()
		close(drained)
	}()

	killed := false
	select {
	case <-drained:
	case <-time.After(e.opts.StopTimeout):
		log.WithField("timeout", e.opts.StopTimeout).Warn("Affect service did not exit, killing it")
		if err := e.cmd.Process.Kill(); err != nil {
			log.WithError(err).Error("Killing affect service failed")
		}
		killed = true
		<-drained
	}
	close(e.results)

	err := e.cmd.Wait()
	if killed {
		return nil
	}
	return err
}

func (e *ServiceEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *ServiceEngine) readResults(r *bufio.Reader) {
	defer e.readWg.Done()

	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			batch, perr := parseResult(line)
			if perr != nil {
				log.WithError(perr).Warn("Discarding malformed affect service response")
			} else {
				select {
				case e.results <- batch:
				default:
					log.WithField("timestamp", batch.Timestamp).Warn("Result consumer is lagging, dropping batch")
				}
			}
		}
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Error("Reading affect service output failed")
			}
			return
		}
	}
}

type handshake struct {
	License     string `json:"license"`
	MaxFaces    int    `json:"max_faces"`
	Valence     bool   `json:"valence"`
	Expressions bool   `json:"expressions"`
}

type jsonResult struct {
	TimestampUS int64      `json:"timestamp_us"`
	Faces       []jsonFace `json:"faces"`
}

type jsonFace struct {
	Valence    float64 `json:"valence"`
	Expression string  `json:"expression"`
}

// writeFrame writes one frame record: payload length (4 bytes), session
// timestamp in microseconds (8 bytes), then the JPEG payload. Integers are big-endian.
func writeFrame(w io.Writer, ts time.Duration, data []byte) error {
	header := make([]byte, 12)
	binary.BigEndian.PutUint32(header[:4], uint32(len(data)))
	binary.BigEndian.PutUint64(header[4:], uint64(ts.Microseconds()))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

func parseResult(line []byte) (Batch, error) {
	var res jsonResult
	if err := json.Unmarshal(line, &res); err != nil {
		return Batch{}, fmt.Errorf("parse response: %w", err)
	}

	batch := Batch{
		Timestamp: time.Duration(res.TimestampUS) * time.Microsecond,
		Faces:     make([]Face, len(res.Faces)),
	}
	for i, f := range res.Faces {
		batch.Faces[i] = Face{Valence: f.Valence, Expression: Expression(f.Expression)}
	}
	return batch, nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	return append([]byte(nil), buf.GetBytes()...), nil
}

func defaultServiceCommand() (*exec.Cmd, error) {
	scriptPath := findServiceScript()
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", serviceScript)
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	return exec.Command(pythonPath, scriptPath), nil
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	return firstExisting(
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".emocall", "scripts", serviceScript),
	)
}

// findVenvPython looks for a Python interpreter in a virtual environment
// next to the working directory, the executable or ~/.emocall.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	return firstExisting(
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".emocall/venv/bin/python"),
	)
}

func firstExisting(candidates ...string) string {
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if abs, err := filepath.Abs(path); err == nil {
				return abs
			}
			return path
		}
	}
	return ""
}
