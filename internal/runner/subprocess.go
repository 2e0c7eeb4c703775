package runner

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// maxLineBytes caps a single output line; longer lines are split.
const maxLineBytes = 1 << 20

// Subprocess manages the lifecycle of one llama-server child process: start
// with stdout and stderr joined on a single pipe, line forwarding, exit
// detection, and graceful shutdown.
type Subprocess struct {
	cmd    *exec.Cmd
	output *os.File // read end of the combined output pipe
	mu     sync.Mutex

	binPath string
	args    []string
	env     []string
	label   string // log prefix, e.g. "llama-server"
	sink    Sink
	logger  *slog.Logger
	onExit  func(code int, err error)

	stopped  bool          // true after GracefulStop
	exitCode int           // -1 until the process has been reaped
	doneCh   chan struct{} // closed once output is drained and the process reaped
}

// SubprocessConfig holds everything needed to start a llama-server subprocess.
type SubprocessConfig struct {
	BinPath string   // resolved executable
	Args    []string // args to pass after the binary path
	Env     []string // extra KEY=VALUE pairs on top of the launcher's environment
	Label   string   // log prefix (default "llama-server")
	Sink    Sink     // receives every output line; may be nil
	Logger  *slog.Logger

	// OnExit runs on the forwarding goroutine after the process has been
	// reaped and before Done is closed.
	OnExit func(code int, err error)
}

// NewSubprocess creates a Subprocess but does not start it. Call Start next.
func NewSubprocess(cfg SubprocessConfig) *Subprocess {
	label := cfg.Label
	if label == "" {
		label = "llama-server"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// llama.cpp release archives ship their shared libraries next to the
	// binary.
	env := os.Environ()
	if v := libraryPathVar(); v != "" {
		dir := filepath.Dir(cfg.BinPath)
		if cur := os.Getenv(v); cur != "" {
			dir += string(os.PathListSeparator) + cur
		}
		env = append(env, v+"="+dir)
	}
	env = append(env, cfg.Env...)

	return &Subprocess{
		binPath:  cfg.BinPath,
		args:     cfg.Args,
		env:      env,
		label:    label,
		sink:     cfg.Sink,
		logger:   logger.With("process", label),
		onExit:   cfg.OnExit,
		exitCode: -1,
		doneCh:   make(chan struct{}),
	}
}

// Start launches the process. Output is not read until Forward runs, so the
// caller can finish its own bookkeeping first; the pipe buffers meanwhile.
func (s *Subprocess) Start() error {
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create output pipe: %w", err)
	}

	s.cmd = exec.Command(s.binPath, s.args...)
	s.cmd.Env = s.env
	s.cmd.Stdout = pw
	s.cmd.Stderr = pw
	configureCmd(s.cmd)

	s.logger.Info("starting", "path", s.binPath, "args", len(s.args))

	if err := s.cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return fmt.Errorf("failed to start %s: %w", s.label, err)
	}
	// The child holds its own copy; ours must go so EOF arrives when it exits.
	pw.Close()
	s.output = pr
	return nil
}

// Forward reads the combined output until the child closes it, hands each
// line to the sink, then reaps the process. It returns when the process has
// exited; run it on its own goroutine.
func (s *Subprocess) Forward() {
	defer close(s.doneCh)
	defer s.output.Close()

	scanner := bufio.NewScanner(s.output)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(splitLines)
	for scanner.Scan() {
		if s.sink != nil {
			s.sink(Line{Time: time.Now(), Source: SourceProcess, Text: decodeLine(scanner.Bytes())})
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("output read failed", "error", err)
	}

	waitErr := s.cmd.Wait()
	code := s.cmd.ProcessState.ExitCode()

	s.mu.Lock()
	s.exitCode = code
	s.mu.Unlock()

	s.logger.Info("process exited", "pid", s.cmd.Process.Pid, "exit_code", code)
	if s.onExit != nil {
		s.onExit(code, waitErr)
	}
}

// Pid returns the child's process ID, or 0 before Start.
func (s *Subprocess) Pid() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Done returns a channel that is closed when the subprocess has exited and
// all of its output has been forwarded.
func (s *Subprocess) Done() <-chan struct{} {
	return s.doneCh
}

// ExitCode returns the process exit code, or -1 if not yet exited or killed
// by a signal.
func (s *Subprocess) ExitCode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode
}

// WasStopped returns true if GracefulStop was called (i.e., this was an
// intentional shutdown).
func (s *Subprocess) WasStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// GracefulStop asks the process to exit, waits up to grace, then kills it
// and waits up to grace again. It is safe to call on a process that has
// already exited.
func (s *Subprocess) GracefulStop(grace time.Duration) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	select {
	case <-s.doneCh:
		return nil
	default:
	}

	pid := s.cmd.Process.Pid
	s.logger.Info("sending terminate signal", "pid", pid)
	if err := terminate(s.cmd.Process); err != nil {
		// Usually means it is already on its way out; Done settles it.
		s.logger.Debug("terminate signal failed", "pid", pid, "error", err)
	}

	select {
	case <-s.doneCh:
		s.logger.Info("process exited cleanly", "pid", pid)
		return nil
	case <-time.After(grace):
	}

	s.logger.Warn("process did not exit after terminate signal, killing", "pid", pid, "grace", grace)
	if err := kill(s.cmd.Process); err != nil {
		s.logger.Debug("kill failed", "pid", pid, "error", err)
	}

	select {
	case <-s.doneCh:
		return nil
	case <-time.After(grace):
		return fmt.Errorf("%s (pid %d) still running after kill", s.label, pid)
	}
}

// splitLines is bufio.ScanLines with a length cap, so one runaway line
// cannot stop the reader and leave the child blocked on a full pipe.
func splitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte{'\r'}), nil
	}
	if len(data) >= maxLineBytes {
		return maxLineBytes, data[:maxLineBytes], nil
	}
	if atEOF {
		return len(data), bytes.TrimSuffix(data, []byte{'\r'}), nil
	}
	return 0, nil, nil
}

// decodeLine returns UTF-8 text for a raw output line. Bytes that are not
// valid UTF-8 (typically a Windows code page) are read as Latin-1.
func decodeLine(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("\uFFFD")))
	}
	return string(out)
}
