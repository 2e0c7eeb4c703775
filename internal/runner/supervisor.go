package runner

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultStopGrace is how long Stop waits after the terminate signal before
// killing the process.
const DefaultStopGrace = 5 * time.Second

// State is the supervisor's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return "unknown"
}

// Status is the observed state of one Handle.
type Status int

const (
	StatusRunning Status = iota
	StatusStopped
)

func (s Status) String() string {
	if s == StatusRunning {
		return "running"
	}
	return "stopped"
}

// Config configures a Supervisor.
type Config struct {
	// AppDir is searched first when resolving the executable.
	AppDir string
	// StopGrace bounds each wait in Stop (default DefaultStopGrace).
	StopGrace time.Duration
	// Env holds extra KEY=VALUE pairs for the child.
	Env []string
	// Sink receives process output and lifecycle notices. Required.
	Sink   Sink
	Logger *slog.Logger
}

// Supervisor runs at most one llama-server process at a time.
//
// Starting while a process is starting, running or stopping is rejected
// with ErrAlreadyRunning; the existing process is not touched.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	state   State
	current *Handle
	// settled is closed when the start in progress leaves StateStarting.
	settled chan struct{}
}

// Launch describes one process start.
type Launch struct {
	Executable string
	Args       []string
	// Banner lines go to the sink once the start has been accepted, ahead of
	// any process output.
	Banner []string
}

// NewSupervisor creates an idle Supervisor.
func NewSupervisor(cfg Config) *Supervisor {
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = DefaultStopGrace
	}
	if cfg.Sink == nil {
		cfg.Sink = func(Line) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		logger: logger.With("component", "supervisor"),
	}
}

// Handle is one launched process. It stays valid after the process exits.
type Handle struct {
	ID        string
	PID       int
	Path      string
	Args      []string
	StartedAt time.Time

	sup *Supervisor
	sub *Subprocess

	mu  sync.Mutex
	err error
}

// Status reports running until the process exit has been observed, then
// stopped for good.
func (h *Handle) Status() Status {
	select {
	case <-h.sub.Done():
		return StatusStopped
	default:
		return StatusRunning
	}
}

// Done is closed once the process has exited and its output is forwarded.
func (h *Handle) Done() <-chan struct{} {
	return h.sub.Done()
}

// ExitCode returns the exit code, or -1 while running or after a signal.
func (h *Handle) ExitCode() int {
	return h.sub.ExitCode()
}

// Err returns the terminal error once the process has exited: nil for a
// clean or requested exit, ErrProcessCrashed otherwise.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Stop stops this process. Calling it on a stopped handle is a no-op.
func (h *Handle) Stop() error {
	return h.sup.stop(h)
}

// State returns the supervisor's current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Current returns the active handle, or nil when idle.
func (s *Supervisor) Current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Start resolves executable and launches it with args. Output forwarding
// begins on a background goroutine before Start returns.
func (s *Supervisor) Start(executable string, args []string) (*Handle, error) {
	return s.Launch(Launch{Executable: executable, Args: args})
}

// Launch is Start with banner lines. The banner is only written when the
// supervisor was idle; a rejected launch leaves the sink untouched.
func (s *Supervisor) Launch(l Launch) (*Handle, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	for _, text := range l.Banner {
		s.cfg.Sink(Line{Time: time.Now(), Source: SourceSupervisor, Text: text})
	}
	return s.spawn(l)
}

// begin moves Idle to Starting, or rejects the start.
func (s *Supervisor) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return fmt.Errorf("%w (%s)", ErrAlreadyRunning, s.state)
	}
	s.state = StateStarting
	s.settled = make(chan struct{})
	return nil
}

// settle leaves StateStarting: Running with h, or Idle when h is nil.
func (s *Supervisor) settle(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h == nil {
		s.state = StateIdle
	} else {
		s.state = StateRunning
		s.current = h
	}
	close(s.settled)
}

func (s *Supervisor) spawn(l Launch) (*Handle, error) {
	path, err := ResolveExecutable(l.Executable, s.cfg.AppDir)
	if err != nil {
		s.settle(nil)
		s.notice("Error: %v. Ensure llama-server is in the PATH or next to the launcher.", err)
		return nil, err
	}

	h := &Handle{
		ID:   uuid.NewString(),
		Path: path,
		Args: slices.Clone(l.Args),
		sup:  s,
	}
	h.sub = NewSubprocess(SubprocessConfig{
		BinPath: path,
		Args:    h.Args,
		Env:     s.cfg.Env,
		Sink:    s.cfg.Sink,
		Logger:  s.logger.With("run_id", h.ID),
		OnExit:  func(code int, err error) { s.finish(h, code, err) },
	})

	if err := h.sub.Start(); err != nil {
		s.settle(nil)
		s.notice("Error starting server: %v", err)
		return nil, err
	}
	h.PID = h.sub.Pid()
	h.StartedAt = time.Now()

	s.logger.Info("server started", "run_id", h.ID, "pid", h.PID, "path", path)
	s.notice("Server process started (PID %d)", h.PID)

	s.settle(h)
	go h.sub.Forward()
	return h, nil
}

// Stop stops the current process, if any. It blocks for at most twice the
// stop grace period and is a no-op when nothing is running.
//
// A Stop that arrives while a start is still spawning waits for the spawn and
// then stops the new process, so nothing is left running behind it.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	settled := s.settled
	starting := s.state == StateStarting
	s.mu.Unlock()
	if starting {
		s.logger.Info("stop requested while starting, waiting for spawn")
		<-settled
	}
	return s.stop(s.Current())
}

func (s *Supervisor) stop(h *Handle) error {
	if h == nil {
		return nil
	}
	s.mu.Lock()
	if s.current == h && s.state == StateStopping {
		// Another caller is already stopping it; wait for the same exit.
		s.mu.Unlock()
		select {
		case <-h.Done():
			return nil
		case <-time.After(2 * s.cfg.StopGrace):
			return fmt.Errorf("server (pid %d) still running after stop", h.PID)
		}
	}
	if s.current != h || s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	s.mu.Unlock()

	s.logger.Info("stop requested", "run_id", h.ID, "pid", h.PID)
	s.notice("Server stop requested...")
	return h.sub.GracefulStop(s.cfg.StopGrace)
}

// finish runs on the forwarding goroutine once the process is reaped.
func (s *Supervisor) finish(h *Handle, code int, waitErr error) {
	var err error
	if !h.sub.WasStopped() && code != 0 {
		err = fmt.Errorf("%w: exit code %d", ErrProcessCrashed, code)
		if waitErr != nil {
			err = fmt.Errorf("%w: %v", ErrProcessCrashed, waitErr)
		}
	}
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	s.mu.Lock()
	if s.current == h {
		s.current = nil
		s.state = StateIdle
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("server crashed", "run_id", h.ID, "pid", h.PID, "exit_code", code, "error", waitErr)
		s.notice("Server process crashed (%v)", err)
		return
	}
	s.logger.Info("server exited", "run_id", h.ID, "pid", h.PID, "exit_code", code)
	s.notice("Server process has terminated (exit code %d)", code)
}

func (s *Supervisor) notice(format string, args ...any) {
	s.cfg.Sink(Line{Time: time.Now(), Source: SourceSupervisor, Text: fmt.Sprintf(format, args...)})
}
