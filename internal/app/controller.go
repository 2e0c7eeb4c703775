package app

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ThatCatDev/tanrenai/launcher/internal/logging"
	"github.com/ThatCatDev/tanrenai/launcher/internal/runner"
	"github.com/ThatCatDev/tanrenai/launcher/internal/settings"
)

// Options configures a Controller.
type Options struct {
	SettingsPath string
	AppDir       string
	StopGrace    time.Duration
	QueueSize    int
	// LogOutput copies every server output line into Logger at info level.
	LogOutput bool
	// Env holds extra KEY=VALUE pairs for the child.
	Env    []string
	Logger *slog.Logger
}

// Controller owns the live settings record and the process supervisor. The
// front-ends (headless start, the config commands and the TUI) talk only to
// it.
type Controller struct {
	path   string
	logger *slog.Logger
	sup    *runner.Supervisor
	queue  *runner.Queue

	mu     sync.Mutex
	record *settings.Record
	saved  *settings.Record
}

// New creates a Controller and loads the settings file. The Controller is
// always usable; a non-nil error reports a settings file that was corrupt or
// held invalid fields and has been replaced by defaults (see
// settings.LoadError).
func New(opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		path:   opts.SettingsPath,
		logger: logger.With("component", "controller"),
		queue:  runner.NewQueue(opts.QueueSize),
	}

	sink := c.queue.Push
	if opts.LogOutput {
		out := logger.With("component", "llama-server", logging.StreamKey, logging.StreamOutput)
		sink = func(l runner.Line) {
			c.queue.Push(l)
			if l.Source == runner.SourceProcess {
				out.Info(l.Text)
			}
		}
	}

	c.sup = runner.NewSupervisor(runner.Config{
		AppDir:    opts.AppDir,
		StopGrace: opts.StopGrace,
		Env:       opts.Env,
		Sink:      sink,
		Logger:    logger,
	})

	err := c.Reload()
	return c, err
}

// Path returns the settings file location.
func (c *Controller) Path() string { return c.path }

// Settings returns a copy of the live record.
func (c *Controller) Settings() *settings.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Clone()
}

// Dirty reports whether the live record differs from what is on disk.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.record.Equal(c.saved)
}

// Set parses text for the field key and stores it.
func (c *Controller) Set(key, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Set(key, text)
}

// SetValue stores an already typed value.
func (c *Controller) SetValue(key string, value any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.SetValue(key, value)
}

// Reset restores a field to its default.
func (c *Controller) Reset(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Reset(key)
}

// Reload replaces the live record with the contents of the settings file.
// Unsaved edits are lost.
func (c *Controller) Reload() error {
	r, err := settings.Load(c.path)
	c.mu.Lock()
	c.record = r
	c.saved = r.Clone()
	c.mu.Unlock()
	if err != nil {
		c.logger.Warn("settings reset to defaults", "path", c.path, "error", err)
		return err
	}
	c.logger.Debug("settings loaded", "path", c.path)
	return nil
}

// Save writes the live record to the settings file.
func (c *Controller) Save() error {
	c.mu.Lock()
	r := c.record.Clone()
	c.mu.Unlock()

	if err := settings.Save(r, c.path); err != nil {
		c.logger.Error("save settings", "path", c.path, "error", err)
		return err
	}
	c.mu.Lock()
	c.saved = r
	c.mu.Unlock()
	c.logger.Info("settings saved", "path", c.path)
	return nil
}

func (c *Controller) Arguments() []settings.Argument {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.Arguments()
}

func (c *Controller) AddArgument(value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.AddArgument(value)
}

func (c *Controller) RemoveArgument(i int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.RemoveArgument(i)
}

func (c *Controller) SetArgumentEnabled(i int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.SetArgumentEnabled(i, enabled)
}

func (c *Controller) EditArgument(i int, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record.EditArgument(i, value)
}

// Command returns the executable and argument vector the live record
// would launch.
func (c *Controller) Command() (string, []string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := settings.Validate(c.record); err != nil {
		return "", nil, err
	}
	return settings.ServerPath(c.record), settings.Args(c.record), nil
}

// Preview renders the command line without launching anything.
func (c *Controller) Preview() (string, error) {
	exe, args, err := c.Command()
	if err != nil {
		return "", err
	}
	return settings.Preview(exe, args), nil
}

// Start launches llama-server with the live settings. The command line is
// pushed to the output queue once the supervisor has accepted the start.
func (c *Controller) Start() (*runner.Handle, error) {
	exe, args, err := c.Command()
	if err != nil {
		return nil, err
	}
	return c.sup.Launch(runner.Launch{
		Executable: exe,
		Args:       args,
		Banner: []string{
			"Starting server with command: " + settings.Preview(exe, args),
			strings.Repeat("=", 80),
		},
	})
}

// Stop stops the running server. It is a no-op when nothing runs.
func (c *Controller) Stop() error {
	return c.sup.Stop()
}

// Shutdown stops any running server before the launcher exits.
// A start still spawning is waited for and then stopped.
func (c *Controller) Shutdown() error {
	if c.sup.State() == runner.StateIdle {
		return nil
	}
	c.logger.Info("stopping server on exit")
	return c.sup.Stop()
}

func (c *Controller) State() runner.State { return c.sup.State() }

// Current returns the running process, or nil.
func (c *Controller) Current() *runner.Handle { return c.sup.Current() }

// Drain returns the output lines gathered since the last call.
func (c *Controller) Drain() []runner.Line { return c.queue.Drain() }

// Ready is signalled after new output arrives.
func (c *Controller) Ready() <-chan struct{} { return c.queue.Ready() }

// Dropped counts output lines discarded because nobody drained them in time.
func (c *Controller) Dropped() uint64 { return c.queue.Dropped() }

// ServerURL is where the server's web UI will be reachable.
func (c *Controller) ServerURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return settings.ServerURL(c.record)
}
