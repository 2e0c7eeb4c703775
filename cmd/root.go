package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ThatCatDev/tanrenai/launcher/internal/app"
	"github.com/ThatCatDev/tanrenai/launcher/internal/config"
	"github.com/ThatCatDev/tanrenai/launcher/internal/logging"
	"github.com/ThatCatDev/tanrenai/launcher/internal/settings"
)

var rootCmd = &cobra.Command{
	Use:   "llama-launcher",
	Short: "Configure, launch and supervise llama-server",
	Long: "llama-launcher keeps llama-server settings in a JSON file beside the executable, " +
		"builds the server command line from them and supervises the running process.\n\n" +
		"Run without a subcommand to open the terminal UI.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTUI(cmd)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// session bundles what every command needs once flags are parsed.
type session struct {
	opts    *config.Options
	logger  *slog.Logger
	ctrl    *app.Controller
	cleanup func()
	// warning is a recovered settings load problem, nil when none.
	warning error
}

// warn prints the recovered settings problem, if any.
func (s *session) warn(w io.Writer) {
	if s.warning != nil {
		fmt.Fprintf(w, "Warning: %v\n", s.warning)
	}
}

func (s *session) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// newSession resolves launcher options, sets up logging and loads the
// settings file. When terminal is nil log records only go to the log file.
func newSession(cmd *cobra.Command, terminal io.Writer) (*session, error) {
	opts, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := config.EnsureDirs(opts); err != nil {
		return nil, fmt.Errorf("create directories: %w", err)
	}

	logger, cleanup, err := logging.New(&logging.Config{
		Level:      opts.LogLevel,
		LogDir:     opts.LogDir,
		FileOutput: opts.LogFile,
		Terminal:   terminal,
	})
	if err != nil {
		return nil, fmt.Errorf("set up logging: %w", err)
	}

	ctrl, err := app.New(app.Options{
		SettingsPath: opts.SettingsPath,
		AppDir:       opts.AppDir,
		StopGrace:    opts.StopGrace,
		QueueSize:    opts.QueueSize,
		LogOutput:    opts.LogOutput && opts.LogFile,
		Logger:       logger,
	})
	s := &session{opts: opts, logger: logger, ctrl: ctrl, cleanup: cleanup}
	var loadErr *settings.LoadError
	if errors.As(err, &loadErr) {
		s.warning = loadErr
	} else if err != nil {
		cleanup()
		return nil, err
	}
	return s, nil
}
