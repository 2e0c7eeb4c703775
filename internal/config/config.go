package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ThatCatDev/tanrenai/launcher/internal/runner"
	"github.com/ThatCatDev/tanrenai/launcher/internal/settings"
)

// EnvPrefix prefixes environment overrides, e.g. LLAMA_LAUNCHER_STOP_GRACE.
const EnvPrefix = "LLAMA_LAUNCHER"

// Option keys shared by flags, environment variables and viper.
const (
	KeySettings      = "settings"
	KeyLogDir        = "log_dir"
	KeyLogLevel      = "log_level"
	KeyLogFile       = "log_file"
	KeyLogOutput     = "log_output"
	KeyStopGrace     = "stop_grace"
	KeyQueueSize     = "queue_size"
	KeyDrainInterval = "drain_interval"
)

// Options holds launcher-level configuration. These are not llama-server
// settings; those live in the settings file.
type Options struct {
	SettingsPath  string        // JSON settings file
	AppDir        string        // searched first for llama-server
	LogDir        string        // rotated log files
	LogLevel      string        // debug, info, warn, error
	LogFile       bool          // write a log file at all
	LogOutput     bool          // mirror server output into the log file
	StopGrace     time.Duration // wait after SIGTERM before SIGKILL
	QueueSize     int           // undrained output lines kept in memory
	DrainInterval time.Duration // how often the TUI drains output
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() *Options {
	appDir := AppDir()
	return &Options{
		SettingsPath:  filepath.Join(appDir, settings.FileName),
		AppDir:        appDir,
		LogDir:        LogDir(),
		LogLevel:      "info",
		LogFile:       true,
		LogOutput:     true,
		StopGrace:     runner.DefaultStopGrace,
		QueueSize:     runner.DefaultQueueSize,
		DrainInterval: 100 * time.Millisecond,
	}
}

// RegisterFlags adds the launcher options to a flag set.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultOptions()
	fs.StringP(KeySettings, "c", d.SettingsPath, "settings file")
	fs.String(strings.ReplaceAll(KeyLogDir, "_", "-"), d.LogDir, "log directory")
	fs.String(strings.ReplaceAll(KeyLogLevel, "_", "-"), d.LogLevel, "log level (debug, info, warn, error)")
	fs.Bool(strings.ReplaceAll(KeyLogFile, "_", "-"), d.LogFile, "write a rotating log file")
	fs.Bool(strings.ReplaceAll(KeyLogOutput, "_", "-"), d.LogOutput, "copy server output into the log file")
	fs.Duration(strings.ReplaceAll(KeyStopGrace, "_", "-"), d.StopGrace, "time to wait for a graceful stop before killing")
	fs.Int(strings.ReplaceAll(KeyQueueSize, "_", "-"), d.QueueSize, "maximum buffered output lines")
	fs.Duration(strings.ReplaceAll(KeyDrainInterval, "_", "-"), d.DrainInterval, "output refresh interval in the TUI")
}

// Load resolves Options from defaults, LLAMA_LAUNCHER_* environment
// variables and the given flags, in increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Options, error) {
	v := viper.New()
	d := DefaultOptions()

	v.SetDefault(KeySettings, d.SettingsPath)
	v.SetDefault(KeyLogDir, d.LogDir)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFile, d.LogFile)
	v.SetDefault(KeyLogOutput, d.LogOutput)
	v.SetDefault(KeyStopGrace, d.StopGrace)
	v.SetDefault(KeyQueueSize, d.QueueSize)
	v.SetDefault(KeyDrainInterval, d.DrainInterval)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for _, key := range []string{KeySettings, KeyLogDir, KeyLogLevel, KeyLogFile, KeyLogOutput, KeyStopGrace, KeyQueueSize, KeyDrainInterval} {
			if f := fs.Lookup(strings.ReplaceAll(key, "_", "-")); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", f.Name, err)
				}
			}
		}
	}

	opts := &Options{
		SettingsPath:  v.GetString(KeySettings),
		AppDir:        d.AppDir,
		LogDir:        v.GetString(KeyLogDir),
		LogLevel:      v.GetString(KeyLogLevel),
		LogFile:       v.GetBool(KeyLogFile),
		LogOutput:     v.GetBool(KeyLogOutput),
		StopGrace:     v.GetDuration(KeyStopGrace),
		QueueSize:     v.GetInt(KeyQueueSize),
		DrainInterval: v.GetDuration(KeyDrainInterval),
	}

	if opts.SettingsPath == "" {
		return nil, fmt.Errorf("settings path must not be empty")
	}
	if opts.StopGrace <= 0 {
		return nil, fmt.Errorf("stop grace must be positive, got %s", opts.StopGrace)
	}
	if opts.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", opts.QueueSize)
	}
	if opts.DrainInterval <= 0 {
		opts.DrainInterval = d.DrainInterval
	}
	return opts, nil
}
