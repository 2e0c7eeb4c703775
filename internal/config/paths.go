package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppDir returns the directory holding the launcher executable. The settings
// file lives here so that a portable install keeps its configuration with it.
func AppDir() string {
	exe, err := os.Executable()
	if err != nil {
		wd, _ := os.Getwd()
		return wd
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// DataDir returns the default data directory for the launcher.
// Windows: %LOCALAPPDATA%\llama-launcher
// Linux/Mac: ~/.local/share/llama-launcher
func DataDir() string {
	if dir := os.Getenv("LLAMA_LAUNCHER_DATA_DIR"); dir != "" {
		return dir
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "llama-launcher")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "llama-launcher")
}

// LogDir returns the directory where rotated log files are written.
func LogDir() string {
	return filepath.Join(DataDir(), "logs")
}

// EnsureDirs creates the required directories if they don't exist.
func EnsureDirs(opts *Options) error {
	dirs := []string{filepath.Dir(opts.SettingsPath)}
	if opts.LogFile {
		dirs = append(dirs, opts.LogDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
