package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" warn ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewTerminalOnly(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New(&Config{Level: "info", Terminal: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	logger.Debug("hidden")
	logger.Info("shown", "component", "test")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "component=test") {
		t.Errorf("terminal output = %q", out)
	}
}

func TestNewFansOutToFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	var buf bytes.Buffer
	logger, cleanup, err := New(&Config{Level: "debug", LogDir: dir, FileOutput: true, Terminal: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("server started", "pid", 42)
	cleanup()

	if !strings.Contains(buf.String(), "server started") {
		t.Errorf("terminal missing record: %q", buf.String())
	}

	data, err := os.ReadFile(filepath.Join(dir, DefaultFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &rec); err != nil {
		t.Fatalf("log file is not JSON lines: %v\n%s", err, data)
	}
	if rec["msg"] != "server started" || rec["pid"] != float64(42) {
		t.Errorf("file record = %v", rec)
	}
}

func TestServerOutputSkipsTerminal(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	logger, cleanup, err := New(&Config{Level: "info", LogDir: dir, FileOutput: true, Terminal: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.With("component", "llama-server", StreamKey, StreamOutput).Info("llama_model_loader: loaded meta data")
	logger.With("component", "supervisor").Info("server started")
	logger.Info("inline output", StreamKey, StreamOutput)
	cleanup()

	if strings.Contains(buf.String(), "llama_model_loader") || strings.Contains(buf.String(), "inline output") {
		t.Errorf("server output reached the terminal: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "server started") {
		t.Errorf("supervisor record missing from terminal: %q", buf.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, DefaultFileName))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "llama_model_loader") {
		t.Errorf("server output missing from log file:\n%s", data)
	}
}

func TestNewWithoutOutputsDiscards(t *testing.T) {
	logger, cleanup, err := New(&Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()
	logger.Info("nowhere")
}

func TestProcessLifecycleReachesTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := New(&Config{Level: "info", Terminal: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer cleanup()

	// The supervisor's per-run logger chain, down to the child process.
	proc := logger.With("component", "supervisor").With("run_id", "r1").With("process", "llama-server")
	proc.Info("control line")
	proc.Warn("process did not exit after terminate signal, killing", "pid", 42)

	out := buf.String()
	for _, want := range []string{"control line", "killing", "process=llama-server"} {
		if !strings.Contains(out, want) {
			t.Errorf("terminal missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "component=") != 2 {
		t.Errorf("each record should carry a single component:\n%s", out)
	}
}
