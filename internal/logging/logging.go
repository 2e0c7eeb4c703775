package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultFileName is the name of the rotated log file inside the log dir.
const DefaultFileName = "llama-launcher.log"

// Records carrying StreamKey=StreamOutput mirror llama-server output. They
// are written to the log file only; the terminal already shows the output
// itself.
const (
	StreamKey    = "stream"
	StreamOutput = "output"
)

type Config struct {
	Level      string
	LogDir     string
	FileOutput bool
	// Terminal receives human-readable records. Nil disables terminal
	// output, which the TUI needs since it owns the screen.
	Terminal   io.Writer
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// New builds the launcher logger. The returned cleanup closes the log file
// and must be called on exit.
func New(cfg *Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)

	var handlers []slog.Handler
	cleanup := func() {}

	if cfg.Terminal != nil {
		handlers = append(handlers, &fileOnlyFilter{Handler: slog.NewTextHandler(cfg.Terminal, &slog.HandlerOptions{Level: level})})
	}

	if cfg.FileOutput {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return nil, nil, err
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, DefaultFileName),
			MaxSize:    orDefault(cfg.MaxSize, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAge, 14),
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level}))
		cleanup = func() { _ = rotator.Close() }
	}

	switch len(handlers) {
	case 0:
		return slog.New(slog.NewTextHandler(io.Discard, nil)), cleanup, nil
	case 1:
		return slog.New(handlers[0]), cleanup, nil
	}
	return slog.New(slogmulti.Fanout(handlers...)), cleanup, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// fileOnlyFilter drops mirrored server output (StreamKey=StreamOutput).
type fileOnlyFilter struct {
	slog.Handler
	skip bool
}

func isOutput(a slog.Attr) bool {
	return a.Key == StreamKey && a.Value.String() == StreamOutput
}

func (h *fileOnlyFilter) Enabled(ctx context.Context, level slog.Level) bool {
	return !h.skip && h.Handler.Enabled(ctx, level)
}

func (h *fileOnlyFilter) Handle(ctx context.Context, r slog.Record) error {
	if h.skip {
		return nil
	}
	skip := false
	r.Attrs(func(a slog.Attr) bool {
		skip = isOutput(a)
		return !skip
	})
	if skip {
		return nil
	}
	return h.Handler.Handle(ctx, r)
}

func (h *fileOnlyFilter) WithAttrs(attrs []slog.Attr) slog.Handler {
	skip := h.skip || slices.ContainsFunc(attrs, isOutput)
	return &fileOnlyFilter{Handler: h.Handler.WithAttrs(attrs), skip: skip}
}

func (h *fileOnlyFilter) WithGroup(name string) slog.Handler {
	return &fileOnlyFilter{Handler: h.Handler.WithGroup(name), skip: h.skip}
}
