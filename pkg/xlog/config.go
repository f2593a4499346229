package xlog

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewConfig returns a config with default values: text output on stdout at
// LevelInfo, no file output.
func NewConfig() Config {
	return Config{
		Level:     slog.LevelInfo,
		StdFormat: "text",
		StdWriter: os.Stdout,
		MaxSize:   30,
	}
}

// Config describes how logger handlers are built.
type Config struct {
	// Level is the minimum level emitted.
	Level slog.Level
	// StdFormat selects the standard output format, one of ["text", "json"].
	StdFormat string
	// StdWriter is the standard output writer, defaults to os.Stdout.
	StdWriter io.Writer

	// Path enables rotated file output when non-empty.
	Path string
	// MaxSize is the maximum size in MB of a log file before rotation.
	MaxSize int
	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int
	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int
	// Compress enables gzip compression of rotated files.
	Compress bool
}

// BuildHandler creates a new slog.Handler from the config.
func (c *Config) BuildHandler() slog.Handler {
	lvl := new(slog.LevelVar)
	lvl.Set(c.Level)
	opts := &slog.HandlerOptions{Level: lvl}

	writer := c.StdWriter
	if writer == nil {
		writer = os.Stdout
	}
	if c.Path != "" {
		writer = io.MultiWriter(writer, &lumberjack.Logger{
			Filename:   c.Path,
			MaxSize:    c.MaxSize,
			MaxAge:     c.MaxAge,
			MaxBackups: c.MaxBackups,
			Compress:   c.Compress,
		})
	}

	var h slog.Handler
	if c.StdFormat == "json" {
		h = slog.NewJSONHandler(writer, opts)
	} else {
		h = slog.NewTextHandler(writer, opts)
	}
	return &leveledHandler{Handler: h, level: lvl}
}

// leveledHandler remembers the LevelVar it was built with so the level can
// be changed after construction.
type leveledHandler struct {
	slog.Handler
	level *slog.LevelVar
}

func (h *leveledHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &leveledHandler{Handler: h.Handler.WithAttrs(attrs), level: h.level}
}

func (h *leveledHandler) WithGroup(name string) slog.Handler {
	return &leveledHandler{Handler: h.Handler.WithGroup(name), level: h.level}
}

var handlerLevelMu sync.Mutex

// SetHandlerLevel changes the level of a handler built by BuildHandler.
// Handlers from other sources are left untouched.
func SetHandlerLevel(h slog.Handler, lvl slog.Level) {
	handlerLevelMu.Lock()
	defer handlerLevelMu.Unlock()
	if lh, ok := h.(*leveledHandler); ok {
		lh.level.Set(lvl)
	}
}

// LevelDebug aliases slog.LevelDebug for callers that do not import slog.
const LevelDebug = slog.LevelDebug
