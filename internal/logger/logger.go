package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/shopagent/internal/config"
)

// Logger is the process logger. It embeds zerolog.Logger, so Info, Debug
// and friends are available directly.
type Logger struct {
	zerolog.Logger

	file     *os.File
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string    // debug, info, warn, error
	File      string    // optional log file, appended to
	Console   bool      // write to Output
	Pretty    bool      // zerolog console format instead of JSON
	Redaction bool      // mask keys, bearer and payment tokens
	Output    io.Writer // defaults to stderr; stdout carries the agent's answer
}

// FromConfig maps the logging section of the application config.
func FromConfig(c config.LoggingConfig, out io.Writer) Config {
	return Config{
		Level:     c.Level,
		File:      c.File,
		Console:   true,
		Pretty:    c.Pretty,
		Redaction: c.Redaction,
		Output:    out,
	}
}

// New builds the logger and installs it as the zerolog global logger
func New(cfg Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	l := &Logger{}
	var writers []io.Writer

	if cfg.Console {
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		if cfg.Pretty {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
		}
		writers = append(writers, out)
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, l.file)
	}

	var w io.Writer = io.Discard
	if len(writers) == 1 {
		w = writers[0]
	} else if len(writers) > 1 {
		w = zerolog.MultiLevelWriter(writers...)
	}

	if cfg.Redaction {
		l.redactor = NewRedactor()
		w = l.redactor.Wrap(w)
	}

	l.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = l.Logger
	return l, nil
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Component returns a child logger tagged with a component name
func (l *Logger) Component(name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
	}
}
