package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog.Logger with file output and redaction.
type Logger struct {
	logger   zerolog.Logger
	file     io.Closer
	redactor *Redactor
}

// Config holds logger configuration
type Config struct {
	Level     string // debug, info, warn, error
	File      string // log file path
	Console   bool   // enable console output
	Pretty    bool   // pretty format for console
	Redaction bool   // enable sensitive data redaction
	MaxSize   int    // max size in MB before rotation, 0 disables rotation
	MaxAge    int    // max age in days
	Compress  bool   // compress rotated logs
	// Secrets are exact values masked in every line, such as the bot token.
	Secrets []string
}

// New creates a logger and installs it as the global zerolog logger, so
// packages logging through zerolog/log share its outputs and redaction.
func New(cfg Config) (*Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}

	l := &Logger{}

	out := []io.Writer{}
	if cfg.Console {
		out = append(out, consoleWriter(cfg.Pretty))
	}
	if cfg.File != "" {
		file, err := openLogFile(cfg)
		if err != nil {
			return nil, err
		}
		l.file = file
		out = append(out, file)
	}

	var w io.Writer = os.Stdout
	if len(out) == 1 {
		w = out[0]
	} else if len(out) > 1 {
		w = zerolog.MultiLevelWriter(out...)
	}

	if cfg.Redaction {
		l.redactor = NewRedactor()
		for _, secret := range cfg.Secrets {
			l.redactor.AddSecret(secret)
		}
		w = l.redactor.Wrap(w)
	}

	l.logger = zerolog.New(w).Level(level).With().Timestamp().Logger()
	log.Logger = l.logger

	return l, nil
}

func consoleWriter(pretty bool) io.Writer {
	if !pretty {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
}

// openLogFile opens the log file, rotated by size when MaxSize is set.
func openLogFile(cfg Config) (io.WriteCloser, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if cfg.MaxSize > 0 {
		return newRotatingFile(cfg), nil
	}

	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *Logger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *Logger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *Logger) Error() *zerolog.Event { return l.logger.Error() }

// With creates a child logger with additional context
func (l *Logger) With() zerolog.Context {
	return l.logger.With()
}

// Component returns a child logger tagged with a component name.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.logger.With().Str("component", name).Logger()
}

// GetZerolog returns the underlying zerolog.Logger
func (l *Logger) GetZerolog() zerolog.Logger {
	return l.logger
}

// DefaultConfig returns default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Console:   true,
		Pretty:    true,
		Redaction: true,
		MaxSize:   100,
		MaxAge:    7,
		Compress:  true,
	}
}
