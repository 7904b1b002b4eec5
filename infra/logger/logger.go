package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	corelogger "github.com/kilianp07/induction/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// Config selects the level, format and optional rotating file of the
// process logs.
type Config struct {
	// Level is one of trace, debug, info, warn, error. Empty means info.
	Level string `json:"level"`
	// Format is "json" or "console". Empty picks console when APP_ENV=dev.
	Format     string `json:"format"`
	File       string `json:"file"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Validate checks the level and format names.
func (c Config) Validate() error {
	if c.Level != "" {
		if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
			return fmt.Errorf("unknown level %q", c.Level)
		}
	}
	switch strings.ToLower(c.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("unknown format %q", c.Format)
	}
	return nil
}

var (
	mu   sync.RWMutex
	base = zerolog.New(defaultWriter(os.Stdout, "")).Level(zerolog.InfoLevel)
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func defaultWriter(out io.Writer, format string) io.Writer {
	if format == "" && strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		format = "console"
	}
	if strings.ToLower(format) == "console" {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return out
}

// Setup replaces the process-wide log output. Loggers returned by New
// after Setup use it. The returned closer releases the log file, if any.
func Setup(cfg Config) (io.Closer, error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg Config, stdout io.Writer) (io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		level, _ = zerolog.ParseLevel(strings.ToLower(cfg.Level))
	}
	var (
		w                = defaultWriter(stdout, cfg.Format)
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
		}
		w = zerolog.MultiLevelWriter(w, lj)
		closer = lj
	}
	mu.Lock()
	base = zerolog.New(w).Level(level)
	mu.Unlock()
	return closer, nil
}

// New returns a Logger tagging every line with the component name.
func New(component string) Logger {
	mu.RLock()
	z := base.With().Timestamp().Str("component", component).Logger()
	mu.RUnlock()
	return &ZerologLogger{log: z}
}
