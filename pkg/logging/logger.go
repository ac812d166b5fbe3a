// Package logging holds the zerolog setup shared by the shopfloor core and
// its CLI. Components take a *zerolog.Logger at construction and tag it with
// Component; code that only has a context reaches the logger through Ctx.
//
//	log := logging.Component(logging.Default(), "poller")
//	ctx := logging.WithResource(logging.WithLogger(ctx, log), "production-active")
//	logging.Ctx(ctx).Debug().Msg("Resource updated")
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	mu            sync.RWMutex
	defaultLogger = fromEnvironment()
)

// fromEnvironment builds the logger used before Configure runs: console
// output on a terminal, JSON otherwise, level from LOG_LEVEL or DEBUG.
func fromEnvironment() zerolog.Logger {
	cfg := DefaultConfig()
	cfg.Level = envLevel()
	if os.Getenv("LOG_FORMAT") != "" {
		cfg.Format = os.Getenv("LOG_FORMAT")
	}
	return NewLoggerFromConfig(cfg)
}

func envLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	if os.Getenv("DEBUG") != "" {
		return "debug"
	}
	return "info"
}

// Default returns the process-wide logger.
func Default() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := defaultLogger
	return &l
}

// SetDefault replaces the process-wide logger and zerolog's global one.
func SetDefault(logger zerolog.Logger) {
	mu.Lock()
	defaultLogger = logger
	mu.Unlock()
	log.Logger = logger
}

// Component returns a child of logger tagged with the component name. A nil
// logger means the default.
func Component(logger *zerolog.Logger, name string) *zerolog.Logger {
	if logger == nil {
		logger = Default()
	}
	l := logger.With().Str("component", name).Logger()
	return &l
}

// New creates a JSON logger on w at the global level.
func New(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).Level(zerolog.GlobalLevel()).With().Timestamp().Logger()
}

// Nop returns a logger that discards everything.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func terminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
