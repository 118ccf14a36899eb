// Package logutil owns construction of the process-wide logger.
package logutil

import (
	"fmt"
	"sync"

	"github.com/evdnx/golog"
)

var (
	mu     sync.Mutex
	shared *golog.Logger
)

// ParseLevel maps a configuration level name onto a golog level.
// Unknown names report false.
func ParseLevel(name string) (golog.Level, bool) {
	switch name {
	case "debug":
		return golog.DebugLevel, true
	case "info":
		return golog.InfoLevel, true
	case "warning":
		return golog.WarnLevel, true
	case "error":
		return golog.ErrorLevel, true
	case "fatal":
		return golog.FatalLevel, true
	}
	return golog.InfoLevel, false
}

func newLogger(level golog.Level) (*golog.Logger, error) {
	return golog.NewLogger(
		golog.WithStdOutProvider(golog.ConsoleEncoder),
		golog.WithLevel(level),
	)
}

// Default returns the shared logger, constructing it at info level on
// first use.
func Default() *golog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if shared == nil {
		logger, err := newLogger(golog.InfoLevel)
		if err != nil {
			panic(fmt.Sprintf("failed to initialize logger: %v", err))
		}
		shared = logger
	}
	return shared
}

// SetLevel rebuilds the shared logger at the named level. Loggers
// already handed out keep the level they were built with, so this runs
// before components capture theirs.
func SetLevel(name string) error {
	level, ok := ParseLevel(name)
	if !ok {
		return fmt.Errorf("unknown log level %q", name)
	}
	logger, err := newLogger(level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	mu.Lock()
	shared = logger
	mu.Unlock()
	return nil
}
