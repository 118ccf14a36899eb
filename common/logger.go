package common

import (
	"github.com/evdnx/gogateway/internal/logutil"
	"github.com/evdnx/golog"
)

// DefaultLogger returns the process-wide shared logger.
func DefaultLogger() *golog.Logger {
	return logutil.Default()
}

// ConfigureLogLevel rebuilds the shared logger at the configured level.
// Runs at startup before any component captures its logger.
func ConfigureLogLevel(name string) error {
	return logutil.SetLevel(name)
}
