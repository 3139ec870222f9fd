package eventfd

import (
	"sync"

	"github.com/joeycumines/logiface"
)

var (
	// Global logger for package-level functions (Create, CreateContext).
	globalLogger struct {
		sync.RWMutex
		logger *logiface.Logger[logiface.Event]
	}
)

// SetLogger sets the logger used by package-level functions. A nil logger
// disables logging.
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

// getLogger safely retrieves the global logger, which may be nil.
func getLogger() *logiface.Logger[logiface.Event] {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	return globalLogger.logger
}
