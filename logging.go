// Structured logging for carrier/engine/scheduler state transitions.
package carrier

import (
	"sync"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Event is the concrete logiface event type used throughout this package.
type Event = stumpy.Event

var (
	globalLogger atomic.Pointer[logiface.Logger[*Event]]
	loggerMu     sync.Mutex
)

func init() {
	globalLogger.Store(newDefaultLogger())
}

func newDefaultLogger() *logiface.Logger[*Event] {
	// Level disabled: every call site can unconditionally build a chain
	// without guarding on a nil logger.
	return logiface.New[*Event](
		logiface.WithLevel[*Event](logiface.LevelDisabled),
		stumpy.WithStumpy(),
	)
}

// SetLogger installs l as the package-level logger used for the carrier
// and engine events this package logs (spawn, yield, steal, steal
// contention, destroy, shutdown). Passing nil restores the
// default (silent) logger. Safe for concurrent use, including while other
// goroutines are logging.
func SetLogger(l *logiface.Logger[*Event]) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		l = newDefaultLogger()
	}
	globalLogger.Store(l)
}

// NewJSONLogger builds a logiface.Logger that writes zero-allocation JSON
// lines through stumpy, at the given minimum level. Intended for use with
// SetLogger, e.g. SetLogger(carrier.NewJSONLogger(logiface.LevelDebug,
// stumpy.WithWriter(os.Stderr))).
func NewJSONLogger(level logiface.Level, options ...stumpy.Option) *logiface.Logger[*Event] {
	return logiface.New[*Event](
		logiface.WithLevel[*Event](level),
		stumpy.WithStumpy(options...),
	)
}

// logger returns the currently installed package-level logger.
func logger() *logiface.Logger[*Event] {
	return globalLogger.Load()
}
