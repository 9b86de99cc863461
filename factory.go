package monitor

import (
	"reflect"
	"sync/atomic"

	"go.uber.org/zap"
)

// Process-wide state. Both slots are swapped atomically; a Build loads the
// sanitizer exactly once.
var (
	globalSanitizer atomic.Pointer[sanitizerSlot]
	globalLogger    atomic.Pointer[zap.Logger]
	nopLogger       = zap.NewNop()
)

type sanitizerSlot struct {
	sanitizer Sanitizer
}

// SetConfigSanitizer installs the sanitizer applied by every subsequent
// Build and returns the one it replaced. Passing nil removes it, after which
// identifiers are kept verbatim. Configs built earlier are not affected.
//
// The slot is shared by the whole process; tests that set it should restore
// the previous value when they finish.
func SetConfigSanitizer(s Sanitizer) Sanitizer {
	var next *sanitizerSlot
	if s != nil {
		next = &sanitizerSlot{sanitizer: s}
	}

	prev := globalSanitizer.Swap(next)

	if s != nil {
		logger().Info("config sanitizer installed",
			zap.Stringer("sanitizer", reflect.TypeOf(s)))
	} else if prev != nil {
		logger().Info("config sanitizer removed")
	}

	if prev == nil {
		return nil
	}
	return prev.sanitizer
}

// ConfigSanitizer returns the installed sanitizer, or nil
func ConfigSanitizer() Sanitizer {
	if slot := globalSanitizer.Load(); slot != nil {
		return slot.sanitizer
	}
	return nil
}

// SetLogger sets the logger used by the package. nil disables logging.
func SetLogger(l *zap.Logger) {
	globalLogger.Store(l)
}

func logger() *zap.Logger {
	if l := globalLogger.Load(); l != nil {
		return l
	}
	return nopLogger
}
