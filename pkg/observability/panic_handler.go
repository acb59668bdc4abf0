package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverToError converts a recovered panic value into an error, logging
// the panic with its full stack trace. Pass the result of recover()
// directly; a nil value returns nil.
//
//	defer func() {
//		if perr := observability.RecoverToError(logger, "worker", recover()); perr != nil {
//			err = perr
//		}
//	}()
func RecoverToError(logger *Logger, context string, r interface{}) error {
	if r == nil {
		return nil
	}
	logger.WithField("panic", r).
		WithField("stack", string(debug.Stack())).
		WithField("context", context).
		Error("PANIC recovered")
	return fmt.Errorf("panic: %v", r)
}
