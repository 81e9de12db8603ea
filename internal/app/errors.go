package app

import (
	"fmt"
	"runtime/debug"

	"lingo/internal/logging"
)

// runWithRecovery runs fn, turning a panic into an error so deferred cleanup
// still runs and the terminal is restored.
func runWithRecovery(operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error("panic recovered", "operation", operation, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic in %s: %v", operation, r)
		}
	}()

	return fn()
}
