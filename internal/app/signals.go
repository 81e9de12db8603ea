package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"lingo/internal/logging"
)

// ForcedShutdownTimeout is how long a signalled shutdown may take before the
// process exits anyway.
const ForcedShutdownTimeout = 10 * time.Second

// setupSignalHandler cancels the app context on SIGINT, SIGTERM or SIGQUIT so
// running commands unwind and restore the terminal. The returned function
// stops listening.
func (a *App) setupSignalHandler() func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigChan:
			logging.Info("received signal, shutting down", "signal", sig.String())

			a.mu.Lock()
			a.forceExit = time.AfterFunc(ForcedShutdownTimeout, func() {
				logging.Warn("forced shutdown due to timeout")
				os.Exit(1)
			})
			a.mu.Unlock()

			a.cancel()

		case <-done:
		case <-a.ctx.Done():
		}
	}()

	return func() {
		signal.Stop(sigChan)
		close(done)
	}
}
