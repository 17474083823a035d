package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownSignals end the process gracefully.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// SignalContext returns a context cancelled on the first SIGINT or SIGTERM.
// A second signal exits immediately with status 1, for when graceful
// shutdown hangs. Call stop to release the signal handler.
func SignalContext(parent context.Context) (ctx context.Context, stop context.CancelFunc) {
	return signalContext(parent, func() { os.Exit(ExitFailure) })
}

func signalContext(parent context.Context, forceExit func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stopped := make(chan struct{})
	var once sync.Once

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, shutdownSignals...)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("received shutdown signal, press Ctrl+C again to force exit", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigChan:
			slog.Warn("forced exit", "signal", sig.String())
			forceExit()
		case <-stopped:
		}
	}()

	return ctx, func() {
		once.Do(func() { close(stopped) })
		cancel()
	}
}
