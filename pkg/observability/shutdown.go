package observability

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

// ShutdownManager drains the primary HTTP server on SIGINT/SIGTERM and then
// runs registered shutdown functions in registration order. Ordering is
// deliberate: callers register dependents before their dependencies (the
// sidecar server before the store, the store before telemetry exporters) so
// nothing is torn down while still in use.
type ShutdownManager struct {
	logger  *Logger
	server  *http.Server
	timeout time.Duration

	mu            sync.Mutex
	shutdownFuncs []ShutdownFunc
}

// NewShutdownManager creates a shutdown manager for the given server. A zero
// timeout defaults to 30 seconds.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// RegisterShutdownFunc appends a function to the shutdown sequence.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, fn)
}

// WaitForShutdown blocks until SIGINT or SIGTERM, then runs the shutdown
// sequence under the configured timeout.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	return sm.Shutdown(ctx)
}

// Shutdown drains the server and runs the registered functions in order.
// It keeps going after individual failures so one stuck resource cannot
// prevent the rest from closing, and reports how many failed.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	var failures int

	if sm.server != nil {
		sm.logger.Info("Draining HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown failed")
			failures++
		}
	}

	sm.mu.Lock()
	funcs := make([]ShutdownFunc, len(sm.shutdownFuncs))
	copy(funcs, sm.shutdownFuncs)
	sm.mu.Unlock()

	for i, fn := range funcs {
		if err := ctx.Err(); err != nil {
			sm.logger.Warnf("Shutdown timeout reached with %d of %d functions remaining", len(funcs)-i, len(funcs))
			return fmt.Errorf("shutdown timed out: %w", err)
		}
		if err := fn(ctx); err != nil {
			sm.logger.WithError(err).Errorf("Shutdown function %d failed", i)
			failures++
		}
	}

	if failures > 0 {
		return fmt.Errorf("shutdown completed with %d failures", failures)
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}
