// Package middleware provides HTTP middleware for the service layer.
package middleware

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fabhost/agent/infrastructure/logging"
)

// GracefulShutdown drains the management API's HTTP server and runs
// registered cleanup callbacks (stopping the child inference process,
// releasing wallet/VRF resources) in the order they were added, so a single
// SIGINT/SIGTERM/SIGQUIT tears the whole agent down instead of just closing
// listeners.
type GracefulShutdown struct {
	mu           sync.Mutex
	server       *http.Server
	timeout      time.Duration
	logger       *logging.Logger
	shutdownChan chan struct{}
	callbacks    []func()
	err          error
}

// NewGracefulShutdown creates a new graceful shutdown manager. logger may be
// nil.
func NewGracefulShutdown(server *http.Server, timeout time.Duration, logger *logging.Logger) *GracefulShutdown {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GracefulShutdown{
		server:       server,
		timeout:      timeout,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}
}

// OnShutdown registers a callback to run during shutdown, in registration
// order, before the HTTP server itself is drained.
func (g *GracefulShutdown) OnShutdown(callback func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.callbacks = append(g.callbacks, callback)
}

// ListenForSignals starts listening for shutdown signals in the background
// and triggers Shutdown on the first one received.
func (g *GracefulShutdown) ListenForSignals(ctx context.Context) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		sig := <-sigChan
		if g.logger != nil {
			g.logger.Info(ctx, "received shutdown signal", map[string]interface{}{"signal": sig.String()})
		}
		g.Shutdown()
	}()
}

// Shutdown runs every registered callback, then drains the HTTP server
// within the configured timeout. A panicking callback is recovered and
// logged so one bad cleanup hook doesn't abort the rest. Safe to call more
// than once; only the first call does any work.
func (g *GracefulShutdown) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	select {
	case <-g.shutdownChan:
		return
	default:
	}

	for _, callback := range g.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil && g.logger != nil {
					g.logger.Error(context.Background(), "panic in shutdown callback", nil, map[string]interface{}{"panic": r})
				}
			}()
			callback()
		}()
	}

	if g.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
		defer cancel()

		if err := g.server.Shutdown(ctx); err != nil {
			g.err = err
			if g.logger != nil {
				g.logger.Error(ctx, "error during server shutdown", err, nil)
			}
		}
	}

	close(g.shutdownChan)
}

// Wait blocks until shutdown has run to completion and returns the error
// the HTTP server's own Shutdown returned, if any.
func (g *GracefulShutdown) Wait() error {
	<-g.shutdownChan
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.err
}
