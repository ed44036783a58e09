package service

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fabhost/agent/infrastructure/logging"
	"github.com/fabhost/agent/infrastructure/middleware"
)

// ServeOptions configures Serve.
type ServeOptions struct {
	Addr              string
	Handler           http.Handler
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	Logger            *logging.Logger

	// OnShutdown is run, in order, once a shutdown signal or context
	// cancellation is observed and before the HTTP server is drained. Used
	// to release resources the handler depends on (child processes, wallet
	// material) in step with the server's own teardown.
	OnShutdown []func()
}

func (o *ServeOptions) setDefaults() {
	if o.ReadTimeout == 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.ReadHeaderTimeout == 0 {
		o.ReadHeaderTimeout = 10 * time.Second
	}
	if o.WriteTimeout == 0 {
		o.WriteTimeout = 30 * time.Second
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 120 * time.Second
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 15 * time.Second
	}
}

// Serve starts an HTTP server on a background goroutine and blocks until
// ctx is cancelled or the process receives SIGINT/SIGTERM, then drains
// in-flight requests within ShutdownTimeout before returning.
func Serve(ctx context.Context, opts ServeOptions) error {
	opts.setDefaults()

	server := &http.Server{
		Addr:              opts.Addr,
		Handler:           opts.Handler,
		ReadTimeout:       opts.ReadTimeout,
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	gs := middleware.NewGracefulShutdown(server, opts.ShutdownTimeout, opts.Logger)
	for _, cb := range opts.OnShutdown {
		gs.OnShutdown(cb)
	}

	errCh := make(chan error, 1)
	go func() {
		if opts.Logger != nil {
			opts.Logger.Info(ctx, "management api listening", map[string]interface{}{"addr": opts.Addr})
		}
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	case <-sigCh:
	}

	if opts.Logger != nil {
		opts.Logger.Info(ctx, "shutting down management api", nil)
	}
	gs.Shutdown()
	return gs.Wait()
}
