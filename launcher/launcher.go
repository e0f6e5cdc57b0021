// Package launcher boots the platform: the gateway API in the background
// and the web frontend in the foreground, sharing one environment.
package launcher

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dlerazeezcore/the-book-platform/env"
	"github.com/dlerazeezcore/the-book-platform/logger"
	"github.com/dlerazeezcore/the-book-platform/process"
)

const (
	// DefaultBackendURL is where the web frontend finds the gateway when
	// the caller doesn't say otherwise.
	DefaultBackendURL = "http://127.0.0.1:5050"

	// DefaultPort is the public port of the web frontend.
	DefaultPort = "8000"
)

// Config holds the two command lines the launcher runs.
type Config struct {
	// GatewayCommand is the argv of the background gateway process.
	GatewayCommand []string

	// WebCommand is the argv of the foreground web process.
	WebCommand []string

	// Env is the base environment for both children. Defaults for
	// AVAILABILITY_BACKEND_URL and PORT are applied to a copy.
	Env *env.Environment

	Stdout io.Writer
	Stderr io.Writer

	// SignalGracePeriod is passed through to both child processes.
	SignalGracePeriod time.Duration
}

// Launcher starts the gateway in the background, then runs the web
// frontend in the foreground. A stop request terminates the gateway on a
// best-effort basis; the launcher's exit status is the web frontend's.
type Launcher struct {
	logger logger.Logger
	conf   Config

	mu      sync.Mutex
	gateway *process.Process
	web     *process.Process
	stopped bool
}

func New(l logger.Logger, c Config) (*Launcher, error) {
	if len(c.GatewayCommand) == 0 {
		return nil, fmt.Errorf("gateway command is empty")
	}
	if len(c.WebCommand) == 0 {
		return nil, fmt.Errorf("web command is empty")
	}
	if c.Env == nil {
		c.Env = env.New()
	}
	return &Launcher{logger: l, conf: c}, nil
}

// Run starts both processes and blocks until the foreground web process
// exits. It returns the web process's exit status. The gateway is started
// first; there is no readiness gate before the web process starts.
func (l *Launcher) Run(ctx context.Context) (int, error) {
	environ := l.conf.Env.Copy()
	backendURL := environ.SetDefault("AVAILABILITY_BACKEND_URL", DefaultBackendURL)
	port := environ.SetDefault("PORT", DefaultPort)

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return 0, fmt.Errorf("launcher already stopped")
	}

	l.gateway = process.New(l.logger.WithPrefix("gateway"), process.Config{
		Path:              l.conf.GatewayCommand[0],
		Args:              l.conf.GatewayCommand[1:],
		Env:               environ.ToSlice(),
		Stdout:            l.conf.Stdout,
		Stderr:            l.conf.Stderr,
		SignalGracePeriod: l.conf.SignalGracePeriod,
	})

	l.web = process.New(l.logger.WithPrefix("web"), process.Config{
		Path:              l.conf.WebCommand[0],
		Args:              l.conf.WebCommand[1:],
		Env:               environ.ToSlice(),
		Stdout:            l.conf.Stdout,
		Stderr:            l.conf.Stderr,
		SignalGracePeriod: l.conf.SignalGracePeriod,
	})
	gateway, web := l.gateway, l.web
	l.mu.Unlock()

	l.logger.Notice("Starting gateway (backend %s)", backendURL)

	go func() {
		if err := gateway.Run(ctx); err != nil {
			l.logger.Error("Gateway failed to start: %v", err)
			return
		}
		// No restart-on-crash: an early gateway exit is only logged. The
		// web frontend keeps probing and falling back on its own.
		if status := gateway.WaitStatus(); status != 0 {
			l.logger.Warn("Gateway exited with status %d", status)
		}
	}()

	select {
	case <-gateway.Started():
	case <-gateway.Done():
		// Failed to start, or exited instantly. Carry on; the frontend
		// does not gate on the backend being up.
	}

	l.logger.Notice("Starting web frontend on 0.0.0.0:%s", port)

	if err := web.Run(ctx); err != nil {
		l.stopGateway()
		return 1, err
	}

	l.stopGateway()

	return web.WaitStatus(), nil
}

// Stop interrupts the gateway (best effort) and then the web frontend.
// It is safe to call from a signal handler goroutine, and more than once.
func (l *Launcher) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	gateway, web := l.gateway, l.web
	l.mu.Unlock()

	if gateway != nil {
		// Failure here means the gateway is already gone. That's fine.
		if err := gateway.Interrupt(); err != nil {
			l.logger.Debug("Ignoring gateway interrupt failure: %v", err)
		}
	}
	if web != nil {
		if err := web.Interrupt(); err != nil {
			l.logger.Debug("Ignoring web interrupt failure: %v", err)
		}
	}
}

func (l *Launcher) stopGateway() {
	l.mu.Lock()
	gateway := l.gateway
	l.mu.Unlock()

	if gateway == nil {
		return
	}
	if err := gateway.Interrupt(); err != nil {
		l.logger.Debug("Ignoring gateway interrupt failure: %v", err)
	}
}
