// Package process manages the lifecycle of child processes: starting them
// with a merged environment, waiting for them, and delivering best-effort
// interrupt and termination signals to their process groups.
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dlerazeezcore/the-book-platform/logger"
)

const defaultSignalGracePeriod = 10 * time.Second

// Config holds the configuration for a child process.
type Config struct {
	Path   string
	Args   []string
	Env    []string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	// InterruptSignal is the signal sent by Interrupt. Defaults to SIGTERM.
	InterruptSignal Signal

	// SignalGracePeriod is how long Interrupt waits for the process to exit
	// before escalating to SIGKILL. Defaults to 10s.
	SignalGracePeriod time.Duration
}

// Process is a child process being run.
type Process struct {
	logger logger.Logger
	conf   Config

	command *exec.Cmd
	pid     int

	mu            sync.Mutex
	started, done chan struct{}
	waitResult    error
}

// New returns a new Process for the given config. The process is not
// started until Run is called.
func New(l logger.Logger, c Config) *Process {
	if c.InterruptSignal == Signal(0) {
		c.InterruptSignal = SIGTERM
	}
	if c.SignalGracePeriod <= 0 {
		c.SignalGracePeriod = defaultSignalGracePeriod
	}
	return &Process{
		logger:  l,
		conf:    c,
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Run starts the process and blocks until it exits. The returned error is
// nil even when the process exits non-zero; consult WaitStatus for the
// exit code. When ctx is cancelled the process group is terminated.
func (p *Process) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.command != nil {
		p.mu.Unlock()
		return errors.New("process is already running")
	}

	p.command = exec.Command(p.conf.Path, p.conf.Args...)
	p.command.Dir = p.conf.Dir
	p.command.Stdin = p.conf.Stdin

	p.command.Stdout = p.conf.Stdout
	if p.command.Stdout == nil {
		p.command.Stdout = os.Stdout
	}
	p.command.Stderr = p.conf.Stderr
	if p.command.Stderr == nil {
		p.command.Stderr = os.Stderr
	}

	// Copy the current process env and merge in the configured one, so the
	// child gets PATH and friends with our variables taking precedence.
	p.command.Env = append(os.Environ(), p.conf.Env...)

	p.setupProcessGroup()

	if err := p.command.Start(); err != nil {
		p.mu.Unlock()
		// Unblock anyone waiting in Done(); the process never ran.
		close(p.done)
		return fmt.Errorf("starting %s: %w", p.conf.Path, err)
	}

	p.pid = p.command.Process.Pid
	p.mu.Unlock()

	// Signal waiting consumers in Started() by closing the started channel
	close(p.started)

	p.logger.Debug("[Process] %s is running with PID %d", p.conf.Path, p.pid)

	if ctx != nil {
		go func() {
			select {
			case <-ctx.Done():
				_ = p.Terminate()
			case <-p.done:
			}
		}()
	}

	waitResult := p.command.Wait()

	p.mu.Lock()
	p.waitResult = waitResult
	p.mu.Unlock()

	// Signal waiting consumers in Done() by closing the done channel
	close(p.done)

	p.logger.Debug("[Process] PID %d finished with exit status %d", p.pid, p.WaitStatus())

	return nil
}

// Started returns a channel that is closed when the process has started.
func (p *Process) Started() <-chan struct{} {
	return p.started
}

// Done returns a channel that is closed when the process finishes.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Pid returns the process ID of the running process, or 0 before start.
func (p *Process) Pid() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// WaitStatus returns the exit code of the process: 0 for success, -1 if
// the process has not exited (or never started), otherwise the exit code.
func (p *Process) WaitStatus() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	select {
	case <-p.done:
	default:
		return -1
	}

	if p.waitResult == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(p.waitResult, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Interrupt sends the configured interrupt signal to the process group,
// then escalates to SIGKILL if the process is still running after the
// signal grace period. Signalling an already-exited process is not an
// error.
func (p *Process) Interrupt() error {
	p.mu.Lock()
	if p.command == nil || p.command.Process == nil {
		p.mu.Unlock()
		p.logger.Debug("[Process] No process to interrupt yet")
		return nil
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		// Nothing left to signal.
		return nil
	default:
	}

	if err := p.interruptProcessGroup(); err != nil {
		p.logger.Debug("[Process] Failed to interrupt PID %d: %v", p.pid, err)
		return err
	}

	select {
	case <-p.done:
		return nil
	case <-time.After(p.conf.SignalGracePeriod):
		p.logger.Debug("[Process] PID %d didn't exit within %v, killing", p.pid, p.conf.SignalGracePeriod)
		return p.Terminate()
	}
}

// Terminate kills the process group immediately. Killing an already-exited
// process is not an error.
func (p *Process) Terminate() error {
	p.mu.Lock()
	if p.command == nil || p.command.Process == nil {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	select {
	case <-p.done:
		return nil
	default:
	}

	return p.terminateProcessGroup()
}
