//go:build !windows

package process

import (
	"errors"
	"syscall"
)

// setupProcessGroup puts the child in its own process group, so signals
// can be delivered to the whole group with a negative pid.
func (p *Process) setupProcessGroup() {
	p.command.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}
}

func (p *Process) interruptProcessGroup() error {
	sig := syscall.Signal(p.conf.InterruptSignal)
	p.logger.Debug("[Process] Sending signal %s to PGID %d", p.conf.InterruptSignal, p.pid)

	err := syscall.Kill(-p.pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		// The group is already gone.
		return nil
	}
	return err
}

func (p *Process) terminateProcessGroup() error {
	p.logger.Debug("[Process] Sending signal SIGKILL to PGID %d", p.pid)

	err := syscall.Kill(-p.pid, syscall.SIGKILL)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
