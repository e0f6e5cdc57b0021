//go:build windows

package process

import (
	"os/exec"
	"strconv"
)

func (p *Process) setupProcessGroup() {}

// Sending signals on Windows is not implemented, so both interrupt and
// terminate fall back to taskkill on the process tree.
func (p *Process) interruptProcessGroup() error {
	return p.terminateProcessGroup()
}

func (p *Process) terminateProcessGroup() error {
	p.logger.Debug("[Process] Terminating PID %d via taskkill", p.pid)
	return exec.Command("CMD", "/C", "TASKKILL", "/F", "/T", "/PID", strconv.Itoa(p.pid)).Run()
}
