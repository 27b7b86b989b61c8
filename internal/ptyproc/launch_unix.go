//go:build !windows

package ptyproc

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

// startPlatform opens a PTY pair, starts cmd on the slave side and closes
// the parent's copy of the slave so that hangup is seen once the child exits.
func startPlatform(cmd *exec.Cmd) (*os.File, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, err
	}

	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			// session leader pid doubles as the process group id
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return nil, err
	}

	if err := slave.Close(); err != nil {
		_ = cmd.Cancel()
		master.Close()
		return nil, err
	}
	return master, nil
}
