// Package ptyproc runs an external program attached to a pseudo-terminal and
// streams its console output without blocking on the terminal.
//
// Some tools only flush progress lines when their output is a terminal, so
// plain pipes are not an option. Launch allocates a PTY pair, hands the
// slave side to the child as stdin/stdout/stderr and keeps the master for
// reading. The stream ends when the terminal hangs up, i.e. when every
// process holding the slave has exited.
package ptyproc

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
)

const (
	// DefaultBackoff is how long the reader waits when no output is ready.
	DefaultBackoff = time.Second

	// ReadSize is the largest chunk read from the terminal at once.
	ReadSize = 256
)

// ErrUnsupported is returned on platforms without POSIX pseudo-terminals.
var ErrUnsupported = errors.New("pseudo-terminal execution is not supported on this platform")

// ExitStatus describes how the external process ended.
type ExitStatus struct {
	Code int
	Err  error
}

// Success reports whether the process exited with status zero.
func (s ExitStatus) Success() bool {
	return s.Err == nil && s.Code == 0
}

// Launcher starts external programs under a PTY.
type Launcher struct {
	// Backoff is the pause between polls while the terminal has no output.
	Backoff time.Duration
	// Logger receives lifecycle events. Nil means log.Default().
	Logger *log.Logger
}

// Process is a running external program and the master side of its terminal.
type Process struct {
	cmd     *exec.Cmd
	master  *os.File
	backoff time.Duration
	logger  *log.Logger

	waitDone  chan struct{}
	status    ExitStatus
	closeOnce sync.Once
	closeErr  error
}

// Launch starts name with args attached to a fresh pseudo-terminal.
// Cancelling ctx kills the process group.
func (l *Launcher) Launch(ctx context.Context, name string, args ...string) (*Process, error) {
	logger := l.Logger
	if logger == nil {
		logger = log.Default()
	}
	backoff := l.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}

	cmd := exec.CommandContext(ctx, name, args...)
	master, err := startPlatform(cmd)
	if err != nil {
		return nil, boterr.NewSpawnErrorWithCause("failed to start "+name, err)
	}

	p := &Process{
		cmd:      cmd,
		master:   master,
		backoff:  backoff,
		logger:   logger,
		waitDone: make(chan struct{}),
	}
	go p.reap()

	logger.Info("external process started", "binary", name, "pid", cmd.Process.Pid)
	return p, nil
}

func (p *Process) reap() {
	defer close(p.waitDone)
	err := p.cmd.Wait()
	p.status = ExitStatus{Code: p.cmd.ProcessState.ExitCode()}
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		p.status.Err = err
	}
}

// Pid returns the operating system process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Wait blocks until the process exits or ctx is done.
func (p *Process) Wait(ctx context.Context) (ExitStatus, error) {
	select {
	case <-p.waitDone:
		return p.status, nil
	case <-ctx.Done():
		return ExitStatus{Code: -1}, ctx.Err()
	}
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.waitDone
}

// Kill terminates the process group.
func (p *Process) Kill() error {
	select {
	case <-p.waitDone:
		return nil
	default:
	}
	if p.cmd.Cancel != nil {
		return p.cmd.Cancel()
	}
	return p.cmd.Process.Kill()
}

// Close releases the master side of the terminal. It is safe to call more
// than once.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		if p.master != nil {
			p.closeErr = p.master.Close()
		}
	})
	return p.closeErr
}

// Stream returns a reader over the process output. Only one stream may be
// taken per process.
func (p *Process) Stream() (*Stream, error) {
	src, err := newFDSource(p.master)
	if err != nil {
		return nil, boterr.NewStreamErrorWithCause("failed to prepare terminal for polling", err)
	}
	s := newStream(src, p.backoff)
	s.proc = p
	return s, nil
}
