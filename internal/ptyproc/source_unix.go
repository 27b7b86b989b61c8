//go:build !windows

package ptyproc

import (
	"io"
	"os"
	"runtime"

	"golang.org/x/sys/unix"
)

// fdSource reads the PTY master with raw non-blocking syscalls.
type fdSource struct {
	file *os.File
	fd   int
}

func newFDSource(f *os.File) (chunkSource, error) {
	// Fd puts the descriptor in blocking mode; switch it back explicitly.
	fd := int(f.Fd())
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	return &fdSource{file: f, fd: fd}, nil
}

func (s *fdSource) ReadChunk(p []byte) (int, error) {
	n, err := unix.Read(s.fd, p)
	runtime.KeepAlive(s.file)
	switch {
	case err == unix.EAGAIN || err == unix.EINTR:
		return 0, errWouldBlock
	case err == unix.EIO:
		// slave side fully closed
		return 0, io.EOF
	case err != nil:
		return 0, &os.SyscallError{Syscall: "read", Err: err}
	case n == 0:
		return 0, io.EOF
	}
	return n, nil
}
