//go:build windows

package ptyproc

import (
	"os"
	"os/exec"
)

// startPlatform is unavailable on Windows; the attack tool is Unix-only.
func startPlatform(cmd *exec.Cmd) (*os.File, error) {
	return nil, ErrUnsupported
}

func newFDSource(f *os.File) (chunkSource, error) {
	return nil, ErrUnsupported
}
