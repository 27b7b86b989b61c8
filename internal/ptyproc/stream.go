package ptyproc

import (
	"context"
	"errors"
	"io"
	"runtime"
	"time"

	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
)

// errWouldBlock signals that no output is ready yet.
var errWouldBlock = errors.New("no data available")

// chunkSource is a non-blocking byte source. ReadChunk returns
// errWouldBlock when nothing is ready and io.EOF on hangup.
type chunkSource interface {
	ReadChunk(p []byte) (int, error)
}

// Stream yields decoded text chunks from a process terminal. It is finite
// and cannot be restarted.
type Stream struct {
	src     chunkSource
	backoff time.Duration
	buf     []byte
	dec     utf8Carry
	done    bool
	proc    *Process
}

func newStream(src chunkSource, backoff time.Duration) *Stream {
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	return &Stream{
		src:     src,
		backoff: backoff,
		buf:     make([]byte, ReadSize),
	}
}

// Next returns the next piece of output. It returns io.EOF once the terminal
// has hung up, ctx.Err() when ctx ends first, and a stream error for any
// other read failure.
func (s *Stream) Next(ctx context.Context) (string, error) {
	for {
		// let other runs make progress even when output is ready
		runtime.Gosched()

		if s.done {
			return "", io.EOF
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := s.src.ReadChunk(s.buf)
		switch {
		case errors.Is(err, errWouldBlock):
			if err := s.sleep(ctx); err != nil {
				return "", err
			}
			continue
		case errors.Is(err, io.EOF):
			s.done = true
			if tail := s.dec.Flush(); tail != "" {
				return tail, nil
			}
			return "", io.EOF
		case err != nil:
			return "", boterr.NewStreamErrorWithCause("failed to read process output", err)
		}

		if text := s.dec.Decode(s.buf[:n]); text != "" {
			return text, nil
		}
	}
}

func (s *Stream) sleep(ctx context.Context) error {
	timer := time.NewTimer(s.backoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait waits for the process behind the stream to exit, logs its exit code
// and returns it. The code is not interpreted.
func (s *Stream) Wait(ctx context.Context) (ExitStatus, error) {
	if s.proc == nil {
		return ExitStatus{}, nil
	}
	status, err := s.proc.Wait(ctx)
	if err != nil {
		return status, err
	}
	s.proc.logger.Info("external process exited", "pid", s.proc.Pid(), "code", status.Code)
	return status, nil
}
