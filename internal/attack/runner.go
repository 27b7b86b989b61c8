// Package attack runs the external key recovery tool over a chat's log
// lines and streams its console into the chat.
package attack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/silver2dream/hardnested-bot/internal/chat"
	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
	"github.com/silver2dream/hardnested-bot/internal/keys"
	"github.com/silver2dream/hardnested-bot/internal/preflight"
	"github.com/silver2dream/hardnested-bot/internal/ptyproc"
	"github.com/silver2dream/hardnested-bot/internal/transcript"
)

// Job is one attack request.
type Job struct {
	ChatID     int64
	Identifier string
	Lines      []string
}

// Runner launches the attack tool for a Job and publishes its transcript.
type Runner struct {
	Binary    string
	Launcher  *ptyproc.Launcher
	Transport chat.Transport

	// MaxLen and Marker configure the transcript chunker. Zero values use
	// the transcript defaults.
	MaxLen int
	Marker string

	// Timeout bounds a whole run. Zero means no limit.
	Timeout time.Duration
	// KeepInputs leaves the temporary log file on disk after the run.
	KeepInputs bool
	// TempDir holds input files. Empty means os.TempDir().
	TempDir string

	MinFreeMemoryMB uint64
	// Memory reports available memory in bytes. Nil means preflight.AvailableMemory.
	Memory func() (uint64, error)

	Logger *log.Logger
}

// Run executes job and returns every key seen in the tool output. The set
// is non-nil even when an error is returned, holding whatever was recovered
// before the failure.
func (r *Runner) Run(ctx context.Context, job Job) (keys.Set, error) {
	runID := uuid.NewString()
	logger := r.logger().With("run", runID, "chat", job.ChatID, "cuid", job.Identifier)
	found := keys.NewSet()

	chunker := transcript.NewChunker(&chat.Publisher{Transport: r.Transport, ChatID: job.ChatID})
	if r.MaxLen > 0 {
		chunker.MaxLen = r.MaxLen
	}
	if r.Marker != "" {
		chunker.Marker = r.Marker
	}

	collector := keys.NewCollector()
	chunker.OnFreeze(func(text string) {
		if fresh := collector.Observe(text); fresh.Len() > 0 {
			logger.Info("key recovered", "keys", fresh.Upper())
		}
	})
	harvest := func() {
		found.Merge(collector.Keys())
		found.Merge(keys.Extract(chunker.Transcript()))
	}

	if err := chunker.Begin(ctx, "Decoding logs for cuid "+job.Identifier); err != nil {
		return found, boterr.NewTransportErrorWithCause("failed to announce run", err)
	}

	input, err := r.writeInput(runID, job.Lines)
	if err != nil {
		return found, err
	}
	if r.KeepInputs {
		logger.Info("keeping input file", "path", input)
	} else {
		defer os.Remove(input)
	}

	r.checkMemory(logger)

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	started := time.Now()
	logger.Info("starting attack", "binary", r.Binary, "lines", len(job.Lines))

	proc, err := r.launcher(logger).Launch(ctx, r.Binary, input)
	if err != nil {
		return found, err
	}
	defer proc.Close()

	stream, err := proc.Stream()
	if err != nil {
		proc.Kill()
		return found, err
	}

	for {
		chunk, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			proc.Kill()
			harvest()
			return found, r.streamError(ctx, err)
		}
		if err := chunker.Write(ctx, chunk); err != nil {
			proc.Kill()
			harvest()
			return found, boterr.NewTransportErrorWithCause("failed to publish output", err)
		}
	}
	if err := ctx.Err(); err != nil {
		// hangup raced with the kill
		harvest()
		return found, r.streamError(ctx, err)
	}

	if err := chunker.Finish(ctx); err != nil {
		// the tail is still in the transcript, keys are not lost
		logger.Warn("failed to publish final output", "error", err)
	}

	status, err := stream.Wait(ctx)
	if err != nil {
		logger.Warn("process did not exit", "error", err)
		proc.Kill()
	}

	harvest()

	logger.Info("attack finished",
		"code", status.Code,
		"keys", found.Len(),
		"messages", chunker.Frozen()+1,
		"duration", time.Since(started).Round(time.Millisecond))
	return found, nil
}

func (r *Runner) writeInput(runID string, lines []string) (string, error) {
	f, err := os.CreateTemp(r.TempDir, "hardnested-"+runID+"-*.log")
	if err != nil {
		return "", boterr.NewSpawnErrorWithCause("failed to create input file", err)
	}

	var body strings.Builder
	for _, line := range lines {
		body.WriteString(line)
		body.WriteByte('\n')
	}
	if _, err := f.WriteString(body.String()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", boterr.NewSpawnErrorWithCause("failed to write input file", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", boterr.NewSpawnErrorWithCause("failed to write input file", err)
	}
	return f.Name(), nil
}

func (r *Runner) checkMemory(logger *log.Logger) {
	probe := r.Memory
	if probe == nil {
		probe = preflight.AvailableMemory
	}
	if res := preflight.MemoryResult(probe, r.MinFreeMemoryMB); res.Warning {
		logger.Warn("memory preflight", "detail", res.Message)
	}
}

func (r *Runner) streamError(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil {
		return boterr.NewStreamErrorWithCause(fmt.Sprintf("attack exceeded %s", r.Timeout), err)
	}
	if errors.Is(err, context.Canceled) {
		return boterr.NewStreamErrorWithCause("attack cancelled", err)
	}
	return err
}

func (r *Runner) launcher(logger *log.Logger) *ptyproc.Launcher {
	l := ptyproc.Launcher{Logger: logger}
	if r.Launcher != nil {
		l.Backoff = r.Launcher.Backoff
	}
	return &l
}

func (r *Runner) logger() *log.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return log.Default()
}
