// Package logging builds the bot's structured logger.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/term"
)

// Placeholder replaces secrets in log output.
const Placeholder = "_TOKEN_"

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn, error.
	Level string
	// Format is text, logfmt or json. Empty picks text on a terminal and
	// logfmt otherwise.
	Format string
	// Dir, when set, also writes rotated log files there.
	Dir string
	// Secrets are replaced with Placeholder in every record.
	Secrets []string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// Redactor is an io.Writer that replaces secrets in each record it forwards.
type Redactor struct {
	w       io.Writer
	secrets [][]byte
}

// NewRedactor wraps w. Empty secrets are ignored.
func NewRedactor(w io.Writer, secrets ...string) *Redactor {
	r := &Redactor{w: w}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, []byte(s))
		}
	}
	return r
}

// Write implements io.Writer.
func (r *Redactor) Write(p []byte) (int, error) {
	out := p
	for _, s := range r.secrets {
		if bytes.Contains(out, s) {
			out = bytes.ReplaceAll(out, s, []byte(Placeholder))
		}
	}
	if _, err := r.w.Write(out); err != nil {
		return 0, err
	}
	return len(p), nil
}

// New creates a logger. The returned closer releases the log file, if any.
func New(opts Options) (*log.Logger, io.Closer, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := log.InfoLevel
	if opts.Level != "" {
		lvl, err := log.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = lvl
	}

	formatter, err := pickFormatter(opts.Format, out)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		rw, err := NewRotatingWriter(opts.Dir)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(out, rw)
		closer = rw
	}

	logger := log.NewWithOptions(NewRedactor(out, opts.Secrets...), log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Formatter:       formatter,
	})
	return logger, closer, nil
}

func pickFormatter(name string, out io.Writer) (log.Formatter, error) {
	switch strings.ToLower(name) {
	case "text":
		return log.TextFormatter, nil
	case "logfmt":
		return log.LogfmtFormatter, nil
	case "json":
		return log.JSONFormatter, nil
	case "":
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			return log.TextFormatter, nil
		}
		return log.LogfmtFormatter, nil
	default:
		return 0, fmt.Errorf("unknown log format %q", name)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
