package preflight

import (
	"fmt"
	"io"
	"os"
	"runtime"

	"golang.org/x/term"
)

// OutputFormatter prints check results to a console.
type OutputFormatter struct {
	writer    io.Writer
	useColors bool
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

// NewOutputFormatter creates a new OutputFormatter
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stdout
	}

	useColors := true
	if runtime.GOOS == "windows" && os.Getenv("WT_SESSION") == "" {
		useColors = false
	}
	if os.Getenv("NO_COLOR") != "" {
		useColors = false
	}
	if f, ok := w.(*os.File); ok {
		if !term.IsTerminal(int(f.Fd())) {
			useColors = false
		}
	} else {
		useColors = false
	}

	return &OutputFormatter{
		writer:    w,
		useColors: useColors,
	}
}

// Success prints a success message with green checkmark
func (o *OutputFormatter) Success(msg string) {
	o.line(colorGreen, "✓", msg)
}

// Error prints an error message with red cross
func (o *OutputFormatter) Error(msg string) {
	o.line(colorRed, "✗", msg)
}

// Warning prints a warning message with yellow warning sign
func (o *OutputFormatter) Warning(msg string) {
	o.line(colorYellow, "!", msg)
}

// Results prints one line per check.
func (o *OutputFormatter) Results(results []CheckResult) {
	for _, r := range results {
		msg := fmt.Sprintf("%s: %s", r.Name, r.Message)
		switch {
		case !r.Passed:
			o.Error(msg)
		case r.Warning:
			o.Warning(msg)
		default:
			o.Success(msg)
		}
	}
}

func (o *OutputFormatter) line(color, mark, msg string) {
	if o.useColors {
		fmt.Fprintf(o.writer, "%s%s%s %s\n", color, mark, colorReset, msg)
	} else {
		fmt.Fprintf(o.writer, "%s %s\n", mark, msg)
	}
}
