// Package logfile parses uploaded card-reader nonce logs and groups their
// lines by card identifier.
package logfile

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	// IdentifierField is the 0-based whitespace field holding the card identifier.
	IdentifierField = 5

	// Extension is the only accepted upload file extension.
	Extension = ".log"

	maxLineSize = 1024 * 1024
)

// LineError describes one line that could not be grouped.
type LineError struct {
	Number int
	Line   string
	Reason string
}

func (e LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Number, e.Reason)
}

// Upload is the result of parsing one log file.
type Upload struct {
	// Identifiers lists distinct identifiers in first-seen order.
	Identifiers []string
	// Groups holds the distinct lines per identifier, in first-seen order.
	Groups map[string][]string
	// Rejected lists malformed lines that were skipped.
	Rejected []LineError
	// Lines is the number of non-blank lines read.
	Lines int
}

// AcceptsFile reports whether name carries the accepted log extension.
func AcceptsFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Extension)
}

// Identifier extracts the card identifier from a log line.
func Identifier(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) <= IdentifierField {
		return "", fmt.Errorf("expected at least %d fields, got %d", IdentifierField+1, len(fields))
	}
	return fields[IdentifierField], nil
}

// Parse reads newline-delimited log content. Malformed lines are reported in
// Upload.Rejected and do not stop the rest of the file from being grouped.
// The returned error is only set for read failures.
func Parse(r io.Reader) (*Upload, error) {
	up := &Upload{Groups: make(map[string][]string)}
	seen := make(map[string]map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	number := 0
	for scanner.Scan() {
		number++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		up.Lines++

		id, err := Identifier(line)
		if err != nil {
			up.Rejected = append(up.Rejected, LineError{Number: number, Line: line, Reason: err.Error()})
			continue
		}

		lines, ok := seen[id]
		if !ok {
			lines = make(map[string]struct{})
			seen[id] = lines
			up.Identifiers = append(up.Identifiers, id)
		}
		if _, dup := lines[line]; dup {
			continue
		}
		lines[line] = struct{}{}
		up.Groups[id] = append(up.Groups[id], line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read log upload: %w", err)
	}

	return up, nil
}
