package logfile

import (
	"reflect"
	"strings"
	"testing"
)

func logLine(nonce, id string) string {
	return "Auth 0x60 nt " + nonce + " uid_is " + id + " ks 00 01"
}

func TestParse_GroupsInFirstSeenOrder(t *testing.T) {
	content := strings.Join([]string{
		logLine("01", "aa11"),
		logLine("02", "aa11"),
		logLine("03", "bb22"),
	}, "\n")

	up, err := Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if want := []string{"aa11", "bb22"}; !reflect.DeepEqual(up.Identifiers, want) {
		t.Errorf("Identifiers = %v, want %v", up.Identifiers, want)
	}
	if n := len(up.Groups["aa11"]); n != 2 {
		t.Errorf("len(Groups[aa11]) = %d, want 2", n)
	}
	if n := len(up.Groups["bb22"]); n != 1 {
		t.Errorf("len(Groups[bb22]) = %d, want 1", n)
	}
	if len(up.Rejected) != 0 {
		t.Errorf("Rejected = %v, want none", up.Rejected)
	}
}

func TestParse_PartitionCoversAllLines(t *testing.T) {
	lines := []string{
		logLine("01", "cc33"),
		logLine("02", "aa11"),
		logLine("01", "cc33"),
		logLine("03", "bb22"),
		logLine("04", "aa11"),
	}
	up, err := Parse(strings.NewReader(strings.Join(lines, "\r\n") + "\r\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	union := make(map[string]struct{})
	for id, group := range up.Groups {
		for _, line := range group {
			got, err := Identifier(line)
			if err != nil || got != id {
				t.Errorf("line %q grouped under %q, identifier %q (%v)", line, id, got, err)
			}
			union[line] = struct{}{}
		}
	}
	want := make(map[string]struct{})
	for _, line := range lines {
		want[line] = struct{}{}
	}
	if !reflect.DeepEqual(union, want) {
		t.Errorf("union of groups = %v, want %v", union, want)
	}
	if want := []string{"cc33", "aa11", "bb22"}; !reflect.DeepEqual(up.Identifiers, want) {
		t.Errorf("Identifiers = %v, want %v", up.Identifiers, want)
	}
}

func TestParse_MalformedLinesSkippedAndReported(t *testing.T) {
	content := logLine("01", "aa11") + "\n" +
		"too short line\n" +
		"\n" +
		logLine("02", "aa11") + "\n"

	up, err := Parse(strings.NewReader(content))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(up.Rejected) != 1 {
		t.Fatalf("len(Rejected) = %d, want 1", len(up.Rejected))
	}
	rej := up.Rejected[0]
	if rej.Number != 2 || rej.Line != "too short line" {
		t.Errorf("Rejected[0] = %+v", rej)
	}
	if !strings.Contains(rej.Error(), "line 2") {
		t.Errorf("Error() = %q, want line number", rej.Error())
	}
	if n := len(up.Groups["aa11"]); n != 2 {
		t.Errorf("good lines after a bad one should still be grouped, got %d", n)
	}
	if up.Lines != 3 {
		t.Errorf("Lines = %d, want 3 (blank lines are not counted)", up.Lines)
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{"a b c d e f", "f", false},
		{"a  b\tc d e   f g", "f", false},
		{"a b c d e", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := Identifier(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("Identifier(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("Identifier(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestAcceptsFile(t *testing.T) {
	tests := map[string]bool{
		"nonces.log":     true,
		"NONCES.LOG":     true,
		"nonces.txt":     false,
		"log":            false,
		"archive.log.gz": false,
	}
	for name, want := range tests {
		if got := AcceptsFile(name); got != want {
			t.Errorf("AcceptsFile(%q) = %v, want %v", name, got, want)
		}
	}
}
