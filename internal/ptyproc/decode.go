package ptyproc

import (
	"strings"
	"unicode/utf8"
)

// utf8Carry decodes a byte stream into valid UTF-8 text, holding back an
// incomplete multi-byte sequence at the end of one read until the next.
type utf8Carry struct {
	pending []byte
}

// Decode returns the text decodable so far. Invalid bytes become U+FFFD.
func (d *utf8Carry) Decode(p []byte) string {
	data := make([]byte, 0, len(d.pending)+len(p))
	data = append(data, d.pending...)
	data = append(data, p...)

	cut := incompleteTail(data)
	d.pending = append(d.pending[:0], data[cut:]...)
	return strings.ToValidUTF8(string(data[:cut]), string(utf8.RuneError))
}

// Flush returns whatever is still pending. A truncated sequence at end of
// stream decodes to U+FFFD.
func (d *utf8Carry) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	text := strings.ToValidUTF8(string(d.pending), string(utf8.RuneError))
	d.pending = d.pending[:0]
	return text
}

// incompleteTail returns the index where a trailing, not yet complete rune
// starts, or len(data) when the data ends on a rune boundary.
func incompleteTail(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		b := data[i]
		if b < utf8.RuneSelf {
			return len(data)
		}
		if utf8.RuneStart(b) {
			if utf8.FullRune(data[i:]) {
				return len(data)
			}
			return i
		}
	}
	return len(data)
}
