// Package transcript turns a stream of process output into a sequence of
// chat messages: one live message that is edited in place, and frozen
// messages holding the scrollback once the live one grows too long.
package transcript

import (
	"context"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxLen is the longest transcript body, in characters, kept in one message.
	DefaultMaxLen = 4000

	// DefaultMarker is printed by the attack tool when setup is done and the
	// attack proper begins. Output is cut there so setup stays in one message.
	DefaultMarker = "[=] Hardnested attack starting..."

	continuation = "..."
)

// MessageRef identifies an outbound message that can be edited later.
type MessageRef interface{}

// Publisher sends and edits chat messages on behalf of a Chunker.
type Publisher interface {
	Send(ctx context.Context, text string) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, text string) error
}

// CodeBlock wraps text in a fixed-width Markdown block.
func CodeBlock(text string) string {
	return "```\n" + text + "\n```"
}

// Chunker accumulates decoded output and keeps exactly one live message
// per run up to date.
type Chunker struct {
	MaxLen int
	Marker string

	pub      Publisher
	live     MessageRef
	cur      string
	frozen   []string
	onFreeze []func(string)
	finished bool
}

// NewChunker creates a Chunker publishing through pub with default limits.
func NewChunker(pub Publisher) *Chunker {
	return &Chunker{
		MaxLen: DefaultMaxLen,
		Marker: DefaultMarker,
		pub:    pub,
	}
}

// OnFreeze registers fn to receive every finalized piece of transcript,
// including the tail handed over by Finish.
func (c *Chunker) OnFreeze(fn func(text string)) {
	c.onFreeze = append(c.onFreeze, fn)
}

// Begin sends the first live message with a plain-text header.
func (c *Chunker) Begin(ctx context.Context, header string) error {
	ref, err := c.pub.Send(ctx, header)
	if err != nil {
		return fmt.Errorf("failed to send live message: %w", err)
	}
	c.live = ref
	return nil
}

// Write appends chunk and publishes the result. It freezes as many messages
// as needed to keep the live one under MaxLen and free of a non-leading marker.
func (c *Chunker) Write(ctx context.Context, chunk string) error {
	if c.finished {
		return fmt.Errorf("chunker already finished")
	}
	if c.live == nil {
		if err := c.Begin(ctx, CodeBlock(continuation)); err != nil {
			return err
		}
	}

	c.cur += chunk
	froze := false
	for {
		cutoff, ok := c.cutoff()
		if !ok {
			break
		}
		if err := c.freeze(ctx, cutoff); err != nil {
			return err
		}
		froze = true
	}
	if froze {
		// freeze already published the fresh live message
		return nil
	}

	return c.pub.Edit(ctx, c.live, liveText(c.cur))
}

// Finish publishes the final tail without a continuation marker. It must be
// called exactly once, after the stream has ended.
func (c *Chunker) Finish(ctx context.Context) error {
	if c.finished {
		return nil
	}
	c.finished = true
	c.emit(c.cur)

	if c.live == nil {
		return nil
	}
	return c.pub.Edit(ctx, c.live, CodeBlock(c.cur))
}

// Transcript returns all frozen chunks and the current tail joined by newlines.
func (c *Chunker) Transcript() string {
	parts := make([]string, 0, len(c.frozen)+1)
	parts = append(parts, c.frozen...)
	parts = append(parts, c.cur)
	return strings.Join(parts, "\n")
}

// Frozen returns the number of messages frozen so far.
func (c *Chunker) Frozen() int {
	return len(c.frozen)
}

// cutoff reports where the next freeze should end, if one is needed.
func (c *Chunker) cutoff() (int, bool) {
	markerPos := -1
	if c.Marker != "" {
		markerPos = strings.LastIndex(c.cur, c.Marker)
	}
	if markerPos > 0 {
		return markerPos, true
	}

	maxLen := c.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if utf8.RuneCountInString(c.cur) < maxLen {
		return 0, false
	}
	return byteOffset(c.cur, maxLen), true
}

func (c *Chunker) freeze(ctx context.Context, cutoff int) error {
	head := c.cur[:cutoff]
	final := head
	rest := c.cur[cutoff:]
	if nl := strings.LastIndexByte(head, '\n'); nl >= 0 {
		final = head[:nl]
		rest = c.cur[nl+1:]
	}

	if err := c.pub.Edit(ctx, c.live, CodeBlock(final)); err != nil {
		return fmt.Errorf("failed to finalize message: %w", err)
	}
	c.frozen = append(c.frozen, final)
	c.cur = rest
	c.emit(final)

	next := liveText(c.cur)
	if _, more := c.cutoff(); more {
		// about to be frozen again; never send an over-long body
		next = CodeBlock(continuation)
	}
	ref, err := c.pub.Send(ctx, next)
	if err != nil {
		return fmt.Errorf("failed to send live message: %w", err)
	}
	c.live = ref
	return nil
}

func (c *Chunker) emit(text string) {
	for _, fn := range c.onFreeze {
		fn(text)
	}
}

func liveText(cur string) string {
	return CodeBlock(strings.TrimRightFunc(cur, unicode.IsSpace) + "\n" + continuation)
}

// byteOffset returns the byte index of the n-th rune of s, or len(s).
func byteOffset(s string, n int) int {
	i := 0
	for pos := range s {
		if i == n {
			return pos
		}
		i++
	}
	return len(s)
}
