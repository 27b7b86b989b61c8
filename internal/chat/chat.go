// Package chat defines the boundary between the bot logic and the chat
// service that delivers its messages.
package chat

import (
	"context"
	"fmt"

	"github.com/silver2dream/hardnested-bot/internal/transcript"
)

// Button is one inline button with an opaque callback payload.
type Button struct {
	Label   string
	Payload string
}

// Message is an outbound message body.
type Message struct {
	Text string
	// Markdown marks Text as Markdown rather than plain text.
	Markdown bool
	Buttons  [][]Button
}

// MessageRef identifies a sent message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Transport sends, edits and deletes chat messages.
type Transport interface {
	Send(ctx context.Context, chatID int64, msg Message) (MessageRef, error)
	Edit(ctx context.Context, ref MessageRef, msg Message) error
	Delete(ctx context.Context, ref MessageRef) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Text builds a plain message.
func Text(format string, args ...any) Message {
	if len(args) == 0 {
		return Message{Text: format}
	}
	return Message{Text: fmt.Sprintf(format, args...)}
}

// Code builds a message showing text as a fixed-width block.
func Code(header, text string) Message {
	body := transcript.CodeBlock(text)
	if header != "" {
		body = header + "\n" + body
	}
	return Message{Text: body, Markdown: true}
}

// Row returns a single-button keyboard row.
func Row(label, payload string) []Button {
	return []Button{{Label: label, Payload: payload}}
}

// Publisher adapts a Transport to a transcript.Publisher for one chat.
// Texts produced by the chunker are already Markdown.
type Publisher struct {
	Transport Transport
	ChatID    int64
}

// Send implements transcript.Publisher.
func (p *Publisher) Send(ctx context.Context, text string) (transcript.MessageRef, error) {
	ref, err := p.Transport.Send(ctx, p.ChatID, Message{Text: text, Markdown: true})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Edit implements transcript.Publisher.
func (p *Publisher) Edit(ctx context.Context, ref transcript.MessageRef, text string) error {
	r, ok := ref.(MessageRef)
	if !ok {
		return fmt.Errorf("unexpected message reference %T", ref)
	}
	return p.Transport.Edit(ctx, r, Message{Text: text, Markdown: true})
}
