package bot

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/silver2dream/hardnested-bot/internal/chat"
	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
	"github.com/silver2dream/hardnested-bot/internal/logfile"
	"github.com/silver2dream/hardnested-bot/internal/state"
)

// maxRejectedShown caps how many malformed lines are quoted back.
const maxRejectedShown = 5

const helpText = `Send a .log file with nonce captures, then pick a card id to run the hardnested attack on it.

/keys - list recovered keys
/reset - forget uploaded logs and keys
/help - show this message`

// Event is one inbound update, independent of the chat service.
type Event struct {
	Kind   EventKind
	ChatID int64

	// Callback fields.
	CallbackID string
	Payload    string

	// Upload fields. Open fetches the document body.
	FileName string
	Open     func(ctx context.Context) (io.ReadCloser, error)
}

// Handler routes events to replies, state changes and the Coordinator.
type Handler struct {
	Store       *state.Store
	Coordinator *Coordinator
	Transport   chat.Transport
	Whitelisted func(chatID int64) bool
	Logger      *log.Logger
}

// Handle processes ev. Errors are logged by the caller; the user has
// already been told whatever could be told.
func (h *Handler) Handle(ctx context.Context, ev Event) error {
	logger := h.logger().With("chat", ev.ChatID, "event", ev.Kind)

	switch PolicyFor(ev.Kind, h.Whitelisted(ev.ChatID)) {
	case Drop:
		logger.Debug("dropped event from chat outside whitelist")
		return nil
	case Reject:
		logger.Info("rejected chat outside whitelist")
		return h.send(ctx, ev.ChatID, chat.Text("You are not whitelisted\nYour chat id is %d", ev.ChatID))
	}

	switch ev.Kind {
	case EventStart:
		return h.send(ctx, ev.ChatID, chat.Text("Hello, I am HardnestedBot"))
	case EventHelp:
		return h.send(ctx, ev.ChatID, chat.Text(helpText))
	case EventReset:
		return h.reset(ctx, ev.ChatID)
	case EventKeys:
		return h.listKeys(ctx, ev.ChatID)
	case EventUpload:
		return h.upload(ctx, ev, logger)
	case EventCallback:
		if err := h.Transport.AnswerCallback(ctx, ev.CallbackID); err != nil {
			logger.Warn("failed to answer callback", "error", err)
		}
		return h.Coordinator.Select(ctx, ev.ChatID, ev.Payload)
	}
	return nil
}

func (h *Handler) reset(ctx context.Context, chatID int64) error {
	err := h.Store.Update(chatID, func(st *state.ChatState) error {
		st.Reset()
		return nil
	})
	if err != nil {
		return err
	}
	return h.send(ctx, chatID, chat.Text("Reset chat data"))
}

func (h *Handler) listKeys(ctx context.Context, chatID int64) error {
	var b strings.Builder
	err := h.Store.View(chatID, func(st *state.ChatState) {
		for _, id := range st.KeyedIdentifiers() {
			if b.Len() > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(strings.ToUpper(id) + ":\n")
			b.WriteString(strings.Join(st.CachedKeys(id).Upper(), "\n"))
		}
	})
	if err != nil {
		return err
	}
	if b.Len() == 0 {
		return h.send(ctx, chatID, chat.Text("No keys recovered yet"))
	}
	return h.send(ctx, chatID, chat.Code("Recovered keys:", b.String()))
}

func (h *Handler) upload(ctx context.Context, ev Event, logger *log.Logger) error {
	if !logfile.AcceptsFile(ev.FileName) {
		return h.send(ctx, ev.ChatID, chat.Text("Only %s files are accepted", logfile.Extension))
	}

	body, err := ev.Open(ctx)
	if err != nil {
		if sendErr := h.send(ctx, ev.ChatID, chat.Text("Could not download file: %v", err)); sendErr != nil {
			logger.Warn("failed to report download error", "error", sendErr)
		}
		return err
	}
	defer body.Close()

	up, err := logfile.Parse(body)
	if err != nil {
		return boterr.NewValidationErrorWithCause("failed to read upload", err)
	}
	logger.Info("log uploaded",
		"file", ev.FileName,
		"lines", up.Lines,
		"identifiers", len(up.Identifiers),
		"rejected", len(up.Rejected))

	if len(up.Identifiers) > 0 {
		err = h.Store.Update(ev.ChatID, func(st *state.ChatState) error {
			for _, id := range up.Identifiers {
				st.AddLogs(id, up.Groups[id])
			}
			return nil
		})
		if err != nil {
			return err
		}

		msg := chat.Text("Select id to decode:")
		for _, id := range up.Identifiers {
			msg.Buttons = append(msg.Buttons, chat.Row(strings.ToUpper(id), id))
		}
		if err := h.send(ctx, ev.ChatID, msg); err != nil {
			return err
		}
	}

	if len(up.Rejected) > 0 {
		return h.send(ctx, ev.ChatID, rejectedReport(up.Rejected))
	}
	if len(up.Identifiers) == 0 {
		return h.send(ctx, ev.ChatID, chat.Text("No log lines found in %s", ev.FileName))
	}
	return nil
}

func rejectedReport(rejected []logfile.LineError) chat.Message {
	shown := rejected
	if len(shown) > maxRejectedShown {
		shown = shown[:maxRejectedShown]
	}
	var lines []string
	for _, r := range shown {
		lines = append(lines, fmt.Sprintf("%d: %s", r.Number, r.Line))
	}
	if more := len(rejected) - len(shown); more > 0 {
		lines = append(lines, fmt.Sprintf("... and %d more", more))
	}
	header := fmt.Sprintf("Skipped %d malformed line(s):", len(rejected))
	return chat.Code(header, strings.Join(lines, "\n"))
}

func (h *Handler) send(ctx context.Context, chatID int64, msg chat.Message) error {
	if _, err := h.Transport.Send(ctx, chatID, msg); err != nil {
		return boterr.NewTransportErrorWithCause("failed to send reply", err)
	}
	return nil
}

func (h *Handler) logger() *log.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return log.Default()
}
