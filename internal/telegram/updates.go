package telegram

import (
	"context"
	"fmt"
	"io"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/silver2dream/hardnested-bot/internal/bot"
)

// HandlerFunc processes one inbound event.
type HandlerFunc func(ctx context.Context, ev bot.Event) error

// commands maps bot commands to event kinds. Unlisted commands are unknown.
var commands = map[string]bot.EventKind{
	"start": bot.EventStart,
	"reset": bot.EventReset,
	"keys":  bot.EventKeys,
	"help":  bot.EventHelp,
}

// Run long-polls for updates and handles each on its own goroutine until
// ctx is done. It waits for in-flight handlers before returning.
func (c *Client) Run(ctx context.Context, handle HandlerFunc) error {
	if c.bot == nil {
		return fmt.Errorf("client has no bot api connection")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = int(c.pollTimeout.Seconds())
	updates := c.bot.GetUpdatesChan(u)

	var wg sync.WaitGroup
	defer wg.Wait()

	c.logger.Info("polling for updates", "timeout", c.pollTimeout)
	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.logger.Info("stopped polling, waiting for running handlers")
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			ev, ok := c.Translate(upd)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				c.dispatch(ctx, handle, ev, upd.UpdateID)
			}()
		}
	}
}

func (c *Client) dispatch(ctx context.Context, handle HandlerFunc, ev bot.Event, updateID int) {
	logger := c.logger.With("update", updateID, "chat", ev.ChatID, "event", ev.Kind)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("handler panicked", "panic", p)
		}
	}()
	if err := handle(ctx, ev); err != nil {
		logger.Error("failed to handle update", "error", err)
	}
}

// Translate converts an update into an event. Updates the bot does not act
// on report false.
func (c *Client) Translate(upd tgbotapi.Update) (bot.Event, bool) {
	switch {
	case upd.CallbackQuery != nil:
		q := upd.CallbackQuery
		if q.Message == nil || q.Message.Chat == nil {
			return bot.Event{}, false
		}
		return bot.Event{
			Kind:       bot.EventCallback,
			ChatID:     q.Message.Chat.ID,
			CallbackID: q.ID,
			Payload:    q.Data,
		}, true

	case upd.Message != nil && upd.Message.Chat != nil:
		m := upd.Message
		if m.IsCommand() {
			kind, ok := commands[m.Command()]
			if !ok {
				kind = bot.EventUnknown
			}
			return bot.Event{Kind: kind, ChatID: m.Chat.ID}, true
		}
		if m.Document != nil {
			doc := m.Document
			return bot.Event{
				Kind:     bot.EventUpload,
				ChatID:   m.Chat.ID,
				FileName: doc.FileName,
				Open: func(ctx context.Context) (io.ReadCloser, error) {
					return c.Download(ctx, doc)
				},
			}, true
		}
	}
	return bot.Event{}, false
}
