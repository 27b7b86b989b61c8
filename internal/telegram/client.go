// Package telegram implements chat.Transport and inbound event polling on
// top of the Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/silver2dream/hardnested-bot/internal/chat"
	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
)

// api is the subset of *tgbotapi.BotAPI used for outbound calls.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Options configures a Client.
type Options struct {
	Token       string
	PollTimeout time.Duration
	Debug       bool
	// MaxDownload caps document size in bytes. Zero means no limit.
	MaxDownload int64
	Retry       RetryConfig
	HTTPClient  *http.Client
	Logger      *log.Logger
}

// Client talks to the Bot API.
type Client struct {
	bot         *tgbotapi.BotAPI
	api         api
	http        *http.Client
	retry       RetryConfig
	pollTimeout time.Duration
	maxDownload int64
	logger      *log.Logger
}

// New connects to the Bot API and verifies the token.
func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.PollTimeout + 30*time.Second}
	}
	if err := tgbotapi.SetLogger(botLogger{logger.WithPrefix("tgbotapi")}); err != nil {
		return nil, boterr.NewConfigErrorWithCause("failed to set bot api logger", err)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, hc)
	if err != nil {
		return nil, boterr.NewTransportErrorWithCause("failed to connect to telegram", err)
	}
	bot.Debug = opts.Debug
	logger.Info("authorized", "account", bot.Self.UserName)

	c := newClient(bot, hc, opts, logger)
	c.bot = bot
	return c, nil
}

func newClient(a api, hc *http.Client, opts Options, logger *log.Logger) *Client {
	retry := opts.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{
		api:         a,
		http:        hc,
		retry:       retry,
		pollTimeout: opts.PollTimeout,
		maxDownload: opts.MaxDownload,
		logger:      logger,
	}
}

// Send implements chat.Transport.
func (c *Client) Send(ctx context.Context, chatID int64, msg chat.Message) (chat.MessageRef, error) {
	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if len(msg.Buttons) > 0 {
		cfg.ReplyMarkup = keyboard(msg.Buttons)
	}

	var sent tgbotapi.Message
	err := withRetry(ctx, c.retry, c.logger, "send", func() error {
		var err error
		sent, err = c.api.Send(cfg)
		return err
	})
	if err != nil {
		return chat.MessageRef{}, boterr.NewTransportErrorWithCause("failed to send message", err)
	}
	return chat.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

// Edit implements chat.Transport. Edits that leave the text unchanged are
// not errors.
func (c *Client) Edit(ctx context.Context, ref chat.MessageRef, msg chat.Message) error {
	cfg := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, msg.Text)
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if len(msg.Buttons) > 0 {
		kb := keyboard(msg.Buttons)
		cfg.ReplyMarkup = &kb
	}

	err := withRetry(ctx, c.retry, c.logger, "edit", func() error {
		_, err := c.api.Request(cfg)
		return err
	})
	if err != nil && !isNotModified(err) {
		return boterr.NewTransportErrorWithCause("failed to edit message", err)
	}
	return nil
}

// Delete implements chat.Transport.
func (c *Client) Delete(ctx context.Context, ref chat.MessageRef) error {
	err := withRetry(ctx, c.retry, c.logger, "delete", func() error {
		_, err := c.api.Request(tgbotapi.NewDeleteMessage(ref.ChatID, ref.MessageID))
		return err
	})
	if err != nil {
		return boterr.NewTransportErrorWithCause("failed to delete message", err)
	}
	return nil
}

// AnswerCallback implements chat.Transport.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	err := withRetry(ctx, c.retry, c.logger, "answer", func() error {
		_, err := c.api.Request(tgbotapi.NewCallback(callbackID, ""))
		return err
	})
	if err != nil {
		return boterr.NewTransportErrorWithCause("failed to answer callback", err)
	}
	return nil
}

// Download fetches a document body, refusing anything over the size limit.
func (c *Client) Download(ctx context.Context, doc *tgbotapi.Document) (io.ReadCloser, error) {
	if c.maxDownload > 0 && int64(doc.FileSize) > c.maxDownload {
		return nil, boterr.NewValidationError(fmt.Sprintf("file is larger than %d bytes", c.maxDownload))
	}

	var link string
	err := withRetry(ctx, c.retry, c.logger, "get_file", func() error {
		var err error
		link, err = c.api.GetFileDirectURL(doc.FileID)
		return err
	})
	if err != nil {
		return nil, boterr.NewTransportErrorWithCause("failed to locate file", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, boterr.NewTransportErrorWithCause("failed to build download request", stripURL(err))
	}
	resp, err := c.http.Do(req)
	if err != nil {
		// the direct link embeds the token
		return nil, boterr.NewTransportErrorWithCause("failed to download file", stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, boterr.NewTransportError(fmt.Sprintf("file download returned %s", resp.Status))
	}

	body := io.Reader(resp.Body)
	if c.maxDownload > 0 {
		body = io.LimitReader(resp.Body, c.maxDownload+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, boterr.NewTransportErrorWithCause("failed to read file", stripURL(err))
	}
	if c.maxDownload > 0 && int64(len(data)) > c.maxDownload {
		return nil, boterr.NewValidationError(fmt.Sprintf("file is larger than %d bytes", c.maxDownload))
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func keyboard(rows [][]chat.Button) tgbotapi.InlineKeyboardMarkup {
	out := make([][]tgbotapi.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Payload))
		}
		out = append(out, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(out...)
}

func isNotModified(err error) bool {
	return strings.Contains(err.Error(), "message is not modified")
}

func stripURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return fmt.Errorf("%s: %w", uerr.Op, uerr.Err)
	}
	return err
}

// botLogger routes library output through the redacting logger.
type botLogger struct {
	l *log.Logger
}

func (b botLogger) Println(v ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintln(v...)))
}

func (b botLogger) Printf(format string, v ...interface{}) {
	b.l.Debugf(format, v...)
}
