package telegram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/silver2dream/hardnested-bot/internal/bot"
	"github.com/silver2dream/hardnested-bot/internal/chat"
	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
)

type fakeAPI struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	errs     []error
	link     string
	linkErr  error
}

func (f *fakeAPI) nextErr() error {
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.nextErr(); err != nil {
		return tgbotapi.Message{}, err
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 100 + len(f.sent)}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetFileDirectURL(string) (string, error) {
	if f.linkErr != nil {
		return "", f.linkErr
	}
	return f.link, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func testClient(a api, maxDownload int64) *Client {
	return newClient(a, nil, Options{Retry: fastRetry(), MaxDownload: maxDownload}, log.New(io.Discard))
}

func TestIsRetryable(t *testing.T) {
	flood := &tgbotapi.Error{Code: 429, Message: "Too Many Requests", ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 3}}

	tests := []struct {
		name  string
		err   error
		want  bool
		delay time.Duration
	}{
		{"nil", nil, false, 0},
		{"flood control", flood, true, 3 * time.Second},
		{"server error", &tgbotapi.Error{Code: 502, Message: "Bad Gateway"}, true, 0},
		{"bad request", &tgbotapi.Error{Code: 400, Message: "Bad Request: chat not found"}, false, 0},
		{"forbidden", &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}, false, 0},
		{"connection reset", errors.New("read tcp: connection reset by peer"), true, 0},
		{"timeout", errors.New("Client.Timeout exceeded while awaiting headers (timed out)"), true, 0},
		{"other", errors.New("json: cannot unmarshal"), false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, delay := IsRetryable(tt.err)
			if got != tt.want || delay != tt.delay {
				t.Errorf("IsRetryable = (%v, %v), want (%v, %v)", got, delay, tt.want, tt.delay)
			}
		})
	}
}

func TestWithRetry(t *testing.T) {
	logger := log.New(io.Discard)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fastRetry(), logger, "op", func() error {
			calls++
			if calls < 3 {
				return &tgbotapi.Error{Code: 500, Message: "Internal Server Error"}
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Errorf("withRetry = %v after %d calls", err, calls)
		}
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fastRetry(), logger, "op", func() error {
			calls++
			return &tgbotapi.Error{Code: 400, Message: "Bad Request"}
		})
		if err == nil || calls != 1 {
			t.Errorf("withRetry = %v after %d calls", err, calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), fastRetry(), logger, "op", func() error {
			calls++
			return errors.New("connection refused")
		})
		if err == nil || calls != 3 {
			t.Errorf("withRetry = %v after %d calls", err, calls)
		}
	})

	t.Run("honors cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		cfg := RetryConfig{MaxAttempts: 3, BaseDelay: time.Hour}
		err := withRetry(ctx, cfg, logger, "op", func() error { return errors.New("timeout") })
		if !errors.Is(err, context.Canceled) {
			t.Errorf("withRetry = %v, want context.Canceled", err)
		}
	})
}

func TestClient_SendBuildsMarkdownKeyboard(t *testing.T) {
	a := &fakeAPI{}
	c := testClient(a, 0)

	msg := chat.Code("Found keys:", "A0A1A2A3A4A5")
	msg.Buttons = [][]chat.Button{chat.Row("Recalculate", "!cafe")}
	ref, err := c.Send(context.Background(), 9, msg)
	if err != nil {
		t.Fatal(err)
	}
	if ref != (chat.MessageRef{ChatID: 9, MessageID: 101}) {
		t.Errorf("ref = %+v", ref)
	}

	cfg, ok := a.sent[0].(tgbotapi.MessageConfig)
	if !ok {
		t.Fatalf("sent %T", a.sent[0])
	}
	if cfg.ChatID != 9 || cfg.ParseMode != tgbotapi.ModeMarkdown || cfg.Text != msg.Text {
		t.Errorf("config = %+v", cfg)
	}
	kb, ok := cfg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	if !ok || len(kb.InlineKeyboard) != 1 {
		t.Fatalf("reply markup = %#v", cfg.ReplyMarkup)
	}
	button := kb.InlineKeyboard[0][0]
	if button.Text != "Recalculate" || button.CallbackData == nil || *button.CallbackData != "!cafe" {
		t.Errorf("button = %+v", button)
	}
}

func TestClient_PlainTextHasNoParseMode(t *testing.T) {
	a := &fakeAPI{}
	if _, err := testClient(a, 0).Send(context.Background(), 1, chat.Text("Reset chat data")); err != nil {
		t.Fatal(err)
	}
	if cfg := a.sent[0].(tgbotapi.MessageConfig); cfg.ParseMode != "" {
		t.Errorf("ParseMode = %q, want empty", cfg.ParseMode)
	}
}

func TestClient_SendRetriesFloodControl(t *testing.T) {
	a := &fakeAPI{errs: []error{&tgbotapi.Error{Code: 429, Message: "Too Many Requests"}}}
	if _, err := testClient(a, 0).Send(context.Background(), 1, chat.Text("hi")); err != nil {
		t.Fatalf("Send = %v", err)
	}
	if len(a.sent) != 1 {
		t.Errorf("sent %d messages", len(a.sent))
	}
}

func TestClient_EditIgnoresNotModified(t *testing.T) {
	a := &fakeAPI{errs: []error{&tgbotapi.Error{Code: 400, Message: "Bad Request: message is not modified: specified new message content is exactly the same"}}}
	c := testClient(a, 0)

	if err := c.Edit(context.Background(), chat.MessageRef{ChatID: 1, MessageID: 5}, chat.Text("same")); err != nil {
		t.Errorf("Edit = %v, want nil", err)
	}
	cfg, ok := a.requests[0].(tgbotapi.EditMessageTextConfig)
	if !ok || cfg.MessageID != 5 || cfg.Text != "same" {
		t.Errorf("request = %#v", a.requests[0])
	}

	a.errs = []error{&tgbotapi.Error{Code: 400, Message: "Bad Request: message to edit not found"}}
	if err := c.Edit(context.Background(), chat.MessageRef{ChatID: 1, MessageID: 6}, chat.Text("x")); !boterr.IsTransportError(err) {
		t.Errorf("Edit = %v, want transport error", err)
	}
}

func TestClient_Download(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/small.log":
			io.WriteString(w, "1 2 3 4 5 cafe\n")
		case "/big.log":
			io.WriteString(w, strings.Repeat("x", 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := &fakeAPI{}
	c := testClient(a, 32)

	a.link = srv.URL + "/small.log"
	body, err := c.Download(context.Background(), &tgbotapi.Document{FileID: "f1", FileSize: 15})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "1 2 3 4 5 cafe\n" {
		t.Errorf("body = %q", data)
	}

	a.link = srv.URL + "/big.log"
	if _, err := c.Download(context.Background(), &tgbotapi.Document{FileID: "f2"}); !boterr.IsValidationError(err) {
		t.Errorf("oversized body: err = %v, want validation error", err)
	}
	if _, err := c.Download(context.Background(), &tgbotapi.Document{FileID: "f3", FileSize: 1000}); !boterr.IsValidationError(err) {
		t.Errorf("oversized declared size: err = %v, want validation error", err)
	}

	a.link = srv.URL + "/missing.log"
	if _, err := c.Download(context.Background(), &tgbotapi.Document{FileID: "f4"}); !boterr.IsTransportError(err) {
		t.Errorf("404: err = %v, want transport error", err)
	}
}

func TestClient_DownloadErrorHidesLink(t *testing.T) {
	a := &fakeAPI{link: "http://127.0.0.1:1/file/bot123:SECRET/doc.log"}
	c := testClient(a, 0)
	c.retry = RetryConfig{MaxAttempts: 1}

	_, err := c.Download(context.Background(), &tgbotapi.Document{FileID: "f"})
	if err == nil {
		t.Fatal("expected a connection error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Errorf("error leaks the file link: %v", err)
	}
}

func TestClient_ErrorsHideToken(t *testing.T) {
	apiErr := func(method string) error {
		return &url.Error{
			Op:  "Post",
			URL: "https://api.telegram.org/bot123456:SECRETTOKEN/" + method,
			Err: errors.New("connection reset by peer"),
		}
	}
	repeat := func(err error) []error { return []error{err, err, err} }

	tests := []struct {
		name string
		call func(c *Client, a *fakeAPI) error
	}{
		{"send", func(c *Client, a *fakeAPI) error {
			a.errs = repeat(apiErr("sendMessage"))
			_, err := c.Send(context.Background(), 1, chat.Text("hi"))
			return err
		}},
		{"edit", func(c *Client, a *fakeAPI) error {
			a.errs = repeat(apiErr("editMessageText"))
			return c.Edit(context.Background(), chat.MessageRef{ChatID: 1, MessageID: 2}, chat.Text("hi"))
		}},
		{"answer", func(c *Client, a *fakeAPI) error {
			a.errs = repeat(apiErr("answerCallbackQuery"))
			return c.AnswerCallback(context.Background(), "cb")
		}},
		{"locate file", func(c *Client, a *fakeAPI) error {
			a.linkErr = apiErr("getFile")
			_, err := c.Download(context.Background(), &tgbotapi.Document{FileID: "f"})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &fakeAPI{}
			err := tt.call(testClient(a, 0), a)
			if err == nil {
				t.Fatal("expected an error")
			}
			if strings.Contains(err.Error(), "SECRETTOKEN") {
				t.Errorf("error leaks the token: %v", err)
			}
			if !strings.Contains(err.Error(), "connection reset by peer") {
				t.Errorf("error lost its cause: %v", err)
			}
		})
	}
}

func TestTranslate(t *testing.T) {
	c := testClient(&fakeAPI{}, 0)
	command := func(text string) tgbotapi.Update {
		return tgbotapi.Update{Message: &tgbotapi.Message{
			Text:     text,
			Chat:     &tgbotapi.Chat{ID: 5},
			Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
		}}
	}

	tests := []struct {
		name string
		upd  tgbotapi.Update
		want bot.EventKind
		ok   bool
	}{
		{"start", command("/start"), bot.EventStart, true},
		{"reset", command("/reset"), bot.EventReset, true},
		{"keys", command("/keys"), bot.EventKeys, true},
		{"help", command("/help"), bot.EventHelp, true},
		{"unknown command", command("/foo"), bot.EventUnknown, true},
		{"document", tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:     &tgbotapi.Chat{ID: 5},
			Document: &tgbotapi.Document{FileID: "f", FileName: "a.log"},
		}}, bot.EventUpload, true},
		{"callback", tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "q",
			Data:    "!cafe",
			Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5}},
		}}, bot.EventCallback, true},
		{"plain text", tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi", Chat: &tgbotapi.Chat{ID: 5}}}, 0, false},
		{"inline callback", tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "q"}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := c.Translate(tt.upd)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			if ev.Kind != tt.want || ev.ChatID != 5 {
				t.Errorf("event = %+v", ev)
			}
		})
	}

	ev, _ := c.Translate(tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID: "q", Data: "!cafe", Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 5}},
	}})
	if ev.CallbackID != "q" || ev.Payload != "!cafe" {
		t.Errorf("callback event = %+v", ev)
	}
}
