// Package bot turns inbound chat events into state changes, attack runs
// and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/silver2dream/hardnested-bot/internal/attack"
	"github.com/silver2dream/hardnested-bot/internal/chat"
	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
	"github.com/silver2dream/hardnested-bot/internal/keys"
	"github.com/silver2dream/hardnested-bot/internal/state"
)

// ForcePrefix marks a callback payload that skips the cache and the
// running check.
const ForcePrefix = "!"

// Runner executes one attack job. *attack.Runner implements it.
type Runner interface {
	Run(ctx context.Context, job attack.Job) (keys.Set, error)
}

// Coordinator decides, per chat and identifier, whether to show cached
// keys, refuse a duplicate run or launch a new one.
type Coordinator struct {
	Store     *state.Store
	Runner    Runner
	Transport chat.Transport
	Logger    *log.Logger
}

type decision int

const (
	showCached decision = iota
	busy
	noLogs
	launch
)

// errUnchanged aborts a Store.Update without persisting.
var errUnchanged = errors.New("state unchanged")

// Select handles a button press carrying payload. A launched attack runs
// to completion before Select returns.
func (c *Coordinator) Select(ctx context.Context, chatID int64, payload string) error {
	force := strings.HasPrefix(payload, ForcePrefix)
	id := strings.TrimPrefix(payload, ForcePrefix)
	if id == "" {
		return boterr.NewValidationError("empty identifier")
	}

	var (
		d      decision
		cached keys.Set
		lines  []string
	)
	err := c.Store.Update(chatID, func(st *state.ChatState) error {
		if !force {
			if k := st.CachedKeys(id); k.Len() > 0 {
				d, cached = showCached, keys.NewSet()
				cached.Merge(k)
				return errUnchanged
			}
			if st.IsRunning(id) {
				d = busy
				return errUnchanged
			}
		}
		if !st.HasLogs(id) {
			d = noLogs
			return errUnchanged
		}
		st.MarkRunning(id)
		lines = st.LinesFor(id)
		d = launch
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return err
	}

	switch d {
	case showCached:
		msg := chat.Code("Keys found for this cuid:", strings.Join(cached.Upper(), "\n"))
		msg.Buttons = [][]chat.Button{chat.Row("Recalculate", ForcePrefix+id)}
		return c.send(ctx, chatID, msg)
	case busy:
		msg := chat.Text("Already running; please wait")
		msg.Buttons = [][]chat.Button{chat.Row("Start anyway", ForcePrefix+id)}
		return c.send(ctx, chatID, msg)
	case noLogs:
		return c.send(ctx, chatID, chat.Text("No logs found for this chat; please resend file"))
	}

	c.launch(ctx, chatID, id, lines, force)
	return nil
}

// launch runs the attack and always releases the running marker, even when
// the runner panics.
func (c *Coordinator) launch(ctx context.Context, chatID int64, id string, lines []string, force bool) {
	logger := c.logger().With("chat", chatID, "cuid", id)
	logger.Info("attack requested", "lines", len(lines), "force", force)

	var (
		found  keys.Set
		runErr error
	)
	defer func() {
		if p := recover(); p != nil {
			logger.Error("attack panicked", "panic", p)
			runErr = boterr.NewGeneralError(fmt.Sprintf("internal error: %v", p))
		}

		// the release must stick in memory even if the record cannot be written
		var fresh keys.Set
		err := c.Store.Apply(chatID, func(st *state.ChatState) {
			st.Release(id)
			fresh = st.MergeKeys(id, found)
		})
		if err != nil {
			logger.Error("failed to persist attack result", "error", err)
		}
		if fresh.Len() > 0 {
			logger.Info("new keys cached", "keys", fresh.Upper())
		}

		c.report(ctx, chatID, found, runErr, logger)
	}()

	found, runErr = c.Runner.Run(ctx, attack.Job{ChatID: chatID, Identifier: id, Lines: lines})
}

func (c *Coordinator) report(ctx context.Context, chatID int64, found keys.Set, runErr error, logger *log.Logger) {
	// replies must go out even if the run was cancelled
	ctx = context.WithoutCancel(ctx)

	if found.Len() > 0 {
		if err := c.send(ctx, chatID, chat.Code("Found keys:", strings.Join(found.Upper(), "\n"))); err != nil {
			logger.Error("failed to report keys", "error", err)
		}
	}
	if runErr != nil {
		logger.Error("attack failed", "error", runErr)
		if err := c.send(ctx, chatID, chat.Text("Attack failed: %v", runErr)); err != nil {
			logger.Error("failed to report failure", "error", err)
		}
		return
	}
	if found.Len() == 0 {
		if err := c.send(ctx, chatID, chat.Text("No new keys found")); err != nil {
			logger.Error("failed to report result", "error", err)
		}
	}
}

func (c *Coordinator) send(ctx context.Context, chatID int64, msg chat.Message) error {
	if _, err := c.Transport.Send(ctx, chatID, msg); err != nil {
		return boterr.NewTransportErrorWithCause("failed to send reply", err)
	}
	return nil
}

func (c *Coordinator) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}
