package telegram

import (
	"context"
	"errors"
	"math"
	"net"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// RetryConfig holds retry parameters for Bot API calls.
type RetryConfig struct {
	MaxAttempts int           // default 4
	BaseDelay   time.Duration // default 1s
	MaxDelay    time.Duration // default 30s
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// IsRetryable reports whether a Bot API error is worth retrying and, for
// flood control, how long the server asked us to wait.
func IsRetryable(err error) (bool, time.Duration) {
	if err == nil {
		return false, 0
	}

	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 429:
			return true, time.Duration(apiErr.RetryAfter) * time.Second
		case apiErr.Code >= 500:
			return true, 0
		default:
			// bad request, forbidden, not found: retrying changes nothing
			return false, 0
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true, 0
	}

	lower := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout", "timed out",
		"connection refused", "connection reset",
		"no such host", "eof",
		"temporary failure",
	} {
		if strings.Contains(lower, s) {
			return true, 0
		}
	}
	return false, 0
}

// withRetry calls fn until it succeeds, fails permanently or attempts run out.
// Request URLs carry the bot token, so they are dropped from the returned
// error.
func withRetry(ctx context.Context, cfg RetryConfig, logger *log.Logger, op string, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		retry, hint := IsRetryable(lastErr)
		if !retry || attempt == cfg.MaxAttempts {
			return stripURL(lastErr)
		}

		delay := time.Duration(float64(cfg.BaseDelay) * math.Pow(2, float64(attempt-1)))
		if hint > delay {
			delay = hint
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay && hint <= cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
		logger.Warn("bot api call failed, retrying",
			"op", op,
			"attempt", attempt,
			"max", cfg.MaxAttempts,
			"delay", delay,
			"error", stripURL(lastErr))

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return stripURL(lastErr)
}
