package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/silver2dream/hardnested-bot/internal/attack"
	"github.com/silver2dream/hardnested-bot/internal/bot"
	"github.com/silver2dream/hardnested-bot/internal/buildinfo"
	"github.com/silver2dream/hardnested-bot/internal/config"
	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
	"github.com/silver2dream/hardnested-bot/internal/logging"
	"github.com/silver2dream/hardnested-bot/internal/preflight"
	"github.com/silver2dream/hardnested-bot/internal/ptyproc"
	"github.com/silver2dream/hardnested-bot/internal/state"
	"github.com/silver2dream/hardnested-bot/internal/telegram"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run preflight checks, then poll Telegram for updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, closer, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Dir:     cfg.Log.Dir,
		Secrets: []string{cfg.Telegram.Token},
	})
	if err != nil {
		return boterr.NewConfigErrorWithCause("failed to set up logging", err)
	}
	defer closer.Close()
	log.SetDefault(logger)

	logger.Info("starting hardnested-bot", "version", buildinfo.Version)

	results, err := preflight.NewChecker(cfg).RunAll()
	for _, r := range results {
		switch {
		case !r.Passed:
			logger.Error("preflight", "check", r.Name, "detail", r.Message)
		case r.Warning:
			logger.Warn("preflight", "check", r.Name, "detail", r.Message)
		default:
			logger.Info("preflight", "check", r.Name, "detail", r.Message)
		}
	}
	if err != nil {
		return boterr.NewValidationErrorWithCause("preflight failed", err)
	}

	lock := state.NewInstanceLock(cfg.State.Dir)
	if err := lock.Acquire(); err != nil {
		return boterr.NewStateErrorWithCause("failed to lock state directory", err)
	}
	defer lock.Release()

	store, err := state.NewStore(cfg.State.Dir)
	if err != nil {
		return err
	}

	client, err := telegram.New(telegram.Options{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.Telegram.PollTimeout,
		Debug:       cfg.Telegram.Debug,
		MaxDownload: cfg.Upload.MaxBytes,
		Retry:       telegram.DefaultRetryConfig(),
		Logger:      logger.WithPrefix("telegram"),
	})
	if err != nil {
		return err
	}

	runner := &attack.Runner{
		Binary:          cfg.Attack.Binary,
		Launcher:        &ptyproc.Launcher{Backoff: cfg.Attack.PollBackoff},
		Transport:       client,
		MaxLen:          cfg.Transcript.MaxLen,
		Marker:          cfg.Transcript.Marker,
		Timeout:         cfg.Attack.Timeout,
		KeepInputs:      cfg.Attack.KeepInputs,
		MinFreeMemoryMB: cfg.Attack.MinFreeMemoryMB,
		Logger:          logger.WithPrefix("attack"),
	}
	handler := &bot.Handler{
		Store: store,
		Coordinator: &bot.Coordinator{
			Store:     store,
			Runner:    runner,
			Transport: client,
			Logger:    logger.WithPrefix("coordinator"),
		},
		Transport:   client,
		Whitelisted: cfg.IsWhitelisted,
		Logger:      logger.WithPrefix("handler"),
	}

	if err := client.Run(ctx, handler.Handle); err != nil {
		return boterr.NewTransportErrorWithCause("polling stopped", err)
	}
	logger.Info("shut down")
	return nil
}
