package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/silver2dream/hardnested-bot/internal/buildinfo"
	"github.com/silver2dream/hardnested-bot/internal/config"
	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
)

var configPath string

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return boterr.GetExitCode(err)
	}
	return 0
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hardnested-bot",
		Short: "Telegram bot that runs hardnested key recovery on uploaded nonce logs",
		Long: `hardnested-bot accepts .log captures from whitelisted Telegram chats, runs
the hardnested attack tool on the selected card id and streams its console
output into the chat.

Configuration comes from an optional YAML file (--config) and the environment:
  TELEGRAM_TOKEN           bot token
  WHITELISTED_CHAT_IDS     comma-separated chat ids
  HNBOT_<SECTION>_<KEY>    any other setting, e.g. HNBOT_STATE_DIR`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       buildinfo.Version,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(newServeCmd(), newCheckCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Version)
		},
	}
}

// loadConfig reads the file named by --config, if any, and the environment.
func loadConfig() (*config.Config, error) {
	return config.Load(config.New(), configPath)
}
