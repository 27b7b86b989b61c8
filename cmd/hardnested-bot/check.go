package main

import (
	"github.com/spf13/cobra"

	boterr "github.com/silver2dream/hardnested-bot/internal/errors"
	"github.com/silver2dream/hardnested-bot/internal/preflight"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks and print the results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			out := preflight.NewOutputFormatter(cmd.OutOrStdout())
			results, err := preflight.NewChecker(cfg).RunAll()
			out.Results(results)
			if err != nil {
				return boterr.NewValidationErrorWithCause("preflight failed", err)
			}
			out.Success("Ready to serve")
			return nil
		},
	}
}
