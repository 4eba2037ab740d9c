package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/jarvis-voice/internal/config"
	"github.com/zjrosen/jarvis-voice/internal/preflight"
	"github.com/zjrosen/jarvis-voice/internal/session"
	"github.com/zjrosen/jarvis-voice/internal/worker"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the voice backend dependencies are installed",
	Long: `Runs the configured dependency check with the voice interpreter and prints
install guidance when a module is missing. This is the same check performed
before the listener starts.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.Validate(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		state := session.New(context.Background())
		defer state.Stop()

		checker := preflight.NewChecker(worker.NewRunner(state), cfg.PreflightSpec(), cfg.Preflight.Packages)
		if err := checker.Check(cmd.Context()); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Voice dependencies OK (%s)\n", cfg.PythonCommand())
		return err
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
