package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/jarvis-voice/internal/history"
	"github.com/zjrosen/jarvis-voice/internal/infrastructure/sqlite"
	"github.com/zjrosen/jarvis-voice/internal/presentation"
)

var (
	historyLimit   int
	historySession string
	historyJSON    bool
	pruneOlderThan time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded turns",
	Long: `Lists recorded turns, newest first.

Examples:
  jarvis history
  jarvis history --limit 5
  jarvis history --session 3f0c... --json | jq '.[].transcript'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		recs, err := db.TurnRepository().List(cmd.Context(), history.ListFilter{
			SessionID: historySession,
			Limit:     historyLimit,
		})
		if err != nil {
			return err
		}

		formatter := presentation.NewFormatter(cmd.OutOrStdout())
		dtos := presentation.FromRecords(recs)
		if historyJSON {
			return formatter.FormatTurns(dtos)
		}
		return formatter.FormatTurnsText(dtos)
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete turns older than a duration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if pruneOlderThan <= 0 {
			return fmt.Errorf("--older-than must be positive")
		}
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		n, err := db.TurnRepository().Prune(cmd.Context(), time.Now().Add(-pruneOlderThan))
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d turn(s)\n", n)
		return err
	},
}

func openHistory() (*sqlite.DB, error) {
	if cfg.History.Path == "" {
		return nil, fmt.Errorf("history.path is not set")
	}
	db, err := sqlite.NewDB(cfg.History.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}
	return db, nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum turns to show (0 for all)")
	historyCmd.Flags().StringVar(&historySession, "session", "", "only turns from this session")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON")
	historyPruneCmd.Flags().DurationVar(&pruneOlderThan, "older-than", 30*24*time.Hour, "delete turns started before now minus this duration")

	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}
