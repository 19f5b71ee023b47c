package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"document-qa/internal/config"
	"document-qa/internal/db"
	"document-qa/internal/helper"
	"document-qa/internal/models"
)

func newHistoryCmd() *cobra.Command {
	var (
		sessionID string
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently answered questions from the Q&A history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("%w: --limit must be positive, got %d", models.ErrInvalidConfig, limit)
			}
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			helper.SetupLogger(cfg.Log.Level, cfg.Log.Pretty)
			if !cfg.History.Enabled {
				return fmt.Errorf("%w: history is disabled in %s", models.ErrInvalidConfig, configPath)
			}

			ctx := cmd.Context()
			store, err := db.OpenHistory(ctx, cfg.History)
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.Recent(ctx, sessionID, limit)
			if err != nil {
				return err
			}
			if asJSON {
				helper.PrettyPrint(os.Stdout, records)
				return nil
			}
			writeHistory(os.Stdout, records)
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "only show answers from this session")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of answers to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print records as JSON")
	return cmd
}

func writeHistory(w io.Writer, records []db.QARecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No answered questions yet.")
		return
	}
	for _, r := range records {
		fmt.Fprintf(w, "%s  %s  (%s)\n", r.CreatedAt.Format("2006-01-02 15:04:05"), r.DocumentName, r.SessionID)
		fmt.Fprintf(w, "  Q: %s\n", r.Question)
		fmt.Fprintf(w, "  A: %s\n", strings.TrimSpace(r.Answer))
		if len(r.ContextIDs) > 0 {
			fmt.Fprintf(w, "  Context: %s\n", strings.Join(r.ContextIDs, ", "))
		}
	}
}
