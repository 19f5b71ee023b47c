package main

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"document-qa/internal/helper"
	"document-qa/internal/rag"
	"document-qa/internal/tui"
)

func newChatCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Load a document and chat with it in the terminal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			id, err := helper.GenerateUUID()
			if err != nil {
				return err
			}
			s, err := a.newSession(id, rag.WithProgress(logProgress))
			if err != nil {
				return err
			}
			defer s.Close()

			if err := loadFile(ctx, s, file); err != nil {
				return err
			}

			m := tui.New(s, s.Status().DocumentName, a.cfg.GenLLM.Timeout)
			_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document to load")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
