package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/rag"
)

func newAskCmd() *cobra.Command {
	var (
		file      string
		questions []string
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "ask",
		Short: "Load a document and answer one or more questions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(questions) == 0 {
				return fmt.Errorf("%w: at least one --question is required", models.ErrEmptyQuestion)
			}
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

			answers := make([]*models.Answer, 0, len(questions))
			for _, q := range questions {
				answer, err := s.Ask(ctx, q)
				if err != nil {
					return err
				}
				answers = append(answers, answer)
			}

			if asJSON {
				helper.PrettyPrint(os.Stdout, answers)
				return nil
			}
			for _, answer := range answers {
				printAnswer(answer)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "document to load (pdf, docx, pptx, xlsx, md, txt)")
	cmd.Flags().StringArrayVarP(&questions, "question", "q", nil, "question to ask (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print answers as JSON")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func printAnswer(a *models.Answer) {
	fmt.Printf("Question: %s\n\n", a.Question)
	fmt.Printf("Answer: %s\n\n", a.Content)
	fmt.Println("Context chunks used:")
	for _, m := range a.Context {
		fmt.Printf("  [%s %.3f] %s\n", m.ID, m.Similarity, strings.TrimSpace(m.Text))
	}
	fmt.Println()
}
