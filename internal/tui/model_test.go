package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"document-qa/internal/models"
)

type fakePort struct {
	questions []string
	err       error
}

func (f *fakePort) Ask(_ context.Context, question string) (*models.Answer, error) {
	f.questions = append(f.questions, question)
	if f.err != nil {
		return nil, f.err
	}
	return &models.Answer{
		Question: question,
		Content:  "forty-two",
		Context:  []models.Match{{ID: "chunk_4", Index: 4, Text: "the answer is forty-two", Similarity: 0.9}},
	}, nil
}

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

// runAsk executes the command returned for Enter and hands the answer back
// to the model.
func runAsk(t *testing.T, m tea.Model, cmd tea.Cmd) tea.Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command after enter")
	}
	msg := cmd()
	batch, ok := msg.(tea.BatchMsg)
	if !ok {
		batch = tea.BatchMsg{func() tea.Msg { return msg }}
	}
	for _, c := range batch {
		if c == nil {
			continue
		}
		if am, ok := c().(answerMsg); ok {
			m, _ = m.Update(am)
			return m
		}
	}
	t.Fatal("no answer message produced")
	return m
}

func TestModel_AsksAndRendersAnswer(t *testing.T) {
	port := &fakePort{}
	var m tea.Model = New(port, "guide.pdf", 0)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	m = typeText(m, "what is it?")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if !m.(Model).pending {
		t.Error("expected pending state while asking")
	}
	m = runAsk(t, m, cmd)

	if len(port.questions) != 1 || port.questions[0] != "what is it?" {
		t.Fatalf("unexpected questions %q", port.questions)
	}
	model := m.(Model)
	if model.pending {
		t.Error("expected pending to clear")
	}
	view := model.View()
	for _, want := range []string{"Document QA", "guide.pdf", "forty-two", "chunk_4"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestModel_ShowsErrors(t *testing.T) {
	port := &fakePort{err: errors.New("generation service error")}
	var m tea.Model = New(port, "guide.pdf", 0)
	m, _ = m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	m = typeText(m, "why?")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = runAsk(t, m, cmd)

	if !strings.Contains(m.(Model).status, "generation service error") {
		t.Errorf("unexpected status %q", m.(Model).status)
	}
}

func TestModel_IgnoresBlankAndQuits(t *testing.T) {
	var m tea.Model = New(&fakePort{}, "guide.pdf", 0)
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("blank question should not produce a command")
	}
	if m.View() != "Loading..." {
		t.Errorf("expected loading view before size, got %q", m.View())
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}
