package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"document-qa/internal/models"
)

// AskPort is the TUI-facing subset of a document session.
type AskPort interface {
	Ask(ctx context.Context, question string) (*models.Answer, error)
}

type answerMsg struct {
	question string
	answer   *models.Answer
	err      error
}

// Model is the Bubble Tea model for chatting with one loaded document.
type Model struct {
	session  AskPort
	timeout  time.Duration
	document string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	transcript []string
	status     string
	pending    bool
	ready      bool
}

// New creates a chat model for a session that already holds document.
func New(session AskPort, document string, timeout time.Duration) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		session:  session,
		timeout:  timeout,
		document: document,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "Document loaded. Ask away.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

// askCmd runs the question off the UI loop.
func (m Model) askCmd(question string) tea.Cmd {
	session, timeout := m.session, m.timeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		answer, err := session.Ask(ctx, question)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := boxStyle.GetFrameSize()
		reserved := 2 + 1 + fh + 3 // header, status, input box
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD || msg.Type == tea.KeyEsc {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = "Thinking..."
			m.input.Reset()
			m.transcript = append(m.transcript, questionStyle.Render("Q: "+q))
			m.refresh()
			return m, tea.Batch(m.askCmd(q), m.spinner.Tick)
		}

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.transcript = append(m.transcript, errorStyle.Render("error: "+msg.err.Error()))
		} else {
			m.status = fmt.Sprintf("Answered from %d context chunks", len(msg.answer.Context))
			m.transcript = append(m.transcript, renderAnswer(msg.answer))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) refresh() {
	if len(m.transcript) == 0 {
		m.viewport.SetContent("No questions yet.")
		return
	}
	m.viewport.SetContent(strings.Join(m.transcript, "\n\n"))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Document QA")
	doc := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.document)
	status := m.status
	if m.pending {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + doc + "\n" +
		boxStyle.Render(m.viewport.View()) + "\n" +
		boxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func renderAnswer(a *models.Answer) string {
	var sb strings.Builder
	sb.WriteString(a.Content)
	if len(a.Context) > 0 {
		sb.WriteString("\n")
		sb.WriteString(contextStyle.Render("Context chunks used:"))
		for _, c := range a.Context {
			sb.WriteString("\n")
			sb.WriteString(contextStyle.Render(fmt.Sprintf("  [%s %.3f] %s", c.ID, c.Similarity, c.Text)))
		}
	}
	return sb.String()
}

var (
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	contextStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)
