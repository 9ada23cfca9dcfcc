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

	"fuelrag/internal/domain"
)

// AskPort is the TUI-facing subset of the answer service.
type AskPort interface {
	Ask(ctx context.Context, question string) (domain.Answer, error)
}

const askTimeout = 90 * time.Second

type answerMsg struct {
	question string
	answer   domain.Answer
}

type askErrMsg struct {
	question string
	err      error
}

// Model is the Bubble Tea model for the question-answering TUI.
type Model struct {
	service  AskPort
	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model
	overview string
	status   string
	waiting  bool
	ready    bool
	history  []string
}

// New creates a new TUI model. overview is the dataset summary shown in the
// header.
func New(service AskPort, overview string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about fuel sales and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	vp := viewport.New(0, 0)
	return Model{
		service:  service,
		input:    ti,
		viewport: vp,
		spin:     sp,
		overview: overview,
		status:   "Ready. Ask a question about the transactions.",
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := answerBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header + overview, status, query box, spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(strings.Join(m.history, "\n\n"))
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.String() == "enter" && !m.waiting {
			q := strings.TrimSpace(m.input.Value())
			if q != "" {
				m.waiting = true
				m.status = "Analyzing..."
				m.input.SetValue("")
				return m, tea.Batch(m.spin.Tick, ask(m.service, q))
			}
		}

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case answerMsg:
		m.waiting = false
		m.status = fmt.Sprintf("Answered %q", msg.question)
		m.history = append(m.history, renderExchange(msg.question, msg.answer))
		m.viewport.SetContent(strings.Join(m.history, "\n\n"))
		m.viewport.GotoBottom()
		return m, nil

	case askErrMsg:
		m.waiting = false
		m.status = "Service error, try again: " + msg.err.Error()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Fuel Sales Q&A")
	overview := overviewStyle.Render(m.overview)
	answers := answerBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := m.status
	if m.waiting {
		status = m.spin.View() + " " + status
	}
	return header + "\n" + overview + "\n" + answers + "\n" + input + "\n" + statusStyle.Render(status)
}

func ask(service AskPort, question string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), askTimeout)
		defer cancel()
		answer, err := service.Ask(ctx, question)
		if err != nil {
			return askErrMsg{question: question, err: err}
		}
		return answerMsg{question: question, answer: answer}
	}
}

func renderExchange(question string, a domain.Answer) string {
	q := questionStyle.Render("Q: " + question)
	var body string
	if a.NoResults {
		body = noResultsStyle.Render(a.Text)
	} else {
		body = a.Text
		if len(a.Evidence) > 0 {
			body += "\n" + evidenceStyle.Render("evidence: "+strings.Join(a.Evidence, ", "))
		}
	}
	return q + "\n" + body
}

var (
	answerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	overviewStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	evidenceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	noResultsStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)
