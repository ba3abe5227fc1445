package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/civicwatch/internal/aggregate"
	"github.com/abelbrown/civicwatch/internal/analysis"
)

// Backend is what the shell drives.
type Backend interface {
	AnalyzeNews(ctx context.Context) (analysis.Report, error)
	AskQuestion(ctx context.Context, question string) (analysis.Answer, error)
}

type state int

const (
	stateAwaitStart state = iota
	stateAnalyzing
	stateAsking
	stateAnswering
	stateDone
)

const (
	startPrompt    = "Type 'start' to activate Opposition AI Kenya:"
	questionPrompt = "Ask about current government matters (or type 'exit'):"
	signOff        = "Opposition AI Kenya signing off. Stay informed, stay empowered!"
	separatorWidth = 80
)

// Model is the interactive shell.
type Model struct {
	ctx       context.Context
	backend   Backend
	reportKey string

	state   state
	input   textinput.Model
	spinner spinner.Model

	// transcript holds every block printed above the prompt.
	transcript []string
}

// New creates the shell. reportKey, when set, is mentioned after the
// analysis is saved.
func New(ctx context.Context, backend Backend, reportKey string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 1000
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#58a6ff"))

	return Model{
		ctx:       ctx,
		backend:   backend,
		reportKey: reportKey,
		state:     stateAwaitStart,
		input:     ti,
		spinner:   s,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Transcript returns the printed blocks so far.
func (m Model) Transcript() []string {
	out := make([]string, len(m.transcript))
	copy(out, m.transcript)
	return out
}

// Done reports whether the user has left the shell.
func (m Model) Done() bool {
	return m.state == stateDone
}

func (m Model) busy() bool {
	return m.state == stateAnalyzing || m.state == stateAnswering
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.state = stateDone
			return m, tea.Quit
		case tea.KeyEnter:
			if m.busy() {
				return m, nil
			}
			value := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			return m.submit(value)
		}
		if m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case AnalysisComplete:
		m.state = stateAsking
		return m.print(m.formatReport(msg))

	case AnswerReady:
		m.state = stateAsking
		if msg.Err != nil {
			return m.print(Warning.Render(fmt.Sprintf("Failed to answer question: %v", msg.Err)))
		}
		return m.print(
			Banner.Render("Opposition AI Response:") + "\n" +
				msg.Answer.Answer + "\n" +
				Muted.Render(strings.Repeat("-", separatorWidth)),
		)

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// submit handles one line of input for the current state.
func (m Model) submit(value string) (tea.Model, tea.Cmd) {
	switch m.state {
	case stateAwaitStart:
		if strings.ToLower(value) != "start" {
			m.state = stateAsking
			return m, nil
		}
		m.state = stateAnalyzing
		var printCmd tea.Cmd
		m, printCmd = m.printBlock(
			Banner.Render("Digital Opposition Kenya is running...") + "\n\n" +
				"Fetching and analyzing latest government news...",
		)
		return m, tea.Batch(printCmd, m.spinner.Tick, m.analyze())

	case stateAsking:
		switch strings.ToLower(value) {
		case "":
			return m, nil
		case "exit", "quit":
			m.state = stateDone
			var printCmd tea.Cmd
			m, printCmd = m.printBlock(Banner.Render(signOff))
			return m, tea.Sequence(printCmd, tea.Quit)
		}
		m.state = stateAnswering
		var printCmd tea.Cmd
		m, printCmd = m.printBlock(Prompt.Render("> ") + value + "\n\nProcessing your question...")
		return m, tea.Batch(printCmd, m.spinner.Tick, m.ask(value))
	}
	return m, nil
}

func (m Model) analyze() tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		report, err := backend.AnalyzeNews(ctx)
		return AnalysisComplete{Report: report, Err: err}
	}
}

func (m Model) ask(question string) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	return func() tea.Msg {
		answer, err := backend.AskQuestion(ctx, question)
		return AnswerReady{Answer: answer, Err: err}
	}
}

func (m Model) print(block string) (tea.Model, tea.Cmd) {
	next, cmd := m.printBlock(block)
	return next, cmd
}

// printBlock records block and prints it above the live view.
func (m Model) printBlock(block string) (Model, tea.Cmd) {
	m.transcript = append(m.transcript, block)
	return m, tea.Println(block)
}

func (m Model) formatReport(msg AnalysisComplete) string {
	if msg.Err != nil {
		return Warning.Render(fmt.Sprintf("Failed to fetch or analyze news: %v", msg.Err))
	}

	var b strings.Builder
	b.WriteString(Banner.Render("=== Opposition AI Analysis ==="))
	b.WriteString("\n\n")

	switch msg.Report.Origin {
	case aggregate.OriginCache:
		b.WriteString(Warning.Render("Live fetch failed. Using cached news."))
		b.WriteString("\n\n")
	case aggregate.OriginPlaceholder:
		b.WriteString(Warning.Render("No live feeds found. Using fallback article."))
		b.WriteString("\n\n")
	}

	if len(msg.Report.Analyses) == 0 {
		b.WriteString(Warning.Render("No analyses available at the moment."))
		return b.String()
	}

	for i, a := range msg.Report.Analyses {
		fmt.Fprintf(&b, "%s\n\n", ArticleTitle.Render(fmt.Sprintf("Article %d: %s", i+1, a.Title)))
		fmt.Fprintf(&b, "%s\n\n", a.Analysis)
		fmt.Fprintf(&b, "%s\n", SourceLine.Render("Source: "+a.Source))
		b.WriteString(Muted.Render(strings.Repeat("=", separatorWidth)))
		b.WriteString("\n")
	}

	if m.reportKey != "" {
		fmt.Fprintf(&b, "\nAll analyses have been saved to '%s'", m.reportKey)
	}
	return b.String()
}

// View implements tea.Model.
func (m Model) View() string {
	switch m.state {
	case stateDone:
		return ""
	case stateAnalyzing:
		return m.spinner.View() + " Analyzing news...\n"
	case stateAnswering:
		return m.spinner.View() + " Thinking...\n"
	case stateAwaitStart:
		return Prompt.Render(startPrompt) + "\n" + m.input.View() + "\n"
	default:
		return Prompt.Render(questionPrompt) + "\n" + m.input.View() + "\n"
	}
}
