// Package tui is the interactive terminal chat with the agent.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fyrsmithlabs/agentkb/internal/agent"
	"github.com/fyrsmithlabs/agentkb/internal/model"
)

// Runner runs one agent turn.
type Runner interface {
	Run(ctx context.Context, sessionID, input string, onChunk model.ChunkFunc) (*agent.Result, error)
}

type turn struct {
	input  string
	output string
	refs   int
	err    error
}

// Message types

type chunkMsg string

type doneMsg struct {
	result  *agent.Result
	err     error
	elapsed time.Duration
}

// Model is the bubbletea chat model.
type Model struct {
	ctx       context.Context
	runner    Runner
	title     string
	sessionID string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model

	turns     []turn
	busy      bool
	events    chan tea.Msg
	latencies []float64
	ready     bool
	quitting  bool
}

// NewModel creates a chat bound to sessionID. An empty sessionID starts a
// new session on the first message.
func NewModel(ctx context.Context, runner Runner, title, sessionID string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter"
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = agentStyle

	return Model{
		ctx:       ctx,
		runner:    runner,
		title:     title,
		sessionID: sessionID,
		input:     ti,
		viewport:  viewport.New(80, 20),
		spinner:   sp,
		latencies: make([]float64, 0, historySize),
	}
}

// SessionID returns the current session id.
func (m Model) SessionID() string {
	return m.sessionID
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 + sparklineHeight + 1
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-6)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case chunkMsg:
		if len(m.turns) > 0 {
			m.turns[len(m.turns)-1].output += string(msg)
			m.refresh()
		}
		return m, waitForEvent(m.events)

	case doneMsg:
		m.busy = false
		m.events = nil
		last := &m.turns[len(m.turns)-1]
		if msg.err != nil {
			last.err = msg.err
		} else {
			m.sessionID = msg.result.SessionID
			last.output = msg.result.Output
			last.refs = len(msg.result.References)
			m.latencies = appendToHistory(m.latencies, msg.elapsed.Seconds())
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" || m.busy {
		return m, nil
	}
	m.input.Reset()
	m.busy = true
	m.turns = append(m.turns, turn{input: text})
	m.events = make(chan tea.Msg, 64)
	m.refresh()

	return m, tea.Batch(
		runAgent(m.ctx, m.runner, m.sessionID, text, m.events),
		waitForEvent(m.events),
	)
}

// runAgent runs the turn in the background, forwarding chunks and the
// final result to events.
func runAgent(ctx context.Context, runner Runner, sessionID, input string, events chan<- tea.Msg) tea.Cmd {
	return func() tea.Msg {
		go func() {
			start := time.Now()
			res, err := runner.Run(ctx, sessionID, input, func(chunk string) error {
				select {
				case events <- chunkMsg(chunk):
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			})
			events <- doneMsg{result: res, err: err, elapsed: time.Since(start)}
		}()
		return nil
	}
}

func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		return <-events
	}
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return dimStyle.Render("No messages yet. Ask the agent something about its knowledge.")
	}

	width := max(20, m.viewport.Width-2)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(userStyle.Render("You") + "\n")
		b.WriteString(wrap.Render(t.input) + "\n\n")
		b.WriteString(agentStyle.Render("Agent"))
		if t.refs > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  (%d references)", t.refs)))
		}
		b.WriteString("\n")
		switch {
		case t.err != nil:
			b.WriteString(errorStyle.Render("Error: "+t.err.Error()) + "\n")
		case t.output != "":
			b.WriteString(wrap.Render(t.output) + "\n")
		}
	}
	return b.String()
}

func (m Model) renderLatency() string {
	if len(m.latencies) == 0 {
		return dimStyle.Render("response time: no data")
	}
	spark := sparkline.New(sparklineWidth, sparklineHeight)
	spark.PushAll(m.latencies)
	spark.Draw()
	last := m.latencies[len(m.latencies)-1]
	return lipgloss.JoinHorizontal(lipgloss.Bottom,
		sparklineStyle.Render(spark.View()),
		dimStyle.Render(fmt.Sprintf("  last %.1fs", last)),
	)
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading..."
	}

	session := m.sessionID
	if session == "" {
		session = "new session"
	}
	header := headerStyle.Render(m.title) + " " + dimStyle.Render(session)
	if m.busy {
		header += " " + m.spinner.View()
	}

	footer := dimStyle.Render("[enter] send  [pgup/pgdn] scroll  [esc] quit")
	return strings.Join([]string{
		header,
		m.viewport.View(),
		inputBoxStyle.Render(m.input.View()),
		m.renderLatency(),
		footer,
	}, "\n")
}
