// Package tui is the interactive chat front end.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUI forwards ui.UI calls to a running program.
type TUI struct {
	program *tea.Program
}

func NewTUI(p *tea.Program) *TUI {
	return &TUI{program: p}
}

func (t *TUI) UpdateStatus(status string) {
	t.program.Send(StatusMsg(status))
}

func (t *TUI) UpdateProgress(interactions, interval int) {
	t.program.Send(ProgressMsg{Interactions: interactions, Interval: interval})
}

func (t *TUI) Log(msg string) {
	t.program.Send(LogMsg(msg))
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575"))

	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	eventStyle = lipgloss.NewStyle().
			Faint(true)
)

// SubmitFunc answers one query. It runs outside the update loop.
type SubmitFunc func(query string) string

type Model struct {
	Title        string
	Status       string
	Interactions int
	Interval     int
	Log          []string
	Busy         bool
	Input        textinput.Model
	Progress     progress.Model
	Viewport     viewport.Model
	Submit       SubmitFunc
	Quitting     bool
	Ready        bool
	Width        int
	Height       int
}

type LogMsg string
type StatusMsg string

// ProgressMsg reports completed interactions against the consolidation
// interval.
type ProgressMsg struct {
	Interactions int
	Interval     int
}

// ReplyMsg carries the answer to a submitted query.
type ReplyMsg string

func NewModel(title string, interval int, submit SubmitFunc) Model {
	in := textinput.New()
	in.Placeholder = "Ask something..."
	in.CharLimit = 4000
	in.Focus()

	return Model{
		Title:    title,
		Status:   "idle",
		Interval: interval,
		Input:    in,
		Progress: progress.New(progress.WithDefaultGradient()),
		Submit:   submit,
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			query := strings.TrimSpace(m.Input.Value())
			if query == "" || m.Busy || m.Submit == nil {
				return m, nil
			}
			m.Input.Reset()
			m.Busy = true
			m = m.appendLog(userStyle.Render("you: ") + query)
			submit := m.Submit
			return m, func() tea.Msg { return ReplyMsg(submit(query)) }
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Progress.Width = max(msg.Width-4, 10)
		if !m.Ready {
			m.Viewport = viewport.New(msg.Width, max(msg.Height-8, 1))
			m.Viewport.SetContent(strings.Join(m.Log, "\n"))
			m.Ready = true
		} else {
			m.Viewport.Width = msg.Width
			m.Viewport.Height = max(msg.Height-8, 1)
		}

	case ReplyMsg:
		m.Busy = false
		m = m.appendLog("recall: " + string(msg))

	case LogMsg:
		m = m.appendLog(eventStyle.Render("· " + string(msg)))

	case StatusMsg:
		m.Status = string(msg)

	case ProgressMsg:
		m.Interactions = msg.Interactions
		if msg.Interval > 0 {
			m.Interval = msg.Interval
		}
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	cmds = append(cmds, cmd)
	m.Viewport, cmd = m.Viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) appendLog(line string) Model {
	m.Log = append(m.Log, line)
	m.Viewport.SetContent(strings.Join(m.Log, "\n"))
	m.Viewport.GotoBottom()
	return m
}

// Fraction is the progress toward the next consolidation pass.
func (m Model) Fraction() float64 {
	if m.Interval <= 0 {
		return 0
	}
	return float64(m.Interactions%m.Interval) / float64(m.Interval)
}

func (m Model) View() string {
	if !m.Ready {
		return "\n  Initializing..."
	}

	header := titleStyle.Render(" " + m.Title + " ")
	status := infoStyle.Render(fmt.Sprintf(" Status: %s ", m.Status))
	count := fmt.Sprintf(" Interactions: %d (next consolidation in %d) ", m.Interactions, m.Interval-m.Interactions%max(m.Interval, 1))

	view := fmt.Sprintf("%s%s%s\n\n%s\n\n%s\n%s",
		header, status, count,
		m.Viewport.View(),
		m.Progress.ViewAs(m.Fraction()),
		m.Input.View())

	if m.Quitting {
		return view + "\n  Quitting...\n"
	}

	return view
}
