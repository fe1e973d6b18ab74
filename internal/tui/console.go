// SPDX-License-Identifier: MIT

// Package tui implements a supplemental, read-only operator console: a
// terminal dashboard of known devices and their pipeline status (state,
// target FPS, subscriber count, overrun counter). It is grounded on the
// teacher's DeviceListModel (internal/tui/devices.go) — same
// Bubble Tea model/update/view split, same viewport-plus-styled-highlight
// rendering — adapted from a one-shot device picker that configures a
// sample rate into a live-polling dashboard over DeviceManager's status
// surface. SPEC_FULL.md's non-goals exclude a bundled web UI, not a
// terminal one, so this stays in scope as an operator convenience.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"ultrasonic/internal/manager"
	"ultrasonic/internal/pipeline"
	"ultrasonic/internal/registry"
)

const refreshInterval = 500 * time.Millisecond

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	runningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	stoppedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
)

// row pairs a known device with whatever pipeline status the manager
// currently reports for it (Stopped if never started).
type row struct {
	device registry.DeviceDescriptor
	status pipeline.Status
}

// ConsoleModel is the Bubble Tea model backing the operator console.
type ConsoleModel struct {
	mgr *manager.DeviceManager

	rows          []row
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
}

// NewConsoleModel constructs a console model polling mgr for status.
func NewConsoleModel(mgr *manager.DeviceManager) ConsoleModel {
	return ConsoleModel{mgr: mgr}
}

type refreshMsg struct{ rows []row }
type tickMsg time.Time
type consoleErrMsg struct{ err error }

func (m ConsoleModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m ConsoleModel) fetch() tea.Cmd {
	return func() tea.Msg {
		devices := m.mgr.ListDevices()
		rows := make([]row, len(devices))
		for i, d := range devices {
			st, err := m.mgr.GetStatus(d.StableID)
			if err != nil {
				return consoleErrMsg{err}
			}
			rows[i] = row{device: d, status: st}
		}
		return refreshMsg{rows: rows}
	}
}

func (m ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.render())

	case refreshMsg:
		m.rows = msg.rows
		if m.ready {
			m.viewport.SetContent(m.render())
		}

	case tickMsg:
		cmds = append(cmds, m.fetch(), tickCmd())

	case consoleErrMsg:
		m.err = msg.err

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, key.NewBinding(key.WithKeys("q", "ctrl+c"))):
			return m, tea.Quit
		case key.Matches(msg, key.NewBinding(key.WithKeys("up", "k"))):
			if m.selectedIndex > 0 {
				m.selectedIndex--
				m.viewport.SetContent(m.render())
			}
		case key.Matches(msg, key.NewBinding(key.WithKeys("down", "j"))):
			if m.selectedIndex < len(m.rows)-1 {
				m.selectedIndex++
				m.viewport.SetContent(m.render())
			}
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ConsoleModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	title := titleStyle.Render("Device Status")
	help := infoStyle.Render("↑/↓: Navigate • q: Quit")
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

func (m ConsoleModel) render() string {
	if len(m.rows) == 0 {
		return "No devices known yet. Waiting for a scan..."
	}

	var sb strings.Builder
	for i, r := range m.rows {
		line := fmt.Sprintf("[%s] %-30s %-9s fps=%5.1f subs=%d overruns=%d",
			r.device.StableID, truncate(r.device.Name, 30), styledState(r.status.State),
			r.status.ObservedFps, r.status.SubscriberCount, r.status.Overruns)
		if r.status.LastError != "" {
			line += "  " + errorStyle.Render("err: "+r.status.LastError)
		}
		if i == m.selectedIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func styledState(s pipeline.State) string {
	if s == pipeline.Running {
		return runningStyle.Render(s.String())
	}
	return stoppedStyle.Render(s.String())
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// StartConsole launches the Bubble Tea operator console, blocking until
// the user quits.
func StartConsole(mgr *manager.DeviceManager) error {
	p := tea.NewProgram(NewConsoleModel(mgr), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
