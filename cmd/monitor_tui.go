// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/Thermoquad/provisioner/pkg/flasher"
	"github.com/Thermoquad/provisioner/pkg/stream"
)

// Rows used by the header and footer around the log viewport
const monitorChromeHeight = 9

// TUI model
type monitorModel struct {
	target    string
	snap      stream.Snapshot
	hasSnap   bool
	connected bool
	connErr   string
	lastFrame time.Time

	viewport viewport.Model
	spinner  spinner.Model
	follow   bool

	width    int
	height   int
	quitting bool
}

// Messages
type snapshotMsg struct {
	snap stream.Snapshot
}
type streamUpMsg struct{}
type streamDownMsg struct {
	err error
}

var (
	monitorTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("12")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	monitorHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241"))

	monitorLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("12")).
				Bold(true)

	monitorValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("10"))

	monitorErrorStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("9")).
				Bold(true)

	monitorWarningStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11"))

	monitorBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func newMonitorModel(target string) monitorModel {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(monitorWarningStyle))
	vp := viewport.New(76, 10)
	return monitorModel{
		target:   target,
		viewport: vp,
		spinner:  sp,
		follow:   true,
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "end", "G":
			m.follow = true
			m.viewport.GotoBottom()
			return m, nil
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.follow = m.viewport.AtBottom()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.refreshLog()

	case streamUpMsg:
		m.connected = true
		m.connErr = ""

	case streamDownMsg:
		m.connected = false
		if msg.err != nil {
			m.connErr = msg.err.Error()
		}

	case snapshotMsg:
		m.snap = msg.snap
		m.hasSnap = true
		m.connected = true
		m.lastFrame = time.Now()
		m.refreshLog()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *monitorModel) resize() {
	w := m.width - 4
	if w < 20 {
		w = 20
	}
	h := m.height - monitorChromeHeight
	if h < 3 {
		h = 3
	}
	m.viewport.Width = w
	m.viewport.Height = h
}

// refreshLog renders the snapshot log into the viewport, truncating lines
// to the viewport width.
func (m *monitorModel) refreshLog() {
	if !m.hasSnap {
		return
	}
	lines := splitLogs(m.snap.Logs)
	for i, line := range lines {
		lines[i] = ansi.Truncate(line, m.viewport.Width, "…")
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m monitorModel) statusLine() string {
	if !m.hasSnap {
		return monitorWarningStyle.Render("Waiting for state...")
	}
	msg := m.snap.Message
	switch flasher.StatusCode(m.snap.Code) {
	case flasher.Flashing:
		return m.spinner.View() + " " + monitorWarningStyle.Render(msg)
	case flasher.Success:
		return monitorValueStyle.Render("✓ " + msg)
	case flasher.Failed:
		return monitorErrorStyle.Render("✗ " + msg)
	default:
		return monitorLabelStyle.Render(msg)
	}
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder
	s.WriteString(monitorTitleStyle.Render("PROVISIONER - FLASH MONITOR"))
	s.WriteString("\n")

	conn := m.target
	if !m.connected {
		conn = monitorWarningStyle.Render("RECONNECTING " + m.target)
	}
	s.WriteString(monitorHeaderStyle.Render(fmt.Sprintf("%s | q=quit ↑/↓=scroll G=follow", conn)))
	s.WriteString("\n")
	if m.connErr != "" && !m.connected {
		s.WriteString(monitorErrorStyle.Render(ansi.Truncate(m.connErr, m.width, "…")))
	}
	s.WriteString("\n")

	s.WriteString(m.statusLine())
	s.WriteString("\n")

	details := ""
	if m.snap.Serial != "" {
		details = fmt.Sprintf("%s %s", monitorLabelStyle.Render("Unit:"), monitorValueStyle.Render(m.snap.Serial))
		if started := m.snap.Started(); !started.IsZero() {
			end := m.lastFrame
			if m.snap.FinishedAt != 0 {
				end = time.UnixMilli(m.snap.FinishedAt)
			}
			details += fmt.Sprintf("   %s %s", monitorLabelStyle.Render("Elapsed:"),
				monitorValueStyle.Render(end.Sub(started).Round(time.Second).String()))
		}
		if m.snap.LastError != "" {
			details += fmt.Sprintf("   %s %s", monitorLabelStyle.Render("Failure:"), monitorErrorStyle.Render(m.snap.LastError))
		}
	}
	s.WriteString(details)
	s.WriteString("\n\n")

	s.WriteString(monitorLabelStyle.Render("Flash Log:"))
	s.WriteString("\n")
	if !m.hasSnap || m.snap.Logs == "" {
		s.WriteString(monitorBoxStyle.Width(m.width - 2).Render(monitorHeaderStyle.Render("(no output yet)")))
	} else {
		s.WriteString(monitorBoxStyle.Render(m.viewport.View()))
	}

	return s.String()
}
