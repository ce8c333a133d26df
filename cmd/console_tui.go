// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/aquastat/pkg/pentair"
	"github.com/Thermoquad/aquastat/pkg/pumplink"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

const (
	consoleTickInterval = 500 * time.Millisecond
	maxEventEntries     = 10
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

type eventEntry struct {
	at      time.Time
	text    string
	isError bool
}

// consoleModel is the Bubble Tea model for the control console
type consoleModel struct {
	engine *pumplink.Engine
	addrs  linkAddrs

	status pentair.PumpStatus
	stats  pumplink.StatsSnapshot

	rpmInput   textinput.Model
	rpmFocused bool

	// events arrive from engine callbacks on other goroutines and drain
	// into the log on each tick
	pending chan eventEntry
	events  []eventEntry

	width    int
	height   int
	quitting bool
}

type consoleTickMsg time.Time

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newConsoleModel(engine *pumplink.Engine, addrs linkAddrs) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "1500"
	ti.CharLimit = 4
	ti.Width = 10

	return consoleModel{
		engine:   engine,
		addrs:    addrs,
		rpmInput: ti,
		pending:  make(chan eventEntry, 64),
		events:   make([]eventEntry, 0, maxEventEntries),
	}
}

// noteError feeds engine link errors into the event log. Called from the
// engine goroutine.
func (m consoleModel) noteError(err error) {
	select {
	case m.pending <- eventEntry{at: time.Now(), text: err.Error(), isError: true}:
	default:
	}
}

func (m consoleModel) note(format string, args ...interface{}) {
	select {
	case m.pending <- eventEntry{at: time.Now(), text: fmt.Sprintf(format, args...)}:
	default:
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func consoleTick() tea.Cmd {
	return tea.Tick(consoleTickInterval, func(t time.Time) tea.Msg {
		return consoleTickMsg(t)
	})
}

// submit queues a frame on the engine, logging the outcome when it lands.
func (m consoleModel) submit(what string, f *pentair.Frame) {
	err := m.engine.Submit(pumplink.Request{Frame: f, Done: func(err error) {
		if err != nil {
			m.noteError(fmt.Errorf("%s failed: %w", what, err))
		} else {
			m.note("%s acknowledged", what)
		}
	}})
	if err != nil {
		m.noteError(fmt.Errorf("%s rejected: %w", what, err))
	} else {
		m.note("%s sent", what)
	}
}

//////////////////////////////////////////////////////////////
// Update
//////////////////////////////////////////////////////////////

func (m consoleModel) Init() tea.Cmd {
	return consoleTick()
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case consoleTickMsg:
		m.status = m.engine.Status()
		m.stats = m.engine.Stats().Snapshot()
		for {
			select {
			case e := <-m.pending:
				m.events = append(m.events, e)
				if len(m.events) > maxEventEntries {
					m.events = m.events[len(m.events)-maxEventEntries:]
				}
			default:
				return m, consoleTick()
			}
		}

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m consoleModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The RPM field swallows everything except focus and quit keys.
	if m.rpmFocused {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.rpmFocused = false
			m.rpmInput.Blur()
			return m, nil
		case "tab":
			m.rpmFocused = false
			m.rpmInput.Blur()
			return m, nil
		case "enter":
			m.applyRPM()
			m.rpmFocused = false
			m.rpmInput.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.rpmInput, cmd = m.rpmInput.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.rpmFocused = true
		m.rpmInput.Focus()
		return m, textinput.Blink

	case "r":
		m.submit("start", pentair.NewRunCommand(m.addrs.pump, m.addrs.own, true))

	case "s":
		m.submit("stop", pentair.NewRunCommand(m.addrs.pump, m.addrs.own, false))

	case "9":
		m.submit("remote control", pentair.NewControlCommand(m.addrs.pump, m.addrs.own, true))

	case "0":
		m.submit("local control", pentair.NewControlCommand(m.addrs.pump, m.addrs.own, false))

	case "1", "2", "3", "4":
		n, _ := strconv.Atoi(msg.String())
		if f, err := pentair.NewProgramSelect(m.addrs.pump, m.addrs.own, n); err == nil {
			m.submit(fmt.Sprintf("program %d", n), f)
		}

	case "o":
		m.engine.CancelProgram()
		if f, err := pentair.NewProgramSelect(m.addrs.pump, m.addrs.own, 0); err == nil {
			m.submit("program off", f)
		}
	}

	return m, nil
}

func (m consoleModel) applyRPM() {
	value := strings.TrimSpace(m.rpmInput.Value())
	if value == "" {
		return
	}
	rpm, err := strconv.Atoi(value)
	if err != nil {
		m.noteError(fmt.Errorf("bad RPM %q", value))
		return
	}
	f, err := pentair.NewSetRPM(m.addrs.pump, m.addrs.own, uint16(rpm))
	if err != nil {
		m.noteError(err)
		return
	}
	m.submit(fmt.Sprintf("speed %d RPM", rpm), f)
}

//////////////////////////////////////////////////////////////
// View
//////////////////////////////////////////////////////////////

func (m consoleModel) View() string {
	if m.quitting {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("24")).
		Padding(0, 1)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Width(10)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("45"))

	runningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10")).
		Bold(true)

	stoppedStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("241")).
		Padding(0, 1)

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("AQUASTAT  pump 0x%02X", m.addrs.pump)))
	b.WriteString("\n\n")

	// Status panel
	var status strings.Builder
	if !m.status.Valid {
		status.WriteString("waiting for first status...\n")
	} else {
		state := stoppedStyle.Render("STOPPED")
		if m.status.Running {
			state = runningStyle.Render("RUNNING")
		}
		if m.status.Stale {
			state += errorStyle.Render(" [stale]")
		}
		status.WriteString(labelStyle.Render("state") + state + "\n")
		status.WriteString(labelStyle.Render("mode") + valueStyle.Render(pentair.FormatMode(m.status.Mode)) + "\n")
		status.WriteString(labelStyle.Render("speed") + valueStyle.Render(fmt.Sprintf("%d RPM", m.status.RPM)) + "\n")
		status.WriteString(labelStyle.Render("power") + valueStyle.Render(fmt.Sprintf("%d W", m.status.Watts)) + "\n")
		status.WriteString(labelStyle.Render("flow") + valueStyle.Render(fmt.Sprintf("%d GPM", m.status.GPM)) + "\n")
		if m.status.ErrorCode != 0 {
			status.WriteString(labelStyle.Render("error") + errorStyle.Render(fmt.Sprintf("0x%02X", m.status.ErrorCode)) + "\n")
		}
		status.WriteString(labelStyle.Render("updated") + valueStyle.Render(fmt.Sprintf("%.1fs ago", m.status.Age(time.Now()).Seconds())))
	}

	// Link panel
	var link strings.Builder
	link.WriteString(labelStyle.Render("frames") + valueStyle.Render(fmt.Sprintf("%d rx / %d tx", m.stats.FramesReceived, m.stats.FramesSent)) + "\n")
	link.WriteString(labelStyle.Render("rate") + valueStyle.Render(fmt.Sprintf("%.1f/s", m.stats.FrameRate)) + "\n")
	link.WriteString(labelStyle.Render("errors") + valueStyle.Render(fmt.Sprintf("%d cksum, %d timeout", m.stats.ChecksumErrors, m.stats.Timeouts)) + "\n")
	program := "off"
	if m.engine.ProgramActive() {
		program = "active"
	}
	link.WriteString(labelStyle.Render("program") + valueStyle.Render(program))

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(status.String()),
		" ",
		boxStyle.Render(link.String())))
	b.WriteString("\n\n")

	// RPM input
	marker := "  "
	if m.rpmFocused {
		marker = "> "
	}
	b.WriteString(marker + "RPM: " + m.rpmInput.View() + "\n\n")

	// Event log
	if len(m.events) > 0 {
		var events strings.Builder
		for _, e := range m.events {
			line := fmt.Sprintf("%s  %s", e.at.Format("15:04:05"), e.text)
			if e.isError {
				line = errorStyle.Render(line)
			}
			events.WriteString(line + "\n")
		}
		b.WriteString(boxStyle.Render(strings.TrimRight(events.String(), "\n")))
		b.WriteString("\n\n")
	}

	b.WriteString(helpStyle.Render("r start  s stop  9 remote  0 local  1-4 program  o prog off  tab rpm  q quit"))
	return b.String()
}
