// ABOUTME: Bubbletea model for the clock TUI
// ABOUTME: Three coloured clock lines, sync status, and key handling
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/sync"
	"github.com/Dozenal-Clock/dozclock-go/pkg/dozenal"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// LineCount is the number of clock lines the model draws.
const LineCount = 3

// Model represents the TUI state
type Model struct {
	// Clock lines
	lines  [LineCount]string
	styles [LineCount]lipgloss.Style

	// Sync
	source      string
	syncOffset  int64
	syncRTT     int64
	syncQuality sync.Quality
	lastResync  time.Time
	failures    int

	// Estimator
	driftMs   int64
	precision int

	// Debug
	showDebug bool
	redraws   int64

	controls *Controls

	// Dimensions
	width  int
	height int
}

var (
	frameStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 2)
	titleStyle = lipgloss.NewStyle().Bold(true)
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case TextMsg:
		if msg.Channel >= 0 && msg.Channel < LineCount {
			m.lines[msg.Channel] = msg.Text
			m.redraws++
		}
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("dozclock"))
	b.WriteString("\n\n")
	for i := range m.lines {
		b.WriteString(m.styles[i].Render(m.lines[i]))
		b.WriteString("\n")
	}

	body := frameStyle.Render(strings.TrimRight(b.String(), "\n"))

	s := body + "\n" + m.renderStatus()
	if m.showDebug {
		s += m.renderDebug()
	}
	s += m.renderHelp()

	return s
}

// renderStatus renders sync quality, last resync and drift
func (m Model) renderStatus() string {
	syncIcon := "✗"
	syncText := "Lost"
	switch m.syncQuality {
	case sync.QualityGood:
		syncIcon = "✓"
		syncText = "Synced"
	case sync.QualityDegraded:
		syncIcon = "⚠"
		syncText = "Degraded"
	}

	last := "never"
	if !m.lastResync.IsZero() {
		last = m.lastResync.Format("15:04:05")
	}

	source := m.source
	if source == "" {
		source = "-"
	}

	return fmt.Sprintf("Sync: %s %s via %s  last: %s  drift: %+dms  precision: %d\n",
		syncIcon, syncText, source, last, m.driftMs, m.precision)
}

// renderHelp renders keyboard shortcuts
func (m Model) renderHelp() string {
	return dimStyle.Render("r:Resync  p/P:Precision  d:Debug  q:Quit") + "\n"
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf("DEBUG: offset %+dμs  rtt %dμs  failures %d  redraws %d\n",
		m.syncOffset, m.syncRTT, m.failures, m.redraws)
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "r":
		m.controls.requestResync()
	case "p":
		if m.precision > 0 {
			m.precision--
			m.controls.requestPrecision(m.precision)
		}
	case "P":
		if m.precision < dozenal.MaxPrecision {
			m.precision++
			m.controls.requestPrecision(m.precision)
		}
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Source != "" {
		m.source = msg.Source
	}
	if msg.SyncQuality != nil {
		m.syncQuality = *msg.SyncQuality
		m.syncOffset = msg.SyncOffset
		m.syncRTT = msg.SyncRTT
		m.failures = msg.Failures
	}
	if !msg.LastResync.IsZero() {
		m.lastResync = msg.LastResync
	}
	if msg.DriftMs != nil {
		m.driftMs = *msg.DriftMs
	}
}

// TextMsg replaces the text on one clock line
type TextMsg struct {
	Channel int
	Text    string
}

// StatusMsg updates TUI state. Nil and zero fields leave the current value.
type StatusMsg struct {
	Source      string
	SyncQuality *sync.Quality
	SyncOffset  int64
	SyncRTT     int64
	Failures    int
	LastResync  time.Time
	DriftMs     *int64
}
