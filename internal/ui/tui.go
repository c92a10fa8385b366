// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for the clock UI and carries key requests to the clock loop
package ui

import (
	"github.com/Dozenal-Clock/dozclock-go/internal/sync"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Controls holds channels for requests from the keyboard to the clock loop
type Controls struct {
	Resync    chan struct{}
	Precision chan int
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Resync:    make(chan struct{}, 1),
		Precision: make(chan int, 10),
	}
}

func (c *Controls) requestResync() {
	if c == nil {
		return
	}
	select {
	case c.Resync <- struct{}{}:
	default:
	}
}

func (c *Controls) requestPrecision(p int) {
	if c == nil {
		return
	}
	select {
	case c.Precision <- p:
	default:
	}
}

// NewModel creates a new TUI model. colors holds one lipgloss colour per line.
func NewModel(controls *Controls, colors [LineCount]string, precision int) Model {
	m := Model{
		controls:    controls,
		precision:   precision,
		syncQuality: sync.QualityLost,
	}
	for i, c := range colors {
		m.styles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c)).Bold(true)
	}
	return m
}

// Run creates the TUI program; the caller starts it with Run on the returned program.
func Run(controls *Controls, colors [LineCount]string, precision int) *tea.Program {
	return tea.NewProgram(NewModel(controls, colors, precision), tea.WithAltScreen())
}
