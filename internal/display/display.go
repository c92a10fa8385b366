// ABOUTME: Display abstraction for the three clock lines
// ABOUTME: Channel numbering, colours, and the zap and TUI backends
package display

import (
	"fmt"
	gosync "sync"

	"github.com/Dozenal-Clock/dozclock-go/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// Channels, top to bottom.
const (
	ChannelDecimal = 0
	ChannelDozenal = 1
	ChannelDate    = 2
)

// Colors holds the line colours indexed by channel.
var Colors = [ui.LineCount]string{"#44FF44", "#7733FF", "#FF3333"}

// Display shows text on one of the clock lines.
type Display interface {
	SetText(text string, channel int) error
}

// ChannelError reports a channel outside 0..2.
type ChannelError struct {
	Channel int
}

func (e *ChannelError) Error() string {
	return fmt.Sprintf("display: invalid channel %d", e.Channel)
}

func checkChannel(channel int) error {
	if channel < 0 || channel >= ui.LineCount {
		return &ChannelError{Channel: channel}
	}
	return nil
}

// Log writes every line change to a zap logger. Used when running headless.
type Log struct {
	log *zap.Logger

	mu    gosync.Mutex
	lines [ui.LineCount]string
}

// NewLog creates a logging display.
func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

// SetText logs the new text for a line.
func (d *Log) SetText(text string, channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	d.mu.Lock()
	d.lines[channel] = text
	d.mu.Unlock()

	d.log.Info("display", zap.Int("channel", channel), zap.String("text", text))
	return nil
}

// Lines returns the current text of every line.
func (d *Log) Lines() [ui.LineCount]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines
}

// Sender is the part of a bubbletea program the TUI display needs.
type Sender interface {
	Send(msg tea.Msg)
}

// TUI forwards line changes to a running bubbletea program.
type TUI struct {
	program Sender
}

// NewTUI creates a display backed by a bubbletea program.
func NewTUI(program Sender) *TUI {
	return &TUI{program: program}
}

// SetText sends the text to the program as a ui.TextMsg.
func (d *TUI) SetText(text string, channel int) error {
	if err := checkChannel(channel); err != nil {
		return err
	}
	d.program.Send(ui.TextMsg{Channel: channel, Text: text})
	return nil
}
