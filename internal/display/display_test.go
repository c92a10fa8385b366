// ABOUTME: Tests for the display backends
// ABOUTME: Covers channel validation and forwarding to zap and bubbletea
package display

import (
	"testing"

	"github.com/Dozenal-Clock/dozclock-go/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogDisplay(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	d := NewLog(zap.New(core))

	require.NoError(t, d.SetText("12:00:00", ChannelDecimal))
	require.NoError(t, d.SetText("W51-1", ChannelDate))

	assert.Equal(t, [ui.LineCount]string{"12:00:00", "", "W51-1"}, d.Lines())
	require.Equal(t, 2, logs.Len())
	entry := logs.All()[1]
	assert.Equal(t, "W51-1", entry.ContextMap()["text"])
	assert.Equal(t, int64(ChannelDate), entry.ContextMap()["channel"])
}

func TestInvalidChannel(t *testing.T) {
	d := NewLog(nil)
	err := d.SetText("x", 3)
	var chErr *ChannelError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, 3, chErr.Channel)

	assert.Error(t, NewTUI(&recorder{}).SetText("x", -1))
}

type recorder struct {
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func TestTUIDisplay(t *testing.T) {
	r := &recorder{}
	d := NewTUI(r)

	require.NoError(t, d.SetText("10;600", ChannelDozenal))
	require.Len(t, r.msgs, 1)
	assert.Equal(t, ui.TextMsg{Channel: ChannelDozenal, Text: "10;600"}, r.msgs[0])
}

func TestColors(t *testing.T) {
	assert.Equal(t, "#44FF44", Colors[ChannelDecimal])
	assert.Equal(t, "#7733FF", Colors[ChannelDozenal])
	assert.Equal(t, "#FF3333", Colors[ChannelDate])
}
