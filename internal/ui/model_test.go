// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests line updates, status updates, and key handling
package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/Dozenal-Clock/dozclock-go/internal/sync"
	tea "github.com/charmbracelet/bubbletea"
)

var testColors = [LineCount]string{"#44FF44", "#7733FF", "#FF3333"}

func key(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil, testColors, 3) // Controls are optional for testing

	if model.precision != 3 {
		t.Errorf("expected precision 3, got %d", model.precision)
	}

	if model.showDebug {
		t.Error("expected showDebug to be false initially")
	}

	if model.syncQuality != sync.QualityLost {
		t.Errorf("expected Lost before first sync, got %v", model.syncQuality)
	}
}

func TestTextMsg(t *testing.T) {
	model := NewModel(nil, testColors, 3)

	model = update(t, model, TextMsg{Channel: 1, Text: "10;600"})
	if model.lines[1] != "10;600" {
		t.Errorf("expected line 1 '10;600', got '%s'", model.lines[1])
	}
	if model.redraws != 1 {
		t.Errorf("expected 1 redraw, got %d", model.redraws)
	}
}

func TestTextMsgOutOfRange(t *testing.T) {
	model := NewModel(nil, testColors, 3)

	model = update(t, model, TextMsg{Channel: 5, Text: "x"})
	model = update(t, model, TextMsg{Channel: -1, Text: "x"})
	if model.redraws != 0 {
		t.Errorf("expected out-of-range channels to be ignored, got %d redraws", model.redraws)
	}
}

func TestStatusMsgSync(t *testing.T) {
	model := NewModel(nil, testColors, 3)

	q := sync.QualityDegraded
	model.applyStatus(StatusMsg{
		Source:      "shelf.local:8928",
		SyncQuality: &q,
		SyncOffset:  -1500,
		SyncRTT:     60000,
		Failures:    2,
	})

	if model.syncQuality != sync.QualityDegraded {
		t.Errorf("expected Degraded, got %v", model.syncQuality)
	}
	if model.source != "shelf.local:8928" {
		t.Errorf("expected source 'shelf.local:8928', got '%s'", model.source)
	}
	if model.syncOffset != -1500 || model.syncRTT != 60000 || model.failures != 2 {
		t.Errorf("unexpected sync stats %d %d %d", model.syncOffset, model.syncRTT, model.failures)
	}
}

func TestStatusMsgZeroValues(t *testing.T) {
	model := NewModel(nil, testColors, 3)

	drift := int64(12)
	resync := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	model.applyStatus(StatusMsg{Source: "system", DriftMs: &drift, LastResync: resync})

	// Empty update keeps everything
	model.applyStatus(StatusMsg{})

	if model.source != "system" {
		t.Errorf("expected source preserved, got '%s'", model.source)
	}
	if model.driftMs != 12 {
		t.Errorf("expected drift preserved, got %d", model.driftMs)
	}
	if !model.lastResync.Equal(resync) {
		t.Errorf("expected last resync preserved, got %v", model.lastResync)
	}

	// Zero drift is a real value
	zero := int64(0)
	model.applyStatus(StatusMsg{DriftMs: &zero})
	if model.driftMs != 0 {
		t.Errorf("expected drift 0, got %d", model.driftMs)
	}
}

func TestPrecisionKeys(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls, testColors, 3)

	model = update(t, model, key("P"))
	if model.precision != 4 {
		t.Fatalf("expected precision 4, got %d", model.precision)
	}
	if got := <-controls.Precision; got != 4 {
		t.Errorf("expected request for 4, got %d", got)
	}

	// Already at maximum
	model = update(t, model, key("P"))
	if model.precision != 4 {
		t.Errorf("expected precision to stay 4, got %d", model.precision)
	}
	select {
	case p := <-controls.Precision:
		t.Errorf("unexpected precision request %d", p)
	default:
	}

	for i := 0; i < 6; i++ {
		model = update(t, model, key("p"))
	}
	if model.precision != 0 {
		t.Errorf("expected precision 0, got %d", model.precision)
	}
}

func TestResyncKey(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls, testColors, 3)

	// Repeated presses collapse into one pending request
	model = update(t, model, key("r"))
	model = update(t, model, key("r"))

	if len(controls.Resync) != 1 {
		t.Errorf("expected 1 pending resync, got %d", len(controls.Resync))
	}
}

func TestKeysWithoutControls(t *testing.T) {
	model := NewModel(nil, testColors, 2)

	model = update(t, model, key("r"))
	model = update(t, model, key("p"))
	if model.precision != 1 {
		t.Errorf("expected precision 1, got %d", model.precision)
	}
}

func TestDebugToggle(t *testing.T) {
	model := NewModel(nil, testColors, 3)
	model = update(t, model, key("d"))
	if !model.showDebug {
		t.Error("expected debug on")
	}
	model = update(t, model, key("d"))
	if model.showDebug {
		t.Error("expected debug off")
	}
}

func TestQuitKey(t *testing.T) {
	model := NewModel(nil, testColors, 3)
	for _, k := range []string{"q", "ctrl+c"} {
		_, cmd := model.Update(key(k))
		if cmd == nil {
			t.Fatalf("expected quit command for %s", k)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("expected QuitMsg for %s", k)
		}
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil, testColors, 3)
	if model.View() != "Loading..." {
		t.Error("expected loading view before window size")
	}

	model = update(t, model, tea.WindowSizeMsg{Width: 80, Height: 24})
	model = update(t, model, TextMsg{Channel: 0, Text: "09:05:02"})
	model = update(t, model, TextMsg{Channel: 1, Text: "↋0;↊00"})
	model = update(t, model, TextMsg{Channel: 2, Text: "W51-1"})

	view := model.View()
	for _, want := range []string{"09:05:02", "↋0;↊00", "W51-1", "Lost", "never", "q:Quit"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestSyncQualityDisplay(t *testing.T) {
	model := NewModel(nil, testColors, 3)
	model = update(t, model, tea.WindowSizeMsg{Width: 80, Height: 24})

	tests := []struct {
		quality sync.Quality
		want    string
	}{
		{sync.QualityGood, "Synced"},
		{sync.QualityDegraded, "Degraded"},
		{sync.QualityLost, "Lost"},
	}
	for _, tt := range tests {
		q := tt.quality
		model.applyStatus(StatusMsg{SyncQuality: &q})
		if !strings.Contains(model.renderStatus(), tt.want) {
			t.Errorf("expected status to contain %q for %v", tt.want, tt.quality)
		}
	}
}
