// ABOUTME: Implements a single-line status bar showing model, elapsed time, and stream counters.
// ABOUTME: Rendered at the bottom of the live view.
package tui

import (
	"fmt"
	"time"
)

// StatusBarModel displays stream progress in a single line.
type StatusBarModel struct {
	model     string
	startTime time.Time
	now       time.Time
	deltas    int
	chars     int
	toolCalls int
	width     int
}

// NewStatusBarModel creates a status bar for the given model name.
func NewStatusBarModel(model string) StatusBarModel {
	return StatusBarModel{model: model}
}

// Start records the stream start time.
func (m *StatusBarModel) Start(t time.Time) {
	m.startTime = t
	m.now = t
}

// Tick advances the clock used for the elapsed display.
func (m *StatusBarModel) Tick(t time.Time) {
	m.now = t
}

// AddDelta counts one text delta of the given length.
func (m *StatusBarModel) AddDelta(delta string) {
	m.deltas++
	m.chars += len([]rune(delta))
}

// SetToolCalls updates the tool call counter.
func (m *StatusBarModel) SetToolCalls(n int) {
	m.toolCalls = n
}

// SetWidth sets the bar width for rendering.
func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

// Elapsed returns the time between Start and the latest tick.
func (m StatusBarModel) Elapsed() time.Duration {
	if m.startTime.IsZero() {
		return 0
	}
	return m.now.Sub(m.startTime)
}

// formatElapsed formats a duration as "12s" under a minute and "2m30s" above.
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}

// View renders the status bar.
func (m StatusBarModel) View() string {
	model := m.model
	if model == "" {
		model = "default model"
	}
	line := fmt.Sprintf("%s | %s | %d deltas, %d chars | %d tool calls",
		model, formatElapsed(m.Elapsed()), m.deltas, m.chars, m.toolCalls)
	style := StatusBarStyle
	if m.width > 0 {
		style = style.Width(m.width)
	}
	return style.Render(line)
}
