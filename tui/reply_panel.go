// ABOUTME: Implements the scrollable reply panel using the bubbles viewport component.
// ABOUTME: Accumulates assistant text deltas and keeps the view pinned to the latest output.
package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

// ReplyPanelModel shows the assistant text as it streams in.
type ReplyPanelModel struct {
	text     strings.Builder
	viewport viewport.Model
	width    int
	height   int
}

// NewReplyPanelModel creates an empty reply panel.
func NewReplyPanelModel() *ReplyPanelModel {
	return &ReplyPanelModel{viewport: viewport.New(80, 10)}
}

// Append adds a text delta and scrolls to the bottom.
func (m *ReplyPanelModel) Append(delta string) {
	m.text.WriteString(delta)
	m.sync()
}

// Text returns everything appended so far.
func (m *ReplyPanelModel) Text() string {
	return m.text.String()
}

// SetSize sets the available dimensions and updates the viewport.
func (m *ReplyPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	// border takes two lines and two columns, title one line
	m.viewport.Width = max(w-2, 1)
	m.viewport.Height = max(h-3, 1)
	m.sync()
}

// Update forwards scroll keys to the viewport.
func (m *ReplyPanelModel) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return cmd
}

// View renders the reply panel.
func (m *ReplyPanelModel) View() string {
	content := MutedStyle.Render("Waiting for the first token...")
	if m.text.Len() > 0 {
		content = m.viewport.View()
	}
	return BorderStyle.
		Width(max(m.width-2, 1)).
		Height(max(m.height-2, 1)).
		Render(TitleStyle.Render("REPLY") + "\n" + content)
}

func (m *ReplyPanelModel) sync() {
	wrapped := wrap(m.text.String(), m.viewport.Width)
	m.viewport.SetContent(wrapped)
	m.viewport.GotoBottom()
}

// wrap hard-wraps s at width runes so long streamed lines stay visible.
func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		r := []rune(line)
		for len(r) > width {
			out = append(out, string(r[:width]))
			r = r[width:]
		}
		out = append(out, string(r))
	}
	return strings.Join(out, "\n")
}
