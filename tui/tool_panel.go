// ABOUTME: Implements the tool call log panel, a bounded list rendered through a bubbles viewport.
// ABOUTME: Each entry records the call id and function name in the order the calls were opened.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
)

type toolEntry struct {
	id   string
	name string
}

// ToolPanelModel lists the tool calls opened so far.
type ToolPanelModel struct {
	entries  []toolEntry
	max      int
	total    int
	viewport viewport.Model
	width    int
	height   int
}

// NewToolPanelModel creates a tool panel keeping at most maxEntries rows.
// If maxEntries is <= 0, it defaults to 100.
func NewToolPanelModel(maxEntries int) *ToolPanelModel {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	return &ToolPanelModel{
		entries:  make([]toolEntry, 0, maxEntries),
		max:      maxEntries,
		viewport: viewport.New(40, 10),
	}
}

// Append records a newly opened call, evicting the oldest row at capacity.
func (m *ToolPanelModel) Append(id, name string) {
	if len(m.entries) >= m.max {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, toolEntry{id: id, name: name})
	m.total++
	m.sync()
}

// Len returns the number of rows currently shown.
func (m *ToolPanelModel) Len() int {
	return len(m.entries)
}

// Total returns the number of calls seen, including evicted ones.
func (m *ToolPanelModel) Total() int {
	return m.total
}

// SetSize sets the available dimensions and updates the viewport.
func (m *ToolPanelModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = max(w-2, 1)
	m.viewport.Height = max(h-3, 1)
	m.sync()
}

// View renders the tool panel.
func (m *ToolPanelModel) View() string {
	content := MutedStyle.Render("No tool calls")
	if len(m.entries) > 0 {
		content = m.viewport.View()
	}
	return BorderStyle.
		Width(max(m.width-2, 1)).
		Height(max(m.height-2, 1)).
		Render(TitleStyle.Render("TOOL CALLS") + "\n" + content)
}

func (m *ToolPanelModel) sync() {
	lines := make([]string, 0, len(m.entries))
	first := m.total - len(m.entries)
	for i, e := range m.entries {
		lines = append(lines, fmt.Sprintf("%d. %s %s", first+i+1,
			ToolNameStyle.Render(e.name), ToolIDStyle.Render(e.id)))
	}
	m.viewport.SetContent(strings.Join(lines, "\n"))
	m.viewport.GotoBottom()
}
