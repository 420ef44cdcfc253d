// ABOUTME: Bridge connecting aggregator callbacks to the Bubble Tea message loop.
// ABOUTME: Provides EventBridge for handler injection and tea.Cmd factories for the stream run and ticks.
package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/stitch/llm"
)

// EventBridge forwards aggregator callbacks into a running tea.Program.
type EventBridge struct {
	send func(msg tea.Msg)
}

// NewEventBridge creates an EventBridge that sends messages via the given function.
// Typically called with program.Send as the argument.
func NewEventBridge(send func(msg tea.Msg)) *EventBridge {
	return &EventBridge{send: send}
}

// AggregatorOptions returns handler options that report every text delta
// and every newly opened tool call to the TUI.
func (b *EventBridge) AggregatorOptions() []llm.AggregatorOption {
	return []llm.AggregatorOption{
		llm.WithTextHandler(func(delta string) {
			b.send(TextDeltaMsg{Delta: delta})
		}),
		llm.WithToolCallHandler(func(id, name string) {
			b.send(ToolCallMsg{ID: id, Name: name})
		}),
	}
}

// RunFunc performs one streamed request using the given aggregator options.
type RunFunc func(opts ...llm.AggregatorOption) (*llm.Message, error)

// RunStreamCmd returns a tea.Cmd that executes run and reports its outcome as a ResultMsg.
func RunStreamCmd(run RunFunc, opts []llm.AggregatorOption) tea.Cmd {
	return func() tea.Msg {
		msg, err := run(opts...)
		return ResultMsg{Message: msg, Err: err}
	}
}

// TickCmd returns a tea.Cmd that sends a TickMsg after the given interval.
func TickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}
