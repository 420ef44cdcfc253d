// ABOUTME: Bubble Tea message types carrying stream progress into the TUI loop.
// ABOUTME: Text deltas and tool call openings come from aggregator handlers; ResultMsg ends the run.
package tui

import (
	"time"

	"github.com/2389-research/stitch/llm"
)

// TextDeltaMsg carries one text fragment folded by the aggregator.
type TextDeltaMsg struct {
	Delta string
}

// ToolCallMsg signals that a new tool call was opened.
type ToolCallMsg struct {
	ID   string
	Name string
}

// ResultMsg signals that the stream finished, successfully or not.
// Message may be a partial message when Err is set.
type ResultMsg struct {
	Message *llm.Message
	Err     error
}

// TickMsg is sent periodically to refresh the elapsed timer.
type TickMsg struct {
	Time time.Time
}
