// ABOUTME: Top-level Bubble Tea AppModel composing the reply, tool call, and status panels.
// ABOUTME: Run wires an EventBridge to a tea.Program and returns the aggregated message when the stream ends.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/stitch/llm"
)

const tickInterval = 250 * time.Millisecond

// AppModel renders one streamed completion while it is being aggregated.
type AppModel struct {
	reply     *ReplyPanelModel
	tools     *ToolPanelModel
	statusBar StatusBarModel

	run    RunFunc
	bridge *EventBridge
	cancel context.CancelFunc

	done   bool
	result *llm.Message
	err    error
	width  int
	height int
}

// NewAppModel creates an AppModel. A non-nil run is started from Init with
// the bridge's aggregator options; with a nil run the caller delivers the
// ResultMsg itself. cancel is called when the user quits early.
func NewAppModel(model string, run RunFunc, bridge *EventBridge, cancel context.CancelFunc) AppModel {
	return AppModel{
		reply:     NewReplyPanelModel(),
		tools:     NewToolPanelModel(100),
		statusBar: NewStatusBarModel(model),
		run:       run,
		bridge:    bridge,
		cancel:    cancel,
	}
}

// Init implements tea.Model. It starts the tick loop, and the stream when
// the model owns one.
func (m AppModel) Init() tea.Cmd {
	start := time.Now()
	tick := func() tea.Msg { return TickMsg{Time: start} }
	if m.run == nil {
		return tick
	}
	var opts []llm.AggregatorOption
	if m.bridge != nil {
		opts = m.bridge.AggregatorOptions()
	}
	return tea.Batch(tick, RunStreamCmd(m.run, opts))
}

// Update implements tea.Model.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TextDeltaMsg:
		m.reply.Append(msg.Delta)
		m.statusBar.AddDelta(msg.Delta)
		return m, nil

	case ToolCallMsg:
		m.tools.Append(msg.ID, msg.Name)
		m.statusBar.SetToolCalls(m.tools.Total())
		return m, nil

	case TickMsg:
		if m.statusBar.startTime.IsZero() {
			m.statusBar.Start(msg.Time)
		} else {
			m.statusBar.Tick(msg.Time)
		}
		if m.done {
			return m, nil
		}
		return m, TickCmd(tickInterval)

	case ResultMsg:
		m.done = true
		m.result = msg.Message
		m.err = msg.Err
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
		return m, m.reply.Update(msg)
	}
	return m, nil
}

// View implements tea.Model.
func (m AppModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.width < 40 || m.height < 8 {
		return fmt.Sprintf("Terminal too small (%dx%d). Minimum: 40x8.", m.width, m.height)
	}

	bodyHeight := m.height - 1
	toolWidth := m.width * 30 / 100
	replyWidth := m.width - toolWidth
	m.reply.SetSize(replyWidth, bodyHeight)
	m.tools.SetSize(toolWidth, bodyHeight)
	m.statusBar.SetWidth(m.width)

	status := m.statusBar.View()
	switch {
	case m.done && m.err != nil:
		status += " " + FailedStyle.Render(fmt.Sprintf("FAILED: %v", m.err))
	case m.done:
		status += " " + CompletedStyle.Render("DONE")
	default:
		status += " " + RunningStyle.Render("streaming")
	}

	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, m.reply.View(), m.tools.View()))
	b.WriteString("\n")
	b.WriteString(status)
	return b.String()
}

// Done reports whether the stream has reported its outcome.
func (m AppModel) Done() bool {
	return m.done
}

// Result returns the message and error reported by the stream.
func (m AppModel) Result() (*llm.Message, error) {
	return m.result, m.err
}

// ErrInterrupted is returned by Run when the user quits before the stream ends.
var ErrInterrupted = errors.New("live view closed before the stream finished")

// Run shows the live view on out while run streams, and returns run's result.
// Input is read from in; pass nil to disable keyboard handling.
//
// run must return once its context is cancelled. When the view is closed
// early Run cancels it, waits for it, and returns its partial message with
// ErrInterrupted, or with the parent's error when the parent was cancelled.
func Run(parent context.Context, model string, run func(ctx context.Context, opts ...llm.AggregatorOption) (*llm.Message, error), in io.Reader, out io.Writer) (*llm.Message, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	bridge := &EventBridge{}
	p := tea.NewProgram(NewAppModel(model, nil, bridge, cancel),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
		tea.WithAltScreen(),
	)
	bridge.send = p.Send

	results := make(chan ResultMsg, 1)
	go func() {
		msg, err := run(ctx, bridge.AggregatorOptions()...)
		res := ResultMsg{Message: msg, Err: err}
		results <- res
		// Returns immediately once the program has exited.
		p.Send(res)
	}()

	final, err := p.Run()
	cancel()
	res := <-results

	if fm, ok := final.(AppModel); ok && fm.Done() {
		return res.Message, res.Err
	}
	if perr := parent.Err(); perr != nil {
		return res.Message, perr
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return res.Message, err
	}
	return res.Message, ErrInterrupted
}
