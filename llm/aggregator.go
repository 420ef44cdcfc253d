// ABOUTME: Streaming Aggregator: folds normalized events into text, tool calls, usage, and finish reason.
// ABOUTME: Single-writer state machine; Finalize produces the immutable Message exactly once.

package llm

import (
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// toolCallBuilder accumulates one tool call. Once registered under an id it
// is never replaced, only appended to.
type toolCallBuilder struct {
	id        string
	name      strings.Builder
	arguments strings.Builder
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger used for debug tracing and protocol violations.
func WithLogger(logger *zap.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTextHandler registers a callback invoked with every non-empty text delta,
// on the goroutine calling Append.
func WithTextHandler(fn func(delta string)) AggregatorOption {
	return func(a *Aggregator) {
		a.onText = fn
	}
}

// WithToolCallHandler registers a callback invoked when a new tool call opens.
// The name is whatever fragment arrived with the opening delta, often empty.
func WithToolCallHandler(fn func(id, name string)) AggregatorOption {
	return func(a *Aggregator) {
		a.onToolCall = fn
	}
}

// Aggregator reconstructs one chat message from an ordered sequence of events.
//
// Append must be called by a single goroutine in stream delivery order.
// Finalize may be called from another goroutine only after a synchronization
// point that makes every prior Append visible (for example a closed channel).
// Each request, including each retry of a request, needs its own Aggregator.
type Aggregator struct {
	id     string
	logger *zap.Logger

	onText     func(string)
	onToolCall func(id, name string)

	text         strings.Builder
	calls        map[string]*toolCallBuilder
	order        []string
	activeCallID string
	usage        Usage
	sawUsage     bool
	finishReason FinishReason
	meta         Metadata
	events       int

	finalized atomic.Bool
}

// NewAggregator returns an empty Aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		id:     uuid.NewString(),
		logger: zap.NewNop(),
		calls:  make(map[string]*toolCallBuilder),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("aggregator", a.id))
	return a
}

// ID returns the identifier used to correlate this aggregator's log lines.
func (a *Aggregator) ID() string {
	return a.id
}

// Events returns how many events have been appended.
func (a *Aggregator) Events() int {
	return a.events
}

// Append folds one event into the aggregation state. Usage and finish reason
// are latest-wins snapshots; text and tool-call fragments are concatenated in
// arrival order. A delta that breaks the protocol is not applied and its
// *ProtocolViolationError is returned; deltas before it in the same event stay applied.
func (a *Aggregator) Append(evt Event) error {
	if a.finalized.Load() {
		return newProtocolViolation(ViolationAfterFinalize, "", -1, "append on finalized aggregator %s", a.id)
	}
	a.events++

	a.meta.merge(evt.Meta)
	if evt.Usage != nil {
		a.usage = *evt.Usage
		a.sawUsage = true
	}
	if evt.FinishReason != nil {
		a.finishReason = *evt.FinishReason
	}
	if evt.TextDelta != "" {
		a.text.WriteString(evt.TextDelta)
		if a.onText != nil {
			a.onText(evt.TextDelta)
		}
	}

	for i, delta := range evt.ToolCallDeltas {
		var err error
		if delta.HasID() {
			err = a.openCall(i, delta)
		} else {
			err = a.continueCall(i, delta)
		}
		if err != nil {
			a.logger.Warn("dropping tool call fragment",
				zap.Int("event", a.events),
				zap.Int("delta", i),
				zap.Error(err))
			return err
		}
	}
	return nil
}

// openCall starts a new tool call keyed by delta.ID and makes it active.
func (a *Aggregator) openCall(index int, delta ToolCallDelta) error {
	// Defensive: Append only routes deltas with an id here. A builder without
	// a key could never be reached by a continuation.
	if !delta.HasID() {
		return newProtocolViolation(ViolationUnassignedCall, "", index,
			"tool call opened without an id (name %q)", delta.Name)
	}
	if _, exists := a.calls[delta.ID]; exists {
		return newProtocolViolation(ViolationDuplicateCallID, delta.ID, index,
			"tool call id %q opened twice", delta.ID)
	}
	b := &toolCallBuilder{id: delta.ID}
	b.name.WriteString(delta.Name)
	b.arguments.WriteString(delta.Arguments)
	a.calls[delta.ID] = b
	a.order = append(a.order, delta.ID)
	a.activeCallID = delta.ID

	a.logger.Debug("tool call opened", zap.String("call_id", delta.ID), zap.String("name", delta.Name))
	if a.onToolCall != nil {
		a.onToolCall(delta.ID, delta.Name)
	}
	return nil
}

// continueCall appends fragments to the active call.
func (a *Aggregator) continueCall(index int, delta ToolCallDelta) error {
	if a.activeCallID == "" {
		return newProtocolViolation(ViolationOrphanFragment, "", index,
			"tool call fragment (name %q, arguments %q) arrived before any call was opened",
			delta.Name, delta.Arguments)
	}
	b := a.calls[a.activeCallID]
	b.name.WriteString(delta.Name)
	b.arguments.WriteString(delta.Arguments)
	return nil
}

// Finalize snapshots the aggregation state into a Message. It may be called
// once; later calls return *DoubleFinalizeError. Incomplete tool calls are
// returned as they are, so Finalize stays usable after a failed or cancelled stream.
func (a *Aggregator) Finalize() (*Message, error) {
	if !a.finalized.CompareAndSwap(false, true) {
		return nil, &DoubleFinalizeError{
			SDKError:     SDKError{Message: "aggregator " + a.id + " already finalized"},
			AggregatorID: a.id,
		}
	}

	msg := &Message{
		Metadata:     a.meta,
		Text:         a.text.String(),
		ToolCalls:    make([]ToolCall, 0, len(a.order)),
		Usage:        a.usage,
		FinishReason: a.finishReason,
	}
	for _, id := range a.order {
		b := a.calls[id]
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        b.id,
			Name:      b.name.String(),
			Arguments: b.arguments.String(),
		})
	}

	a.logger.Debug("aggregation finalized",
		zap.Int("events", a.events),
		zap.Int("text_bytes", len(msg.Text)),
		zap.Int("tool_calls", len(msg.ToolCalls)),
		zap.Bool("usage_reported", a.sawUsage),
		zap.Stringer("finish_reason", msg.FinishReason))
	return msg, nil
}
