// ABOUTME: Drives an Aggregator from an event source, pull-style (Collect) or push-style (Pump + CollectEvents).
// ABOUTME: Upstream failures never prevent Finalize: the partial message is always returned alongside the error.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389-research/stitch/llm/sse"
)

const tracerName = "github.com/2389-research/stitch/llm"

// EventSource yields normalized events in stream delivery order.
// Next returns io.EOF after the last event.
type EventSource interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// SSESource reads chat.completion.chunk objects from a Server-Sent Events body.
type SSESource struct {
	body    io.ReadCloser
	decoder *sse.Decoder
	done    bool
}

// NewSSESource returns a source reading from body. Close closes body.
func NewSSESource(body io.ReadCloser) *SSESource {
	return &SSESource{body: body, decoder: sse.NewDecoder(body)}
}

// Next returns the next non-empty event. Chunks that normalize to nothing are
// skipped. The [DONE] sentinel and end of body both end the stream.
func (s *SSESource) Next(ctx context.Context) (Event, error) {
	for {
		if s.done {
			return Event{}, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		raw, err := s.decoder.Next()
		if errors.Is(err, io.EOF) {
			s.done = true
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, &StreamError{SDKError: SDKError{Message: "read stream", Cause: err}}
		}
		if raw.Done() {
			s.done = true
			return Event{}, io.EOF
		}
		if raw.Type == "error" {
			return Event{}, &StreamError{SDKError: SDKError{Message: "upstream error event: " + raw.Data}}
		}

		var chunk Chunk
		if err := json.Unmarshal([]byte(raw.Data), &chunk); err != nil {
			return Event{}, &StreamError{SDKError: SDKError{Message: "decode chunk", Cause: err}}
		}
		if evt, ok := Normalize(chunk); ok {
			return evt, nil
		}
	}
}

// Close releases the underlying body.
func (s *SSESource) Close() error {
	return s.body.Close()
}

// Collect reads src to completion, appending every event to agg, then finalizes.
//
// The returned message is non-nil whenever Finalize succeeded, including when
// the stream failed, was cancelled, or broke the tool-call protocol; in those
// cases the error is returned as well. Upstream errors are passed through as
// produced by the source; protocol violations stop reading. Collect does not
// close src.
func Collect(ctx context.Context, src EventSource, agg *Aggregator) (*Message, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.Collect",
		trace.WithAttributes(attribute.String("aggregator.id", agg.ID())))
	defer span.End()

	var streamErr error
	for {
		evt, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		if err := agg.Append(evt); err != nil {
			streamErr = err
			break
		}
	}

	msg, err := agg.Finalize()
	streamErr = joinErr(streamErr, err)
	recordResult(span, agg, msg, streamErr)
	return msg, streamErr
}

// Pump reads src on a new goroutine and delivers events on the returned
// channel. The events channel is closed when the stream ends; at most one
// error is sent on the error channel, which is closed after the events channel.
// Pump closes src when it is done.
func Pump(ctx context.Context, src EventSource) (<-chan Event, <-chan error) {
	events := make(chan Event)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(events)
		defer src.Close()
		for {
			evt, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			select {
			case events <- evt:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return events, errs
}

// CollectEvents appends every event received on events to agg and finalizes
// once events is closed. The close is the handoff point that makes every
// Append visible to Finalize. An error received on errs, or a protocol
// violation, is returned with the partial message.
func CollectEvents(ctx context.Context, events <-chan Event, errs <-chan error, agg *Aggregator) (*Message, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "llm.CollectEvents",
		trace.WithAttributes(attribute.String("aggregator.id", agg.ID())))
	defer span.End()

	var streamErr error
loop:
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				break loop
			}
			if streamErr != nil {
				continue // drain so the producer can exit
			}
			streamErr = agg.Append(evt)
		case <-ctx.Done():
			if streamErr == nil {
				streamErr = ctx.Err()
			}
			break loop
		}
	}
	if streamErr == nil && errs != nil {
		// errs is closed right after events, so this only waits for the producer to exit.
		streamErr = <-errs
	}

	msg, err := agg.Finalize()
	streamErr = joinErr(streamErr, err)
	recordResult(span, agg, msg, streamErr)
	return msg, streamErr
}

func joinErr(first, second error) error {
	switch {
	case second == nil:
		return first
	case first == nil:
		return second
	default:
		return errors.Join(first, second)
	}
}

func recordResult(span trace.Span, agg *Aggregator, msg *Message, err error) {
	span.SetAttributes(attribute.Int("stream.events", agg.Events()))
	if msg != nil {
		span.SetAttributes(
			attribute.Int("message.tool_calls", len(msg.ToolCalls)),
			attribute.Int("usage.prompt_tokens", msg.Usage.PromptTokens),
			attribute.Int("usage.completion_tokens", msg.Usage.CompletionTokens),
			attribute.String("message.finish_reason", msg.FinishReason.String()),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
