// ABOUTME: openai-go integration: normalizes SDK chunks and drives an Aggregator from an SDK stream.
// ABOUTME: Supports OpenAI and OpenAI-compatible providers through a custom base URL.

package llm

import (
	"context"
	"io"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"go.uber.org/zap"
)

// NormalizeOpenAI converts an openai-go chunk into an Event, following the
// same contract as Normalize. Usage is only read when the chunk carried it.
func NormalizeOpenAI(chunk openai.ChatCompletionChunk) (Event, bool) {
	evt := Event{
		Meta: Metadata{
			ID:                chunk.ID,
			Model:             chunk.Model,
			Created:           chunk.Created,
			SystemFingerprint: chunk.SystemFingerprint,
			ServiceTier:       string(chunk.ServiceTier),
		},
	}
	produced := false

	if chunk.JSON.Usage.Valid() {
		evt.Usage = &Usage{
			PromptTokens:     int(chunk.Usage.PromptTokens),
			CompletionTokens: int(chunk.Usage.CompletionTokens),
			TotalTokens:      int(chunk.Usage.TotalTokens),
		}
		produced = true
	}

	if len(chunk.Choices) == 0 {
		return evt, produced
	}
	choice := chunk.Choices[0]

	if fr := MapFinishReason(choice.FinishReason); fr != FinishUnset {
		evt.FinishReason = &fr
	}
	evt.TextDelta = choice.Delta.Content
	for _, tc := range choice.Delta.ToolCalls {
		evt.ToolCallDeltas = append(evt.ToolCallDeltas, ToolCallDelta{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return evt, true
}

// OpenAISource adapts an openai-go chunk stream to EventSource.
type OpenAISource struct {
	stream *ssestream.Stream[openai.ChatCompletionChunk]
}

// NewOpenAISource wraps stream. Close closes stream.
func NewOpenAISource(stream *ssestream.Stream[openai.ChatCompletionChunk]) *OpenAISource {
	return &OpenAISource{stream: stream}
}

// Next returns the next non-empty event, or io.EOF when the stream ends.
// Transport and decode failures are reported as *StreamError.
func (s *OpenAISource) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		if !s.stream.Next() {
			if err := s.stream.Err(); err != nil {
				if ctx.Err() != nil {
					return Event{}, ctx.Err()
				}
				return Event{}, &StreamError{SDKError: SDKError{Message: "openai stream", Cause: err}}
			}
			return Event{}, io.EOF
		}
		if evt, ok := NormalizeOpenAI(s.stream.Current()); ok {
			return evt, nil
		}
	}
}

// Close releases the underlying HTTP response.
func (s *OpenAISource) Close() error {
	return s.stream.Close()
}

// OpenAIClient streams chat completions through the official openai-go SDK.
type OpenAIClient struct {
	client openai.Client
	model  string
	logger *zap.Logger
}

// NewOpenAIClient creates a client. An empty baseURL targets api.openai.com;
// any OpenAI-compatible /v1 base works as well.
func NewOpenAIClient(apiKey, model, baseURL string, logger *zap.Logger, extra ...option.RequestOption) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	opts = append(opts, extra...)
	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		logger: logger,
	}
}

// Stream opens a streaming completion. Usage reporting is always requested so
// the final chunk carries token totals.
func (c *OpenAIClient) Stream(ctx context.Context, params openai.ChatCompletionNewParams) EventSource {
	if params.Model == "" {
		params.Model = c.model
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}
	return NewOpenAISource(c.client.Chat.Completions.NewStreaming(ctx, params))
}

// Complete streams params into a fresh Aggregator and returns the final
// message, partial on failure, with any error.
func (c *OpenAIClient) Complete(ctx context.Context, params openai.ChatCompletionNewParams, opts ...AggregatorOption) (*Message, error) {
	agg := NewAggregator(append([]AggregatorOption{WithLogger(c.logger)}, opts...)...)
	src := c.Stream(ctx, params)
	defer src.Close()
	return Collect(ctx, src, agg)
}

// Prompt sends a single user prompt, with an optional system prompt.
func (c *OpenAIClient) Prompt(ctx context.Context, system, prompt string, opts ...AggregatorOption) (*Message, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))
	return c.Complete(ctx, openai.ChatCompletionNewParams{
		Model:    c.model,
		Messages: messages,
	}, opts...)
}
