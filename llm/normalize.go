// ABOUTME: Event Normalizer: converts a Chat Completions chunk into a small normalized Event.
// ABOUTME: Every wire field is optional; Normalize never fails, it only reports whether an event was produced.

package llm

// Event is the normalized form of one vendor partial update.
type Event struct {
	Usage          *Usage
	FinishReason   *FinishReason
	TextDelta      string
	ToolCallDeltas []ToolCallDelta
	Meta           Metadata
}

// ToolCallDelta is one tool-call fragment. A non-empty ID marks the start of
// a new call; a delta without ID continues the most recently opened one.
type ToolCallDelta struct {
	ID        string
	Name      string
	Arguments string
}

// HasID reports whether the delta opens a new call.
func (d ToolCallDelta) HasID() bool {
	return d.ID != ""
}

// Chunk mirrors a chat.completion.chunk object as it appears on the wire.
type Chunk struct {
	ID                string        `json:"id,omitempty"`
	Object            string        `json:"object,omitempty"`
	Created           int64         `json:"created,omitempty"`
	Model             string        `json:"model,omitempty"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	ServiceTier       string        `json:"service_tier,omitempty"`
	Choices           []ChunkChoice `json:"choices,omitempty"`
	Usage             *ChunkUsage   `json:"usage,omitempty"`
}

// ChunkChoice is one entry of Chunk.Choices.
type ChunkChoice struct {
	Index        int         `json:"index"`
	Delta        *ChunkDelta `json:"delta,omitempty"`
	FinishReason *string     `json:"finish_reason,omitempty"`
}

// ChunkDelta carries the incremental content of a choice.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	ToolCalls []ChunkToolCall `json:"tool_calls,omitempty"`
}

// ChunkToolCall is a tool-call fragment inside a delta.
type ChunkToolCall struct {
	Index    int            `json:"index"`
	ID       *string        `json:"id,omitempty"`
	Type     string         `json:"type,omitempty"`
	Function *ChunkFunction `json:"function,omitempty"`
}

// ChunkFunction holds the streamed function name and argument fragments.
type ChunkFunction struct {
	Name      *string `json:"name,omitempty"`
	Arguments *string `json:"arguments,omitempty"`
}

// ChunkUsage is the cumulative usage snapshot some chunks carry.
type ChunkUsage struct {
	PromptTokens     int  `json:"prompt_tokens"`
	CompletionTokens int  `json:"completion_tokens"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// Normalize converts a wire chunk into an Event. It returns false for chunks
// that carry nothing to fold (no usable choice and no usage). Only the first
// choice is considered.
func Normalize(c Chunk) (Event, bool) {
	evt := Event{
		Meta: Metadata{
			ID:                c.ID,
			Model:             c.Model,
			Created:           c.Created,
			SystemFingerprint: c.SystemFingerprint,
			ServiceTier:       c.ServiceTier,
		},
	}
	produced := false

	if c.Usage != nil {
		u := Usage{
			PromptTokens:     c.Usage.PromptTokens,
			CompletionTokens: c.Usage.CompletionTokens,
			TotalTokens:      c.Usage.PromptTokens + c.Usage.CompletionTokens,
		}
		if c.Usage.TotalTokens != nil {
			u.TotalTokens = *c.Usage.TotalTokens
		}
		evt.Usage = &u
		produced = true
	}

	if len(c.Choices) == 0 {
		return evt, produced
	}
	choice := c.Choices[0]
	produced = true

	if choice.FinishReason != nil {
		fr := MapFinishReason(*choice.FinishReason)
		if fr != FinishUnset {
			evt.FinishReason = &fr
		}
	}

	if choice.Delta == nil {
		return evt, produced
	}
	if choice.Delta.Content != nil {
		evt.TextDelta = *choice.Delta.Content
	}
	for _, tc := range choice.Delta.ToolCalls {
		evt.ToolCallDeltas = append(evt.ToolCallDeltas, ToolCallDelta{
			ID:        deref(tc.ID),
			Name:      functionField(tc.Function, func(f *ChunkFunction) *string { return f.Name }),
			Arguments: functionField(tc.Function, func(f *ChunkFunction) *string { return f.Arguments }),
		})
	}
	return evt, produced
}

func functionField(f *ChunkFunction, get func(*ChunkFunction) *string) string {
	if f == nil {
		return ""
	}
	return deref(get(f))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
