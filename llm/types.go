// ABOUTME: Core data model for the streaming aggregator: finish reasons, usage, tool calls, and the final message.
// ABOUTME: Message is the immutable snapshot produced once by Aggregator.Finalize.

package llm

import (
	"encoding/json"
	"fmt"
)

// FinishReason is the normalized cause for stream termination.
type FinishReason string

const (
	FinishUnset         FinishReason = ""
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishToolExecution FinishReason = "tool_execution"
	FinishOther         FinishReason = "other"
)

// String returns the reason, or "unset" when no reason was ever received.
func (r FinishReason) String() string {
	if r == FinishUnset {
		return "unset"
	}
	return string(r)
}

// Usage tracks token consumption for a single streamed completion.
// Streams that never report usage leave every field at zero.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens" yaml:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens" yaml:"completion_tokens"`
	TotalTokens      int `json:"total_tokens" yaml:"total_tokens"`
}

// ToolCall is one fully assembled tool invocation request.
// Arguments is the verbatim concatenation of the streamed fragments.
type ToolCall struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Arguments string `json:"arguments" yaml:"arguments"`
}

// ArgumentsMap parses the raw JSON arguments into a map.
func (tc ToolCall) ArgumentsMap() (map[string]any, error) {
	if tc.Arguments == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(tc.Arguments), &m); err != nil {
		return nil, fmt.Errorf("tool call %s: parse arguments: %w", tc.ID, err)
	}
	return m, nil
}

// Metadata describes the response a stream belongs to. Vendors repeat these
// fields on every chunk; the latest non-empty value is kept.
type Metadata struct {
	ID                string `json:"id,omitempty" yaml:"id,omitempty"`
	Model             string `json:"model,omitempty" yaml:"model,omitempty"`
	Created           int64  `json:"created,omitempty" yaml:"created,omitempty"`
	SystemFingerprint string `json:"system_fingerprint,omitempty" yaml:"system_fingerprint,omitempty"`
	ServiceTier       string `json:"service_tier,omitempty" yaml:"service_tier,omitempty"`
}

// merge overwrites fields of m with the non-empty fields of other.
func (m *Metadata) merge(other Metadata) {
	if other.ID != "" {
		m.ID = other.ID
	}
	if other.Model != "" {
		m.Model = other.Model
	}
	if other.Created != 0 {
		m.Created = other.Created
	}
	if other.SystemFingerprint != "" {
		m.SystemFingerprint = other.SystemFingerprint
	}
	if other.ServiceTier != "" {
		m.ServiceTier = other.ServiceTier
	}
}

func (m Metadata) isZero() bool {
	return m == Metadata{}
}

// Message is the structurally complete chat message reconstructed from a stream.
// A Message may carry text, tool calls, both, or neither.
type Message struct {
	Metadata     `yaml:",inline"`
	Text         string       `json:"text" yaml:"text"`
	ToolCalls    []ToolCall   `json:"tool_calls" yaml:"tool_calls"`
	Usage        Usage        `json:"usage" yaml:"usage"`
	FinishReason FinishReason `json:"finish_reason" yaml:"finish_reason"`
}

// HasText reports whether any text was streamed.
func (m *Message) HasText() bool {
	return m.Text != ""
}

// HasToolCalls reports whether the model requested at least one tool.
func (m *Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// IsEmpty reports the explicit "empty response" state: no text and no tool calls.
func (m *Message) IsEmpty() bool {
	return !m.HasText() && !m.HasToolCalls()
}
