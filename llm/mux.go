// ABOUTME: Translates a finalized Message into the mux framework's Response model.
// ABOUTME: Lets aggregated streams feed agent loops built on github.com/2389-research/mux.

package llm

import (
	muxllm "github.com/2389-research/mux/llm"
	"go.uber.org/zap"
)

// ToMuxResponse converts msg into a mux Response. Text becomes a single text
// block ahead of one tool_use block per call, in call order. Arguments that
// do not parse as a JSON object are logged to the global zap logger and sent
// as empty input.
func ToMuxResponse(msg *Message) *muxllm.Response {
	if msg == nil {
		return nil
	}
	resp := &muxllm.Response{
		ID:         msg.ID,
		Model:      msg.Model,
		StopReason: toMuxStopReason(msg.FinishReason),
		Usage: muxllm.Usage{
			InputTokens:  msg.Usage.PromptTokens,
			OutputTokens: msg.Usage.CompletionTokens,
		},
	}

	if msg.HasText() {
		resp.Content = append(resp.Content, muxllm.ContentBlock{
			Type: muxllm.ContentTypeText,
			Text: msg.Text,
		})
	}
	for _, tc := range msg.ToolCalls {
		input, err := tc.ArgumentsMap()
		if err != nil {
			zap.L().Warn("tool call arguments are not a JSON object",
				zap.String("call_id", tc.ID),
				zap.String("tool", tc.Name),
				zap.Error(err))
			input = map[string]any{}
		}
		resp.Content = append(resp.Content, muxllm.ContentBlock{
			Type:  muxllm.ContentTypeToolUse,
			ID:    tc.ID,
			Name:  tc.Name,
			Input: input,
		})
	}
	return resp
}

func toMuxStopReason(fr FinishReason) muxllm.StopReason {
	switch fr {
	case FinishStop:
		return muxllm.StopReasonEndTurn
	case FinishToolExecution:
		return muxllm.StopReasonToolUse
	case FinishLength:
		return muxllm.StopReasonMaxTokens
	case FinishUnset:
		return ""
	default:
		return muxllm.StopReason(fr)
	}
}
