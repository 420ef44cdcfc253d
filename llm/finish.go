// ABOUTME: Maps vendor finish reasons onto the normalized FinishReason enum.
// ABOUTME: Accepts both Chat Completions wire values and the Azure/GitHub enum spellings.

package llm

import "strings"

var finishReasonTable = map[string]FinishReason{
	"stop":                FinishStop,
	"stopped":             FinishStop,
	"length":              FinishLength,
	"token_limit_reached": FinishLength,
	"content_filter":      FinishContentFilter,
	"content_filtered":    FinishContentFilter,
	"function_call":       FinishToolExecution,
	"tool_calls":          FinishToolExecution,
}

// MapFinishReason translates a vendor finish reason into a FinishReason.
// An absent value maps to FinishUnset; anything unrecognized maps to FinishOther.
func MapFinishReason(vendor string) FinishReason {
	vendor = strings.ToLower(strings.TrimSpace(vendor))
	if vendor == "" {
		return FinishUnset
	}
	if r, ok := finishReasonTable[vendor]; ok {
		return r
	}
	return FinishOther
}
