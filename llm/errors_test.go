// ABOUTME: Tests for the error hierarchy: messages, unwrapping, errors.As targets, and status mapping.
// ABOUTME: Protocol and finalize errors must never be retryable.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSDKError(t *testing.T) {
	cause := errors.New("underlying")
	err := &SDKError{Message: "wrapper", Cause: cause}
	assert.Equal(t, "wrapper: underlying", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.False(t, err.IsRetryable())
}

func TestProtocolViolationError(t *testing.T) {
	err := newProtocolViolation(ViolationDuplicateCallID, "call_1", 2, "tool call id %q opened twice", "call_1")

	assert.True(t, strings.HasPrefix(err.Error(), "protocol violation: "), err.Error())
	assert.Equal(t, ViolationDuplicateCallID, err.Kind)
	assert.Equal(t, "call_1", err.CallID)
	assert.Equal(t, 2, err.Index)
	assert.False(t, IsRetryable(err))

	wrapped := fmt.Errorf("collect: %w", err)
	var pv *ProtocolViolationError
	require.ErrorAs(t, wrapped, &pv)
	assert.Same(t, err, pv)
	var base *SDKError
	assert.ErrorAs(t, wrapped, &base)
}

func TestDoubleFinalizeError(t *testing.T) {
	err := &DoubleFinalizeError{SDKError: SDKError{Message: "already finalized"}, AggregatorID: "agg"}
	assert.False(t, IsRetryable(err))
	var base *SDKError
	require.ErrorAs(t, err, &base)
	assert.Equal(t, "already finalized", base.Message)
}

func TestErrorFromStatusCode(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		target    any
	}{
		{400, false, new(*InvalidRequestError)},
		{422, false, new(*InvalidRequestError)},
		{401, false, new(*AuthenticationError)},
		{403, false, new(*AuthenticationError)},
		{404, false, new(*NotFoundError)},
		{429, true, new(*RateLimitError)},
		{500, true, new(*ServerError)},
		{503, true, new(*ServerError)},
		{418, true, new(*ProviderError)},
	}

	for _, tt := range tests {
		err := ErrorFromStatusCode(tt.status, "msg", "code", json.RawMessage(`{}`), nil)
		assert.ErrorAs(t, err, tt.target, "status %d", tt.status)
		assert.Equal(t, tt.retryable, IsRetryable(err), "status %d", tt.status)

		var pe *ProviderError
		require.ErrorAs(t, err, &pe, "status %d", tt.status)
		assert.Equal(t, tt.status, pe.StatusCode)
		assert.Equal(t, "code", pe.ErrorCode)
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := ErrorFromStatusCode(429, "slow down", "", nil, nil)
	assert.EqualError(t, err, "upstream error (status 429): slow down")
}

func TestStreamAndNetworkErrorsRetryable(t *testing.T) {
	cause := errors.New("reset")
	for _, err := range []error{
		&StreamError{SDKError: SDKError{Message: "read", Cause: cause}},
		&NetworkError{SDKError: SDKError{Message: "dial", Cause: cause}},
	} {
		assert.True(t, IsRetryable(err), "%T", err)
		assert.ErrorIs(t, err, cause, "%T", err)
	}
}
