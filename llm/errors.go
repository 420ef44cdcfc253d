// ABOUTME: Error hierarchy for the aggregator and its stream collaborators.
// ABOUTME: Aggregator failures are ProtocolViolationError and DoubleFinalizeError; upstream failures carry retryability.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SDKError is the base error type embedded by every error in this package.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns false; subtypes override it.
func (e *SDKError) IsRetryable() bool {
	return false
}

// ViolationKind names the way a stream broke the tool-call protocol.
type ViolationKind string

const (
	// ViolationOrphanFragment is a continuation fragment with no open call.
	ViolationOrphanFragment ViolationKind = "orphan_fragment"
	// ViolationDuplicateCallID is a new-call id that was already opened.
	ViolationDuplicateCallID ViolationKind = "duplicate_call_id"
	// ViolationUnassignedCall is a tool call opened without an id.
	ViolationUnassignedCall ViolationKind = "unassigned_call"
	// ViolationAfterFinalize is an Append on a finalized aggregator.
	ViolationAfterFinalize ViolationKind = "append_after_finalize"
)

// ProtocolViolationError reports fragments the aggregator cannot place.
// It is never retried: the aggregator cannot know which fragment is authoritative.
type ProtocolViolationError struct {
	SDKError
	Kind   ViolationKind
	CallID string
	// Index is the position of the offending delta within its event, or -1.
	Index int
}

func (e *ProtocolViolationError) Error() string     { return e.SDKError.Error() }
func (e *ProtocolViolationError) Unwrap() error     { return e.SDKError.Unwrap() }
func (e *ProtocolViolationError) IsRetryable() bool { return false }

func (e *ProtocolViolationError) As(target any) bool {
	switch t := target.(type) {
	case **SDKError:
		*t = &e.SDKError
		return true
	default:
		return false
	}
}

func newProtocolViolation(kind ViolationKind, callID string, index int, format string, args ...any) *ProtocolViolationError {
	return &ProtocolViolationError{
		SDKError: SDKError{Message: "protocol violation: " + fmt.Sprintf(format, args...)},
		Kind:     kind,
		CallID:   callID,
		Index:    index,
	}
}

// DoubleFinalizeError is returned when Finalize is called more than once.
type DoubleFinalizeError struct {
	SDKError
	AggregatorID string
}

func (e *DoubleFinalizeError) Error() string     { return e.SDKError.Error() }
func (e *DoubleFinalizeError) Unwrap() error     { return e.SDKError.Unwrap() }
func (e *DoubleFinalizeError) IsRetryable() bool { return false }

func (e *DoubleFinalizeError) As(target any) bool {
	switch t := target.(type) {
	case **SDKError:
		*t = &e.SDKError
		return true
	default:
		return false
	}
}

// ProviderError is an error reported by the upstream API over HTTP.
type ProviderError struct {
	SDKError
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64
	Raw        json.RawMessage
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.SDKError.Error())
}

func (e *ProviderError) Unwrap() error     { return e.SDKError.Unwrap() }
func (e *ProviderError) IsRetryable() bool { return e.Retryable }

func (e *ProviderError) As(target any) bool {
	switch t := target.(type) {
	case **SDKError:
		*t = &e.SDKError
		return true
	default:
		return false
	}
}

// AuthenticationError is a 401 from the upstream API. Not retryable.
type AuthenticationError struct {
	ProviderError
}

// InvalidRequestError is a 400 or 422 from the upstream API. Not retryable.
type InvalidRequestError struct {
	ProviderError
}

// NotFoundError is a 404 from the upstream API. Not retryable.
type NotFoundError struct {
	ProviderError
}

// RateLimitError is a 429 from the upstream API. Retryable.
type RateLimitError struct {
	ProviderError
}

// ServerError is a 5xx from the upstream API. Retryable.
type ServerError struct {
	ProviderError
}

func (e *AuthenticationError) As(target any) bool { return providerAs(&e.ProviderError, target) }
func (e *InvalidRequestError) As(target any) bool { return providerAs(&e.ProviderError, target) }
func (e *NotFoundError) As(target any) bool       { return providerAs(&e.ProviderError, target) }
func (e *RateLimitError) As(target any) bool      { return providerAs(&e.ProviderError, target) }
func (e *ServerError) As(target any) bool         { return providerAs(&e.ProviderError, target) }

func providerAs(pe *ProviderError, target any) bool {
	switch t := target.(type) {
	case **ProviderError:
		*t = pe
		return true
	case **SDKError:
		*t = &pe.SDKError
		return true
	default:
		return false
	}
}

// StreamError is a failure while reading or decoding the stream. Retryable.
type StreamError struct {
	SDKError
}

func (e *StreamError) Error() string     { return e.SDKError.Error() }
func (e *StreamError) Unwrap() error     { return e.SDKError.Unwrap() }
func (e *StreamError) IsRetryable() bool { return true }

func (e *StreamError) As(target any) bool {
	switch t := target.(type) {
	case **SDKError:
		*t = &e.SDKError
		return true
	default:
		return false
	}
}

// NetworkError is a transport-level failure before any response arrived. Retryable.
type NetworkError struct {
	SDKError
}

func (e *NetworkError) Error() string     { return e.SDKError.Error() }
func (e *NetworkError) Unwrap() error     { return e.SDKError.Unwrap() }
func (e *NetworkError) IsRetryable() bool { return true }

func (e *NetworkError) As(target any) bool {
	switch t := target.(type) {
	case **SDKError:
		*t = &e.SDKError
		return true
	default:
		return false
	}
}

// IsRetryable reports whether err, or anything it wraps, is marked retryable.
func IsRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
// Unknown status codes yield a retryable ProviderError.
func ErrorFromStatusCode(statusCode int, message, errorCode string, raw json.RawMessage, retryAfter *float64) error {
	base := ProviderError{
		SDKError:   SDKError{Message: message},
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Raw:        raw,
		RetryAfter: retryAfter,
	}

	switch {
	case statusCode == 400 || statusCode == 422:
		return &InvalidRequestError{ProviderError: base}
	case statusCode == 401 || statusCode == 403:
		return &AuthenticationError{ProviderError: base}
	case statusCode == 404:
		return &NotFoundError{ProviderError: base}
	case statusCode == 429:
		base.Retryable = true
		return &RateLimitError{ProviderError: base}
	case statusCode >= 500 && statusCode <= 599:
		base.Retryable = true
		return &ServerError{ProviderError: base}
	default:
		base.Retryable = true
		return &base
	}
}
