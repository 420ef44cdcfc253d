// ABOUTME: Tests for the Server-Sent Events decoder.
// ABOUTME: Covers multi-line data, event types, ids, retry, comments, line endings, and the [DONE] sentinel.

package sse

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeAll(t *testing.T, input string) []Event {
	t.Helper()
	d := NewDecoder(strings.NewReader(input))
	var events []Event
	for {
		evt, err := d.Next()
		if err == io.EOF {
			return events
		}
		require.NoError(t, err)
		events = append(events, evt)
	}
}

func TestSingleLineEvent(t *testing.T) {
	events := decodeAll(t, "data: hello world\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "message", events[0].Type)
	assert.Equal(t, "hello world", events[0].Data)
	assert.Equal(t, -1, events[0].Retry)
}

func TestMultiLineData(t *testing.T) {
	events := decodeAll(t, "data: one\ndata: two\ndata: three\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "one\ntwo\nthree", events[0].Data)
}

func TestEventFields(t *testing.T) {
	events := decodeAll(t, "event: update\nid: 42\nretry: 3000\ndata: payload\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "update", events[0].Type)
	assert.Equal(t, "42", events[0].ID)
	assert.Equal(t, 3000, events[0].Retry)
	assert.Equal(t, "payload", events[0].Data)
}

func TestInvalidRetryIgnored(t *testing.T) {
	events := decodeAll(t, "retry: soon\ndata: x\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, -1, events[0].Retry)
}

func TestCommentsAndBlankLinesSkipped(t *testing.T) {
	events := decodeAll(t, ": keep-alive\n\n\n\ndata: a\n\n: another\ndata: b\n\n")
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Data)
	assert.Equal(t, "b", events[1].Data)
}

func TestLineEndings(t *testing.T) {
	for name, input := range map[string]string{
		"crlf": "data: a\r\n\r\ndata: b\r\n\r\n",
		"cr":   "data: a\r\rdata: b\r\r",
		"lf":   "data: a\n\ndata: b\n\n",
	} {
		t.Run(name, func(t *testing.T) {
			events := decodeAll(t, input)
			require.Len(t, events, 2)
			assert.Equal(t, "a", events[0].Data)
			assert.Equal(t, "b", events[1].Data)
		})
	}
}

func TestTrailingEventWithoutBlankLine(t *testing.T) {
	events := decodeAll(t, "data: first\n\ndata: last")
	require.Len(t, events, 2)
	assert.Equal(t, "last", events[1].Data)
}

func TestFieldWithoutColon(t *testing.T) {
	events := decodeAll(t, "data\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "", events[0].Data)
}

func TestValueKeepsSecondSpace(t *testing.T) {
	events := decodeAll(t, "data:  indented\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, " indented", events[0].Data)
}

func TestDoneSentinel(t *testing.T) {
	events := decodeAll(t, "data: {\"id\":\"x\"}\n\ndata: [DONE]\n\n")
	require.Len(t, events, 2)
	assert.False(t, events[0].Done())
	assert.True(t, events[1].Done())
}

func TestEOFIsSticky(t *testing.T) {
	d := NewDecoder(strings.NewReader(""))
	_, err := d.Next()
	assert.Equal(t, io.EOF, err)
	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestEventTypeWithoutDataIsDiscarded(t *testing.T) {
	events := decodeAll(t, "event: ping\n\ndata: x\n\n")
	require.Len(t, events, 1)
	assert.Equal(t, "message", events[0].Type)
}
