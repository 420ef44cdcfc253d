// ABOUTME: Server-Sent Events decoder for chat-completion streams.
// ABOUTME: Handles CR/LF/CRLF line endings, multi-line data, comments, id, and retry per the EventSource format.

package sse

import (
	"bufio"
	"errors"
	"io"
	"strconv"
	"strings"
)

// DoneSentinel is the data payload OpenAI-compatible APIs send as the last event.
const DoneSentinel = "[DONE]"

// Event is a single dispatched Server-Sent Event.
type Event struct {
	Type  string // "message" unless an event: field was present
	Data  string // data: lines joined with "\n"
	ID    string
	Retry int // -1 when absent
}

// Done reports whether the event is the end-of-stream sentinel.
func (e Event) Done() bool {
	return strings.TrimSpace(e.Data) == DoneSentinel
}

// Decoder reads events from an underlying reader.
type Decoder struct {
	r    *bufio.Reader
	done bool

	eventType string
	data      strings.Builder
	hasData   bool
	id        string
	retry     int
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 4096), retry: -1}
}

// Next returns the next event. It returns io.EOF once the stream is exhausted;
// a trailing event without a terminating blank line is still dispatched.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{}, io.EOF
	}
	for {
		line, err := d.readLine()
		if errors.Is(err, io.EOF) {
			d.done = true
			if d.hasData {
				return d.dispatch(), nil
			}
			return Event{}, io.EOF
		}
		if err != nil {
			return Event{}, err
		}

		switch {
		case line == "":
			if d.hasData {
				return d.dispatch(), nil
			}
			d.eventType = ""
		case line[0] == ':':
			// comment
		default:
			d.field(line)
		}
	}
}

func (d *Decoder) field(line string) {
	name, value, found := strings.Cut(line, ":")
	if found {
		value = strings.TrimPrefix(value, " ")
	}
	switch name {
	case "event":
		d.eventType = value
	case "data":
		if d.hasData {
			d.data.WriteByte('\n')
		}
		d.data.WriteString(value)
		d.hasData = true
	case "id":
		d.id = value
	case "retry":
		if n, err := strconv.Atoi(value); err == nil {
			d.retry = n
		}
	}
}

func (d *Decoder) dispatch() Event {
	evt := Event{
		Type:  d.eventType,
		Data:  d.data.String(),
		ID:    d.id,
		Retry: d.retry,
	}
	if evt.Type == "" {
		evt.Type = "message"
	}
	d.eventType = ""
	d.data.Reset()
	d.hasData = false
	d.id = ""
	d.retry = -1
	return evt
}

// readLine reads up to the next CR, LF, or CRLF and strips the terminator.
// io.EOF is only returned when no bytes were read.
func (d *Decoder) readLine() (string, error) {
	var line strings.Builder
	for {
		b, err := d.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && line.Len() > 0 {
				return line.String(), nil
			}
			return "", err
		}
		switch b {
		case '\n':
			return line.String(), nil
		case '\r':
			if next, err := d.r.ReadByte(); err == nil && next != '\n' {
				_ = d.r.UnreadByte()
			}
			return line.String(), nil
		default:
			line.WriteByte(b)
		}
	}
}
