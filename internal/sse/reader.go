// Package sse reads and writes the text/event-stream wire format used by the
// assistant endpoint and by the upstream generation API.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// DefaultEvent is the name of an event sent without an "event:" field.
const DefaultEvent = "message"

// maxLine bounds a single line; upstream deltas are far smaller.
const maxLine = 1 << 20

// Event is one dispatched server-sent event.
type Event struct {
	Name string
	Data string
}

// Reader parses line-oriented event/data framing. A blank line dispatches
// the pending event; comment lines (":") are skipped.
type Reader struct {
	sc   *bufio.Scanner
	name string
	data []string
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	return &Reader{sc: sc}
}

// Next returns the next event, or io.EOF once the stream ends. An event left
// pending by an unterminated stream is still returned before io.EOF.
func (r *Reader) Next() (Event, error) {
	for r.sc.Scan() {
		line := strings.TrimSuffix(r.sc.Text(), "\r")
		if line == "" {
			if ev, ok := r.dispatch(); ok {
				return ev, nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		switch field {
		case "event":
			r.name = strings.TrimSpace(value)
		case "data":
			r.data = append(r.data, strings.TrimPrefix(value, " "))
		}
	}
	if err := r.sc.Err(); err != nil {
		return Event{}, err
	}
	if ev, ok := r.dispatch(); ok {
		return ev, nil
	}
	return Event{}, io.EOF
}

func (r *Reader) dispatch() (Event, bool) {
	name := r.name
	if name == "" {
		name = DefaultEvent
	}
	hasData := len(r.data) > 0
	ev := Event{Name: name, Data: strings.Join(r.data, "\n")}
	r.name, r.data = "", nil
	return ev, hasData
}
