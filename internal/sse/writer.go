package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("sse: stream closed")

// Flusher pushes buffered bytes to the client. *bufio.Writer satisfies it.
type Flusher interface {
	Flush() error
}

type writerState int

const (
	stateIdle    writerState = iota // nothing buffered
	statePending                    // event name chosen, data not yet written
	stateClosed
)

// Writer emits events as
//
//	event: <name>
//	data: <json>
//
// moving idle → pending (Event) → idle (Data, flushed), and closed for good
// after Close.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	f       Flusher
	state   writerState
	pending string
}

// NewWriter writes to w and flushes through f after every event. f may be nil.
func NewWriter(w io.Writer, f Flusher) *Writer {
	return &Writer{w: w, f: f}
}

// Send writes one complete event with v encoded as JSON.
func (sw *Writer) Send(name string, v any) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if err := sw.event(name); err != nil {
		return err
	}
	return sw.data(v)
}

// Event selects the name of the next event.
func (sw *Writer) Event(name string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.event(name)
}

// Data writes the payload of the pending event (or a default "message"
// event) and flushes it.
func (sw *Writer) Data(v any) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.data(v)
}

// Close marks the stream finished. It does not close the underlying writer.
func (sw *Writer) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.state == stateClosed {
		return nil
	}
	sw.state = stateClosed
	if sw.f != nil {
		return sw.f.Flush()
	}
	return nil
}

func (sw *Writer) event(name string) error {
	switch sw.state {
	case stateClosed:
		return ErrClosed
	case statePending:
		return fmt.Errorf("sse: event %q still pending", sw.pending)
	}
	if strings.ContainsAny(name, "\r\n") {
		return fmt.Errorf("sse: invalid event name %q", name)
	}
	sw.pending = name
	sw.state = statePending
	return nil
}

func (sw *Writer) data(v any) error {
	if sw.state == stateClosed {
		return ErrClosed
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sse: marshal %q: %w", sw.pending, err)
	}

	var b strings.Builder
	if sw.state == statePending && sw.pending != "" {
		b.WriteString("event: ")
		b.WriteString(sw.pending)
		b.WriteByte('\n')
	}
	for _, line := range strings.Split(string(payload), "\n") {
		b.WriteString("data: ")
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	sw.state, sw.pending = stateIdle, ""

	if _, err := io.WriteString(sw.w, b.String()); err != nil {
		return fmt.Errorf("sse: write: %w", err)
	}
	if sw.f != nil {
		if err := sw.f.Flush(); err != nil {
			return fmt.Errorf("sse: flush: %w", err)
		}
	}
	return nil
}
