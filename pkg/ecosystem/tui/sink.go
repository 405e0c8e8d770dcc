package tui

import (
	"bytes"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/stepwise/pkg/kernel/trace"
)

// EventSink is an io.Writer for a trace.Writer that forwards each complete
// JSONL line to the program as a message. Undecodable lines are dropped.
type EventSink struct {
	mu   sync.Mutex
	buf  bytes.Buffer
	send func(tea.Msg)
}

// NewEventSink returns a sink delivering events through send, typically
// (*tea.Program).Send.
func NewEventSink(send func(tea.Msg)) *EventSink {
	return &EventSink{send: send}
}

// Write implements io.Writer.
func (s *EventSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.buf.Write(p)
	var events []trace.Event
	for {
		line, err := s.buf.ReadBytes('\n')
		if err != nil {
			// Incomplete line; keep it for the next write.
			s.buf.Write(line)
			break
		}
		if evt, err := trace.Decode(bytes.TrimSpace(line)); err == nil {
			events = append(events, evt)
		}
	}
	s.mu.Unlock()

	for _, evt := range events {
		s.send(traceEventMsg{Event: evt})
	}
	return len(p), nil
}
