// Package trace implements the pipeline's append-only JSONL audit trail.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// EventType enumerates all trace event types.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventRunComplete  EventType = "run_complete"
	EventStepStart    EventType = "step_start"
	EventStepComplete EventType = "step_complete"
	EventStepSkipped  EventType = "step_skipped"
)

// Event is a single trace event written to the JSONL stream.
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// Failure describes why a step failed.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Writer writes trace events to an append-only JSONL stream. A Writer may
// be shared by concurrent pipeline runs; each event carries its run ID.
type Writer struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
	now    func() time.Time
}

// NewWriter creates a trace writer that writes to the given io.Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		enc: json.NewEncoder(w),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// NewFileWriter creates a trace writer that appends to a JSONL file.
func NewFileWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	tw := NewWriter(f)
	tw.closer = f
	return tw, nil
}

// Close closes the underlying file, if the writer owns one.
func (tw *Writer) Close() error {
	if tw.closer == nil {
		return nil
	}
	return tw.closer.Close()
}

// Emit writes a single trace event.
func (tw *Writer) Emit(runID string, eventType EventType, data map[string]any) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	evt := Event{
		Type:      eventType,
		Timestamp: tw.now(),
		RunID:     runID,
		Data:      data,
	}
	return tw.enc.Encode(evt)
}

// EmitRunStart emits a run_start event.
func (tw *Writer) EmitRunStart(runID string, steps int, continueOnFailure bool) error {
	return tw.Emit(runID, EventRunStart, map[string]any{
		"steps":               steps,
		"continue_on_failure": continueOnFailure,
	})
}

// EmitStepStart emits a step_start event.
func (tw *Writer) EmitStepStart(runID string, index int, command string) error {
	return tw.Emit(runID, EventStepStart, map[string]any{
		"index":   index,
		"command": command,
	})
}

// EmitStepSkipped emits a step_skipped event.
func (tw *Writer) EmitStepSkipped(runID string, index int, command, reason string) error {
	return tw.Emit(runID, EventStepSkipped, map[string]any{
		"index":   index,
		"command": command,
		"status":  "skipped",
		"reason":  reason,
	})
}

// EmitStepComplete emits a step_complete event.
func (tw *Writer) EmitStepComplete(runID string, index int, command, status string, duration time.Duration, failure *Failure) error {
	data := map[string]any{
		"index":    index,
		"command":  command,
		"status":   status,
		"duration": duration.String(),
	}
	if failure != nil {
		data["failure"] = map[string]any{
			"code":    failure.Code,
			"message": failure.Message,
		}
	}
	return tw.Emit(runID, EventStepComplete, data)
}

// EmitRunComplete emits a run_complete event.
func (tw *Writer) EmitRunComplete(runID string, completed int, confidence float64, duration time.Duration) error {
	return tw.Emit(runID, EventRunComplete, map[string]any{
		"completed_steps": completed,
		"confidence":      confidence,
		"duration":        duration.String(),
	})
}

// Decode parses one JSONL trace line.
func Decode(line []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(line, &evt); err != nil {
		return Event{}, fmt.Errorf("decode trace event: %w", err)
	}
	return evt, nil
}

// Read parses every event in a JSONL stream. Blank lines are ignored.
func Read(r io.Reader) ([]Event, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max line

	var events []Event
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		evt, err := Decode(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		events = append(events, evt)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	return events, nil
}
