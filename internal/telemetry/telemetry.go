// Package telemetry provides a JSONL event stream for recording pipeline
// runs. Every stage transition, data repair, and backfill batch is recorded
// as a structured JSON event, making index builds auditable and analyzable.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Event kinds identify the type of telemetry event.
const (
	KindRunStart   = "run_start"
	KindRunDone    = "run_done"
	KindStageStart = "stage_start"
	KindStageDone  = "stage_done"
	KindRepair     = "repair"
	KindBackfill   = "backfill"
	KindSourceAge  = "source_age"
)

// Event represents a single telemetry record. Each event carries a
// timestamp, a kind tag, and an optional stage identifier along with
// arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	Stage     string    `json:"stage,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// StageResult is the data payload attached to stage_done events.
type StageResult struct {
	Rows       int   `json:"rows"`
	DurationNs int64 `json:"duration_ns"`
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes a single event to the JSONL file, stamping it with the current
// time if unset. It is safe for concurrent use. Calling Emit on a nil
// Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
