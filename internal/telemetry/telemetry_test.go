package telemetry

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewEmitter_CreatesFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	em, err := NewEmitter(path)
	if err != nil {
		t.Fatalf("NewEmitter(%q): %v", path, err)
	}
	defer em.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file to exist at %q: %v", path, err)
	}
}

func TestNewEmitter_ErrorOnBadPath(t *testing.T) {
	t.Parallel()
	_, err := NewEmitter("/nonexistent/dir/events.jsonl")
	if err == nil {
		t.Fatal("expected error for bad path, got nil")
	}
	if !strings.Contains(err.Error(), "telemetry: open") {
		t.Errorf("expected wrapped error, got: %v", err)
	}
}

func TestEmit_WritesValidJSONL(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	em, err := NewEmitter(path)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}

	events := []Event{
		{Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Kind: KindRunStart},
		{Timestamp: time.Date(2025, 1, 1, 0, 1, 0, 0, time.UTC), Kind: KindStageDone, Stage: "normalize", Data: StageResult{Rows: 42, DurationNs: 1000}},
		{Timestamp: time.Date(2025, 1, 1, 0, 2, 0, 0, time.UTC), Kind: KindRunDone},
	}

	for _, evt := range events {
		if err := em.Emit(evt); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	if err := em.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open events file: %v", err)
	}
	defer f.Close()

	var got []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var evt Event
		if err := json.Unmarshal(sc.Bytes(), &evt); err != nil {
			t.Fatalf("invalid JSONL line %q: %v", sc.Text(), err)
		}
		got = append(got, evt)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != len(events) {
		t.Fatalf("event count = %d, want %d", len(got), len(events))
	}
	for i, evt := range got {
		if evt.Kind != events[i].Kind {
			t.Errorf("event %d kind = %q, want %q", i, evt.Kind, events[i].Kind)
		}
		if !evt.Timestamp.Equal(events[i].Timestamp) {
			t.Errorf("event %d ts = %v, want %v", i, evt.Timestamp, events[i].Timestamp)
		}
	}
	if got[1].Stage != "normalize" {
		t.Errorf("stage = %q, want %q", got[1].Stage, "normalize")
	}
}

func TestEmit_StampsZeroTimestamp(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "events.jsonl")

	em, err := NewEmitter(path)
	if err != nil {
		t.Fatalf("NewEmitter: %v", err)
	}
	before := time.Now()
	if err := em.Emit(Event{Kind: KindRepair}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := em.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	var evt Event
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Timestamp.Before(before.Truncate(time.Second)) {
		t.Errorf("timestamp %v not stamped", evt.Timestamp)
	}
}

func TestNilEmitterIsNoop(t *testing.T) {
	t.Parallel()
	var em *Emitter
	if err := em.Emit(Event{Kind: KindRunStart}); err != nil {
		t.Errorf("nil Emit: %v", err)
	}
	if err := em.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
}
