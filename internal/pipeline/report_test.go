package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func sampleReport(rows int) *Report {
	r := newReport()
	r.addStage(StageMerge, rows, 5*time.Millisecond)
	r.finish()
	return r
}

func TestSaveReportRotatesHistory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if err := SaveReport(dir, sampleReport(1)); err != nil {
		t.Fatalf("first SaveReport: %v", err)
	}
	history, err := LoadHistory(dir)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history after first save = %d entries, want 0", len(history))
	}

	if err := SaveReport(dir, sampleReport(2)); err != nil {
		t.Fatalf("second SaveReport: %v", err)
	}
	history, err = LoadHistory(dir)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history after second save = %d entries, want 1", len(history))
	}
	if history[0].TotalRows != 1 {
		t.Errorf("rotated entry rows = %d, want 1 (the first run)", history[0].TotalRows)
	}
}

func TestSaveReportCapsHistory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	for i := 0; i < maxHistoryEntries+5; i++ {
		if err := SaveReport(dir, sampleReport(i)); err != nil {
			t.Fatalf("SaveReport %d: %v", i, err)
		}
	}

	history, err := LoadHistory(dir)
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if len(history) != maxHistoryEntries {
		t.Fatalf("history = %d entries, want %d", len(history), maxHistoryEntries)
	}
	// The oldest surviving entry is the one pushed out last; entries are
	// oldest first.
	if got := history[len(history)-1].TotalRows; got != maxHistoryEntries+3 {
		t.Errorf("newest history entry rows = %d, want %d", got, maxHistoryEntries+3)
	}
}

func TestLoadHistoryMissingFile(t *testing.T) {
	t.Parallel()
	history, err := LoadHistory(t.TempDir())
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	if history != nil {
		t.Errorf("history = %v, want nil", history)
	}
}

func TestSaveReportNoTempLeftover(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := SaveReport(dir, sampleReport(1)); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, reportFileName+".tmp")); !os.IsNotExist(err) {
		t.Errorf("temp file left behind (stat err = %v)", err)
	}
}
