package pipeline

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const reportFileName = "pulsar-report.toml"

// maxHistoryEntries is the maximum number of previous run summaries kept in
// the report file.
const maxHistoryEntries = 10

// StageReport records one completed stage of a run.
type StageReport struct {
	Name       string `toml:"name"`
	Rows       int    `toml:"rows"`
	DurationNs int64  `toml:"duration_ns"`
}

// Report summarizes a full pipeline run.
type Report struct {
	StartedAt   time.Time     `toml:"started_at"`
	CompletedAt time.Time     `toml:"completed_at"`
	Duration    time.Duration `toml:"-"`
	DurationNs  int64         `toml:"duration_ns"`
	Stages      []StageReport `toml:"stages"`
}

// TotalRows sums the row counts across all stages.
func (r *Report) TotalRows() int {
	total := 0
	for _, s := range r.Stages {
		total += s.Rows
	}
	return total
}

func newReport() *Report {
	return &Report{StartedAt: time.Now()}
}

func (r *Report) addStage(name string, rows int, d time.Duration) {
	r.Stages = append(r.Stages, StageReport{Name: name, Rows: rows, DurationNs: int64(d)})
}

func (r *Report) finish() {
	r.CompletedAt = time.Now()
	r.Duration = r.CompletedAt.Sub(r.StartedAt)
	r.DurationNs = int64(r.Duration)
}

// HistorySummary captures a condensed record of a previous run.
type HistorySummary struct {
	StartedAt   time.Time `toml:"started_at"`
	CompletedAt time.Time `toml:"completed_at"`
	DurationNs  int64     `toml:"duration_ns"`
	TotalRows   int       `toml:"total_rows"`
}

// reportFile is the TOML-serializable layout of the report on disk.
type reportFile struct {
	Current Report           `toml:"current"`
	History []HistorySummary `toml:"history"`
}

// SaveReport writes the run report into dir. If a previous report exists,
// its current section is rotated into the history array, capped at the
// maxHistoryEntries most recent entries. The write goes through a temp file
// and rename so a crash never leaves a torn report.
func SaveReport(dir string, r *Report) error {
	existing, err := loadReportFile(dir)
	if err != nil {
		return fmt.Errorf("pipeline: loading existing report: %w", err)
	}

	var history []HistorySummary
	if existing != nil {
		history = append(existing.History, HistorySummary{
			StartedAt:   existing.Current.StartedAt,
			CompletedAt: existing.Current.CompletedAt,
			DurationNs:  existing.Current.DurationNs,
			TotalRows:   existing.Current.TotalRows(),
		})
	}
	if len(history) > maxHistoryEntries {
		history = history[len(history)-maxHistoryEntries:]
	}

	data, err := toml.Marshal(reportFile{Current: *r, History: history})
	if err != nil {
		return fmt.Errorf("pipeline: marshaling report: %w", err)
	}

	path := filepath.Join(dir, reportFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("pipeline: writing temp report: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return fmt.Errorf("pipeline: renaming report: %w", err)
	}
	return nil
}

// LoadHistory returns the previous run summaries recorded in dir, oldest
// first. A missing report file returns nil without error.
func LoadHistory(dir string) ([]HistorySummary, error) {
	file, err := loadReportFile(dir)
	if err != nil || file == nil {
		return nil, err
	}
	return file.History, nil
}

func loadReportFile(dir string) (*reportFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, reportFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var file reportFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("pipeline: parsing report: %w", err)
	}
	return &file, nil
}
