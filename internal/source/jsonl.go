package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Conventional extract file names inside an extract directory.
const (
	FileReleases = "releases.jsonl"
	FileModules  = "modules.jsonl"
	FileAuthors  = "authors.jsonl"
	FileRequires = "requires.jsonl"
	FileUploads  = "uploads.jsonl"
	FileTesters  = "testers.jsonl"
	FileRatings  = "ratings.jsonl"
	FileMetas    = "meta.jsonl"
	FileTickets  = "tickets.jsonl"
)

// Dir exposes a directory of JSONL extract files as a source Set. Required
// files must exist; optional files that are absent leave their source nil.
type Dir struct {
	dir string
}

// OpenDir wires the conventional extract files under dir into a Set.
// Missing optional files degrade to nil sources; missing required files are
// reported when the Set is validated, not here, so the orchestrator owns
// the abort decision.
func OpenDir(dir string) (*Set, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("source: extract dir: %w", err)
	}
	d := &Dir{dir: dir}

	set := &Set{Age: dirAger{dir: dir}}
	if d.has(FileReleases) {
		set.Releases = d
	}
	if d.has(FileModules) {
		set.Modules = d
	}
	if d.has(FileAuthors) {
		set.Authors = d
	}
	if d.has(FileRequires) {
		set.Requires = d
	}
	if d.has(FileUploads) {
		set.Uploads = d
	}
	if d.has(FileTesters) {
		set.Testers = d
	}
	if d.has(FileRatings) {
		set.Ratings = d
	}
	if d.has(FileMetas) {
		set.Metas = d
	}
	if d.has(FileTickets) {
		set.Tickets = d
	}
	return set, nil
}

func (d *Dir) has(name string) bool {
	_, err := os.Stat(filepath.Join(d.dir, name))
	return err == nil
}

// Releases reads the primary package index extract.
func (d *Dir) Releases() ([]Release, error) { return readJSONL[Release](d.dir, FileReleases) }

// Modules reads the module→distribution extract.
func (d *Dir) Modules() ([]ModuleRow, error) { return readJSONL[ModuleRow](d.dir, FileModules) }

// Authors reads the author extract.
func (d *Dir) Authors() ([]AuthorRow, error) { return readJSONL[AuthorRow](d.dir, FileAuthors) }

// Requires reads the dependency declaration extract.
func (d *Dir) Requires() ([]RequireRow, error) { return readJSONL[RequireRow](d.dir, FileRequires) }

// Uploads reads the upload timestamp extract.
func (d *Dir) Uploads() ([]UploadRow, error) { return readJSONL[UploadRow](d.dir, FileUploads) }

// Testers reads the test-result summary extract.
func (d *Dir) Testers() ([]TesterRow, error) { return readJSONL[TesterRow](d.dir, FileTesters) }

// Ratings reads the community rating extract.
func (d *Dir) Ratings() ([]RatingRow, error) { return readJSONL[RatingRow](d.dir, FileRatings) }

// Metas reads the metadata presence extract.
func (d *Dir) Metas() ([]MetaRow, error) { return readJSONL[MetaRow](d.dir, FileMetas) }

// Tickets reads the bug-tracker extract.
func (d *Dir) Tickets() ([]TicketRow, error) { return readJSONL[TicketRow](d.dir, FileTickets) }

// readJSONL decodes one JSON object per line from the named file. Blank
// lines are skipped; a malformed line fails the read with its line number.
func readJSONL[T any](dir, name string) ([]T, error) {
	path := filepath.Join(dir, name)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open %s: %w", name, err)
	}
	defer f.Close()

	var out []T
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(b, &row); err != nil {
			return nil, fmt.Errorf("source: %s line %d: %w", name, line, err)
		}
		out = append(out, row)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("source: read %s: %w", name, err)
	}
	return out, nil
}

// dirAger reports extract freshness as the age of the newest file in the
// extract directory.
type dirAger struct {
	dir string
}

func (a dirAger) Age() (time.Duration, bool) {
	var newest time.Time
	err := filepath.WalkDir(a.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil || newest.IsZero() {
		return 0, false
	}
	return time.Since(newest), true
}

// IsNotExist reports whether err stems from a missing extract file.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
