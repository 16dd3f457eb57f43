// Package source defines the read-only boundary between the pipeline and
// the external extract-acquisition collaborators. Each raw extract is
// exposed as a small interface returning typed rows; the pipeline never
// sees how the rows were obtained. Fetching, caching and freshness policy
// all live outside this module.
package source

import "time"

// Phase values for dependency declarations.
const (
	PhaseRuntime   = "runtime"
	PhaseBuild     = "build"
	PhaseTest      = "test"
	PhaseConfigure = "configure"
	PhaseDevelop   = "develop"
)

// Release is one row of the primary package index: a distribution release.
type Release struct {
	Author  string `json:"author"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// ModuleRow maps a module to its owning distribution release.
type ModuleRow struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dist    string `json:"dist"`
}

// AuthorRow is one row of the author extract.
type AuthorRow struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RequireRow is a module-level dependency declaration of a release. The
// owning distribution is derived from the release identity during
// normalization.
type RequireRow struct {
	Release string `json:"release"`
	Module  string `json:"module"`
	Version string `json:"version"`
	Phase   string `json:"phase"`
	Core    string `json:"core"`
}

// UploadRow records when a release file was uploaded.
type UploadRow struct {
	Dist     string `json:"dist"`
	Version  string `json:"version"`
	Uploaded string `json:"uploaded"`
}

// TesterRow summarizes community smoke-test results for a release.
type TesterRow struct {
	Dist    string `json:"dist"`
	Version string `json:"version"`
	Pass    int    `json:"pass"`
	Fail    int    `json:"fail"`
	NA      int    `json:"na"`
	Unknown int    `json:"unknown"`
}

// RatingRow is a community rating keyed by bare distribution name.
type RatingRow struct {
	Dist   string  `json:"dist"`
	Rating float64 `json:"rating"`
	Count  int     `json:"count"`
}

// MetaRow records metadata presence and license for a release.
type MetaRow struct {
	Dist    string `json:"dist"`
	Version string `json:"version"`
	Meta    bool   `json:"meta"`
	License string `json:"license"`
}

// TicketRow is one bug-tracker ticket for a distribution.
type TicketRow struct {
	ID       string `json:"id"`
	Dist     string `json:"dist"`
	Subject  string `json:"subject"`
	Status   string `json:"status"`
	Severity string `json:"severity"`
	Created  string `json:"created"`
	Updated  string `json:"updated"`
}

// Releases yields the primary package index rows.
type Releases interface {
	Releases() ([]Release, error)
}

// Modules yields the module→distribution mapping rows.
type Modules interface {
	Modules() ([]ModuleRow, error)
}

// Authors yields author identity rows.
type Authors interface {
	Authors() ([]AuthorRow, error)
}

// Requires yields module-level dependency declarations.
type Requires interface {
	Requires() ([]RequireRow, error)
}

// Uploads yields upload timestamp rows.
type Uploads interface {
	Uploads() ([]UploadRow, error)
}

// Testers yields community test-result summaries.
type Testers interface {
	Testers() ([]TesterRow, error)
}

// Ratings yields community rating rows.
type Ratings interface {
	Ratings() ([]RatingRow, error)
}

// Metas yields metadata presence/license rows.
type Metas interface {
	Metas() ([]MetaRow, error)
}

// Tickets yields bug-tracker ticket rows.
type Tickets interface {
	Tickets() ([]TicketRow, error)
}

// Ager is an optional capability a source may provide: the age of its
// underlying extract. It is resolved at composition time; callers hold an
// Ager explicitly instead of type-asserting at the point of use.
type Ager interface {
	// Age returns how old the extract data is. ok is false when the age
	// is unknown.
	Age() (age time.Duration, ok bool)
}

// NopAger is the default Ager for sources that cannot report freshness.
type NopAger struct{}

// Age always reports an unknown age.
func (NopAger) Age() (time.Duration, bool) { return 0, false }

// Set bundles the extracts consumed by one pipeline run. Releases, Modules,
// Authors and Requires are required; a run cannot produce a meaningful
// index without them. The remaining sources are optional — nil means the
// extract is absent and the corresponding columns stay null.
type Set struct {
	Releases Releases
	Modules  Modules
	Authors  Authors
	Requires Requires

	Uploads Uploads
	Testers Testers
	Ratings Ratings
	Metas   Metas
	Tickets Tickets

	// Age reports the freshness of the extract set as a whole.
	Age Ager
}

// Validate reports whether every required source is present.
func (s *Set) Validate() error {
	switch {
	case s.Releases == nil:
		return ErrMissingSource("releases")
	case s.Modules == nil:
		return ErrMissingSource("modules")
	case s.Authors == nil:
		return ErrMissingSource("authors")
	case s.Requires == nil:
		return ErrMissingSource("requires")
	}
	return nil
}

// Ager returns the set's freshness capability, defaulting to NopAger.
func (s *Set) Ager() Ager {
	if s.Age == nil {
		return NopAger{}
	}
	return s.Age
}

// ErrMissingSource indicates a required extract is absent.
type ErrMissingSource string

// Error implements the error interface.
func (e ErrMissingSource) Error() string {
	return "source: required extract missing: " + string(e)
}
