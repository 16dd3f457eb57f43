package source

// Static is an in-memory source Set, used by tests and by callers that
// already hold extract rows. Zero-length slices behave as empty extracts;
// to mark an optional extract absent, leave the corresponding Set field nil
// when composing.
type Static struct {
	ReleaseRows []Release
	ModuleRows  []ModuleRow
	AuthorRows  []AuthorRow
	RequireRows []RequireRow
	UploadRows  []UploadRow
	TesterRows  []TesterRow
	RatingRows  []RatingRow
	MetaRows    []MetaRow
	TicketRows  []TicketRow
}

// Releases returns the in-memory release rows.
func (s *Static) Releases() ([]Release, error) { return s.ReleaseRows, nil }

// Modules returns the in-memory module rows.
func (s *Static) Modules() ([]ModuleRow, error) { return s.ModuleRows, nil }

// Authors returns the in-memory author rows.
func (s *Static) Authors() ([]AuthorRow, error) { return s.AuthorRows, nil }

// Requires returns the in-memory dependency declaration rows.
func (s *Static) Requires() ([]RequireRow, error) { return s.RequireRows, nil }

// Uploads returns the in-memory upload rows.
func (s *Static) Uploads() ([]UploadRow, error) { return s.UploadRows, nil }

// Testers returns the in-memory tester rows.
func (s *Static) Testers() ([]TesterRow, error) { return s.TesterRows, nil }

// Ratings returns the in-memory rating rows.
func (s *Static) Ratings() ([]RatingRow, error) { return s.RatingRows, nil }

// Metas returns the in-memory meta rows.
func (s *Static) Metas() ([]MetaRow, error) { return s.MetaRows, nil }

// Tickets returns the in-memory ticket rows.
func (s *Static) Tickets() ([]TicketRow, error) { return s.TicketRows, nil }

// FullSet wires every extract of s into a Set, including the optional ones.
func (s *Static) FullSet() *Set {
	return &Set{
		Releases: s,
		Modules:  s,
		Authors:  s,
		Requires: s,
		Uploads:  s,
		Testers:  s,
		Ratings:  s,
		Metas:    s,
		Tickets:  s,
	}
}

// RequiredSet wires only the required extracts of s into a Set, leaving all
// optional sources absent.
func (s *Static) RequiredSet() *Set {
	return &Set{
		Releases: s,
		Modules:  s,
		Authors:  s,
		Requires: s,
	}
}
