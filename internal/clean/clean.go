// Package clean repairs malformed version and core-since fields found in
// dependency declarations. Repair is normalization policy, not an error
// path: dirty values are rewritten, never rejected.
package clean

import (
	"context"
	"strings"

	"github.com/papapumpkin/pulsar/internal/store"
)

// Version rewrites a version-like string into a bare token usable for
// comparison and storage. Strings carrying a comparator prefix (">= 1.2",
// "<2", "!= 0.3") or a "v" prefix ("v1.0.3") are reduced to digits, periods
// and underscores only. Already-bare values pass through unchanged, which
// makes the rewrite idempotent.
func Version(s string) string {
	if !needsRepair(s) {
		return s
	}
	return strip(s)
}

// needsRepair reports whether s matches a comparator-prefixed or v-prefixed
// version pattern.
func needsRepair(s string) bool {
	t := strings.TrimSpace(s)
	if t == "" {
		return s != ""
	}
	switch t[0] {
	case '<', '>', '=', '!':
		return true
	case 'v', 'V':
		return len(t) > 1 && t[1] >= '0' && t[1] <= '9'
	}
	return t != s
}

// strip removes every byte that is not a digit, period or underscore.
func strip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= '0' && c <= '9' || c == '.' || c == '_' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Compare orders two cleaned version or core tokens component-wise: the
// tokens are split on periods and each segment compares as an integer, so
// "5.10" sorts above "5.6" and "5.010" above "5.008". Underscored
// developer-release markers compare by their visible digits; a missing or
// unparsable segment compares as 0. The result is -1, 0 or 1.
func Compare(a, b string) int {
	as := strings.Split(strings.ReplaceAll(a, "_", ""), ".")
	bs := strings.Split(strings.ReplaceAll(b, "_", ""), ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := segment(as, i), segment(bs, i)
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// segment returns the integer value of the i-th version segment, or 0 when
// the segment is absent or contains anything but digits.
func segment(parts []string, i int) int64 {
	if i >= len(parts) {
		return 0
	}
	var v int64
	for j := 0; j < len(parts[i]); j++ {
		c := parts[i][j]
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	return v
}

// StagedRequires rewrites the version and core columns of the staged
// dependency declarations in place. Comparator- and v-prefixed values are
// repaired, then the null-defaulting pass replaces any remaining NULL or
// empty version with the literal '0'. Core is defaulted in lockstep so the
// rows stay queryable.
func StagedRequires(ctx context.Context, s *store.Store) (repaired int, err error) {
	rows, err := s.Query(ctx, `SELECT rowid, version, core FROM stage_requires`)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	type fix struct {
		rowid   int64
		version string
		core    string
	}
	var fixes []fix
	for rows.Next() {
		var (
			rowid         int64
			version, core *string
		)
		if err := rows.Scan(&rowid, &version, &core); err != nil {
			return 0, err
		}
		v := value(version)
		c := value(core)
		cleanV, cleanC := Version(v), Version(c)
		if cleanV != v || cleanC != c {
			fixes = append(fixes, fix{rowid: rowid, version: cleanV, core: cleanC})
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, f := range fixes {
		if _, err := s.Exec(ctx,
			`UPDATE stage_requires SET version = ?, core = ? WHERE rowid = ?`,
			f.version, f.core, f.rowid); err != nil {
			return repaired, err
		}
		repaired++
	}

	// Null-defaulting pass: no version or core field is ever left NULL or
	// empty once cleaning is done.
	if _, err := s.Exec(ctx,
		`UPDATE stage_requires SET version = '0' WHERE version IS NULL OR version = ''`); err != nil {
		return repaired, err
	}
	if _, err := s.Exec(ctx,
		`UPDATE stage_requires SET core = '0' WHERE core IS NULL OR core = ''`); err != nil {
		return repaired, err
	}
	return repaired, nil
}

func value(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
