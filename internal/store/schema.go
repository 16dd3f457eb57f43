package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
)

//go:embed schema.sql
var schemaSQL string

// allTables lists every table the schema creates, final tables first.
// Reset drops them in this order and initSchema recreates them.
var allTables = []string{
	"author", "distribution", "module", "dependency", "requires", "ticket",
	"stage_release", "stage_module", "stage_author", "stage_upload",
	"stage_tester", "stage_rating", "stage_meta", "stage_requires",
	"stage_ticket",
}

// initSchema executes the embedded schema DDL, creating all required tables
// if they do not already exist. The operation is idempotent.
func (s *Store) initSchema(ctx context.Context) error {
	for _, stmt := range splitStatements(schemaSQL) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: schema exec failed: %w", err)
		}
	}
	return nil
}

// splitStatements splits a SQL script on semicolons, returning only
// non-empty statements. Line comments are stripped first so a semicolon
// inside a comment never produces a bogus fragment.
func splitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	raw := strings.Split(b.String(), ";")
	stmts := make([]string, 0, len(raw))
	for _, s := range raw {
		trimmed := strings.TrimSpace(s)
		if trimmed == "" {
			continue
		}
		stmts = append(stmts, trimmed)
	}
	return stmts
}
