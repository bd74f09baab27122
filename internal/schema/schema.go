// Package schema is the Schema Installer (spec §4.2): it idempotently
// creates the fixed internal schema and its required indexes, the way
// the teacher's storage/sqlite package carries a single `schema` DDL
// string applied with `CREATE TABLE IF NOT EXISTS` on every open rather
// than a numbered migration chain — SynthDB's catalog never evolves
// its own shape, so there is nothing to migrate between versions of it.
package schema

import (
	"context"

	"github.com/russellromney/synthdb/internal/backend"
	"github.com/russellromney/synthdb/internal/typeconv"
)

const catalogDDL = `
CREATE TABLE IF NOT EXISTS table_definitions (
	id INTEGER PRIMARY KEY,
	version INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	deleted_at TEXT,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS column_definitions (
	id INTEGER PRIMARY KEY,
	table_id INTEGER NOT NULL,
	version INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	deleted_at TEXT,
	name TEXT NOT NULL,
	data_type TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS row_id_sequence (
	seq INTEGER PRIMARY KEY AUTOINCREMENT
);
`

const catalogIndexDDL = `
CREATE INDEX IF NOT EXISTS idx_table_definitions_name
	ON table_definitions(name) WHERE deleted_at IS NULL;

CREATE INDEX IF NOT EXISTS idx_column_definitions_table_name
	ON column_definitions(table_id, name) WHERE deleted_at IS NULL;
`

// valueTableDDL returns the CREATE TABLE statement for the physical
// value table backing data type t, per spec §3.3.
func valueTableDDL(t typeconv.DataType) string {
	table := t.ValueTable()
	valueCol := "value " + backend.SQLType(string(t))
	return `
CREATE TABLE IF NOT EXISTS ` + table + ` (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	row_id TEXT NOT NULL,
	table_id INTEGER NOT NULL,
	column_id INTEGER NOT NULL,
	version INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	deleted_at TEXT,
	is_current INTEGER NOT NULL DEFAULT 1,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	` + valueCol + `
);
`
}

// valueTableIndexDDL returns the required-index statements for data type
// t's value table (spec §4.2): the partial current-cell composite index
// and the per-version uniqueness index. Like catalogIndexDDL, failures
// creating these are warnings, never fatal — an index may already exist
// with a different (harmless) definition from an older run.
func valueTableIndexDDL(t typeconv.DataType) string {
	table := t.ValueTable()
	return `
CREATE INDEX IF NOT EXISTS idx_` + table + `_cell_current
	ON ` + table + `(table_id, column_id, row_id)
	WHERE deleted_at IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS idx_` + table + `_cell_version
	ON ` + table + `(row_id, table_id, column_id, version);
`
}

// jsonGINDDL is the optional GIN index spec §4.2 calls for on
// JSON-capable backends. SQLite has no GIN index type; it's a no-op
// here and exists only so PostgreSQL-family backend adapters have a
// natural extension point sharing this package's Install entrypoint.
func jsonGINDDL() string { return "" }

// Result reports what Install did, letting the caller decide whether
// and how to log it — the core itself never logs (spec §7).
type Result struct {
	StatementsRun int
	IndexWarnings []string
}

// Install creates every catalog table, all six value-type tables, and
// their indexes if they do not already exist. It is safe to call on
// every open: every statement is IF NOT EXISTS, and a failure creating
// an index is recorded as a warning rather than aborting the install,
// since the index may already exist with a (harmless) different
// definition from an older run.
func Install(ctx context.Context, conn *backend.Connection) (Result, error) {
	var result Result

	for _, stmt := range splitStatements(catalogDDL) {
		if _, err := conn.Execute(ctx, stmt); err != nil {
			return result, err
		}
		result.StatementsRun++
	}

	for _, t := range typeconv.All {
		for _, stmt := range splitStatements(valueTableDDL(t)) {
			if _, err := conn.Execute(ctx, stmt); err != nil {
				return result, err
			}
			result.StatementsRun++
		}
	}

	for _, stmt := range splitStatements(catalogIndexDDL) {
		if _, err := conn.Execute(ctx, stmt); err != nil {
			result.IndexWarnings = append(result.IndexWarnings, err.Error())
			continue
		}
		result.StatementsRun++
	}

	for _, t := range typeconv.All {
		for _, stmt := range splitStatements(valueTableIndexDDL(t)) {
			if _, err := conn.Execute(ctx, stmt); err != nil {
				result.IndexWarnings = append(result.IndexWarnings, err.Error())
				continue
			}
			result.StatementsRun++
		}
	}

	if gin := jsonGINDDL(); gin != "" {
		if _, err := conn.Execute(ctx, gin); err != nil {
			result.IndexWarnings = append(result.IndexWarnings, err.Error())
		}
	}

	return result, nil
}

// splitStatements breaks a multi-statement DDL block into its
// `;`-terminated statements, splitting after every `;`. The SQLite driver used here
// executes one statement per call, unlike engines that accept a whole
// script in one Exec.
func splitStatements(block string) []string {
	var stmts []string
	var cur []byte
	for i := 0; i < len(block); i++ {
		cur = append(cur, block[i])
		if block[i] == ';' {
			s := trimSpace(string(cur))
			if s != "" {
				stmts = append(stmts, s)
			}
			cur = cur[:0]
		}
	}
	if s := trimSpace(string(cur)); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
