package backend

import (
	"context"
	"path/filepath"
	"testing"
)

func TestConnectCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer conn.Close()
	if conn.Path() != path {
		t.Errorf("Path() = %q, want %q", conn.Path(), path)
	}
}

func TestExecuteAndFetch(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()

	if _, err := conn.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("Execute create: %v", err)
	}
	if _, err := conn.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'sprocket')`); err != nil {
		t.Fatalf("Execute insert: %v", err)
	}

	row, err := conn.FetchOne(ctx, `SELECT name FROM widgets WHERE id = ?`, 1)
	if err != nil {
		t.Fatalf("FetchOne: %v", err)
	}
	if row == nil || row["name"] != "sprocket" {
		t.Fatalf("expected name sprocket, got %+v", row)
	}

	none, err := conn.FetchOne(ctx, `SELECT name FROM widgets WHERE id = ?`, 99)
	if err != nil {
		t.Fatalf("FetchOne missing: %v", err)
	}
	if none != nil {
		t.Errorf("expected nil row for missing id, got %+v", none)
	}
}

func TestTransactionCommitAndRollback(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	conn.Execute(ctx, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)

	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !conn.InTransaction() {
		t.Fatal("expected InTransaction true after Begin")
	}
	conn.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'a')`)
	if err := conn.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if conn.InTransaction() {
		t.Error("expected InTransaction false after Rollback")
	}

	rows, err := conn.FetchAll(ctx, `SELECT * FROM widgets`)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected rollback to discard insert, got %d rows", len(rows))
	}

	conn.Begin(ctx)
	conn.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'a')`)
	if err := conn.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rows, err = conn.FetchAll(ctx, `SELECT * FROM widgets`)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected committed insert to persist, got %d rows", len(rows))
	}
}

func TestDoubleBeginFails(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	if err := conn.Begin(ctx); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer conn.Rollback()
	if err := conn.Begin(ctx); err == nil {
		t.Error("expected second Begin to fail")
	}
}

func TestQuoteIdentifier(t *testing.T) {
	if got := QuoteIdentifier("users"); got != `"users"` {
		t.Errorf("QuoteIdentifier(users) = %q", got)
	}
	if got := QuoteIdentifier(`wei"rd`); got != `"wei""rd"` {
		t.Errorf("QuoteIdentifier escaping = %q", got)
	}
}

func TestSQLType(t *testing.T) {
	cases := map[string]string{
		"integer":   "INTEGER",
		"real":      "REAL",
		"text":      "TEXT",
		"timestamp": "TEXT",
		"json":      "TEXT",
		"boolean":   "INTEGER",
		"bogus":     "TEXT",
	}
	for in, want := range cases {
		if got := SQLType(in); got != want {
			t.Errorf("SQLType(%q) = %q, want %q", in, got, want)
		}
	}
}

func newConn(t *testing.T) *Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
