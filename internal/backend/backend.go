// Package backend implements the Backend Adapter (spec §4.1): a thin
// wrapper over database/sql that hides the embedded SQL engine behind
// connect/execute/fetch/commit/rollback/close, the way the teacher's
// storage/sqlite package wraps database/sql rather than exposing it
// directly to callers. The only engine wired here is the pure-Go,
// WASM-hosted SQLite driver (github.com/ncruces/go-sqlite3), so SynthDB
// never needs cgo.
package backend

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/russellromney/synthdb/internal/dberr"
)

// Row is a single result row keyed by result-column name, the shape
// fetchone/fetchall return per spec §4.1.
type Row map[string]any

// Connection wraps one engine connection plus an optional open
// transaction. All mutation goes through it; the core never holds a
// raw *sql.DB outside this package.
type Connection struct {
	db   *sql.DB
	tx   *sql.Tx
	path string
}

// BusyTimeout is the default SQLite busy_timeout pragma applied to every
// new connection, matching the teacher's repair-mode connection string
// (cmd/bd/repair.go's openRepairDB), scaled up slightly because schema
// changes here can take longer than a single issue update.
const BusyTimeout = 30 * time.Second

// Connect opens (creating if absent) the SQLite database file at path
// and applies the tuning pragmas spec §4.1 calls advisory: WAL journal
// mode, NORMAL synchronous, a ~64MB page cache, and a generous busy
// timeout so concurrent writers serialize instead of failing outright.
func Connect(path string) (*Connection, error) {
	busyMs := int64(BusyTimeout / time.Millisecond)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)", path, busyMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrIO, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-64000",
		"PRAGMA page_size=8192",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, dberr.Wrap(dberr.ErrIO, err)
		}
	}
	return &Connection{db: db, path: path}, nil
}

// Path returns the filesystem location this connection was opened
// against.
func (c *Connection) Path() string { return c.path }

// Begin starts a transaction; subsequent Execute/FetchOne/FetchAll calls
// on this connection run inside it until Commit or Rollback.
func (c *Connection) Begin(ctx context.Context) error {
	if c.tx != nil {
		return dberr.New(dberr.ErrInvariantViolation, "transaction already open on connection")
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	c.tx = tx
	return nil
}

// Commit commits the open transaction.
func (c *Connection) Commit() error {
	if c.tx == nil {
		return dberr.New(dberr.ErrInvariantViolation, "commit with no open transaction")
	}
	err := c.tx.Commit()
	c.tx = nil
	if err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	return nil
}

// Rollback discards the open transaction, if any. Calling it with no
// open transaction is a no-op, so deferred rollbacks are safe after a
// successful Commit.
func (c *Connection) Rollback() error {
	if c.tx == nil {
		return nil
	}
	err := c.tx.Rollback()
	c.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	return nil
}

// InTransaction reports whether a transaction is currently open.
func (c *Connection) InTransaction() bool { return c.tx != nil }

// Close releases the underlying engine connection. Any open transaction
// is rolled back first.
func (c *Connection) Close() error {
	_ = c.Rollback()
	if err := c.db.Close(); err != nil {
		return dberr.Wrap(dberr.ErrIO, err)
	}
	return nil
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (c *Connection) querier() querier {
	if c.tx != nil {
		return c.tx
	}
	return c.db
}

// Execute runs sql with positional parameters and returns the number of
// rows affected. Parameters are always bound, never interpolated into
// the statement text (spec §4.1: "must not string-interpolate caller
// data into SQL").
func (c *Connection) Execute(ctx context.Context, query string, params ...any) (int64, error) {
	res, err := c.querier().ExecContext(ctx, query, params...)
	if err != nil {
		return 0, dberr.Wrap(dberr.ErrIO, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, dberr.Wrap(dberr.ErrIO, err)
	}
	return n, nil
}

// FetchOne runs a SELECT and returns the first row, or nil if the result
// set is empty.
func (c *Connection) FetchOne(ctx context.Context, query string, params ...any) (Row, error) {
	rows, err := c.querier().QueryContext(ctx, query, params...)
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrIO, err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, dberr.Wrap(dberr.ErrIO, err)
		}
		return nil, nil
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, err
	}
	return row, nil
}

// FetchAll runs a SELECT and returns every row as a mapping keyed by
// column name, the shape the view materializer's query() callers get
// back.
func (c *Connection) FetchAll(ctx context.Context, query string, params ...any) ([]Row, error) {
	rows, err := c.querier().QueryContext(ctx, query, params...)
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrIO, err)
	}
	defer rows.Close()
	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, dberr.Wrap(dberr.ErrIO, err)
	}
	return out, nil
}

func scanRow(rows *sql.Rows) (Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, dberr.Wrap(dberr.ErrIO, err)
	}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, dberr.Wrap(dberr.ErrIO, err)
	}
	row := make(Row, len(cols))
	for i, name := range cols {
		row[name] = normalizeValue(vals[i])
	}
	return row, nil
}

// normalizeValue turns driver-returned []byte (SQLite returns TEXT
// columns as []byte through database/sql) into string, matching what
// callers expect a "text" column to hand back.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// SupportsReturning reports whether the wired engine honors `RETURNING`
// clauses (modern SQLite does; this is a capability flag per spec §4.1
// rather than a hard assumption baked into callers).
func (c *Connection) SupportsReturning() bool { return true }

// SQLType maps a logical column type name to the DDL type the schema
// installer should declare for it. SQLite's type affinity system makes
// this mostly a matter of readability; the driver accepts any declared
// type and stores by affinity rules.
func SQLType(logicalType string) string {
	switch logicalType {
	case "integer":
		return "INTEGER"
	case "real":
		return "REAL"
	case "timestamp", "text", "json":
		return "TEXT"
	case "boolean":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// AutoincrementDecl returns the DDL fragment for a surrogate
// autoincrementing id column, used only by the optional row_id_sequence
// table (spec §3.4); the default row ID policy never touches it.
func AutoincrementDecl() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// QuoteIdentifier double-quotes a SQL identifier for contexts where it's
// spliced into DDL (table/view/column names come from the metadata
// store's own validated names, never raw caller text).
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
