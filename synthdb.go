// Package synthdb is the top-level re-export of the schema-flexible,
// versioned, type-partitioned EAV store: a thin facade over the
// internal/ package tree (backend, schema, metadata, cellstore, view,
// txn, inference) that composes them into the operations named in
// spec §6.1. The branch and merge packages are not exposed through
// this facade. It mirrors the teacher's top-level
// `beads.go`, which re-exports its storage layer's CRUD as a single
// caller-facing surface rather than making callers reach into
// internal/ themselves.
package synthdb

import (
	"context"
	"sort"

	"github.com/russellromney/synthdb/internal/backend"
	"github.com/russellromney/synthdb/internal/cellstore"
	"github.com/russellromney/synthdb/internal/dberr"
	"github.com/russellromney/synthdb/internal/idgen"
	"github.com/russellromney/synthdb/internal/inference"
	"github.com/russellromney/synthdb/internal/metadata"
	"github.com/russellromney/synthdb/internal/schema"
	"github.com/russellromney/synthdb/internal/txn"
	"github.com/russellromney/synthdb/internal/typeconv"
	"github.com/russellromney/synthdb/internal/view"
)

// Re-exported error sentinels, so callers branch on synthdb.ErrXxx
// without importing internal/dberr directly.
var (
	ErrNameTaken          = dberr.ErrNameTaken
	ErrReservedName       = dberr.ErrReservedName
	ErrTableNotFound      = dberr.ErrTableNotFound
	ErrColumnNotFound     = dberr.ErrColumnNotFound
	ErrUnknownType        = dberr.ErrUnknownType
	ErrTypeCoercion       = dberr.ErrTypeCoercion
	ErrConflict           = dberr.ErrConflict
	ErrIO                 = dberr.ErrIO
	ErrInvariantViolation = dberr.ErrInvariantViolation
)

// DataType re-exports the six-type surface (spec §9 Open Question,
// resolved in DESIGN.md).
type DataType = typeconv.DataType

const (
	Text      = typeconv.Text
	Integer   = typeconv.Integer
	Real      = typeconv.Real
	Boolean   = typeconv.Boolean
	JSON      = typeconv.JSON
	Timestamp = typeconv.Timestamp
)

// Row is a single result row keyed by column name.
type Row = backend.Row

// TableInfo and ColumnInfo are the metadata shapes list_tables/
// list_columns hand back to callers.
type TableInfo = metadata.TableDef
type ColumnInfo = metadata.ColumnDef

// Connection is a single open SynthDB database: one backend connection
// plus the metadata store bound to it. All operations in this package
// are methods on *Connection.
type Connection struct {
	backend *backend.Connection
	meta    *metadata.Store
}

// Open connects to the SQLite-family database file at location. It does
// not create the schema; call InitDB for that.
func Open(location string) (*Connection, error) {
	conn, err := backend.Connect(location)
	if err != nil {
		return nil, err
	}
	return &Connection{backend: conn, meta: metadata.New(conn)}, nil
}

// Close releases the underlying connection.
func (c *Connection) Close() error {
	return c.backend.Close()
}

// InitDB idempotently creates the fixed internal schema and its indexes
// (spec §4.2). Safe to call on every open.
func (c *Connection) InitDB(ctx context.Context) error {
	_, err := schema.Install(ctx, c.backend)
	return err
}

func (c *Connection) requireTable(ctx context.Context, name string) (*metadata.TableDef, error) {
	t, err := c.meta.GetTable(ctx, name)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, dberr.New(dberr.ErrTableNotFound, "table %q not found", name)
	}
	return t, nil
}

// CreateTable allocates a new logical table and materializes its
// (initially degenerate) view.
func (c *Connection) CreateTable(ctx context.Context, name string) (int64, error) {
	var id int64
	err := txn.Run(ctx, c.backend, func(ctx context.Context) error {
		var err error
		id, err = c.meta.CreateTable(ctx, name)
		if err != nil {
			return err
		}
		return view.Materialize(ctx, c.backend, c.meta, id, name)
	})
	return id, err
}

// DeleteTable soft- or hard-deletes table name.
func (c *Connection) DeleteTable(ctx context.Context, name string, hard bool) error {
	return txn.Run(ctx, c.backend, func(ctx context.Context) error {
		if err := c.meta.DeleteTable(ctx, name, hard); err != nil {
			return err
		}
		return view.Degenerate(ctx, c.backend, name)
	})
}

// AddColumn declares a new column of the given type on table and
// retriggers its view.
func (c *Connection) AddColumn(ctx context.Context, table, name string, dataType DataType) (int64, error) {
	var id int64
	err := txn.Run(ctx, c.backend, func(ctx context.Context) error {
		t, err := c.requireTable(ctx, table)
		if err != nil {
			return err
		}
		id, err = c.meta.AddColumn(ctx, t.ID, name, dataType)
		if err != nil {
			return err
		}
		return view.Materialize(ctx, c.backend, c.meta, t.ID, table)
	})
	return id, err
}

// AddColumns declares several columns at once. Each value in spec is
// either a type-name string naming the column's declared type directly,
// or an arbitrary sample value the type is inferred from (spec §9).
func (c *Connection) AddColumns(ctx context.Context, table string, spec map[string]any) (map[string]int64, error) {
	ids := make(map[string]int64, len(spec))
	err := txn.Run(ctx, c.backend, func(ctx context.Context) error {
		t, err := c.requireTable(ctx, table)
		if err != nil {
			return err
		}
		names := make([]string, 0, len(spec))
		for name := range spec {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			dt := inference.ResolveTypeOrSample(spec[name])
			id, err := c.meta.AddColumn(ctx, t.ID, name, dt)
			if err != nil {
				return err
			}
			ids[name] = id
		}
		return view.Materialize(ctx, c.backend, c.meta, t.ID, table)
	})
	return ids, err
}

// RenameColumn renames old to new on table, retriggering its view.
func (c *Connection) RenameColumn(ctx context.Context, table, old, new string) error {
	return txn.Run(ctx, c.backend, func(ctx context.Context) error {
		t, err := c.requireTable(ctx, table)
		if err != nil {
			return err
		}
		if err := c.meta.RenameColumn(ctx, t.ID, old, new); err != nil {
			return err
		}
		return view.Materialize(ctx, c.backend, c.meta, t.ID, table)
	})
}

// DeleteColumn soft- or hard-deletes column name on table.
func (c *Connection) DeleteColumn(ctx context.Context, table, name string, hard bool) error {
	return txn.Run(ctx, c.backend, func(ctx context.Context) error {
		t, err := c.requireTable(ctx, table)
		if err != nil {
			return err
		}
		if err := c.meta.DeleteColumn(ctx, t.ID, name, hard); err != nil {
			return err
		}
		return view.Materialize(ctx, c.backend, c.meta, t.ID, table)
	})
}

// CopyTable creates dst with src's live columns, optionally copying
// every live cell's full version history under fresh row ids.
func (c *Connection) CopyTable(ctx context.Context, src, dst string, copyData bool) (int64, error) {
	var id int64
	err := txn.Run(ctx, c.backend, func(ctx context.Context) error {
		var err error
		id, err = c.meta.CopyTable(ctx, src, dst, copyData)
		if err != nil {
			return err
		}
		return view.Materialize(ctx, c.backend, c.meta, id, dst)
	})
	return id, err
}

// WriteOptions customizes Insert/Upsert behavior.
type WriteOptions struct {
	// RowID supplies an explicit row id. If it already exists for this
	// table, the write acts as an update of that row's cells (spec
	// §3.2). Left empty, a fresh id is generated.
	RowID string
	// ForceType overrides per-value type coercion. Per spec §4.4.6 this
	// is numeric-to-text only: ForceType Text lets a numeric value be
	// written into a text column; any other forced conversion still
	// fails the reject rule.
	ForceType DataType
}

func (c *Connection) cellsFor(ctx context.Context, tableID int64) ([]cellstore.RowCell, error) {
	cols, err := c.meta.ListColumns(ctx, tableID, false)
	if err != nil {
		return nil, err
	}
	cells := make([]cellstore.RowCell, len(cols))
	for i, col := range cols {
		cells[i] = cellstore.RowCell{ColumnID: col.ID, DataType: col.DataType}
	}
	return cells, nil
}

// Insert writes values into a (possibly fresh) row of table, returning
// its row id. Each key in values must name a live column.
func (c *Connection) Insert(ctx context.Context, table string, values map[string]any, opts *WriteOptions) (string, error) {
	rowID := ""
	if opts != nil {
		rowID = opts.RowID
	}
	if rowID == "" {
		rowID = idgen.NewRowID()
	}
	if err := c.writeCells(ctx, table, rowID, values, opts); err != nil {
		return "", err
	}
	return rowID, nil
}

// Upsert writes values into the existing (or newly addressed) row
// identified by rowID, returning it unchanged. Unlike Insert, rowID is
// required.
func (c *Connection) Upsert(ctx context.Context, table string, values map[string]any, rowID string) (string, error) {
	if rowID == "" {
		return "", dberr.New(dberr.ErrInvariantViolation, "upsert requires a row id")
	}
	if err := c.writeCells(ctx, table, rowID, values, nil); err != nil {
		return "", err
	}
	return rowID, nil
}

func (c *Connection) writeCells(ctx context.Context, table, rowID string, values map[string]any, opts *WriteOptions) error {
	return txn.Run(ctx, c.backend, func(ctx context.Context) error {
		t, err := c.requireTable(ctx, table)
		if err != nil {
			return err
		}
		cells := cellstore.New(c.backend)
		for name, value := range values {
			col, err := c.meta.GetColumn(ctx, t.ID, name)
			if err != nil {
				return err
			}
			if col == nil {
				return dberr.New(dberr.ErrColumnNotFound, "column %q not found on table %q", name, table)
			}
			dt := col.DataType
			forced := false
			if opts != nil && opts.ForceType != "" {
				// Spec §4.4.6: force_type is numeric-to-text only; any
				// other forced conversion still fails the reject rule.
				switch value.(type) {
				case int, int64, float64:
				default:
					return dberr.New(dberr.ErrTypeCoercion,
						"force_type only supports numeric-to-text, not %T to %s", value, opts.ForceType)
				}
				if opts.ForceType != typeconv.Text || dt != typeconv.Text {
					return dberr.New(dberr.ErrTypeCoercion,
						"force_type only supports numeric-to-text, not into a %s column as %s", dt, opts.ForceType)
				}
				forced = true
			}
			if _, err := cells.Upsert(ctx, cellstore.Cell{
				RowID: rowID, TableID: t.ID, ColumnID: col.ID, DataType: dt,
			}, value, forced); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRow soft-deletes every cell of rowID in table, returning whether
// any cell was affected.
func (c *Connection) DeleteRow(ctx context.Context, table, rowID string) (bool, error) {
	var affected bool
	err := txn.Run(ctx, c.backend, func(ctx context.Context) error {
		t, err := c.requireTable(ctx, table)
		if err != nil {
			return err
		}
		cols, err := c.cellsFor(ctx, t.ID)
		if err != nil {
			return err
		}
		affected, err = cellstore.New(c.backend).DeleteRow(ctx, t.ID, rowID, cols)
		return err
	})
	return affected, err
}

// UndeleteRow restores every tombstoned cell of rowID in table.
func (c *Connection) UndeleteRow(ctx context.Context, table, rowID string) (bool, error) {
	var affected bool
	err := txn.Run(ctx, c.backend, func(ctx context.Context) error {
		t, err := c.requireTable(ctx, table)
		if err != nil {
			return err
		}
		cols, err := c.cellsFor(ctx, t.ID)
		if err != nil {
			return err
		}
		affected, err = cellstore.New(c.backend).UndeleteRow(ctx, t.ID, rowID, cols)
		return err
	})
	return affected, err
}

// Query executes a SELECT over table's view, optionally restricted by a
// raw SQL `where` fragment the caller is responsible for validating
// (spec §6.1: "the core treats it as opaque text for the host engine").
func (c *Connection) Query(ctx context.Context, table string, where string) ([]Row, error) {
	q := `SELECT * FROM ` + backend.QuoteIdentifier(table)
	if where != "" {
		q += " WHERE " + where
	}
	return c.backend.FetchAll(ctx, q)
}

// ExecuteSQL passes sql straight through to the engine with bound
// params, returning rows as mappings. No validation happens here; a
// separate policy component is responsible for that (spec §1).
func (c *Connection) ExecuteSQL(ctx context.Context, sql string, params ...any) ([]Row, error) {
	return c.backend.FetchAll(ctx, sql, params...)
}

// ListTables returns every live logical table.
func (c *Connection) ListTables(ctx context.Context) ([]TableInfo, error) {
	return c.meta.ListTables(ctx)
}

// ListColumns returns table's columns, live-only unless includeDeleted.
func (c *Connection) ListColumns(ctx context.Context, table string, includeDeleted bool) ([]ColumnInfo, error) {
	t, err := c.requireTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return c.meta.ListColumns(ctx, t.ID, includeDeleted)
}

// CellHistory returns the audit trail of one cell, ordered by ascending
// version (spec §4.4.5).
func (c *Connection) CellHistory(ctx context.Context, table, rowID, column string) ([]cellstore.HistoryEntry, error) {
	t, err := c.requireTable(ctx, table)
	if err != nil {
		return nil, err
	}
	col, err := c.meta.GetColumn(ctx, t.ID, column)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, dberr.New(dberr.ErrColumnNotFound, "column %q not found on table %q", column, table)
	}
	return cellstore.New(c.backend).History(ctx, cellstore.Cell{
		RowID: rowID, TableID: t.ID, ColumnID: col.ID, DataType: col.DataType,
	})
}

// Backend exposes the underlying connection for callers that need
// lower-level access (e.g. the branch manager opening a second
// connection to merge between branches). It is not part of the
// type-partitioned cell protocol itself.
func (c *Connection) Backend() *backend.Connection { return c.backend }
