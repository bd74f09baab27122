// Package cellstore is the Versioned Cell Store (spec §4.4): atomic
// upsert, soft delete, and read of individual cells against the
// type-partitioned physical value tables. It is the generalization of
// the teacher's per-issue-field update path to an arbitrary
// (row_id, table_id, column_id) cell addressed by the metadata catalog
// instead of a fixed column set.
package cellstore

import (
	"context"

	"github.com/russellromney/synthdb/internal/backend"
	"github.com/russellromney/synthdb/internal/typeconv"
)

// Cell identifies one (row_id, table_id, column_id) triple.
type Cell struct {
	RowID    string
	TableID  int64
	ColumnID int64
	DataType typeconv.DataType
}

// Store is the Versioned Cell Store, bound to one connection. Every
// method assumes a transaction is already open on conn (spec §5: the
// Transaction Coordinator wraps every upsert/soft-delete).
type Store struct {
	conn *backend.Connection
}

// New binds a cell Store to an open connection.
func New(conn *backend.Connection) *Store {
	return &Store{conn: conn}
}

// Current is a cell's current row: its value, deletion state, and
// bookkeeping columns, the shape programmatic single-cell reads return
// (spec §4.4.4).
type Current struct {
	Value     any
	IsDeleted bool
	DeletedAt *string
	CreatedAt string
	Version   int64
}

// Upsert implements the atomic upsert protocol of spec §4.4.1: demote
// any current row for the cell (live or tombstoned), compute the next
// version, coerce the value, and insert it as the new current row. It
// returns the version number of the newly inserted row. forced mirrors
// the caller's force_type option (spec §4.4.6): the only sanctioned path
// from a numeric value into a text cell.
func (s *Store) Upsert(ctx context.Context, cell Cell, value any, forced bool) (int64, error) {
	table := cell.DataType.ValueTable()

	if _, err := s.conn.Execute(ctx,
		`UPDATE `+table+` SET is_current = 0
		 WHERE row_id = ? AND table_id = ? AND column_id = ? AND is_current = 1`,
		cell.RowID, cell.TableID, cell.ColumnID); err != nil {
		return 0, err
	}

	row, err := s.conn.FetchOne(ctx,
		`SELECT COALESCE(MAX(version), -1) + 1 AS next_version FROM `+table+`
		 WHERE row_id = ? AND table_id = ? AND column_id = ?`,
		cell.RowID, cell.TableID, cell.ColumnID)
	if err != nil {
		return 0, err
	}
	nextVersion := toInt64(row["next_version"])

	coerced, err := typeconv.Coerce(cell.DataType, value, forced)
	if err != nil {
		return 0, err
	}

	now := typeconv.Now()
	if _, err := s.conn.Execute(ctx,
		`INSERT INTO `+table+`
		 (row_id, table_id, column_id, version, created_at, deleted_at, is_current, is_deleted, value)
		 VALUES (?, ?, ?, ?, ?, NULL, 1, 0, ?)`,
		cell.RowID, cell.TableID, cell.ColumnID, nextVersion, now, coerced); err != nil {
		return 0, err
	}
	return nextVersion, nil
}

// DeleteValue implements the soft delete of spec §4.4.2: find the
// current non-deleted row for the cell and flip it to a tombstone
// in-place (no new version is written). Returns whether a row was
// affected.
func (s *Store) DeleteValue(ctx context.Context, cell Cell) (bool, error) {
	table := cell.DataType.ValueTable()
	now := typeconv.Now()
	n, err := s.conn.Execute(ctx,
		`UPDATE `+table+` SET is_deleted = 1, deleted_at = ?
		 WHERE row_id = ? AND table_id = ? AND column_id = ? AND is_current = 1 AND is_deleted = 0`,
		now, cell.RowID, cell.TableID, cell.ColumnID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UndeleteValue clears a tombstone in place if the cell's current row is
// one, restoring the prior value without writing a new version.
func (s *Store) UndeleteValue(ctx context.Context, cell Cell) (bool, error) {
	table := cell.DataType.ValueTable()
	n, err := s.conn.Execute(ctx,
		`UPDATE `+table+` SET is_deleted = 0, deleted_at = NULL
		 WHERE row_id = ? AND table_id = ? AND column_id = ? AND is_current = 1 AND is_deleted = 1`,
		cell.RowID, cell.TableID, cell.ColumnID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ReadCurrent returns the current row of a cell, or nil if the cell has
// no current row at all. Unless includeDeleted is set, a tombstoned
// current row is treated as absent (spec §4.4.4).
func (s *Store) ReadCurrent(ctx context.Context, cell Cell, includeDeleted bool) (*Current, error) {
	table := cell.DataType.ValueTable()
	query := `SELECT value, is_deleted, deleted_at, created_at, version FROM ` + table + `
	          WHERE row_id = ? AND table_id = ? AND column_id = ? AND is_current = 1`
	if !includeDeleted {
		query += ` AND is_deleted = 0`
	}
	row, err := s.conn.FetchOne(ctx, query, cell.RowID, cell.TableID, cell.ColumnID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	cur := &Current{
		Value:     row["value"],
		IsDeleted: toInt64(row["is_deleted"]) != 0,
		CreatedAt: asString(row["created_at"]),
		Version:   toInt64(row["version"]),
	}
	if row["deleted_at"] != nil {
		d := asString(row["deleted_at"])
		cur.DeletedAt = &d
	}
	return cur, nil
}

// HistoryEntry is one version of a cell's audit trail (spec §4.4.5).
type HistoryEntry struct {
	Version   int64
	Value     any
	CreatedAt string
	IsDeleted bool
	IsCurrent bool
}

// History returns every version of a cell in ascending version order.
// Past versions are never mutated; this always reflects the immutable
// audit trail.
func (s *Store) History(ctx context.Context, cell Cell) ([]HistoryEntry, error) {
	table := cell.DataType.ValueTable()
	rows, err := s.conn.FetchAll(ctx,
		`SELECT version, value, created_at, is_deleted, is_current FROM `+table+`
		 WHERE row_id = ? AND table_id = ? AND column_id = ? ORDER BY version ASC`,
		cell.RowID, cell.TableID, cell.ColumnID)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, HistoryEntry{
			Version:   toInt64(row["version"]),
			Value:     row["value"],
			CreatedAt: asString(row["created_at"]),
			IsDeleted: toInt64(row["is_deleted"]) != 0,
			IsCurrent: toInt64(row["is_current"]) != 0,
		})
	}
	return out, nil
}

// RowCell identifies a row's participation in one column, used by
// DeleteRow/UndeleteRow to apply 4.4.2/undelete to every cell of a row
// in one pass.
type RowCell struct {
	ColumnID int64
	DataType typeconv.DataType
}

// DeleteRow soft-deletes every cell of rowID across cols in one
// transaction (spec §4.4.3). Returns true if at least one cell was
// affected.
func (s *Store) DeleteRow(ctx context.Context, tableID int64, rowID string, cols []RowCell) (bool, error) {
	var any bool
	for _, c := range cols {
		ok, err := s.DeleteValue(ctx, Cell{RowID: rowID, TableID: tableID, ColumnID: c.ColumnID, DataType: c.DataType})
		if err != nil {
			return false, err
		}
		any = any || ok
	}
	return any, nil
}

// UndeleteRow restores every tombstoned cell of rowID across cols.
// Returns true if at least one cell was restored.
func (s *Store) UndeleteRow(ctx context.Context, tableID int64, rowID string, cols []RowCell) (bool, error) {
	var any bool
	for _, c := range cols {
		ok, err := s.UndeleteValue(ctx, Cell{RowID: rowID, TableID: tableID, ColumnID: c.ColumnID, DataType: c.DataType})
		if err != nil {
			return false, err
		}
		any = any || ok
	}
	return any, nil
}

// RowExists reports whether rowID has at least one current, non-deleted
// cell under tableID across cols — the same test the view uses to
// decide row membership (spec §3.5).
func (s *Store) RowExists(ctx context.Context, tableID int64, rowID string, cols []RowCell) (bool, error) {
	for _, c := range cols {
		cur, err := s.ReadCurrent(ctx, Cell{RowID: rowID, TableID: tableID, ColumnID: c.ColumnID, DataType: c.DataType}, false)
		if err != nil {
			return false, err
		}
		if cur != nil {
			return true, nil
		}
	}
	return false, nil
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
