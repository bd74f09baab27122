// Package metadata is the Metadata Store (spec §4.3): it reads and
// writes the logical catalog (table_definitions, column_definitions)
// with soft-delete semantics and name protection, the generalization of
// the teacher's issue/label/dependency CRUD layer to a catalog of
// user-declared tables and columns instead of a fixed issue schema.
package metadata

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/russellromney/synthdb/internal/backend"
	"github.com/russellromney/synthdb/internal/dberr"
	"github.com/russellromney/synthdb/internal/idgen"
	"github.com/russellromney/synthdb/internal/typeconv"
)

// identifierPattern is the conservative name shape spec §3.1 requires:
// letter or underscore first, alphanumerics/underscore after, length<=64.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

// reservedNames is the protected set: the six (or four) physical value
// tables plus the catalog tables themselves, the sentinel column name
// row_id, and a small SQL-keyword blocklist. Checks are case-insensitive.
var reservedNames = buildReservedNames()

func buildReservedNames() map[string]bool {
	set := map[string]bool{
		"row_id":             true,
		"table_definitions":  true,
		"column_definitions": true,
		"row_id_sequence":    true,
	}
	for _, t := range typeconv.All {
		set[t.ValueTable()] = true
	}
	for _, kw := range []string{
		"select", "from", "where", "insert", "update", "delete", "drop",
		"table", "index", "view", "create", "alter", "join", "group",
		"order", "by", "and", "or", "not", "null", "primary", "key",
		"foreign", "references", "unique", "check", "default",
		"constraint", "in", "exists", "distinct", "limit", "offset",
		"union", "having", "as", "on", "set", "values", "into",
	} {
		set[kw] = true
	}
	return set
}

// ValidateName enforces spec §3.1's identifier pattern and reserved-name
// protection. Checks against reservedNames are case-insensitive.
func ValidateName(name string) error {
	if !identifierPattern.MatchString(name) {
		return dberr.New(dberr.ErrReservedName, "invalid identifier %q", name)
	}
	if reservedNames[strings.ToLower(name)] {
		return dberr.New(dberr.ErrReservedName, "name %q is reserved", name)
	}
	return nil
}

// TableDef mirrors one row of table_definitions.
type TableDef struct {
	ID        int64
	Version   int64
	CreatedAt string
	DeletedAt *string
	Name      string
}

// Live reports whether the table is non-deleted.
func (t TableDef) Live() bool { return t.DeletedAt == nil }

// ColumnDef mirrors one row of column_definitions.
type ColumnDef struct {
	ID        int64
	TableID   int64
	Version   int64
	CreatedAt string
	DeletedAt *string
	Name      string
	DataType  typeconv.DataType
}

// Live reports whether the column itself is non-deleted. Whether its
// owning table is also live must be checked separately by callers that
// have the TableDef in hand (spec §3.1: a column is live iff both it and
// its table are live).
func (c ColumnDef) Live() bool { return c.DeletedAt == nil }

// Store is the Metadata Store, bound to one connection. Every mutating
// method must run inside a transaction the caller (the Transaction
// Coordinator, spec §5) has already opened on conn.
type Store struct {
	conn *backend.Connection
}

// New binds a metadata Store to an open connection.
func New(conn *backend.Connection) *Store {
	return &Store{conn: conn}
}

func (s *Store) nextTableID(ctx context.Context) (int64, error) {
	row, err := s.conn.FetchOne(ctx, "SELECT COALESCE(MAX(id), -1) + 1 AS next_id FROM table_definitions")
	if err != nil {
		return 0, err
	}
	return toInt64(row["next_id"]), nil
}

func (s *Store) nextColumnID(ctx context.Context) (int64, error) {
	row, err := s.conn.FetchOne(ctx, "SELECT COALESCE(MAX(id), -1) + 1 AS next_id FROM column_definitions")
	if err != nil {
		return 0, err
	}
	return toInt64(row["next_id"]), nil
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

// GetTable returns the live table named name, or nil if none exists.
func (s *Store) GetTable(ctx context.Context, name string) (*TableDef, error) {
	row, err := s.conn.FetchOne(ctx,
		`SELECT id, version, created_at, deleted_at, name FROM table_definitions
		 WHERE name = ? AND deleted_at IS NULL`, name)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return rowToTableDef(row), nil
}

// GetTableByID returns a table row (live or not) by id.
func (s *Store) GetTableByID(ctx context.Context, id int64) (*TableDef, error) {
	row, err := s.conn.FetchOne(ctx,
		`SELECT id, version, created_at, deleted_at, name FROM table_definitions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return rowToTableDef(row), nil
}

func rowToTableDef(row backend.Row) *TableDef {
	t := &TableDef{
		ID:        toInt64(row["id"]),
		Version:   toInt64(row["version"]),
		CreatedAt: asString(row["created_at"]),
		Name:      asString(row["name"]),
	}
	if row["deleted_at"] != nil {
		d := asString(row["deleted_at"])
		t.DeletedAt = &d
	}
	return t
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

// CreateTable allocates a new logical table. Fails with ErrNameTaken if
// a live table of that name exists, ErrReservedName if the name is
// protected or malformed.
func (s *Store) CreateTable(ctx context.Context, name string) (int64, error) {
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	existing, err := s.GetTable(ctx, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, dberr.New(dberr.ErrNameTaken, "table %q already exists", name)
	}
	id, err := s.nextTableID(ctx)
	if err != nil {
		return 0, err
	}
	now := typeconv.Now()
	if _, err := s.conn.Execute(ctx,
		`INSERT INTO table_definitions (id, version, created_at, deleted_at, name) VALUES (?, 0, ?, NULL, ?)`,
		id, now, name); err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteTable soft- or hard-deletes a live table. Hard delete removes
// every value row across all six value tables whose table_id matches,
// plus the table's column_definitions rows.
func (s *Store) DeleteTable(ctx context.Context, name string, hard bool) error {
	t, err := s.GetTable(ctx, name)
	if err != nil {
		return err
	}
	if t == nil {
		return dberr.New(dberr.ErrTableNotFound, "table %q not found", name)
	}
	now := typeconv.Now()
	if _, err := s.conn.Execute(ctx,
		`UPDATE table_definitions SET deleted_at = ? WHERE id = ?`, now, t.ID); err != nil {
		return err
	}
	if hard {
		for _, dt := range typeconv.All {
			if _, err := s.conn.Execute(ctx,
				`DELETE FROM `+dt.ValueTable()+` WHERE table_id = ?`, t.ID); err != nil {
				return err
			}
		}
		if _, err := s.conn.Execute(ctx,
			`DELETE FROM column_definitions WHERE table_id = ?`, t.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListColumns returns the columns of table, live-only unless
// includeDeleted is set, ordered by ascending column id (spec §4.5:
// "column order matches the ascending order of column_definitions.id").
func (s *Store) ListColumns(ctx context.Context, tableID int64, includeDeleted bool) ([]ColumnDef, error) {
	query := `SELECT id, table_id, version, created_at, deleted_at, name, data_type
	          FROM column_definitions WHERE table_id = ?`
	if !includeDeleted {
		query += ` AND deleted_at IS NULL`
	}
	query += ` ORDER BY id ASC`
	rows, err := s.conn.FetchAll(ctx, query, tableID)
	if err != nil {
		return nil, err
	}
	cols := make([]ColumnDef, 0, len(rows))
	for _, row := range rows {
		cols = append(cols, rowToColumnDef(row))
	}
	return cols, nil
}

func rowToColumnDef(row backend.Row) ColumnDef {
	c := ColumnDef{
		ID:        toInt64(row["id"]),
		TableID:   toInt64(row["table_id"]),
		Version:   toInt64(row["version"]),
		CreatedAt: asString(row["created_at"]),
		Name:      asString(row["name"]),
		DataType:  typeconv.DataType(asString(row["data_type"])),
	}
	if row["deleted_at"] != nil {
		d := asString(row["deleted_at"])
		c.DeletedAt = &d
	}
	return c
}

// GetColumn returns the live column named name on table tableID, or nil.
func (s *Store) GetColumn(ctx context.Context, tableID int64, name string) (*ColumnDef, error) {
	row, err := s.conn.FetchOne(ctx,
		`SELECT id, table_id, version, created_at, deleted_at, name, data_type
		 FROM column_definitions WHERE table_id = ? AND name = ? AND deleted_at IS NULL`,
		tableID, name)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	c := rowToColumnDef(row)
	return &c, nil
}

// GetColumnByID returns a column row (live or not) by id.
func (s *Store) GetColumnByID(ctx context.Context, id int64) (*ColumnDef, error) {
	row, err := s.conn.FetchOne(ctx,
		`SELECT id, table_id, version, created_at, deleted_at, name, data_type
		 FROM column_definitions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	c := rowToColumnDef(row)
	return &c, nil
}

// AddColumn allocates a new column on table tableID. Column ids are
// unique across the whole catalog, not just within one table (spec
// §4.3).
func (s *Store) AddColumn(ctx context.Context, tableID int64, name string, dataType typeconv.DataType) (int64, error) {
	if name == "row_id" || strings.EqualFold(name, "row_id") {
		return 0, dberr.New(dberr.ErrReservedName, "column name %q is reserved", name)
	}
	if err := ValidateName(name); err != nil {
		return 0, err
	}
	if !typeconv.Valid(string(dataType)) {
		return 0, dberr.New(dberr.ErrUnknownType, "%s", dataType)
	}
	table, err := s.GetTableByID(ctx, tableID)
	if err != nil {
		return 0, err
	}
	if table == nil || !table.Live() {
		return 0, dberr.New(dberr.ErrTableNotFound, "table id %d not found", tableID)
	}
	existing, err := s.GetColumn(ctx, tableID, name)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return 0, dberr.New(dberr.ErrNameTaken, "column %q already exists on table %q", name, table.Name)
	}
	id, err := s.nextColumnID(ctx)
	if err != nil {
		return 0, err
	}
	now := typeconv.Now()
	if _, err := s.conn.Execute(ctx,
		`INSERT INTO column_definitions (id, table_id, version, created_at, deleted_at, name, data_type)
		 VALUES (?, ?, 0, ?, NULL, ?, ?)`,
		id, tableID, now, name, string(dataType)); err != nil {
		return 0, err
	}
	return id, nil
}

// RenameColumn renames a live column in place, rejecting a new name that
// collides with any other live column on the same table or is reserved.
func (s *Store) RenameColumn(ctx context.Context, tableID int64, oldName, newName string) error {
	if err := ValidateName(newName); err != nil {
		return err
	}
	col, err := s.GetColumn(ctx, tableID, oldName)
	if err != nil {
		return err
	}
	if col == nil {
		return dberr.New(dberr.ErrColumnNotFound, "column %q not found", oldName)
	}
	if !strings.EqualFold(oldName, newName) {
		existing, err := s.GetColumn(ctx, tableID, newName)
		if err != nil {
			return err
		}
		if existing != nil {
			return dberr.New(dberr.ErrNameTaken, "column %q already exists", newName)
		}
	}
	_, err = s.conn.Execute(ctx,
		`UPDATE column_definitions SET name = ? WHERE id = ?`, newName, col.ID)
	return err
}

// DeleteColumn soft- or hard-deletes a live column. Hard delete also
// removes every value-table row (the full history, not just the current
// row) whose column_id matches.
func (s *Store) DeleteColumn(ctx context.Context, tableID int64, name string, hard bool) error {
	col, err := s.GetColumn(ctx, tableID, name)
	if err != nil {
		return err
	}
	if col == nil {
		return dberr.New(dberr.ErrColumnNotFound, "column %q not found", name)
	}
	now := typeconv.Now()
	if _, err := s.conn.Execute(ctx,
		`UPDATE column_definitions SET deleted_at = ? WHERE id = ?`, now, col.ID); err != nil {
		return err
	}
	if hard {
		if _, err := s.conn.Execute(ctx,
			`DELETE FROM `+col.DataType.ValueTable()+` WHERE column_id = ?`, col.ID); err != nil {
			return err
		}
	}
	return nil
}

// ListTables returns every live table, ordered by id.
func (s *Store) ListTables(ctx context.Context) ([]TableDef, error) {
	rows, err := s.conn.FetchAll(ctx,
		`SELECT id, version, created_at, deleted_at, name FROM table_definitions
		 WHERE deleted_at IS NULL ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	tables := make([]TableDef, 0, len(rows))
	for _, row := range rows {
		tables = append(tables, *rowToTableDef(row))
	}
	return tables, nil
}

// CellVersion is one row from a value table's version history.
type CellVersion struct {
	Version   int64
	Value     any
	CreatedAt string
	IsCurrent bool
	IsDeleted bool
}

// CopyTable creates dst with the same live column definitions as src. If
// copyData is set, every live cell of src is copied into a fresh row_id
// in dst, preserving the full version chain under that new id (spec
// §4.3, testable property 9) — deleted source rows are skipped entirely.
func (s *Store) CopyTable(ctx context.Context, src, dst string, copyData bool) (int64, error) {
	srcTable, err := s.GetTable(ctx, src)
	if err != nil {
		return 0, err
	}
	if srcTable == nil {
		return 0, dberr.New(dberr.ErrTableNotFound, "table %q not found", src)
	}
	dstID, err := s.CreateTable(ctx, dst)
	if err != nil {
		return 0, err
	}
	cols, err := s.ListColumns(ctx, srcTable.ID, false)
	if err != nil {
		return 0, err
	}
	dstColByName := make(map[string]int64, len(cols))
	for _, c := range cols {
		newColID, err := s.AddColumn(ctx, dstID, c.Name, c.DataType)
		if err != nil {
			return 0, err
		}
		dstColByName[c.Name] = newColID
	}
	if !copyData {
		return dstID, nil
	}

	rowIDs, err := s.liveRowIDs(ctx, srcTable.ID, cols)
	if err != nil {
		return 0, err
	}
	for _, srcRowID := range rowIDs {
		newRowID := idgen.NewRowID()
		for _, c := range cols {
			history, err := s.cellHistory(ctx, srcRowID, srcTable.ID, c.ID, c.DataType)
			if err != nil {
				return 0, err
			}
			if len(history) == 0 {
				continue
			}
			// A deleted source row's current version is a tombstone; spec
			// §4.3 says deleted source rows are not copied, which this
			// enforces per-cell since "row" has no separate physical row.
			if history[len(history)-1].IsDeleted {
				continue
			}
			if err := s.copyHistory(ctx, newRowID, dstID, dstColByName[c.Name], c.DataType, history); err != nil {
				return 0, err
			}
		}
	}
	return dstID, nil
}

func (s *Store) liveRowIDs(ctx context.Context, tableID int64, cols []ColumnDef) ([]string, error) {
	seen := map[string]bool{}
	var ids []string
	for _, c := range cols {
		rows, err := s.conn.FetchAll(ctx,
			`SELECT DISTINCT row_id FROM `+c.DataType.ValueTable()+`
			 WHERE table_id = ? AND is_current = 1 AND is_deleted = 0`, tableID)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			id := asString(row["row_id"])
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) cellHistory(ctx context.Context, rowID string, tableID, columnID int64, dt typeconv.DataType) ([]CellVersion, error) {
	rows, err := s.conn.FetchAll(ctx,
		`SELECT version, value, created_at, is_current, is_deleted FROM `+dt.ValueTable()+`
		 WHERE row_id = ? AND table_id = ? AND column_id = ? ORDER BY version ASC`,
		rowID, tableID, columnID)
	if err != nil {
		return nil, err
	}
	out := make([]CellVersion, 0, len(rows))
	for _, row := range rows {
		out = append(out, CellVersion{
			Version:   toInt64(row["version"]),
			Value:     row["value"],
			CreatedAt: asString(row["created_at"]),
			IsCurrent: toInt64(row["is_current"]) != 0,
			IsDeleted: toInt64(row["is_deleted"]) != 0,
		})
	}
	return out, nil
}

func (s *Store) copyHistory(ctx context.Context, rowID string, tableID, columnID int64, dt typeconv.DataType, history []CellVersion) error {
	for _, v := range history {
		isCurrent := 0
		if v.IsCurrent {
			isCurrent = 1
		}
		isDeleted := 0
		if v.IsDeleted {
			isDeleted = 1
		}
		if _, err := s.conn.Execute(ctx,
			`INSERT INTO `+dt.ValueTable()+`
			 (row_id, table_id, column_id, version, created_at, deleted_at, is_current, is_deleted, value)
			 VALUES (?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
			rowID, tableID, columnID, v.Version, v.CreatedAt, isCurrent, isDeleted, v.Value); err != nil {
			return err
		}
	}
	return nil
}
