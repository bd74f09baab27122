// Package view is the View Materializer (spec §4.5): for each live
// logical table it drops and re-creates a SQL view pivoting
// type-partitioned current, non-deleted cells into a columnar
// projection. It is a pure function of the live metadata — it never
// reads user data itself, only the shape of table_definitions and
// column_definitions, the same separation the teacher keeps between
// its migrations (which only change shape) and its issue CRUD (which
// only changes data).
package view

import (
	"context"
	"fmt"
	"strings"

	"github.com/russellromney/synthdb/internal/backend"
	"github.com/russellromney/synthdb/internal/metadata"
	"github.com/russellromney/synthdb/internal/typeconv"
)

// Materialize drops and recreates the view for the logical table
// identified by tableName/tableID, built from its current live columns.
// It is idempotent and safe to call after every metadata mutation.
func Materialize(ctx context.Context, conn *backend.Connection, meta *metadata.Store, tableID int64, tableName string) error {
	cols, err := meta.ListColumns(ctx, tableID, false)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return Degenerate(ctx, conn, tableName)
	}

	quoted := backend.QuoteIdentifier(tableName)
	if _, err := conn.Execute(ctx, `DROP VIEW IF EXISTS `+quoted); err != nil {
		return err
	}
	stmt := buildViewSQL(quoted, tableID, cols)
	_, err = conn.Execute(ctx, stmt)
	return err
}

// Degenerate drops and recreates tableName's view as one that always
// returns zero rows: used both for a live table with no live columns
// and for a table that was just soft-deleted (spec §4.3's delete_table:
// "view is retriggered and becomes a degenerate empty view").
func Degenerate(ctx context.Context, conn *backend.Connection, tableName string) error {
	quoted := backend.QuoteIdentifier(tableName)
	if _, err := conn.Execute(ctx, `DROP VIEW IF EXISTS `+quoted); err != nil {
		return err
	}
	stmt := `CREATE VIEW ` + quoted + ` AS
		SELECT NULL AS row_id, NULL AS created_at, NULL AS updated_at
		WHERE 0`
	_, err := conn.Execute(ctx, stmt)
	return err
}

func alias(i int) string { return fmt.Sprintf("v%d", i) }

// buildViewSQL assembles the CREATE VIEW statement from spec §4.5's
// template: a union-of-distinct-row_ids subquery joined against one
// aliased copy of each column's value table.
func buildViewSQL(quotedView string, tableID int64, cols []metadata.ColumnDef) string {
	var unionParts []string
	var joins []string
	var projections []string
	var tsUnionParts []string

	for i, c := range cols {
		a := alias(i)
		vt := c.DataType.ValueTable()
		unionParts = append(unionParts, fmt.Sprintf(
			"SELECT DISTINCT row_id FROM %s WHERE table_id = %d AND is_current = 1 AND is_deleted = 0",
			vt, tableID))
		joins = append(joins, fmt.Sprintf(
			"LEFT JOIN %s %s ON all_rows.row_id = %s.row_id AND %s.table_id = %d AND %s.column_id = %d AND %s.is_current = 1 AND %s.is_deleted = 0",
			vt, a, a, a, tableID, a, c.ID, a, a))

		proj := a + ".value"
		if c.DataType == typeconv.Boolean {
			proj = fmt.Sprintf("CASE WHEN %s.value = 1 THEN 'true' WHEN %s.value = 0 THEN 'false' ELSE NULL END", a, a)
		}
		projections = append(projections, fmt.Sprintf("%s AS %s", proj, backend.QuoteIdentifier(c.Name)))

		tsUnionParts = append(tsUnionParts, fmt.Sprintf(
			"SELECT row_id, created_at FROM %s WHERE table_id = %d AND column_id = %d AND is_current = 1 AND is_deleted = 0",
			vt, tableID, c.ID))
	}

	// The pivot subquery joins one aliased copy of each column's value
	// table, producing exactly one row per distinct row_id (each alias
	// matches at most one row under the partial-cell uniqueness
	// invariant). Timestamps are aggregated separately: every live
	// cell's created_at for the row is unioned together, then MIN/MAX'd
	// per row_id, since a LEFT JOIN pivot can't MIN/MAX across sibling
	// columns directly without a NULL from every unmatched alias
	// poisoning the result.
	return fmt.Sprintf(`CREATE VIEW %s AS
SELECT
  p.row_id,
  %s,
  ts.created_at,
  ts.updated_at
FROM (
  SELECT all_rows.row_id, %s
  FROM (
    %s
  ) all_rows
  %s
) p
JOIN (
  SELECT row_id, MIN(created_at) AS created_at, MAX(created_at) AS updated_at
  FROM (
    %s
  )
  GROUP BY row_id
) ts ON p.row_id = ts.row_id`,
		quotedView,
		projColumnList(cols),
		strings.Join(projections, ",\n    "),
		strings.Join(unionParts, "\n    UNION\n    "),
		strings.Join(joins, "\n  "),
		strings.Join(tsUnionParts, "\n    UNION ALL\n    "),
	)
}

// projColumnList returns the quoted column-name list used to select the
// pivoted projections back out of the inner subquery.
func projColumnList(cols []metadata.ColumnDef) string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = "p." + backend.QuoteIdentifier(c.Name)
	}
	return strings.Join(names, ", ")
}
