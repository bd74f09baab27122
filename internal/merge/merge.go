// Package merge is the Structural Merger (spec §4.7): it compares the
// live metadata of two SynthDB connections and additively copies tables
// and columns present in the source but missing in the target, reporting
// — never resolving — type conflicts. Grounded on the teacher's
// internal/merge package's shape (compute a diff, then apply it
// statement by statement) generalized from issue-field merges to
// catalog structure.
package merge

import (
	"context"

	"github.com/russellromney/synthdb/internal/backend"
	"github.com/russellromney/synthdb/internal/metadata"
	"github.com/russellromney/synthdb/internal/txn"
	"github.com/russellromney/synthdb/internal/typeconv"
	"github.com/russellromney/synthdb/internal/view"
)

// TypeConflict records a column present in both branches with
// differing data types; conflicts are reported, never resolved (spec
// §4.7: "type conflicts are skipped — never overwritten").
type TypeConflict struct {
	Table      string
	Column     string
	SourceType typeconv.DataType
	TargetType typeconv.DataType
}

// Result is the outcome of a structural merge or dry run.
type Result struct {
	NewTables     []string
	NewColumns    map[string][]string
	TypeConflicts []TypeConflict
}

// Plan computes the structural diff between source and target without
// applying anything: live table names in source but not target become
// NewTables; for tables present in both, live column names in source
// but not target become NewColumns; columns present in both with
// differing data_type become TypeConflicts.
func Plan(ctx context.Context, srcConn, tgtConn *backend.Connection) (Result, error) {
	result := Result{NewColumns: map[string][]string{}}

	srcMeta := metadata.New(srcConn)
	tgtMeta := metadata.New(tgtConn)

	srcTables, err := srcMeta.ListTables(ctx)
	if err != nil {
		return result, err
	}
	tgtTables, err := tgtMeta.ListTables(ctx)
	if err != nil {
		return result, err
	}

	tgtByName := make(map[string]metadata.TableDef, len(tgtTables))
	for _, t := range tgtTables {
		tgtByName[t.Name] = t
	}

	for _, st := range srcTables {
		tt, inTarget := tgtByName[st.Name]
		if !inTarget {
			result.NewTables = append(result.NewTables, st.Name)
			continue
		}

		srcCols, err := srcMeta.ListColumns(ctx, st.ID, false)
		if err != nil {
			return result, err
		}
		tgtCols, err := tgtMeta.ListColumns(ctx, tt.ID, false)
		if err != nil {
			return result, err
		}
		tgtColByName := make(map[string]metadata.ColumnDef, len(tgtCols))
		for _, c := range tgtCols {
			tgtColByName[c.Name] = c
		}

		for _, sc := range srcCols {
			tc, inTarget := tgtColByName[sc.Name]
			if !inTarget {
				result.NewColumns[st.Name] = append(result.NewColumns[st.Name], sc.Name)
				continue
			}
			if tc.DataType != sc.DataType {
				result.TypeConflicts = append(result.TypeConflicts, TypeConflict{
					Table:      st.Name,
					Column:     sc.Name,
					SourceType: sc.DataType,
					TargetType: tc.DataType,
				})
			}
		}
	}

	return result, nil
}

// Apply plans the merge and, unless dryRun, creates every NewTables
// table in target with all its source columns and adds every NewColumns
// column — one transaction per new table (with its columns) and one per
// existing table's batch of new columns, since the merger spans
// two separate database files and can't share one engine transaction
// across them (spec §5). Type conflicts are never applied.
func Apply(ctx context.Context, srcConn, tgtConn *backend.Connection, dryRun bool) (Result, error) {
	result, err := Plan(ctx, srcConn, tgtConn)
	if err != nil {
		return result, err
	}
	if dryRun {
		return result, nil
	}

	srcMeta := metadata.New(srcConn)
	tgtMeta := metadata.New(tgtConn)

	for _, tableName := range result.NewTables {
		srcTable, err := srcMeta.GetTable(ctx, tableName)
		if err != nil {
			return result, err
		}
		srcCols, err := srcMeta.ListColumns(ctx, srcTable.ID, false)
		if err != nil {
			return result, err
		}

		if err := txn.Run(ctx, tgtConn, func(ctx context.Context) error {
			id, err := tgtMeta.CreateTable(ctx, tableName)
			if err != nil {
				return err
			}
			for _, c := range srcCols {
				if _, err := tgtMeta.AddColumn(ctx, id, c.Name, c.DataType); err != nil {
					return err
				}
			}
			return view.Materialize(ctx, tgtConn, tgtMeta, id, tableName)
		}); err != nil {
			return result, err
		}
	}

	for tableName, colNames := range result.NewColumns {
		tgtTable, err := tgtMeta.GetTable(ctx, tableName)
		if err != nil {
			return result, err
		}
		srcTable, err := srcMeta.GetTable(ctx, tableName)
		if err != nil {
			return result, err
		}
		srcCols, err := srcMeta.ListColumns(ctx, srcTable.ID, false)
		if err != nil {
			return result, err
		}
		srcColByName := make(map[string]metadata.ColumnDef, len(srcCols))
		for _, c := range srcCols {
			srcColByName[c.Name] = c
		}

		if err := txn.Run(ctx, tgtConn, func(ctx context.Context) error {
			for _, name := range colNames {
				sc := srcColByName[name]
				if _, err := tgtMeta.AddColumn(ctx, tgtTable.ID, sc.Name, sc.DataType); err != nil {
					return err
				}
			}
			return view.Materialize(ctx, tgtConn, tgtMeta, tgtTable.ID, tableName)
		}); err != nil {
			return result, err
		}
	}

	return result, nil
}
