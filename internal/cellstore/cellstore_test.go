package cellstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/russellromney/synthdb/internal/backend"
	"github.com/russellromney/synthdb/internal/schema"
	"github.com/russellromney/synthdb/internal/typeconv"
)

func newTestConn(t *testing.T) *backend.Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := backend.Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if _, err := schema.Install(context.Background(), conn); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return conn
}

func TestUpsertThenReadCurrent(t *testing.T) {
	conn := newTestConn(t)
	store := New(conn)
	ctx := context.Background()
	cell := Cell{RowID: "r1", TableID: 1, ColumnID: 1, DataType: typeconv.Text}

	v1, err := store.Upsert(ctx, cell, "hello", false)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if v1 != 0 {
		t.Errorf("expected first version to be 0, got %d", v1)
	}

	cur, err := store.ReadCurrent(ctx, cell, false)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if cur == nil || cur.Value != "hello" {
		t.Fatalf("expected current value 'hello', got %+v", cur)
	}
}

func TestUpsertOverwriteDemotesAndIncrementsVersion(t *testing.T) {
	conn := newTestConn(t)
	store := New(conn)
	ctx := context.Background()
	cell := Cell{RowID: "r1", TableID: 1, ColumnID: 1, DataType: typeconv.Integer}

	store.Upsert(ctx, cell, 1, false)
	v2, err := store.Upsert(ctx, cell, 2, false)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if v2 != 1 {
		t.Errorf("expected second version to be 1, got %d", v2)
	}

	hist, err := store.History(ctx, cell)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
	if hist[0].IsCurrent {
		t.Error("expected first version to no longer be current")
	}
	if !hist[1].IsCurrent {
		t.Error("expected second version to be current")
	}
	if hist[1].Value.(int64) != 2 {
		t.Errorf("expected current value 2, got %v", hist[1].Value)
	}
}

func TestDeleteValueTombstonesInPlace(t *testing.T) {
	conn := newTestConn(t)
	store := New(conn)
	ctx := context.Background()
	cell := Cell{RowID: "r1", TableID: 1, ColumnID: 1, DataType: typeconv.Text}

	store.Upsert(ctx, cell, "hi", false)
	ok, err := store.DeleteValue(ctx, cell)
	if err != nil {
		t.Fatalf("DeleteValue: %v", err)
	}
	if !ok {
		t.Fatal("expected DeleteValue to affect a row")
	}

	cur, err := store.ReadCurrent(ctx, cell, false)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if cur != nil {
		t.Errorf("expected no visible current row after delete, got %+v", cur)
	}

	curIncl, err := store.ReadCurrent(ctx, cell, true)
	if err != nil {
		t.Fatalf("ReadCurrent include deleted: %v", err)
	}
	if curIncl == nil || !curIncl.IsDeleted {
		t.Fatalf("expected tombstoned current row to remain readable, got %+v", curIncl)
	}

	hist, err := store.History(ctx, cell)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("expected soft delete to not write a new version, got %d entries", len(hist))
	}
}

func TestUndeleteValueRestoresWithoutNewVersion(t *testing.T) {
	conn := newTestConn(t)
	store := New(conn)
	ctx := context.Background()
	cell := Cell{RowID: "r1", TableID: 1, ColumnID: 1, DataType: typeconv.Text}

	store.Upsert(ctx, cell, "hi", false)
	store.DeleteValue(ctx, cell)

	ok, err := store.UndeleteValue(ctx, cell)
	if err != nil {
		t.Fatalf("UndeleteValue: %v", err)
	}
	if !ok {
		t.Fatal("expected UndeleteValue to affect a row")
	}

	cur, err := store.ReadCurrent(ctx, cell, false)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if cur == nil || cur.Value != "hi" {
		t.Fatalf("expected restored value 'hi', got %+v", cur)
	}

	hist, err := store.History(ctx, cell)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 {
		t.Errorf("expected undelete to not write a new version, got %d entries", len(hist))
	}
}

func TestUpsertAfterDeleteWritesNewVersion(t *testing.T) {
	conn := newTestConn(t)
	store := New(conn)
	ctx := context.Background()
	cell := Cell{RowID: "r1", TableID: 1, ColumnID: 1, DataType: typeconv.Text}

	store.Upsert(ctx, cell, "hi", false)
	store.DeleteValue(ctx, cell)

	v, err := store.Upsert(ctx, cell, "again", false)
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if v != 1 {
		t.Errorf("expected new version 1, got %d", v)
	}

	cur, err := store.ReadCurrent(ctx, cell, false)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if cur == nil || cur.Value != "again" || cur.IsDeleted {
		t.Fatalf("expected live current value 'again', got %+v", cur)
	}
}

func TestDeleteRowAndUndeleteRowAcrossColumns(t *testing.T) {
	conn := newTestConn(t)
	store := New(conn)
	ctx := context.Background()
	cols := []RowCell{
		{ColumnID: 1, DataType: typeconv.Text},
		{ColumnID: 2, DataType: typeconv.Integer},
	}
	store.Upsert(ctx, Cell{RowID: "r1", TableID: 1, ColumnID: 1, DataType: typeconv.Text}, "a", false)
	store.Upsert(ctx, Cell{RowID: "r1", TableID: 1, ColumnID: 2, DataType: typeconv.Integer}, 5, false)

	ok, err := store.DeleteRow(ctx, 1, "r1", cols)
	if err != nil || !ok {
		t.Fatalf("DeleteRow: ok=%v err=%v", ok, err)
	}
	exists, err := store.RowExists(ctx, 1, "r1", cols)
	if err != nil {
		t.Fatalf("RowExists: %v", err)
	}
	if exists {
		t.Error("expected row to not exist after DeleteRow")
	}

	ok, err = store.UndeleteRow(ctx, 1, "r1", cols)
	if err != nil || !ok {
		t.Fatalf("UndeleteRow: ok=%v err=%v", ok, err)
	}
	exists, err = store.RowExists(ctx, 1, "r1", cols)
	if err != nil {
		t.Fatalf("RowExists: %v", err)
	}
	if !exists {
		t.Error("expected row to exist again after UndeleteRow")
	}
}

func TestReadCurrentNilWhenAbsent(t *testing.T) {
	conn := newTestConn(t)
	store := New(conn)
	ctx := context.Background()
	cell := Cell{RowID: "missing", TableID: 1, ColumnID: 1, DataType: typeconv.Text}

	cur, err := store.ReadCurrent(ctx, cell, false)
	if err != nil {
		t.Fatalf("ReadCurrent: %v", err)
	}
	if cur != nil {
		t.Errorf("expected nil for absent cell, got %+v", cur)
	}
}
