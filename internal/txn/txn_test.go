package txn

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/russellromney/synthdb/internal/backend"
)

func newConn(t *testing.T) *backend.Connection {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := backend.Connect(path)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	conn.Execute(context.Background(), `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	return conn
}

func TestRunCommitsOnSuccess(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()

	err := Run(ctx, conn, func(ctx context.Context) error {
		_, err := conn.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'a')`)
		return err
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rows, err := conn.FetchAll(ctx, `SELECT * FROM widgets`)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected committed row to persist, got %d rows", len(rows))
	}
}

func TestRunRollsBackOnError(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()
	sentinel := errors.New("boom")

	err := Run(ctx, conn, func(ctx context.Context) error {
		conn.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'a')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	rows, err := conn.FetchAll(ctx, `SELECT * FROM widgets`)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected rolled-back insert to not persist, got %d rows", len(rows))
	}
	if conn.InTransaction() {
		t.Error("expected no open transaction after Run returns")
	}
}

func TestRunRollsBackOnPanic(t *testing.T) {
	conn := newConn(t)
	ctx := context.Background()

	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic to propagate out of Run")
		}
		rows, err := conn.FetchAll(ctx, `SELECT * FROM widgets`)
		if err != nil {
			t.Fatalf("FetchAll: %v", err)
		}
		if len(rows) != 0 {
			t.Errorf("expected panic path to roll back, got %d rows", len(rows))
		}
	}()

	Run(ctx, conn, func(ctx context.Context) error {
		conn.Execute(ctx, `INSERT INTO widgets (id, name) VALUES (1, 'a')`)
		panic("deliberate")
	})
}
