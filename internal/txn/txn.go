// Package txn is the Transaction Coordinator (spec §5): a scoped
// acquisition of a connection's transaction that commits on normal exit
// and rolls back on any error path or panic, the generalization of the
// teacher's RunInTransaction pattern (storage.Transaction, BEGIN
// IMMEDIATE) to SynthDB's cell/metadata operations.
package txn

import (
	"context"

	"github.com/russellromney/synthdb/internal/backend"
)

// Run opens a transaction on conn, invokes fn, and commits if fn
// returns nil or rolls back otherwise — including when fn panics, in
// which case the panic is re-raised after rollback so callers still see
// it.
func Run(ctx context.Context, conn *backend.Connection, fn func(ctx context.Context) error) (err error) {
	if err := conn.Begin(ctx); err != nil {
		return err
	}

	committed := false
	defer func() {
		if !committed {
			_ = conn.Rollback()
		}
	}()

	defer func() {
		if r := recover(); r != nil {
			_ = conn.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		return err
	}

	if err := conn.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
