// Package idgen generates the opaque row identities the versioned cell
// store uses as the first element of the (row_id, table_id, column_id)
// cell key. Row IDs are produced client-side with no database round
// trip, mirroring the teacher's preference for collision-resistant IDs
// that don't depend on a sequence held by the engine.
package idgen

import "github.com/google/uuid"

// NewRowID returns a fresh collision-resistant row identifier.
func NewRowID() string {
	return uuid.NewString()
}

// Valid reports whether s looks like an ID this package could have
// generated. Explicit caller-supplied IDs are never required to satisfy
// this (spec §3.2: callers MAY supply explicit IDs of their own shape),
// so this is advisory only and not used to reject caller input.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
