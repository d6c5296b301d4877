package handle

import "sync/atomic"

// Cell is the shared liveness flag owned by one wrapped entity.
// A cell starts invalid; the owner validates it once the backing runtime
// object is fully populated and invalidates it on teardown. Invalidation
// is one-directional unless the owner explicitly re-populates.
type Cell struct {
	alive atomic.Bool
}

// NewCell returns a cell in the invalid state.
func NewCell() *Cell {
	return &Cell{}
}

// Validate marks the entity live. Only the owning entity may call this.
func (c *Cell) Validate() {
	c.alive.Store(true)
}

// Invalidate marks the entity dead. Visible to every issued handle
// before the call returns.
func (c *Cell) Invalidate() {
	c.alive.Store(false)
}

// Alive reports the current liveness state.
func (c *Cell) Alive() bool {
	return c.alive.Load()
}

// Handle is an externally held, read-only view of an entity's liveness
// plus the entity itself. Any number of handles may observe one cell;
// a handle never outlives the cell's ability to report, so checking
// Valid never touches freed entity state.
//
// Callers must check Valid (or use Get) before every dereference of the
// wrapped entity. Accessing the entity while Valid reports false is a
// contract violation.
type Handle[T any] struct {
	entity T
	cell   *Cell
}

// Issue binds a new handle to an entity's cell. The handle reflects the
// entity's current validity immediately; no separate populate step is
// required for an already-valid entity.
func Issue[T any](entity T, cell *Cell) Handle[T] {
	return Handle[T]{entity: entity, cell: cell}
}

// Valid reports whether the wrapped entity is currently safe to access.
// The zero Handle is invalid.
func (h Handle[T]) Valid() bool {
	return h.cell != nil && h.cell.Alive()
}

// Get returns the wrapped entity when it is still valid.
// Returns the zero value and false after invalidation.
func (h Handle[T]) Get() (T, bool) {
	if !h.Valid() {
		var zero T
		return zero, false
	}
	return h.entity, true
}
