// Package handle implements the liveness tracking that lets externally
// held references observe runtime-driven teardown without dangling access.
//
// Every wrapped entity (class, method, field, property, object, assembly)
// owns exactly one Cell. Issued handles share read-only views of that
// cell, so arbitrarily many observers can coexist and cascading
// invalidation reduces to flipping the owner's cell.
//
// The flag is atomic so that a handle held on another goroutine observes
// invalidation promptly, but entity access itself follows the library's
// single-logical-owner model and is not synchronized here.
package handle
