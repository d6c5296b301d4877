// Package errors provides structured error types for the managed-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes the owning class and member names plus a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInvoke, errors.KindSignatureMismatch).
//		Class("Game.Player").
//		Member("TakeDamage").
//		Detail("no overload takes 3 parameters").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseReflect, "method", "TakeDamage")
//	err := errors.Collected("Game.Player")
//
// All errors implement the standard error interface and support errors.Is/As.
//
// Managed exceptions are not errors in this taxonomy: a method that throws
// inside the runtime returns an exception descriptor through its result,
// never a Go error.
package errors
