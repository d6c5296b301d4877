package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad    Phase = "load"    // image/assembly loading
	PhaseReflect Phase = "reflect" // reflection cache population
	PhaseInvoke  Phase = "invoke"  // managed method invocation
	PhaseGC      Phase = "gc"      // garbage collection requests
	PhaseContext Phase = "context" // execution context lifecycle
	PhaseSystem  Phase = "system"  // runtime system lifecycle
	PhaseParse   Phase = "parse"   // metadata/config parsing
	PhaseHost    Phase = "host"    // native function registration
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidHandle     Kind = "invalid_handle"
	KindCollected         Kind = "collected"
	KindInvalidData       Kind = "invalid_data"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindWhitelistDenied   Kind = "whitelist_denied"
	KindUsage             Kind = "usage"
	KindRegistration      Kind = "registration"
	KindUnsupported       Kind = "unsupported"
	KindInstantiation     Kind = "instantiation"
)

// Error is the structured error type used throughout the embedding layer
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Class  string
	Member string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Class != "" {
		b.WriteString(" at ")
		b.WriteString(e.Class)
		if e.Member != "" {
			b.WriteByte('.')
			b.WriteString(e.Member)
		}
	} else if e.Member != "" {
		b.WriteString(" at ")
		b.WriteString(e.Member)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Class sets the owning class name
func (b *Builder) Class(name string) *Builder {
	b.err.Class = name
	return b
}

// Member sets the member (method/field/property) name
func (b *Builder) Member(name string) *Builder {
	b.err.Member = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error for an unready component
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// InvalidHandle creates an invalid-handle-use error
func InvalidHandle(phase Phase, entity string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("access through invalidated %s handle", entity),
	}
}

// Collected creates an error for dereferencing a weakly held object
// whose target was reclaimed by the collector
func Collected(class string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindCollected,
		Class:  class,
		Detail: "weak reference target was collected",
	}
}

// SignatureMismatch creates a constructor/method signature mismatch error
func SignatureMismatch(class, member string, want int) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindSignatureMismatch,
		Class:  class,
		Member: member,
		Detail: fmt.Sprintf("no overload takes %d parameter(s)", want),
	}
}

// WhitelistDenied creates a sandbox violation error
func WhitelistDenied(assembly, typeName string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindWhitelistDenied,
		Detail: fmt.Sprintf("assembly %q references disallowed type %q", assembly, typeName),
	}
}

// Usage creates a caller contract violation error
func Usage(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUsage,
		Detail: detail,
	}
}

// Registration creates a native function registration error
func Registration(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s", name),
		Cause:  cause,
	}
}

// Instantiation creates an object instantiation error
func Instantiation(class string, cause error) *Error {
	return &Error{
		Phase: PhaseInvoke,
		Kind:  KindInstantiation,
		Class: class,
		Cause: cause,
	}
}

// Load creates an image loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a metadata parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
