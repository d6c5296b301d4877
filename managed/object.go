package managed

import (
	"context"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
	"github.com/wippyai/managed-runtime/handle"
)

// Strength is the reference-strength policy of an Object: how its
// backing managed-heap address is resolved and what the collector may
// do to the target.
type Strength int

const (
	// Pinned is a strong reference the collector never relocates; the
	// address resolves without a runtime call.
	Pinned Strength = iota
	// Movable is a strong reference that stays correct under a moving
	// collector; every access re-resolves the address.
	Movable
	// Weak does not keep the target alive; access after collection
	// fails instead of touching freed memory.
	Weak
)

func (s Strength) String() string {
	switch s {
	case Pinned:
		return "pinned"
	case Movable:
		return "movable"
	case Weak:
		return "weak"
	default:
		return "unknown"
	}
}

// Object wraps one managed-heap instance. The strength policy selects
// the resolver closure at construction; every member access goes
// through it, which is what keeps movable and weak wrappers correct
// under a collecting runtime.
type Object struct {
	class    *Class
	strength Strength
	resolve  engine.Resolver
	release  func()
	cell     *handle.Cell
	released bool
}

func newObject(class *Class, ref engine.ObjectRef, strength Strength) (*Object, error) {
	eng := class.assembly.context.eng
	var (
		resolve engine.Resolver
		release func()
		err     error
	)
	switch strength {
	case Pinned:
		resolve, release, err = eng.Pin(ref)
	case Movable:
		resolve, release, err = eng.Ref(ref)
	case Weak:
		resolve, release, err = eng.Weak(ref)
	default:
		err = errors.Usage(errors.PhaseInvoke, "unknown reference strength")
	}
	if err != nil {
		return nil, err
	}
	o := &Object{
		class:    class,
		strength: strength,
		resolve:  resolve,
		release:  release,
		cell:     handle.NewCell(),
	}
	o.cell.Validate()
	return o, nil
}

func (o *Object) Class() *Class      { return o.class }
func (o *Object) Strength() Strength { return o.strength }

// Handle issues a liveness view of this wrapper.
func (o *Object) Handle() handle.Handle[*Object] {
	return handle.Issue(o, o.cell)
}

// Ref resolves the current reference through the strength policy. A
// weak wrapper whose target was collected fails with a collected
// error rather than returning stale memory.
func (o *Object) Ref() (engine.ObjectRef, error) {
	if o.released {
		return 0, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	ref, ok := o.resolve()
	if !ok {
		o.cell.Invalidate()
		return 0, errors.Collected(o.class.FullName())
	}
	return ref, nil
}

// Alive reports whether the target currently resolves.
func (o *Object) Alive() bool {
	if o.released {
		return false
	}
	_, ok := o.resolve()
	return ok
}

// Release drops the wrapper's root on the target and invalidates every
// handle issued for it. Idempotent.
func (o *Object) Release() {
	if o.released {
		return
	}
	o.released = true
	o.cell.Invalidate()
	o.release()
}

// GetField reads a field through its cached metadata.
func (o *Object) GetField(ctx context.Context, field *Field) (engine.Value, error) {
	if field == nil {
		return nil, errors.Usage(errors.PhaseInvoke, "nil field")
	}
	ref, err := o.Ref()
	if err != nil {
		return nil, err
	}
	return o.class.assembly.context.eng.GetField(ctx, ref, o.class.FullName(), field.Name())
}

// SetField writes a field through its cached metadata.
func (o *Object) SetField(ctx context.Context, field *Field, value engine.Value) error {
	if field == nil {
		return errors.Usage(errors.PhaseInvoke, "nil field")
	}
	ref, err := o.Ref()
	if err != nil {
		return err
	}
	return o.class.assembly.context.eng.SetField(ctx, ref, o.class.FullName(), field.Name(), value)
}

// GetFieldByName looks the field up on Class first and fails with a
// not-found error when the class has no such field.
func (o *Object) GetFieldByName(ctx context.Context, name string) (engine.Value, error) {
	field := o.class.FindField(name)
	if field == nil {
		return nil, errors.NotFound(errors.PhaseInvoke, "field", o.class.FullName()+"."+name)
	}
	return o.GetField(ctx, field)
}

// SetFieldByName looks the field up on Class first.
func (o *Object) SetFieldByName(ctx context.Context, name string, value engine.Value) error {
	field := o.class.FindField(name)
	if field == nil {
		return errors.NotFound(errors.PhaseInvoke, "field", o.class.FullName()+"."+name)
	}
	return o.SetField(ctx, field, value)
}

// GetProperty invokes the property's get accessor.
func (o *Object) GetProperty(ctx context.Context, prop *Property) (engine.Value, *Exception, error) {
	if prop == nil {
		return nil, nil, errors.Usage(errors.PhaseInvoke, "nil property")
	}
	getter := prop.Getter()
	if getter == nil {
		return nil, nil, errors.NotFound(errors.PhaseInvoke, "get accessor", o.class.FullName()+"."+prop.Name())
	}
	return getter.Invoke(ctx, o)
}

// SetProperty invokes the property's set accessor.
func (o *Object) SetProperty(ctx context.Context, prop *Property, value engine.Value) (*Exception, error) {
	if prop == nil {
		return nil, errors.Usage(errors.PhaseInvoke, "nil property")
	}
	setter := prop.Setter()
	if setter == nil {
		return nil, errors.NotFound(errors.PhaseInvoke, "set accessor", o.class.FullName()+"."+prop.Name())
	}
	_, exc, err := setter.Invoke(ctx, o, value)
	return exc, err
}

// GetPropertyByName looks the property up on Class first.
func (o *Object) GetPropertyByName(ctx context.Context, name string) (engine.Value, *Exception, error) {
	prop := o.class.FindProperty(name)
	if prop == nil {
		return nil, nil, errors.NotFound(errors.PhaseInvoke, "property", o.class.FullName()+"."+name)
	}
	return o.GetProperty(ctx, prop)
}

// SetPropertyByName looks the property up on Class first.
func (o *Object) SetPropertyByName(ctx context.Context, name string, value engine.Value) (*Exception, error) {
	prop := o.class.FindProperty(name)
	if prop == nil {
		return nil, errors.NotFound(errors.PhaseInvoke, "property", o.class.FullName()+"."+name)
	}
	return o.SetProperty(ctx, prop, value)
}

// Invoke calls method on this object.
func (o *Object) Invoke(ctx context.Context, method *Method, args ...engine.Value) (engine.Value, *Exception, error) {
	if method == nil {
		return nil, nil, errors.Usage(errors.PhaseInvoke, "nil method")
	}
	return method.Invoke(ctx, o, args...)
}

// InvokeByName resolves the method on Class first.
func (o *Object) InvokeByName(ctx context.Context, name string, args ...engine.Value) (engine.Value, *Exception, error) {
	method := o.class.FindMethod(name)
	if method == nil {
		return nil, nil, errors.NotFound(errors.PhaseInvoke, "method", o.class.FullName()+"."+name)
	}
	return method.Invoke(ctx, o, args...)
}
