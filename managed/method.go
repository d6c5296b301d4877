package managed

import (
	"context"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
	"github.com/wippyai/managed-runtime/handle"
)

// Method is cached metadata for one method of a Class.
type Method struct {
	class  *Class
	def    engine.MethodDef
	params []*Type
	ret    *Type
	cell   *handle.Cell
}

func newMethod(class *Class, def engine.MethodDef) *Method {
	m := &Method{
		class:  class,
		def:    def,
		params: make([]*Type, len(def.Params)),
		ret:    typeOf(def.Return),
		cell:   handle.NewCell(),
	}
	for i, p := range def.Params {
		m.params[i] = typeOf(p)
	}
	m.cell.Validate()
	return m
}

func (m *Method) Name() string  { return m.def.Name }
func (m *Method) Token() uint32 { return m.def.Token }
func (m *Method) Static() bool  { return m.def.Static }
func (m *Method) Class() *Class { return m.class }

// FullName returns "Namespace.Class::Method".
func (m *Method) FullName() string {
	return m.class.FullName() + "::" + m.def.Name
}

func (m *Method) ParamCount() int      { return len(m.params) }
func (m *Method) ParamTypes() []*Type  { return m.params }
func (m *Method) ReturnType() *Type    { return m.ret }
func (m *Method) Attributes() []string { return m.def.Attributes }

// Handle issues a liveness view of this method. The handle reports
// invalid once the owning class's reflection info is disposed.
func (m *Method) Handle() handle.Handle[*Method] {
	return handle.Issue(m, m.cell)
}

// MatchSignature reports whether the method's return and parameter
// types structurally equal the given descriptors, positionally.
func (m *Method) MatchSignature(ret *Type, params ...*Type) bool {
	if ret == nil || !m.ret.Equals(ret) {
		return false
	}
	return m.MatchParams(params...)
}

// MatchParams compares parameter types only.
func (m *Method) MatchParams(params ...*Type) bool {
	if len(params) != len(m.params) {
		return false
	}
	for i, p := range params {
		if p == nil || !m.params[i].Equals(p) {
			return false
		}
	}
	return true
}

// MatchNoParams reports whether the method takes no parameters.
func (m *Method) MatchNoParams() bool {
	return len(m.params) == 0
}

// Invoke calls the method on obj. A managed throw is returned as an
// Exception and dispatched to the Context's exception callbacks; err
// is reserved for host-side failures.
func (m *Method) Invoke(ctx context.Context, obj *Object, args ...engine.Value) (engine.Value, *Exception, error) {
	if m.def.Static {
		return m.InvokeStatic(ctx, args...)
	}
	if obj == nil {
		return nil, nil, errors.Usage(errors.PhaseInvoke, "instance method needs a target object")
	}
	target, err := obj.Ref()
	if err != nil {
		return nil, nil, err
	}
	return m.invoke(ctx, target, args)
}

// InvokeStatic calls the method with no target.
func (m *Method) InvokeStatic(ctx context.Context, args ...engine.Value) (engine.Value, *Exception, error) {
	if !m.def.Static {
		return nil, nil, errors.Usage(errors.PhaseInvoke, "method "+m.FullName()+" is not static")
	}
	return m.invoke(ctx, 0, args)
}

func (m *Method) invoke(ctx context.Context, target engine.ObjectRef, args []engine.Value) (engine.Value, *Exception, error) {
	asm := m.class.assembly
	addr := engine.MethodAddr{
		Image:  asm.image.Name(),
		Type:   m.class.FullName(),
		Method: m.def.Name,
	}
	result, excRef, err := asm.context.eng.Invoke(ctx, addr, target, args)
	if err != nil {
		return nil, nil, err
	}
	if excRef != 0 {
		exc, derr := asm.context.reportThrow(ctx, excRef, asm.Name())
		if derr != nil {
			return nil, nil, derr
		}
		return nil, exc, nil
	}
	return result, nil, nil
}
