package managed

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
	"github.com/wippyai/managed-runtime/handle"
)

// Class is the cached reflection view of one managed type. Member
// collections populate lazily on first access and are disposed as a
// unit; disposal invalidates every handle issued for the class or its
// members.
type Class struct {
	assembly *Assembly
	def      engine.TypeDef
	cell     *handle.Cell

	populated  bool
	methods    []*Method
	fields     []*Field
	properties []*Property
}

func newClass(assembly *Assembly, def engine.TypeDef) *Class {
	c := &Class{
		assembly: assembly,
		def:      def,
		cell:     handle.NewCell(),
	}
	c.cell.Validate()
	return c
}

func (c *Class) Namespace() string { return c.def.Namespace }
func (c *Class) Name() string      { return c.def.Name }
func (c *Class) FullName() string  { return c.def.FullName() }

func (c *Class) DataSize() uint32  { return c.def.Size }
func (c *Class) Alignment() uint32 { return c.def.Alignment }

func (c *Class) NumConstructors() int { return len(c.def.Constructors) }

func (c *Class) IsValueClass() bool { return c.def.ValueType }
func (c *Class) IsDelegate() bool   { return c.def.Delegate }
func (c *Class) IsEnum() bool       { return c.def.Enum }
func (c *Class) IsNullable() bool   { return c.def.Nullable }

func (c *Class) Attributes() []string { return c.def.Attributes }

func (c *Class) Assembly() *Assembly { return c.assembly }

func (c *Class) Populated() bool { return c.populated }

// Handle issues a liveness view of this class.
func (c *Class) Handle() handle.Handle[*Class] {
	return handle.Issue(c, c.cell)
}

// PopulateReflectionInfo builds the method, field and property caches.
// Idempotent: a populated class is left untouched.
func (c *Class) PopulateReflectionInfo() {
	if c.populated {
		return
	}
	c.methods = make([]*Method, 0, len(c.def.Methods))
	for _, def := range c.def.Methods {
		c.methods = append(c.methods, newMethod(c, def))
	}
	c.fields = make([]*Field, 0, len(c.def.Fields))
	for _, def := range c.def.Fields {
		c.fields = append(c.fields, newField(c, def))
	}
	c.properties = make([]*Property, 0, len(c.def.Properties))
	for _, def := range c.def.Properties {
		c.properties = append(c.properties, newProperty(c, def))
	}
	c.populated = true
	c.cell.Validate()

	Logger().Debug("populated reflection info",
		zap.String("class", c.FullName()),
		zap.Int("methods", len(c.methods)),
		zap.Int("fields", len(c.fields)),
		zap.Int("properties", len(c.properties)))
}

// DisposeReflectionInfo invalidates every member handle and the class
// handle, then drops the caches. The class may be re-populated later.
func (c *Class) DisposeReflectionInfo() {
	for _, m := range c.methods {
		m.cell.Invalidate()
	}
	for _, f := range c.fields {
		f.cell.Invalidate()
	}
	for _, p := range c.properties {
		p.cell.Invalidate()
	}
	c.methods = nil
	c.fields = nil
	c.properties = nil
	c.populated = false
	c.cell.Invalidate()
}

// Methods returns the populated method cache, populating on first use.
func (c *Class) Methods() []*Method {
	c.PopulateReflectionInfo()
	return c.methods
}

// Fields returns the populated field cache, populating on first use.
func (c *Class) Fields() []*Field {
	c.PopulateReflectionInfo()
	return c.fields
}

// Properties returns the populated property cache, populating on first use.
func (c *Class) Properties() []*Property {
	c.PopulateReflectionInfo()
	return c.properties
}

// FindMethod looks a method up by exact name, populating the cache on
// first call. Returns nil when no method matches.
func (c *Class) FindMethod(name string) *Method {
	c.PopulateReflectionInfo()
	return c.methodByName(name)
}

func (c *Class) methodByName(name string) *Method {
	for _, m := range c.methods {
		if m.def.Name == name {
			return m
		}
	}
	return nil
}

// FindField looks a field up by exact name, populating the cache on
// first call. Returns nil when no field matches.
func (c *Class) FindField(name string) *Field {
	c.PopulateReflectionInfo()
	for _, f := range c.fields {
		if f.def.Name == name {
			return f
		}
	}
	return nil
}

// FindProperty looks a property up by exact name, populating the cache
// on first call. Returns nil when no property matches.
func (c *Class) FindProperty(name string) *Property {
	c.PopulateReflectionInfo()
	for _, p := range c.properties {
		if p.def.Name == name {
			return p
		}
	}
	return nil
}

// ImplementsInterface asks the runtime whether this class implements
// iface. Always authoritative regardless of cache state.
func (c *Class) ImplementsInterface(ctx context.Context, iface *Class) (bool, error) {
	if iface == nil {
		return false, errors.Usage(errors.PhaseReflect, "nil interface class")
	}
	return c.assembly.context.eng.TypeAssignable(ctx, iface.FullName(), c.FullName())
}

// DerivedFromClass asks the runtime whether this class derives from
// base. Always authoritative regardless of cache state.
func (c *Class) DerivedFromClass(ctx context.Context, base *Class) (bool, error) {
	if base == nil {
		return false, errors.Usage(errors.PhaseReflect, "nil base class")
	}
	return c.assembly.context.eng.TypeAssignable(ctx, base.FullName(), c.FullName())
}

// CreateInstance allocates a managed instance through the constructor
// whose parameter types equal signature, wrapping the result with the
// pinned reference strength. A constructor throw comes back as an
// Exception.
func (c *Class) CreateInstance(ctx context.Context, signature []*Type, args ...engine.Value) (*Object, *Exception, error) {
	return c.CreateInstanceWithStrength(ctx, Pinned, signature, args...)
}

// CreateInstanceWithStrength is CreateInstance with an explicit
// reference strength for the returned wrapper.
func (c *Class) CreateInstanceWithStrength(ctx context.Context, strength Strength, signature []*Type, args ...engine.Value) (*Object, *Exception, error) {
	if !c.matchConstructor(signature) {
		return nil, nil, errors.SignatureMismatch(c.FullName(), ".ctor", len(signature))
	}

	cctx := c.assembly.context
	ref, excRef, err := cctx.eng.NewInstance(ctx, cctx.domain, c.FullName(), args)
	if err != nil {
		return nil, nil, errors.Instantiation(c.FullName(), err)
	}
	if excRef != 0 {
		exc, derr := cctx.reportThrow(ctx, excRef, c.assembly.Name())
		if derr != nil {
			return nil, nil, derr
		}
		return nil, exc, nil
	}
	obj, err := newObject(c, ref, strength)
	if err != nil {
		return nil, nil, err
	}
	return obj, nil, nil
}

func (c *Class) matchConstructor(signature []*Type) bool {
	for _, ctor := range c.def.Constructors {
		if len(ctor) != len(signature) {
			continue
		}
		match := true
		for i, want := range signature {
			if want == nil || !want.descriptor().Equals(ctor[i]) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
