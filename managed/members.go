package managed

import (
	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/handle"
)

// Field is cached metadata for one field of a Class.
type Field struct {
	class *Class
	def   engine.FieldDef
	typ   *Type
	cell  *handle.Cell
}

func newField(class *Class, def engine.FieldDef) *Field {
	f := &Field{
		class: class,
		def:   def,
		typ:   typeOf(def.Type),
		cell:  handle.NewCell(),
	}
	f.cell.Validate()
	return f
}

func (f *Field) Name() string  { return f.def.Name }
func (f *Field) Type() *Type   { return f.typ }
func (f *Field) Class() *Class { return f.class }

// Handle issues a liveness view of this field.
func (f *Field) Handle() handle.Handle[*Field] {
	return handle.Issue(f, f.cell)
}

// Property is cached metadata for one property of a Class. Accessors
// resolve lazily against the owning class's method cache.
type Property struct {
	class *Class
	def   engine.PropertyDef
	typ   *Type
	cell  *handle.Cell

	getter *Method
	setter *Method
}

func newProperty(class *Class, def engine.PropertyDef) *Property {
	p := &Property{
		class: class,
		def:   def,
		typ:   typeOf(def.Type),
		cell:  handle.NewCell(),
	}
	p.cell.Validate()
	return p
}

func (p *Property) Name() string  { return p.def.Name }
func (p *Property) Type() *Type   { return p.typ }
func (p *Property) Class() *Class { return p.class }

// Handle issues a liveness view of this property.
func (p *Property) Handle() handle.Handle[*Property] {
	return handle.Issue(p, p.cell)
}

// Getter resolves the get accessor method, or nil for a write-only
// property.
func (p *Property) Getter() *Method {
	if p.getter == nil && p.def.Getter != "" {
		p.getter = p.class.methodByName(p.def.Getter)
	}
	return p.getter
}

// Setter resolves the set accessor method, or nil for a read-only
// property.
func (p *Property) Setter() *Method {
	if p.setter == nil && p.def.Setter != "" {
		p.setter = p.class.methodByName(p.def.Setter)
	}
	return p.setter
}
