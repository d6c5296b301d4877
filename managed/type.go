package managed

import "github.com/wippyai/managed-runtime/engine"

// Type is an immutable descriptor of one type position in a managed
// signature. Types are owned by whichever Method or Class produced
// them and are compared structurally.
type Type struct {
	desc engine.TypeDesc
}

func typeOf(desc engine.TypeDesc) *Type {
	return &Type{desc: desc}
}

// NewType builds a descriptor for a named type.
func NewType(name string) *Type {
	return &Type{desc: engine.TypeDesc{Name: name}}
}

func (t *Type) Name() string { return t.desc.Name }

func (t *Type) IsStruct() bool  { return t.desc.Struct }
func (t *Type) IsVoid() bool    { return t.desc.Void }
func (t *Type) IsByRef() bool   { return t.desc.ByRef }
func (t *Type) IsPointer() bool { return t.desc.Pointer }

// Primitive-kind predicates over the wire type names.
func (t *Type) IsBoolean() bool { return t.desc.Name == "bool" }
func (t *Type) IsChar() bool    { return t.desc.Name == "char" }
func (t *Type) IsInt32() bool   { return t.desc.Name == "s32" }
func (t *Type) IsInt64() bool   { return t.desc.Name == "s64" }
func (t *Type) IsUInt32() bool  { return t.desc.Name == "u32" }
func (t *Type) IsUInt64() bool  { return t.desc.Name == "u64" }
func (t *Type) IsFloat() bool   { return t.desc.Name == "f32" }
func (t *Type) IsDouble() bool  { return t.desc.Name == "f64" }
func (t *Type) IsString() bool  { return t.desc.Name == "string" }

// Equals reports structural equality. A nil other never matches.
func (t *Type) Equals(other *Type) bool {
	if other == nil {
		return false
	}
	return t.desc.Equals(other.desc)
}

func (t *Type) descriptor() engine.TypeDesc { return t.desc }
