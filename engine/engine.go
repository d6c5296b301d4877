package engine

import "context"

// Value is a boxed argument or result crossing the runtime boundary.
// Supported boxes: nil, bool, int32, int64, uint32, uint64, float32,
// float64, string and ObjectRef.
type Value any

// ObjectRef is an opaque reference to one managed-heap instance, issued
// by the engine's reference table. The zero ref never resolves.
type ObjectRef uint64

// Resolver reports the current reference for one tracked object.
// Returns false once the target has been reclaimed.
type Resolver func() (ObjectRef, bool)

// DomainRef identifies one runtime domain within an engine.
type DomainRef uint32

// TypeDesc describes one type position in a signature.
type TypeDesc struct {
	Name    string
	Struct  bool
	Void    bool
	ByRef   bool
	Pointer bool
}

// Equals reports structural equality of two type descriptors.
func (t TypeDesc) Equals(other TypeDesc) bool {
	return t == other
}

// MethodDef describes one method of a type.
type MethodDef struct {
	Name       string
	Token      uint32
	Static     bool
	Params     []TypeDesc
	Return     TypeDesc
	Attributes []string
}

// FieldDef describes one field of a type.
type FieldDef struct {
	Name string
	Type TypeDesc
}

// PropertyDef describes one property and the names of its accessor methods.
// Getter or Setter may be empty for write-only/read-only properties.
type PropertyDef struct {
	Name   string
	Getter string
	Setter string
	Type   TypeDesc
}

// TypeDef is the engine's full description of one managed type.
type TypeDef struct {
	Namespace    string
	Name         string
	Size         uint32
	Alignment    uint32
	ValueType    bool
	Delegate     bool
	Enum         bool
	Nullable     bool
	Base         string
	Interfaces   []string
	Constructors [][]TypeDesc
	Methods      []MethodDef
	Fields       []FieldDef
	Properties   []PropertyDef
	Attributes   []string
}

// FullName returns "Namespace.Name", or just Name for the empty namespace.
func (d *TypeDef) FullName() string {
	if d.Namespace == "" {
		return d.Name
	}
	return d.Namespace + "." + d.Name
}

// MethodAddr addresses one method for invocation.
type MethodAddr struct {
	Image  string // image name the type was loaded from
	Type   string // full type name, "Namespace.Name"
	Method string
}

// ExceptionInfo is the structured description of a thrown managed object.
type ExceptionInfo struct {
	Message    string
	StackTrace string
	Source     string
	Class      string
	Namespace  string
	String     string // object.ToString rendering
}

// AllocatorVTable overrides the engine's default allocators. Nil entries
// fall back to the runtime default. Installed once at engine construction
// and immutable afterwards.
type AllocatorVTable struct {
	Malloc  func(size uint32) []byte
	Realloc func(mem []byte, size uint32) []byte
	Free    func(mem []byte)
	Calloc  func(count, size uint32) []byte
}

// Stats are point-in-time allocator/relocation counters with no
// consistency guarantee across calls.
type Stats struct {
	BytesAllocated uint64
	AllocationOps  uint64
	BytesMoved     uint64
	MoveOps        uint64
}

// Image is one opened managed binary.
type Image interface {
	// Name returns the path or display name the image was opened from.
	Name() string

	// Types enumerates every type defined in the image.
	Types(ctx context.Context) ([]TypeDef, error)

	// ReferencedTypes enumerates the full names of every external type
	// the image references.
	ReferencedTypes(ctx context.Context) ([]string, error)

	// Unload releases the image. The Image is unusable afterwards.
	Unload(ctx context.Context) error
}

// Engine is the boundary to the backing managed runtime. Everything above
// this interface is cache and lifetime bookkeeping; everything below it is
// the opaque runtime service.
type Engine interface {
	CreateDomain(ctx context.Context, name string) (DomainRef, error)
	ReleaseDomain(ctx context.Context, domain DomainRef) error

	// OpenImage opens a managed binary by path within a domain.
	OpenImage(ctx context.Context, domain DomainRef, path string) (Image, error)

	// NewInstance allocates a managed-heap instance of the named type.
	// A constructor throw is reported through the exception ref.
	NewInstance(ctx context.Context, domain DomainRef, typeName string, args []Value) (obj ObjectRef, exc ObjectRef, err error)

	// Invoke calls a method. A managed throw is reported through the
	// exception ref, never as a Go error; err is reserved for host-side
	// failures (unknown method, closed engine).
	Invoke(ctx context.Context, method MethodAddr, target ObjectRef, args []Value) (result Value, exc ObjectRef, err error)

	GetField(ctx context.Context, target ObjectRef, typeName, field string) (Value, error)
	SetField(ctx context.Context, target ObjectRef, typeName, field string, value Value) error

	// Pin, Ref and Weak establish a reference of the given strength and
	// return the resolver plus a release func. Pinned targets are never
	// relocated and resolve without an engine call; movable targets
	// re-resolve per access; weak targets may be collected.
	Pin(obj ObjectRef) (Resolver, func(), error)
	Ref(obj ObjectRef) (Resolver, func(), error)
	Weak(obj ObjectRef) (Resolver, func(), error)

	// TypeAssignable reports whether from can stand in for to, walking
	// the runtime's own base-class and interface relations.
	TypeAssignable(ctx context.Context, to, from string) (bool, error)

	// ExceptionDescriptor builds the structured description of a thrown
	// object.
	ExceptionDescriptor(ctx context.Context, exc ObjectRef) (*ExceptionInfo, error)

	// CollectGarbage runs a collection pass for the given generation and
	// blocks until it completes. Weakly referenced objects may become
	// invalid as a side effect.
	CollectGarbage(ctx context.Context, generation int) error
	MaxGCGeneration() int

	HeapSize() uint64
	UsedHeapSize() uint64
	Stats() Stats

	// RegisterNativeFunction exposes a host function to managed code.
	// Must be called before images that import it are instantiated.
	RegisterNativeFunction(name string, fn any) error

	Close(ctx context.Context) error
}
