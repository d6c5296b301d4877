package enginetest

import (
	"context"
	"sync"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
)

// Object is the in-memory state of one live instance.
type Object struct {
	Class  string
	Fields map[string]engine.Value

	data []byte
	exc  *engine.ExceptionInfo
}

// Throw signals a managed exception from a method body.
type Throw struct {
	Message   string
	Source    string
	Class     string
	Namespace string
}

// MethodBody implements one method. A non-nil Throw becomes an exception
// object on the engine heap; a declared method with no body returns the
// zero value of its return type.
type MethodBody func(target *Object, args []engine.Value) (engine.Value, *Throw)

// ImageDef describes one registered image.
type ImageDef struct {
	Types      []engine.TypeDef
	Referenced []string
	// Bodies maps "Full.Type#method" (and "#.ctor") to implementations.
	Bodies map[string]MethodBody
}

type registeredImage struct {
	def ImageDef
}

// testDomain tracks which registered images a domain has opened, so
// type and body resolution never crosses domain boundaries.
type testDomain struct {
	name   string
	opened map[string]ImageDef
}

type openImage struct {
	engine   *Engine
	path     string
	def      ImageDef
	unloaded bool
}

// Config holds construction options.
type Config struct {
	Allocator    *engine.AllocatorVTable
	HeapCapacity uint64
	MaxGen       int
}

// Engine is a scriptable in-memory implementation of engine.Engine with
// deterministic collection: any object holding no pin and no movable
// root is reclaimed on the next pass, so weak-reference behavior is
// exactly testable.
type Engine struct {
	vt   *vtable
	refs *engine.RefTable

	mu         sync.Mutex
	images     map[string]*registeredImage
	domains    map[engine.DomainRef]*testDomain
	nextDomain engine.DomainRef
	natives    map[string]any
	capacity   uint64
	maxGen     int
	closed     bool
}

// New creates an engine with default configuration.
func New() *Engine {
	return NewWithConfig(nil)
}

// NewWithConfig creates an engine; nil cfg uses defaults.
func NewWithConfig(cfg *Config) *Engine {
	capacity := uint64(64 << 20)
	maxGen := 2
	var vt *engine.AllocatorVTable
	if cfg != nil {
		if cfg.HeapCapacity > 0 {
			capacity = cfg.HeapCapacity
		}
		if cfg.MaxGen > 0 {
			maxGen = cfg.MaxGen
		}
		vt = cfg.Allocator
	}
	return &Engine{
		refs:     engine.NewRefTable(),
		images:   make(map[string]*registeredImage),
		domains:  make(map[engine.DomainRef]*testDomain),
		natives:  make(map[string]any),
		capacity: capacity,
		maxGen:   maxGen,
		vt:       newVTable(vt),
	}
}

// AddImage registers an image definition under a path so OpenImage can
// resolve it. Call before loading.
func (e *Engine) AddImage(path string, def ImageDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.images[path] = &registeredImage{def: def}
}

// Refs exposes the engine's reference table.
func (e *Engine) Refs() *engine.RefTable {
	return e.refs
}

func (e *Engine) CreateDomain(ctx context.Context, name string) (engine.DomainRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, errors.NotInitialized(errors.PhaseSystem, "engine")
	}
	e.nextDomain++
	e.domains[e.nextDomain] = &testDomain{name: name, opened: make(map[string]ImageDef)}
	return e.nextDomain, nil
}

func (e *Engine) ReleaseDomain(ctx context.Context, domain engine.DomainRef) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.domains[domain]; !ok {
		return errors.NotFound(errors.PhaseSystem, "domain", "")
	}
	delete(e.domains, domain)
	return nil
}

func (e *Engine) OpenImage(ctx context.Context, domain engine.DomainRef, path string) (engine.Image, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "domain", "")
	}
	reg, ok := e.images[path]
	if !ok {
		return nil, errors.Load("open image "+path, errors.NotFound(errors.PhaseLoad, "image", path))
	}
	d.opened[path] = reg.def
	return &openImage{engine: e, path: path, def: reg.def}, nil
}

// findType resolves a full type name inside one domain, searching only
// the images that domain has opened.
func (e *Engine) findType(domain engine.DomainRef, fullName string) *engine.TypeDef {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil
	}
	for _, def := range d.opened {
		for i := range def.Types {
			if def.Types[i].FullName() == fullName {
				return &def.Types[i]
			}
		}
	}
	return nil
}

// registeredType resolves a full type name across every registered
// image. Inheritance metadata is identical wherever an image is
// opened, so assignability checks may use the registry directly.
func (e *Engine) registeredType(fullName string) *engine.TypeDef {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, reg := range e.images {
		for i := range reg.def.Types {
			if reg.def.Types[i].FullName() == fullName {
				return &reg.def.Types[i]
			}
		}
	}
	return nil
}

func (e *Engine) body(image, typeName, method string) (MethodBody, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	reg, ok := e.images[image]
	if !ok {
		return nil, false
	}
	b, ok := reg.def.Bodies[typeName+"#"+method]
	return b, ok
}

func (e *Engine) NewInstance(ctx context.Context, domain engine.DomainRef, typeName string, args []engine.Value) (engine.ObjectRef, engine.ObjectRef, error) {
	e.mu.Lock()
	_, ok := e.domains[domain]
	e.mu.Unlock()
	if !ok {
		return 0, 0, errors.NotFound(errors.PhaseInvoke, "domain", "")
	}
	def := e.findType(domain, typeName)
	if def == nil {
		return 0, 0, errors.NotFound(errors.PhaseInvoke, "type", typeName)
	}

	obj := &Object{
		Class:  typeName,
		Fields: make(map[string]engine.Value, len(def.Fields)),
		data:   e.vt.malloc(def.Size),
	}
	for _, f := range def.Fields {
		obj.Fields[f.Name] = zeroValue(f.Type)
	}

	if body := e.findBody(domain, typeName, ".ctor"); body != nil {
		if _, thrown := body(obj, args); thrown != nil {
			e.vt.free(obj.data)
			return 0, e.throwObject(typeName, thrown), nil
		}
	}

	ref := e.refs.Create(typeName, def.Size, obj)
	return ref, 0, nil
}

// findBody searches the images a domain has opened for a body.
func (e *Engine) findBody(domain engine.DomainRef, typeName, method string) MethodBody {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil
	}
	for _, def := range d.opened {
		if b, ok := def.Bodies[typeName+"#"+method]; ok {
			return b
		}
	}
	return nil
}

func (e *Engine) Invoke(ctx context.Context, method engine.MethodAddr, target engine.ObjectRef, args []engine.Value) (engine.Value, engine.ObjectRef, error) {
	e.mu.Lock()
	reg, ok := e.images[method.Image]
	e.mu.Unlock()
	if !ok {
		return nil, 0, errors.NotFound(errors.PhaseInvoke, "image", method.Image)
	}

	var def *engine.MethodDef
	for i := range reg.def.Types {
		t := &reg.def.Types[i]
		if t.FullName() != method.Type {
			continue
		}
		for j := range t.Methods {
			if t.Methods[j].Name == method.Method {
				def = &t.Methods[j]
			}
		}
	}
	if def == nil {
		return nil, 0, errors.NotFound(errors.PhaseInvoke, "method", method.Type+"."+method.Method)
	}

	var obj *Object
	if !def.Static {
		v, ok := e.refs.Get(target)
		if !ok {
			return nil, 0, errors.InvalidHandle(errors.PhaseInvoke, "object")
		}
		obj = v.(*Object)
	}

	body, _ := e.body(method.Image, method.Type, method.Method)
	if body == nil {
		return zeroValue(def.Return), 0, nil
	}
	result, thrown := body(obj, args)
	if thrown != nil {
		return nil, e.throwObject(method.Type, thrown), nil
	}
	return result, 0, nil
}

func (e *Engine) throwObject(source string, thrown *Throw) engine.ObjectRef {
	class := thrown.Class
	if class == "" {
		class = "Exception"
	}
	ns := thrown.Namespace
	if ns == "" {
		ns = "System"
	}
	src := thrown.Source
	if src == "" {
		src = source
	}
	full := ns + "." + class
	obj := &Object{
		Class: full,
		exc: &engine.ExceptionInfo{
			Message:    thrown.Message,
			StackTrace: "at " + src,
			Source:     src,
			Class:      class,
			Namespace:  ns,
			String:     full + ": " + thrown.Message,
		},
	}
	return e.refs.Create(full, 0, obj)
}

func (e *Engine) GetField(ctx context.Context, target engine.ObjectRef, typeName, field string) (engine.Value, error) {
	v, ok := e.refs.Get(target)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	obj := v.(*Object)
	value, ok := obj.Fields[field]
	if !ok {
		return nil, errors.NotFound(errors.PhaseInvoke, "field", field)
	}
	return value, nil
}

func (e *Engine) SetField(ctx context.Context, target engine.ObjectRef, typeName, field string, value engine.Value) error {
	v, ok := e.refs.Get(target)
	if !ok {
		return errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	obj := v.(*Object)
	if _, ok := obj.Fields[field]; !ok {
		return errors.NotFound(errors.PhaseInvoke, "field", field)
	}
	obj.Fields[field] = value
	return nil
}

func (e *Engine) Pin(obj engine.ObjectRef) (engine.Resolver, func(), error) {
	resolve, release, ok := e.refs.PinResolver(obj)
	if !ok {
		return nil, nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	return resolve, release, nil
}

func (e *Engine) Ref(obj engine.ObjectRef) (engine.Resolver, func(), error) {
	resolve, release, ok := e.refs.RefResolver(obj)
	if !ok {
		return nil, nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	return resolve, release, nil
}

func (e *Engine) Weak(obj engine.ObjectRef) (engine.Resolver, func(), error) {
	resolve, release, ok := e.refs.WeakResolver(obj)
	if !ok {
		return nil, nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	return resolve, release, nil
}

func (e *Engine) TypeAssignable(ctx context.Context, to, from string) (bool, error) {
	if to == from {
		return true, nil
	}
	seen := make(map[string]bool)
	cur := from
	for cur != "" && !seen[cur] {
		seen[cur] = true
		def := e.registeredType(cur)
		if def == nil {
			return false, nil
		}
		for _, iface := range def.Interfaces {
			if iface == to {
				return true, nil
			}
		}
		if def.Base == to {
			return true, nil
		}
		cur = def.Base
	}
	return false, nil
}

func (e *Engine) ExceptionDescriptor(ctx context.Context, exc engine.ObjectRef) (*engine.ExceptionInfo, error) {
	v, ok := e.refs.Get(exc)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseInvoke, "exception")
	}
	obj := v.(*Object)
	if obj.exc == nil {
		return nil, errors.NotFound(errors.PhaseInvoke, "exception descriptor", obj.Class)
	}
	return obj.exc, nil
}

func (e *Engine) CollectGarbage(ctx context.Context, generation int) error {
	if generation < 0 || generation > e.maxGen {
		return errors.Usage(errors.PhaseGC, "generation out of range")
	}
	e.refs.Collect(func(_ string, value any) {
		if obj, ok := value.(*Object); ok {
			e.vt.free(obj.data)
		}
	})
	// Survivors compact to the start of the heap.
	if live := e.refs.LiveBytes(); live > 0 {
		e.vt.recordMove(live)
	}
	return nil
}

func (e *Engine) MaxGCGeneration() int {
	return e.maxGen
}

func (e *Engine) HeapSize() uint64 {
	return e.capacity
}

func (e *Engine) UsedHeapSize() uint64 {
	return e.refs.LiveBytes()
}

func (e *Engine) Stats() engine.Stats {
	return e.vt.snapshot()
}

func (e *Engine) RegisterNativeFunction(name string, fn any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.natives[name]; exists {
		return errors.Registration(name, errors.Usage(errors.PhaseHost, "duplicate registration"))
	}
	e.natives[name] = fn
	return nil
}

// Native resolves a registered native function for method bodies.
func (e *Engine) Native(name string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn, ok := e.natives[name]
	return fn, ok
}

func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.refs.Close()
	return nil
}

func (img *openImage) Name() string {
	return img.path
}

func (img *openImage) Types(ctx context.Context) ([]engine.TypeDef, error) {
	if img.unloaded {
		return nil, errors.NotInitialized(errors.PhaseReflect, "image")
	}
	out := make([]engine.TypeDef, len(img.def.Types))
	copy(out, img.def.Types)
	return out, nil
}

func (img *openImage) ReferencedTypes(ctx context.Context) ([]string, error) {
	if img.unloaded {
		return nil, errors.NotInitialized(errors.PhaseReflect, "image")
	}
	out := make([]string, len(img.def.Referenced))
	copy(out, img.def.Referenced)
	return out, nil
}

func (img *openImage) Unload(ctx context.Context) error {
	img.unloaded = true
	return nil
}

func zeroValue(t engine.TypeDesc) engine.Value {
	if t.Void {
		return nil
	}
	switch t.Name {
	case "bool":
		return false
	case "s8", "s16", "s32":
		return int32(0)
	case "u8", "u16", "u32", "char":
		return uint32(0)
	case "s64":
		return int64(0)
	case "u64":
		return uint64(0)
	case "f32":
		return float32(0)
	case "f64":
		return float64(0)
	case "string":
		return ""
	default:
		return engine.ObjectRef(0)
	}
}
