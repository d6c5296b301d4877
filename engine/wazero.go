package engine

import (
	"context"
	"math"
	"os"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/managed-runtime/errors"
)

const (
	// CabiRealloc is the guest allocator export used to place string
	// arguments into linear memory.
	CabiRealloc = "cabi_realloc"

	metadataSuffix = ".wit"
)

// WazeroEngine implements Engine on top of a wazero runtime. A managed
// image is a core wasm module plus a WIT metadata sidecar describing its
// type surface; methods dispatch to exports named "<type>#<method>".
type WazeroEngine struct {
	runtime wazero.Runtime
	alloc   *allocator
	refs    *RefTable

	mu         sync.Mutex
	domains    map[DomainRef]*wazeroDomain
	nextDomain DomainRef
	natives    map[string]map[string]any
	hostBuilt  map[string]bool
	scratch    []byte
	closed     bool
}

type wazeroDomain struct {
	name   string
	images map[string]*wazeroImage
}

// wazeroObject is the table value for one live guest instance.
// rep is the guest-side pointer; 0 for host-only instances. The field
// bag backs types whose image exports no field accessors.
type wazeroObject struct {
	image  *wazeroImage
	fields map[string]Value
	exc    *ExceptionInfo
	rep    uint32
	class  string
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps instance memory in 64KB pages. 0 = default.
	MemoryLimitPages uint32

	// Allocator overrides the engine allocators. Nil entries use the
	// runtime default.
	Allocator *AllocatorVTable
}

// NewWazeroEngine creates a wazero-backed engine. The allocator vtable is
// installed here, once, for the life of the engine.
func NewWazeroEngine(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	var vt *AllocatorVTable
	if cfg != nil {
		vt = cfg.Allocator
	}

	return &WazeroEngine{
		runtime:   wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		alloc:     newAllocator(vt),
		refs:      NewRefTable(),
		domains:   make(map[DomainRef]*wazeroDomain),
		natives:   make(map[string]map[string]any),
		hostBuilt: make(map[string]bool),
	}, nil
}

// Refs exposes the engine's reference table for lifecycle observers.
func (e *WazeroEngine) Refs() *RefTable {
	return e.refs
}

func (e *WazeroEngine) CreateDomain(ctx context.Context, name string) (DomainRef, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return 0, errors.NotInitialized(errors.PhaseSystem, "engine")
	}
	e.nextDomain++
	ref := e.nextDomain
	e.domains[ref] = &wazeroDomain{name: name, images: make(map[string]*wazeroImage)}
	Logger().Debug("domain created", zap.String("name", name), zap.Uint32("ref", uint32(ref)))
	return ref, nil
}

func (e *WazeroEngine) ReleaseDomain(ctx context.Context, domain DomainRef) error {
	e.mu.Lock()
	d, ok := e.domains[domain]
	delete(e.domains, domain)
	e.mu.Unlock()

	if !ok {
		return errors.NotFound(errors.PhaseSystem, "domain", "")
	}
	for _, img := range d.images {
		_ = img.Unload(ctx)
	}
	return nil
}

func (e *WazeroEngine) OpenImage(ctx context.Context, domain DomainRef, path string) (Image, error) {
	e.mu.Lock()
	d, ok := e.domains[domain]
	e.mu.Unlock()
	if !ok {
		return nil, errors.NotFound(errors.PhaseLoad, "domain", "")
	}

	wasmBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("open image "+path, err)
	}
	witText, err := os.ReadFile(path + metadataSuffix)
	if err != nil {
		return nil, errors.Load("open metadata "+path+metadataSuffix, err)
	}

	defs, refs, err := ParseMetadata(string(witText))
	if err != nil {
		return nil, err
	}

	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile image "+path, err)
	}

	img := &wazeroImage{
		engine:     e,
		path:       path,
		defs:       defs,
		referenced: refs,
		compiled:   compiled,
	}
	e.mu.Lock()
	d.images[path] = img
	e.mu.Unlock()

	Logger().Debug("image opened", zap.String("path", path), zap.Int("types", len(defs)))
	return img, nil
}

// findImage resolves an image by path across all domains.
func (e *WazeroEngine) findImage(name string) *wazeroImage {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.domains {
		if img, ok := d.images[name]; ok {
			return img
		}
	}
	return nil
}

// findType resolves a full type name to its definition and owning image,
// searching only the images opened under the given domain. Domains are
// isolated: a type loaded in one never resolves in another.
func (e *WazeroEngine) findType(domain DomainRef, fullName string) (*wazeroImage, *TypeDef) {
	e.mu.Lock()
	defer e.mu.Unlock()
	d, ok := e.domains[domain]
	if !ok {
		return nil, nil
	}
	for _, img := range d.images {
		if img.unloaded {
			continue
		}
		for i := range img.defs {
			if img.defs[i].FullName() == fullName {
				return img, &img.defs[i]
			}
		}
	}
	return nil, nil
}

// typeMeta resolves a full type name across every open image. Only used
// for inheritance metadata, which is identical wherever an image is
// opened.
func (e *WazeroEngine) typeMeta(fullName string) *TypeDef {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range e.domains {
		for _, img := range d.images {
			if img.unloaded {
				continue
			}
			for i := range img.defs {
				if img.defs[i].FullName() == fullName {
					return &img.defs[i]
				}
			}
		}
	}
	return nil
}

func exportName(typeName, method string) string {
	return typeName + "#" + method
}

func (e *WazeroEngine) NewInstance(ctx context.Context, domain DomainRef, typeName string, args []Value) (ObjectRef, ObjectRef, error) {
	img, def := e.findType(domain, typeName)
	if def == nil {
		return 0, 0, errors.NotFound(errors.PhaseInvoke, "type", typeName)
	}

	mod, err := img.instance(ctx)
	if err != nil {
		return 0, 0, err
	}

	rep := uint32(0)
	if ctor := mod.ExportedFunction(exportName(typeName, ".ctor")); ctor != nil {
		stack, err := e.lowerArgs(ctx, mod, args)
		if err != nil {
			return 0, 0, err
		}
		results, callErr := ctor.Call(ctx, stack...)
		if callErr != nil {
			return 0, e.trapObject(typeName, callErr), nil
		}
		if len(results) > 0 {
			rep = uint32(results[0])
		}
	}

	obj := &wazeroObject{image: img, rep: rep, class: typeName, fields: make(map[string]Value)}
	ref := e.refs.Create(typeName, def.Size, obj)
	return ref, 0, nil
}

func (e *WazeroEngine) Invoke(ctx context.Context, method MethodAddr, target ObjectRef, args []Value) (Value, ObjectRef, error) {
	img := e.findImage(method.Image)
	if img == nil {
		return nil, 0, errors.NotFound(errors.PhaseInvoke, "image", method.Image)
	}
	def := img.methodDef(method.Type, method.Method)
	if def == nil {
		return nil, 0, errors.NotFound(errors.PhaseInvoke, "method", method.Type+"."+method.Method)
	}

	mod, err := img.instance(ctx)
	if err != nil {
		return nil, 0, err
	}
	fn := mod.ExportedFunction(exportName(method.Type, method.Method))
	if fn == nil {
		return nil, 0, errors.NotFound(errors.PhaseInvoke, "export", exportName(method.Type, method.Method))
	}

	var stack []uint64
	if !def.Static {
		obj, ok := e.object(target)
		if !ok {
			return nil, 0, errors.InvalidHandle(errors.PhaseInvoke, "object")
		}
		stack = append(stack, uint64(obj.rep))
	}
	lowered, err := e.lowerArgs(ctx, mod, args)
	if err != nil {
		return nil, 0, err
	}
	stack = append(stack, lowered...)

	results, callErr := fn.Call(ctx, stack...)
	if callErr != nil {
		return nil, e.trapObject(method.Type, callErr), nil
	}

	value, err := e.lift(mod, def.Return, results)
	if err != nil {
		return nil, 0, err
	}
	return value, 0, nil
}

func (e *WazeroEngine) GetField(ctx context.Context, target ObjectRef, typeName, field string) (Value, error) {
	obj, ok := e.object(target)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}

	if obj.image != nil {
		if mod, err := obj.image.instance(ctx); err == nil {
			if fn := mod.ExportedFunction(exportName(typeName, "get-"+field)); fn != nil {
				results, callErr := fn.Call(ctx, uint64(obj.rep))
				if callErr != nil {
					return nil, errors.Wrap(errors.PhaseInvoke, errors.KindInvalidData, callErr, "field accessor trap")
				}
				fd := obj.image.fieldDef(typeName, field)
				if fd == nil {
					return nil, errors.NotFound(errors.PhaseInvoke, "field", field)
				}
				return e.lift(mod, fd.Type, results)
			}
		}
	}

	value, ok := obj.fields[field]
	if !ok {
		return nil, errors.NotFound(errors.PhaseInvoke, "field", field)
	}
	return value, nil
}

func (e *WazeroEngine) SetField(ctx context.Context, target ObjectRef, typeName, field string, value Value) error {
	obj, ok := e.object(target)
	if !ok {
		return errors.InvalidHandle(errors.PhaseInvoke, "object")
	}

	if obj.image != nil {
		if mod, err := obj.image.instance(ctx); err == nil {
			if fn := mod.ExportedFunction(exportName(typeName, "set-"+field)); fn != nil {
				lowered, err := e.lowerArgs(ctx, mod, []Value{value})
				if err != nil {
					return err
				}
				stack := append([]uint64{uint64(obj.rep)}, lowered...)
				if _, callErr := fn.Call(ctx, stack...); callErr != nil {
					return errors.Wrap(errors.PhaseInvoke, errors.KindInvalidData, callErr, "field accessor trap")
				}
				return nil
			}
		}
	}

	obj.fields[field] = value
	return nil
}

func (e *WazeroEngine) object(ref ObjectRef) (*wazeroObject, bool) {
	v, ok := e.refs.Get(ref)
	if !ok {
		return nil, false
	}
	obj, ok := v.(*wazeroObject)
	return obj, ok
}

func (e *WazeroEngine) Pin(obj ObjectRef) (Resolver, func(), error) {
	resolve, release, ok := e.refs.PinResolver(obj)
	if !ok {
		return nil, nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	return resolve, release, nil
}

func (e *WazeroEngine) Ref(obj ObjectRef) (Resolver, func(), error) {
	resolve, release, ok := e.refs.RefResolver(obj)
	if !ok {
		return nil, nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	return resolve, release, nil
}

func (e *WazeroEngine) Weak(obj ObjectRef) (Resolver, func(), error) {
	resolve, release, ok := e.refs.WeakResolver(obj)
	if !ok {
		return nil, nil, errors.InvalidHandle(errors.PhaseInvoke, "object")
	}
	return resolve, release, nil
}

func (e *WazeroEngine) TypeAssignable(ctx context.Context, to, from string) (bool, error) {
	if to == from {
		return true, nil
	}
	seen := make(map[string]bool)
	cur := from
	for cur != "" && !seen[cur] {
		seen[cur] = true
		def := e.typeMeta(cur)
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

func (e *WazeroEngine) ExceptionDescriptor(ctx context.Context, exc ObjectRef) (*ExceptionInfo, error) {
	obj, ok := e.object(exc)
	if !ok {
		return nil, errors.InvalidHandle(errors.PhaseInvoke, "exception")
	}
	if obj.exc == nil {
		return nil, errors.NotFound(errors.PhaseInvoke, "exception descriptor", obj.class)
	}
	return obj.exc, nil
}

// trapObject wraps a guest trap into an exception object. Traps are the
// wasm analog of a managed throw and must surface as data, not as a host
// fault.
func (e *WazeroEngine) trapObject(typeName string, trap error) ObjectRef {
	info := &ExceptionInfo{
		Message:    trap.Error(),
		StackTrace: trap.Error(),
		Source:     typeName,
		Class:      "runtime-trap",
		Namespace:  "wasm",
		String:     "wasm.runtime-trap: " + trap.Error(),
	}
	obj := &wazeroObject{class: "wasm.runtime-trap", exc: info}
	return e.refs.Create(obj.class, 0, obj)
}

func (e *WazeroEngine) CollectGarbage(ctx context.Context, generation int) error {
	if generation < 0 || generation > e.MaxGCGeneration() {
		return errors.Usage(errors.PhaseGC, "generation out of range")
	}
	collected := e.refs.Collect(nil)
	Logger().Debug("collection pass", zap.Int("generation", generation), zap.Int("collected", collected))
	return nil
}

func (e *WazeroEngine) MaxGCGeneration() int {
	return 0
}

func (e *WazeroEngine) HeapSize() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var total uint64
	for _, d := range e.domains {
		for _, img := range d.images {
			if img.mod != nil {
				if mem := img.mod.Memory(); mem != nil {
					total += uint64(mem.Size())
				}
			}
		}
	}
	return total
}

func (e *WazeroEngine) UsedHeapSize() uint64 {
	return e.refs.LiveBytes()
}

func (e *WazeroEngine) Stats() Stats {
	return e.alloc.snapshot()
}

// RegisterNativeFunction exposes fn to guest code under "module.name".
// Must precede instantiation of any image importing it.
func (e *WazeroEngine) RegisterNativeFunction(name string, fn any) error {
	module, fname, ok := splitNativeName(name)
	if !ok {
		return errors.Registration(name, errors.Usage(errors.PhaseHost, "name must be module.function"))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hostBuilt[module] {
		return errors.Registration(name, errors.Usage(errors.PhaseHost, "host module already instantiated"))
	}
	if e.natives[module] == nil {
		e.natives[module] = make(map[string]any)
	}
	e.natives[module][fname] = fn
	return nil
}

func splitNativeName(name string) (module, fname string, ok bool) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:], name[:i] != "" && name[i+1:] != ""
		}
	}
	return "", "", false
}

// buildHostModules instantiates every pending native host module.
func (e *WazeroEngine) buildHostModules(ctx context.Context) error {
	e.mu.Lock()
	pending := make(map[string]map[string]any)
	for module, fns := range e.natives {
		if !e.hostBuilt[module] {
			pending[module] = fns
			e.hostBuilt[module] = true
		}
	}
	e.mu.Unlock()

	for module, fns := range pending {
		builder := e.runtime.NewHostModuleBuilder(module)
		for fname, fn := range fns {
			builder = builder.NewFunctionBuilder().WithFunc(fn).Export(fname)
		}
		if _, err := builder.Instantiate(ctx); err != nil {
			return errors.Registration(module, err)
		}
	}
	return nil
}

func (e *WazeroEngine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	if e.scratch != nil {
		e.alloc.free(e.scratch)
		e.scratch = nil
	}
	e.mu.Unlock()

	e.refs.Close()
	return e.runtime.Close(ctx)
}

// lowerArgs flattens boxed values onto the call stack. Strings are copied
// into guest memory through cabi_realloc and passed as ptr+len.
func (e *WazeroEngine) lowerArgs(ctx context.Context, mod api.Module, args []Value) ([]uint64, error) {
	var stack []uint64
	for _, arg := range args {
		switch v := arg.(type) {
		case nil:
			stack = append(stack, 0)
		case bool:
			if v {
				stack = append(stack, 1)
			} else {
				stack = append(stack, 0)
			}
		case int32:
			stack = append(stack, uint64(uint32(v)))
		case uint32:
			stack = append(stack, uint64(v))
		case int64:
			stack = append(stack, uint64(v))
		case uint64:
			stack = append(stack, v)
		case float32:
			stack = append(stack, uint64(math.Float32bits(v)))
		case float64:
			stack = append(stack, math.Float64bits(v))
		case ObjectRef:
			obj, ok := e.object(v)
			if !ok {
				return nil, errors.InvalidHandle(errors.PhaseInvoke, "object argument")
			}
			stack = append(stack, uint64(obj.rep))
		case string:
			ptr, length, err := e.lowerString(ctx, mod, v)
			if err != nil {
				return nil, err
			}
			stack = append(stack, uint64(ptr), uint64(length))
		default:
			return nil, errors.Unsupported(errors.PhaseInvoke, "argument box")
		}
	}
	return stack, nil
}

// stage returns a host staging buffer of n bytes, allocated and grown
// through the allocator vtable so overrides observe the traffic.
func (e *WazeroEngine) stage(n uint32) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case e.scratch == nil:
		e.scratch = e.alloc.calloc(1, n)
	case uint32(len(e.scratch)) < n:
		e.scratch = e.alloc.realloc(e.scratch, n)
	}
	return e.scratch[:n]
}

func (e *WazeroEngine) lowerString(ctx context.Context, mod api.Module, s string) (uint32, uint32, error) {
	realloc := mod.ExportedFunction(CabiRealloc)
	if realloc == nil {
		return 0, 0, errors.Unsupported(errors.PhaseInvoke, "string argument requires "+CabiRealloc)
	}
	results, err := realloc.Call(ctx, 0, 0, 1, uint64(len(s)))
	if err != nil {
		return 0, 0, errors.Wrap(errors.PhaseInvoke, errors.KindInvalidData, err, "guest allocation")
	}
	ptr := uint32(results[0])
	buf := e.stage(uint32(len(s)))
	copy(buf, s)
	if !mod.Memory().Write(ptr, buf) {
		return 0, 0, errors.Usage(errors.PhaseInvoke, "string write out of bounds")
	}
	e.alloc.recordMove(uint64(len(s)))
	return ptr, uint32(len(s)), nil
}

// lift converts raw call results back to a boxed value per the declared
// return type. String results use the ptr<<32|len packing convention.
func (e *WazeroEngine) lift(mod api.Module, ret TypeDesc, results []uint64) (Value, error) {
	if ret.Void || len(results) == 0 {
		return nil, nil
	}
	raw := results[0]
	switch ret.Name {
	case "bool":
		return raw != 0, nil
	case "s8", "s16", "s32":
		return int32(uint32(raw)), nil
	case "u8", "u16", "u32", "char":
		return uint32(raw), nil
	case "s64":
		return int64(raw), nil
	case "u64":
		return raw, nil
	case "f32":
		return math.Float32frombits(uint32(raw)), nil
	case "f64":
		return math.Float64frombits(raw), nil
	case "string":
		ptr := uint32(raw >> 32)
		length := uint32(raw)
		data, ok := mod.Memory().Read(ptr, length)
		if !ok {
			return nil, errors.Usage(errors.PhaseInvoke, "string result out of bounds")
		}
		return string(data), nil
	default:
		// Named type: wrap the returned rep as a new tracked object.
		obj := &wazeroObject{rep: uint32(raw), class: ret.Name, fields: make(map[string]Value)}
		return e.refs.Create(ret.Name, 0, obj), nil
	}
}

// wazeroImage is one opened managed binary backed by a compiled module.
type wazeroImage struct {
	engine     *WazeroEngine
	path       string
	defs       []TypeDef
	referenced []string
	compiled   wazero.CompiledModule
	mod        api.Module
	instMu     sync.Mutex
	unloaded   bool
}

func (img *wazeroImage) Name() string {
	return img.path
}

func (img *wazeroImage) Types(ctx context.Context) ([]TypeDef, error) {
	if img.unloaded {
		return nil, errors.NotInitialized(errors.PhaseReflect, "image")
	}
	out := make([]TypeDef, len(img.defs))
	copy(out, img.defs)
	return out, nil
}

func (img *wazeroImage) ReferencedTypes(ctx context.Context) ([]string, error) {
	if img.unloaded {
		return nil, errors.NotInitialized(errors.PhaseReflect, "image")
	}
	out := make([]string, len(img.referenced))
	copy(out, img.referenced)
	return out, nil
}

func (img *wazeroImage) Unload(ctx context.Context) error {
	img.instMu.Lock()
	defer img.instMu.Unlock()

	if img.unloaded {
		return nil
	}
	img.unloaded = true
	if img.mod != nil {
		if err := img.mod.Close(ctx); err != nil {
			return errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "close instance")
		}
		img.mod = nil
	}
	return nil
}

// instance lazily instantiates the compiled module, building host modules
// first so imports resolve.
func (img *wazeroImage) instance(ctx context.Context) (api.Module, error) {
	img.instMu.Lock()
	defer img.instMu.Unlock()

	if img.unloaded {
		return nil, errors.NotInitialized(errors.PhaseInvoke, "image")
	}
	if img.mod != nil {
		return img.mod, nil
	}

	if err := img.engine.buildHostModules(ctx); err != nil {
		return nil, err
	}

	mod, err := img.engine.runtime.InstantiateModule(ctx, img.compiled,
		wazero.NewModuleConfig().WithName(img.path))
	if err != nil {
		return nil, errors.Instantiation(img.path, err)
	}
	img.mod = mod
	return mod, nil
}

func (img *wazeroImage) methodDef(typeName, method string) *MethodDef {
	for i := range img.defs {
		if img.defs[i].FullName() != typeName {
			continue
		}
		for j := range img.defs[i].Methods {
			if img.defs[i].Methods[j].Name == method {
				return &img.defs[i].Methods[j]
			}
		}
	}
	return nil
}

func (img *wazeroImage) fieldDef(typeName, field string) *FieldDef {
	for i := range img.defs {
		if img.defs[i].FullName() != typeName {
			continue
		}
		for j := range img.defs[i].Fields {
			if img.defs[i].Fields[j].Name == field {
				return &img.defs[i].Fields[j]
			}
		}
	}
	return nil
}
