package managed

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
	"github.com/wippyai/managed-runtime/handle"
)

// ContextState tracks the Context lifecycle.
type ContextState int

const (
	StateUninitialized ContextState = iota
	StateInitialized
	StateClosed
)

// ExceptionCallback observes every managed exception reported through
// the context. Callbacks run in registration order and must not panic.
type ExceptionCallback func(exc *Exception, assembly string)

// Context is an isolated unit of loaded assemblies plus one runtime
// domain. It resolves cross-assembly class lookups and funnels managed
// exceptions to its registered callbacks.
type Context struct {
	system *System
	eng    engine.Engine
	name   string
	cell   *handle.Cell

	state      ContextState
	domain     engine.DomainRef
	assemblies []*Assembly
	callbacks  []ExceptionCallback
}

func newContext(system *System, name string) *Context {
	return &Context{
		system: system,
		eng:    system.eng,
		name:   name,
		cell:   handle.NewCell(),
	}
}

func (c *Context) Name() string             { return c.name }
func (c *Context) State() ContextState      { return c.state }
func (c *Context) Domain() engine.DomainRef { return c.domain }
func (c *Context) System() *System          { return c.system }

// Handle issues a liveness view of this context.
func (c *Context) Handle() handle.Handle[*Context] {
	return handle.Issue(c, c.cell)
}

// Init creates and attaches the runtime domain. A context initializes
// exactly once.
func (c *Context) Init(ctx context.Context) error {
	if c.state != StateUninitialized {
		return errors.Usage(errors.PhaseContext, "context already initialized")
	}
	domain, err := c.eng.CreateDomain(ctx, c.name)
	if err != nil {
		return err
	}
	c.domain = domain
	c.state = StateInitialized
	c.cell.Validate()

	Logger().Debug("context initialized", zap.String("context", c.name))
	return nil
}

// Close unloads every remaining assembly and releases the domain. The
// context is unusable afterwards.
func (c *Context) Close(ctx context.Context) error {
	if c.state != StateInitialized {
		return nil
	}
	c.cell.Invalidate()
	for i := len(c.assemblies) - 1; i >= 0; i-- {
		if err := c.assemblies[i].Unload(ctx); err != nil {
			Logger().Warn("assembly unload failed during context teardown",
				zap.String("assembly", c.assemblies[i].Path()),
				zap.Error(err))
		}
	}
	c.assemblies = nil
	c.state = StateClosed
	return c.eng.ReleaseDomain(ctx, c.domain)
}

// LoadAssembly opens the image at path, builds the class cache and
// appends the assembly to the loaded list. A failed load leaves the
// list untouched.
func (c *Context) LoadAssembly(ctx context.Context, path string) (*Assembly, error) {
	if c.state != StateInitialized {
		return nil, errors.NotInitialized(errors.PhaseLoad, "context")
	}
	image, err := c.eng.OpenImage(ctx, c.domain, path)
	if err != nil {
		return nil, err
	}
	asm := newAssembly(c, image, path)
	if err := asm.PopulateReflectionInfo(ctx); err != nil {
		_ = image.Unload(ctx)
		return nil, err
	}
	c.assemblies = append(c.assemblies, asm)

	Logger().Info("assembly loaded",
		zap.String("context", c.name),
		zap.String("assembly", path))
	return asm, nil
}

// UnloadAssembly finds the assembly by path or name, unloads it and
// removes it from the loaded list.
func (c *Context) UnloadAssembly(ctx context.Context, name string) error {
	for i, asm := range c.assemblies {
		if asm.Path() != name && asm.Name() != name {
			continue
		}
		err := asm.Unload(ctx)
		c.assemblies = append(c.assemblies[:i], c.assemblies[i+1:]...)
		return err
	}
	return errors.NotFound(errors.PhaseLoad, "assembly", name)
}

// FindAssembly returns the loaded assembly matching path or name, or
// nil when none matches.
func (c *Context) FindAssembly(name string) *Assembly {
	for _, asm := range c.assemblies {
		if asm.Path() == name || asm.Name() == name {
			return asm
		}
	}
	return nil
}

// NumAssemblies reports the number of loaded assemblies.
func (c *Context) NumAssemblies() int { return len(c.assemblies) }

// Assemblies returns the loaded assemblies in load order.
func (c *Context) Assemblies() []*Assembly { return c.assemblies }

// FindClass searches every loaded assembly in load order. Prefer the
// Assembly-scoped lookup when the assembly is known; this search is
// linear in assemblies and classes. Returns nil when no class matches.
func (c *Context) FindClass(ctx context.Context, namespace, name string) (*Class, error) {
	for _, asm := range c.assemblies {
		found, err := asm.FindClass(ctx, namespace, name)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// ClearReflectionInfo disposes reflection info on every loaded
// assembly. Any handle into this context's classes or members becomes
// invalid.
func (c *Context) ClearReflectionInfo() {
	for _, asm := range c.assemblies {
		asm.DisposeReflectionInfo()
	}
}

// ValidateAgainstWhitelist checks every loaded assembly's external
// references against the allow-list.
func (c *Context) ValidateAgainstWhitelist(ctx context.Context, allowed []string) (bool, error) {
	for _, asm := range c.assemblies {
		ok, err := asm.ValidateAgainstWhitelist(ctx, allowed)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// RegisterExceptionCallback subscribes cb to every exception reported
// through this context. There is no unregistration.
func (c *Context) RegisterExceptionCallback(cb ExceptionCallback) {
	if cb == nil {
		return
	}
	c.callbacks = append(c.callbacks, cb)
}

// ExceptionDescriptor builds the structured description of a thrown
// managed object.
func (c *Context) ExceptionDescriptor(ctx context.Context, exc engine.ObjectRef) (*Exception, error) {
	info, err := c.eng.ExceptionDescriptor(ctx, exc)
	if err != nil {
		return nil, err
	}
	return exceptionFrom(info), nil
}

// ReportException dispatches a managed exception to every registered
// callback in registration order.
func (c *Context) ReportException(exc *Exception, assembly string) {
	if exc == nil {
		return
	}
	Logger().Error("managed exception",
		zap.String("context", c.name),
		zap.String("assembly", assembly),
		zap.String("class", exc.FullClassName()),
		zap.String("message", exc.Message))
	for _, cb := range c.callbacks {
		cb(exc, assembly)
	}
}

// reportThrow describes a thrown object and dispatches it.
func (c *Context) reportThrow(ctx context.Context, excRef engine.ObjectRef, assembly string) (*Exception, error) {
	exc, err := c.ExceptionDescriptor(ctx, excRef)
	if err != nil {
		return nil, err
	}
	c.ReportException(exc, assembly)
	return exc, nil
}
