// Package managedruntime is a host-side embedding layer for managed-code
// runtimes: it loads images, caches reflection metadata over the managed
// type system, instantiates and invokes managed objects, and tracks the
// lifetime of every wrapper so a host-held reference never reads through
// a freed or unloaded runtime entity.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	managed-runtime/
//	├── managed/      Core embedding layer: System, Context, Assembly,
//	│                 Class, Method, Field, Property, Object
//	├── engine/       Boundary to the backing runtime, plus a
//	│                 wazero-backed engine with WIT metadata sidecars
//	├── enginetest/   Scriptable in-memory engine for tests
//	├── handle/       Shared liveness cells and typed handles
//	├── errors/       Structured error types for debugging
//	└── cmd/inspect   CLI for listing and invoking managed members
//
// # Quick Start
//
// Build a system over an engine and load an assembly:
//
//	eng, _ := engine.NewWazeroEngine(ctx, nil)
//	sys, _ := managed.NewSystem(eng, managed.Settings{DomainName: "host"})
//	defer sys.Close(ctx)
//
//	c, _ := sys.CreateContext(ctx, "")
//	asm, _ := c.LoadAssembly(ctx, "game.wasm")
//
//	class, _ := c.FindClass(ctx, "Game", "Player")
//	obj, exc, _ := class.CreateInstance(ctx, nil)
//	result, exc, _ := obj.InvokeByName(ctx, "describe")
//
// Managed throws come back as exception descriptors, not Go errors;
// register a callback on the Context to observe every one of them.
package managedruntime
