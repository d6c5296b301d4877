// Package managed is the host-side embedding layer over a managed-code
// runtime engine: it loads assemblies, caches reflection metadata
// (classes, methods, fields, properties), instantiates and invokes
// managed objects, and tracks the lifetime of every wrapper so a
// host-held handle never reads through a freed or unloaded entity.
//
// Ownership flows System -> Context -> Assembly -> Class -> members,
// and invalidation flows back up through shared liveness cells: unload
// or reflection disposal marks every issued handle invalid before the
// backing state is released.
//
// A Context and everything it owns are designed for one logical owner
// at a time; host-side cache mutation is not internally synchronized.
package managed
