// Package engine defines the boundary to the backing managed runtime and
// provides the wazero-backed implementation of it.
//
// Everything above the Engine interface is reflection caching and
// lifetime bookkeeping; everything below it is the opaque runtime
// service: open an image, enumerate its types, invoke a method, allocate
// an instance, run a collection pass. The managed package never talks to
// wazero directly.
//
// The RefTable is shared machinery for every Engine implementation: a
// generation-checked slot table that issues ObjectRefs and tracks the
// reference strength (pin / movable / weak) keeping each object alive.
// A collection pass reclaims exactly the objects with no strong root, so
// a weak resolver observing its target disappear is a table lookup, never
// a dangling pointer.
//
// The wazero adapter treats a managed image as a core wasm module with a
// ".wit" metadata sidecar declaring its classes, methods, fields and
// properties. Method invocation dispatches to exports named
// "<type>#<method>"; guest traps surface as exception objects, matching
// the contract that a managed throw is data, not a host fault.
package engine
