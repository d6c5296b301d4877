package engine

import "sync/atomic"

// allocator wraps an AllocatorVTable with runtime defaults for nil
// entries and keeps the counters behind Stats. Installed once per engine;
// the vtable is immutable after construction.
type allocator struct {
	vt AllocatorVTable

	bytesAllocated atomic.Uint64
	allocationOps  atomic.Uint64
	bytesMoved     atomic.Uint64
	moveOps        atomic.Uint64
}

func newAllocator(vt *AllocatorVTable) *allocator {
	a := &allocator{}
	if vt != nil {
		a.vt = *vt
	}
	if a.vt.Malloc == nil {
		a.vt.Malloc = func(size uint32) []byte { return make([]byte, size) }
	}
	if a.vt.Realloc == nil {
		a.vt.Realloc = func(mem []byte, size uint32) []byte {
			next := make([]byte, size)
			copy(next, mem)
			return next
		}
	}
	if a.vt.Free == nil {
		a.vt.Free = func([]byte) {}
	}
	if a.vt.Calloc == nil {
		calloc := a.vt.Malloc
		a.vt.Calloc = func(count, size uint32) []byte { return calloc(count * size) }
	}
	return a
}

func (a *allocator) malloc(size uint32) []byte {
	a.bytesAllocated.Add(uint64(size))
	a.allocationOps.Add(1)
	return a.vt.Malloc(size)
}

func (a *allocator) calloc(count, size uint32) []byte {
	a.bytesAllocated.Add(uint64(count) * uint64(size))
	a.allocationOps.Add(1)
	return a.vt.Calloc(count, size)
}

func (a *allocator) realloc(mem []byte, size uint32) []byte {
	a.bytesMoved.Add(uint64(len(mem)))
	a.moveOps.Add(1)
	return a.vt.Realloc(mem, size)
}

func (a *allocator) free(mem []byte) {
	a.vt.Free(mem)
}

func (a *allocator) recordMove(bytes uint64) {
	a.bytesMoved.Add(bytes)
	a.moveOps.Add(1)
}

func (a *allocator) snapshot() Stats {
	return Stats{
		BytesAllocated: a.bytesAllocated.Load(),
		AllocationOps:  a.allocationOps.Load(),
		BytesMoved:     a.bytesMoved.Load(),
		MoveOps:        a.moveOps.Load(),
	}
}
