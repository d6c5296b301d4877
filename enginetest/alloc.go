package enginetest

import (
	"sync/atomic"

	"github.com/wippyai/managed-runtime/engine"
)

// vtable routes allocations through a caller-supplied vtable while
// keeping running counters for Stats.
type vtable struct {
	fns engine.AllocatorVTable

	bytesAllocated atomic.Uint64
	allocationOps  atomic.Uint64
	bytesMoved     atomic.Uint64
	moveOps        atomic.Uint64
}

func newVTable(fns *engine.AllocatorVTable) *vtable {
	vt := &vtable{}
	if fns != nil {
		vt.fns = *fns
	}
	if vt.fns.Malloc == nil {
		vt.fns.Malloc = func(size uint32) []byte { return make([]byte, size) }
	}
	if vt.fns.Realloc == nil {
		vt.fns.Realloc = func(buf []byte, size uint32) []byte {
			next := make([]byte, size)
			copy(next, buf)
			return next
		}
	}
	if vt.fns.Free == nil {
		vt.fns.Free = func([]byte) {}
	}
	if vt.fns.Calloc == nil {
		vt.fns.Calloc = func(count, size uint32) []byte { return make([]byte, count*size) }
	}
	return vt
}

func (vt *vtable) malloc(size uint32) []byte {
	if size == 0 {
		return nil
	}
	vt.bytesAllocated.Add(uint64(size))
	vt.allocationOps.Add(1)
	return vt.fns.Malloc(size)
}

func (vt *vtable) free(buf []byte) {
	if buf == nil {
		return
	}
	vt.fns.Free(buf)
}

func (vt *vtable) recordMove(bytes uint64) {
	vt.bytesMoved.Add(bytes)
	vt.moveOps.Add(1)
}

func (vt *vtable) snapshot() engine.Stats {
	return engine.Stats{
		BytesAllocated: vt.bytesAllocated.Load(),
		AllocationOps:  vt.allocationOps.Load(),
		BytesMoved:     vt.bytesMoved.Load(),
		MoveOps:        vt.moveOps.Load(),
	}
}
