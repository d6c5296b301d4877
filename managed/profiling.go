package managed

import "github.com/wippyai/managed-runtime/engine"

// ProfilingData is one finalized accumulation frame: engine counter
// deltas plus context load/unload counts over the frame's lifetime.
type ProfilingData struct {
	BytesAllocated uint64
	Allocations    uint64
	BytesMoved     uint64
	Moves          uint64
	ContextLoads   uint64
	ContextUnloads uint64
}

type profFrame struct {
	stats   engine.Stats
	loads   uint64
	unloads uint64
}

func frameDelta(start profFrame, now engine.Stats, loads, unloads uint64) ProfilingData {
	return ProfilingData{
		BytesAllocated: now.BytesAllocated - start.stats.BytesAllocated,
		Allocations:    now.AllocationOps - start.stats.AllocationOps,
		BytesMoved:     now.BytesMoved - start.stats.BytesMoved,
		Moves:          now.MoveOps - start.stats.MoveOps,
		ContextLoads:   loads - start.loads,
		ContextUnloads: unloads - start.unloads,
	}
}
