package engine

import (
	"sync"
)

// refEvent types for object lifecycle notifications.
type RefEventType uint8

const (
	RefCreated RefEventType = iota
	RefDropped
	RefMoved
)

// RefEvent describes one object lifecycle event.
type RefEvent struct {
	Ref   ObjectRef
	Type  RefEventType
	Class string
	Size  uint32
}

// RefObserver receives object lifecycle notifications.
type RefObserver interface {
	OnRefEvent(RefEvent)
}

type refEntry struct {
	value    any
	class    string
	size     uint32
	gen      uint32
	pinCount uint32
	refCount uint32
	valid    bool
}

// RefTable is the slot table every engine uses to issue ObjectRefs.
// Slots carry a generation so a recycled slot never resolves through a
// stale ref, and per-slot strength counts decide what a collection pass
// may reclaim: objects with only weak (or no) references are fair game.
type RefTable struct {
	entries   []refEntry
	freeList  []uint32
	observers []RefObserver
	mu        sync.RWMutex
	closed    bool
}

// NewRefTable creates an empty reference table.
func NewRefTable() *RefTable {
	return &RefTable{
		entries:  make([]refEntry, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

func packRef(slot, gen uint32) ObjectRef {
	return ObjectRef(uint64(gen)<<32 | uint64(slot+1))
}

func unpackRef(ref ObjectRef) (slot, gen uint32, ok bool) {
	low := uint32(ref)
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(uint64(ref) >> 32), true
}

// Create stores a value and returns its ref.
func (t *RefTable) Create(class string, size uint32, value any) ObjectRef {
	t.mu.Lock()

	if t.closed {
		t.mu.Unlock()
		return 0
	}

	var slot uint32
	if n := len(t.freeList); n > 0 {
		slot = t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		gen := t.entries[slot].gen + 1
		t.entries[slot] = refEntry{value: value, class: class, size: size, gen: gen, valid: true}
	} else {
		slot = uint32(len(t.entries))
		t.entries = append(t.entries, refEntry{value: value, class: class, size: size, valid: true})
	}
	ref := packRef(slot, t.entries[slot].gen)
	t.mu.Unlock()

	t.notify(RefEvent{Ref: ref, Type: RefCreated, Class: class, Size: size})
	return ref
}

func (t *RefTable) lookup(ref ObjectRef) (*refEntry, bool) {
	slot, gen, ok := unpackRef(ref)
	if !ok || int(slot) >= len(t.entries) {
		return nil, false
	}
	e := &t.entries[slot]
	if !e.valid || e.gen != gen {
		return nil, false
	}
	return e, true
}

// Get retrieves a value by ref.
func (t *RefTable) Get(ref ObjectRef) (any, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(ref)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Class returns the class name the ref was created under.
func (t *RefTable) Class(ref ObjectRef) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e, ok := t.lookup(ref)
	if !ok {
		return "", false
	}
	return e.class, true
}

// Alive reports whether the ref still resolves.
func (t *RefTable) Alive(ref ObjectRef) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.lookup(ref)
	return ok
}

// AddPin roots the object and forbids relocation.
func (t *RefTable) AddPin(ref ObjectRef) bool {
	return t.adjust(ref, func(e *refEntry) { e.pinCount++ })
}

// ReleasePin drops one pin.
func (t *RefTable) ReleasePin(ref ObjectRef) bool {
	return t.adjust(ref, func(e *refEntry) {
		if e.pinCount > 0 {
			e.pinCount--
		}
	})
}

// AddRef roots the object; the engine may still relocate it.
func (t *RefTable) AddRef(ref ObjectRef) bool {
	return t.adjust(ref, func(e *refEntry) { e.refCount++ })
}

// ReleaseRef drops one movable root.
func (t *RefTable) ReleaseRef(ref ObjectRef) bool {
	return t.adjust(ref, func(e *refEntry) {
		if e.refCount > 0 {
			e.refCount--
		}
	})
}

func (t *RefTable) adjust(ref ObjectRef, fn func(*refEntry)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.lookup(ref)
	if !ok {
		return false
	}
	fn(e)
	return true
}

// Drop removes an object outright, regardless of reference counts.
// Returns the stored value so the caller can run finalization.
func (t *RefTable) Drop(ref ObjectRef) (any, bool) {
	t.mu.Lock()
	e, ok := t.lookup(ref)
	if !ok {
		t.mu.Unlock()
		return nil, false
	}

	slot, _, _ := unpackRef(ref)
	value := e.value
	class := e.class
	size := e.size
	e.valid = false
	e.value = nil
	e.pinCount = 0
	e.refCount = 0
	t.freeList = append(t.freeList, slot)
	t.mu.Unlock()

	t.notify(RefEvent{Ref: ref, Type: RefDropped, Class: class, Size: size})
	return value, true
}

// Collect sweeps every object with no pin and no movable root, invoking
// fn for each reclaimed value. Returns the number reclaimed.
func (t *RefTable) Collect(fn func(class string, value any)) int {
	t.mu.Lock()
	var victims []ObjectRef
	for i := range t.entries {
		e := &t.entries[i]
		if e.valid && e.pinCount == 0 && e.refCount == 0 {
			victims = append(victims, packRef(uint32(i), e.gen))
		}
	}
	t.mu.Unlock()

	for _, ref := range victims {
		class, _ := t.Class(ref)
		if value, ok := t.Drop(ref); ok && fn != nil {
			fn(class, value)
		}
	}
	return len(victims)
}

// Len returns the number of live objects.
func (t *RefTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	count := 0
	for i := range t.entries {
		if t.entries[i].valid {
			count++
		}
	}
	return count
}

// LiveBytes sums the sizes of all live objects.
func (t *RefTable) LiveBytes() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total uint64
	for i := range t.entries {
		if t.entries[i].valid {
			total += uint64(t.entries[i].size)
		}
	}
	return total
}

// Each iterates over live objects.
func (t *RefTable) Each(fn func(ObjectRef, string, any) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := range t.entries {
		e := &t.entries[i]
		if e.valid {
			if !fn(packRef(uint32(i), e.gen), e.class, e.value) {
				break
			}
		}
	}
}

// Subscribe adds a lifecycle observer.
func (t *RefTable) Subscribe(o RefObserver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, o)
}

// Close drops every object and stops accepting operations.
func (t *RefTable) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	for i := range t.entries {
		t.entries[i].valid = false
		t.entries[i].value = nil
	}
	t.entries = nil
	t.freeList = nil
	t.mu.Unlock()
}

func (t *RefTable) notify(e RefEvent) {
	t.mu.RLock()
	obs := t.observers
	t.mu.RUnlock()
	for _, o := range obs {
		o.OnRefEvent(e)
	}
}

// Resolvers for the three reference strengths. The strength decides the
// access path: pinned refs resolve without touching the table, movable
// and weak refs re-resolve per access, and only weak refs may observe
// their target disappear.

// PinResolver returns a resolver for a pinned object.
func (t *RefTable) PinResolver(ref ObjectRef) (Resolver, func(), bool) {
	if !t.AddPin(ref) {
		return nil, nil, false
	}
	released := false
	resolve := func() (ObjectRef, bool) { return ref, true }
	release := func() {
		if !released {
			released = true
			t.ReleasePin(ref)
		}
	}
	return resolve, release, true
}

// RefResolver returns a resolver for a movable strong reference.
func (t *RefTable) RefResolver(ref ObjectRef) (Resolver, func(), bool) {
	if !t.AddRef(ref) {
		return nil, nil, false
	}
	released := false
	resolve := func() (ObjectRef, bool) {
		if !t.Alive(ref) {
			return 0, false
		}
		return ref, true
	}
	release := func() {
		if !released {
			released = true
			t.ReleaseRef(ref)
		}
	}
	return resolve, release, true
}

// WeakResolver returns a resolver that fails once the target is collected.
func (t *RefTable) WeakResolver(ref ObjectRef) (Resolver, func(), bool) {
	if !t.Alive(ref) {
		return nil, nil, false
	}
	resolve := func() (ObjectRef, bool) {
		if !t.Alive(ref) {
			return 0, false
		}
		return ref, true
	}
	return resolve, func() {}, true
}
