package engine

import "testing"

func TestRefTable_CreateGet(t *testing.T) {
	tab := NewRefTable()
	ref := tab.Create("Game.Player", 24, "payload")
	if ref == 0 {
		t.Fatalf("Create returned zero ref")
	}

	v, ok := tab.Get(ref)
	if !ok || v != "payload" {
		t.Fatalf("Get = (%v, %v), want (payload, true)", v, ok)
	}
	if class, _ := tab.Class(ref); class != "Game.Player" {
		t.Fatalf("Class = %q", class)
	}
	if tab.Len() != 1 {
		t.Fatalf("Len = %d, want 1", tab.Len())
	}
}

func TestRefTable_ZeroRefNeverResolves(t *testing.T) {
	tab := NewRefTable()
	if _, ok := tab.Get(0); ok {
		t.Fatalf("zero ref resolved")
	}
	if tab.Alive(0) {
		t.Fatalf("zero ref reported alive")
	}
}

func TestRefTable_GenerationGuardsRecycledSlot(t *testing.T) {
	tab := NewRefTable()
	stale := tab.Create("A", 8, 1)
	if _, ok := tab.Drop(stale); !ok {
		t.Fatalf("drop failed")
	}

	fresh := tab.Create("B", 8, 2)
	if stale == fresh {
		t.Fatalf("recycled slot reused the same generation")
	}
	if _, ok := tab.Get(stale); ok {
		t.Fatalf("stale ref resolved after slot reuse")
	}
	if v, ok := tab.Get(fresh); !ok || v != 2 {
		t.Fatalf("fresh ref Get = (%v, %v)", v, ok)
	}
}

func TestRefTable_CollectSparesStrongRoots(t *testing.T) {
	tab := NewRefTable()

	pinned := tab.Create("P", 8, "pinned")
	movable := tab.Create("M", 8, "movable")
	weak := tab.Create("W", 8, "weak")
	loose := tab.Create("L", 8, "loose")

	if !tab.AddPin(pinned) || !tab.AddRef(movable) {
		t.Fatalf("rooting failed")
	}
	// weak refs are not roots
	if _, _, ok := tab.WeakResolver(weak); !ok {
		t.Fatalf("weak resolver failed")
	}

	var collected []string
	n := tab.Collect(func(class string, _ any) { collected = append(collected, class) })
	if n != 2 {
		t.Fatalf("Collect reclaimed %d, want 2 (%v)", n, collected)
	}
	if !tab.Alive(pinned) || !tab.Alive(movable) {
		t.Fatalf("collection reclaimed a strong root")
	}
	if tab.Alive(weak) || tab.Alive(loose) {
		t.Fatalf("collection spared an unrooted object")
	}
}

func TestRefTable_ResolverStrengths(t *testing.T) {
	tab := NewRefTable()
	ref := tab.Create("Game.Player", 24, struct{}{})

	pinResolve, pinRelease, ok := tab.PinResolver(ref)
	if !ok {
		t.Fatalf("pin failed")
	}
	if got, ok := pinResolve(); !ok || got != ref {
		t.Fatalf("pin resolve = (%v, %v)", got, ok)
	}

	weakResolve, _, ok := tab.WeakResolver(ref)
	if !ok {
		t.Fatalf("weak resolver failed")
	}
	if _, ok := weakResolve(); !ok {
		t.Fatalf("weak resolve failed while pinned")
	}

	// Releasing the only strong root exposes the object to collection.
	pinRelease()
	tab.Collect(nil)
	if _, ok := weakResolve(); ok {
		t.Fatalf("weak resolve succeeded after target collected")
	}
}

func TestRefTable_ReleaseIsIdempotent(t *testing.T) {
	tab := NewRefTable()
	ref := tab.Create("X", 8, nil)

	_, release, _ := tab.PinResolver(ref)
	release()
	release() // second call must not underflow another holder's pin

	_, release2, _ := tab.PinResolver(ref)
	defer release2()
	tab.Collect(nil)
	if !tab.Alive(ref) {
		t.Fatalf("double release broke an unrelated pin")
	}
}

type recordingObserver struct {
	events []RefEvent
}

func (r *recordingObserver) OnRefEvent(e RefEvent) {
	r.events = append(r.events, e)
}

func TestRefTable_ObserverSeesLifecycle(t *testing.T) {
	tab := NewRefTable()
	obs := &recordingObserver{}
	tab.Subscribe(obs)

	ref := tab.Create("Game.Player", 24, nil)
	tab.Drop(ref)

	if len(obs.events) != 2 {
		t.Fatalf("got %d events, want 2", len(obs.events))
	}
	if obs.events[0].Type != RefCreated || obs.events[1].Type != RefDropped {
		t.Fatalf("event order = %v, %v", obs.events[0].Type, obs.events[1].Type)
	}
	if obs.events[0].Size != 24 {
		t.Fatalf("created size = %d", obs.events[0].Size)
	}
}

func TestRefTable_LiveBytes(t *testing.T) {
	tab := NewRefTable()
	a := tab.Create("A", 16, nil)
	tab.Create("B", 8, nil)

	if got := tab.LiveBytes(); got != 24 {
		t.Fatalf("LiveBytes = %d, want 24", got)
	}
	tab.Drop(a)
	if got := tab.LiveBytes(); got != 8 {
		t.Fatalf("LiveBytes after drop = %d, want 8", got)
	}
}

func TestRefTable_CloseRejectsCreates(t *testing.T) {
	tab := NewRefTable()
	tab.Close()
	if ref := tab.Create("X", 8, nil); ref != 0 {
		t.Fatalf("Create succeeded on closed table")
	}
}
