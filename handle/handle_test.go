package handle

import "testing"

type fakeEntity struct {
	name string
}

func TestHandle_ZeroValueInvalid(t *testing.T) {
	var h Handle[*fakeEntity]
	if h.Valid() {
		t.Fatalf("zero handle reports valid")
	}
	if e, ok := h.Get(); ok || e != nil {
		t.Fatalf("zero handle Get = (%v, %v), want (nil, false)", e, ok)
	}
}

func TestHandle_ReflectsOwnerState(t *testing.T) {
	cell := NewCell()
	entity := &fakeEntity{name: "Game.Player"}

	h := Issue(entity, cell)
	if h.Valid() {
		t.Fatalf("handle valid before owner populated")
	}

	cell.Validate()
	if !h.Valid() {
		t.Fatalf("handle invalid after owner validated")
	}
	if e, ok := h.Get(); !ok || e != entity {
		t.Fatalf("Get = (%v, %v), want (%v, true)", e, ok, entity)
	}

	cell.Invalidate()
	if h.Valid() {
		t.Fatalf("handle still valid after invalidation")
	}
	if _, ok := h.Get(); ok {
		t.Fatalf("Get succeeded after invalidation")
	}
}

func TestHandle_IssuedAgainstValidEntity(t *testing.T) {
	cell := NewCell()
	cell.Validate()

	h := Issue(&fakeEntity{}, cell)
	if !h.Valid() {
		t.Fatalf("freshly issued handle on valid entity must be valid immediately")
	}
}

func TestHandle_ManyObserversShareOneCell(t *testing.T) {
	cell := NewCell()
	cell.Validate()
	entity := &fakeEntity{}

	handles := make([]Handle[*fakeEntity], 8)
	for i := range handles {
		handles[i] = Issue(entity, cell)
	}
	for i, h := range handles {
		if !h.Valid() {
			t.Fatalf("handle %d invalid before teardown", i)
		}
	}

	cell.Invalidate()
	for i, h := range handles {
		if h.Valid() {
			t.Fatalf("handle %d valid after teardown", i)
		}
	}
}

func TestCell_RevalidateAfterRepopulation(t *testing.T) {
	cell := NewCell()
	h := Issue(&fakeEntity{}, cell)

	cell.Validate()
	cell.Invalidate()
	cell.Validate()

	if !h.Valid() {
		t.Fatalf("handle must track explicit re-population")
	}
}
