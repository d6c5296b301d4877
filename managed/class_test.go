package managed

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/managed-runtime/errors"
)

func TestFindMethodIsCacheStable(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	first := class.FindMethod("ping")
	second := class.FindMethod("ping")
	if first == nil || first != second {
		t.Fatalf("FindMethod returned %p then %p, want the same method", first, second)
	}
	if class.FindMethod("missing") != nil {
		t.Fatal("lookup of an unknown method should return nil")
	}
}

func TestPopulateIsIdempotent(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	class.PopulateReflectionInfo()
	methods := class.Methods()
	class.PopulateReflectionInfo()
	if len(class.Methods()) != len(methods) {
		t.Fatal("re-population changed the method cache")
	}
	if !class.Populated() {
		t.Fatal("class should report populated")
	}
}

func TestClassMetadata(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	if class.FullName() != "Game.Player" {
		t.Fatalf("FullName = %q", class.FullName())
	}
	if class.DataSize() != 16 || class.Alignment() != 8 {
		t.Fatalf("size/alignment = %d/%d", class.DataSize(), class.Alignment())
	}
	if class.NumConstructors() != 2 {
		t.Fatalf("NumConstructors = %d", class.NumConstructors())
	}
	if class.IsValueClass() || class.IsEnum() || class.IsDelegate() || class.IsNullable() {
		t.Fatal("Game.Player should carry no special flags")
	}
}

func TestSignatureMatching(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	add := class.FindMethod("add")
	if add == nil {
		t.Fatal("add not found")
	}
	s32 := NewType("s32")
	s64 := NewType("s64")

	if !add.MatchParams(s32, s32) {
		t.Fatal("add should match (s32, s32)")
	}
	if add.MatchParams(s32) || add.MatchParams(s32, s64) {
		t.Fatal("add matched a wrong parameter list")
	}
	if !add.MatchSignature(s32, s32, s32) {
		t.Fatal("add should match s32(s32, s32)")
	}
	if add.MatchSignature(s64, s32, s32) {
		t.Fatal("add matched a wrong return type")
	}
	if add.MatchNoParams() {
		t.Fatal("add is not a zero-parameter method")
	}

	ping := class.FindMethod("ping")
	if !ping.MatchNoParams() {
		t.Fatal("ping takes no parameters")
	}
}

func TestCreateInstanceMatchesConstructor(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	obj, exc, err := class.CreateInstance(ctx, nil)
	if err != nil || exc != nil {
		t.Fatalf("CreateInstance: err=%v exc=%v", err, exc)
	}
	if obj.Class() != class || obj.Strength() != Pinned {
		t.Fatalf("wrapper class/strength = %v/%v", obj.Class().FullName(), obj.Strength())
	}

	_, _, err = class.CreateInstance(ctx, []*Type{NewType("string")}, "nope")
	if !stderrors.Is(err, errors.SignatureMismatch("", "", 0)) {
		t.Fatalf("expected signature mismatch, got %v", err)
	}
}

func TestCreateInstanceWithArgsRunsConstructor(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	obj, exc, err := class.CreateInstance(ctx, []*Type{NewType("s32")}, int32(77))
	if err != nil || exc != nil {
		t.Fatalf("CreateInstance: err=%v exc=%v", err, exc)
	}
	health, err := obj.GetFieldByName(ctx, "health")
	if err != nil {
		t.Fatalf("GetFieldByName: %v", err)
	}
	if health.(int32) != 77 {
		t.Fatalf("health = %v, want 77", health)
	}
}

func TestTypeRelationsAreAuthoritative(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newTestSystem(t)
	player := findPlayer(t, c)

	actor, err := c.FindClass(ctx, "Game", "Actor")
	if err != nil || actor == nil {
		t.Fatalf("FindClass Actor: %v", err)
	}
	drawable, err := c.FindClass(ctx, "Game", "IDrawable")
	if err != nil || drawable == nil {
		t.Fatalf("FindClass IDrawable: %v", err)
	}

	derived, err := player.DerivedFromClass(ctx, actor)
	if err != nil || !derived {
		t.Fatalf("DerivedFromClass = %v, %v", derived, err)
	}
	implements, err := player.ImplementsInterface(ctx, drawable)
	if err != nil || !implements {
		t.Fatalf("ImplementsInterface = %v, %v", implements, err)
	}
	reverse, err := actor.DerivedFromClass(ctx, player)
	if err != nil || reverse {
		t.Fatalf("Actor should not derive from Player: %v, %v", reverse, err)
	}
}

func TestDisposeCascadesIntoMembers(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	classHandle := class.Handle()
	method := class.FindMethod("ping")
	field := class.FindField("health")
	prop := class.FindProperty("health")
	methodHandle := method.Handle()
	fieldHandle := field.Handle()
	propHandle := prop.Handle()

	if !classHandle.Valid() || !methodHandle.Valid() || !fieldHandle.Valid() || !propHandle.Valid() {
		t.Fatal("handles should be valid while the cache is populated")
	}

	class.DisposeReflectionInfo()

	if classHandle.Valid() {
		t.Fatal("class handle survived disposal")
	}
	if methodHandle.Valid() || fieldHandle.Valid() || propHandle.Valid() {
		t.Fatal("member handles survived disposal")
	}
}

func TestRepopulationRevalidatesClassHandle(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	h := class.Handle()
	class.DisposeReflectionInfo()
	if h.Valid() {
		t.Fatal("handle should be invalid after disposal")
	}
	class.PopulateReflectionInfo()
	if !h.Valid() {
		t.Fatal("handle should revalidate after re-population")
	}
}

func TestPropertyAccessorResolution(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	health := class.FindProperty("health")
	if health == nil {
		t.Fatal("health property not found")
	}
	getter := health.Getter()
	setter := health.Setter()
	if getter == nil || getter.Name() != "get-health" {
		t.Fatalf("getter = %v", getter)
	}
	if setter == nil || setter.Name() != "set-health" {
		t.Fatalf("setter = %v", setter)
	}
	if getter != class.FindMethod("get-health") {
		t.Fatal("accessor should resolve to the cached method")
	}

	name := class.FindProperty("name")
	if name.Getter() != nil || name.Setter() != nil {
		t.Fatal("accessorless property should resolve to nil accessors")
	}
}

func TestPrimitiveTypePredicates(t *testing.T) {
	cases := []struct {
		name string
		pred func(*Type) bool
	}{
		{"bool", (*Type).IsBoolean},
		{"char", (*Type).IsChar},
		{"s32", (*Type).IsInt32},
		{"s64", (*Type).IsInt64},
		{"u32", (*Type).IsUInt32},
		{"u64", (*Type).IsUInt64},
		{"f32", (*Type).IsFloat},
		{"f64", (*Type).IsDouble},
		{"string", (*Type).IsString},
	}
	for _, tc := range cases {
		if !tc.pred(NewType(tc.name)) {
			t.Fatalf("predicate for %q rejected its own type", tc.name)
		}
		if tc.pred(NewType("other")) {
			t.Fatalf("predicate for %q accepted a different type", tc.name)
		}
	}
}
