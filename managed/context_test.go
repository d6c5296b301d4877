package managed

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/managed-runtime/errors"
)

func TestLoadFailureLeavesNoPartialState(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newTestSystem(t)

	before := c.NumAssemblies()
	if _, err := c.LoadAssembly(ctx, "missing.dll"); err == nil {
		t.Fatal("loading a non-existent path should fail")
	}
	if c.NumAssemblies() != before {
		t.Fatal("failed load changed the loaded-assembly list")
	}
}

func TestUnloadAssemblyInvalidatesHandles(t *testing.T) {
	ctx := context.Background()
	_, c, asm := newTestSystem(t)

	class := findPlayer(t, c)
	asmHandle := asm.Handle()
	classHandle := class.Handle()
	methodHandle := class.FindMethod("ping").Handle()

	if err := c.UnloadAssembly(ctx, "game.dll"); err != nil {
		t.Fatalf("UnloadAssembly: %v", err)
	}
	if c.NumAssemblies() != 0 {
		t.Fatalf("NumAssemblies = %d after unload", c.NumAssemblies())
	}
	if asmHandle.Valid() || classHandle.Valid() || methodHandle.Valid() {
		t.Fatal("handles survived assembly unload")
	}

	if err := c.UnloadAssembly(ctx, "game.dll"); !stderrors.Is(err, errors.NotFound(errors.PhaseLoad, "", "")) {
		t.Fatalf("second unload = %v, want not-found", err)
	}
}

func TestFindAssembly(t *testing.T) {
	_, c, asm := newTestSystem(t)

	if c.FindAssembly("game.dll") != asm {
		t.Fatal("FindAssembly by path failed")
	}
	if c.FindAssembly("other.dll") != nil {
		t.Fatal("FindAssembly for an unknown name should return nil")
	}
}

func TestFindClassSearchesLoadOrder(t *testing.T) {
	ctx := context.Background()
	_, c, asm := newTestSystem(t)

	global, err := c.FindClass(ctx, "Game", "Player")
	if err != nil || global == nil {
		t.Fatalf("FindClass: %v", err)
	}
	scoped, err := asm.FindClass(ctx, "Game", "Player")
	if err != nil || scoped != global {
		t.Fatalf("scoped lookup = %v, %v", scoped, err)
	}
	missing, err := c.FindClass(ctx, "Game", "Nothing")
	if err != nil || missing != nil {
		t.Fatalf("unknown class = %v, %v", missing, err)
	}
}

func TestClearReflectionInfoInvalidatesHandles(t *testing.T) {
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)
	h := class.Handle()

	c.ClearReflectionInfo()
	if h.Valid() {
		t.Fatal("class handle survived ClearReflectionInfo")
	}
	if c.NumAssemblies() != 1 {
		t.Fatal("ClearReflectionInfo should not unload assemblies")
	}
}

func TestExceptionCallbacksRunInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	var order []string
	c.RegisterExceptionCallback(func(exc *Exception, assembly string) {
		order = append(order, "first:"+exc.Message)
	})
	c.RegisterExceptionCallback(func(exc *Exception, assembly string) {
		order = append(order, "second:"+assembly)
	})

	obj, _, _ := class.CreateInstance(ctx, nil)
	if _, exc, err := obj.InvokeByName(ctx, "boom"); err != nil || exc == nil {
		t.Fatalf("boom: err=%v exc=%v", err, exc)
	}

	if len(order) != 2 || order[0] != "first:boom" || order[1] != "second:game.dll" {
		t.Fatalf("callback order = %v", order)
	}
}

func TestInitRunsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	_, c, _ := newTestSystem(t)

	if err := c.Init(ctx); !stderrors.Is(err, errors.Usage(errors.PhaseContext, "")) {
		t.Fatalf("second Init = %v, want usage error", err)
	}
}

func TestWhitelistValidation(t *testing.T) {
	ctx := context.Background()
	_, c, asm := newTestSystem(t)

	refs, err := asm.GetReferencedTypes(ctx)
	if err != nil {
		t.Fatalf("GetReferencedTypes: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("referenced types = %v", refs)
	}

	ok, err := c.ValidateAgainstWhitelist(ctx, []string{"System.Object", "System.String"})
	if err != nil || !ok {
		t.Fatalf("full whitelist = %v, %v", ok, err)
	}
	ok, err = c.ValidateAgainstWhitelist(ctx, []string{"System.Object"})
	if ok {
		t.Fatal("partial whitelist should fail")
	}
	if !stderrors.Is(err, errors.WhitelistDenied("", "")) {
		t.Fatalf("partial whitelist error = %v, want whitelist denial", err)
	}
}

func TestContextCloseUnloadsEverything(t *testing.T) {
	ctx := context.Background()
	sys, c, asm := newTestSystem(t)

	h := asm.Handle()
	if err := sys.DestroyContext(ctx, c); err != nil {
		t.Fatalf("DestroyContext: %v", err)
	}
	if h.Valid() {
		t.Fatal("assembly handle survived context teardown")
	}
	if sys.NumActiveContexts() != 0 {
		t.Fatalf("NumActiveContexts = %d", sys.NumActiveContexts())
	}
	if err := sys.DestroyContext(ctx, c); err == nil {
		t.Fatal("destroying a removed context should fail")
	}
}
