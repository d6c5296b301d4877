package managed

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/managed-runtime/enginetest"
	"github.com/wippyai/managed-runtime/errors"
)

func TestProfilingFramesNestStrictly(t *testing.T) {
	ctx := context.Background()
	sys, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	sys.PushProfilingContext()
	if _, _, err := class.CreateInstance(ctx, nil); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	sys.PushProfilingContext()
	if _, _, err := class.CreateInstance(ctx, nil); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}

	inner, err := sys.PopProfilingContext()
	if err != nil {
		t.Fatalf("inner pop: %v", err)
	}
	outer, err := sys.PopProfilingContext()
	if err != nil {
		t.Fatalf("outer pop: %v", err)
	}

	if inner.Allocations != 1 {
		t.Fatalf("inner allocations = %d, want 1", inner.Allocations)
	}
	if outer.Allocations != 2 {
		t.Fatalf("outer allocations = %d, want 2", outer.Allocations)
	}
	if got := sys.CurrentProfilingData(); got != outer {
		t.Fatalf("CurrentProfilingData = %+v, want last finalized frame", got)
	}

	if _, err := sys.PopProfilingContext(); !stderrors.Is(err, errors.Usage(errors.PhaseSystem, "")) {
		t.Fatalf("pop of empty stack = %v, want usage error", err)
	}
}

func TestProfilingCountsContextChurn(t *testing.T) {
	ctx := context.Background()
	sys, _, _ := newTestSystem(t)

	sys.PushProfilingContext()
	extra, err := sys.CreateContext(ctx, "extra")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if err := sys.DestroyContext(ctx, extra); err != nil {
		t.Fatalf("DestroyContext: %v", err)
	}
	data, err := sys.PopProfilingContext()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if data.ContextLoads != 1 || data.ContextUnloads != 1 {
		t.Fatalf("context churn = %d/%d, want 1/1", data.ContextLoads, data.ContextUnloads)
	}
}

func TestGCGenerationPassthrough(t *testing.T) {
	ctx := context.Background()
	sys, _, _ := newTestSystem(t)

	if sys.MaxGCGeneration() != 2 {
		t.Fatalf("MaxGCGeneration = %d", sys.MaxGCGeneration())
	}
	if err := sys.RunGCCollect(ctx, 0); err != nil {
		t.Fatalf("RunGCCollect(0): %v", err)
	}
	if err := sys.RunGCCollect(ctx, sys.MaxGCGeneration()+1); err == nil {
		t.Fatal("out-of-range generation should fail")
	}
}

func TestHeapQueries(t *testing.T) {
	ctx := context.Background()
	sys, c, _ := newTestSystem(t)
	class := findPlayer(t, c)

	if sys.HeapSize() == 0 {
		t.Fatal("heap capacity should be non-zero")
	}
	before := sys.UsedHeapSize()
	if _, _, err := class.CreateInstance(ctx, nil); err != nil {
		t.Fatalf("CreateInstance: %v", err)
	}
	if sys.UsedHeapSize() <= before {
		t.Fatal("used heap should grow after instantiation")
	}
}

func TestLoadSettingsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	content := []byte(`domain_name: game-host
config_is_file: false
config_data: "threads=4"
profiling:
  enabled: true
  allocations: true
`)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	s, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if s.DomainName != "game-host" || s.ConfigData != "threads=4" {
		t.Fatalf("settings = %+v", s)
	}
	if !s.Profiling.Enabled || !s.Profiling.Allocations || s.Profiling.Moves {
		t.Fatalf("profiling = %+v", s.Profiling)
	}

	if _, err := LoadSettings(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("missing settings file should fail")
	}
}

func TestConfigFileIndirection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.cfg")
	if err := os.WriteFile(path, []byte("gc=sgen"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	sys, err := NewSystem(enginetest.New(), Settings{ConfigIsFile: true, ConfigData: path})
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	defer sys.Close(context.Background())
	if sys.ConfigData() != "gc=sgen" {
		t.Fatalf("ConfigData = %q", sys.ConfigData())
	}

	if _, err := NewSystem(enginetest.New(), Settings{ConfigIsFile: true, ConfigData: filepath.Join(dir, "missing.cfg")}); err == nil {
		t.Fatal("missing config file should abort system creation")
	}
}

func TestNewSystemRejectsNilEngine(t *testing.T) {
	if _, err := NewSystem(nil, Settings{}); err == nil {
		t.Fatal("nil engine should be rejected")
	}
}

func TestDebuggingMustPrecedeContexts(t *testing.T) {
	ctx := context.Background()
	sys, err := NewSystem(enginetest.New(), Settings{})
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	defer sys.Close(ctx)

	if err := sys.EnableDebugging(); err != nil {
		t.Fatalf("EnableDebugging: %v", err)
	}
	if !sys.DebuggingEnabled() {
		t.Fatal("debugging flag not set")
	}
	if _, err := sys.CreateContext(ctx, "a"); err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	if err := sys.EnableDebugging(); err == nil {
		t.Fatal("EnableDebugging after context creation should fail")
	}
}

func TestDestroyContextRejectsNilAndForeign(t *testing.T) {
	ctx := context.Background()
	sys, err := NewSystem(enginetest.New(), Settings{})
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	defer sys.Close(ctx)

	err = sys.DestroyContext(ctx, nil)
	if !stderrors.Is(err, errors.Usage(errors.PhaseSystem, "")) {
		t.Fatalf("DestroyContext(nil) = %v, want usage error", err)
	}

	other, err := NewSystem(enginetest.New(), Settings{})
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	defer other.Close(ctx)
	foreign, err := other.CreateContext(ctx, "elsewhere")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	err = sys.DestroyContext(ctx, foreign)
	if !stderrors.Is(err, errors.NotFound(errors.PhaseSystem, "", "")) {
		t.Fatalf("DestroyContext(foreign) = %v, want not-found error", err)
	}
}

func TestSystemCloseTearsDownContexts(t *testing.T) {
	ctx := context.Background()
	eng := enginetest.New()
	eng.AddImage("game.dll", gameImage())
	sys, err := NewSystem(eng, Settings{DomainName: "test"})
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	c, err := sys.CreateContext(ctx, "")
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}
	h := c.Handle()

	if err := sys.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if h.Valid() {
		t.Fatal("context handle survived system shutdown")
	}
	if _, err := sys.CreateContext(ctx, "late"); err == nil {
		t.Fatal("closed system should reject new contexts")
	}
	if err := sys.Close(ctx); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
