package managed

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
)

// System is the top-level lifecycle owner: it holds the engine, the
// settings snapshot, the set of execution contexts and the profiling
// frame stack. One System per process; its lifetime bounds the
// validity of everything it produced.
type System struct {
	eng        engine.Engine
	settings   Settings
	configData string

	contexts []*Context
	frames   []profFrame
	current  ProfilingData

	contextLoads   uint64
	contextUnloads uint64
	debugging      bool
	closed         bool
}

// NewSystem builds a System over an already-constructed engine. When
// settings point at a configuration file the file is read here;
// failure aborts system creation with no partial state.
func NewSystem(eng engine.Engine, settings Settings) (*System, error) {
	if eng == nil {
		return nil, errors.Usage(errors.PhaseSystem, "nil engine")
	}
	if settings.DomainName == "" {
		settings.DomainName = "managed-runtime"
	}
	configData := settings.ConfigData
	if settings.ConfigIsFile && settings.ConfigData != "" {
		data, err := os.ReadFile(settings.ConfigData)
		if err != nil {
			return nil, errors.Load("read runtime config "+settings.ConfigData, err)
		}
		configData = string(data)
	}
	return &System{
		eng:        eng,
		settings:   settings,
		configData: configData,
	}, nil
}

func (s *System) Engine() engine.Engine { return s.eng }
func (s *System) Settings() Settings    { return s.settings }

// ConfigData returns the resolved runtime configuration, with the
// file indirection already applied.
func (s *System) ConfigData() string { return s.configData }

// CreateContext builds and initializes a new execution context. An
// empty name uses the configured domain name.
func (s *System) CreateContext(ctx context.Context, name string) (*Context, error) {
	if s.closed {
		return nil, errors.NotInitialized(errors.PhaseSystem, "system")
	}
	if name == "" {
		name = s.settings.DomainName
	}
	c := newContext(s, name)
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	s.contexts = append(s.contexts, c)
	s.contextLoads++
	return c, nil
}

// DestroyContext tears a context down and removes it from the system.
func (s *System) DestroyContext(ctx context.Context, target *Context) error {
	if target == nil {
		return errors.Usage(errors.PhaseSystem, "nil context")
	}
	for i, c := range s.contexts {
		if c != target {
			continue
		}
		s.contexts = append(s.contexts[:i], s.contexts[i+1:]...)
		s.contextUnloads++
		return c.Close(ctx)
	}
	return errors.NotFound(errors.PhaseSystem, "context", target.Name())
}

// NumActiveContexts reports the number of live contexts.
func (s *System) NumActiveContexts() int { return len(s.contexts) }

// HeapSize is a point-in-time query with no consistency guarantee
// across calls.
func (s *System) HeapSize() uint64 { return s.eng.HeapSize() }

// UsedHeapSize is a point-in-time query with no consistency guarantee
// across calls.
func (s *System) UsedHeapSize() uint64 { return s.eng.UsedHeapSize() }

// RunGCCollect requests a collection pass for one generation and
// blocks until it completes. Weak objects may become invalid as a side
// effect.
func (s *System) RunGCCollect(ctx context.Context, generation int) error {
	return s.eng.CollectGarbage(ctx, generation)
}

// RunGCCollectAll collects every generation.
func (s *System) RunGCCollectAll(ctx context.Context) error {
	return s.eng.CollectGarbage(ctx, s.eng.MaxGCGeneration())
}

// MaxGCGeneration reports the engine's highest collectable generation.
func (s *System) MaxGCGeneration() int { return s.eng.MaxGCGeneration() }

// PushProfilingContext starts a new accumulation frame. Frames nest
// strictly.
func (s *System) PushProfilingContext() {
	s.frames = append(s.frames, profFrame{
		stats:   s.eng.Stats(),
		loads:   s.contextLoads,
		unloads: s.contextUnloads,
	})
}

// PopProfilingContext finalizes the innermost frame into
// CurrentProfilingData and returns it. Popping an empty stack is a
// usage error.
func (s *System) PopProfilingContext() (ProfilingData, error) {
	if len(s.frames) == 0 {
		return ProfilingData{}, errors.Usage(errors.PhaseSystem, "profiling pop without matching push")
	}
	frame := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	s.current = frameDelta(frame, s.eng.Stats(), s.contextLoads, s.contextUnloads)
	return s.current, nil
}

// CurrentProfilingData returns the most recently finalized frame.
func (s *System) CurrentProfilingData() ProfilingData { return s.current }

// ReportProfileStats logs the current profiling data, gated by the
// profiling settings.
func (s *System) ReportProfileStats() {
	if !s.settings.Profiling.Enabled {
		return
	}
	fields := make([]zap.Field, 0, 6)
	if s.settings.Profiling.Allocations {
		fields = append(fields,
			zap.Uint64("bytes_allocated", s.current.BytesAllocated),
			zap.Uint64("allocations", s.current.Allocations))
	}
	if s.settings.Profiling.Moves {
		fields = append(fields,
			zap.Uint64("bytes_moved", s.current.BytesMoved),
			zap.Uint64("moves", s.current.Moves))
	}
	if s.settings.Profiling.Contexts {
		fields = append(fields,
			zap.Uint64("context_loads", s.current.ContextLoads),
			zap.Uint64("context_unloads", s.current.ContextUnloads))
	}
	Logger().Info("profile stats", fields...)
}

// EnableDebugging turns the host-side debugging toggle on. Must be
// called before any context exists. The toggle is advisory: the stock
// engines attach no debugger, and embedders that wire their own debug
// transport read it back through DebuggingEnabled.
func (s *System) EnableDebugging() error {
	if len(s.contexts) > 0 {
		return errors.Usage(errors.PhaseSystem, "debugging must be enabled before contexts are created")
	}
	s.debugging = true
	Logger().Info("debugging enabled")
	return nil
}

// DebuggingEnabled reports the debugging toggle.
func (s *System) DebuggingEnabled() bool { return s.debugging }

// RegisterNativeFunction exposes a host function to managed code.
func (s *System) RegisterNativeFunction(name string, fn any) error {
	return s.eng.RegisterNativeFunction(name, fn)
}

// Close destroys every remaining context and shuts the engine down.
func (s *System) Close(ctx context.Context) error {
	if s.closed {
		return nil
	}
	s.closed = true
	for i := len(s.contexts) - 1; i >= 0; i-- {
		if err := s.contexts[i].Close(ctx); err != nil {
			Logger().Warn("context close failed during system shutdown",
				zap.String("context", s.contexts[i].Name()),
				zap.Error(err))
		}
		s.contextUnloads++
	}
	s.contexts = nil
	return s.eng.Close(ctx)
}
