package managed

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/managed-runtime/engine"
	"github.com/wippyai/managed-runtime/errors"
	"github.com/wippyai/managed-runtime/handle"
)

type classKey struct {
	namespace string
	name      string
}

// Assembly owns the class cache for one loaded image. The (namespace,
// name) store is multi-valued to tolerate duplicate registration
// during population.
type Assembly struct {
	context *Context
	image   engine.Image
	path    string
	cell    *handle.Cell

	populated bool
	unloaded  bool
	classes   map[classKey][]*Class
	ordered   []*Class
}

func newAssembly(owner *Context, image engine.Image, path string) *Assembly {
	a := &Assembly{
		context: owner,
		image:   image,
		path:    path,
		cell:    handle.NewCell(),
		classes: make(map[classKey][]*Class),
	}
	a.cell.Validate()
	return a
}

// Name returns the image's display name.
func (a *Assembly) Name() string { return a.image.Name() }

// Path returns the path the assembly was loaded from.
func (a *Assembly) Path() string { return a.path }

func (a *Assembly) Context() *Context { return a.context }

func (a *Assembly) Populated() bool { return a.populated }

// Handle issues a liveness view of this assembly. It reports invalid
// after Unload.
func (a *Assembly) Handle() handle.Handle[*Assembly] {
	return handle.Issue(a, a.cell)
}

// PopulateReflectionInfo enumerates every type in the image and builds
// a class shell for each. Member collections stay lazy. Idempotent.
func (a *Assembly) PopulateReflectionInfo(ctx context.Context) error {
	if a.populated {
		return nil
	}
	if a.unloaded {
		return errors.NotInitialized(errors.PhaseReflect, "assembly "+a.path)
	}
	defs, err := a.image.Types(ctx)
	if err != nil {
		return err
	}
	for _, def := range defs {
		c := newClass(a, def)
		key := classKey{namespace: def.Namespace, name: def.Name}
		a.classes[key] = append(a.classes[key], c)
		a.ordered = append(a.ordered, c)
	}
	a.populated = true

	Logger().Debug("populated assembly",
		zap.String("assembly", a.path),
		zap.Int("classes", len(a.ordered)))
	return nil
}

// DisposeReflectionInfo invalidates and releases every owned class,
// cascading into their members, and clears the cache. Any handle into
// this assembly's classes becomes invalid.
func (a *Assembly) DisposeReflectionInfo() {
	for _, c := range a.ordered {
		c.DisposeReflectionInfo()
	}
	a.classes = make(map[classKey][]*Class)
	a.ordered = nil
	a.populated = false
}

// Classes returns the owned classes in enumeration order, populating
// on first use.
func (a *Assembly) Classes(ctx context.Context) ([]*Class, error) {
	if err := a.PopulateReflectionInfo(ctx); err != nil {
		return nil, err
	}
	return a.ordered, nil
}

// FindClass looks a class up by namespace and simple name, populating
// on first use. Returns nil when no class matches.
func (a *Assembly) FindClass(ctx context.Context, namespace, name string) (*Class, error) {
	if err := a.PopulateReflectionInfo(ctx); err != nil {
		return nil, err
	}
	matches := a.classes[classKey{namespace: namespace, name: name}]
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

// GetReferencedTypes enumerates the full names of every external type
// this assembly references.
func (a *Assembly) GetReferencedTypes(ctx context.Context) ([]string, error) {
	if a.unloaded {
		return nil, errors.NotInitialized(errors.PhaseReflect, "assembly "+a.path)
	}
	return a.image.ReferencedTypes(ctx)
}

// ValidateAgainstWhitelist checks every externally-referenced type
// name against the allow-list, failing on the first disallowed
// reference. The returned error names the offending type.
func (a *Assembly) ValidateAgainstWhitelist(ctx context.Context, allowed []string) (bool, error) {
	refs, err := a.GetReferencedTypes(ctx)
	if err != nil {
		return false, err
	}
	allow := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		allow[name] = true
	}
	for _, ref := range refs {
		if !allow[ref] {
			Logger().Warn("whitelist violation",
				zap.String("assembly", a.path),
				zap.String("type", ref))
			return false, errors.WhitelistDenied(a.path, ref)
		}
	}
	return true, nil
}

// Unload disposes reflection info and releases the backing image. The
// assembly is not reusable afterwards.
func (a *Assembly) Unload(ctx context.Context) error {
	if a.unloaded {
		return nil
	}
	a.DisposeReflectionInfo()
	a.cell.Invalidate()
	a.unloaded = true
	return a.image.Unload(ctx)
}
