package loader

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/opencontainers/go-digest"

	"github.com/chazu/harpoon/pkg/metrics"
	"github.com/chazu/harpoon/pkg/resource"
	"github.com/chazu/harpoon/pkg/transform"
	"github.com/chazu/harpoon/pkg/trie"
)

// Load outcomes used for metrics
const (
	resultDefined   = "defined"
	resultCached    = "cached"
	resultDelegated = "delegated"
	resultFailed    = "failed"
)

// Parent loads the units a Loader excludes
type Parent interface {
	Load(name string) (Handle, error)
}

// ParentFunc adapts a function to Parent
type ParentFunc func(name string) (Handle, error)

// Load calls f(name)
func (f ParentFunc) Load(name string) (Handle, error) { return f(name) }

// Loader is the unit resolution state machine. It is safe for concurrent
// use. Two callers racing on the same uncached name may both resolve and
// transform it; only one result is kept and both receive it.
type Loader struct {
	parent       Parent
	store        *resource.Store
	transformers *transform.Registry
	explicit     *transform.ExplicitRegistry
	definer      Definer
	log          logr.Logger

	exclusions            *trie.Trie[bool]
	transformerExclusions *trie.Trie[bool]

	finalized sync.Map // name -> Handle
	invalid   sync.Map // name -> error
	packages  packages

	debug   Debug
	dumpMu  sync.Mutex
	dumpDir string
}

// New creates a Loader from opts
func New(opts Options) *Loader {
	opts.setDefaults()

	l := &Loader{
		parent:                opts.Parent,
		store:                 opts.Store,
		transformers:          opts.Transformers,
		explicit:              opts.Explicit,
		definer:               opts.Definer,
		log:                   opts.Logger,
		exclusions:            trie.New[bool](),
		transformerExclusions: trie.New[bool](),
		debug:                 opts.Debug,
	}

	l.store.Trace = opts.Debug.Trace
	l.transformers.Finer = opts.Debug.Finer
	l.explicit.Finer = opts.Debug.Finer

	for _, prefix := range opts.Exclusions {
		l.AddExclusion(prefix)
	}
	for _, prefix := range opts.TransformerExclusions {
		l.AddTransformerExclusion(prefix)
	}

	if opts.Debug.DumpDir != "" {
		if err := os.MkdirAll(opts.Debug.DumpDir, 0o755); err == nil {
			l.dumpDir = opts.Debug.DumpDir
		}
	}
	return l
}

// Load returns the finalized handle for name
func (l *Loader) Load(name string) (Handle, error) {
	start := time.Now()
	h, result, err := l.load(name)
	metrics.RecordLoad(result, time.Since(start).Seconds())
	return h, err
}

func (l *Loader) load(name string) (h Handle, result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, result, err = nil, resultFailed, l.fail(name, fmt.Errorf("panic while loading: %v", r))
		}
	}()

	if l.debug.Trace {
		l.log.Info("loading unit", "unit", name)
	}

	if _, bad := l.invalid.Load(name); bad {
		return nil, resultFailed, &NotFoundError{Name: name, Cause: ErrPreviouslyFailed}
	}

	if _, excluded := l.exclusions.FirstAncestor(name); excluded {
		if l.parent == nil {
			return nil, resultDelegated, &NotFoundError{Name: name, Cause: ErrNoParent}
		}
		h, err := l.parent.Load(name)
		return h, resultDelegated, err
	}

	if h, ok := l.finalized.Load(name); ok {
		return h.(Handle), resultCached, nil
	}

	mappedName := l.transformers.MapName(name)
	if h, ok := l.finalized.Load(mappedName); ok {
		return h.(Handle), resultCached, nil
	}

	unmappedName := l.transformers.UnmapName(name)
	res, content, found, err := l.store.Resolve(unmappedName)
	if err != nil {
		return nil, resultFailed, l.fail(name, err)
	}
	if !found {
		return nil, resultFailed, l.fail(name, nil)
	}

	pkg, signers := l.attributePackage(unmappedName, res, content)

	u := &Unit{
		Resource: res,
		Package:  pkg,
		Signers:  signers,
	}

	if _, targeted := l.transformerExclusions.FirstAncestor(name); targeted {
		out, err := l.explicit.Apply(mappedName, content)
		if err != nil {
			return nil, resultFailed, l.fail(name, err)
		}
		u.Name = name
		u.Content = out
		h, err := l.finalize(name, mappedName, u)
		if err != nil {
			return nil, resultFailed, l.fail(name, err)
		}
		return h, resultDefined, nil
	}

	out, err := l.transformers.Apply(unmappedName, mappedName, content)
	if err == nil {
		out, err = l.explicit.Apply(mappedName, out)
	}
	if err != nil {
		return nil, resultFailed, l.fail(name, err)
	}
	u.Name = mappedName
	u.Content = out
	h, err = l.finalize(mappedName, mappedName, u)
	if err != nil {
		return nil, resultFailed, l.fail(name, err)
	}
	return h, resultDefined, nil
}

// finalize defines u and publishes it under key. If another caller got
// there first its handle is returned instead.
func (l *Loader) finalize(key, mappedName string, u *Unit) (Handle, error) {
	h, err := l.definer.Define(u)
	if err != nil {
		return nil, err
	}

	actual, loaded := l.finalized.LoadOrStore(key, h)
	if loaded {
		return actual.(Handle), nil
	}
	metrics.IncrementFinalizedUnits()
	l.dump(mappedName, u.Content)
	if l.debug.Trace {
		l.log.Info("finalized unit", "unit", key, "location", u.Location(), "size", len(u.Content))
	}
	return h, nil
}

func (l *Loader) fail(name string, cause error) error {
	l.invalid.Store(name, cause)
	if cause != nil {
		l.log.Error(cause, "failed to load unit", "unit", name)
	} else if l.debug.Trace {
		l.log.Info("unit not found", "unit", name)
	}
	return &NotFoundError{Name: name, Cause: cause}
}

// attributePackage records the unit's namespace as a package and checks
// seal consistency. Problems are logged; they never fail the load.
func (l *Loader) attributePackage(unmappedName string, res *resource.Resource, content []byte) (*Package, []digest.Digest) {
	namespace, ok := namespaceOf(unmappedName)
	if !ok || res == nil {
		return nil, nil
	}

	if res.Bundle == nil {
		pkg, created := l.packages.define(&Package{Name: namespace})
		if !created && pkg.Sealed && pkg.SealBase != res.Location {
			l.integrityWarning("sealed-package", "source is defining units in a sealed package",
				"package", namespace, "location", res.Location, "sealedBy", pkg.SealBase)
		}
		return pkg, nil
	}

	m := res.Bundle
	pkg, created := l.packages.define(packageFromManifest(namespace, m, res.Location))
	if !created {
		switch {
		case pkg.Sealed && pkg.SealBase != res.Location:
			l.integrityWarning("sealed-package", "bundle is defining units in a package sealed by another bundle",
				"package", namespace, "location", res.Location, "sealedBy", pkg.SealBase)
		case !pkg.Sealed && m.IsSealed(namespace):
			l.integrityWarning("unsealed-package", "bundle seals a package that is already defined unsealed",
				"package", namespace, "location", res.Location)
		}
	}

	var signers []digest.Digest
	d, listed, err := m.Verify(res.Path, content)
	switch {
	case err != nil:
		l.integrityWarning("digest-mismatch", "entry digest does not verify",
			"unit", unmappedName, "location", res.Location, "error", err.Error())
	case listed:
		signers = []digest.Digest{d}
	}
	return pkg, signers
}

func (l *Loader) integrityWarning(reason, msg string, keysAndValues ...any) {
	metrics.RecordIntegrityWarning(reason)
	l.log.Info(msg, append([]any{"integrity", reason}, keysAndValues...)...)
}

// AddExclusion delegates every name starting with prefix to the parent
func (l *Loader) AddExclusion(prefix string) {
	l.exclusions.Put(prefix, true)
}

// AddTransformerExclusion restricts names starting with prefix to their
// explicit transformers
func (l *Loader) AddTransformerExclusion(prefix string) {
	l.transformerExclusions.Put(prefix, true)
}

// IsExcluded reports whether name is delegated to the parent
func (l *Loader) IsExcluded(name string) bool {
	_, ok := l.exclusions.FirstAncestor(name)
	return ok
}

// IsTransformerExcluded reports whether name skips the global pipeline
func (l *Loader) IsTransformerExcluded(name string) bool {
	_, ok := l.transformerExclusions.FirstAncestor(name)
	return ok
}

// RegisterTransformer adds t to the global pipeline
func (l *Loader) RegisterTransformer(t transform.Transformer) {
	l.transformers.Register(t)
}

// RegisterTransformerByName adds a factory-built transformer to the global
// pipeline
func (l *Loader) RegisterTransformerByName(name string) error {
	return l.transformers.RegisterByName(name)
}

// UnregisterTransformer removes every transformer called name
func (l *Loader) UnregisterTransformer(name string) int {
	return l.transformers.Unregister(name)
}

// RegisterRemapper adds a name remapper
func (l *Loader) RegisterRemapper(r transform.Remapper) bool {
	return l.transformers.RegisterRemapper(r)
}

// RegisterRemapperByName adds a factory-built name remapper
func (l *Loader) RegisterRemapperByName(name string) error {
	return l.transformers.RegisterRemapperByName(name)
}

// RegisterExplicitTransformer queues t against targets
func (l *Loader) RegisterExplicitTransformer(targets []string, t transform.ExplicitTransformer) {
	l.explicit.RegisterForTargets(targets, t)
}

// RegisterExplicitTransformerByName queues a factory-built explicit
// transformer against targets
func (l *Loader) RegisterExplicitTransformerByName(targets []string, name string) error {
	return l.explicit.RegisterForTargetsByName(targets, name)
}

// AddSource appends a source to the store search order
func (l *Loader) AddSource(src resource.Source) {
	l.store.AddSource(src)
}

// Sources returns the store search order
func (l *Loader) Sources() []resource.Source {
	return l.store.Sources()
}

// ClearNegativeEntries lets the store look for names again. Poisoned names
// stay poisoned.
func (l *Loader) ClearNegativeEntries(names ...string) {
	l.store.ClearNegative(names...)
}

// Finalized returns the cached handle for name
func (l *Loader) Finalized(name string) (Handle, bool) {
	h, ok := l.finalized.Load(name)
	if !ok {
		return nil, false
	}
	return h.(Handle), true
}

// FinalizedNames lists every cached name, sorted
func (l *Loader) FinalizedNames() []string {
	var names []string
	l.finalized.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// IsInvalid reports whether name is poisoned
func (l *Loader) IsInvalid(name string) bool {
	_, ok := l.invalid.Load(name)
	return ok
}

// InvalidNames lists every poisoned name, sorted
func (l *Loader) InvalidNames() []string {
	var names []string
	l.invalid.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Package returns the package defined for namespace
func (l *Loader) Package(namespace string) (*Package, bool) {
	return l.packages.get(namespace)
}

// PackageNames lists every defined namespace, sorted
func (l *Loader) PackageNames() []string {
	return l.packages.names()
}

// Transformers returns the global pipeline registry
func (l *Loader) Transformers() *transform.Registry { return l.transformers }

// Explicit returns the explicit transformer registry
func (l *Loader) Explicit() *transform.ExplicitRegistry { return l.explicit }

// Store returns the resource store
func (l *Loader) Store() *resource.Store { return l.store }
