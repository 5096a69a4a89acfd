package transform

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/harpoon/pkg/metrics"
)

type entry struct {
	t   Transformer
	seq uint64
}

// pipeline is an immutable snapshot of the registry. Readers load it once
// per call and never observe a half-applied registration.
type pipeline struct {
	entries  []entry
	remapper Remapper
}

// Registry holds the globally applied transformer pipeline
type Registry struct {
	mu        sync.Mutex
	seq       uint64
	snapshot  atomic.Pointer[pipeline]
	factories *Factories
	log       logr.Logger

	// Finer enables per-transformer logging in Apply
	Finer bool
}

// NewRegistry creates an empty registry. factories may be nil when name
// based registration is not needed.
func NewRegistry(factories *Factories) *Registry {
	if factories == nil {
		factories = NewFactories()
	}
	r := &Registry{
		factories: factories,
		log:       logf.Log.WithName("transform"),
	}
	r.snapshot.Store(&pipeline{})
	return r
}

// WithLogger replaces the registry logger
func (r *Registry) WithLogger(log logr.Logger) *Registry {
	r.log = log
	return r
}

// publish builds a new snapshot from the current one. Caller holds mu.
func (r *Registry) publish(fn func(p *pipeline)) {
	cur := r.snapshot.Load()
	next := &pipeline{
		entries:  append([]entry(nil), cur.entries...),
		remapper: cur.remapper,
	}
	fn(next)
	sort.SliceStable(next.entries, func(i, j int) bool {
		a, b := next.entries[i], next.entries[j]
		if a.t.Priority() != b.t.Priority() {
			return a.t.Priority() < b.t.Priority()
		}
		return a.seq < b.seq
	})
	r.snapshot.Store(next)
}

// Register adds t to the pipeline
func (r *Registry) Register(t Transformer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	seq := r.seq
	r.publish(func(p *pipeline) {
		p.entries = append(p.entries, entry{t: t, seq: seq})
	})
	r.log.V(1).Info("registered transformer", "transformer", t.Name(), "priority", t.Priority())
}

// RegisterByName instantiates a transformer from the factory table and
// registers it. Failures are logged and returned; the registry is unchanged.
func (r *Registry) RegisterByName(name string) error {
	t, err := r.factories.NewTransformer(name)
	if err != nil {
		metrics.RecordRegistrationError("pipeline")
		r.log.Error(err, "failed to instantiate transformer", "transformer", name)
		return err
	}
	r.Register(t)
	return nil
}

// RegisterRemapper adds rm to the pipeline and makes it the active remapper
// if none is active yet. It reports whether rm became active.
func (r *Registry) RegisterRemapper(rm Remapper) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	seq := r.seq
	activated := false
	r.publish(func(p *pipeline) {
		p.entries = append(p.entries, entry{t: rm, seq: seq})
		if p.remapper == nil {
			p.remapper = rm
			activated = true
		}
	})
	if activated {
		r.log.Info("activated name remapper", "transformer", rm.Name())
	} else {
		r.log.Info("name remapper already active, registered as plain transformer", "transformer", rm.Name())
	}
	return activated
}

// RegisterRemapperByName instantiates a remapper from the factory table and
// registers it
func (r *Registry) RegisterRemapperByName(name string) error {
	rm, err := r.factories.NewRemapper(name)
	if err != nil {
		metrics.RecordRegistrationError("remapper")
		r.log.Error(err, "failed to instantiate remapper", "transformer", name)
		return err
	}
	r.RegisterRemapper(rm)
	return nil
}

// Unregister removes every transformer whose Name equals name and reports
// how many were removed. Removing the active remapper deactivates it.
func (r *Registry) Unregister(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	r.publish(func(p *pipeline) {
		kept := p.entries[:0]
		for _, e := range p.entries {
			if e.t.Name() == name {
				removed++
				continue
			}
			kept = append(kept, e)
		}
		p.entries = kept
		if p.remapper != nil && p.remapper.Name() == name {
			p.remapper = nil
		}
	})
	return removed
}

// Apply runs content through the pipeline in ascending priority. The first
// transformer error aborts the chain.
func (r *Registry) Apply(name, mappedName string, content []byte) ([]byte, error) {
	p := r.snapshot.Load()
	for _, e := range p.entries {
		out, err := e.t.Transform(name, mappedName, content)
		if err != nil {
			return nil, fmt.Errorf("transformer %s failed on %s: %w", e.t.Name(), name, err)
		}
		if r.Finer {
			r.log.Info("applied transformer", "transformer", e.t.Name(), "unit", name,
				"in", len(content), "out", len(out))
		}
		metrics.RecordTransform(e.t.Name())
		content = out
	}
	return content, nil
}

// MapName translates name through the active remapper
func (r *Registry) MapName(name string) string {
	if rm := r.snapshot.Load().remapper; rm != nil {
		return rm.RemapName(name)
	}
	return name
}

// UnmapName translates a mapped name back through the active remapper
func (r *Registry) UnmapName(name string) string {
	if rm := r.snapshot.Load().remapper; rm != nil {
		return rm.UnmapName(name)
	}
	return name
}

// Remapper returns the active remapper, if any
func (r *Registry) Remapper() Remapper {
	return r.snapshot.Load().remapper
}

// Transformers returns the pipeline in application order
func (r *Registry) Transformers() []Transformer {
	p := r.snapshot.Load()
	out := make([]Transformer, len(p.entries))
	for i, e := range p.entries {
		out[i] = e.t
	}
	return out
}

// Len returns the number of registered transformers
func (r *Registry) Len() int {
	return len(r.snapshot.Load().entries)
}
