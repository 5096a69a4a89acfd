package transform

import (
	"fmt"
	"sync"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/harpoon/pkg/metrics"
	"github.com/chazu/harpoon/pkg/trie"
)

type explicitEntry struct {
	t   ExplicitTransformer
	seq uint64
}

func byPriorityThenSeq(a, b interface{}) int {
	ea, eb := a.(explicitEntry), b.(explicitEntry)
	switch {
	case ea.t.Priority() < eb.t.Priority():
		return -1
	case ea.t.Priority() > eb.t.Priority():
		return 1
	case ea.seq < eb.seq:
		return -1
	case ea.seq > eb.seq:
		return 1
	}
	return 0
}

// targetQueue is the pending work for one target name
type targetQueue struct {
	mu sync.Mutex
	pq *priorityqueue.Queue
}

// ExplicitRegistry holds one-shot transformers keyed by exact target name
type ExplicitRegistry struct {
	targets   *trie.Trie[*targetQueue]
	seq       uint64
	seqMu     sync.Mutex
	factories *Factories
	log       logr.Logger

	// Finer enables per-transformer logging in Apply
	Finer bool
}

// NewExplicitRegistry creates an empty explicit registry
func NewExplicitRegistry(factories *Factories) *ExplicitRegistry {
	if factories == nil {
		factories = NewFactories()
	}
	return &ExplicitRegistry{
		targets:   trie.New[*targetQueue](),
		factories: factories,
		log:       logf.Log.WithName("transform").WithName("explicit"),
	}
}

// WithLogger replaces the registry logger
func (r *ExplicitRegistry) WithLogger(log logr.Logger) *ExplicitRegistry {
	r.log = log
	return r
}

func (r *ExplicitRegistry) queueFor(target string) *targetQueue {
	return r.targets.Upsert(target, func(old *targetQueue, found bool) *targetQueue {
		if found {
			return old
		}
		return &targetQueue{pq: priorityqueue.NewWith(byPriorityThenSeq)}
	})
}

func (r *ExplicitRegistry) nextSeq() uint64 {
	r.seqMu.Lock()
	defer r.seqMu.Unlock()
	r.seq++
	return r.seq
}

// RegisterForTargets queues t against every target name
func (r *ExplicitRegistry) RegisterForTargets(targets []string, t ExplicitTransformer) {
	for _, target := range targets {
		q := r.queueFor(target)
		e := explicitEntry{t: t, seq: r.nextSeq()}
		q.mu.Lock()
		q.pq.Enqueue(e)
		q.mu.Unlock()
	}
	r.log.V(1).Info("registered explicit transformer", "transformer", t.Name(), "targets", targets)
}

// RegisterForTargetsByName instantiates an explicit transformer from the
// factory table and queues it against targets
func (r *ExplicitRegistry) RegisterForTargetsByName(targets []string, name string) error {
	t, err := r.factories.NewExplicit(name)
	if err != nil {
		metrics.RecordRegistrationError("explicit")
		r.log.Error(err, "failed to instantiate explicit transformer", "transformer", name, "targets", targets)
		return err
	}
	r.RegisterForTargets(targets, t)
	return nil
}

// Apply drains the queue registered for mappedName and returns the
// transformed content. Entries are removed before they run so each fires at
// most once, even when it fails. Targets with no pending work return
// content unchanged.
func (r *ExplicitRegistry) Apply(mappedName string, content []byte) ([]byte, error) {
	q, ok := r.targets.Get(mappedName)
	if !ok {
		return content, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		v, ok := q.pq.Dequeue()
		if !ok {
			return content, nil
		}
		e := v.(explicitEntry)
		out, err := e.t.Transform(mappedName, content)
		if err != nil {
			return nil, fmt.Errorf("explicit transformer %s failed on %s: %w", e.t.Name(), mappedName, err)
		}
		if r.Finer {
			r.log.Info("applied explicit transformer", "transformer", e.t.Name(), "unit", mappedName,
				"in", len(content), "out", len(out))
		}
		metrics.RecordTransform(e.t.Name())
		content = out
	}
}

// Pending returns the number of queued transformers for target
func (r *ExplicitRegistry) Pending(target string) int {
	q, ok := r.targets.Get(target)
	if !ok {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pq.Size()
}

// Targets lists every name that ever had an explicit transformer queued
func (r *ExplicitRegistry) Targets() []string {
	return r.targets.Keys()
}
