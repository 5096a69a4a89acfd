package launch

import (
	"github.com/authzed/controller-idioms/typedctx"
)

// Context keys for the bootstrap pipeline
var (
	// CtxState carries the bootstrap progress between handlers
	CtxState = typedctx.NewKey[*state]()

	// CtxOptions are the launch options
	CtxOptions = typedctx.NewKey[Options]()
)

type instance struct {
	name      string
	component Component
}

// state is mutated by the handlers in order; the pipeline is single
// threaded.
type state struct {
	queue      []string
	visited    map[string]struct{}
	components []instance
	primary    string
	arguments  []string
	target     string
	shared     map[string]any
	provenance *Provenance
	err        error
}

func newState(names []string) *state {
	st := &state{
		queue:      append([]string(nil), names...),
		visited:    make(map[string]struct{}),
		shared:     make(map[string]any),
		provenance: newProvenance(),
	}
	for _, n := range names {
		st.provenance.addComponent(n)
	}
	return st
}

func (s *state) fail(stage string, err error) {
	s.err = &FatalError{Stage: stage, Err: err}
}

func (s *state) result() *Result {
	r := &Result{
		Primary:    s.primary,
		Arguments:  s.arguments,
		Target:     s.target,
		Provenance: s.provenance,
	}
	for _, c := range s.components {
		r.Components = append(r.Components, c.name)
	}
	return r
}

// Result describes a finished (or aborted) bootstrap
type Result struct {
	// Primary is the first component processed
	Primary string
	// Components in processing order
	Components []string
	// Arguments handed to the entry point
	Arguments []string
	// Target is the launch target of the primary component
	Target     string
	Provenance *Provenance
}
