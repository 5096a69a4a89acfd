package transform

// Transformer rewrites the raw content of a unit before it is finalized.
// Implementations must not have side effects beyond their return value: the
// loader may run the pipeline for the same unit more than once and discard
// all but one result.
type Transformer interface {
	// Name is the stable identity used for unregistration
	Name() string
	// Priority orders the pipeline; lower runs first
	Priority() int
	// Transform receives the unmapped name, the mapped name and the output
	// of the previous transformer. content may be nil.
	Transform(name, mappedName string, content []byte) ([]byte, error)
}

// Remapper is a Transformer that also translates unit names in both
// directions.
type Remapper interface {
	Transformer
	RemapName(name string) string
	UnmapName(name string) string
}

// ExplicitTransformer is a one-shot rewrite registered against specific
// target names.
type ExplicitTransformer interface {
	Name() string
	Priority() int
	Transform(mappedName string, content []byte) ([]byte, error)
}

// Func is the signature of a pipeline transformation
type Func func(name, mappedName string, content []byte) ([]byte, error)

// ExplicitFunc is the signature of an explicit transformation
type ExplicitFunc func(mappedName string, content []byte) ([]byte, error)

type funcTransformer struct {
	name     string
	priority int
	fn       Func
}

// New wraps fn as a Transformer
func New(name string, priority int, fn Func) Transformer {
	return &funcTransformer{name: name, priority: priority, fn: fn}
}

func (t *funcTransformer) Name() string  { return t.name }
func (t *funcTransformer) Priority() int { return t.priority }

func (t *funcTransformer) Transform(name, mappedName string, content []byte) ([]byte, error) {
	return t.fn(name, mappedName, content)
}

type funcExplicit struct {
	name     string
	priority int
	fn       ExplicitFunc
}

// NewExplicit wraps fn as an ExplicitTransformer
func NewExplicit(name string, priority int, fn ExplicitFunc) ExplicitTransformer {
	return &funcExplicit{name: name, priority: priority, fn: fn}
}

func (t *funcExplicit) Name() string  { return t.name }
func (t *funcExplicit) Priority() int { return t.priority }

func (t *funcExplicit) Transform(mappedName string, content []byte) ([]byte, error) {
	return t.fn(mappedName, content)
}

// Mapping is a Remapper backed by a fixed name table. Content passes
// through unchanged.
type Mapping struct {
	name     string
	priority int
	forward  map[string]string
	reverse  map[string]string
}

// NewMapping builds a Remapper from original → mapped name pairs
func NewMapping(name string, priority int, pairs map[string]string) *Mapping {
	m := &Mapping{
		name:     name,
		priority: priority,
		forward:  make(map[string]string, len(pairs)),
		reverse:  make(map[string]string, len(pairs)),
	}
	for from, to := range pairs {
		m.forward[from] = to
		m.reverse[to] = from
	}
	return m
}

func (m *Mapping) Name() string  { return m.name }
func (m *Mapping) Priority() int { return m.priority }

// Transform returns content unchanged
func (m *Mapping) Transform(_, _ string, content []byte) ([]byte, error) {
	return content, nil
}

// RemapName returns the mapped form of name, or name if it has none
func (m *Mapping) RemapName(name string) string {
	if mapped, ok := m.forward[name]; ok {
		return mapped
	}
	return name
}

// UnmapName returns the original form of a mapped name, or name itself
func (m *Mapping) UnmapName(name string) string {
	if orig, ok := m.reverse[name]; ok {
		return orig
	}
	return name
}
