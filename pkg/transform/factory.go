package transform

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrUnknownTransformer is returned when a name has no registered factory
	ErrUnknownTransformer = errors.New("unknown transformer")
	// ErrNotRemapper is returned when a remapper is requested by a name whose
	// factory builds a plain Transformer
	ErrNotRemapper = errors.New("transformer does not remap names")
)

// RegistrationError reports a transformer that could not be instantiated or
// registered. It never stops the loader.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("failed to register transformer %s: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// TransformerFactory builds a pipeline transformer
type TransformerFactory func() (Transformer, error)

// ExplicitFactory builds an explicit transformer
type ExplicitFactory func() (ExplicitTransformer, error)

// Factories maps string identities to constructors. Entries are usually
// added from init functions or at program startup, before configuration
// refers to them by name.
type Factories struct {
	mu           sync.RWMutex
	transformers map[string]TransformerFactory
	explicit     map[string]ExplicitFactory
}

// NewFactories creates an empty factory table
func NewFactories() *Factories {
	return &Factories{
		transformers: make(map[string]TransformerFactory),
		explicit:     make(map[string]ExplicitFactory),
	}
}

// AddTransformer registers a pipeline transformer (or remapper) factory
func (f *Factories) AddTransformer(name string, fn TransformerFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transformers[name] = fn
}

// AddExplicit registers an explicit transformer factory
func (f *Factories) AddExplicit(name string, fn ExplicitFactory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.explicit[name] = fn
}

// NewTransformer instantiates the transformer registered under name
func (f *Factories) NewTransformer(name string) (Transformer, error) {
	f.mu.RLock()
	fn, ok := f.transformers[name]
	f.mu.RUnlock()
	if !ok {
		return nil, &RegistrationError{Name: name, Err: ErrUnknownTransformer}
	}

	t, err := fn()
	if err != nil {
		return nil, &RegistrationError{Name: name, Err: err}
	}
	if t == nil {
		return nil, &RegistrationError{Name: name, Err: errors.New("factory returned nil")}
	}
	return t, nil
}

// NewRemapper instantiates the transformer registered under name and
// requires it to implement Remapper
func (f *Factories) NewRemapper(name string) (Remapper, error) {
	t, err := f.NewTransformer(name)
	if err != nil {
		return nil, err
	}
	r, ok := t.(Remapper)
	if !ok {
		return nil, &RegistrationError{Name: name, Err: ErrNotRemapper}
	}
	return r, nil
}

// NewExplicit instantiates the explicit transformer registered under name
func (f *Factories) NewExplicit(name string) (ExplicitTransformer, error) {
	f.mu.RLock()
	fn, ok := f.explicit[name]
	f.mu.RUnlock()
	if !ok {
		return nil, &RegistrationError{Name: name, Err: ErrUnknownTransformer}
	}

	t, err := fn()
	if err != nil {
		return nil, &RegistrationError{Name: name, Err: err}
	}
	if t == nil {
		return nil, &RegistrationError{Name: name, Err: errors.New("factory returned nil")}
	}
	return t, nil
}

// Names lists every registered factory name, sorted
func (f *Factories) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.transformers)+len(f.explicit))
	for name := range f.transformers {
		names = append(names, name)
	}
	for name := range f.explicit {
		if _, dup := f.transformers[name]; !dup {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
