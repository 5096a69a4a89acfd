package launch

import (
	"context"
	"fmt"

	"github.com/authzed/controller-idioms/handler"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/harpoon/pkg/loader"
)

// Launcher runs the bootstrap pipeline against a loader
type Launcher struct {
	loader   *loader.Loader
	registry *Registry
	pipeline handler.Handler
}

// New creates a launcher
func New(l *loader.Loader, registry *Registry) *Launcher {
	la := &Launcher{
		loader:   l,
		registry: registry,
	}
	la.pipeline = handler.Chain(
		la.Cascade(),          // Instantiate and configure components
		la.CollectArguments(), // Concatenate launch arguments
		la.Run(),              // Load the target and run its entry point
	).Handler("bootstrap")
	return la
}

// Launch bootstraps names. The returned Result is filled as far as the
// bootstrap got, even on error; every error is a *FatalError.
func (l *Launcher) Launch(ctx context.Context, opts Options, names []string) (*Result, error) {
	logger := logf.FromContext(ctx).WithName("launch")
	ctx = logf.IntoContext(ctx, logger)

	if len(names) == 0 {
		return &Result{Provenance: newProvenance()}, &FatalError{Stage: string(CascadeID), Err: ErrNoComponents}
	}

	st := newState(names)
	ctx = CtxState.WithValue(ctx, st)
	ctx = CtxOptions.WithValue(ctx, opts)

	l.pipeline.Handle(ctx)

	if st.err != nil {
		logger.Error(st.err, "unable to launch")
		return st.result(), st.err
	}
	return st.result(), nil
}

func (l *Launcher) instantiate(ctx context.Context, name string) (Component, error) {
	h, err := l.loader.Load(name)
	if err != nil {
		return nil, fmt.Errorf("failed to load component %s: %w", name, err)
	}
	factory, ok := l.registry.Factory(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoFactory, name)
	}
	c, err := factory(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create component %s: %w", name, err)
	}
	return c, nil
}
