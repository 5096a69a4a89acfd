package launch

import (
	"context"

	"github.com/chazu/harpoon/pkg/loader"
)

// Component takes part in a bootstrap
type Component interface {
	// Configure is called once; it may enqueue further components through
	// env
	Configure(ctx context.Context, env *Environment) error
	// LaunchTarget names the unit to launch. Only the primary component is
	// asked.
	LaunchTarget() string
	// LaunchArguments are appended to the launch arguments in processing
	// order
	LaunchArguments() []string
}

// Options are the launch settings shared with every component
type Options struct {
	Home      string
	AssetsDir string
	Profile   string
	// Args are the positional arguments passed through to components
	Args []string
}

// Environment is what a component sees while it is configured
type Environment struct {
	Options Options
	Loader  *loader.Loader

	name  string
	state *state
}

// Name is the component being configured
func (e *Environment) Name() string { return e.name }

// Enqueue schedules more components. Names already processed are skipped
// with a warning.
func (e *Environment) Enqueue(names ...string) {
	for _, n := range names {
		e.state.provenance.addRequest(e.name, n)
		e.state.queue = append(e.state.queue, n)
	}
}

// Components lists the components processed so far
func (e *Environment) Components() []string {
	out := make([]string, 0, len(e.state.components))
	for _, c := range e.state.components {
		out = append(out, c.name)
	}
	return out
}

// Set stores a value visible to every later component
func (e *Environment) Set(key string, value any) {
	e.state.shared[key] = value
}

// Get returns a value stored by an earlier component
func (e *Environment) Get(key string) (any, bool) {
	v, ok := e.state.shared[key]
	return v, ok
}
