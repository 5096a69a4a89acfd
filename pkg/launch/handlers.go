package launch

import (
	"context"
	"fmt"
	"strings"

	"github.com/authzed/controller-idioms/handler"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

// Handler IDs for the bootstrap pipeline
const (
	CascadeID          handler.Key = "cascade"
	CollectArgumentsID handler.Key = "collect-arguments"
	LaunchID           handler.Key = "launch"
)

// CascadeHandler instantiates and configures components until no new names
// are enqueued
type CascadeHandler struct {
	launcher *Launcher
	next     handler.Handler
}

func (h *CascadeHandler) Handle(ctx context.Context) {
	logger := logf.FromContext(ctx)
	st := CtxState.MustValue(ctx)
	opts := CtxOptions.MustValue(ctx)

	for len(st.queue) > 0 {
		batch := st.queue
		st.queue = nil

		var created []instance
		for _, name := range batch {
			if _, seen := st.visited[name]; seen {
				logger.Info("warning: component has already been visited, skipping",
					"warning", "visited-component", "component", name)
				continue
			}
			st.visited[name] = struct{}{}
			logger.Info("loading component", "component", name)

			h.launcher.loader.AddTransformerExclusion(exclusionFor(name))
			c, err := h.launcher.instantiate(ctx, name)
			if err != nil {
				st.fail(string(CascadeID), err)
				return
			}
			created = append(created, instance{name: name, component: c})

			if st.primary == "" {
				logger.Info("using primary component", "component", name)
				st.primary = name
			}
		}

		for _, inst := range created {
			logger.Info("configuring component", "component", inst.name)
			env := &Environment{
				Options: opts,
				Loader:  h.launcher.loader,
				name:    inst.name,
				state:   st,
			}
			if err := inst.component.Configure(ctx, env); err != nil {
				st.fail(string(CascadeID), fmt.Errorf("component %s failed to configure: %w", inst.name, err))
				return
			}
			st.components = append(st.components, inst)
		}
	}

	if len(st.components) == 0 {
		st.fail(string(CascadeID), ErrNoComponents)
		return
	}
	h.next.Handle(ctx)
}

// exclusionFor keeps the global pipeline away from a component's own
// namespace
func exclusionFor(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[:i+1]
	}
	return name
}

// CollectArgumentsHandler concatenates every component's arguments in
// processing order
type CollectArgumentsHandler struct {
	next handler.Handler
}

func (h *CollectArgumentsHandler) Handle(ctx context.Context) {
	st := CtxState.MustValue(ctx)
	args := []string{}
	for _, inst := range st.components {
		args = append(args, inst.component.LaunchArguments()...)
	}
	st.arguments = args
	h.next.Handle(ctx)
}

// LaunchHandler loads the primary component's target and runs its entry
// point
type LaunchHandler struct {
	launcher *Launcher
}

func (h *LaunchHandler) Handle(ctx context.Context) {
	logger := logf.FromContext(ctx)
	st := CtxState.MustValue(ctx)

	primary := st.components[0].component
	st.target = primary.LaunchTarget()
	if st.target == "" {
		st.fail(string(LaunchID), fmt.Errorf("%w: %s", ErrNoTarget, st.primary))
		return
	}

	target, err := h.launcher.loader.Load(st.target)
	if err != nil {
		st.fail(string(LaunchID), fmt.Errorf("failed to load launch target %s: %w", st.target, err))
		return
	}
	ep, ok := h.launcher.registry.Entrypoint(st.target)
	if !ok {
		st.fail(string(LaunchID), fmt.Errorf("%w: %s", ErrNoEntrypoint, st.target))
		return
	}

	logger.Info("launching", "target", st.target, "arguments", len(st.arguments))
	if err := ep(ctx, target, st.arguments); err != nil {
		st.fail(string(LaunchID), fmt.Errorf("launch target %s failed: %w", st.target, err))
	}
}

// Cascade returns a handler builder for the cascade step
func (l *Launcher) Cascade() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&CascadeHandler{
				launcher: l,
				next:     handler.Handlers(next).MustOne(),
			},
			CascadeID,
		)
	}
}

// CollectArguments returns a handler builder for argument collection
func (l *Launcher) CollectArguments() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&CollectArgumentsHandler{
				next: handler.Handlers(next).MustOne(),
			},
			CollectArgumentsID,
		)
	}
}

// Run returns a handler builder for the final launch step
func (l *Launcher) Run() handler.Builder {
	return func(next ...handler.Handler) handler.Handler {
		return handler.NewHandler(
			&LaunchHandler{launcher: l},
			LaunchID,
		)
	}
}
