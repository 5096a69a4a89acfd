package launch

import (
	"context"
	"fmt"

	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/harpoon/pkg/cueunit"
	"github.com/chazu/harpoon/pkg/loader"
)

// UnitField is the field of a CUE component unit read by UnitFactory
const UnitField = "launch"

// unitSpec is the shape of the launch field:
//
//	launch: {
//		target:      "com.example.Main"
//		args:        ["-v"]
//		components:  ["com.example.Logging"]
//		passthrough: true
//	}
type unitSpec struct {
	Target      string         `json:"target"`
	Args        []string       `json:"args"`
	Components  []string       `json:"components"`
	Passthrough bool           `json:"passthrough"`
	Settings    map[string]any `json:"settings"`
}

// UnitComponent is a component described entirely by its CUE unit
type UnitComponent struct {
	name string
	spec unitSpec
	args []string
}

// UnitFactory builds a UnitComponent from a unit defined by cueunit.Definer.
// Units without a launch field yield a component that contributes nothing.
func UnitFactory(_ context.Context, h loader.Handle) (Component, error) {
	m, ok := h.(*cueunit.Module)
	if !ok {
		return nil, fmt.Errorf("unit %s is not a CUE module", h.UnitName())
	}
	c := &UnitComponent{name: m.Name}
	if _, err := m.Lookup(UnitField); err != nil {
		return c, nil
	}
	if err := m.Decode(UnitField, &c.spec); err != nil {
		return nil, err
	}
	return c, nil
}

// Configure enqueues the components the unit lists and publishes its
// settings
func (c *UnitComponent) Configure(ctx context.Context, env *Environment) error {
	logger := logf.FromContext(ctx)

	c.args = append([]string(nil), c.spec.Args...)
	if c.spec.Passthrough {
		c.args = append(c.args, env.Options.Args...)
	}
	for k, v := range c.spec.Settings {
		if prev, ok := env.Get(k); ok {
			logger.V(1).Info("overriding setting", "key", k, "previous", prev, "component", c.name)
		}
		env.Set(k, v)
	}
	env.Enqueue(c.spec.Components...)
	return nil
}

// LaunchTarget returns launch.target
func (c *UnitComponent) LaunchTarget() string { return c.spec.Target }

// LaunchArguments returns launch.args, followed by the passthrough
// arguments when enabled
func (c *UnitComponent) LaunchArguments() []string { return c.args }
