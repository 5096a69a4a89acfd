// Package cueunit finalizes units whose content is CUE source.
package cueunit

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/chazu/harpoon/pkg/loader"
)

// Definer compiles unit content into CUE values. All modules it defines
// share one cue.Context, guarded by the definer's mutex.
type Definer struct {
	mu  sync.Mutex
	ctx *cue.Context
}

// NewDefiner creates a definer with a fresh CUE context
func NewDefiner() *Definer {
	return &Definer{ctx: cuecontext.New()}
}

// Define compiles u.Content. Empty content and compilation errors fail the
// load.
func (d *Definer) Define(u *loader.Unit) (loader.Handle, error) {
	if len(u.Content) == 0 {
		return nil, fmt.Errorf("%w: %s", loader.ErrEmptyContent, u.Name)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	v := d.ctx.CompileBytes(u.Content, cue.Filename(u.Name))
	if v.Err() != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", u.Name, v.Err())
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("invalid unit %s: %w", u.Name, err)
	}

	return &Module{
		Name:     u.Name,
		Location: u.Location(),
		Package:  u.Package,
		Source:   u.Content,
		value:    v,
		definer:  d,
	}, nil
}

// Module is a finalized CUE unit
type Module struct {
	Name     string
	Location string
	Package  *loader.Package
	Source   []byte

	value   cue.Value
	definer *Definer
}

// UnitName returns the module name
func (m *Module) UnitName() string { return m.Name }

// Lookup returns the value at path, e.g. "launch.args"
func (m *Module) Lookup(path string) (cue.Value, error) {
	m.definer.mu.Lock()
	defer m.definer.mu.Unlock()

	v := m.value.LookupPath(cue.ParsePath(path))
	if !v.Exists() {
		return cue.Value{}, fmt.Errorf("%s has no field %s", m.Name, path)
	}
	if v.Err() != nil {
		return cue.Value{}, v.Err()
	}
	return v, nil
}

// Decode decodes the value at path into out. An empty path decodes the
// whole module.
func (m *Module) Decode(path string, out any) error {
	m.definer.mu.Lock()
	defer m.definer.mu.Unlock()

	v := m.value
	if path != "" {
		v = v.LookupPath(cue.ParsePath(path))
		if !v.Exists() {
			return fmt.Errorf("%s has no field %s", m.Name, path)
		}
	}
	if err := v.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s of %s: %w", path, m.Name, err)
	}
	return nil
}

// JSON exports the concrete module as JSON
func (m *Module) JSON() ([]byte, error) {
	m.definer.mu.Lock()
	defer m.definer.mu.Unlock()

	data, err := m.value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", m.Name, err)
	}
	return data, nil
}
