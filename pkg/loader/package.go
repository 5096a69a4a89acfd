package loader

import (
	"sort"
	"strings"
	"sync"

	"github.com/chazu/harpoon/pkg/resource"
)

// Package groups the units of one namespace
type Package struct {
	Name    string
	Version string
	Vendor  string
	Sealed  bool
	// SealBase is the location that sealed the package
	SealBase string
}

// IsSealedBy reports whether the package is sealed by location
func (p *Package) IsSealedBy(location string) bool {
	return p.Sealed && p.SealBase == location
}

func packageFromManifest(namespace string, m *resource.Manifest, location string) *Package {
	p := &Package{
		Name:    namespace,
		Version: m.PackageVersion(namespace),
		Vendor:  m.PackageVendor(namespace),
		Sealed:  m.IsSealed(namespace),
	}
	if p.Sealed {
		p.SealBase = location
	}
	return p
}

// namespaceOf returns everything before the last dot of name
func namespaceOf(name string) (string, bool) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", false
	}
	return name[:i], true
}

type packages struct {
	m sync.Map // namespace -> *Package
}

// define stores p unless the namespace already has a package. It returns
// the stored package and whether p was the one stored.
func (ps *packages) define(p *Package) (*Package, bool) {
	actual, loaded := ps.m.LoadOrStore(p.Name, p)
	return actual.(*Package), !loaded
}

func (ps *packages) get(namespace string) (*Package, bool) {
	p, ok := ps.m.Load(namespace)
	if !ok {
		return nil, false
	}
	return p.(*Package), true
}

func (ps *packages) names() []string {
	var out []string
	ps.m.Range(func(k, _ any) bool {
		out = append(out, k.(string))
		return true
	})
	sort.Strings(out)
	return out
}
