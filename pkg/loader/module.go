package loader

import (
	"github.com/cespare/xxhash/v2"
	"github.com/opencontainers/go-digest"

	"github.com/chazu/harpoon/pkg/resource"
)

// Handle is a finalized unit
type Handle interface {
	// UnitName is the name the unit was defined under
	UnitName() string
}

// Unit is everything a Definer needs to finalize one unit
type Unit struct {
	// Name is the name the unit is defined under
	Name string
	// Content is the transformed content
	Content []byte
	// Resource is where the raw content came from
	Resource *resource.Resource
	// Package is the namespace the unit belongs to, if any
	Package *Package
	// Signers are the verified digests of the raw content
	Signers []digest.Digest
}

// Location returns the origin of the unit, or "" if unknown
func (u *Unit) Location() string {
	if u.Resource == nil {
		return ""
	}
	return u.Resource.Location
}

// Definer turns transformed content into a finalized handle
type Definer interface {
	Define(u *Unit) (Handle, error)
}

// DefinerFunc adapts a function to Definer
type DefinerFunc func(u *Unit) (Handle, error)

// Define calls f(u)
func (f DefinerFunc) Define(u *Unit) (Handle, error) {
	return f(u)
}

// Module is the default finalized handle: the transformed bytes plus their
// origin
type Module struct {
	Name     string
	Content  []byte
	Digest   uint64
	Location string
	Package  *Package
	Signers  []digest.Digest
}

// UnitName returns the module name
func (m *Module) UnitName() string { return m.Name }

// ModuleDefiner produces *Module handles
type ModuleDefiner struct{}

// Define rejects empty content and records an xxhash digest of the rest
func (ModuleDefiner) Define(u *Unit) (Handle, error) {
	if len(u.Content) == 0 {
		return nil, ErrEmptyContent
	}
	return &Module{
		Name:     u.Name,
		Content:  u.Content,
		Digest:   xxhash.Sum64(u.Content),
		Location: u.Location(),
		Package:  u.Package,
		Signers:  u.Signers,
	}, nil
}
