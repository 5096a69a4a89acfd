package resource

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
)

// Source kinds
const (
	KindDir       = "dir"
	KindArchive   = "archive"
	KindFS        = "fs"
	KindConfigMap = "configmap"
	KindGit       = "git"
)

// Source is one place unit content can come from. Paths are slash
// separated and relative to the source root.
type Source interface {
	// Find returns the resource at path if the source holds it
	Find(path string) (*Resource, bool)
	// Location identifies the source in logs and on finalized units
	Location() string
	// Kind is one of the Kind constants
	Kind() string
}

// Resource is a located unit, not yet read
type Resource struct {
	// Path is the slash separated path inside the source
	Path string
	// Location is the location of the source that holds the resource
	Location string
	// Kind is the kind of the source that holds the resource
	Kind string
	// Bundle is the manifest of the enclosing archive, if it has one
	Bundle *Manifest

	open func() (io.ReadCloser, error)
}

// NewResource creates a resource that is read through open
func NewResource(p, location, kind string, bundle *Manifest, open func() (io.ReadCloser, error)) *Resource {
	return &Resource{
		Path:     p,
		Location: location,
		Kind:     kind,
		Bundle:   bundle,
		open:     open,
	}
}

// Open opens the resource content for reading
func (r *Resource) Open() (io.ReadCloser, error) {
	if r.open == nil {
		return nil, fmt.Errorf("resource %s in %s cannot be opened", r.Path, r.Location)
	}
	return r.open()
}

// String returns location!/path
func (r *Resource) String() string {
	return r.Location + "!/" + r.Path
}

// DirSource serves units from a local directory
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir
func NewDirSource(dir string) (*DirSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", abs)
	}
	return &DirSource{root: abs}, nil
}

func (s *DirSource) Location() string { return s.root }
func (s *DirSource) Kind() string     { return KindDir }

// Find looks up path below the root directory
func (s *DirSource) Find(p string) (*Resource, bool) {
	full := filepath.Join(s.root, filepath.FromSlash(path.Clean("/"+p)))
	info, err := os.Stat(full)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return NewResource(p, s.root, KindDir, nil, func() (io.ReadCloser, error) {
		return os.Open(full)
	}), true
}

// FSSource serves units from an fs.FS such as an embedded file system
type FSSource struct {
	fsys     fs.FS
	location string
}

// NewFSSource wraps fsys; location names it in logs
func NewFSSource(fsys fs.FS, location string) *FSSource {
	return &FSSource{fsys: fsys, location: location}
}

func (s *FSSource) Location() string { return s.location }
func (s *FSSource) Kind() string     { return KindFS }

// Find looks up path in the file system
func (s *FSSource) Find(p string) (*Resource, bool) {
	if !fs.ValidPath(p) {
		return nil, false
	}
	info, err := fs.Stat(s.fsys, p)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return NewResource(p, s.location, KindFS, nil, func() (io.ReadCloser, error) {
		return s.fsys.Open(p)
	}), true
}
