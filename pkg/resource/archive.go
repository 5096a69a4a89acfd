package resource

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
)

// ArchiveSource serves units from a zip bundle. A manifest at ManifestPath
// is parsed when the archive is opened.
type ArchiveSource struct {
	path     string
	reader   *zip.ReadCloser
	files    map[string]*zip.File
	manifest *Manifest
}

// OpenArchive opens the zip bundle at path
func OpenArchive(path string) (*ArchiveSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	rc, err := zip.OpenReader(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", abs, err)
	}

	s := &ArchiveSource{
		path:   abs,
		reader: rc,
		files:  make(map[string]*zip.File, len(rc.File)),
	}
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		s.files[f.Name] = f
	}

	if mf, ok := s.files[ManifestPath]; ok {
		data, err := readZipFile(mf)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("failed to read manifest of %s: %w", abs, err)
		}
		m, err := ParseManifest(data, abs+"!/"+ManifestPath)
		if err != nil {
			rc.Close()
			return nil, err
		}
		s.manifest = m
	}
	return s, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (s *ArchiveSource) Location() string { return s.path }
func (s *ArchiveSource) Kind() string     { return KindArchive }

// Manifest returns the bundle manifest, or nil if the archive has none
func (s *ArchiveSource) Manifest() *Manifest { return s.manifest }

// Find looks up path among the archive entries
func (s *ArchiveSource) Find(p string) (*Resource, bool) {
	f, ok := s.files[p]
	if !ok {
		return nil, false
	}
	return NewResource(p, s.path, KindArchive, s.manifest, func() (io.ReadCloser, error) {
		return f.Open()
	}), true
}

// Close releases the archive file handle
func (s *ArchiveSource) Close() error {
	return s.reader.Close()
}
