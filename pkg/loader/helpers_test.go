package loader

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	. "github.com/onsi/gomega"

	"github.com/chazu/harpoon/pkg/resource"
)

// memorySource serves units from a map and counts lookups per path
type memorySource struct {
	location string
	mu       sync.Mutex
	files    map[string]string
	lookups  map[string]int
}

func newMemorySource(location string, files map[string]string) *memorySource {
	return &memorySource{location: location, files: files, lookups: map[string]int{}}
}

func (s *memorySource) Location() string { return s.location }
func (s *memorySource) Kind() string     { return resource.KindFS }

func (s *memorySource) Find(p string) (*resource.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookups[p]++
	data, ok := s.files[p]
	if !ok {
		return nil, false
	}
	return resource.NewResource(p, s.location, resource.KindFS, nil, func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(data)), nil
	}), true
}

func (s *memorySource) lookupsFor(p string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups[p]
}

// captureLogger records every log line
type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLogger) logger() logr.Logger {
	return funcr.New(func(prefix, args string) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.lines = append(c.lines, prefix+" "+args)
	}, funcr.Options{Verbosity: 1})
}

func (c *captureLogger) contains(substr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, l := range c.lines {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func writeArchive(dir, name string, files map[string]string) string {
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	zw := zip.NewWriter(f)
	for entry, body := range files {
		w, err := zw.Create(entry)
		Expect(err).NotTo(HaveOccurred())
		_, err = w.Write([]byte(body))
		Expect(err).NotTo(HaveOccurred())
	}
	Expect(zw.Close()).To(Succeed())
	Expect(f.Close()).To(Succeed())
	return path
}
