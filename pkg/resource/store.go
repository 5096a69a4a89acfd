package resource

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/harpoon/pkg/metrics"
)

// DefaultExtension is appended to unit paths unless the store is configured
// otherwise
const DefaultExtension = ".unit"

// Store resolves raw unit content from an ordered source list and caches
// both hits and misses. It is safe for concurrent use; two callers racing
// on the same uncached name may both read it, and the last write to the
// cache wins.
type Store struct {
	mu        sync.RWMutex
	sources   []Source
	extension string

	positive sync.Map // name -> []byte
	negative sync.Map // name -> struct{}

	buffers *BufferPool
	log     logr.Logger

	// Trace logs every resolution attempt
	Trace bool
}

// NewStore creates a store over sources. An empty extension selects
// DefaultExtension.
func NewStore(extension string, sources ...Source) *Store {
	if extension == "" {
		extension = DefaultExtension
	}
	return &Store{
		sources:   append([]Source(nil), sources...),
		extension: extension,
		buffers:   NewBufferPool(),
		log:       logf.Log.WithName("resource"),
	}
}

// WithLogger replaces the store logger
func (s *Store) WithLogger(log logr.Logger) *Store {
	s.log = log
	return s
}

// AddSource appends src to the end of the search order
func (s *Store) AddSource(src Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = append(s.sources, src)
	s.log.Info("added source", "kind", src.Kind(), "location", src.Location())
}

// Sources returns the search order
func (s *Store) Sources() []Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Source(nil), s.sources...)
}

// Extension returns the file extension of unit paths
func (s *Store) Extension() string {
	return s.extension
}

// PathFor converts a dotted unit name into a source path
func (s *Store) PathFor(name string) string {
	return strings.ReplaceAll(name, ".", "/") + s.extension
}

// cached is a positive cache entry
type cached struct {
	res     *Resource
	content []byte
}

// Content returns the raw content of name. found is false when no source
// holds the unit. Read failures are returned as errors and are not cached.
func (s *Store) Content(name string) (content []byte, found bool, err error) {
	_, content, found, err = s.Resolve(name)
	return content, found, err
}

// Resolve is Content that also returns the resource the content was read
// from. Both are cached together, so a hit never searches the sources.
func (s *Store) Resolve(name string) (res *Resource, content []byte, found bool, err error) {
	if _, ok := s.negative.Load(name); ok {
		metrics.RecordCacheHit("negative")
		return nil, nil, false, nil
	}
	if c, ok := s.positive.Load(name); ok {
		metrics.RecordCacheHit("positive")
		entry := c.(cached)
		return entry.res, entry.content, true, nil
	}
	metrics.RecordCacheMiss()

	res, content, found, err = s.read(name)
	if err != nil {
		return nil, nil, false, err
	}

	if !found {
		if alt, ok := reservedAlternative(name); ok {
			if s.Trace {
				s.log.Info("retrying reserved name", "unit", name, "alternative", alt)
			}
			res, content, found, err = s.Resolve(alt)
			if err != nil {
				return nil, nil, false, err
			}
		}
	}

	if !found {
		s.negative.Store(name, struct{}{})
		return nil, nil, false, nil
	}
	s.positive.Store(name, cached{res: res, content: content})
	return res, content, true, nil
}

// read resolves name against the sources without touching the caches
func (s *Store) read(name string) (*Resource, []byte, bool, error) {
	p := s.PathFor(name)
	res, ok := s.find(p)
	if !ok {
		if s.Trace {
			s.log.Info("unit not found in any source", "unit", name, "path", p)
		}
		return nil, nil, false, nil
	}
	if s.Trace {
		s.log.Info("reading unit", "unit", name, "resource", res.String())
	}

	start := time.Now()
	data, err := s.readResource(res)
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.RecordSourceRead(res.Kind, status, time.Since(start).Seconds())
	if err != nil {
		return nil, nil, false, fmt.Errorf("failed to read %s: %w", res, err)
	}
	return res, data, true, nil
}

func (s *Store) readResource(res *Resource) (data []byte, err error) {
	rc, err := res.Open()
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return s.buffers.ReadAll(rc)
}

func (s *Store) find(p string) (*Resource, bool) {
	s.mu.RLock()
	sources := s.sources
	s.mu.RUnlock()

	for _, src := range sources {
		if res, ok := src.Find(p); ok {
			return res, true
		}
	}
	return nil, false
}

// Locate returns where name would be read from, applying the reserved name
// fallback. Nothing is cached.
func (s *Store) Locate(name string) (*Resource, bool) {
	if res, ok := s.find(s.PathFor(name)); ok {
		return res, true
	}
	if alt, ok := reservedAlternative(name); ok {
		return s.find(s.PathFor(alt))
	}
	return nil, false
}

// ClearNegative forgets that names could not be found
func (s *Store) ClearNegative(names ...string) {
	for _, name := range names {
		s.negative.Delete(name)
	}
}

// Close closes every source that holds an open handle
func (s *Store) Close() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var errs []error
	for _, src := range s.sources {
		if c, ok := src.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s: %w", src.Location(), err))
			}
		}
	}
	return errors.Join(errs...)
}
