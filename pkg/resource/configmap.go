package resource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ConfigMapSource serves units stored in a ConfigMap. Keys are the dotted
// file name of the unit (com.example.Widget.unit); binaryData takes
// precedence over data.
type ConfigMapSource struct {
	reader    client.Reader
	namespace string
	name      string

	mu              sync.RWMutex
	entries         map[string][]byte
	resourceVersion string
}

// NewConfigMapSource reads the ConfigMap namespace/name and snapshots it
func NewConfigMapSource(ctx context.Context, reader client.Reader, namespace, name string) (*ConfigMapSource, error) {
	s := &ConfigMapSource{
		reader:    reader,
		namespace: namespace,
		name:      name,
	}
	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseConfigMapRef parses namespace/name; a bare name uses defaultNamespace
func ParseConfigMapRef(ref, defaultNamespace string) (namespace, name string) {
	parts := strings.SplitN(ref, "/", 2)
	if len(parts) == 1 {
		return defaultNamespace, parts[0]
	}
	return parts[0], parts[1]
}

// Refresh re-reads the ConfigMap and replaces the snapshot
func (s *ConfigMapSource) Refresh(ctx context.Context) error {
	cm := &corev1.ConfigMap{}
	if err := s.reader.Get(ctx, client.ObjectKey{Namespace: s.namespace, Name: s.name}, cm); err != nil {
		return fmt.Errorf("failed to get ConfigMap %s/%s: %w", s.namespace, s.name, err)
	}

	entries := make(map[string][]byte, len(cm.Data)+len(cm.BinaryData))
	for key, value := range cm.Data {
		entries[key] = []byte(value)
	}
	for key, value := range cm.BinaryData {
		entries[key] = value
	}

	s.mu.Lock()
	s.entries = entries
	s.resourceVersion = cm.ResourceVersion
	s.mu.Unlock()
	return nil
}

// ResourceVersion returns the version of the current snapshot
func (s *ConfigMapSource) ResourceVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resourceVersion
}

func (s *ConfigMapSource) Location() string {
	return fmt.Sprintf("configmap://%s/%s", s.namespace, s.name)
}

func (s *ConfigMapSource) Kind() string { return KindConfigMap }

// Find looks up the dotted form of path in the snapshot
func (s *ConfigMapSource) Find(p string) (*Resource, bool) {
	key := strings.ReplaceAll(p, "/", ".")

	s.mu.RLock()
	data, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return NewResource(p, s.Location(), KindConfigMap, nil, func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}), true
}
