package resource

import (
	_ "crypto/sha256"
	_ "crypto/sha512"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/opencontainers/go-digest"

	cueembed "github.com/chazu/harpoon/cue"
)

// ManifestPath is where an archive keeps its manifest
const ManifestPath = "META-INF/MANIFEST.cue"

// Manifest describes an archive bundle: its identity, which packages it
// seals and the expected digest of each entry.
type Manifest struct {
	Name     string                       `json:"name"`
	Version  string                       `json:"version,omitempty"`
	Vendor   string                       `json:"vendor,omitempty"`
	Sealed   bool                         `json:"sealed"`
	Packages map[string]PackageAttributes `json:"packages,omitempty"`
	Entries  map[string]Entry             `json:"entries,omitempty"`
}

// PackageAttributes override the bundle defaults for one package
type PackageAttributes struct {
	Sealed  *bool  `json:"sealed,omitempty"`
	Version string `json:"version,omitempty"`
	Vendor  string `json:"vendor,omitempty"`
}

// Entry is the manifest record for one file in the archive
type Entry struct {
	Digest string `json:"digest"`
}

// IsSealed reports whether the manifest seals namespace
func (m *Manifest) IsSealed(namespace string) bool {
	if attrs, ok := m.Packages[namespace]; ok && attrs.Sealed != nil {
		return *attrs.Sealed
	}
	return m.Sealed
}

// PackageVersion returns the version for namespace, falling back to the
// bundle version
func (m *Manifest) PackageVersion(namespace string) string {
	if attrs, ok := m.Packages[namespace]; ok && attrs.Version != "" {
		return attrs.Version
	}
	return m.Version
}

// PackageVendor returns the vendor for namespace, falling back to the bundle
// vendor
func (m *Manifest) PackageVendor(namespace string) string {
	if attrs, ok := m.Packages[namespace]; ok && attrs.Vendor != "" {
		return attrs.Vendor
	}
	return m.Vendor
}

// Verify checks content against the digest recorded for path. It returns the
// verified digest, or ok=false when the manifest has no entry for path.
func (m *Manifest) Verify(path string, content []byte) (d digest.Digest, ok bool, err error) {
	entry, found := m.Entries[path]
	if !found {
		return "", false, nil
	}
	expected, err := digest.Parse(entry.Digest)
	if err != nil {
		return "", true, fmt.Errorf("invalid digest for %s: %w", path, err)
	}
	actual := expected.Algorithm().FromBytes(content)
	if actual != expected {
		return actual, true, fmt.Errorf("digest mismatch for %s: expected %s, got %s", path, expected, actual)
	}
	return expected, true, nil
}

var (
	manifestMu     sync.Mutex
	manifestCtx    *cue.Context
	manifestSchema cue.Value
)

// loadManifestSchema compiles the embedded #Manifest definition once.
// Caller holds manifestMu.
func loadManifestSchema() (cue.Value, error) {
	if manifestCtx != nil {
		return manifestSchema, nil
	}
	data, err := cueembed.SchemaFS.ReadFile(cueembed.ManifestSchema)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read manifest schema: %w", err)
	}
	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(cueembed.ManifestSchema))
	if v.Err() != nil {
		return cue.Value{}, fmt.Errorf("failed to compile manifest schema: %w", v.Err())
	}
	manifestCtx = ctx
	manifestSchema = v.LookupPath(cue.ParsePath("#Manifest"))
	return manifestSchema, nil
}

// ParseManifest validates data against the #Manifest schema and decodes it
func ParseManifest(data []byte, filename string) (*Manifest, error) {
	manifestMu.Lock()
	defer manifestMu.Unlock()

	schema, err := loadManifestSchema()
	if err != nil {
		return nil, err
	}

	value := manifestCtx.CompileBytes(data, cue.Filename(filename))
	if value.Err() != nil {
		return nil, fmt.Errorf("failed to compile manifest %s: %w", filename, value.Err())
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", filename, err)
	}

	var m Manifest
	if err := unified.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", filename, err)
	}
	return &m, nil
}
