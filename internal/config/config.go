// Package config loads harpoon's CUE configuration file.
package config

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/spf13/viper"

	cueembed "github.com/chazu/harpoon/cue"
	"github.com/chazu/harpoon/pkg/resource"
)

// EnvPrefix prefixes environment overrides, e.g. HARPOON_DEBUG_TRACE
const EnvPrefix = "HARPOON"

// Source kinds accepted in the configuration
const (
	SourceDir       = "dir"
	SourceArchive   = "archive"
	SourceGit       = "git"
	SourceConfigMap = "configmap"
)

// Config is the validated configuration
type Config struct {
	Sources               []Source   `mapstructure:"sources"`
	Exclusions            []string   `mapstructure:"exclusions"`
	TransformerExclusions []string   `mapstructure:"transformer_exclusions"`
	Transformers          []string   `mapstructure:"transformers"`
	Explicit              []Explicit `mapstructure:"explicit"`
	Remapper              string     `mapstructure:"remapper"`
	Components            []string   `mapstructure:"components"`
	Extension             string     `mapstructure:"extension"`
	Preload               []string   `mapstructure:"preload"`
	Debug                 Debug      `mapstructure:"debug"`
}

// Source is one entry of the resource search order
type Source struct {
	Kind      string `mapstructure:"kind"`
	Path      string `mapstructure:"path"`
	Revision  string `mapstructure:"revision"`
	Namespace string `mapstructure:"namespace"`
	Name      string `mapstructure:"name"`
}

// Explicit binds a factory-built explicit transformer to target names
type Explicit struct {
	Name    string   `mapstructure:"name"`
	Targets []string `mapstructure:"targets"`
}

// Debug mirrors loader.Debug
type Debug struct {
	Trace   bool   `mapstructure:"trace"`
	Finer   bool   `mapstructure:"finer"`
	DumpDir string `mapstructure:"dump_dir"`
}

// DefaultConfig returns the configuration used when no file is given
func DefaultConfig() *Config {
	return &Config{
		Sources:               []Source{},
		Exclusions:            []string{"runtime.", "std."},
		TransformerExclusions: []string{},
		Transformers:          []string{},
		Explicit:              []Explicit{},
		Components:            []string{},
		Extension:             resource.DefaultExtension,
		Preload:               []string{},
	}
}

// Load reads path, validates it against the #Config schema and applies
// HARPOON_* environment overrides. An empty path yields the defaults plus
// overrides. Relative dir and archive paths are resolved against the
// directory holding the file.
func Load(ctx context.Context, path string) (*Config, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	v := newViper()

	if path != "" {
		if err := loadCUEIntoViper(v, path); err != nil {
			return nil, fmt.Errorf("failed to load configuration %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if path != "" {
		cfg.resolvePaths(filepath.Dir(path))
	}
	return &cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("sources", defaults.Sources)
	v.SetDefault("exclusions", defaults.Exclusions)
	v.SetDefault("transformer_exclusions", defaults.TransformerExclusions)
	v.SetDefault("transformers", defaults.Transformers)
	v.SetDefault("explicit", defaults.Explicit)
	v.SetDefault("remapper", defaults.Remapper)
	v.SetDefault("components", defaults.Components)
	v.SetDefault("extension", defaults.Extension)
	v.SetDefault("preload", defaults.Preload)
	v.SetDefault("debug.trace", defaults.Debug.Trace)
	v.SetDefault("debug.finer", defaults.Debug.Finer)
	v.SetDefault("debug.dump_dir", defaults.Debug.DumpDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func loadCUEIntoViper(v *viper.Viper, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	schemaSrc, err := fs.ReadFile(cueembed.SchemaFS, cueembed.ConfigSchema)
	if err != nil {
		return fmt.Errorf("internal error: failed to read config schema: %w", err)
	}

	ctx := cuecontext.New()

	schemaValue := ctx.CompileBytes(schemaSrc, cue.Filename(cueembed.ConfigSchema))
	if schemaValue.Err() != nil {
		return fmt.Errorf("internal error: failed to compile config schema: %w", schemaValue.Err())
	}

	userValue := ctx.CompileBytes(data, cue.Filename(path))
	if userValue.Err() != nil {
		return userValue.Err()
	}

	schema := schemaValue.LookupPath(cue.ParsePath("#Config"))
	unified := schema.Unify(userValue)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}

	var configMap map[string]any
	if err := unified.Decode(&configMap); err != nil {
		return err
	}

	if err := v.MergeConfigMap(configMap); err != nil {
		return fmt.Errorf("failed to merge config: %w", err)
	}
	return nil
}

func (c *Config) resolvePaths(base string) {
	for i := range c.Sources {
		s := &c.Sources[i]
		if s.Kind != SourceDir && s.Kind != SourceArchive {
			continue
		}
		if s.Path != "" && !filepath.IsAbs(s.Path) {
			s.Path = filepath.Join(base, s.Path)
		}
	}
}
