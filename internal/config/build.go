package config

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/harpoon/pkg/loader"
	"github.com/chazu/harpoon/pkg/resource"
	"github.com/chazu/harpoon/pkg/transform"
)

// ErrNoClient is returned when a configmap source is configured without a
// cluster client
var ErrNoClient = errors.New("configmap source requires a cluster client")

// BuildOptions supply the collaborators a Config cannot describe
type BuildOptions struct {
	// Factories resolve transformer names; defaults to transform.Builtins()
	Factories *transform.Factories
	// Reader serves configmap sources
	Reader  client.Reader
	Parent  loader.Parent
	Definer loader.Definer
	Logger  logr.Logger
}

// OpenSources opens every configured source in order. Sources opened before
// a failure are closed again.
func (c *Config) OpenSources(ctx context.Context, reader client.Reader) ([]resource.Source, error) {
	var sources []resource.Source
	for i, s := range c.Sources {
		src, err := openSource(ctx, s, reader)
		if err != nil {
			closeSources(sources)
			return nil, fmt.Errorf("source %d (%s): %w", i, s.Kind, err)
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func closeSources(sources []resource.Source) {
	for _, src := range sources {
		if c, ok := src.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func openSource(ctx context.Context, s Source, reader client.Reader) (resource.Source, error) {
	switch s.Kind {
	case SourceDir:
		return resource.NewDirSource(s.Path)
	case SourceArchive:
		return resource.OpenArchive(s.Path)
	case SourceGit:
		return resource.NewGitSource(ctx, s.Path, s.Revision)
	case SourceConfigMap:
		if reader == nil {
			return nil, ErrNoClient
		}
		return resource.NewConfigMapSource(ctx, reader, s.Namespace, s.Name)
	default:
		return nil, fmt.Errorf("unknown source kind %q", s.Kind)
	}
}

// NeedsCluster reports whether any source reads from Kubernetes
func (c *Config) NeedsCluster() bool {
	for _, s := range c.Sources {
		if s.Kind == SourceConfigMap {
			return true
		}
	}
	return false
}

// NewLoader opens the sources and builds a loader with the configured
// exclusions, transformers and debug settings. Transformer names that cannot
// be instantiated are logged and skipped.
func (c *Config) NewLoader(ctx context.Context, opts BuildOptions) (*loader.Loader, error) {
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logf.FromContext(ctx).WithName("config")
	}
	factories := opts.Factories
	if factories == nil {
		factories = transform.Builtins()
	}

	sources, err := c.OpenSources(ctx, opts.Reader)
	if err != nil {
		return nil, err
	}

	l := loader.New(loader.Options{
		Parent:                opts.Parent,
		Store:                 resource.NewStore(c.Extension, sources...),
		Transformers:          transform.NewRegistry(factories),
		Explicit:              transform.NewExplicitRegistry(factories),
		Definer:               opts.Definer,
		Exclusions:            c.Exclusions,
		TransformerExclusions: c.TransformerExclusions,
		Debug: loader.Debug{
			Trace:   c.Debug.Trace,
			Finer:   c.Debug.Finer,
			DumpDir: c.Debug.DumpDir,
		},
	})

	if c.Remapper != "" {
		if err := l.RegisterRemapperByName(c.Remapper); err != nil {
			logger.Info("skipping remapper", "transformer", c.Remapper, "error", err.Error())
		}
	}
	for _, name := range c.Transformers {
		if err := l.RegisterTransformerByName(name); err != nil {
			logger.Info("skipping transformer", "transformer", name, "error", err.Error())
		}
	}
	for _, e := range c.Explicit {
		if err := l.RegisterExplicitTransformerByName(e.Targets, e.Name); err != nil {
			logger.Info("skipping explicit transformer", "transformer", e.Name, "error", err.Error())
		}
	}
	return l, nil
}
