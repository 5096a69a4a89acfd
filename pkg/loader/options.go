package loader

import (
	"github.com/go-logr/logr"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/chazu/harpoon/pkg/resource"
	"github.com/chazu/harpoon/pkg/transform"
)

// Debug toggles are independent and default to off
type Debug struct {
	// Trace logs every resolution attempt
	Trace bool
	// Finer logs every transformer application
	Finer bool
	// DumpDir receives a copy of every finalized unit's content. Dumping is
	// disabled if the directory cannot be created.
	DumpDir string
}

// Options configure a Loader. Nil collaborators are replaced with empty
// defaults.
type Options struct {
	Parent       Parent
	Store        *resource.Store
	Transformers *transform.Registry
	Explicit     *transform.ExplicitRegistry
	Definer      Definer
	Logger       logr.Logger

	// Exclusions are name prefixes delegated to Parent
	Exclusions []string
	// TransformerExclusions are name prefixes that only receive explicit
	// transformers
	TransformerExclusions []string

	Debug Debug
}

func (o *Options) setDefaults() {
	if o.Store == nil {
		o.Store = resource.NewStore("")
	}
	if o.Transformers == nil {
		o.Transformers = transform.NewRegistry(nil)
	}
	if o.Explicit == nil {
		o.Explicit = transform.NewExplicitRegistry(nil)
	}
	if o.Definer == nil {
		o.Definer = ModuleDefiner{}
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logf.Log.WithName("loader")
	}
}
