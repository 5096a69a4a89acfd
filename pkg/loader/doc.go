// Package loader resolves, transforms and finalizes named code units.
//
// A Loader answers Load(name) by walking a fixed sequence of steps: it
// rejects names that already failed, delegates excluded namespaces to its
// parent, serves finalized units from cache, maps the name through the
// active remapper, reads the raw content from a resource.Store, attributes
// the unit to a package, runs the transformer pipelines and hands the
// result to a Definer. At most one finalized handle exists per name for the
// lifetime of a Loader.
package loader
