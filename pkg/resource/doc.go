// Package resource resolves the raw content of named units from an ordered
// list of sources.
//
// Unit names are dotted (com.example.Widget) and map to slash separated
// paths with a fixed extension (com/example/Widget.unit). A Store consults
// its sources in order and keeps a positive cache of content it has read and
// a negative cache of names it failed to find. Sources can be local
// directories, zip archives with an optional CUE manifest, any fs.FS, a
// Kubernetes ConfigMap or a git revision.
package resource
