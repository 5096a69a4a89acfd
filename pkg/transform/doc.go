// Package transform holds the content rewriting machinery of the loader.
//
// A Registry keeps the globally applied transformers ordered by priority,
// along with at most one active Remapper that translates unit names. An
// ExplicitRegistry keeps per-target queues of one-shot transformers that are
// drained the first time their target is defined. Factories map string
// identities to constructors so configuration can name transformers without
// reflection.
package transform
