// Package trie provides a character trie used to route dotted unit names.
// It supports exact lookups (per-target dispatch) and first-ancestor lookups
// (exclusion rules), where the shortest registered prefix always wins.
package trie
