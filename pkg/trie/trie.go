package trie

import "sync"

// node is a single trie vertex. A node holds a value only when a key ending
// at it was inserted.
type node[V any] struct {
	children map[rune]*node[V]
	value    V
	set      bool
}

func (n *node[V]) child(r rune) *node[V] {
	if n.children == nil {
		return nil
	}
	return n.children[r]
}

// Trie maps string keys to values and is safe for concurrent use
type Trie[V any] struct {
	mu   sync.RWMutex
	root *node[V]
	size int
}

// New creates an empty trie
func New[V any]() *Trie[V] {
	return &Trie[V]{root: &node[V]{}}
}

// walk returns the node for key, creating missing nodes. Caller holds mu.
func (t *Trie[V]) walk(key string) *node[V] {
	n := t.root
	for _, r := range key {
		next := n.child(r)
		if next == nil {
			if n.children == nil {
				n.children = make(map[rune]*node[V])
			}
			next = &node[V]{}
			n.children[r] = next
		}
		n = next
	}
	return n
}

// Put inserts or overwrites the value stored at key
func (t *Trie[V]) Put(key string, value V) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.walk(key)
	if !n.set {
		t.size++
	}
	n.value = value
	n.set = true
}

// Upsert atomically replaces the value at key with fn(old, found) and
// returns the stored value.
func (t *Trie[V]) Upsert(key string, fn func(old V, found bool) V) V {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.walk(key)
	n.value = fn(n.value, n.set)
	if !n.set {
		t.size++
		n.set = true
	}
	return n.value
}

// Get returns the value only if key itself was inserted
func (t *Trie[V]) Get(key string) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero V
	n := t.root
	for _, r := range key {
		n = n.child(r)
		if n == nil {
			return zero, false
		}
	}
	if !n.set {
		return zero, false
	}
	return n.value, true
}

// FirstAncestor walks key and returns the value of the first node on the
// path that holds one. A shorter prefix shadows every longer prefix below it.
func (t *Trie[V]) FirstAncestor(key string) (V, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var zero V
	n := t.root
	if n.set {
		return n.value, true
	}
	for _, r := range key {
		n = n.child(r)
		if n == nil {
			return zero, false
		}
		if n.set {
			return n.value, true
		}
	}
	return zero, false
}

// Len returns the number of keys holding a value
func (t *Trie[V]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Keys returns every stored key in no particular order
func (t *Trie[V]) Keys() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	keys := make([]string, 0, t.size)
	var collect func(prefix []rune, n *node[V])
	collect = func(prefix []rune, n *node[V]) {
		if n.set {
			keys = append(keys, string(prefix))
		}
		for r, c := range n.children {
			collect(append(prefix, r), c)
		}
	}
	collect(nil, t.root)
	return keys
}
