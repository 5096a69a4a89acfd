package launch

import (
	"sort"

	"github.com/dominikbraun/graph"
)

// Provenance records which component asked for which. Edges point from the
// requesting component to the requested one; the initial names have no
// incoming edge.
type Provenance struct {
	g graph.Graph[string, string]
}

func newProvenance() *Provenance {
	return &Provenance{g: graph.New(graph.StringHash, graph.Directed())}
}

// addComponent adds a vertex; both vertices of every edge are added first,
// so the only error either call can return is a duplicate.
func (p *Provenance) addComponent(name string) {
	_ = p.g.AddVertex(name)
}

func (p *Provenance) addRequest(from, to string) {
	p.addComponent(from)
	p.addComponent(to)
	_ = p.g.AddEdge(from, to)
}

// Components lists every component seen, requested or processed
func (p *Provenance) Components() []string {
	adj, err := p.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(adj))
	for name := range adj {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RequestedBy lists the components that enqueued name
func (p *Provenance) RequestedBy(name string) []string {
	preds, err := p.g.PredecessorMap()
	if err != nil {
		return nil
	}
	var out []string
	for from := range preds[name] {
		out = append(out, from)
	}
	sort.Strings(out)
	return out
}

// Requested lists the components name enqueued
func (p *Provenance) Requested(name string) []string {
	adj, err := p.g.AdjacencyMap()
	if err != nil {
		return nil
	}
	var out []string
	for to := range adj[name] {
		out = append(out, to)
	}
	sort.Strings(out)
	return out
}

// Graph exposes the underlying directed graph
func (p *Provenance) Graph() graph.Graph[string, string] {
	return p.g
}
