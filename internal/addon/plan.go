package addon

import (
	"github.com/godle-io/godle/internal/cache"
	"github.com/godle-io/godle/internal/catalog"
	"github.com/godle-io/godle/internal/download"
)

// Node is one resolved add-on.
type Node struct {
	Name    string
	Version string

	// Dependencies are the names of direct dependencies in declaration order.
	Dependencies []string
	// RequiredBy lists requesting add-ons; an empty string is the project.
	RequiredBy []string

	Artifact catalog.Download
}

// Key is the cache key of the node's archive.
func (n *Node) Key() cache.Key {
	return cache.KeyFor("addon", n.Name, n.Version, n.Artifact.URL)
}

// Source is the download source of the node's archive.
func (n *Node) Source() download.Source {
	return download.Source{URL: n.Artifact.URL, Checksum: n.Artifact.Checksum}
}

func (n *Node) String() string {
	return n.Name + "@" + n.Version
}

// Plan is a dependency-first ordering of resolved add-ons: every node comes
// after all of its dependencies.
type Plan struct {
	Nodes []*Node

	index map[string]int
}

func newPlan(nodes []*Node) *Plan {
	p := &Plan{Nodes: nodes, index: make(map[string]int, len(nodes))}
	for i, n := range nodes {
		p.index[n.Name] = i
	}
	return p
}

// Len returns the number of nodes.
func (p *Plan) Len() int {
	return len(p.Nodes)
}

// Get returns the node named name.
func (p *Plan) Get(name string) (*Node, bool) {
	i, ok := p.index[name]
	if !ok {
		return nil, false
	}
	return p.Nodes[i], true
}

// Index returns the position of name in the plan, or -1.
func (p *Plan) Index(name string) int {
	if i, ok := p.index[name]; ok {
		return i
	}
	return -1
}

// Names returns node names in plan order.
func (p *Plan) Names() []string {
	out := make([]string, len(p.Nodes))
	for i, n := range p.Nodes {
		out[i] = n.Name
	}
	return out
}
