package migrate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/provision/internal/shared"
)

// Graph is the dependency graph of an app's migration descriptors.
type Graph struct {
	nodes map[string]*Descriptor
	// children maps a migration to the migrations that depend on it.
	children map[string][]string
}

// NewGraph builds a graph and rejects dangling dependencies and cycles.
func NewGraph(descriptors []*Descriptor) (*Graph, error) {
	g := &Graph{
		nodes:    make(map[string]*Descriptor, len(descriptors)),
		children: make(map[string][]string, len(descriptors)),
	}

	for _, d := range descriptors {
		if _, dup := g.nodes[d.Name]; dup {
			return nil, fmt.Errorf("duplicate migration %s", d.Name)
		}
		g.nodes[d.Name] = d
	}

	for _, d := range descriptors {
		for _, dep := range d.Dependencies {
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", shared.ErrNodeDependencyMissing, d.Name, dep)
			}
			g.children[dep] = append(g.children[dep], d.Name)
		}
	}

	if _, err := g.Order(); err != nil {
		return nil, err
	}

	return g, nil
}

// Len returns the number of migrations in the graph.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the named descriptor.
func (g *Graph) Node(name string) (*Descriptor, bool) {
	d, ok := g.nodes[name]
	return d, ok
}

// Order returns descriptors with every dependency before its dependents; ties are broken by name.
func (g *Graph) Order() ([]*Descriptor, error) {
	indegree := make(map[string]int, len(g.nodes))
	for name, d := range g.nodes {
		indegree[name] = len(d.Dependencies)
	}

	var ready []string
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]*Descriptor, 0, len(g.nodes))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, g.nodes[name])

		var released []string
		for _, child := range g.children[name] {
			indegree[child]--
			if indegree[child] == 0 {
				released = append(released, child)
			}
		}
		if len(released) > 0 {
			ready = append(ready, released...)
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(g.nodes) {
		var stuck []string
		for name, n := range indegree {
			if n > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("circular migration dependencies: %s", strings.Join(stuck, ", "))
	}

	return ordered, nil
}

// Leaves returns migrations nothing depends on, sorted by name.
func (g *Graph) Leaves() []string {
	var leaves []string
	for name := range g.nodes {
		if len(g.children[name]) == 0 {
			leaves = append(leaves, name)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// CheckConflicts fails when the graph has more than one leaf.
func (g *Graph) CheckConflicts() error {
	if leaves := g.Leaves(); len(leaves) > 1 {
		return fmt.Errorf("%w: multiple leaf nodes (%s)", shared.ErrMigrationConflict, strings.Join(leaves, ", "))
	}
	return nil
}

// NextNumber returns one past the highest numeric prefix in the graph.
func (g *Graph) NextNumber() int {
	highest := 0
	for _, d := range g.nodes {
		if n := d.Number(); n > highest {
			highest = n
		}
	}
	return highest + 1
}
