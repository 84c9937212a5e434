// Package addon resolves declared add-ons against the catalog into an install
// plan and installs that plan into the project.
package addon

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/godle-io/godle/internal/catalog"
	"github.com/godle-io/godle/internal/logging"
	"github.com/godle-io/godle/internal/version"
)

// DefaultWorkers bounds concurrent catalog queries and downloads.
const DefaultWorkers = 4

// Resolver turns add-on declarations into an install plan.
type Resolver struct {
	catalog catalog.Client
	workers int
}

// NewResolver creates a resolver querying c with at most workers concurrent
// requests. A non-positive workers uses DefaultWorkers.
func NewResolver(c catalog.Client, workers int) *Resolver {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Resolver{catalog: c, workers: workers}
}

type request struct {
	name       string
	raw        string
	constraint version.Constraint
	requester  string
}

// Plan resolves declared and everything they depend on.
//
// The graph is walked one depth at a time. Catalog queries for the new names
// at a depth run concurrently. Every request for a name must resolve to the
// same concrete version, otherwise the result is a VersionConflictError.
// Once the graph is complete it is ordered dependency-first, which also
// detects cycles.
func (r *Resolver) Plan(ctx context.Context, declared []catalog.Declaration) (*Plan, error) {
	frontier, err := toRequests(declared, "")
	if err != nil {
		return nil, err
	}

	var roots []string
	seenRoot := make(map[string]bool)
	for _, req := range frontier {
		if !seenRoot[req.name] {
			seenRoot[req.name] = true
			roots = append(roots, req.name)
		}
	}

	nodes := make(map[string]*Node)
	firstReq := make(map[string]request)
	versions := make(map[string][]string)

	for depth := 0; len(frontier) > 0; depth++ {
		if err := r.listVersions(ctx, frontier, versions); err != nil {
			return nil, err
		}

		var fresh []*Node
		for _, req := range frontier {
			available := versions[req.name]
			best, ok := req.constraint.Best(available)
			if !ok {
				return nil, &UnsatisfiableError{Name: req.name, Constraint: req.constraint.String(), Requester: req.requester, Available: available}
			}

			if n, exists := nodes[req.name]; exists {
				if !version.SameVersion(n.Version, best) {
					first := firstReq[req.name]
					return nil, &VersionConflictError{
						Name:   req.name,
						First:  Requirement{Requester: first.requester, Constraint: first.raw, Version: n.Version},
						Second: Requirement{Requester: req.requester, Constraint: req.raw, Version: best},
					}
				}
				n.RequiredBy = appendUnique(n.RequiredBy, req.requester)
				continue
			}

			n := &Node{Name: req.name, Version: best, RequiredBy: []string{req.requester}}
			nodes[req.name] = n
			firstReq[req.name] = req
			fresh = append(fresh, n)
			logging.Debug("resolved addon", "name", n.Name, "version", n.Version, "depth", depth)
		}

		deps, err := r.describe(ctx, fresh)
		if err != nil {
			return nil, err
		}

		frontier = frontier[:0:0]
		for i, n := range fresh {
			reqs, err := toRequests(deps[i], n.Name)
			if err != nil {
				return nil, err
			}
			for _, req := range reqs {
				n.Dependencies = appendUnique(n.Dependencies, req.name)
				frontier = append(frontier, req)
			}
		}
	}

	ordered, err := order(roots, nodes)
	if err != nil {
		return nil, err
	}
	return newPlan(ordered), nil
}

// listVersions fills versions for every name in reqs not already known.
func (r *Resolver) listVersions(ctx context.Context, reqs []request, versions map[string][]string) error {
	var names []string
	seen := make(map[string]bool)
	for _, req := range reqs {
		if _, ok := versions[req.name]; ok || seen[req.name] {
			continue
		}
		seen[req.name] = true
		names = append(names, req.name)
	}

	results := make([][]string, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, name := range names {
		g.Go(func() error {
			vs, err := r.catalog.ListVersions(gctx, name)
			if err != nil {
				return fmt.Errorf("failed to list versions of %s: %w", name, err)
			}
			results[i] = vs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for i, name := range names {
		versions[name] = results[i]
	}
	return nil
}

// describe fetches dependencies and download locations for nodes, and
// returns the dependencies positionally.
func (r *Resolver) describe(ctx context.Context, nodes []*Node) ([][]catalog.Declaration, error) {
	deps := make([][]catalog.Declaration, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, n := range nodes {
		g.Go(func() error {
			d, err := r.catalog.GetDependencies(gctx, n.Name, n.Version)
			if err != nil {
				return fmt.Errorf("failed to get dependencies of %s: %w", n, err)
			}
			dl, err := r.catalog.GetDownload(gctx, n.Name, n.Version)
			if err != nil {
				return fmt.Errorf("failed to get download of %s: %w", n, err)
			}
			deps[i] = d
			n.Artifact = dl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return deps, nil
}

func toRequests(decls []catalog.Declaration, requester string) ([]request, error) {
	reqs := make([]request, 0, len(decls))
	for _, d := range decls {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("addon declaration without a name")
		}
		c, err := version.ParseConstraint(d.Version)
		if err != nil {
			return nil, fmt.Errorf("addon %s: %w", name, err)
		}
		reqs = append(reqs, request{name: name, raw: d.Version, constraint: c, requester: requester})
	}
	return reqs, nil
}

const (
	unvisited = iota
	visiting
	done
)

// order emits nodes dependency-first, walking roots and dependencies in
// declaration order. A dependency reached while still being visited is a
// cycle.
func order(roots []string, nodes map[string]*Node) ([]*Node, error) {
	marks := make(map[string]int, len(nodes))
	out := make([]*Node, 0, len(nodes))

	for _, root := range roots {
		if marks[root] != unvisited {
			continue
		}
		marks[root] = visiting
		stack := []frame{{name: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			n := nodes[top.name]
			if top.next < len(n.Dependencies) {
				dep := n.Dependencies[top.next]
				top.next++
				switch marks[dep] {
				case visiting:
					return nil, &CyclicDependencyError{Cycle: cyclePath(stack, dep)}
				case unvisited:
					marks[dep] = visiting
					stack = append(stack, frame{name: dep})
				}
				continue
			}
			marks[top.name] = done
			out = append(out, n)
			stack = stack[:len(stack)-1]
		}
	}
	return out, nil
}

type frame struct {
	name string
	next int // index of the next dependency to visit
}

// cyclePath returns the names on the stack from dep onwards, closed by dep.
func cyclePath(stack []frame, dep string) []string {
	var path []string
	for i := len(stack) - 1; i >= 0; i-- {
		path = append([]string{stack[i].name}, path...)
		if stack[i].name == dep {
			break
		}
	}
	return append(path, dep)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
