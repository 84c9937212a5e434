package addon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/godle-io/godle/internal/catalog"
)

// publish adds name@version with deps to the catalog.
func publish(c *catalog.MemoryClient, name, version string, deps ...catalog.Declaration) {
	c.Publish(name, catalog.VersionEntry{
		Version:      version,
		URL:          "https://example.com/" + name + "-" + version + ".zip",
		Dependencies: deps,
	})
}

func dep(name, constraint string) catalog.Declaration {
	return catalog.Declaration{Name: name, Version: constraint}
}

func assertTopological(t *testing.T, plan *Plan) {
	t.Helper()
	for i, n := range plan.Nodes {
		for _, d := range n.Dependencies {
			j := plan.Index(d)
			require.GreaterOrEqual(t, j, 0, "dependency %s of %s missing from plan", d, n.Name)
			assert.Less(t, j, i, "%s must precede %s", d, n.Name)
		}
	}
}

func TestPlan_DependencyFirst(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "A", "1.0.0")
	publish(c, "A", "1.2.0", dep("B", "2.0"))
	publish(c, "B", "2.0.0")

	plan, err := NewResolver(c, 2).Plan(context.Background(), []catalog.Declaration{dep("A", ">=1.0")})
	require.NoError(t, err)

	require.Equal(t, 2, plan.Len())
	assert.Equal(t, "B", plan.Nodes[0].Name)
	assert.Equal(t, "2.0.0", plan.Nodes[0].Version)
	assert.Equal(t, "A", plan.Nodes[1].Name)
	assert.Equal(t, "1.2.0", plan.Nodes[1].Version)
	assert.Equal(t, "https://example.com/A-1.2.0.zip", plan.Nodes[1].Artifact.URL)
	assert.Equal(t, []string{"A"}, plan.Nodes[0].RequiredBy)
}

func TestPlan_Diamond(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "app", "1.0.0", dep("ui", "^1"), dep("net", "^1"))
	publish(c, "ui", "1.4.0", dep("core", "~2.1"))
	publish(c, "net", "1.1.0", dep("core", ">=2.0 <3"))
	publish(c, "core", "2.1.3")
	publish(c, "core", "3.0.0")
	publish(c, "extra", "0.3.0")

	plan, err := NewResolver(c, 4).Plan(context.Background(), []catalog.Declaration{dep("app", ""), dep("extra", "0.3")})
	require.NoError(t, err)

	assert.Equal(t, []string{"core", "ui", "net", "app", "extra"}, plan.Names())
	core, ok := plan.Get("core")
	require.True(t, ok)
	assert.Equal(t, "2.1.3", core.Version)
	assert.ElementsMatch(t, []string{"ui", "net"}, core.RequiredBy)
	assertTopological(t, plan)
}

func TestPlan_DeclarationOrderBreaksTies(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		publish(c, n, "1.0.0")
	}
	decls := []catalog.Declaration{dep("zeta", ""), dep("alpha", ""), dep("mid", ""), dep("alpha", "1.0")}

	plan, err := NewResolver(c, 3).Plan(context.Background(), decls)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, plan.Names())
}

func TestPlan_Cycle(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "A", "1.0.0", dep("B", ""))
	publish(c, "B", "1.0.0", dep("A", ""))

	_, err := NewResolver(c, 2).Plan(context.Background(), []catalog.Declaration{dep("A", "")})
	var cycle *CyclicDependencyError
	require.True(t, errors.As(err, &cycle), "got %v", err)
	assert.Equal(t, []string{"A", "B", "A"}, cycle.Cycle)
	assert.Contains(t, err.Error(), "A -> B -> A")
}

func TestPlan_CycleBelowRoot(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "root", "1.0.0", dep("x", ""))
	publish(c, "x", "1.0.0", dep("y", ""))
	publish(c, "y", "1.0.0", dep("z", ""))
	publish(c, "z", "1.0.0", dep("x", ""))

	_, err := NewResolver(c, 2).Plan(context.Background(), []catalog.Declaration{dep("root", "")})
	var cycle *CyclicDependencyError
	require.True(t, errors.As(err, &cycle), "got %v", err)
	assert.Equal(t, []string{"x", "y", "z", "x"}, cycle.Cycle)
}

func TestPlan_SelfDependency(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "A", "1.0.0", dep("A", ""))

	_, err := NewResolver(c, 1).Plan(context.Background(), []catalog.Declaration{dep("A", "")})
	var cycle *CyclicDependencyError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"A", "A"}, cycle.Cycle)
}

func TestPlan_VersionConflict(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "left", "1.0.0", dep("shared", "^1"))
	publish(c, "right", "1.0.0", dep("shared", "^2"))
	publish(c, "shared", "1.5.0")
	publish(c, "shared", "2.1.0")

	_, err := NewResolver(c, 2).Plan(context.Background(), []catalog.Declaration{dep("left", ""), dep("right", "")})
	var conflict *VersionConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, "shared", conflict.Name)
	assert.Equal(t, "left", conflict.First.Requester)
	assert.Equal(t, "1.5.0", conflict.First.Version)
	assert.Equal(t, "right", conflict.Second.Requester)
	assert.Equal(t, "2.1.0", conflict.Second.Version)
}

func TestPlan_RootConflictsWithDependency(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "lib", "1.0.0")
	publish(c, "lib", "2.0.0")
	publish(c, "app", "1.0.0", dep("lib", "^2"))

	_, err := NewResolver(c, 2).Plan(context.Background(), []catalog.Declaration{dep("lib", "1.0"), dep("app", "")})
	var conflict *VersionConflictError
	require.True(t, errors.As(err, &conflict), "got %v", err)
	assert.Equal(t, "", conflict.First.Requester)
	assert.Equal(t, "app", conflict.Second.Requester)
}

func TestPlan_Unsatisfiable(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "A", "1.0.0")

	_, err := NewResolver(c, 1).Plan(context.Background(), []catalog.Declaration{dep("A", ">=2")})
	var unsat *UnsatisfiableError
	require.True(t, errors.As(err, &unsat))
	assert.Equal(t, []string{"1.0.0"}, unsat.Available)
}

func TestPlan_UnknownAddon(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	publish(c, "A", "1.0.0", dep("ghost", ""))

	_, err := NewResolver(c, 1).Plan(context.Background(), []catalog.Declaration{dep("A", "")})
	require.Error(t, err)
	assert.True(t, catalog.IsNotFound(err))
}

func TestPlan_Empty(t *testing.T) {
	plan, err := NewResolver(catalog.NewMemoryClient(nil), 1).Plan(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Len())
}

func TestPlan_TopologicalProperty(t *testing.T) {
	c := catalog.NewMemoryClient(nil)
	// A layered graph where each node depends on every node of the layer below.
	layers := [][]string{{"l0a", "l0b"}, {"l1a", "l1b", "l1c"}, {"l2a"}, {"l3a", "l3b"}}
	for i, layer := range layers {
		for _, name := range layer {
			var deps []catalog.Declaration
			if i > 0 {
				for _, below := range layers[i-1] {
					deps = append(deps, dep(below, "*"))
				}
			}
			publish(c, name, "1.0.0", deps...)
		}
	}

	plan, err := NewResolver(c, 3).Plan(context.Background(), []catalog.Declaration{dep("l3b", ""), dep("l3a", "")})
	require.NoError(t, err)
	assert.Equal(t, 8, plan.Len())
	assertTopological(t, plan)
}

// overlapCatalog records how many catalog queries run at once. Each query
// waits for the overlap to reach want, or for a short deadline, before it
// returns.
type overlapCatalog struct {
	catalog.Client
	want int

	mu       sync.Mutex
	cond     *sync.Cond
	inFlight int
	peak     int
}

func newOverlapCatalog(c catalog.Client, want int) *overlapCatalog {
	o := &overlapCatalog{Client: c, want: want}
	o.cond = sync.NewCond(&o.mu)
	return o
}

func (o *overlapCatalog) enter() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.inFlight++
	if o.inFlight > o.peak {
		o.peak = o.inFlight
	}
	o.cond.Broadcast()

	deadline := time.AfterFunc(200*time.Millisecond, func() {
		o.mu.Lock()
		o.cond.Broadcast()
		o.mu.Unlock()
	})
	defer deadline.Stop()
	start := time.Now()
	for o.peak < o.want && time.Since(start) < 200*time.Millisecond {
		o.cond.Wait()
	}
	o.inFlight--
}

func (o *overlapCatalog) Peak() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peak
}

func (o *overlapCatalog) ListVersions(ctx context.Context, name string) ([]string, error) {
	o.enter()
	return o.Client.ListVersions(ctx, name)
}

func (o *overlapCatalog) GetDependencies(ctx context.Context, name, version string) ([]catalog.Declaration, error) {
	o.enter()
	return o.Client.GetDependencies(ctx, name, version)
}

func TestPlan_QueriesSameDepthConcurrently(t *testing.T) {
	mem := catalog.NewMemoryClient(nil)
	var declared []catalog.Declaration
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("addon%d", i)
		publish(mem, name, "1.0.0")
		declared = append(declared, dep(name, ""))
	}

	const workers = 3
	c := newOverlapCatalog(mem, workers)
	plan, err := NewResolver(c, workers).Plan(context.Background(), declared)
	require.NoError(t, err)

	assert.Equal(t, 6, plan.Len())
	assert.Equal(t, workers, c.Peak(), "independent queries overlap up to the worker limit")
}

func TestPlan_SingleWorkerIsSequential(t *testing.T) {
	mem := catalog.NewMemoryClient(nil)
	publish(mem, "a", "1.0.0")
	publish(mem, "b", "1.0.0")

	c := newOverlapCatalog(mem, 2)
	_, err := NewResolver(c, 1).Plan(context.Background(), []catalog.Declaration{dep("a", ""), dep("b", "")})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Peak())
}
