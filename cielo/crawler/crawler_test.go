package crawler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/Laperavee/Cielo-API/cielo/graph"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	relations map[graph.Address][]graph.Relation
	onFetch   func(graph.Address)

	mu    sync.Mutex
	calls map[graph.Address]int
	order []graph.Address
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		relations: make(map[graph.Address][]graph.Relation),
		calls:     make(map[graph.Address]int),
	}
}

func (f *fakeFetcher) link(from, to string, in, out float64) {
	a := graph.NewAddress(from)
	f.relations[a] = append(f.relations[a], graph.Relation{Counterparty: graph.NewAddress(to), Inflow: in, Outflow: out})
}

func (f *fakeFetcher) FetchRelations(ctx context.Context, address graph.Address) []graph.Relation {
	f.mu.Lock()
	f.calls[address]++
	f.order = append(f.order, address)
	f.mu.Unlock()

	if f.onFetch != nil {
		f.onFetch(address)
	}
	return f.relations[address]
}

func (f *fakeFetcher) callCount(address graph.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[address]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.order)
}

func assertConsistent(t *testing.T, g *graph.Graph) {
	t.Helper()
	seen := map[[2]graph.Address]bool{}
	for _, e := range g.Edges() {
		assert.True(t, g.HasNode(e.Source), "missing source %s", e.Source)
		assert.True(t, g.HasNode(e.Target), "missing target %s", e.Target)
		key := [2]graph.Address{e.Source, e.Target}
		assert.False(t, seen[key], "duplicate edge %s -> %s", e.Source, e.Target)
		seen[key] = true
	}
}

func TestCrawlDepthZero(t *testing.T) {
	f := newFakeFetcher()
	f.link("a", "b", 100, 0)

	g, err := New(f, zerolog.Nop()).Crawl(context.Background(), "A", 0)
	require.NoError(t, err)

	assert.Equal(t, []graph.Address{"a"}, g.Nodes())
	assert.Zero(t, g.EdgeCount())
	assert.Zero(t, f.totalCalls())
}

func TestCrawlDepthOne(t *testing.T) {
	f := newFakeFetcher()
	f.link("a", "b", 100, 0)
	f.link("b", "c", 100, 0)

	g, err := New(f, zerolog.Nop()).Crawl(context.Background(), "a", 1)
	require.NoError(t, err)

	assert.Equal(t, []graph.Edge{{Source: "a", Target: "b", TotalIn: 100}}, g.Edges())
	assert.Equal(t, 1, f.totalCalls())
	assert.Zero(t, f.callCount("b"))
}

func TestCrawlScenario(t *testing.T) {
	f := newFakeFetcher()
	f.link("A", "B", 40, 5)
	f.link("A", "C", 20, 40)
	f.link("A", "D", 1, 1)

	g, err := New(f, zerolog.Nop(), WithMaxEdges(3)).Crawl(context.Background(), "A", 1)
	require.NoError(t, err)

	assert.Equal(t, []graph.Edge{{Source: "a", Target: "c", TotalIn: 20, TotalOut: 40}}, g.Edges())
	assert.Equal(t, []graph.Address{"a", "c"}, g.Nodes())
}

func TestCrawlCycles(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers %d", workers), func(t *testing.T) {
			f := newFakeFetcher()
			f.link("a", "b", 100, 0)
			f.link("a", "a", 500, 0)
			f.link("b", "a", 0, 100)
			f.link("b", "c", 80, 0)
			f.link("c", "b", 60, 0)
			f.link("c", "A", 70, 0)

			g, err := New(f, zerolog.Nop(), WithWorkers(workers)).Crawl(context.Background(), "a", 10)
			require.NoError(t, err)

			for _, addr := range []graph.Address{"a", "b", "c"} {
				assert.Equal(t, 1, f.callCount(addr), "fetches of %s", addr)
			}
			assert.Equal(t, 3, f.totalCalls())
			assert.True(t, g.HasEdge("a", "a"))
			assert.True(t, g.HasEdge("c", "a"))
			assertConsistent(t, g)
		})
	}
}

func TestCrawlOverflowNeverExpanded(t *testing.T) {
	f := newFakeFetcher()
	for i := 0; i < 10; i++ {
		f.link("root", fmt.Sprintf("w%d", i), float64(100+i), 0)
	}
	f.relations[graph.OverflowAddress] = []graph.Relation{{Counterparty: "x", Inflow: 1000}}

	g, err := New(f, zerolog.Nop(), WithMaxEdges(3)).Crawl(context.Background(), "root", 3)
	require.NoError(t, err)

	assert.Zero(t, f.callCount(graph.OverflowAddress))
	assert.Equal(t, 3, f.totalCalls())
	assert.Equal(t, 1, f.callCount("w9"))
	assert.Equal(t, 1, f.callCount("w8"))
	assert.True(t, g.HasNode(graph.OverflowAddress))
	assert.True(t, g.HasEdge("root", graph.OverflowAddress))
	assert.False(t, g.HasNode("x"))
}

func TestCrawlSequentialOrder(t *testing.T) {
	f := newFakeFetcher()
	f.link("a", "b", 300, 0)
	f.link("a", "c", 200, 0)
	f.link("b", "d", 100, 0)
	f.link("c", "d", 100, 0)

	g, err := New(f, zerolog.Nop()).Crawl(context.Background(), "a", 3)
	require.NoError(t, err)

	assert.Equal(t, []graph.Address{"a", "b", "d", "c"}, f.order)
	assert.Equal(t, []graph.Edge{
		{Source: "a", Target: "b", TotalIn: 300},
		{Source: "a", Target: "c", TotalIn: 200},
		{Source: "b", Target: "d", TotalIn: 100},
		{Source: "c", Target: "d", TotalIn: 100},
	}, g.Edges())
}

func TestCrawlFailedWalletEndsBranchOnly(t *testing.T) {
	f := newFakeFetcher()
	f.link("a", "broken", 300, 0)
	f.link("a", "b", 200, 0)
	f.link("b", "c", 100, 0)

	g, err := New(f, zerolog.Nop()).Crawl(context.Background(), "a", 3)
	require.NoError(t, err)

	assert.Equal(t, 1, f.callCount("broken"))
	assert.True(t, g.HasEdge("b", "c"))
	assert.Equal(t, 3, g.EdgeCount())
}

func TestCrawlInvalidRoot(t *testing.T) {
	f := newFakeFetcher()
	for _, root := range []string{"", "  ", "last", "a/b"} {
		g, err := New(f, zerolog.Nop()).Crawl(context.Background(), root, 3)
		assert.Nil(t, g)
		assert.True(t, errors.Is(err, ErrInvalidRoot), "root %q", root)
	}
	assert.Zero(t, f.totalCalls())
}

func TestCrawlCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFakeFetcher()
	f.link("a", "b", 300, 0)
	f.link("a", "c", 200, 0)
	f.link("b", "d", 100, 0)
	f.link("c", "e", 100, 0)
	f.onFetch = func(address graph.Address) {
		if address == "b" {
			cancel()
		}
	}

	g, err := New(f, zerolog.Nop()).Crawl(ctx, "a", 5)
	assert.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, g)

	assert.Equal(t, []graph.Address{"a", "b"}, f.order)
	assert.Equal(t, 2, g.EdgeCount())
	assert.False(t, g.HasNode("d"))
	assertConsistent(t, g)
}

func TestCrawlParallelRandomGraph(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	f := newFakeFetcher()
	for i := 0; i < 200; i++ {
		for j := 0; j < 12; j++ {
			f.link(fmt.Sprintf("w%d", i), fmt.Sprintf("w%d", rng.Intn(200)), rng.Float64()*300, rng.Float64()*300)
		}
	}

	for _, workers := range []int{1, 8} {
		t.Run(fmt.Sprintf("workers %d", workers), func(t *testing.T) {
			ff := newFakeFetcher()
			ff.relations = f.relations

			g, err := New(ff, zerolog.Nop(), WithWorkers(workers)).Crawl(context.Background(), "w0", 4)
			require.NoError(t, err)

			ff.mu.Lock()
			for addr, n := range ff.calls {
				assert.Equal(t, 1, n, "fetches of %s", addr)
				assert.NotEqual(t, graph.OverflowAddress, addr)
			}
			ff.mu.Unlock()

			assert.LessOrEqual(t, ff.totalCalls(), g.NodeCount())
			assertConsistent(t, g)
			for _, e := range g.Edges() {
				assert.GreaterOrEqual(t, e.Volume(), graph.DefaultThreshold)
			}
		})
	}
}
