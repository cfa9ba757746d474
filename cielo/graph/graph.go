package graph

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// OverflowAddress is the sentinel node that collects every relation folded out of the top-K
// of a source. It is never a real account and is never expanded.
const OverflowAddress Address = "last"

var ErrInvalidAddress = errors.New("invalid address")

// Address identifies an account. Addresses are compared case-insensitively, so every
// address entering the graph goes through NewAddress.
type Address string

func NewAddress(s string) Address {
	return Address(strings.ToLower(strings.TrimSpace(s)))
}

func (a Address) String() string {
	return string(a)
}

func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// Validate reports whether a can be used as a crawl root or in a request path.
func (a Address) Validate() error {
	if a == "" {
		return errors.Wrap(ErrInvalidAddress, "empty address")
	}
	if a.Equal(OverflowAddress) {
		return errors.Wrapf(ErrInvalidAddress, "%q is reserved", string(a))
	}
	if strings.ContainsAny(string(a), " \t\r\n/?#%") {
		return errors.Wrapf(ErrInvalidAddress, "%q contains forbidden characters", string(a))
	}
	return nil
}

// Relation is one counterparty record reported for a queried account.
type Relation struct {
	Counterparty Address
	Inflow       float64
	Outflow      float64
}

func (r Relation) Volume() float64 {
	return r.Inflow + r.Outflow
}

type Edge struct {
	Source   Address `json:"source"`
	Target   Address `json:"target"`
	TotalIn  float64 `json:"total_in"`
	TotalOut float64 `json:"total_out"`
}

func (e Edge) Volume() float64 {
	return e.TotalIn + e.TotalOut
}

func (e Edge) IsOverflow() bool {
	return e.Target == OverflowAddress
}

type edgeKey struct {
	source Address
	target Address
}

// Graph is the accumulated result of a crawl. It is safe for concurrent use.
type Graph struct {
	root  Address
	nodes map[Address]struct{}
	edges []Edge
	index map[edgeKey]int
	mu    sync.RWMutex
}

func New(root Address) *Graph {
	g := &Graph{
		root:  root,
		nodes: make(map[Address]struct{}),
		index: make(map[edgeKey]int),
	}
	g.nodes[root] = struct{}{}
	return g
}

func (g *Graph) Root() Address {
	return g.root
}

func (g *Graph) AddNode(a Address) {
	g.mu.Lock()
	g.nodes[a] = struct{}{}
	g.mu.Unlock()
}

// AddEdge inserts e and both of its endpoints. A second edge for a pair that is already
// present is merged into the first one so every (source, target) pair stays unique.
func (g *Graph) AddEdge(e Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes[e.Source] = struct{}{}
	g.nodes[e.Target] = struct{}{}

	key := edgeKey{e.Source, e.Target}
	if i, ok := g.index[key]; ok {
		g.edges[i].TotalIn += e.TotalIn
		g.edges[i].TotalOut += e.TotalOut
		return
	}
	g.index[key] = len(g.edges)
	g.edges = append(g.edges, e)
}

func (g *Graph) HasNode(a Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[a]
	return ok
}

func (g *Graph) HasEdge(source, target Address) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index[edgeKey{source, target}]
	return ok
}

// Nodes returns the node set sorted lexically.
func (g *Graph) Nodes() []Address {
	g.mu.RLock()
	nodes := make([]Address, 0, len(g.nodes))
	for n := range g.nodes {
		nodes = append(nodes, n)
	}
	g.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}

// Edges returns a copy of the edges in insertion order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	edges := make([]Edge, len(g.edges))
	copy(edges, g.edges)
	return edges
}

func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

type graphJSON struct {
	Root  Address   `json:"root"`
	Nodes []Address `json:"nodes"`
	Edges []Edge    `json:"edges"`
}

func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(graphJSON{
		Root:  g.root,
		Nodes: g.Nodes(),
		Edges: g.Edges(),
	})
}

func (g *Graph) UnmarshalJSON(b []byte) error {
	var gj graphJSON
	if err := json.Unmarshal(b, &gj); err != nil {
		return err
	}

	g.mu.Lock()
	g.root = gj.Root
	g.nodes = map[Address]struct{}{gj.Root: {}}
	g.edges = nil
	g.index = make(map[edgeKey]int)
	g.mu.Unlock()

	for _, n := range gj.Nodes {
		g.AddNode(n)
	}
	for _, e := range gj.Edges {
		g.AddEdge(e)
	}
	return nil
}
