package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laperavee/Cielo-API/cielo/graph"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

var ErrInvalidRoot = errors.New("invalid root address")

var tracer = otel.Tracer("cielo.crawler")

// RelationsFetcher returns the relations of one wallet. Failures are expected to be handled
// (and logged) by the implementation, which then returns no relations.
type RelationsFetcher interface {
	FetchRelations(ctx context.Context, address graph.Address) []graph.Relation
}

// Crawler expands the related-wallets graph of a root address up to a depth bound.
type Crawler struct {
	fetcher   RelationsFetcher
	logger    zerolog.Logger
	maxEdges  int
	threshold float64
	workers   int
}

type Option func(*Crawler)

// WithMaxEdges bounds the edges kept per wallet, overflow edge included.
func WithMaxEdges(n int) Option {
	return func(c *Crawler) { c.maxEdges = n }
}

func WithThreshold(v float64) Option {
	return func(c *Crawler) { c.threshold = v }
}

// WithWorkers sets how many wallets may be fetched at the same time. 1 gives a strictly
// sequential depth-first crawl.
func WithWorkers(n int) Option {
	return func(c *Crawler) {
		if n < 1 {
			n = 1
		}
		c.workers = n
	}
}

func New(fetcher RelationsFetcher, logger zerolog.Logger, opts ...Option) *Crawler {
	initPrometheusMetrics()

	c := &Crawler{
		fetcher:   fetcher,
		logger:    logger.With().Str("component", "crawler").Logger(),
		maxEdges:  graph.DefaultMaxEdges,
		threshold: graph.DefaultThreshold,
		workers:   1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// crawl is the state of a single Crawl call.
type crawl struct {
	*Crawler
	graph    *graph.Graph
	maxDepth int
	sem      *semaphore.Weighted
	expanded atomic.Int64

	mu      sync.Mutex
	visited map[graph.Address]struct{}
}

// visit marks address as visited and reports whether it was not visited before.
func (cr *crawl) visit(address graph.Address) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	if _, ok := cr.visited[address]; ok {
		return false
	}
	cr.visited[address] = struct{}{}
	return true
}

func (cr *crawl) isVisited(address graph.Address) bool {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	_, ok := cr.visited[address]
	return ok
}

// Crawl builds the graph around root. Each wallet is fetched at most once and wallets deeper
// than maxDepth are never fetched, so maxDepth 0 returns the root alone.
//
// A wallet whose relations cannot be fetched simply ends its branch. If ctx is cancelled the
// graph built so far is returned together with the context error.
func (c *Crawler) Crawl(ctx context.Context, root string, maxDepth int) (*graph.Graph, error) {
	rootAddress := graph.NewAddress(root)
	if err := rootAddress.Validate(); err != nil {
		return nil, errors.Wrapf(ErrInvalidRoot, "%v", err)
	}

	ctx, span := tracer.Start(ctx, "crawler.Crawl",
		trace.WithAttributes(
			attribute.String("root", rootAddress.String()),
			attribute.Int("max_depth", maxDepth),
		),
	)
	defer span.End()

	cr := &crawl{
		Crawler:  c,
		graph:    graph.New(rootAddress),
		maxDepth: maxDepth,
		sem:      semaphore.NewWeighted(int64(c.workers)),
		visited:  make(map[graph.Address]struct{}),
	}

	start := time.Now()
	c.logger.Info().Str("root", rootAddress.String()).Int("max_depth", maxDepth).Int("workers", c.workers).Msg("crawl started")

	cr.expand(ctx, rootAddress, 1)

	prometheusCrawlDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("nodes", cr.graph.NodeCount()),
		attribute.Int("edges", cr.graph.EdgeCount()),
	)

	event := c.logger.Info()
	if ctx.Err() != nil {
		event = c.logger.Warn().AnErr("cause", ctx.Err())
	}
	event.Str("root", rootAddress.String()).
		Int64("expanded", cr.expanded.Load()).
		Int("nodes", cr.graph.NodeCount()).
		Int("edges", cr.graph.EdgeCount()).
		Dur("took", time.Since(start)).
		Msg("crawl finished")

	return cr.graph, ctx.Err()
}

func (cr *crawl) expand(ctx context.Context, address graph.Address, depth int) {
	if depth > cr.maxDepth || ctx.Err() != nil {
		return
	}
	if !cr.visit(address) {
		return
	}

	relations, ok := cr.fetch(ctx, address, depth)
	if !ok {
		return
	}

	edges := graph.Aggregate(address, relations, cr.maxEdges, cr.threshold)
	if len(edges) == 0 {
		return
	}

	cr.expanded.Add(1)
	prometheusExpanded.Inc()

	children := make([]graph.Address, 0, len(edges))
	for _, e := range edges {
		cr.graph.AddEdge(e)
		if e.IsOverflow() || e.Target == address || cr.isVisited(e.Target) {
			continue
		}
		children = append(children, e.Target)
	}

	cr.logger.Debug().Str("wallet", address.String()).Int("depth", depth).Int("edges", len(edges)).Int("children", len(children)).Msg("expanded")

	if cr.workers == 1 {
		for _, child := range children {
			cr.expand(ctx, child, depth+1)
		}
		return
	}

	var g errgroup.Group
	for _, child := range children {
		g.Go(func() error {
			cr.expand(ctx, child, depth+1)
			return nil
		})
	}
	_ = g.Wait()
}

// fetch holds a worker slot for the duration of one lookup.
func (cr *crawl) fetch(ctx context.Context, address graph.Address, depth int) ([]graph.Relation, bool) {
	if err := cr.sem.Acquire(ctx, 1); err != nil {
		return nil, false
	}
	defer cr.sem.Release(1)

	ctx, span := tracer.Start(ctx, "crawler.fetch",
		trace.WithAttributes(
			attribute.String("wallet", address.String()),
			attribute.Int("depth", depth),
		),
	)
	defer span.End()

	relations := cr.fetcher.FetchRelations(ctx, address)
	if ctx.Err() != nil {
		return nil, false
	}
	span.SetAttributes(attribute.Int("relations", len(relations)))
	return relations, true
}
