package neo4jsink

import (
	"context"

	"github.com/Laperavee/Cielo-API/cielo/publish"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const mergeEdgeQuery = `
	MERGE (source:Account {id: $source})
	MERGE (target:Account {id: $target})
	SET target.overflow = $overflow
	MERGE (source)-[flow:FLOWS_TO {crawl_id: $crawlID}]->(target)
	SET flow.total_in = $totalIn,
		flow.total_out = $totalOut,
		flow.root = $root,
		flow.crawled_at = $crawledAt
`

// Sink writes graph edges into Neo4j as (:Account)-[:FLOWS_TO]->(:Account).
type Sink struct {
	driver   neo4j.DriverWithContext
	database string
	logger   zerolog.Logger
}

func New(ctx context.Context, uri, user, password, database string, logger zerolog.Logger) (*Sink, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, errors.Wrap(err, "creating neo4j driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, errors.Wrapf(err, "connecting to %s", uri)
	}

	return &Sink{
		driver:   driver,
		database: database,
		logger:   logger.With().Str("component", "neo4j").Logger(),
	}, nil
}

func edgeParams(edge publish.GraphEdge) map[string]interface{} {
	return map[string]interface{}{
		"crawlID":   edge.CrawlID,
		"root":      edge.Root,
		"source":    edge.Source,
		"target":    edge.Target,
		"totalIn":   edge.TotalIn,
		"totalOut":  edge.TotalOut,
		"overflow":  edge.Overflow,
		"crawledAt": edge.CrawledAt.Unix(),
	}
}

func (s *Sink) WriteEdge(ctx context.Context, edge publish.GraphEdge) error {
	params := edgeParams(edge)
	_, err := neo4j.ExecuteQuery(ctx, s.driver, mergeEdgeQuery, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(s.database),
		neo4j.ExecuteQueryWithWritersRouting(),
	)
	if err != nil {
		return errors.Wrapf(err, "inserting edge %s -> %s", edge.Source, edge.Target)
	}
	return nil
}

func (s *Sink) WriteEdges(ctx context.Context, edges []publish.GraphEdge) error {
	for _, edge := range edges {
		if err := s.WriteEdge(ctx, edge); err != nil {
			return err
		}
	}
	s.logger.Debug().Int("edges", len(edges)).Msg("edges written")
	return nil
}

func (s *Sink) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}
