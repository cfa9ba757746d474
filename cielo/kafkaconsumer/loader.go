package main

import (
	"context"

	"github.com/Laperavee/Cielo-API/cielo/publish"
	"github.com/rs/zerolog"
)

type edgeWriter interface {
	WriteEdge(ctx context.Context, edge publish.GraphEdge) error
}

// loader writes each consumed edge to w. A failed write is logged and the edge dropped so
// that one bad record does not stall the topic.
func loader(w edgeWriter, logger zerolog.Logger) publish.EdgeHandler {
	var written int
	return func(ctx context.Context, edge publish.GraphEdge) error {
		if err := w.WriteEdge(ctx, edge); err != nil {
			logger.Error().Err(err).Str("crawl_id", edge.CrawlID).Msg("dropping edge")
			return nil
		}
		written++
		if written%1000 == 0 {
			logger.Info().Int("edges", written).Msg("edges loaded")
		}
		return nil
	}
}
