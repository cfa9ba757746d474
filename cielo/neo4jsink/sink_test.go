package neo4jsink

import (
	"strings"
	"testing"
	"time"

	"github.com/Laperavee/Cielo-API/cielo/publish"
	"github.com/stretchr/testify/assert"
)

func TestEdgeParams(t *testing.T) {
	at := time.Date(2024, 11, 21, 14, 0, 0, 0, time.UTC)
	params := edgeParams(publish.GraphEdge{
		CrawlID:   "c1",
		Root:      "0xroot",
		Source:    "0xroot",
		Target:    "last",
		TotalIn:   1.5,
		TotalOut:  2,
		Overflow:  true,
		CrawledAt: at,
	})

	assert.Equal(t, "0xroot", params["source"])
	assert.Equal(t, "last", params["target"])
	assert.Equal(t, true, params["overflow"])
	assert.Equal(t, at.Unix(), params["crawledAt"])

	// every parameter is referenced by the query and the other way round
	for name := range params {
		assert.Contains(t, mergeEdgeQuery, "$"+name)
	}
	assert.Equal(t, len(params), strings.Count(mergeEdgeQuery, "= $")+strings.Count(mergeEdgeQuery, ": $"))
}
