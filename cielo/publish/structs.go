package publish

import "time"

// GraphEdge is the message published on the edges topic, one per graph edge.
type GraphEdge struct {
	CrawlID   string    `json:"crawl_id" csv:"crawl_id"`
	Root      string    `json:"root" csv:"root"`
	Source    string    `json:"source" csv:"source"`
	Target    string    `json:"target" csv:"target"`
	TotalIn   float64   `json:"total_in" csv:"total_in"`
	TotalOut  float64   `json:"total_out" csv:"total_out"`
	Overflow  bool      `json:"overflow" csv:"overflow"`
	CrawledAt time.Time `json:"crawled_at" csv:"crawled_at"`
}

// GraphVertex is the message published on the vertices topic, one per graph node.
type GraphVertex struct {
	CrawlID  string `json:"crawl_id"`
	Root     string `json:"root"`
	Address  string `json:"address"`
	Overflow bool   `json:"overflow"`
}
