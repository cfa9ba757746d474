package publish

import (
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/Laperavee/Cielo-API/cielo/graph"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Producer ships crawled graphs to Kafka: edges keyed by source wallet, vertices keyed by
// address.
type Producer struct {
	producer      sarama.SyncProducer
	edgesTopic    string
	verticesTopic string
	logger        zerolog.Logger
}

func NewProducer(brokers []string, edgesTopic, verticesTopic string, logger zerolog.Logger) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	p, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to kafka")
	}

	return NewProducerWith(p, edgesTopic, verticesTopic, logger), nil
}

func NewProducerWith(p sarama.SyncProducer, edgesTopic, verticesTopic string, logger zerolog.Logger) *Producer {
	return &Producer{
		producer:      p,
		edgesTopic:    edgesTopic,
		verticesTopic: verticesTopic,
		logger:        logger.With().Str("component", "publish").Logger(),
	}
}

// Messages converts g into the edge and vertex messages of one crawl.
func Messages(crawlID string, g *graph.Graph, crawledAt time.Time) ([]GraphEdge, []GraphVertex) {
	root := g.Root().String()

	edges := make([]GraphEdge, 0, g.EdgeCount())
	for _, e := range g.Edges() {
		edges = append(edges, GraphEdge{
			CrawlID:   crawlID,
			Root:      root,
			Source:    e.Source.String(),
			Target:    e.Target.String(),
			TotalIn:   e.TotalIn,
			TotalOut:  e.TotalOut,
			Overflow:  e.IsOverflow(),
			CrawledAt: crawledAt.UTC(),
		})
	}

	nodes := g.Nodes()
	vertices := make([]GraphVertex, 0, len(nodes))
	for _, n := range nodes {
		vertices = append(vertices, GraphVertex{
			CrawlID:  crawlID,
			Root:     root,
			Address:  n.String(),
			Overflow: n == graph.OverflowAddress,
		})
	}

	return edges, vertices
}

func (p *Producer) PublishGraph(crawlID string, g *graph.Graph, crawledAt time.Time) error {
	edges, vertices := Messages(crawlID, g, crawledAt)

	for _, edge := range edges {
		if err := p.send(p.edgesTopic, edge.Source, edge); err != nil {
			return err
		}
	}
	for _, vertex := range vertices {
		if err := p.send(p.verticesTopic, vertex.Address, vertex); err != nil {
			return err
		}
	}

	p.logger.Info().Str("crawl_id", crawlID).Int("edges", len(edges)).Int("vertices", len(vertices)).Msg("graph published")
	return nil
}

func (p *Producer) send(topic, key string, v interface{}) error {
	value, err := json.Marshal(v)
	if err != nil {
		return err
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return errors.Wrapf(err, "publishing to %s", topic)
}

func (p *Producer) Close() error {
	return errors.Wrap(p.producer.Close(), "closing kafka producer")
}
