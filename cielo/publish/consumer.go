package publish

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// EdgeHandler receives decoded edges one at a time, in arrival order.
type EdgeHandler func(ctx context.Context, edge GraphEdge) error

func NewConsumer(brokers []string) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to kafka")
	}
	return consumer, nil
}

func DecodeEdge(value []byte) (GraphEdge, error) {
	var edge GraphEdge
	if err := json.Unmarshal(value, &edge); err != nil {
		return GraphEdge{}, errors.Wrap(err, "decoding edge message")
	}
	if edge.Source == "" || edge.Target == "" {
		return GraphEdge{}, errors.New("edge message without source or target")
	}
	return edge, nil
}

// ConsumeEdges reads every partition of topic from offset and hands each edge to handle
// until ctx is done. Undecodable messages are logged and skipped. A handler error stops
// consumption and is returned.
func ConsumeEdges(ctx context.Context, consumer sarama.Consumer, topic string, offset int64, handle EdgeHandler, logger zerolog.Logger) error {
	partitions, err := consumer.Partitions(topic)
	if err != nil {
		return errors.Wrapf(err, "listing partitions of %s", topic)
	}

	ctx, cancel := context.WithCancel(ctx)
	messages := make(chan *sarama.ConsumerMessage)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for _, partition := range partitions {
		pc, err := consumer.ConsumePartition(topic, partition, offset)
		if err != nil {
			return errors.Wrapf(err, "consuming %s/%d", topic, partition)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer pc.Close()
			errs := pc.Errors()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					select {
					case messages <- msg:
					case <-ctx.Done():
						return
					}
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					logger.Error().Err(err).Str("topic", topic).Msg("partition consumer")
				}
			}
		}()
	}

	logger.Info().Str("topic", topic).Int("partitions", len(partitions)).Msg("consuming edges")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-messages:
			edge, err := DecodeEdge(msg.Value)
			if err != nil {
				logger.Warn().Err(err).Int32("partition", msg.Partition).Int64("offset", msg.Offset).Msg("skipping message")
				continue
			}
			if err := handle(ctx, edge); err != nil {
				return err
			}
		}
	}
}
