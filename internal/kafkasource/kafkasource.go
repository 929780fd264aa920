// Package kafkasource adapts github.com/IBM/sarama's consumer-group API to
// the ingest pipeline's MessageSource interface. Offset committing,
// rebalance handling and retry/backoff all stay inside this package; the
// pipeline never sees a partition, an offset, or a rebalance.
package kafkasource

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/pipeline"
)

// Config holds the consumer-group settings the source needs.
type Config struct {
	Brokers []string
	Topics  []string
	Group   string
}

// Source streams claimed messages from a sarama consumer group onto a
// channel, implementing pipeline.MessageSource.
type Source struct {
	cfg    Config
	client sarama.ConsumerGroup
	logger *slog.Logger
}

// New creates a Source and its underlying sarama consumer group.
func New(cfg Config, logger *slog.Logger) (*Source, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest

	client, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.Group, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("creating sarama consumer group: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Source{cfg: cfg, client: client, logger: logger}, nil
}

// Messages starts the consumer-group session loop and returns a channel of
// claimed messages. The channel closes once ctx is cancelled.
func (s *Source) Messages(ctx context.Context) (<-chan pipeline.Message, error) {
	out := make(chan pipeline.Message)
	handler := &groupHandler{out: out}

	go func() {
		defer close(out)
		for {
			if err := s.client.Consume(ctx, s.cfg.Topics, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.Error("consumer group session ended", slog.String("error", err.Error()))
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	go func() {
		for err := range s.client.Errors() {
			s.logger.Error("sarama consumer error", slog.String("error", err.Error()))
		}
	}()

	return out, nil
}

// Close shuts down the underlying consumer group.
func (s *Source) Close() error {
	return s.client.Close()
}

// groupHandler implements sarama.ConsumerGroupHandler, forwarding each
// claimed message onto out and marking it committed immediately; the
// pipeline's own success/failure is reported only via logs, matching a
// design that prioritizes throughput over per-message delivery guarantees.
type groupHandler struct {
	out chan<- pipeline.Message
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.out <- pipeline.Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value}
			sess.MarkMessage(msg, "")
		case <-sess.Context().Done():
			return nil
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*groupHandler)(nil)
