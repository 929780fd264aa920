// Package pipeline turns one wire payload on a topic into one Arrow record,
// the seam the out-of-scope Kafka consumer loop and Delta writer attach to.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/metrics"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/protoschema"
)

// Message is one record pulled off the source topic. Partition, offset and
// commit bookkeeping live entirely in the MessageSource adapter.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
}

// MessageSource feeds messages into the pipeline. internal/kafkasource is
// the sarama-backed implementation; offset committing and rebalancing never
// surface through this interface.
type MessageSource interface {
	Messages(ctx context.Context) (<-chan Message, error)
}

// TableSink receives one Arrow record per decoded message. Delta-table
// commit mechanics live entirely in the concrete implementation.
type TableSink interface {
	Append(ctx context.Context, table string, record arrow.Record) error
}

// SchemaResolver is the subset of *registrycache.Cache the pipeline depends
// on, so pipeline tests can fake it directly.
type SchemaResolver interface {
	SchemaOfTopic(ctx context.Context, topic, fullName string) (*protoschema.CompiledSchema, error)
}

// TopicConfig binds a topic to the message type the registry resolves for
// it and the Delta table it is written to.
type TopicConfig struct {
	Topic    string
	FullName string
	Table    string
}

// Pipeline wires a SchemaResolver, a Message Decoder and a TableSink
// together. It never commits offsets, writes Parquet, or speaks the
// registry's wire protocol itself.
type Pipeline struct {
	resolver SchemaResolver
	sink     TableSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	mem      memory.Allocator
	topics   map[string]TopicConfig
}

// New creates a Pipeline. m may be nil, in which case metrics are skipped;
// a nil logger is replaced by slog.Default().
func New(resolver SchemaResolver, sink TableSink, m *metrics.Metrics, logger *slog.Logger, topics []TopicConfig) *Pipeline {
	byTopic := make(map[string]TopicConfig, len(topics))
	for _, t := range topics {
		byTopic[t.Topic] = t
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		resolver: resolver,
		sink:     sink,
		metrics:  m,
		logger:   logger,
		mem:      memory.NewGoAllocator(),
		topics:   byTopic,
	}
}

// Run drains source until ctx is cancelled or the message channel closes,
// logging and dropping any message that fails to decode or write rather
// than stopping the whole pipeline.
func (p *Pipeline) Run(ctx context.Context, source MessageSource) error {
	msgs, err := source.Messages(ctx)
	if err != nil {
		return fmt.Errorf("starting message source: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := p.HandleMessage(ctx, msg); err != nil {
				p.logger.Error("dropping message",
					slog.String("topic", msg.Topic),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// HandleMessage resolves msg's topic to a compiled schema, decodes its
// payload to JSON, projects it onto an Arrow record and appends it to the
// configured sink.
func (p *Pipeline) HandleMessage(ctx context.Context, msg Message) error {
	cfg, ok := p.topics[msg.Topic]
	if !ok {
		return fmt.Errorf("no topic configuration for %q", msg.Topic)
	}
	p.recordConsumed(msg.Topic)

	compiled, err := p.resolver.SchemaOfTopic(ctx, cfg.Topic, cfg.FullName)
	if err != nil {
		p.recordDropped(msg.Topic, "registry_fetch")
		return fmt.Errorf("resolving schema for topic %q: %w", msg.Topic, err)
	}

	decodeStart := time.Now()
	doc, err := compiled.DecodeJSON(msg.Value)
	p.recordDecode(msg.Topic, time.Since(decodeStart))
	if err != nil {
		p.recordDropped(msg.Topic, "decode")
		return fmt.Errorf("decoding message on topic %q: %w", msg.Topic, err)
	}

	schema, err := compiled.ArrowSchema()
	if err != nil {
		p.recordDropped(msg.Topic, "project")
		return fmt.Errorf("projecting arrow schema for topic %q: %w", msg.Topic, err)
	}

	record, err := p.toRecord(schema, doc)
	if err != nil {
		p.recordDropped(msg.Topic, "record")
		return fmt.Errorf("building arrow record for topic %q: %w", msg.Topic, err)
	}
	defer record.Release()

	writeStart := time.Now()
	err = p.sink.Append(ctx, cfg.Table, record)
	if p.metrics != nil {
		p.metrics.RecordWrite(cfg.Table, int(record.NumRows()), time.Since(writeStart))
	}
	if err != nil {
		p.recordDropped(msg.Topic, "sink")
		return fmt.Errorf("appending record to table %q: %w", cfg.Table, err)
	}

	p.recordIngested(msg.Topic)
	return nil
}

// toRecord renders doc as a single-row Arrow record matching schema, via
// Arrow's JSON record reader rather than a hand-rolled builder walk.
func (p *Pipeline) toRecord(schema *arrow.Schema, doc map[string]any) (arrow.Record, error) {
	line, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshalling decoded message: %w", err)
	}
	record, _, err := array.RecordFromJSON(p.mem, schema, bytes.NewReader(line), array.WithMultipleDocs())
	return record, err
}

func (p *Pipeline) recordConsumed(topic string) {
	if p.metrics != nil {
		p.metrics.RecordConsumed(topic)
	}
}

func (p *Pipeline) recordIngested(topic string) {
	if p.metrics != nil {
		p.metrics.RecordIngested(topic)
	}
}

func (p *Pipeline) recordDropped(topic, reason string) {
	if p.metrics != nil {
		p.metrics.RecordDropped(topic, reason)
	}
}

func (p *Pipeline) recordDecode(topic string, d time.Duration) {
	if p.metrics != nil {
		p.metrics.RecordDecode(topic, d)
	}
}
