package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/deltasink"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/protoschema"
)

const orderSchema = `
syntax = "proto3";
package orders;
message Order {
    int32 id = 1;
    string customer = 2;
}
`

type fakeResolver struct {
	compiled *protoschema.CompiledSchema
	err      error
	calls    int
}

func (f *fakeResolver) SchemaOfTopic(ctx context.Context, topic, fullName string) (*protoschema.CompiledSchema, error) {
	f.calls++
	return f.compiled, f.err
}

func compileOrderSchema(t *testing.T) *protoschema.CompiledSchema {
	t.Helper()
	compiled, err := protoschema.NewCompiler().Compile(context.Background(),
		protoschema.SourceFile{Path: "order.proto", Content: orderSchema},
		nil,
		"orders.Order",
	)
	require.NoError(t, err)
	return compiled
}

func encodeOrder(t *testing.T, compiled *protoschema.CompiledSchema, id int32, customer string) []byte {
	t.Helper()
	_ = compiled
	// Hand-encode the wire bytes: field 1 varint, field 2 length-delimited.
	buf := []byte{0x08, byte(id)}
	buf = append(buf, 0x12, byte(len(customer)))
	buf = append(buf, []byte(customer)...)
	return buf
}

func TestHandleMessage_DecodesAndAppends(t *testing.T) {
	compiled := compileOrderSchema(t)
	resolver := &fakeResolver{compiled: compiled}
	sink := deltasink.NewMemorySink()
	defer sink.Close()

	p := New(resolver, sink, nil, nil, []TopicConfig{
		{Topic: "orders", FullName: "orders.Order", Table: "orders_table"},
	})

	data := encodeOrder(t, compiled, 7, "acme")
	err := p.HandleMessage(context.Background(), Message{Topic: "orders", Value: data})
	require.NoError(t, err)
	require.Equal(t, 1, resolver.calls)
	require.Equal(t, 1, sink.RowCount("orders_table"))
}

func TestHandleMessage_UnknownTopic(t *testing.T) {
	p := New(&fakeResolver{}, deltasink.NewMemorySink(), nil, nil, nil)
	err := p.HandleMessage(context.Background(), Message{Topic: "unconfigured"})
	require.Error(t, err)
}

func TestHandleMessage_DropsOnRegistryError(t *testing.T) {
	resolver := &fakeResolver{err: assertErr{"boom"}}
	sink := deltasink.NewMemorySink()
	defer sink.Close()

	p := New(resolver, sink, nil, nil, []TopicConfig{
		{Topic: "orders", FullName: "orders.Order", Table: "orders_table"},
	})

	err := p.HandleMessage(context.Background(), Message{Topic: "orders", Value: []byte{}})
	require.Error(t, err)
	require.Equal(t, 0, sink.RowCount("orders_table"))
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
