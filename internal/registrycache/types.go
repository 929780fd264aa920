// Package registrycache resolves a Kafka topic (or a registry schema id) to
// a compiled Protobuf type context, fetching raw schemas and their
// transitive references through an injected Fetcher, memoizing both the
// raw-schema lists and the compiled results, and coalescing concurrent
// fetches for the same id into one outstanding call.
package registrycache

import "context"

// Reference is one entry in a RegisteredSchema's reference list: the import
// path other schemas in the set use to reference it (matching
// riferrei-srclient's Reference shape), plus the subject/version the
// registry resolves it from.
type Reference struct {
	Name    string
	Subject string
	Version int
}

// RegisteredSchema is a single raw schema as returned by the registry: its
// id (when known), its raw .proto text, and an ordered list of references
// it imports.
type RegisteredSchema struct {
	ID         uint32
	Schema     string
	References []Reference
}

// Fetcher is the sole wire-level boundary of the registry cache. It never
// appears as HTTP or any other transport detail here; cmd/ingest wires a
// concrete implementation (internal/srhttp) against it.
type Fetcher interface {
	// GetBySubject resolves a subject (derived from a topic via
	// TopicNameStrategy) to its current registered schema.
	GetBySubject(ctx context.Context, subject string) (RegisteredSchema, error)

	// GetByID fetches the registered schema for a known registry id
	// directly, without going through a subject lookup.
	GetByID(ctx context.Context, id uint32) (RegisteredSchema, error)

	// GetReferenced resolves one Reference to the schema it names.
	GetReferenced(ctx context.Context, ref Reference) (RegisteredSchema, error)
}
