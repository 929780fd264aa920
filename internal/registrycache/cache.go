package registrycache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fpaschos/kafka-delta-proto-ingest/internal/cache"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/metrics"
	"github.com/fpaschos/kafka-delta-proto-ingest/internal/protoschema"
)

const primarySchemaPath = "schema.proto"

// Cache fetches raw schemas by registry id, resolves their transitive
// references, compiles the result, and memoizes both the raw-schema list
// and the compiled schema per id. At most one fetch (with its reference
// resolution) is ever outstanding for a given id; concurrent callers for the
// same id all observe its single result, and each then compiles the shared
// sources itself unless the compiled schema is already cached.
type Cache struct {
	fetcher  Fetcher
	compiler *protoschema.Compiler
	metrics  *metrics.Metrics

	group singleflight.Group

	rawMu sync.Mutex
	raw   map[uint32][]protoschema.SourceFile

	compiled *cache.CompiledSchemaCache
}

// New creates a Cache. m may be nil; metrics recording is skipped when it is.
func New(fetcher Fetcher, capacity int, ttl time.Duration, m *metrics.Metrics) *Cache {
	return &Cache{
		fetcher:  fetcher,
		compiler: protoschema.NewCompiler(),
		metrics:  m,
		raw:      make(map[uint32][]protoschema.SourceFile),
		compiled: cache.NewCompiledSchemaCache(capacity, ttl),
	}
}

// SchemaOfTopic resolves topic to its current schema id via TopicNameStrategy
// (<topic>-value) and returns its compiled schema.
func (c *Cache) SchemaOfTopic(ctx context.Context, topic string, fullName string) (*protoschema.CompiledSchema, error) {
	subject := topic + "-value"
	root, err := c.fetcher.GetBySubject(ctx, subject)
	if err != nil {
		return nil, &RegistryFetchError{Cause: err}
	}
	return c.SchemaOf(ctx, root.ID, fullName)
}

// SchemaOf returns the compiled schema for a known registry id, fetching and
// resolving it (exactly once across any concurrent callers) if it has not
// been resolved before.
func (c *Cache) SchemaOf(ctx context.Context, id uint32, fullName string) (*protoschema.CompiledSchema, error) {
	if compiled, ok := c.compiled.Get(id); ok {
		c.recordCacheAccess(true)
		return compiled.(*protoschema.CompiledSchema), nil
	}
	c.recordCacheAccess(false)

	if sources, ok := c.rawSchemasOf(id); ok {
		return c.compileCached(ctx, id, sources, fullName)
	}

	key := strconv.FormatUint(uint64(id), 10)
	leader := false
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		leader = true
		start := time.Now()
		sources, err := c.fetchAndResolve(ctx, id)
		if err != nil {
			c.recordFetch("error", start)
			return nil, err
		}
		c.recordFetch("ok", start)
		return sources, nil
	})
	if shared && !leader && c.metrics != nil {
		c.metrics.RecordCoalescedWait(key)
	}
	if err != nil {
		return nil, err
	}

	sources := v.([]protoschema.SourceFile)
	c.storeRawSchemas(id, sources)
	return c.compileCached(ctx, id, sources, fullName)
}

// fetchAndResolve fetches the registered schema for id and resolves its
// transitive references in post-order (dependencies before dependents,
// primary schema last). It is always called through singleflight.Group.Do,
// so at most one call per id is ever in flight.
func (c *Cache) fetchAndResolve(ctx context.Context, id uint32) ([]protoschema.SourceFile, error) {
	root, err := c.fetcher.GetByID(ctx, id)
	if err != nil {
		return nil, &RegistryFetchError{Cause: err}
	}
	return c.resolveReferences(ctx, root)
}

// resolveReferences walks root's reference graph depth-first, recursing
// into each reference before appending it, so the returned slice always
// lists dependencies ahead of the schema that depends on them. root itself
// is appended last under the well-known primary path.
func (c *Cache) resolveReferences(ctx context.Context, root RegisteredSchema) ([]protoschema.SourceFile, error) {
	var out []protoschema.SourceFile
	seen := make(map[string]bool)

	var visit func(schema RegisteredSchema) error
	visit = func(schema RegisteredSchema) error {
		for _, ref := range schema.References {
			if seen[ref.Name] {
				continue
			}
			seen[ref.Name] = true

			refSchema, err := c.fetcher.GetReferenced(ctx, ref)
			if err != nil {
				return &RegistryFetchError{Cause: err}
			}
			if err := visit(refSchema); err != nil {
				return err
			}
			out = append(out, protoschema.SourceFile{Path: ref.Name, Content: refSchema.Schema})
		}
		return nil
	}

	if err := visit(root); err != nil {
		return nil, err
	}
	out = append(out, protoschema.SourceFile{Path: primarySchemaPath, Content: root.Schema})
	return out, nil
}

func (c *Cache) compileCached(ctx context.Context, id uint32, sources []protoschema.SourceFile, fullName string) (*protoschema.CompiledSchema, error) {
	primary := sources[len(sources)-1]
	refs := sources[:len(sources)-1]

	compiled, err := c.compiler.Compile(ctx, primary, refs, fullName)
	if err != nil {
		return nil, err
	}
	c.compiled.Set(id, compiled)
	if c.metrics != nil {
		c.metrics.UpdateCompileCacheSize(float64(c.compiled.Size()))
	}
	return compiled, nil
}

func (c *Cache) rawSchemasOf(id uint32) ([]protoschema.SourceFile, bool) {
	c.rawMu.Lock()
	defer c.rawMu.Unlock()
	sources, ok := c.raw[id]
	return sources, ok
}

func (c *Cache) storeRawSchemas(id uint32, sources []protoschema.SourceFile) {
	c.rawMu.Lock()
	defer c.rawMu.Unlock()
	if _, exists := c.raw[id]; !exists {
		c.raw[id] = sources
	}
}

func (c *Cache) recordFetch(result string, start time.Time) {
	if c.metrics != nil {
		c.metrics.RecordRegistryFetch(result, time.Since(start))
	}
}

func (c *Cache) recordCacheAccess(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCompileCacheAccess(hit)
	}
}
