package registrycache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const simpleSchema = `
syntax = "proto3";
package example;
message Person {
    int32 id = 1;
    string name = 2;
}
`

const sharedSchema = `
syntax = "proto3";
package example;
message Contact {
    string address = 1;
}
`

const personWithRefSchema = `
syntax = "proto3";
package example;
import "shared.proto";
message Person {
    int32 id = 1;
    string name = 2;
    Contact contact = 3;
}
`

// fakeFetcher is a test double for Fetcher that counts invocations per
// method and can simulate fetch latency, so tests can assert on the
// single-outstanding-fetch-per-id property.
type fakeFetcher struct {
	mu sync.Mutex

	bySubject  map[string]RegisteredSchema
	byID       map[uint32]RegisteredSchema
	referenced map[string]RegisteredSchema

	delay time.Duration

	bySubjectCalls  int32
	byIDCalls       int32
	referencedCalls int32
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bySubject:  make(map[string]RegisteredSchema),
		byID:       make(map[uint32]RegisteredSchema),
		referenced: make(map[string]RegisteredSchema),
	}
}

func (f *fakeFetcher) GetBySubject(ctx context.Context, subject string) (RegisteredSchema, error) {
	atomic.AddInt32(&f.bySubjectCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.bySubject[subject]
	if !ok {
		return RegisteredSchema{}, fmt.Errorf("no schema registered for subject %s", subject)
	}
	return s, nil
}

func (f *fakeFetcher) GetByID(ctx context.Context, id uint32) (RegisteredSchema, error) {
	atomic.AddInt32(&f.byIDCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[id]
	if !ok {
		return RegisteredSchema{}, fmt.Errorf("no schema registered for id %d", id)
	}
	return s, nil
}

func (f *fakeFetcher) GetReferenced(ctx context.Context, ref Reference) (RegisteredSchema, error) {
	atomic.AddInt32(&f.referencedCalls, 1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.referenced[ref.Name]
	if !ok {
		return RegisteredSchema{}, fmt.Errorf("no schema registered for reference %s", ref.Name)
	}
	return s, nil
}

func TestSchemaOf_Simple(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.byID[42] = RegisteredSchema{ID: 42, Schema: simpleSchema}

	c := New(fetcher, 16, time.Minute, nil)
	compiled, err := c.SchemaOf(context.Background(), 42, "example.Person")
	require.NoError(t, err)
	require.Equal(t, "example.Person", compiled.FullName())
	require.Equal(t, int32(1), fetcher.byIDCalls)
}

func TestSchemaOf_ResolvesReferencesPostOrder(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.byID[7] = RegisteredSchema{
		ID:     7,
		Schema: personWithRefSchema,
		References: []Reference{
			{Name: "shared.proto", Subject: "shared-value", Version: 1},
		},
	}
	fetcher.referenced["shared.proto"] = RegisteredSchema{Schema: sharedSchema}

	c := New(fetcher, 16, time.Minute, nil)
	compiled, err := c.SchemaOf(context.Background(), 7, "example.Person")
	require.NoError(t, err)
	require.Equal(t, "example.Person", compiled.FullName())
	require.Equal(t, int32(1), fetcher.referencedCalls)

	sources, ok := c.rawSchemasOf(7)
	require.True(t, ok)
	require.Len(t, sources, 2)
	require.Equal(t, "shared.proto", sources[0].Path)
	require.Equal(t, primarySchemaPath, sources[1].Path)
}

func TestSchemaOf_MemoizesCompiledSchema(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.byID[42] = RegisteredSchema{ID: 42, Schema: simpleSchema}

	c := New(fetcher, 16, time.Minute, nil)
	_, err := c.SchemaOf(context.Background(), 42, "example.Person")
	require.NoError(t, err)

	_, err = c.SchemaOf(context.Background(), 42, "example.Person")
	require.NoError(t, err)

	require.Equal(t, int32(1), fetcher.byIDCalls, "second call should be served from the compiled-schema cache")
}

func TestSchemaOf_ConcurrentCallsCoalesceToOneFetch(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.delay = 50 * time.Millisecond
	fetcher.byID[42] = RegisteredSchema{ID: 42, Schema: simpleSchema}

	c := New(fetcher, 16, time.Minute, nil)

	const callers = 100
	var wg sync.WaitGroup
	results := make([]*struct {
		FullName string
		Err      error
	}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			compiled, err := c.SchemaOf(context.Background(), 42, "example.Person")
			r := &struct {
				FullName string
				Err      error
			}{Err: err}
			if err == nil {
				r.FullName = compiled.FullName()
			}
			results[idx] = r
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), fetcher.byIDCalls, "expected exactly one underlying fetch for 100 concurrent callers")
	for _, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, "example.Person", r.FullName)
	}
}

func TestSchemaOfTopic_UsesTopicNameStrategy(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.bySubject["orders-value"] = RegisteredSchema{ID: 42, Schema: simpleSchema}
	fetcher.byID[42] = RegisteredSchema{ID: 42, Schema: simpleSchema}

	c := New(fetcher, 16, time.Minute, nil)
	compiled, err := c.SchemaOfTopic(context.Background(), "orders", "example.Person")
	require.NoError(t, err)
	require.Equal(t, "example.Person", compiled.FullName())
	require.Equal(t, int32(1), fetcher.bySubjectCalls)
}

func TestSchemaOf_PropagatesFetchError(t *testing.T) {
	fetcher := newFakeFetcher()
	c := New(fetcher, 16, time.Minute, nil)

	_, err := c.SchemaOf(context.Background(), 99, "example.Person")
	require.Error(t, err)
	var fetchErr *RegistryFetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestSchemaOf_ConcurrentCallersAllSeeFetchError_AndRetryOnNextCall(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.delay = 50 * time.Millisecond
	// id 99 is never registered, so every fetch fails.

	c := New(fetcher, 16, time.Minute, nil)

	const callers = 20
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, err := c.SchemaOf(context.Background(), 99, "example.Person")
			errs[idx] = err
		}(i)
	}
	wg.Wait()

	require.Equal(t, int32(1), fetcher.byIDCalls, "expected exactly one underlying fetch for the failing batch")
	for _, err := range errs {
		require.Error(t, err)
		var fetchErr *RegistryFetchError
		require.ErrorAs(t, err, &fetchErr)
	}

	// A failed fetch is not memoized anywhere (neither the compiled-schema
	// cache nor the raw-sources map), so a later call retries the fetcher
	// rather than replaying the stale error.
	_, err := c.SchemaOf(context.Background(), 99, "example.Person")
	require.Error(t, err)
	require.Equal(t, int32(2), fetcher.byIDCalls, "expected a follow-up call to re-invoke the fetcher")
}
