// Package deltasink provides a sink for the Arrow records the ingest
// pipeline writes. Real Delta Lake table creation and commit mechanics are
// out of scope here; this package only holds a trivial in-memory
// implementation of pipeline.TableSink, used by pipeline tests and wired by
// cmd/ingest.
package deltasink

import (
	"context"
	"fmt"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// MemorySink appends records to an in-memory per-table slice. It never
// writes Parquet or touches a real Delta log; it is the TableSink that
// internal/pipeline's tests and cmd/ingest both use.
type MemorySink struct {
	mu      sync.Mutex
	records map[string][]arrow.Record
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{records: make(map[string][]arrow.Record)}
}

// Append retains a reference to record under table. The caller retains
// ownership of record and may Release it after Append returns; MemorySink
// retains its own reference via Retain.
func (s *MemorySink) Append(ctx context.Context, table string, record arrow.Record) error {
	if record == nil {
		return fmt.Errorf("nil record for table %q", table)
	}
	record.Retain()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[table] = append(s.records[table], record)
	return nil
}

// Records returns the records appended to table so far, in append order.
func (s *MemorySink) Records(table string) []arrow.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]arrow.Record, len(s.records[table]))
	copy(out, s.records[table])
	return out
}

// RowCount returns the total number of rows appended to table.
func (s *MemorySink) RowCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, r := range s.records[table] {
		count += int(r.NumRows())
	}
	return count
}

// Close releases every retained record across all tables.
func (s *MemorySink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, recs := range s.records {
		for _, r := range recs {
			r.Release()
		}
	}
	s.records = make(map[string][]arrow.Record)
}
