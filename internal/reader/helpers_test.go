package reader

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/parser"
	"github.com/tinytelemetry/tracestore/internal/query"
	"github.com/tinytelemetry/tracestore/internal/tablestore"
	"github.com/tinytelemetry/tracestore/internal/tracefile"
)

var t0 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// recordingLogger counts and keeps messages per level.
type recordingLogger struct {
	mu    sync.Mutex
	warns []string
	errs  []string
}

func (l *recordingLogger) Infof(string, ...any) {}

func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errs = append(l.errs, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) warnCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.warns)
}

// scenario returns 50 NodeOpening records before t0 followed by 510 records
// inside [t0, t0+51s]: 500 NodeOpening and 10 NodeUp.
func scenario() []model.TraceRecord {
	var recs []model.TraceRecord
	for i := 0; i < 50; i++ {
		recs = append(recs, model.TraceRecord{
			Timestamp:  t0.Add(-time.Duration(50-i) * time.Second),
			Type:       parser.NodeOpening,
			Attributes: map[string]string{"NodeName": fmt.Sprintf("early-%d", i)},
		})
	}
	for i := 0; i < 510; i++ {
		typ := parser.NodeOpening
		if i%51 == 0 {
			typ = parser.NodeUp
		}
		recs = append(recs, model.TraceRecord{
			Timestamp:  t0.Add(time.Duration(i) * 100 * time.Millisecond),
			Type:       typ,
			Attributes: map[string]string{"NodeName": fmt.Sprintf("node-%d", i)},
		})
	}
	return recs
}

func scenarioBound(t *testing.T) query.Duration {
	t.Helper()
	d, err := query.NewDuration(t0, t0.Add(51*time.Second))
	if err != nil {
		t.Fatalf("NewDuration: %v", err)
	}
	return d
}

func writeLocal(t *testing.T, root, subPath string, recs []model.TraceRecord, conf tracefile.WriterConfig) {
	t.Helper()
	w, err := tracefile.NewWriter(filepath.Join(root, subPath), conf)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, r := range recs {
		if err := w.Append(r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func assertOrdered(t *testing.T, recs []model.TraceRecord, backward bool) {
	t.Helper()
	for i := 1; i < len(recs); i++ {
		prev, cur := recs[i-1].Timestamp, recs[i].Timestamp
		if backward && cur.After(prev) || !backward && cur.Before(prev) {
			t.Fatalf("record %d out of order: %s then %s (backward=%v)", i, prev, cur, backward)
		}
	}
}

// fakeClient serves canned pages or errors and records each query.
type fakeClient struct {
	mu      sync.Mutex
	queries []tablestore.Query
	pages   map[string]tablestore.Page // keyed by continuation token
	err     error
	calls   atomic.Int32
	block   chan struct{}
	entered chan struct{}
}

func (c *fakeClient) QueryEntities(ctx context.Context, q tablestore.Query) (tablestore.Page, error) {
	c.calls.Add(1)
	c.mu.Lock()
	c.queries = append(c.queries, q)
	c.mu.Unlock()
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return tablestore.Page{}, ctx.Err()
		}
	}
	if c.err != nil {
		return tablestore.Page{}, c.err
	}
	return c.pages[q.Continuation], nil
}

func (c *fakeClient) InsertEntities(context.Context, string, []model.Entity) error {
	return nil
}

func entityJSON(t *testing.T, typ model.RecordType, ts time.Time, props map[string]string) []byte {
	t.Helper()
	b, err := tablestore.MarshalEntity(model.Entity{
		PartitionKey: "dep",
		RowKey:       ts.Format(time.RFC3339Nano),
		Timestamp:    ts,
		EventType:    string(typ),
		Properties:   props,
	})
	if err != nil {
		t.Fatalf("MarshalEntity: %v", err)
	}
	return b
}

func fastRetry() Config {
	return Config{Retry: RetryPolicy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}}
}
