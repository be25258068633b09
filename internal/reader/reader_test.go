package reader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/parser"
	"github.com/tinytelemetry/tracestore/internal/query"
	"github.com/tinytelemetry/tracestore/internal/tablestore"
)

func TestPreCancelledContext(t *testing.T) {
	client := &fakeClient{pages: map[string]tablestore.Page{"": {}}}
	r := NewEventStoreReader(TableSource{Client: client}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs, err := r.WithinBound(scenarioBound(t)).ReadBackward(ctx, nil, 100)
	if !errors.Is(err, model.ErrCancelled) {
		t.Fatalf("err = %v, want ErrCancelled", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want the context cause in its chain", err)
	}
	if recs != nil {
		t.Errorf("got %d records on cancellation", len(recs))
	}
	if n := client.calls.Load(); n != 0 {
		t.Errorf("backend called %d times, want 0", n)
	}
	if r.State() != Cancelled {
		t.Errorf("state = %s, want cancelled", r.State())
	}

	// The reader is reusable after cancellation.
	if _, err := r.ReadBackward(context.Background(), nil, 1); err != nil {
		t.Fatalf("ReadBackward after cancel: %v", err)
	}
	if r.State() != Completed {
		t.Errorf("state = %s, want completed", r.State())
	}
}

func TestCancelDuringFetch(t *testing.T) {
	client := &fakeClient{block: make(chan struct{}), entered: make(chan struct{}, 1)}
	r := NewEventStoreReader(TableSource{Client: client}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.ReadBackward(ctx, nil, 10)
		done <- err
	}()
	<-client.entered
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, model.ErrCancelled) {
			t.Fatalf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not stop after cancel")
	}
}

func TestZeroMaxCountSkipsBackend(t *testing.T) {
	client := &fakeClient{err: errors.New("must not be called")}
	r := NewEventStoreReader(TableSource{Client: client}, nil)

	for _, max := range []int{0, -1} {
		recs, err := r.ReadBackward(context.Background(), nil, max)
		if err != nil {
			t.Fatalf("max=%d: %v", max, err)
		}
		if recs == nil || len(recs) != 0 {
			t.Errorf("max=%d: got %v, want empty slice", max, recs)
		}
	}
	if n := client.calls.Load(); n != 0 {
		t.Errorf("backend called %d times", n)
	}
}

func TestReaderBusy(t *testing.T) {
	client := &fakeClient{
		pages:   map[string]tablestore.Page{"": {}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	r := NewEventStoreReader(TableSource{Client: client}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := r.ReadBackward(context.Background(), nil, 10)
		done <- err
	}()
	<-client.entered
	if r.State() != Scanning {
		t.Errorf("state = %s, want scanning", r.State())
	}

	_, err := r.WithinBound(query.AllTime()).ReadForward(context.Background(), nil, 10)
	if !errors.Is(err, model.ErrReaderBusy) {
		t.Fatalf("concurrent scan err = %v, want ErrReaderBusy", err)
	}

	// A different reader on the same client is independent.
	client2 := &fakeClient{pages: map[string]tablestore.Page{"": {}}}
	if _, err := NewQueryStoreReader(TableSource{Client: client2}, nil).ReadBackward(context.Background(), nil, 1); err != nil {
		t.Fatalf("second reader: %v", err)
	}

	close(client.block)
	if err := <-done; err != nil {
		t.Fatalf("first scan: %v", err)
	}
}

func TestWithinBoundDoesNotMutateReader(t *testing.T) {
	r := NewEventStoreReader(TableSource{Client: &fakeClient{}}, nil)
	d := scenarioBound(t)
	v := r.WithinBound(d)
	if v.Bound() != d {
		t.Errorf("Bound() = %s, want %s", v.Bound(), d)
	}
	if r.Category() != model.CategoryOperational {
		t.Errorf("Category() = %s", r.Category())
	}
	if r.State() != Idle {
		t.Errorf("state = %s, want idle", r.State())
	}
}

func TestSortRecordsIsStable(t *testing.T) {
	recs := []model.TraceRecord{
		{Timestamp: t0, Type: parser.NodeUp, Source: "a"},
		{Timestamp: t0.Add(time.Second), Type: parser.NodeUp},
		{Timestamp: t0, Type: parser.NodeUp, Source: "b"},
	}
	sortRecords(recs, true)
	if !recs[0].Timestamp.Equal(t0.Add(time.Second)) || recs[1].Source != "a" || recs[2].Source != "b" {
		t.Errorf("backward sort = %+v", recs)
	}
}

func TestReleasable(t *testing.T) {
	at := func(secs ...int) []model.TraceRecord {
		var recs []model.TraceRecord
		for _, s := range secs {
			recs = append(recs, model.TraceRecord{Timestamp: t0.Add(time.Duration(s) * time.Second)})
		}
		return recs
	}
	tests := []struct {
		name     string
		sorted   []model.TraceRecord
		horizon  time.Time
		backward bool
		want     int
	}{
		{"forward up to horizon", at(1, 2, 3, 4), t0.Add(3 * time.Second), false, 3},
		{"backward down to horizon", at(9, 7, 5, 3), t0.Add(5 * time.Second), true, 3},
		{"forward past everything", at(1, 2), t0.Add(time.Hour), false, 2},
		{"zero horizon holds all", at(1, 2), time.Time{}, false, 0},
	}
	for _, tt := range tests {
		if got := releasable(tt.sorted, tt.horizon, tt.backward); got != tt.want {
			t.Errorf("%s: releasable = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	if c.PageSize != model.DefaultPageSize || c.Retry.Attempts != model.DefaultRetryAttempts {
		t.Errorf("defaults = %+v", c)
	}
	if c.Retry.InitialBackoff != model.DefaultInitialBackoff || c.Retry.MaxBackoff != model.DefaultMaxBackoff {
		t.Errorf("backoff defaults = %+v", c.Retry)
	}
}

func TestClosedReaderRejectsScans(t *testing.T) {
	r := NewEventStoreReader(TableSource{Client: &fakeClient{}}, nil)
	r.Close()
	if _, err := r.ReadBackward(context.Background(), nil, 1); !errors.Is(err, model.ErrReaderClosed) {
		t.Fatalf("err = %v, want ErrReaderClosed", err)
	}
}
