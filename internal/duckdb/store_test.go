package duckdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore(\"\") failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertTestEntities(t *testing.T, store *Store, table string, entities []model.Entity) {
	t.Helper()
	if err := store.InsertEntities(context.Background(), table, entities); err != nil {
		t.Fatalf("InsertEntities failed: %v", err)
	}
}

func seqEntities(partition string, t0 time.Time, n int) []model.Entity {
	out := make([]model.Entity, n)
	for i := range out {
		out[i] = model.Entity{
			PartitionKey: partition,
			RowKey:       fmt.Sprintf("row-%04d", i),
			Timestamp:    t0.Add(time.Duration(i) * time.Second),
			EventType:    "NodeOpening",
			Properties:   map[string]string{"i": fmt.Sprint(i)},
		}
	}
	return out
}

func TestInsertAndCount(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	insertTestEntities(t, store, "acct/events", seqEntities("dep1", t0, 3))
	// Same keys again replace rather than duplicate.
	insertTestEntities(t, store, "acct/events", seqEntities("dep1", t0, 3))
	insertTestEntities(t, store, "acct/queries", seqEntities("dep1", t0, 2))

	n, err := store.CountEntities(context.Background(), "acct/events")
	if err != nil {
		t.Fatalf("CountEntities: %v", err)
	}
	if n != 3 {
		t.Errorf("CountEntities = %d, want 3", n)
	}

	counts, err := store.TableRowCounts(context.Background())
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	if counts["acct/events"] != 3 || counts["acct/queries"] != 2 {
		t.Errorf("TableRowCounts = %v", counts)
	}
}

func TestQueryEntitiesPaginatesInBothDirections(t *testing.T) {
	store := newTestStore(t)
	t0 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	insertTestEntities(t, store, "tbl", seqEntities("dep1", t0, 10))
	insertTestEntities(t, store, "tbl", seqEntities("dep2", t0, 4))

	for _, desc := range []bool{false, true} {
		q := model.EntityQuery{
			Table:        "tbl",
			PartitionKey: "dep1",
			From:         t0.Add(2 * time.Second),
			To:           t0.Add(8 * time.Second),
			Descending:   desc,
			Top:          3,
		}

		var got []model.Entity
		pages := 0
		for {
			page, err := store.QueryEntities(context.Background(), q)
			if err != nil {
				t.Fatalf("QueryEntities: %v", err)
			}
			pages++
			got = append(got, page.Entities...)
			if page.Next == nil {
				break
			}
			q.After = page.Next
		}

		if len(got) != 7 {
			t.Fatalf("desc=%v: got %d entities, want 7", desc, len(got))
		}
		if pages != 3 {
			t.Errorf("desc=%v: pages = %d, want 3", desc, pages)
		}
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1].Timestamp, got[i].Timestamp
			if desc && cur.After(prev) || !desc && cur.Before(prev) {
				t.Fatalf("desc=%v: out of order at %d: %s then %s", desc, i, prev, cur)
			}
		}
		first := got[0]
		if desc && !first.Timestamp.Equal(t0.Add(8*time.Second)) || !desc && !first.Timestamp.Equal(t0.Add(2*time.Second)) {
			t.Errorf("desc=%v: first timestamp = %s", desc, first.Timestamp)
		}
		if first.Properties["i"] == "" || first.PartitionKey != "dep1" {
			t.Errorf("desc=%v: first entity = %+v", desc, first)
		}
	}
}

func TestQueryEntitiesKeepsNanoseconds(t *testing.T) {
	store := newTestStore(t)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.UTC)
	insertTestEntities(t, store, "tbl", []model.Entity{{PartitionKey: "p", RowKey: "r", Timestamp: ts, EventType: "NodeUp"}})

	page, err := store.QueryEntities(context.Background(), model.EntityQuery{Table: "tbl"})
	if err != nil {
		t.Fatalf("QueryEntities: %v", err)
	}
	if len(page.Entities) != 1 || !page.Entities[0].Timestamp.Equal(ts) {
		t.Fatalf("entities = %+v, want one at %s", page.Entities, ts)
	}
}

func TestDeleteBeforeAndRetention(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	insertTestEntities(t, store, "tbl", []model.Entity{
		{PartitionKey: "p", RowKey: "old", Timestamp: now.Add(-40 * 24 * time.Hour), EventType: "NodeUp"},
		{PartitionKey: "p", RowKey: "new", Timestamp: now.Add(-time.Hour), EventType: "NodeUp"},
	})

	if rc := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 0}); rc != nil {
		t.Fatal("retention 0 should disable the cleaner")
	}

	rc := NewRetentionCleaner(store, RetentionConfig{RetentionDays: 30})
	if rc == nil {
		t.Fatal("expected a cleaner")
	}
	rc.Stop()
	rc.Stop()

	n, err := store.CountEntities(context.Background(), "tbl")
	if err != nil {
		t.Fatalf("CountEntities: %v", err)
	}
	if n != 1 {
		t.Errorf("after retention count = %d, want 1", n)
	}
}
