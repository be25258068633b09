package duckdb

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
)

const maxPageSize = 5000

// InsertEntities upserts entities into table. Rows are keyed by
// (table, partition, row key).
func (s *Store) InsertEntities(ctx context.Context, table string, entities []model.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin insert: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO entities
			(table_name, partition_key, row_key, event_ts_ns, event_type, properties)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("duckdb: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		props := e.Properties
		if props == nil {
			props = map[string]string{}
		}
		encoded, err := json.Marshal(props)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("duckdb: encode properties: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, table, e.PartitionKey, e.RowKey, e.Timestamp.UnixNano(), e.EventType, string(encoded)); err != nil {
			tx.Rollback()
			return fmt.Errorf("duckdb: insert entity %s/%s: %w", e.PartitionKey, e.RowKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit insert: %w", err)
	}
	return nil
}

// QueryEntities returns one page of q. Rows are ordered by event time then
// row key in the requested direction.
func (s *Store) QueryEntities(ctx context.Context, q model.EntityQuery) (model.EntityPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	top := q.Top
	if top <= 0 || top > maxPageSize {
		top = maxPageSize
	}
	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if !q.From.IsZero() {
		from = q.From.UnixNano()
	}
	if !q.To.IsZero() {
		to = q.To.UnixNano()
	}

	var where strings.Builder
	args := []interface{}{q.Table, from, to}
	where.WriteString("table_name = ? AND event_ts_ns >= ? AND event_ts_ns <= ?")
	if q.PartitionKey != "" {
		where.WriteString(" AND partition_key = ?")
		args = append(args, q.PartitionKey)
	}

	order, cmp := "ASC", ">"
	if q.Descending {
		order, cmp = "DESC", "<"
	}
	if q.After != nil {
		fmt.Fprintf(&where, " AND (event_ts_ns %s ? OR (event_ts_ns = ? AND row_key %s ?))", cmp, cmp)
		args = append(args, q.After.TimestampNanos, q.After.TimestampNanos, q.After.RowKey)
	}
	// One extra row tells whether another page exists.
	args = append(args, top+1)

	query := fmt.Sprintf(`
		SELECT partition_key, row_key, event_ts_ns, event_type, properties
		FROM entities
		WHERE %s
		ORDER BY event_ts_ns %s, row_key %s
		LIMIT ?`, where.String(), order, order)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return model.EntityPage{}, fmt.Errorf("duckdb: query entities: %w", err)
	}
	defer rows.Close()

	var page model.EntityPage
	for rows.Next() {
		var (
			e     model.Entity
			tsNs  int64
			props string
		)
		if err := rows.Scan(&e.PartitionKey, &e.RowKey, &tsNs, &e.EventType, &props); err != nil {
			return model.EntityPage{}, fmt.Errorf("duckdb: scan entity: %w", err)
		}
		e.Timestamp = time.Unix(0, tsNs).UTC()
		if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
			return model.EntityPage{}, fmt.Errorf("duckdb: decode properties of %s: %w", e.RowKey, err)
		}
		page.Entities = append(page.Entities, e)
	}
	if err := rows.Err(); err != nil {
		return model.EntityPage{}, fmt.Errorf("duckdb: iterate entities: %w", err)
	}

	if len(page.Entities) > top {
		page.Entities = page.Entities[:top]
		last := page.Entities[top-1]
		page.Next = &model.EntityCursor{TimestampNanos: last.Timestamp.UnixNano(), RowKey: last.RowKey}
	}
	return page, nil
}

// CountEntities returns the number of rows in table.
func (s *Store) CountEntities(ctx context.Context, table string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE table_name = ?", table).Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: count entities: %w", err)
	}
	return n, nil
}

// TableRowCounts returns row counts per table name.
func (s *Store) TableRowCounts(ctx context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, "SELECT table_name, COUNT(*) FROM entities GROUP BY table_name ORDER BY table_name")
	if err != nil {
		return nil, fmt.Errorf("duckdb: table counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("duckdb: scan table count: %w", err)
		}
		counts[name] = n
	}
	return counts, rows.Err()
}

// DeleteBefore removes entities whose event time is older than cutoff and
// returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, "DELETE FROM entities WHERE event_ts_ns < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("duckdb: delete expired entities: %w", err)
	}
	return res.RowsAffected()
}
