package reader

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/logging"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/parser"
	"github.com/tinytelemetry/tracestore/internal/query"
)

// scanPlan is what a backend needs to enumerate pages for one scan.
type scanPlan struct {
	bound    query.Duration
	backward bool
	pageSize int
}

// Reader is a StoreReader over one category and backend. It runs one scan
// at a time; different readers may scan concurrently.
type Reader struct {
	spec    CategorySpec
	backend Backend
	log     logging.Logger
	conf    Config

	busy   atomic.Bool
	closed atomic.Bool
	state  atomic.Int32
}

var _ StoreReader = (*Reader)(nil)

func newReader(spec CategorySpec, b Backend, logger logging.Logger, conf ...Config) *Reader {
	var c Config
	if len(conf) > 0 {
		c = conf[0]
	}
	if logger == nil {
		logger = logging.Discard().CreateLogger("reader")
	}
	return &Reader{
		spec:    spec,
		backend: b,
		log:     logger,
		conf:    c.withDefaults(),
	}
}

// Category returns the category this reader decodes.
func (r *Reader) Category() model.Category { return r.spec.Category }

// State returns the state of the current or most recent scan.
func (r *Reader) State() State { return State(r.state.Load()) }

// Backend returns the backend this reader scans.
func (r *Reader) Backend() Backend { return r.backend }

// Close makes later scans fail with ErrReaderClosed. A scan in flight
// finishes normally.
func (r *Reader) Close() { r.closed.Store(true) }

// WithinBound returns a view of r limited to d. r is not modified.
func (r *Reader) WithinBound(d query.Duration) ReaderView {
	return &view{r: r, bound: d}
}

// ReadBackward reads the whole store newest first.
func (r *Reader) ReadBackward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error) {
	return r.scan(ctx, query.AllTime(), filter, maxCount, true)
}

// ReadForward reads the whole store oldest first.
func (r *Reader) ReadForward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error) {
	return r.scan(ctx, query.AllTime(), filter, maxCount, false)
}

type view struct {
	r     *Reader
	bound query.Duration
}

func (v *view) Bound() query.Duration { return v.bound }

func (v *view) ReadBackward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error) {
	return v.r.scan(ctx, v.bound, filter, maxCount, true)
}

func (v *view) ReadForward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error) {
	return v.r.scan(ctx, v.bound, filter, maxCount, false)
}

func (r *Reader) scan(ctx context.Context, d query.Duration, filter *query.ReadFilter, maxCount int, backward bool) ([]model.TraceRecord, error) {
	if r.closed.Load() {
		return nil, goerr.Wrap(model.ErrReaderClosed, "reader closed",
			goerr.V("category", string(r.spec.Category)))
	}
	if !r.busy.CompareAndSwap(false, true) {
		return nil, goerr.Wrap(model.ErrReaderBusy, "scan already in progress",
			goerr.V("category", string(r.spec.Category)))
	}
	defer r.busy.Store(false)

	if maxCount <= 0 {
		r.state.Store(int32(Completed))
		return []model.TraceRecord{}, nil
	}

	r.state.Store(int32(Scanning))
	records, err := r.run(ctx, d, filter, maxCount, backward)
	switch {
	case err == nil:
		r.state.Store(int32(Completed))
	case errors.Is(err, model.ErrCancelled):
		r.state.Store(int32(Cancelled))
	default:
		r.state.Store(int32(Faulted))
	}
	return records, err
}

func (r *Reader) run(ctx context.Context, d query.Duration, filter *query.ReadFilter, maxCount int, backward bool) ([]model.TraceRecord, error) {
	session := parser.NewSession(r.backend.layout(), filter.Accepts)
	p := r.spec.NewParser(session)
	pg := r.backend.open(r.spec, scanPlan{bound: d, backward: backward, pageSize: r.conf.PageSize})

	c := collector{bound: d, filter: filter, max: maxCount, backward: backward,
		out: make([]model.TraceRecord, 0, min(maxCount, r.conf.PageSize))}
	// pending holds decoded records that later pages may still precede.
	var pending []model.TraceRecord
	for {
		if ctx.Err() != nil {
			return nil, cancelled(ctx)
		}
		pageData, more, err := r.fetch(ctx, pg)
		if err != nil {
			return nil, err
		}
		if !more {
			sortRecords(pending, backward)
			c.take(pending)
			return c.out, nil
		}

		session.SetSource(pageData.source)
		for _, raw := range pageData.entries {
			if ctx.Err() != nil {
				return nil, cancelled(ctx)
			}
			res := p.Parse(raw)
			switch res.Outcome {
			case parser.Decoded:
				pending = append(pending, res.Record)
			case parser.Failed:
				r.log.Warnf("reader: skipping malformed %s entry in %s: %v", r.spec.Category, pageData.source, res.Err)
			}
		}

		sortRecords(pending, backward)
		n := len(pending)
		if pageData.open {
			n = releasable(pending, pageData.horizon, backward)
		}
		if c.take(pending[:n]) {
			return c.out, nil
		}
		pending = slices.Delete(pending, 0, n)
	}
}

// collector keeps the records of one scan that fall inside the bound and
// pass the filter. Records must arrive in scan order.
type collector struct {
	bound    query.Duration
	filter   *query.ReadFilter
	max      int
	backward bool
	out      []model.TraceRecord
}

// take reports whether the scan is complete: a record passed the far end of
// the bound or max records were kept.
func (c *collector) take(records []model.TraceRecord) bool {
	for _, rec := range records {
		if c.backward && c.bound.Before(rec.Timestamp) || !c.backward && c.bound.After(rec.Timestamp) {
			return true
		}
		if !c.bound.Contains(rec.Timestamp) || !c.filter.Matches(rec) {
			continue
		}
		c.out = append(c.out, rec)
		if len(c.out) == c.max {
			return true
		}
	}
	return false
}

// releasable returns how many leading records of sorted no later page can
// precede, given the horizon of the page just read.
func releasable(sorted []model.TraceRecord, horizon time.Time, backward bool) int {
	if horizon.IsZero() {
		return 0
	}
	return sort.Search(len(sorted), func(i int) bool {
		if backward {
			return sorted[i].Timestamp.Before(horizon)
		}
		return sorted[i].Timestamp.After(horizon)
	})
}

func sortRecords(records []model.TraceRecord, backward bool) {
	sort.SliceStable(records, func(i, j int) bool {
		if backward {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
}
