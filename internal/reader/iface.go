// Package reader scans trace stores. A reader enumerates the pages of one
// backend, decodes each entry through its category parser and returns the
// records inside a time bound that pass a filter.
package reader

import (
	"context"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/query"
)

// ReaderView is a reader restricted to one time bound.
type ReaderView interface {
	Bound() query.Duration
	// ReadBackward returns up to maxCount records, newest first.
	ReadBackward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error)
	// ReadForward returns up to maxCount records, oldest first.
	ReadForward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error)
}

// StoreReader reads one trace category from one backend. Reads made on the
// reader itself are unbounded in time.
type StoreReader interface {
	WithinBound(d query.Duration) ReaderView
	ReadBackward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error)
	ReadForward(ctx context.Context, filter *query.ReadFilter, maxCount int) ([]model.TraceRecord, error)
	Category() model.Category
	State() State
}

// State is the lifecycle of the most recent scan.
type State int32

const (
	Idle State = iota
	Scanning
	Completed
	Cancelled
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// page is one unit of backend I/O: a file or a table response.
//
// A table response is ordered: every record on a later page lies past every
// record on this one in scan direction. A file page is open instead, because
// files of different writers may overlap. For an open page, horizon bounds
// the later pages: none of their records lie before it in scan direction.
// An open page with a zero horizon bounds nothing.
type page struct {
	source  string
	entries [][]byte
	open    bool
	horizon time.Time
}

// pager yields pages in scan direction. more is false once exhausted.
// A failed next does not advance, so it may be retried.
type pager interface {
	next(ctx context.Context) (p page, more bool, err error)
}
