package reader

import (
	"github.com/tinytelemetry/tracestore/internal/logging"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/parser"
)

// CategorySpec binds a trace category to where it lives in each backend and
// to the parser that decodes it.
type CategorySpec struct {
	Category    model.Category
	SubPath     string
	TableSuffix string
	NewParser   func(*parser.Session) parser.Parser
}

var (
	// EventCategory is the operational event store.
	EventCategory = CategorySpec{
		Category:    model.CategoryOperational,
		SubPath:     "OperationalTraces",
		TableSuffix: "OperationalTraces",
		NewParser:   parser.NewEventParser,
	}
	// QueryCategory is the query store.
	QueryCategory = CategorySpec{
		Category:    model.CategoryQuery,
		SubPath:     "QueryTraces",
		TableSuffix: "QueryTraces",
		NewParser:   parser.NewQueryParser,
	}
)

// Backend is a trace store location: a LocalSource or a TableSource.
type Backend interface {
	// Describe names the backend for logs. It never includes credentials.
	Describe() string
	layout() parser.Layout
	open(spec CategorySpec, plan scanPlan) pager
}

// NewEventStoreReader returns a reader of operational events on b.
func NewEventStoreReader(b Backend, logger logging.Logger, conf ...Config) *Reader {
	return newReader(EventCategory, b, logger, conf...)
}

// NewQueryStoreReader returns a reader of query store records on b.
func NewQueryStoreReader(b Backend, logger logging.Logger, conf ...Config) *Reader {
	return newReader(QueryCategory, b, logger, conf...)
}
