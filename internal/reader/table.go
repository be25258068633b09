package reader

import (
	"context"

	"github.com/tinytelemetry/tracestore/internal/logging"
	"github.com/tinytelemetry/tracestore/internal/parser"
	"github.com/tinytelemetry/tracestore/internal/tablestore"
)

// TableSource is a trace table service account. Each category is a table
// named TableNamePrefix plus the category suffix, partitioned by deployment.
type TableSource struct {
	Client          tablestore.Client
	TableNamePrefix string
	DeploymentID    string
}

// Describe implements Backend.
func (s TableSource) Describe() string {
	return "table:" + s.TableNamePrefix + "/" + s.DeploymentID
}

func (s TableSource) layout() parser.Layout { return parser.TableLayout }

// TableName returns the table holding spec's category.
func (s TableSource) TableName(spec CategorySpec) string {
	return s.TableNamePrefix + spec.TableSuffix
}

func (s TableSource) open(spec CategorySpec, plan scanPlan) pager {
	return &tablePager{
		client: s.Client,
		query: tablestore.Query{
			Table:        s.TableName(spec),
			PartitionKey: s.DeploymentID,
			From:         plan.bound.Start(),
			To:           plan.bound.End(),
			Descending:   plan.backward,
			Top:          plan.pageSize,
		},
	}
}

// NewTableStoreReader returns a reader of spec's category in src.
func NewTableStoreReader(spec CategorySpec, src TableSource, logger logging.Logger, conf ...Config) *Reader {
	return newReader(spec, src, logger, conf...)
}

type tablePager struct {
	client tablestore.Client
	query  tablestore.Query
	done   bool
}

func (p *tablePager) next(ctx context.Context) (page, bool, error) {
	if p.done {
		return page{}, false, nil
	}
	res, err := p.client.QueryEntities(ctx, p.query)
	if err != nil {
		return page{}, false, err
	}
	p.query.Continuation = res.Continuation
	p.done = res.Continuation == ""
	return page{source: p.query.Table, entries: res.Entities}, true, nil
}
