package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/tracestore/internal/export"
	"github.com/tinytelemetry/tracestore/internal/logging"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/query"
	"github.com/tinytelemetry/tracestore/internal/reader"
	"github.com/tinytelemetry/tracestore/internal/tracestore"
	"golang.org/x/sync/errgroup"
)

const (
	categoryOperational = "operational"
	categoryQuery       = "query"
	categoryAll         = "all"
	formatTable         = "table"
)

type queryOptions struct {
	category string
	since    time.Duration
	from     string
	to       string
	allTime  bool
	types    string
	exclude  string
	max      int
	forward  bool
	format   string
}

func parseQueryFlags(args []string, errOut io.Writer) (queryOptions, error) {
	var o queryOptions
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.category, "category", categoryOperational, "operational, query or all")
	fs.DurationVar(&o.since, "since", model.DefaultQueryWindow, "read records newer than this")
	fs.StringVar(&o.from, "from", "", "window start (RFC3339), overrides -since")
	fs.StringVar(&o.to, "to", "", "window end (RFC3339), default now")
	fs.BoolVar(&o.allTime, "all-time", false, "ignore the time window")
	fs.StringVar(&o.types, "types", "", "comma-separated record types to include")
	fs.StringVar(&o.exclude, "exclude", "", "comma-separated record types to exclude")
	fs.IntVar(&o.max, "max", 100, "maximum number of records")
	fs.BoolVar(&o.forward, "forward", false, "read oldest first")
	fs.StringVar(&o.format, "format", formatTable, "table, json, yaml or otlp")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	switch o.category {
	case categoryOperational, categoryQuery, categoryAll:
	default:
		return o, fmt.Errorf("invalid category %q", o.category)
	}
	return o, nil
}

func (o queryOptions) duration(now time.Time) (query.Duration, error) {
	if o.allTime {
		return query.AllTime(), nil
	}
	end := now
	if o.to != "" {
		t, err := time.Parse(time.RFC3339Nano, o.to)
		if err != nil {
			return query.Duration{}, fmt.Errorf("invalid -to: %w", err)
		}
		end = t
	}
	if o.from == "" {
		return query.Last(o.since, end)
	}
	start, err := time.Parse(time.RFC3339Nano, o.from)
	if err != nil {
		return query.Duration{}, fmt.Errorf("invalid -from: %w", err)
	}
	return query.NewDuration(start, end)
}

func (o queryOptions) filter() (*query.ReadFilter, error) {
	f := query.CreateReadFilter(splitTypes(o.types)...)
	for _, t := range splitTypes(o.exclude) {
		if err := f.AddFilter(t, query.Exclude); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func splitTypes(s string) []model.RecordType {
	var out []model.RecordType
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, model.RecordType(part))
		}
	}
	return out
}

func runQuery(ctx context.Context, cfg cliConfig, args []string, out io.Writer) error {
	opts, err := parseQueryFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	d, err := opts.duration(time.Now())
	if err != nil {
		return err
	}
	filter, err := opts.filter()
	if err != nil {
		return err
	}
	var format export.Format
	if opts.format != formatTable {
		if format, err = export.ParseFormat(opts.format); err != nil {
			return err
		}
	}

	provider, err := logging.NewProvider(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return err
	}
	conn, err := tracestore.Open(cfg.connectionInfo(), provider, tracestore.Config{Reader: cfg.readerConfig()})
	if err != nil {
		return err
	}
	defer conn.Close()

	var readers []reader.StoreReader
	if opts.category != categoryQuery {
		readers = append(readers, conn.EventStoreReader())
	}
	if opts.category != categoryOperational {
		readers = append(readers, conn.QueryStoreReader())
	}

	records, err := readAll(ctx, readers, d, filter, opts.max, opts.forward)
	if err != nil {
		return err
	}
	if opts.format == formatTable {
		return renderTable(out, records)
	}
	return export.Write(out, format, records)
}

// readAll reads every category concurrently and merges the results in scan
// order, keeping at most maxCount records.
func readAll(ctx context.Context, readers []reader.StoreReader, d query.Duration, filter *query.ReadFilter, maxCount int, forward bool) ([]model.TraceRecord, error) {
	results := make([][]model.TraceRecord, len(readers))
	g, gctx := errgroup.WithContext(ctx)
	for i, r := range readers {
		g.Go(func() error {
			view := r.WithinBound(d)
			var err error
			if forward {
				results[i], err = view.ReadForward(gctx, filter, maxCount)
			} else {
				results[i], err = view.ReadBackward(gctx, filter, maxCount)
			}
			if err != nil {
				return fmt.Errorf("%s: %w", r.Category(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []model.TraceRecord
	for _, recs := range results {
		merged = append(merged, recs...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if forward {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		}
		return merged[i].Timestamp.After(merged[j].Timestamp)
	})
	if len(merged) > maxCount {
		merged = merged[:max(maxCount, 0)]
	}
	return merged, nil
}
