package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/tinytelemetry/tracestore/internal/parser"
	"github.com/tinytelemetry/tracestore/internal/reader"
	"github.com/tinytelemetry/tracestore/internal/tablestore"
	"github.com/tinytelemetry/tracestore/internal/tracefile"
	"github.com/tinytelemetry/tracestore/internal/tracestore"
)

const seedBatchSize = 500

type seedOptions struct {
	category   string
	count      int
	start      string
	interval   time.Duration
	compress   bool
	maxRecords int
}

func parseSeedFlags(args []string, errOut io.Writer) (seedOptions, error) {
	var o seedOptions
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.category, "category", categoryAll, "operational, query or all")
	fs.IntVar(&o.count, "count", 100, "records per category")
	fs.StringVar(&o.start, "start", "", "first record time (RFC3339), default count*interval ago")
	fs.DurationVar(&o.interval, "interval", time.Second, "time between records")
	fs.BoolVar(&o.compress, "compress", false, "write zstd-compressed local files")
	fs.IntVar(&o.maxRecords, "file-records", 0, "records per local file before rotation")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.count <= 0 {
		return o, fmt.Errorf("count must be positive")
	}
	if o.interval <= 0 {
		return o, fmt.Errorf("interval must be positive")
	}
	switch o.category {
	case categoryOperational, categoryQuery, categoryAll:
	default:
		return o, fmt.Errorf("invalid category %q", o.category)
	}
	return o, nil
}

func (o seedOptions) specs() []reader.CategorySpec {
	switch o.category {
	case categoryOperational:
		return []reader.CategorySpec{reader.EventCategory}
	case categoryQuery:
		return []reader.CategorySpec{reader.QueryCategory}
	default:
		return []reader.CategorySpec{reader.EventCategory, reader.QueryCategory}
	}
}

func (o seedOptions) startTime(now time.Time) (time.Time, error) {
	if o.start == "" {
		return now.Add(-time.Duration(o.count) * o.interval), nil
	}
	t, err := time.Parse(time.RFC3339Nano, o.start)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid -start: %w", err)
	}
	return t, nil
}

// sampleRecords cycles through the category's record types.
func sampleRecords(spec reader.CategorySpec, start time.Time, interval time.Duration, count int) []model.TraceRecord {
	types := parser.EventTypes()
	if spec.Category == model.CategoryQuery {
		types = parser.QueryTypes()
	}
	out := make([]model.TraceRecord, count)
	for i := range out {
		out[i] = model.TraceRecord{
			Timestamp: start.Add(time.Duration(i) * interval).UTC(),
			Type:      types[i%len(types)],
			Category:  spec.Category,
			Attributes: map[string]string{
				"NodeName": fmt.Sprintf("node-%d", i%5),
				"Sequence": fmt.Sprint(i),
			},
		}
	}
	return out
}

func runSeed(ctx context.Context, cfg cliConfig, args []string, out io.Writer) error {
	opts, err := parseSeedFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	start, err := opts.startTime(time.Now())
	if err != nil {
		return err
	}

	info := cfg.connectionInfo()
	if err := info.Validate(); err != nil {
		return err
	}

	for _, spec := range opts.specs() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		records := sampleRecords(spec, start, opts.interval, opts.count)
		var where string
		switch in := info.(type) {
		case tracestore.LocalInfo:
			where, err = seedLocal(in, spec, records, tracefile.WriterConfig{MaxRecords: opts.maxRecords, Compress: opts.compress})
		case tracestore.CloudInfo:
			where, err = seedCloud(ctx, in, spec, records)
		}
		if err != nil {
			return fmt.Errorf("seed %s: %w", spec.Category, err)
		}
		fmt.Fprintf(out, "wrote %d %s records to %s\n", len(records), spec.Category, where)
	}
	return nil
}

func seedLocal(info tracestore.LocalInfo, spec reader.CategorySpec, records []model.TraceRecord, conf tracefile.WriterConfig) (string, error) {
	dir := filepath.Join(info.LogRoot(), spec.SubPath)
	w, err := tracefile.NewWriter(dir, conf)
	if err != nil {
		return "", err
	}
	for _, r := range records {
		if err := w.Append(r); err != nil {
			w.Close()
			return "", err
		}
	}
	return dir, w.Close()
}

func seedCloud(ctx context.Context, info tracestore.CloudInfo, spec reader.CategorySpec, records []model.TraceRecord) (string, error) {
	client, err := tablestore.NewHTTPClient(tablestore.HTTPConfig{
		Endpoint:    info.Endpoint,
		AccountName: info.AccountName,
		AccountKey:  info.AccountKey.Reveal(),
	})
	if err != nil {
		return "", err
	}
	table := reader.TableSource{TableNamePrefix: info.TableNamePrefix}.TableName(spec)

	batch := make([]model.Entity, 0, seedBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := client.InsertEntities(ctx, table, batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}
	for _, r := range records {
		batch = append(batch, model.Entity{
			PartitionKey: info.DeploymentID,
			Timestamp:    r.Timestamp,
			EventType:    string(r.Type),
			Properties:   r.Attributes,
		})
		if len(batch) >= seedBatchSize {
			if err := flush(); err != nil {
				return "", err
			}
		}
	}
	if err := flush(); err != nil {
		return "", err
	}
	return table, nil
}
