// Package export renders trace records as JSON lines, YAML or OTLP-JSON logs.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
	commonv1 "go.opentelemetry.io/proto/otlp/common/v1"
	logsv1 "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcev1 "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"gopkg.in/yaml.v3"
)

// Format names an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatOTLP Format = "otlp"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatOTLP:
		return f, nil
	default:
		return "", fmt.Errorf("export: unknown format %q (want json, yaml or otlp)", s)
	}
}

// Write encodes records to w in format f.
func Write(w io.Writer, f Format, records []model.TraceRecord) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, records)
	case FormatYAML:
		return WriteYAML(w, records)
	case FormatOTLP:
		return WriteOTLP(w, records)
	default:
		return fmt.Errorf("export: unknown format %q", f)
	}
}

type record struct {
	Timestamp  string            `json:"timestamp" yaml:"timestamp"`
	Type       string            `json:"type" yaml:"type"`
	Category   string            `json:"category" yaml:"category"`
	Source     string            `json:"source,omitempty" yaml:"source,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

func toRecord(r model.TraceRecord) record {
	return record{
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:       string(r.Type),
		Category:   string(r.Category),
		Source:     r.Source,
		Attributes: r.Attributes,
	}
}

// WriteJSON writes one JSON object per line.
func WriteJSON(w io.Writer, records []model.TraceRecord) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(toRecord(r)); err != nil {
			return fmt.Errorf("export: encode json: %w", err)
		}
	}
	return nil
}

// WriteYAML writes records as a single YAML sequence.
func WriteYAML(w io.Writer, records []model.TraceRecord) error {
	out := make([]record, len(records))
	for i, r := range records {
		out[i] = toRecord(r)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("export: encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteOTLP writes records as an OTLP LogsData document, one scope per
// category. The record type becomes the log body and event name.
func WriteOTLP(w io.Writer, records []model.TraceRecord) error {
	b, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(LogsData(records))
	if err != nil {
		return fmt.Errorf("export: encode otlp: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("export: write otlp: %w", err)
	}
	return nil
}

// LogsData converts records to OTLP logs. Record order is kept within each
// category scope.
func LogsData(records []model.TraceRecord) *logsv1.LogsData {
	scopes := map[model.Category]*logsv1.ScopeLogs{}
	var order []model.Category
	for _, r := range records {
		sl, ok := scopes[r.Category]
		if !ok {
			sl = &logsv1.ScopeLogs{Scope: &commonv1.InstrumentationScope{Name: "tracestore/" + string(r.Category)}}
			scopes[r.Category] = sl
			order = append(order, r.Category)
		}
		sl.LogRecords = append(sl.LogRecords, logRecord(r))
	}

	rl := &logsv1.ResourceLogs{
		Resource: &resourcev1.Resource{Attributes: []*commonv1.KeyValue{stringKV("service.name", "tracestore")}},
	}
	for _, c := range order {
		rl.ScopeLogs = append(rl.ScopeLogs, scopes[c])
	}
	return &logsv1.LogsData{ResourceLogs: []*logsv1.ResourceLogs{rl}}
}

func logRecord(r model.TraceRecord) *logsv1.LogRecord {
	keys := make([]string, 0, len(r.Attributes))
	for k := range r.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]*commonv1.KeyValue, 0, len(keys)+2)
	attrs = append(attrs, stringKV("trace.category", string(r.Category)))
	if r.Source != "" {
		attrs = append(attrs, stringKV("trace.source", r.Source))
	}
	for _, k := range keys {
		attrs = append(attrs, stringKV(k, r.Attributes[k]))
	}

	ts := uint64(r.Timestamp.UnixNano())
	return &logsv1.LogRecord{
		TimeUnixNano:         ts,
		ObservedTimeUnixNano: ts,
		SeverityNumber:       logsv1.SeverityNumber_SEVERITY_NUMBER_INFO,
		SeverityText:         "INFO",
		EventName:            string(r.Type),
		Body:                 &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: string(r.Type)}},
		Attributes:           attrs,
	}
}

func stringKV(k, v string) *commonv1.KeyValue {
	return &commonv1.KeyValue{Key: k, Value: &commonv1.AnyValue{Value: &commonv1.AnyValue_StringValue{StringValue: v}}}
}
