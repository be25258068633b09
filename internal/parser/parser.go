// Package parser turns raw persisted entries into typed trace records.
package parser

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/valyala/fastjson"
)

// Outcome classifies the result of parsing one raw entry.
type Outcome int

const (
	// Skip means the entry is not of this parser's category or was rejected
	// by the session prefilter. It is not an error.
	Skip Outcome = iota
	// Decoded means Record holds a valid trace record.
	Decoded
	// Failed means the entry could not be decoded; Err wraps ErrMalformedRecord.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skip:
		return "skip"
	case Decoded:
		return "decoded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of Parser.Parse.
type Result struct {
	Outcome Outcome
	Record  model.TraceRecord
	Err     error
}

// Parser decodes raw entries of one trace category.
type Parser interface {
	Category() model.Category
	Parse(raw []byte) Result
}

// Session binds a backend layout to one scan. It owns a fastjson parser and
// is not safe for concurrent use.
type Session struct {
	layout Layout
	accept func(model.RecordType) bool
	source string
	p      fastjson.Parser
}

// NewSession creates a decoding session. accept, when non-nil, is consulted
// before the payload is decoded so rejected types cost only a type lookup.
func NewSession(layout Layout, accept func(model.RecordType) bool) *Session {
	return &Session{layout: layout, accept: accept}
}

// SetSource sets the file or table name stamped on decoded records.
func (s *Session) SetSource(source string) { s.source = source }

// Layout returns the session layout.
func (s *Session) Layout() Layout { return s.layout }

type typedParser struct {
	session  *Session
	category model.Category
	known    map[model.RecordType]struct{}
}

func newTypedParser(s *Session, category model.Category, types []model.RecordType) *typedParser {
	known := make(map[model.RecordType]struct{}, len(types))
	for _, t := range types {
		known[t] = struct{}{}
	}
	return &typedParser{session: s, category: category, known: known}
}

func (p *typedParser) Category() model.Category { return p.category }

func (p *typedParser) Parse(raw []byte) Result {
	s := p.session
	v, err := s.p.ParseBytes(raw)
	if err != nil {
		return failed(goerr.Wrap(model.ErrMalformedRecord, "invalid json", goerr.V("error", err.Error())))
	}
	if v.Type() != fastjson.TypeObject {
		return failed(goerr.Wrap(model.ErrMalformedRecord, "entry is not an object"))
	}

	typ, ok := stringField(v, s.layout.TypeField)
	if !ok || typ == "" {
		return failed(goerr.Wrap(model.ErrMalformedRecord, "missing record type",
			goerr.V("field", s.layout.TypeField)))
	}
	rt := model.RecordType(typ)
	if _, known := p.known[rt]; !known {
		return Result{Outcome: Skip}
	}
	if s.accept != nil && !s.accept(rt) {
		return Result{Outcome: Skip}
	}

	rawTS, ok := stringField(v, s.layout.TimestampField)
	if !ok {
		return failed(goerr.Wrap(model.ErrMalformedRecord, "missing timestamp",
			goerr.V("record_type", typ), goerr.V("field", s.layout.TimestampField)))
	}
	ts, err := time.Parse(time.RFC3339Nano, rawTS)
	if err != nil {
		return failed(goerr.Wrap(model.ErrMalformedRecord, "invalid timestamp",
			goerr.V("record_type", typ), goerr.V("timestamp", rawTS)))
	}

	attrs, err := s.layout.attributes(v)
	if err != nil {
		return failed(goerr.Wrap(err, "invalid attributes", goerr.V("record_type", typ)))
	}

	return Result{
		Outcome: Decoded,
		Record: model.TraceRecord{
			Timestamp:  ts.UTC(),
			Type:       rt,
			Category:   p.category,
			Source:     s.source,
			Attributes: attrs,
		},
	}
}

func failed(err error) Result {
	return Result{Outcome: Failed, Err: err}
}

func stringField(v *fastjson.Value, key string) (string, bool) {
	f := v.Get(key)
	if f == nil || f.Type() != fastjson.TypeString {
		return "", false
	}
	b, err := f.StringBytes()
	if err != nil {
		return "", false
	}
	return string(b), true
}
