package query

import (
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/model"
)

// Rule decides what a filter does with a record type.
type Rule int

const (
	Include Rule = iota
	Exclude
)

func (r Rule) String() string {
	switch r {
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	default:
		return "unknown"
	}
}

// ReadFilter restricts which record types a scan returns.
//
// A nil or empty filter accepts every type. When at least one type is
// included, only included types pass. Excluded types never pass, so a
// filter made only of exclusions passes everything else.
type ReadFilter struct {
	rules    map[model.RecordType]Rule
	includes int
}

// CreateReadFilter returns a filter including each of types.
func CreateReadFilter(types ...model.RecordType) *ReadFilter {
	f := &ReadFilter{rules: make(map[model.RecordType]Rule, len(types))}
	for _, t := range types {
		if _, dup := f.rules[t]; dup {
			continue
		}
		f.rules[t] = Include
		f.includes++
	}
	return f
}

// AddFilter registers rule for t. Registering the same rule again is a no-op;
// registering a different rule for a known type fails.
func (f *ReadFilter) AddFilter(t model.RecordType, rule Rule) error {
	if f.rules == nil {
		f.rules = make(map[model.RecordType]Rule)
	}
	if existing, ok := f.rules[t]; ok {
		if existing == rule {
			return nil
		}
		return goerr.Wrap(model.ErrFilterConditionAlreadyExists, "conflicting rule for record type",
			goerr.V("record_type", string(t)),
			goerr.V("existing", existing.String()),
			goerr.V("requested", rule.String()))
	}
	f.rules[t] = rule
	if rule == Include {
		f.includes++
	}
	return nil
}

// Accepts reports whether records of type t pass the filter.
func (f *ReadFilter) Accepts(t model.RecordType) bool {
	if f == nil || len(f.rules) == 0 {
		return true
	}
	rule, ok := f.rules[t]
	if ok {
		return rule == Include
	}
	return f.includes == 0
}

// Matches reports whether r passes the filter.
func (f *ReadFilter) Matches(r model.TraceRecord) bool {
	return f.Accepts(r.Type)
}

// Rule returns the rule registered for t.
func (f *ReadFilter) Rule(t model.RecordType) (Rule, bool) {
	if f == nil {
		return 0, false
	}
	rule, ok := f.rules[t]
	return rule, ok
}

// Types returns the registered record types in sorted order.
func (f *ReadFilter) Types() []model.RecordType {
	if f == nil {
		return nil
	}
	out := make([]model.RecordType, 0, len(f.rules))
	for t := range f.rules {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered types.
func (f *ReadFilter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.rules)
}
