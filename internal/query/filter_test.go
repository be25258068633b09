package query

import (
	"errors"
	"testing"

	"github.com/tinytelemetry/tracestore/internal/model"
)

const (
	nodeOpening model.RecordType = "NodeOpening"
	nodeClosed  model.RecordType = "NodeClosed"
	nodeDown    model.RecordType = "NodeDown"
)

func TestCreateReadFilterIncludesOnlyRequestedTypes(t *testing.T) {
	f := CreateReadFilter(nodeOpening)

	if !f.Matches(model.TraceRecord{Type: nodeOpening}) {
		t.Error("NodeOpening should match")
	}
	if f.Matches(model.TraceRecord{Type: nodeClosed}) {
		t.Error("NodeClosed should not match")
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
}

func TestCreateReadFilterCollapsesDuplicates(t *testing.T) {
	f := CreateReadFilter(nodeOpening, nodeOpening, nodeClosed)
	if f.Len() != 2 {
		t.Errorf("Len = %d, want 2", f.Len())
	}
	got := f.Types()
	if len(got) != 2 || got[0] != nodeClosed || got[1] != nodeOpening {
		t.Errorf("Types = %v, want [NodeClosed NodeOpening]", got)
	}
	if err := f.AddFilter(nodeOpening, Exclude); !errors.Is(err, model.ErrFilterConditionAlreadyExists) {
		t.Errorf("AddFilter(Exclude) after duplicate include = %v, want ErrFilterConditionAlreadyExists", err)
	}
	if f.Matches(model.TraceRecord{Type: nodeDown}) {
		t.Error("NodeDown should not match an include-only filter")
	}
}

func TestAddFilterSameRuleIsIdempotent(t *testing.T) {
	f := CreateReadFilter(nodeOpening)

	for i := 0; i < 3; i++ {
		if err := f.AddFilter(nodeOpening, Include); err != nil {
			t.Fatalf("AddFilter #%d: %v", i, err)
		}
	}
	if f.Len() != 1 {
		t.Errorf("Len = %d, want 1", f.Len())
	}
	if !f.Accepts(nodeOpening) || f.Accepts(nodeDown) {
		t.Error("filter semantics changed after idempotent registration")
	}
}

func TestAddFilterConflictingRuleFails(t *testing.T) {
	f := CreateReadFilter(nodeOpening)

	err := f.AddFilter(nodeOpening, Exclude)
	if !errors.Is(err, model.ErrFilterConditionAlreadyExists) {
		t.Fatalf("err = %v, want ErrFilterConditionAlreadyExists", err)
	}
	rule, ok := f.Rule(nodeOpening)
	if !ok || rule != Include {
		t.Errorf("rule after failed conflict = %v (present %v), want include", rule, ok)
	}
}

func TestReadFilterSemantics(t *testing.T) {
	t.Parallel()

	build := func(t *testing.T, rules map[model.RecordType]Rule) *ReadFilter {
		t.Helper()
		f := &ReadFilter{}
		for typ, rule := range rules {
			if err := f.AddFilter(typ, rule); err != nil {
				t.Fatalf("AddFilter(%s): %v", typ, err)
			}
		}
		return f
	}

	tests := []struct {
		name   string
		rules  map[model.RecordType]Rule
		accept []model.RecordType
		reject []model.RecordType
	}{
		{
			name:   "empty accepts all",
			accept: []model.RecordType{nodeOpening, nodeClosed, nodeDown},
		},
		{
			name:   "include only",
			rules:  map[model.RecordType]Rule{nodeOpening: Include},
			accept: []model.RecordType{nodeOpening},
			reject: []model.RecordType{nodeClosed, nodeDown},
		},
		{
			name:   "exclude only",
			rules:  map[model.RecordType]Rule{nodeDown: Exclude},
			accept: []model.RecordType{nodeOpening, nodeClosed},
			reject: []model.RecordType{nodeDown},
		},
		{
			name:   "include and exclude",
			rules:  map[model.RecordType]Rule{nodeOpening: Include, nodeDown: Exclude},
			accept: []model.RecordType{nodeOpening},
			reject: []model.RecordType{nodeDown, nodeClosed},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := build(t, tt.rules)
			for _, typ := range tt.accept {
				if !f.Accepts(typ) {
					t.Errorf("Accepts(%s) = false, want true", typ)
				}
			}
			for _, typ := range tt.reject {
				if f.Accepts(typ) {
					t.Errorf("Accepts(%s) = true, want false", typ)
				}
			}
		})
	}
}

func TestNilFilterAcceptsAll(t *testing.T) {
	var f *ReadFilter
	if !f.Matches(model.TraceRecord{Type: nodeDown}) {
		t.Error("nil filter should accept every record")
	}
	if f.Len() != 0 || f.Types() != nil {
		t.Error("nil filter should report no types")
	}
}
