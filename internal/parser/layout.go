package parser

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/model"
	"github.com/valyala/fastjson"
)

// Layout describes where a backend keeps the timestamp, type and payload
// of an entry.
type Layout struct {
	Name           string
	TimestampField string
	TypeField      string
	// AttributesField names a nested object holding the payload. When empty,
	// every top-level field not listed in Reserved is payload.
	AttributesField string
	Reserved        []string
}

// LocalLayout matches lines written by tracefile.Writer.
var LocalLayout = Layout{
	Name:            "local",
	TimestampField:  "timestamp",
	TypeField:       "type",
	AttributesField: "attributes",
}

// TableLayout matches flat entities returned by the table service.
var TableLayout = Layout{
	Name:           "table",
	TimestampField: "EventTimestamp",
	TypeField:      "EventType",
	Reserved:       []string{"PartitionKey", "RowKey", "Timestamp", "odata.etag"},
}

func (l Layout) attributes(v *fastjson.Value) (map[string]string, error) {
	if l.AttributesField != "" {
		nested := v.Get(l.AttributesField)
		if nested == nil || nested.Type() == fastjson.TypeNull {
			return map[string]string{}, nil
		}
		obj, err := nested.Object()
		if err != nil {
			return nil, goerr.Wrap(model.ErrMalformedRecord, "attributes is not an object")
		}
		return collect(obj, nil), nil
	}

	obj, err := v.Object()
	if err != nil {
		return nil, goerr.Wrap(model.ErrMalformedRecord, "entry is not an object")
	}
	skip := make(map[string]struct{}, len(l.Reserved)+2)
	for _, k := range l.Reserved {
		skip[k] = struct{}{}
	}
	skip[l.TimestampField] = struct{}{}
	skip[l.TypeField] = struct{}{}
	return collect(obj, skip), nil
}

func collect(obj *fastjson.Object, skip map[string]struct{}) map[string]string {
	out := make(map[string]string, obj.Len())
	obj.Visit(func(key []byte, val *fastjson.Value) {
		k := string(key)
		if _, ok := skip[k]; ok {
			return
		}
		switch val.Type() {
		case fastjson.TypeString:
			b, _ := val.StringBytes()
			out[k] = string(b)
		case fastjson.TypeNull:
			out[k] = ""
		default:
			out[k] = string(val.MarshalTo(nil))
		}
	})
	return out
}
