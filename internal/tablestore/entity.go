package tablestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tinytelemetry/tracestore/internal/model"
)

// Reserved entity fields. Everything else in an entity is a property.
const (
	FieldPartitionKey   = "PartitionKey"
	FieldRowKey         = "RowKey"
	FieldEventTimestamp = "EventTimestamp"
	FieldEventType      = "EventType"
)

// MarshalEntity renders e as a flat JSON object.
func MarshalEntity(e model.Entity) ([]byte, error) {
	obj := make(map[string]string, len(e.Properties)+4)
	for k, v := range e.Properties {
		obj[k] = v
	}
	obj[FieldPartitionKey] = e.PartitionKey
	obj[FieldRowKey] = e.RowKey
	obj[FieldEventTimestamp] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	obj[FieldEventType] = e.EventType
	return json.Marshal(obj)
}

// UnmarshalEntity parses a flat JSON object into an entity. Non-string
// property values are kept as their JSON text.
func UnmarshalEntity(raw []byte) (model.Entity, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.Entity{}, fmt.Errorf("tablestore: parse entity: %w", err)
	}

	var e model.Entity
	e.Properties = make(map[string]string, len(obj))
	for k, v := range obj {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			s = string(v)
		}
		switch k {
		case FieldPartitionKey:
			e.PartitionKey = s
		case FieldRowKey:
			e.RowKey = s
		case FieldEventType:
			e.EventType = s
		case FieldEventTimestamp:
			ts, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return model.Entity{}, fmt.Errorf("tablestore: parse %s: %w", FieldEventTimestamp, err)
			}
			e.Timestamp = ts.UTC()
		default:
			e.Properties[k] = s
		}
	}

	if e.PartitionKey == "" {
		return model.Entity{}, errors.New("tablestore: entity missing PartitionKey")
	}
	if e.EventType == "" {
		return model.Entity{}, errors.New("tablestore: entity missing EventType")
	}
	if e.Timestamp.IsZero() {
		return model.Entity{}, errors.New("tablestore: entity missing EventTimestamp")
	}
	return e, nil
}
