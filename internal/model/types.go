package model

import "time"

// Category identifies the family of traces a record belongs to.
type Category string

const (
	CategoryOperational Category = "operational"
	CategoryQuery       Category = "query"
)

// RecordType identifies the kind of a trace record (for example NodeOpening).
type RecordType string

// TraceRecord is a single decoded trace entry. It is the canonical type
// returned by every store reader regardless of backend.
type TraceRecord struct {
	Timestamp  time.Time
	Type       RecordType
	Category   Category
	Source     string // file path or table name the record was read from
	Attributes map[string]string
}

// Attr returns the attribute value for key, or "" when absent.
func (r TraceRecord) Attr(key string) string {
	if r.Attributes == nil {
		return ""
	}
	return r.Attributes[key]
}
