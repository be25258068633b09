package model

import "time"

// Entity is one row of the table service. Properties hold the
// type-specific payload as flat string values.
type Entity struct {
	PartitionKey string
	RowKey       string
	Timestamp    time.Time
	EventType    string
	Properties   map[string]string
}

// EntityCursor marks the position of the last row returned in a page.
type EntityCursor struct {
	TimestampNanos int64  `json:"ts"`
	RowKey         string `json:"rk"`
}

// EntityQuery is a partition/range query against one table.
type EntityQuery struct {
	Table        string
	PartitionKey string
	From         time.Time
	To           time.Time
	Descending   bool
	Top          int
	After        *EntityCursor // nil = first page
}

// EntityPage is one page of a range query. Next is nil on the last page.
type EntityPage struct {
	Entities []Entity
	Next     *EntityCursor
}
