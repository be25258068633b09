package model

import "time"

// Shared defaults used by the readers and both binaries.
const (
	DefaultPageSize       = 1000
	DefaultRetryAttempts  = 3
	DefaultInitialBackoff = 100 * time.Millisecond
	DefaultMaxBackoff     = 2 * time.Second
	DefaultQueryWindow    = time.Hour
)
