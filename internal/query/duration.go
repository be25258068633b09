package query

import (
	"fmt"
	"math"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/model"
)

// Duration is a closed UTC time interval bounding a scan.
// The zero value is the single instant at the zero time.
type Duration struct {
	start time.Time
	end   time.Time
}

// NewDuration returns the interval [start, end]. Both ends are converted to UTC.
func NewDuration(start, end time.Time) (Duration, error) {
	start, end = start.UTC(), end.UTC()
	if start.After(end) {
		return Duration{}, goerr.Wrap(model.ErrInvalidRange, "start is after end",
			goerr.V("start", start), goerr.V("end", end))
	}
	return Duration{start: start, end: end}, nil
}

// Last returns the interval of length d ending at now.
func Last(d time.Duration, now time.Time) (Duration, error) {
	return NewDuration(now.Add(-d), now)
}

// AllTime returns the widest interval representable in Unix nanoseconds.
func AllTime() Duration {
	return Duration{
		start: time.Unix(0, math.MinInt64).UTC(),
		end:   time.Unix(0, math.MaxInt64).UTC(),
	}
}

// Start returns the inclusive lower bound.
func (d Duration) Start() time.Time { return d.start }

// End returns the inclusive upper bound.
func (d Duration) End() time.Time { return d.end }

// Contains reports whether t lies in [start, end].
func (d Duration) Contains(t time.Time) bool {
	return !t.Before(d.start) && !t.After(d.end)
}

// Before reports whether t lies below the interval.
func (d Duration) Before(t time.Time) bool { return t.Before(d.start) }

// After reports whether t lies above the interval.
func (d Duration) After(t time.Time) bool { return t.After(d.end) }

// Overlaps reports whether [from, to] intersects the interval.
func (d Duration) Overlaps(from, to time.Time) bool {
	return !to.Before(d.start) && !from.After(d.end)
}

func (d Duration) String() string {
	return fmt.Sprintf("[%s, %s]", d.start.Format(time.RFC3339Nano), d.end.Format(time.RFC3339Nano))
}
