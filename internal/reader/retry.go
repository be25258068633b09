package reader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/tinytelemetry/tracestore/internal/model"
)

// RetryPolicy bounds the retries of one page fetch.
type RetryPolicy struct {
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Config holds reader tuning.
type Config struct {
	Retry RetryPolicy
	// PageSize is the number of entities requested per table page.
	PageSize int
}

func (c Config) withDefaults() Config {
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = model.DefaultRetryAttempts
	}
	if c.Retry.InitialBackoff <= 0 {
		c.Retry.InitialBackoff = model.DefaultInitialBackoff
	}
	if c.Retry.MaxBackoff <= 0 {
		c.Retry.MaxBackoff = model.DefaultMaxBackoff
	}
	if c.Retry.MaxBackoff < c.Retry.InitialBackoff {
		c.Retry.MaxBackoff = c.Retry.InitialBackoff
	}
	if c.PageSize <= 0 {
		c.PageSize = model.DefaultPageSize
	}
	return c
}

// permanent reports whether err says a retry cannot succeed. Only a
// backend's own status can say so; transport and filesystem errors are
// always retried.
func permanent(err error) bool {
	var t interface{ Temporary() bool }
	if !errors.As(err, &t) {
		return false
	}
	switch t.(type) {
	case *url.Error, syscall.Errno:
		return false
	}
	return !t.Temporary()
}

func cancelled(ctx context.Context) error {
	return goerr.Wrap(fmt.Errorf("%w: %w", model.ErrCancelled, context.Cause(ctx)), "scan cancelled")
}

// fetch pulls the next page, retrying with exponential backoff.
func (r *Reader) fetch(ctx context.Context, pg pager) (page, bool, error) {
	policy := r.conf.Retry
	backoff := policy.InitialBackoff

	var lastErr error
	attempt := 1
	for ; attempt <= policy.Attempts; attempt++ {
		p, more, err := pg.next(ctx)
		if err == nil {
			return p, more, nil
		}
		if ctx.Err() != nil {
			return page{}, false, cancelled(ctx)
		}
		lastErr = err
		if permanent(err) || attempt == policy.Attempts {
			break
		}

		r.log.Warnf("reader: %s fetch failed (attempt %d/%d), retrying in %s: %v",
			r.backend.Describe(), attempt, policy.Attempts, backoff, err)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return page{}, false, cancelled(ctx)
		case <-timer.C:
		}
		backoff = min(backoff*2, policy.MaxBackoff)
	}

	r.log.Errorf("reader: %s unavailable after %d attempt(s): %v", r.backend.Describe(), attempt, lastErr)
	return page{}, false, goerr.Wrap(fmt.Errorf("%w: %w", model.ErrBackendUnavailable, lastErr), "page fetch failed",
		goerr.V("backend", r.backend.Describe()),
		goerr.V("attempts", attempt))
}
