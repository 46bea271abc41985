package model

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"bistrobooks/internal/domain"
	"bistrobooks/internal/port"
)

// circuitState tracks rate-limit backoff for a single backend.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FailoverInvoker tries backends in order, skipping those with open
// rate-limit circuits. It implements port.ModelInvoker.
type FailoverInvoker struct {
	invokers []port.ModelInvoker
	circuits []*circuitState
	names    []string
}

// NewFailoverInvoker creates a FailoverInvoker from an ordered list of backends and their names.
func NewFailoverInvoker(invokers []port.ModelInvoker, names []string) *FailoverInvoker {
	circuits := make([]*circuitState, len(invokers))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	return &FailoverInvoker{
		invokers: invokers,
		circuits: circuits,
		names:    names,
	}
}

func (f *FailoverInvoker) Invoke(ctx context.Context, req *port.InvokeRequest) (*port.InvokeResult, error) {
	now := time.Now()
	var lastErr error
	allRateLimited := true
	var earliestReset time.Time

	for i, inv := range f.invokers {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			log.Printf("model.FailoverInvoker: skipping %s (circuit open until %s)", f.names[i], resetAt.Format(time.RFC3339))
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		out, err := inv.Invoke(ctx, req)
		if err == nil {
			return out, nil
		}

		log.Printf("model.FailoverInvoker: %s failed: %v", f.names[i], err)
		lastErr = err

		// A rejected input stays rejected on every backend, and a dead
		// caller context cannot be rescued by the next one either.
		if errors.Is(err, domain.ErrInvalidInput) || ctx.Err() != nil {
			return nil, err
		}

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			resetAt := now.Add(rlErr.RetryAfter)
			f.circuits[i].open(resetAt)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil || allRateLimited {
		// Every backend was skipped or rate limited.
		retryAfter := time.Until(earliestReset)
		if retryAfter < 0 {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("all backends rate limited"), int(retryAfter.Seconds()))
	}

	return nil, fmt.Errorf("all backends failed: %w", lastErr)
}
