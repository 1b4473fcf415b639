package common

import (
	"context"
	"time"
)

// Backoff produces exponentially growing delays, doubling from Base per
// attempt and capped at Max. The zero value never sleeps.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the pause before the given retry attempt (attempt 0 is the
// first retry).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			return b.Max
		}
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Sleep blocks for the attempt's delay or until ctx is done.
func (b Backoff) Sleep(ctx context.Context, attempt int) error {
	d := b.Delay(attempt)
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Failover walks an ordered candidate list, remembering failures. It is the
// shared attempt-over-candidates abstraction used for datanode replicas on
// reads, pipeline members on writes, and the namenode rotation.
type Failover struct {
	candidates []string
	next       int
	lastErr    error
}

func NewFailover(candidates []string) *Failover {
	return &Failover{candidates: candidates}
}

// Remaining reports how many candidates have not been tried yet.
func (f *Failover) Remaining() int {
	return len(f.candidates) - f.next
}

// Next returns the next untried candidate. Callers must check Remaining first.
func (f *Failover) Next() string {
	addr := f.candidates[f.next]
	f.next++
	return addr
}

// RecordFailure marks the most recently returned candidate as failed.
func (f *Failover) RecordFailure(err error) {
	f.lastErr = err
}

// LastError returns the error recorded for the last failed candidate.
func (f *Failover) LastError() error {
	return f.lastErr
}

// Retry runs fn up to maxAttempts times, sleeping with backoff between
// attempts, as long as the error is retriable per Retriable. The final error
// is returned unwrapped so callers can translate exhaustion themselves.
func Retry(ctx context.Context, maxAttempts int, backoff Backoff, fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			if serr := backoff.Sleep(ctx, attempt-1); serr != nil {
				return serr
			}
		}
		err = fn(attempt)
		if err == nil || !Retriable(err) {
			return err
		}
	}
	return err
}
