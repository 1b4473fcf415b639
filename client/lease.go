package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/peakfs/hdfsclient/namenode"
)

// leaseRenewer keeps the client's write lease alive while any writer is
// open. One renewal covers every path; the namenode tracks the lease per
// client name. After leaseThreshold consecutive failed renewals the lease
// must be assumed lost and every open writer is poisoned.
type leaseRenewer struct {
	nn        *namenode.Client
	interval  time.Duration
	threshold int

	mu       sync.Mutex
	paths    *treemap.Map // path -> open writer count
	failures int
	expired  bool
	running  bool
	stop     chan struct{}
	done     chan struct{}
}

func newLeaseRenewer(nn *namenode.Client, interval time.Duration, threshold int) *leaseRenewer {
	return &leaseRenewer{
		nn:        nn,
		interval:  interval,
		threshold: threshold,
		paths:     treemap.NewWithStringComparator(),
	}
}

// register adds a path under lease and starts the renewal loop if it is not
// running.
func (l *leaseRenewer) register(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	if v, ok := l.paths.Get(path); ok {
		count = v.(int)
	}
	l.paths.Put(path, count+1)
	if !l.running {
		l.running = true
		l.stop = make(chan struct{})
		l.done = make(chan struct{})
		go l.loop(l.stop, l.done)
	}
}

// unregister drops a path. When the last writer goes, the loop stops and a
// previously expired lease no longer poisons future writers.
func (l *leaseRenewer) unregister(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.paths.Get(path); ok {
		if count := v.(int); count > 1 {
			l.paths.Put(path, count-1)
		} else {
			l.paths.Remove(path)
		}
	}
	if l.paths.Empty() {
		l.stopLocked()
		l.failures = 0
		l.expired = false
	}
}

// isExpired reports whether the lease has been declared lost.
func (l *leaseRenewer) isExpired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.expired
}

func (l *leaseRenewer) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *leaseRenewer) stopLocked() {
	if l.running {
		l.running = false
		close(l.stop)
	}
}

func (l *leaseRenewer) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		l.mu.Lock()
		idle := l.paths.Empty() || l.expired
		l.mu.Unlock()
		if idle {
			continue
		}

		err := l.nn.RenewLease(context.Background())

		l.mu.Lock()
		if err != nil {
			l.failures++
			slog.Warn("lease renewal failed", "consecutive", l.failures, "error", err)
			if l.failures >= l.threshold && !l.expired {
				l.expired = true
				slog.Error("lease presumed lost, poisoning open writers", "failures", l.failures)
			}
		} else {
			l.failures = 0
		}
		l.mu.Unlock()
	}
}
