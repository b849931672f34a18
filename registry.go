package l402

import (
	"sync"
	"time"

	"github.com/plebos/l402-go/internal/metrics"
)

// DefaultReapInterval is how often the background sweep removes expired
// entries when no interval is configured.
const DefaultReapInterval = 10 * time.Minute

// Registry tracks consumed credential identifiers so each credential is
// accepted at most once during its valid lifetime. The verifier inserts after
// a successful first verification; the background reaper removes entries once
// their expiry has passed, bounding memory growth. Reaping is purely a
// memory-bounding optimization: expired credentials already fail the expires
// caveat before the registry is consulted.
//
// Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]time.Time

	stop chan struct{}
	done chan struct{}
}

// NewRegistry creates an empty registry. The background reaper is not
// started; call Start once the owning service is wired up.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]time.Time),
	}
}

// Consume atomically records id as used until expires. It fails with
// ErrAlreadyUsed when id is already present, guaranteeing at-most-one
// acceptance per identifier under concurrent verification attempts.
func (r *Registry) Consume(id string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, used := r.entries[id]; used {
		return ErrAlreadyUsed
	}
	r.entries[id] = expires
	metrics.RegistryEntries.Set(float64(len(r.entries)))
	return nil
}

// Used reports whether id has been consumed and not yet reaped.
func (r *Registry) Used(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, used := r.entries[id]
	return used
}

// Len returns the number of tracked entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sweep removes entries whose expiry is strictly before now and returns how
// many were removed. Entries expiring exactly at now are kept.
func (r *Registry) Sweep(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, expires := range r.entries {
		if expires.Before(now) {
			delete(r.entries, id)
			removed++
		}
	}
	if removed > 0 {
		metrics.ReapedEntries.Add(float64(removed))
		metrics.RegistryEntries.Set(float64(len(r.entries)))
	}
	return removed
}

// Start launches the background reaper, sweeping every interval until Stop is
// called. Starting an already running registry is a no-op. A non-positive
// interval falls back to DefaultReapInterval.
func (r *Registry) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done = make(chan struct{})

	go r.reap(interval, r.stop, r.done)
}

// Stop terminates the background reaper and waits for it to exit. Stopping a
// registry that was never started is a no-op.
func (r *Registry) Stop() {
	r.mu.Lock()
	stop, done := r.stop, r.done
	r.stop, r.done = nil, nil
	r.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (r *Registry) reap(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(time.Now())
		case <-stop:
			return
		}
	}
}
