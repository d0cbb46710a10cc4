package engine

import "sync"

// SyncStatus is the tri-state indicator surfaced to UI consumers.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusSyncing SyncStatus = "syncing"
	StatusOffline SyncStatus = "offline"
)

const defaultFailThreshold = 3

// StatusTracker combines the in-flight mutation count with change feed
// health. The two are independent axes: subscription loss forces offline
// regardless of the counter, and the counter draining to zero only yields
// synced while the subscription is healthy.
type StatusTracker struct {
	mu        sync.Mutex
	inflight  int
	healthy   bool
	streak    int
	threshold int
	last      SyncStatus
	watchers  []func(SyncStatus)
}

// NewStatusTracker creates a tracker that also reports offline after
// failThreshold consecutive gateway failures. failThreshold <= 0 picks the
// default.
func NewStatusTracker(failThreshold int) *StatusTracker {
	if failThreshold <= 0 {
		failThreshold = defaultFailThreshold
	}
	return &StatusTracker{healthy: true, threshold: failThreshold, last: StatusSynced}
}

// MutationStarted records a gateway round trip entering flight.
func (t *StatusTracker) MutationStarted() {
	t.mu.Lock()
	t.inflight++
	t.recomputeLocked()
}

// MutationFinished records a completed round trip. A non-nil err extends the
// consecutive-failure streak; success resets it.
func (t *StatusTracker) MutationFinished(err error) {
	t.mu.Lock()
	if t.inflight > 0 {
		t.inflight--
	}
	if err != nil {
		t.streak++
	} else {
		t.streak = 0
	}
	t.recomputeLocked()
}

// SetHealthy reports change feed connectivity.
func (t *StatusTracker) SetHealthy(ok bool) {
	t.mu.Lock()
	t.healthy = ok
	t.recomputeLocked()
}

func (t *StatusTracker) Status() SyncStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusLocked()
}

// HasInflight reports whether any mutation round trip is outstanding.
func (t *StatusTracker) HasInflight() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inflight > 0
}

// OnChange registers fn to run on every status transition. fn is invoked
// outside the tracker lock.
func (t *StatusTracker) OnChange(fn func(SyncStatus)) {
	t.mu.Lock()
	t.watchers = append(t.watchers, fn)
	t.mu.Unlock()
}

func (t *StatusTracker) statusLocked() SyncStatus {
	if !t.healthy || t.streak >= t.threshold {
		return StatusOffline
	}
	if t.inflight > 0 {
		return StatusSyncing
	}
	return StatusSynced
}

// recomputeLocked releases the lock and notifies watchers when the status
// changed. Callers must hold the lock.
func (t *StatusTracker) recomputeLocked() {
	next := t.statusLocked()
	if next == t.last {
		t.mu.Unlock()
		return
	}
	t.last = next
	watchers := make([]func(SyncStatus), len(t.watchers))
	copy(watchers, t.watchers)
	t.mu.Unlock()
	for _, fn := range watchers {
		fn(next)
	}
}
