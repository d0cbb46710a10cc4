package engine

import "time"

// originSet remembers which entity ids this client mutated recently so the
// matching change feed echo can be suppressed. Entries are consumed by the
// suppression path or expire after a short TTL; without the TTL a missing
// echo would permanently swallow a later legitimate remote change.
type originSet struct {
	ttl     time.Duration
	entries map[string]time.Time
	now     func() time.Time
}

func newOriginSet(ttl time.Duration) *originSet {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &originSet{
		ttl:     ttl,
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Add marks id as locally mutated, refreshing any existing entry.
func (o *originSet) Add(id string) {
	o.prune()
	o.entries[id] = o.now().Add(o.ttl)
}

// Has reports whether id has an unexpired entry.
func (o *originSet) Has(id string) bool {
	deadline, ok := o.entries[id]
	if !ok {
		return false
	}
	if o.now().After(deadline) {
		delete(o.entries, id)
		return false
	}
	return true
}

// Take consumes the entry for id, reporting whether one was present.
func (o *originSet) Take(id string) bool {
	if !o.Has(id) {
		return false
	}
	delete(o.entries, id)
	return true
}

func (o *originSet) Len() int {
	o.prune()
	return len(o.entries)
}

func (o *originSet) prune() {
	now := o.now()
	for id, deadline := range o.entries {
		if now.After(deadline) {
			delete(o.entries, id)
		}
	}
}
