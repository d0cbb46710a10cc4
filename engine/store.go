package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"choreboard/domain"
	"choreboard/storage"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultOriginTTL   = 5 * time.Second
)

// StoreConfig assembles one entity store for a scope.
type StoreConfig[E domain.Entity[E]] struct {
	Scope      string
	EntityType string
	Gateway    storage.Gateway[E]
	Logger     *log.Logger
	Tracker    *StatusTracker
	// OriginTTL bounds how long a local-origin entry may wait for its echo.
	OriginTTL time.Duration
	// CallTimeout caps each gateway round trip. Commands are not
	// cancellable once issued, so calls run on their own context.
	CallTimeout time.Duration
	// OnError receives every asynchronous mutation failure.
	OnError func(*domain.Error)
	// OnChange fires after every observable collection change.
	OnChange func()
}

type pendingMutation struct {
	seq  uint64
	id   string
	kind string
}

// Store holds the authoritative client-side view of one entity collection
// for a single scope and mediates every mutation through an
// optimistic-then-confirm protocol. All mutation entry points, including
// remote event application, serialize behind one mutex; gateway round trips
// run as independent goroutines whose completions re-enter that path.
type Store[E domain.Entity[E]] struct {
	scope       string
	entityType  string
	gw          storage.Gateway[E]
	logger      *log.Logger
	tracker     *StatusTracker
	callTimeout time.Duration
	onError     func(*domain.Error)
	onChange    func()

	mu      sync.Mutex
	items   map[string]E
	order   []string
	origin  *originSet
	pending map[uint64]pendingMutation
	seq     uint64
	loaded  bool
	closed  bool
}

func NewStore[E domain.Entity[E]](cfg StoreConfig[E]) *Store[E] {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewStatusTracker(0)
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.OriginTTL <= 0 {
		cfg.OriginTTL = defaultOriginTTL
	}
	return &Store[E]{
		scope:       cfg.Scope,
		entityType:  cfg.EntityType,
		gw:          cfg.Gateway,
		logger:      cfg.Logger,
		tracker:     cfg.Tracker,
		callTimeout: cfg.CallTimeout,
		onError:     cfg.OnError,
		onChange:    cfg.OnChange,
		items:       make(map[string]E),
		origin:      newOriginSet(cfg.OriginTTL),
		pending:     make(map[uint64]pendingMutation),
	}
}

// Load fetches the full collection for the scope. On failure the previous
// contents are kept and a fetch-kind error is returned so the caller can
// tell a failed load apart from a truly empty collection.
func (s *Store[E]) Load(ctx context.Context) error {
	s.tracker.MutationStarted()
	items, err := s.gw.FetchAll(ctx, s.scope)
	s.tracker.MutationFinished(err)
	if err != nil {
		return domain.NewError(domain.KindFetch, s.entityType+".load", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.items = make(map[string]E, len(items))
	s.order = s.order[:0]
	for _, item := range items {
		s.insertLocked(item)
	}
	s.loaded = true
	s.mu.Unlock()

	s.notify()
	return nil
}

// Loaded reports whether a bulk load has completed for this store.
func (s *Store[E]) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

// List returns the collection in stable order.
func (s *Store[E]) List() []E {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]E, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	return out
}

// Get returns the entity with the given id, if present.
func (s *Store[E]) Get(id string) (E, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	return item, ok
}

// Pending reports how many of this store's mutations are awaiting their
// gateway round trip.
func (s *Store[E]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Create inserts a provisional entity synchronously and returns it. The
// gateway insert runs in the background; on success the provisional id is
// atomically replaced by the server-assigned one, on failure the
// provisional entity is removed and the error reported.
func (s *Store[E]) Create(ctx context.Context, draft E) E {
	provisional := draft.WithEntityID(domain.ProvisionalID())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return provisional
	}
	s.insertLocked(provisional)
	seq := s.track(provisional.EntityID(), "create")
	s.mu.Unlock()

	s.tracker.MutationStarted()
	s.notify()
	go s.confirmCreate(seq, draft, provisional.EntityID())
	return provisional
}

func (s *Store[E]) confirmCreate(seq uint64, draft E, provisionalID string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	serverID, err := s.gw.Insert(ctx, s.scope, draft)

	s.mu.Lock()
	delete(s.pending, seq)
	if s.closed {
		s.mu.Unlock()
		s.tracker.MutationFinished(err)
		return
	}
	if err != nil {
		s.removeLocked(provisionalID)
		s.mu.Unlock()
		s.tracker.MutationFinished(err)
		s.report(domain.NewError(domain.KindMutation, s.entityType+".create", err))
		s.notify()
		return
	}
	if _, echoed := s.items[serverID]; echoed {
		// The feed delivered the insert before this confirmation; the
		// remote row already replaced the optimistic one, so the echo is
		// spent and the id must not enter the origin set.
		s.removeLocked(provisionalID)
	} else {
		s.swapIDLocked(provisionalID, serverID)
		s.origin.Add(serverID)
	}
	s.mu.Unlock()

	s.tracker.MutationFinished(nil)
	s.notify()
}

// Update applies patch to the entity synchronously and persists the result
// in the background. A missing id yields a not-found error and no other
// effect. A failed round trip is reported but the optimistic local state is
// kept; there is no automatic rollback.
func (s *Store[E]) Update(ctx context.Context, id string, patch func(E) E) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	current, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return domain.NewError(domain.KindNotFound, s.entityType+".update", errUnknownID(id))
	}
	next := patch(current).WithEntityID(id)
	s.items[id] = next
	s.origin.Add(id)
	seq := s.track(id, "update")
	s.mu.Unlock()

	s.tracker.MutationStarted()
	s.notify()
	go s.confirmUpdate(seq, next)
	return nil
}

func (s *Store[E]) confirmUpdate(seq uint64, ent E) {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	err := s.gw.Update(ctx, s.scope, ent)

	s.mu.Lock()
	delete(s.pending, seq)
	closed := s.closed
	s.mu.Unlock()

	s.tracker.MutationFinished(err)
	if err != nil && !closed {
		s.report(domain.NewError(domain.KindMutation, s.entityType+".update", err))
	}
}

// Delete removes the entity synchronously and persists the removal in the
// background. A failed round trip is reported; the entity is not
// re-inserted.
func (s *Store[E]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if _, ok := s.items[id]; !ok {
		s.mu.Unlock()
		return domain.NewError(domain.KindNotFound, s.entityType+".delete", errUnknownID(id))
	}
	s.removeLocked(id)
	s.origin.Add(id)
	seq := s.track(id, "delete")
	s.mu.Unlock()

	s.tracker.MutationStarted()
	s.notify()
	go s.confirmDelete(seq, id)
	return nil
}

func (s *Store[E]) confirmDelete(seq uint64, id string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.callTimeout)
	defer cancel()
	err := s.gw.Delete(ctx, s.scope, id)

	s.mu.Lock()
	delete(s.pending, seq)
	closed := s.closed
	s.mu.Unlock()

	s.tracker.MutationFinished(err)
	if err != nil && !closed {
		s.report(domain.NewError(domain.KindMutation, s.entityType+".delete", err))
	}
}

// ApplyRemote merges one normalized change feed event into the collection,
// routed through the reconciliation policy.
func (s *Store[E]) ApplyRemote(ev domain.ChangeEvent[E]) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	_, exists := s.items[ev.ID]
	action := Decide(ev.Kind, s.origin.Has(ev.ID), exists)
	changed := false
	switch action {
	case ActionSuppress:
		s.origin.Take(ev.ID)
	case ActionInsert:
		s.insertLocked(ev.Row.WithEntityID(ev.ID))
		changed = true
	case ActionReplace:
		s.items[ev.ID] = ev.Row.WithEntityID(ev.ID)
		changed = true
	case ActionRemove:
		s.removeLocked(ev.ID)
		changed = true
	}
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{
		"entity": s.entityType,
		"kind":   ev.Kind,
		"id":     ev.ID,
		"action": action.String(),
	}).Debug("change event reconciled")
	if changed {
		s.notify()
	}
}

// Close tears the store down. Completions of in-flight gateway calls become
// no-ops; the collection is dropped.
func (s *Store[E]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.items = make(map[string]E)
	s.order = nil
	s.mu.Unlock()
}

func (s *Store[E]) track(id, kind string) uint64 {
	s.seq++
	seq := s.seq
	s.pending[seq] = pendingMutation{seq: seq, id: id, kind: kind}
	return seq
}

func (s *Store[E]) insertLocked(item E) {
	id := item.EntityID()
	if _, ok := s.items[id]; !ok {
		s.order = append(s.order, id)
	}
	s.items[id] = item
}

func (s *Store[E]) removeLocked(id string) {
	if _, ok := s.items[id]; !ok {
		return
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// swapIDLocked replaces the provisional id with the server-assigned one in
// place, keeping the entity's position. The collection never holds both.
func (s *Store[E]) swapIDLocked(provisionalID, serverID string) {
	item, ok := s.items[provisionalID]
	if !ok {
		return
	}
	delete(s.items, provisionalID)
	s.items[serverID] = item.WithEntityID(serverID)
	for i, existing := range s.order {
		if existing == provisionalID {
			s.order[i] = serverID
			break
		}
	}
}

func (s *Store[E]) report(err *domain.Error) {
	s.logger.WithError(err).WithFields(log.Fields{"entity": s.entityType, "scope": s.scope}).Error("mutation failed")
	if s.onError != nil {
		s.onError(err)
	}
}

func (s *Store[E]) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

type errUnknownID string

func (e errUnknownID) Error() string { return "no entity with id " + string(e) }
