package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"choreboard/domain"
)

// Memory is the in-memory reference Gateway used by tests and local runs.
// It mimics the hosted backend: ids are assigned on insert and a Notifier,
// when present, is fed after every successful write.
type Memory[E domain.Entity[E]] struct {
	entityType string
	notifier   Notifier

	mu     sync.Mutex
	rows   map[string]map[string]E
	order  map[string][]string
	broken error
}

func NewMemory[E domain.Entity[E]](entityType string, notifier Notifier) *Memory[E] {
	return &Memory[E]{
		entityType: entityType,
		notifier:   notifier,
		rows:       make(map[string]map[string]E),
		order:      make(map[string][]string),
	}
}

// Break makes every subsequent call fail with err until Break(nil).
func (m *Memory[E]) Break(err error) {
	m.mu.Lock()
	m.broken = err
	m.mu.Unlock()
}

var errRowNotFound = errors.New("row not found")

func (m *Memory[E]) FetchAll(ctx context.Context, scope string) ([]E, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.broken != nil {
		return nil, m.broken
	}
	out := make([]E, 0, len(m.order[scope]))
	for _, id := range m.order[scope] {
		out = append(out, m.rows[scope][id])
	}
	return out, nil
}

func (m *Memory[E]) Insert(ctx context.Context, scope string, draft E) (string, error) {
	m.mu.Lock()
	if m.broken != nil {
		err := m.broken
		m.mu.Unlock()
		return "", err
	}
	id := uuid.NewString()
	stored := draft.WithEntityID(id)
	if m.rows[scope] == nil {
		m.rows[scope] = make(map[string]E)
	}
	m.rows[scope][id] = stored
	m.order[scope] = append(m.order[scope], id)
	m.mu.Unlock()

	m.notify(ctx, scope, domain.ChangeInsert, id, stored)
	return id, nil
}

func (m *Memory[E]) Update(ctx context.Context, scope string, ent E) error {
	id := ent.EntityID()
	m.mu.Lock()
	if m.broken != nil {
		err := m.broken
		m.mu.Unlock()
		return err
	}
	if _, ok := m.rows[scope][id]; !ok {
		m.mu.Unlock()
		return errRowNotFound
	}
	m.rows[scope][id] = ent
	m.mu.Unlock()

	m.notify(ctx, scope, domain.ChangeUpdate, id, ent)
	return nil
}

func (m *Memory[E]) Delete(ctx context.Context, scope string, id string) error {
	m.mu.Lock()
	if m.broken != nil {
		err := m.broken
		m.mu.Unlock()
		return err
	}
	if _, ok := m.rows[scope][id]; !ok {
		m.mu.Unlock()
		// The hosted gateway tolerates a 404 and still notifies.
		m.notify(ctx, scope, domain.ChangeDelete, id, nil)
		return nil
	}
	delete(m.rows[scope], id)
	ids := m.order[scope]
	for i, existing := range ids {
		if existing == id {
			m.order[scope] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.notify(ctx, scope, domain.ChangeDelete, id, nil)
	return nil
}

func (m *Memory[E]) notify(ctx context.Context, scope string, kind domain.ChangeKind, id string, row any) {
	if m.notifier == nil {
		return
	}
	m.notifier.Notify(ctx, scope, m.entityType, kind, id, row)
}
