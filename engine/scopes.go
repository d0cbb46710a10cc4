package engine

import (
	"context"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"choreboard/domain"
	"choreboard/storage"
)

// Feed delivers normalized change events for one entity type. Implemented
// by the feed package; faked in tests.
type Feed[E domain.Entity[E]] interface {
	Subscribe(scope string, onEvent func(domain.ChangeEvent[E]), onHealth func(bool)) (io.Closer, error)
}

// ManagerConfig wires the dependencies shared by every scope's board.
type ManagerConfig struct {
	Tasks         storage.Gateway[domain.Task]
	Members       storage.Gateway[domain.Member]
	TaskFeed      Feed[domain.Task]
	MemberFeed    Feed[domain.Member]
	Logger        *log.Logger
	OriginTTL     time.Duration
	CallTimeout   time.Duration
	FailThreshold int
	// TaskSnapshot and MemberSnapshot, when set, record the last-good
	// collections so consumers can fall back after a failed load.
	TaskSnapshot   *storage.Snapshot[domain.Task]
	MemberSnapshot *storage.Snapshot[domain.Member]
}

type activeScope struct {
	board *Board
	subs  []io.Closer
	quit  chan struct{}
}

// Manager activates one board per scope: bulk load, feed subscriptions,
// snapshot upkeep, teardown. A scope's board is built at most once and
// shared by every session on that scope.
type Manager struct {
	cfg ManagerConfig

	mu     sync.Mutex
	active map[string]*activeScope
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	return &Manager{cfg: cfg, active: make(map[string]*activeScope)}
}

// Board returns the active board for the scope, activating it on first use.
// Activation failure is not cached; the next call retries.
func (m *Manager) Board(ctx context.Context, scope string) (*Board, error) {
	m.mu.Lock()
	if as, ok := m.active[scope]; ok {
		m.mu.Unlock()
		return as.board, nil
	}
	m.mu.Unlock()

	board := NewBoard(BoardConfig{
		Scope:         scope,
		Tasks:         m.cfg.Tasks,
		Members:       m.cfg.Members,
		Logger:        m.cfg.Logger,
		OriginTTL:     m.cfg.OriginTTL,
		CallTimeout:   m.cfg.CallTimeout,
		FailThreshold: m.cfg.FailThreshold,
	})
	if err := board.Load(ctx); err != nil {
		board.Close()
		return nil, err
	}

	as := &activeScope{board: board, quit: make(chan struct{})}
	if m.cfg.TaskFeed != nil {
		sub, err := m.cfg.TaskFeed.Subscribe(scope,
			board.Tasks().ApplyRemote,
			func(ok bool) { board.SetFeedHealth(domain.EntityTasks, ok) })
		if err != nil {
			board.Close()
			return nil, domain.NewError(domain.KindSubscription, "tasks.subscribe", err)
		}
		as.subs = append(as.subs, sub)
	}
	if m.cfg.MemberFeed != nil {
		sub, err := m.cfg.MemberFeed.Subscribe(scope,
			board.Members().ApplyRemote,
			func(ok bool) { board.SetFeedHealth(domain.EntityMembers, ok) })
		if err != nil {
			as.close()
			board.Close()
			return nil, domain.NewError(domain.KindSubscription, "members.subscribe", err)
		}
		as.subs = append(as.subs, sub)
	}

	m.mu.Lock()
	if existing, ok := m.active[scope]; ok {
		// Lost the activation race; keep the winner.
		m.mu.Unlock()
		as.close()
		board.Close()
		return existing.board, nil
	}
	m.active[scope] = as
	m.mu.Unlock()

	m.snapshot(ctx, board)
	m.watchSnapshots(as)
	return board, nil
}

// Teardown deactivates the scope: the feed subscriptions are closed and the
// board's in-flight completions become no-ops.
func (m *Manager) Teardown(scope string) {
	m.mu.Lock()
	as, ok := m.active[scope]
	delete(m.active, scope)
	m.mu.Unlock()
	if !ok {
		return
	}
	as.close()
	as.board.Close()
}

// Close tears down every active scope.
func (m *Manager) Close() {
	m.mu.Lock()
	active := m.active
	m.active = make(map[string]*activeScope)
	m.mu.Unlock()
	for _, as := range active {
		as.close()
		as.board.Close()
	}
}

// Fallback returns the last-good snapshots for a scope whose load failed.
func (m *Manager) Fallback(ctx context.Context, scope string) ([]domain.Task, []domain.Member, bool) {
	tasks, okT := m.cfg.TaskSnapshot.Load(ctx, scope)
	members, okM := m.cfg.MemberSnapshot.Load(ctx, scope)
	return tasks, members, okT || okM
}

func (m *Manager) snapshot(ctx context.Context, board *Board) {
	m.cfg.TaskSnapshot.Store(ctx, board.Scope(), board.ListTasks())
	m.cfg.MemberSnapshot.Store(ctx, board.Scope(), board.ListMembers())
}

// watchSnapshots refreshes the scope's snapshots as the board changes.
func (m *Manager) watchSnapshots(as *activeScope) {
	if m.cfg.TaskSnapshot == nil && m.cfg.MemberSnapshot == nil {
		return
	}
	ch, unwatch := as.board.Watch()
	go func() {
		defer unwatch()
		for {
			select {
			case <-as.quit:
				return
			case <-ch:
				m.snapshot(context.Background(), as.board)
			}
		}
	}()
}

func (as *activeScope) close() {
	close(as.quit)
	for _, sub := range as.subs {
		_ = sub.Close()
	}
}
