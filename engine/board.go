package engine

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"choreboard/domain"
	"choreboard/storage"
)

// BoardConfig assembles the board for one scope.
type BoardConfig struct {
	Scope         string
	Tasks         storage.Gateway[domain.Task]
	Members       storage.Gateway[domain.Member]
	Logger        *log.Logger
	OriginTTL     time.Duration
	CallTimeout   time.Duration
	FailThreshold int
	// OnError receives every asynchronous mutation failure from either
	// store.
	OnError func(*domain.Error)
}

// Board is the command-and-query surface for one scope's chore board: the
// task and member stores, their shared sync status, and the change
// broadcast consumers subscribe to.
type Board struct {
	scope   string
	tasks   *Store[domain.Task]
	members *Store[domain.Member]
	status  *StatusTracker

	mu         sync.Mutex
	feedHealth map[string]bool
	watchers   map[chan struct{}]struct{}
}

func NewBoard(cfg BoardConfig) *Board {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	b := &Board{
		scope:      cfg.Scope,
		status:     NewStatusTracker(cfg.FailThreshold),
		feedHealth: map[string]bool{domain.EntityTasks: true, domain.EntityMembers: true},
		watchers:   make(map[chan struct{}]struct{}),
	}
	b.tasks = NewStore(StoreConfig[domain.Task]{
		Scope:       cfg.Scope,
		EntityType:  domain.EntityTasks,
		Gateway:     cfg.Tasks,
		Logger:      cfg.Logger,
		Tracker:     b.status,
		OriginTTL:   cfg.OriginTTL,
		CallTimeout: cfg.CallTimeout,
		OnError:     cfg.OnError,
		OnChange:    b.notify,
	})
	b.members = NewStore(StoreConfig[domain.Member]{
		Scope:       cfg.Scope,
		EntityType:  domain.EntityMembers,
		Gateway:     cfg.Members,
		Logger:      cfg.Logger,
		Tracker:     b.status,
		OriginTTL:   cfg.OriginTTL,
		CallTimeout: cfg.CallTimeout,
		OnError:     cfg.OnError,
		OnChange:    b.notify,
	})
	b.status.OnChange(func(SyncStatus) { b.notify() })
	return b
}

func (b *Board) Scope() string { return b.scope }

// Tasks exposes the task store for feed wiring.
func (b *Board) Tasks() *Store[domain.Task] { return b.tasks }

// Members exposes the member store for feed wiring.
func (b *Board) Members() *Store[domain.Member] { return b.members }

// Load performs the bulk load of both collections for the scope.
func (b *Board) Load(ctx context.Context) error {
	if err := b.tasks.Load(ctx); err != nil {
		return err
	}
	return b.members.Load(ctx)
}

// CreateTask validates the draft and inserts it optimistically. The
// returned task carries a provisional id until the server confirms.
func (b *Board) CreateTask(ctx context.Context, data domain.CreateTaskData) (domain.Task, error) {
	draft := domain.Task{
		Title:     data.Title,
		Icon:      data.Icon,
		Reward:    data.Reward,
		Lane:      data.Lane,
		CreatedAt: time.Now().UnixMilli(),
	}
	if draft.Lane == "" {
		draft.Lane = domain.LaneIdeas
	}
	if err := draft.Validate(); err != nil {
		return domain.Task{}, err
	}
	return b.tasks.Create(ctx, draft), nil
}

func (b *Board) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return b.tasks.Update(ctx, id, patch.Apply)
}

// MoveTask places the task in the given lane. Moving into IDEAS clears the
// assignee.
func (b *Board) MoveTask(ctx context.Context, id string, lane domain.Lane) error {
	if !lane.Valid() {
		return domain.ErrInvalidLane
	}
	return b.tasks.Update(ctx, id, func(t domain.Task) domain.Task {
		return t.MovedTo(lane)
	})
}

// ReassignTask assigns the task to memberID, optionally moving it to
// target. Assigning a task sitting in IDEAS promotes it to TODO when no
// target is named.
func (b *Board) ReassignTask(ctx context.Context, id, memberID string, target domain.Lane) error {
	if target != "" && !target.Valid() {
		return domain.ErrInvalidLane
	}
	return b.tasks.Update(ctx, id, func(t domain.Task) domain.Task {
		return t.ReassignedTo(memberID, target)
	})
}

func (b *Board) DeleteTask(ctx context.Context, id string) error {
	return b.tasks.Delete(ctx, id)
}

func (b *Board) AddMember(ctx context.Context, data domain.AddMemberData) (domain.Member, error) {
	draft := domain.Member{
		Name:      data.Name,
		Avatar:    data.Avatar,
		Color:     data.Color,
		BirthDate: data.BirthDate,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := draft.Validate(); err != nil {
		return domain.Member{}, err
	}
	return b.members.Create(ctx, draft), nil
}

func (b *Board) UpdateMember(ctx context.Context, id string, patch domain.MemberPatch) error {
	if err := patch.Validate(); err != nil {
		return err
	}
	return b.members.Update(ctx, id, patch.Apply)
}

// DeleteMember removes the member. Tasks referencing the member are not
// cascaded; they become orphans reported by OrphanedTasks.
func (b *Board) DeleteMember(ctx context.Context, id string) error {
	return b.members.Delete(ctx, id)
}

func (b *Board) ListTasks() []domain.Task {
	return b.tasks.List()
}

// ListMembers returns the members ordered oldest-first by birth date.
func (b *Board) ListMembers() []domain.Member {
	members := b.members.List()
	domain.SortMembers(members)
	return members
}

// OrphanedTasks returns tasks assigned to members no longer on the board.
func (b *Board) OrphanedTasks() []domain.Task {
	return domain.OrphanedTasks(b.tasks.List(), b.members.List())
}

func (b *Board) Status() SyncStatus { return b.status.Status() }

func (b *Board) HasInflight() bool { return b.status.HasInflight() }

// SetFeedHealth records connectivity of one entity feed. The board is
// healthy only while every feed is.
func (b *Board) SetFeedHealth(entityType string, ok bool) {
	b.mu.Lock()
	b.feedHealth[entityType] = ok
	healthy := true
	for _, up := range b.feedHealth {
		healthy = healthy && up
	}
	b.mu.Unlock()
	b.status.SetHealthy(healthy)
}

// Watch returns a channel that receives a signal whenever the board's
// observable state changes, plus a function to unregister it. Signals
// coalesce; consumers re-read the board on each one.
func (b *Board) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	b.watchers[ch] = struct{}{}
	b.mu.Unlock()
	return ch, func() {
		b.mu.Lock()
		delete(b.watchers, ch)
		b.mu.Unlock()
	}
}

func (b *Board) notify() {
	b.mu.Lock()
	for ch := range b.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// Close tears both stores down. In-flight gateway completions become
// no-ops.
func (b *Board) Close() {
	b.tasks.Close()
	b.members.Close()
}
