package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Lane is one of the three board columns a task can live in.
type Lane string

const (
	LaneIdeas Lane = "IDEAS"
	LaneTodo  Lane = "TODO"
	LaneDone  Lane = "DONE"
)

func (l Lane) Valid() bool {
	switch l {
	case LaneIdeas, LaneTodo, LaneDone:
		return true
	}
	return false
}

// provisionalPrefix marks ids minted locally before the server assigns one.
const provisionalPrefix = "tmp-"

// ProvisionalID returns a locally generated entity id. Provisional ids never
// collide with server-assigned ids because of the prefix.
func ProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

func IsProvisionalID(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}

// Task represents a single chore on the board.
type Task struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Icon      string   `json:"icon,omitempty"`
	Reward    *float64 `json:"reward,omitempty"`
	Lane      Lane     `json:"lane"`
	Assignee  string   `json:"assignee,omitempty"`
	CreatedAt int64    `json:"createdAt"`
}

func (t Task) EntityID() string { return t.ID }

func (t Task) WithEntityID(id string) Task {
	t.ID = id
	return t
}

var (
	ErrEmptyTitle     = errors.New("task title is required")
	ErrInvalidLane    = errors.New("invalid lane")
	ErrNegativeReward = errors.New("task reward must not be negative")
)

func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if !t.Lane.Valid() {
		return ErrInvalidLane
	}
	if t.Reward != nil && *t.Reward < 0 {
		return ErrNegativeReward
	}
	return nil
}

// MovedTo returns the task placed in the given lane. Moving into IDEAS
// always clears the assignee: lane == IDEAS implies no assignee.
func (t Task) MovedTo(lane Lane) Task {
	t.Lane = lane
	if lane == LaneIdeas {
		t.Assignee = ""
	}
	return t
}

// ReassignedTo returns the task assigned to memberID. An empty memberID
// unassigns the task. When no target lane is given and the task sits in
// IDEAS, assigning someone promotes it to TODO.
func (t Task) ReassignedTo(memberID string, target Lane) Task {
	t.Assignee = memberID
	lane := target
	if lane == "" {
		lane = t.Lane
		if memberID != "" && lane == LaneIdeas {
			lane = LaneTodo
		}
	}
	return t.MovedTo(lane)
}

// TaskPatch carries the optional fields of a task update. Nil fields are
// left untouched.
type TaskPatch struct {
	Title    *string  `json:"title,omitempty"`
	Icon     *string  `json:"icon,omitempty"`
	Reward   *float64 `json:"reward,omitempty"`
	Lane     *Lane    `json:"lane,omitempty"`
	Assignee *string  `json:"assignee,omitempty"`
}

func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrEmptyTitle
	}
	if p.Lane != nil && !p.Lane.Valid() {
		return ErrInvalidLane
	}
	if p.Reward != nil && *p.Reward < 0 {
		return ErrNegativeReward
	}
	return nil
}

// Apply merges the patch into the task, keeping the lane/assignee coupling
// intact: a patch landing the task in IDEAS drops the assignee, and a patch
// assigning someone while the task sits in IDEAS promotes it to TODO unless
// the patch names a lane itself.
func (p TaskPatch) Apply(t Task) Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Icon != nil {
		t.Icon = *p.Icon
	}
	if p.Reward != nil {
		t.Reward = p.Reward
	}
	if p.Assignee != nil {
		lane := Lane("")
		if p.Lane != nil {
			lane = *p.Lane
		}
		return t.ReassignedTo(*p.Assignee, lane)
	}
	if p.Lane != nil {
		return t.MovedTo(*p.Lane)
	}
	return t
}
