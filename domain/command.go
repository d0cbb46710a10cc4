package domain

import "github.com/bytedance/sonic"

// SessionMode distinguishes a full member session from a restricted
// share-token session.
type SessionMode string

const (
	SessionFull  SessionMode = "full"
	SessionShare SessionMode = "share"
)

// CommandKind names every write operation the board accepts.
type CommandKind string

const (
	CommandCreateTask   CommandKind = "create-task"
	CommandUpdateTask   CommandKind = "update-task"
	CommandMoveTask     CommandKind = "move-task"
	CommandReassignTask CommandKind = "reassign-task"
	CommandDeleteTask   CommandKind = "delete-task"
	CommandAddMember    CommandKind = "add-member"
	CommandUpdateMember CommandKind = "update-member"
	CommandDeleteMember CommandKind = "delete-member"
)

func (k CommandKind) Valid() bool {
	switch k {
	case CommandCreateTask, CommandUpdateTask, CommandMoveTask, CommandReassignTask,
		CommandDeleteTask, CommandAddMember, CommandUpdateMember, CommandDeleteMember:
		return true
	}
	return false
}

// Allows reports whether the session mode may issue the command. Share-token
// sessions are limited to lane moves and reassignment; enforcing the check
// is the serving layer's job.
func (m SessionMode) Allows(k CommandKind) bool {
	if !k.Valid() {
		return false
	}
	if m == SessionShare {
		return k == CommandMoveTask || k == CommandReassignTask
	}
	return m == SessionFull
}

// Command represents one write request against a board.
type Command struct {
	// ID carries the idempotency key once the command is accepted.
	ID             string                 `json:"id,omitempty"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Kind           CommandKind            `json:"kind"`
	EntityID       string                 `json:"entityId,omitempty"`
	Data           sonic.NoCopyRawMessage `json:"data,omitempty"`
	Timestamp      int64                  `json:"timestamp"`
}

// CreateTaskData is the payload of a create-task command.
type CreateTaskData struct {
	Title  string   `json:"title"`
	Icon   string   `json:"icon,omitempty"`
	Reward *float64 `json:"reward,omitempty"`
	Lane   Lane     `json:"lane,omitempty"`
}

// MoveTaskData is the payload of a move-task command.
type MoveTaskData struct {
	Lane Lane `json:"lane"`
}

// ReassignTaskData is the payload of a reassign-task command. Lane is the
// optional explicit target lane.
type ReassignTaskData struct {
	MemberID string `json:"memberId"`
	Lane     Lane   `json:"lane,omitempty"`
}

// AddMemberData is the payload of an add-member command.
type AddMemberData struct {
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	Color     string `json:"color,omitempty"`
	BirthDate string `json:"birthDate,omitempty"`
}
