package engine

import (
	"context"
	"errors"

	"github.com/bytedance/sonic"

	"choreboard/domain"
)

var (
	ErrUnknownCommand = errors.New("unknown command kind")
	ErrMissingEntity  = errors.New("command requires an entity id")
)

// DispatchResult carries the optimistic entity a create command produced.
type DispatchResult struct {
	Task   *domain.Task   `json:"task,omitempty"`
	Member *domain.Member `json:"member,omitempty"`
}

// Dispatch routes one decoded command to the matching board operation. It
// does not check session permissions; that is the serving layer's job via
// SessionMode.Allows.
func (b *Board) Dispatch(ctx context.Context, cmd domain.Command) (DispatchResult, error) {
	switch cmd.Kind {
	case domain.CommandCreateTask:
		var data domain.CreateTaskData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return DispatchResult{}, err
		}
		task, err := b.CreateTask(ctx, data)
		if err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{Task: &task}, nil
	case domain.CommandUpdateTask:
		if cmd.EntityID == "" {
			return DispatchResult{}, ErrMissingEntity
		}
		var patch domain.TaskPatch
		if err := sonic.Unmarshal(cmd.Data, &patch); err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{}, b.UpdateTask(ctx, cmd.EntityID, patch)
	case domain.CommandMoveTask:
		if cmd.EntityID == "" {
			return DispatchResult{}, ErrMissingEntity
		}
		var data domain.MoveTaskData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{}, b.MoveTask(ctx, cmd.EntityID, data.Lane)
	case domain.CommandReassignTask:
		if cmd.EntityID == "" {
			return DispatchResult{}, ErrMissingEntity
		}
		var data domain.ReassignTaskData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{}, b.ReassignTask(ctx, cmd.EntityID, data.MemberID, data.Lane)
	case domain.CommandDeleteTask:
		if cmd.EntityID == "" {
			return DispatchResult{}, ErrMissingEntity
		}
		return DispatchResult{}, b.DeleteTask(ctx, cmd.EntityID)
	case domain.CommandAddMember:
		var data domain.AddMemberData
		if err := sonic.Unmarshal(cmd.Data, &data); err != nil {
			return DispatchResult{}, err
		}
		member, err := b.AddMember(ctx, data)
		if err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{Member: &member}, nil
	case domain.CommandUpdateMember:
		if cmd.EntityID == "" {
			return DispatchResult{}, ErrMissingEntity
		}
		var patch domain.MemberPatch
		if err := sonic.Unmarshal(cmd.Data, &patch); err != nil {
			return DispatchResult{}, err
		}
		return DispatchResult{}, b.UpdateMember(ctx, cmd.EntityID, patch)
	case domain.CommandDeleteMember:
		if cmd.EntityID == "" {
			return DispatchResult{}, ErrMissingEntity
		}
		return DispatchResult{}, b.DeleteMember(ctx, cmd.EntityID)
	}
	return DispatchResult{}, ErrUnknownCommand
}
