package engine

import "choreboard/domain"

// Action is the reconciliation verdict for one incoming change event.
type Action int

const (
	// ActionIgnore drops the event without touching the collection.
	ActionIgnore Action = iota
	// ActionSuppress drops the event and consumes its local-origin entry:
	// the event is the server echoing a mutation this client already
	// applied optimistically.
	ActionSuppress
	// ActionInsert adds the event's row to the collection.
	ActionInsert
	// ActionReplace overwrites the non-identifier fields of the existing
	// entity with the event's row.
	ActionReplace
	// ActionRemove deletes the entity from the collection.
	ActionRemove
)

func (a Action) String() string {
	switch a {
	case ActionSuppress:
		return "suppress"
	case ActionInsert:
		return "insert"
	case ActionReplace:
		return "replace"
	case ActionRemove:
		return "remove"
	}
	return "ignore"
}

// Decide is the reconciliation policy. It is pure: given whether the event's
// id is in the local-origin set and whether the entity exists locally, it
// returns the action to take.
//
// The rules, in order:
//  1. local origin: the event is this client's own echo, suppress it.
//  2. INSERT for an existing id: idempotent no-op.
//  3. UPDATE for an unknown id: treat as INSERT so state converges even if
//     the original INSERT event was missed.
//  4. DELETE for an unknown id: no-op.
//  5. otherwise apply the event; the server's row wins wholesale, there is
//     no field-level merge.
func Decide(kind domain.ChangeKind, localOrigin, exists bool) Action {
	if localOrigin {
		return ActionSuppress
	}
	switch kind {
	case domain.ChangeInsert:
		if exists {
			return ActionIgnore
		}
		return ActionInsert
	case domain.ChangeUpdate:
		if exists {
			return ActionReplace
		}
		return ActionInsert
	case domain.ChangeDelete:
		if exists {
			return ActionRemove
		}
		return ActionIgnore
	}
	return ActionIgnore
}
