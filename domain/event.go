package domain

// Entity is satisfied by the board's entity types. WithEntityID returns a
// copy so id swaps never mutate shared values.
type Entity[E any] interface {
	EntityID() string
	WithEntityID(id string) E
}

// Entity type names used to scope change feed channels and storage tables.
const (
	EntityTasks   = "tasks"
	EntityMembers = "members"
)

// ChangeKind tags a change feed event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	ChangeUpdate ChangeKind = "UPDATE"
	ChangeDelete ChangeKind = "DELETE"
)

func (k ChangeKind) Valid() bool {
	switch k {
	case ChangeInsert, ChangeUpdate, ChangeDelete:
		return true
	}
	return false
}

// ChangeEvent is one normalized change feed notification. Row carries the
// full row payload for inserts and updates and is zero for deletes.
type ChangeEvent[E any] struct {
	Kind ChangeKind
	ID   string
	Row  E
}
