package domain

import "testing"

func TestSessionModeAllows(t *testing.T) {
	all := []CommandKind{
		CommandCreateTask, CommandUpdateTask, CommandMoveTask, CommandReassignTask,
		CommandDeleteTask, CommandAddMember, CommandUpdateMember, CommandDeleteMember,
	}
	for _, kind := range all {
		if !SessionFull.Allows(kind) {
			t.Fatalf("full session must allow %s", kind)
		}
	}

	shareAllowed := map[CommandKind]bool{
		CommandMoveTask:     true,
		CommandReassignTask: true,
	}
	for _, kind := range all {
		if got := SessionShare.Allows(kind); got != shareAllowed[kind] {
			t.Fatalf("share session Allows(%s) = %v, want %v", kind, got, shareAllowed[kind])
		}
	}

	if SessionFull.Allows("rm-rf") {
		t.Fatal("unknown command kinds must never be allowed")
	}
	if SessionMode("guest").Allows(CommandMoveTask) {
		t.Fatal("unknown session modes must never be allowed")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	inner := ErrEmptyTitle
	err := NewError(KindMutation, "tasks.create", inner)
	if kind, ok := KindOf(err); !ok || kind != KindMutation {
		t.Fatalf("KindOf = %v/%v", kind, ok)
	}
	if IsNotFound(err) {
		t.Fatal("mutation error reported as not found")
	}
	nf := NewError(KindNotFound, "tasks.update", errUnknown("x"))
	if !IsNotFound(nf) {
		t.Fatal("not-found error not detected")
	}
	if kind, ok := KindOf(inner); ok {
		t.Fatalf("bare error must carry no kind, got %v", kind)
	}
}

type errUnknown string

func (e errUnknown) Error() string { return string(e) }
