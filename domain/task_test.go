package domain

import "testing"

func floatPtr(v float64) *float64 { return &v }

func strPtr(v string) *string { return &v }

func lanePtr(l Lane) *Lane { return &l }

func TestTaskValidate(t *testing.T) {
	cases := []struct {
		name string
		task Task
		want error
	}{
		{"valid", Task{Title: "dishes", Lane: LaneTodo}, nil},
		{"empty title", Task{Title: "  ", Lane: LaneTodo}, ErrEmptyTitle},
		{"bad lane", Task{Title: "dishes", Lane: "LIMBO"}, ErrInvalidLane},
		{"negative reward", Task{Title: "dishes", Lane: LaneTodo, Reward: floatPtr(-1)}, ErrNegativeReward},
		{"zero reward ok", Task{Title: "dishes", Lane: LaneTodo, Reward: floatPtr(0)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.task.Validate(); err != tc.want {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestProvisionalID(t *testing.T) {
	id := ProvisionalID()
	if !IsProvisionalID(id) {
		t.Fatalf("expected %q to be provisional", id)
	}
	if IsProvisionalID("a1b2c3") {
		t.Fatal("server id flagged as provisional")
	}
	if other := ProvisionalID(); other == id {
		t.Fatal("provisional ids must be unique")
	}
}

func TestMovedToIdeasClearsAssignee(t *testing.T) {
	task := Task{ID: "1", Title: "dishes", Lane: LaneTodo, Assignee: "kid-1"}
	moved := task.MovedTo(LaneIdeas)
	if moved.Lane != LaneIdeas {
		t.Fatalf("lane = %s, want %s", moved.Lane, LaneIdeas)
	}
	if moved.Assignee != "" {
		t.Fatalf("assignee = %q, want empty", moved.Assignee)
	}
	if moved = task.MovedTo(LaneDone); moved.Assignee != "kid-1" {
		t.Fatal("moving to DONE must keep the assignee")
	}
}

func TestReassignedToPromotesIdeas(t *testing.T) {
	task := Task{ID: "1", Title: "dishes", Lane: LaneIdeas}

	got := task.ReassignedTo("kid-1", "")
	if got.Lane != LaneTodo {
		t.Fatalf("lane = %s, want %s", got.Lane, LaneTodo)
	}
	if got.Assignee != "kid-1" {
		t.Fatalf("assignee = %q, want kid-1", got.Assignee)
	}

	// An explicit target lane wins over the promotion rule.
	got = task.ReassignedTo("kid-1", LaneDone)
	if got.Lane != LaneDone {
		t.Fatalf("lane = %s, want %s", got.Lane, LaneDone)
	}

	// Unassigning does not move the task.
	busy := Task{ID: "2", Title: "vacuum", Lane: LaneDone, Assignee: "kid-1"}
	got = busy.ReassignedTo("", "")
	if got.Lane != LaneDone || got.Assignee != "" {
		t.Fatalf("got lane=%s assignee=%q, want DONE and empty", got.Lane, got.Assignee)
	}
}

func TestReassignedToIdeasTarget(t *testing.T) {
	task := Task{ID: "1", Title: "dishes", Lane: LaneTodo, Assignee: "kid-1"}
	got := task.ReassignedTo("kid-2", LaneIdeas)
	if got.Lane != LaneIdeas {
		t.Fatalf("lane = %s, want %s", got.Lane, LaneIdeas)
	}
	if got.Assignee != "" {
		t.Fatal("a task in IDEAS can never carry an assignee")
	}
}

func TestTaskPatchValidate(t *testing.T) {
	if err := (TaskPatch{Title: strPtr(" ")}).Validate(); err != ErrEmptyTitle {
		t.Fatalf("err = %v, want %v", err, ErrEmptyTitle)
	}
	if err := (TaskPatch{Lane: lanePtr("NOPE")}).Validate(); err != ErrInvalidLane {
		t.Fatalf("err = %v, want %v", err, ErrInvalidLane)
	}
	if err := (TaskPatch{Reward: floatPtr(-0.5)}).Validate(); err != ErrNegativeReward {
		t.Fatalf("err = %v, want %v", err, ErrNegativeReward)
	}
	if err := (TaskPatch{}).Validate(); err != nil {
		t.Fatalf("empty patch should validate, got %v", err)
	}
}

func TestTaskPatchApplyKeepsLaneCoupling(t *testing.T) {
	task := Task{ID: "1", Title: "dishes", Lane: LaneTodo, Assignee: "kid-1"}

	got := TaskPatch{Lane: lanePtr(LaneIdeas)}.Apply(task)
	if got.Assignee != "" {
		t.Fatal("patching into IDEAS must drop the assignee")
	}

	idea := Task{ID: "2", Title: "vacuum", Lane: LaneIdeas}
	got = TaskPatch{Assignee: strPtr("kid-2")}.Apply(idea)
	if got.Lane != LaneTodo || got.Assignee != "kid-2" {
		t.Fatalf("got lane=%s assignee=%q, want TODO and kid-2", got.Lane, got.Assignee)
	}

	got = TaskPatch{Assignee: strPtr("kid-2"), Lane: lanePtr(LaneDone)}.Apply(idea)
	if got.Lane != LaneDone {
		t.Fatalf("explicit lane in patch ignored, got %s", got.Lane)
	}

	got = TaskPatch{Title: strPtr("mop"), Reward: floatPtr(2)}.Apply(task)
	if got.Title != "mop" || got.Reward == nil || *got.Reward != 2 {
		t.Fatalf("field patch not applied: %+v", got)
	}
	if got.Lane != LaneTodo || got.Assignee != "kid-1" {
		t.Fatal("field-only patch must not touch lane or assignee")
	}
}
