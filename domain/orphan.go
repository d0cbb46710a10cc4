package domain

// OrphanedTasks returns the tasks whose assignee references a member id not
// present in members. Pure query; issuing the repair command is left to the
// consumer.
func OrphanedTasks(tasks []Task, members []Member) []Task {
	known := make(map[string]struct{}, len(members))
	for _, m := range members {
		known[m.ID] = struct{}{}
	}
	var orphaned []Task
	for _, t := range tasks {
		if t.Assignee == "" {
			continue
		}
		if _, ok := known[t.Assignee]; !ok {
			orphaned = append(orphaned, t)
		}
	}
	return orphaned
}

// RepairedOrphan returns the corrective state for an orphaned task: back to
// IDEAS with no assignee.
func RepairedOrphan(t Task) Task {
	return t.ReassignedTo("", LaneIdeas)
}
