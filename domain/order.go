package domain

import "slices"

// CompareTasks orders tasks for the board: open tasks before completed ones,
// then higher priority, then earlier due date (tasks with a due date first),
// then newest creation time. Creation time only breaks ties between tasks
// without a due date; equal due dates compare equal.
func CompareTasks(a, b Task) int {
	if a.Completed != b.Completed {
		if a.Completed {
			return 1
		}
		return -1
	}

	if ar, br := a.Priority.Rank(), b.Priority.Rank(); ar != br {
		return br - ar
	}

	switch {
	case a.DueDate != nil && b.DueDate != nil:
		return a.DueDate.Compare(*b.DueDate)
	case a.DueDate != nil:
		return -1
	case b.DueDate != nil:
		return 1
	}

	ac, bc := a.Created(), b.Created()
	if ac != nil && bc != nil {
		return bc.Compare(*ac)
	}
	return 0
}

// SortTasks returns a board-ordered copy of tasks.
func SortTasks(tasks []Task) []Task {
	out := slices.Clone(tasks)
	slices.SortStableFunc(out, CompareTasks)
	return out
}
