package domain

import (
	"strings"
	"time"
)

// FilterTasks narrows tasks to a category (or subcategory) name and a free
// text query. Both matches are case-insensitive; empty values match all.
func FilterTasks(tasks []Task, category, query string) []Task {
	category = strings.ToLower(strings.TrimSpace(category))
	query = strings.ToLower(strings.TrimSpace(query))

	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if category != "" &&
			strings.ToLower(t.Category) != category &&
			strings.ToLower(t.Subcategory) != category {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(t.Title), query) &&
			!strings.Contains(strings.ToLower(t.Description), query) &&
			!strings.Contains(strings.ToLower(t.Category), query) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// TaskStats summarizes the board header counters.
type TaskStats struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Today     int `json:"today"`
	Upcoming  int `json:"upcoming"`
	Urgent    int `json:"urgent"`
}

// ComputeStats counts the board relative to now. Urgent covers only the
// visible (filtered) tasks; the other counters cover all of them. Today
// compares calendar days in now's location.
func ComputeStats(all, visible []Task, now time.Time) TaskStats {
	stats := TaskStats{Total: len(all)}
	for _, t := range visible {
		if IsUrgent(t, now) {
			stats.Urgent++
		}
	}
	ny, nm, nd := now.Date()
	for _, t := range all {
		if t.Completed {
			stats.Completed++
		}
		if t.DueDate == nil {
			continue
		}
		due := t.DueDate.In(now.Location())
		if y, m, d := due.Date(); y == ny && m == nm && d == nd {
			stats.Today++
		}
		if due.After(now) && !t.Completed {
			stats.Upcoming++
		}
	}
	return stats
}

// IsUrgent reports whether a task is high priority or already due.
func IsUrgent(t Task, now time.Time) bool {
	if t.Priority == PriorityHigh {
		return true
	}
	return t.DueDate != nil && !t.DueDate.After(now)
}
