package domain

// EventType names a change to the task board.
type EventType string

const (
	TaskCreated    EventType = "task-created"
	TaskUpdated    EventType = "task-updated"
	TaskDeleted    EventType = "task-deleted"
	TaskCompleted  EventType = "task-completed"
	TaskReopened   EventType = "task-reopened"
	TasksReordered EventType = "tasks-reordered"
)

// TaskEvent is published after every successful write.
type TaskEvent struct {
	ID     string    `json:"id"`
	Type   EventType `json:"type"`
	TaskID int64     `json:"taskId,omitempty"`
	Task   *Task     `json:"task,omitempty"`
	Time   int64     `json:"time"`
}
