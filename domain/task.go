package domain

import (
	"bytes"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// Rank orders priorities for sorting. Unknown values rank with Low.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}

// Status is the workflow state shown on the task form.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusOnHold     Status = "on-hold"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusOnHold, StatusCompleted:
		return true
	}
	return false
}

// Defaults applied to new tasks.
const (
	DefaultCategory = "Work"
	DefaultPriority = PriorityMedium
	DefaultStatus   = StatusPending
	DefaultOrder    = 1
)

// Task represents a single board item.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category"`
	Subcategory string     `json:"subcategory,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Order       int        `json:"order"`
	Tags        string     `json:"tags,omitempty"`
	CreatedOn   *time.Time `json:"createdOn,omitempty"`
	ModifiedOn  *time.Time `json:"modifiedOn,omitempty"`
}

// Created returns the creation time, falling back to the platform timestamp.
func (t Task) Created() *time.Time {
	if t.CreatedAt != nil {
		return t.CreatedAt
	}
	return t.CreatedOn
}

// TaskInput carries the fields of the task form for creation.
type TaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Priority    Priority `json:"priority"`
	Status      Status   `json:"status"`
	Completed   bool     `json:"completed"`
	DueDate     string   `json:"dueDate"`
	Order       int      `json:"order"`
}

// Validate checks the form and returns the parsed due date.
func (in TaskInput) Validate() (*time.Time, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, ErrTitleRequired
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return nil, ErrInvalidPriority
	}
	if in.Status != "" && !in.Status.Valid() {
		return nil, ErrInvalidStatus
	}
	return ParseDueDate(in.DueDate)
}

// TaskPatch carries a partial update. Nil fields are left untouched; an
// empty DueDate clears the due date, and so does "dueDate": null in JSON.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Subcategory *string   `json:"subcategory,omitempty"`
	Priority    *Priority `json:"priority,omitempty"`
	Status      *Status   `json:"status,omitempty"`
	Completed   *bool     `json:"completed,omitempty"`
	DueDate     *string   `json:"dueDate,omitempty"`
	Order       *int      `json:"order,omitempty"`
}

// UnmarshalJSON decodes a patch, rejecting unknown fields. An explicit null
// due date becomes an empty one so it clears the stored date.
func (p *TaskPatch) UnmarshalJSON(data []byte) error {
	type patchFields TaskPatch
	var fields patchFields
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	*p = TaskPatch(fields)
	if p.DueDate != nil {
		return nil
	}
	var present map[string]any
	if err := sonic.Unmarshal(data, &present); err != nil {
		return err
	}
	for k, v := range present {
		if strings.EqualFold(k, "dueDate") && v == nil {
			cleared := ""
			p.DueDate = &cleared
		}
	}
	return nil
}

// Validate checks the supplied fields of the patch.
func (p TaskPatch) Validate() error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ErrTitleRequired
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return ErrInvalidPriority
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.DueDate != nil {
		if _, err := ParseDueDate(*p.DueDate); err != nil {
			return err
		}
	}
	return nil
}

// Normalize marks the task completed when its status is set to completed.
func (p *TaskPatch) Normalize() {
	if p.Status != nil && *p.Status == StatusCompleted {
		done := true
		p.Completed = &done
	}
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Subcategory == nil &&
		p.Priority == nil && p.Status == nil && p.Completed == nil && p.DueDate == nil && p.Order == nil
}

// dueDateLayouts lists accepted due date formats: RFC 3339 and the
// datetime-local value submitted by the task form.
var dueDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDueDate parses a due date. An empty string yields nil.
func ParseDueDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, ErrInvalidDueDate
}
