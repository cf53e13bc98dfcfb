package domain

import "errors"

var (
	// ErrTitleRequired is returned when a task is saved without a title.
	ErrTitleRequired   = errors.New("task title is required")
	ErrNameRequired    = errors.New("name is required")
	ErrInvalidDueDate  = errors.New("invalid due date")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrInvalidStatus   = errors.New("invalid status")
	// ErrTaskNotFound is returned by lookups that target a missing task.
	ErrTaskNotFound        = errors.New("task not found")
	ErrCategoryNotFound    = errors.New("category not found")
	ErrSubcategoryNotFound = errors.New("subcategory not found")
)
