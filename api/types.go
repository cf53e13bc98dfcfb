package api

import (
	"context"

	"taskboard/domain"
)

// TaskService is the task surface the handlers need.
type TaskService interface {
	GetAll(ctx context.Context) ([]domain.Task, error)
	GetByID(ctx context.Context, id int64) (domain.Task, error)
	Create(ctx context.Context, in domain.TaskInput) (domain.Task, error)
	Update(ctx context.Context, id int64, p domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, id int64) error
	ToggleComplete(ctx context.Context, id int64) (domain.Task, error)
	Reorder(ctx context.Context, ids []int64) ([]domain.Task, error)
}

// CategoryService is the category surface the handlers need.
type CategoryService interface {
	GetAll(ctx context.Context) ([]domain.Category, error)
	GetByID(ctx context.Context, id string) (domain.Category, error)
	Subcategories(ctx context.Context, parent string) ([]domain.Subcategory, error)
	CreateSubcategory(ctx context.Context, in domain.SubcategoryInput) (domain.Subcategory, error)
	UpdateSubcategory(ctx context.Context, id int64, in domain.SubcategoryInput) (domain.Subcategory, error)
	DeleteSubcategory(ctx context.Context, id int64) error
}

type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper remembers Idempotency-Key values of task creations.
type Deduper interface {
	Reserve(ctx context.Context, userID, key string) (bool, error)
	Complete(ctx context.Context, userID, key string, taskID int64) error
	Lookup(ctx context.Context, userID, key string) (int64, bool, error)
	Remove(ctx context.Context, userID, key string) error
}

type boardResponse struct {
	Tasks  []domain.Task    `json:"tasks"`
	Stats  domain.TaskStats `json:"stats"`
	Notice string           `json:"notice,omitempty"`
}

type taskResponse struct {
	Task   domain.Task `json:"task"`
	Notice string      `json:"notice,omitempty"`
}

type reorderRequest struct {
	IDs []int64 `json:"ids"`
}

type reorderResponse struct {
	Tasks  []domain.Task `json:"tasks"`
	Failed []string      `json:"failed,omitempty"`
	Notice string        `json:"notice,omitempty"`
}

type describeResponse struct {
	Description string `json:"description"`
	Notice      string `json:"notice,omitempty"`
}

type categoriesResponse struct {
	Categories []domain.Category `json:"categories"`
	Notice     string            `json:"notice,omitempty"`
}

type subcategoriesResponse struct {
	Subcategories []domain.Subcategory `json:"subcategories"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Notice string `json:"notice,omitempty"`
}

// User-facing notices returned alongside responses.
const (
	noticeCreated     = "Task created successfully"
	noticeUpdated     = "Task updated successfully"
	noticeDeleted     = "Task deleted successfully"
	noticeReordered   = "Tasks reordered successfully"
	noticeDescribed   = "Description generated successfully!"
	noticeNeedTitle   = "Please enter a task title"
	noticeLoadFailed  = "Failed to load tasks. Please try again."
	noticeSaveFailed  = "Failed to save task"
	noticeToggleFail  = "Failed to update task"
	noticeDeleteFail  = "Failed to delete task"
	noticeReorderFail = "Failed to reorder tasks"
)
