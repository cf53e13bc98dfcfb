// Package service maps board operations onto record store calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"taskboard/domain"
	"taskboard/records"
)

// Publisher receives task events after successful writes.
type Publisher interface {
	Publish(ctx context.Context, ev domain.TaskEvent) error
}

// TaskService reads and writes tasks in the record store.
type TaskService struct {
	store  records.Store
	events Publisher
	now    func() time.Time
}

// NewTaskService creates a TaskService. events may be nil.
func NewTaskService(store records.Store, events Publisher) *TaskService {
	return &TaskService{store: store, events: events, now: time.Now}
}

func logFailure(err error, collection, op string) {
	entry := log.WithError(err).WithFields(log.Fields{"collection": collection, "op": op})
	var be *records.BatchError
	if errors.As(err, &be) {
		for _, r := range be.Failed {
			entry.WithFields(log.Fields{"record_message": r.Message, "field_errors": len(r.Errors)}).Error("record write failed")
		}
		return
	}
	entry.Error("record store call failed")
}

// GetAll returns every task, newest first.
func (s *TaskService) GetAll(ctx context.Context) ([]domain.Task, error) {
	recs, err := s.store.FetchRecords(ctx, TaskCollection, records.Query{
		Fields:     records.Fields(taskFields...),
		OrderBy:    []records.OrderBy{{FieldName: records.FieldID, SortType: records.Desc}},
		PagingInfo: &records.PagingInfo{Limit: records.MaxLimit, Offset: 0},
	})
	if err != nil {
		logFailure(err, TaskCollection, "fetch")
		return nil, err
	}
	return tasksFromRecords(recs), nil
}

func (s *TaskService) GetByID(ctx context.Context, id int64) (domain.Task, error) {
	rec, err := s.store.GetRecordByID(ctx, TaskCollection, id, records.Query{Fields: records.Fields(taskFields...)})
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		logFailure(err, TaskCollection, "get")
		return domain.Task{}, err
	}
	return taskFromRecord(rec), nil
}

// Create validates in, applies defaults and stores the new task.
func (s *TaskService) Create(ctx context.Context, in domain.TaskInput) (domain.Task, error) {
	due, err := in.Validate()
	if err != nil {
		return domain.Task{}, err
	}
	results, err := s.store.CreateRecords(ctx, TaskCollection, []records.Record{newTaskRecord(in, due, s.now())})
	if err != nil {
		logFailure(err, TaskCollection, "create")
		return domain.Task{}, err
	}
	task, err := s.single("create", results)
	if err != nil {
		return domain.Task{}, err
	}
	s.publish(ctx, domain.TaskCreated, task.ID, &task)
	return task, nil
}

// Update sends only the fields set in p.
func (s *TaskService) Update(ctx context.Context, id int64, p domain.TaskPatch) (domain.Task, error) {
	if err := p.Validate(); err != nil {
		return domain.Task{}, err
	}
	p.Normalize()
	if p.Empty() {
		return s.GetByID(ctx, id)
	}
	task, err := s.update(ctx, id, p)
	if err != nil {
		return domain.Task{}, err
	}
	s.publish(ctx, domain.TaskUpdated, task.ID, &task)
	return task, nil
}

func (s *TaskService) update(ctx context.Context, id int64, p domain.TaskPatch) (domain.Task, error) {
	results, err := s.store.UpdateRecords(ctx, TaskCollection, []records.Record{patchRecord(id, p)})
	if err != nil {
		logFailure(err, TaskCollection, "update")
		return domain.Task{}, err
	}
	return s.single("update", results)
}

func (s *TaskService) Delete(ctx context.Context, id int64) error {
	results, err := s.store.DeleteRecords(ctx, TaskCollection, []int64{id})
	if err != nil {
		logFailure(err, TaskCollection, "delete")
		return err
	}
	if _, err := records.Split("delete", TaskCollection, results); err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return domain.ErrTaskNotFound
		}
		logFailure(err, TaskCollection, "delete")
		return err
	}
	if len(results) == 0 {
		return fmt.Errorf("delete task %d: no result returned", id)
	}
	s.publish(ctx, domain.TaskDeleted, id, nil)
	return nil
}

// ToggleComplete flips the completed flag of an existing task.
func (s *TaskService) ToggleComplete(ctx context.Context, id int64) (domain.Task, error) {
	cur, err := s.GetByID(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	done := !cur.Completed
	task, err := s.update(ctx, id, domain.TaskPatch{Completed: &done})
	if err != nil {
		return domain.Task{}, err
	}
	evType := domain.TaskReopened
	if task.Completed {
		evType = domain.TaskCompleted
	}
	s.publish(ctx, evType, task.ID, &task)
	return task, nil
}

// Reorder assigns order 1..n following ids. Tasks that were updated are
// returned even when some records failed; the error then lists the failures.
func (s *TaskService) Reorder(ctx context.Context, ids []int64) ([]domain.Task, error) {
	if len(ids) == 0 {
		return []domain.Task{}, nil
	}
	recs := make([]records.Record, len(ids))
	for i, id := range ids {
		recs[i] = records.Record{records.FieldID: id, fieldOrder: i + 1}
	}
	results, err := s.store.UpdateRecords(ctx, TaskCollection, recs)
	if err != nil {
		logFailure(err, TaskCollection, "reorder")
		return nil, err
	}
	ok, err := records.Split("reorder", TaskCollection, results)
	if err != nil {
		logFailure(err, TaskCollection, "reorder")
	}
	tasks := tasksFromRecords(ok)
	if len(tasks) > 0 {
		s.publish(ctx, domain.TasksReordered, 0, nil)
	}
	return tasks, err
}

// single unwraps a one-record write.
func (s *TaskService) single(op string, results []records.Result) (domain.Task, error) {
	ok, err := records.Split(op, TaskCollection, results)
	if err != nil {
		if errors.Is(err, records.ErrNotFound) {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		logFailure(err, TaskCollection, op)
		return domain.Task{}, err
	}
	if len(ok) == 0 {
		return domain.Task{}, fmt.Errorf("%s task: no result returned", op)
	}
	return taskFromRecord(ok[0]), nil
}

func (s *TaskService) publish(ctx context.Context, typ domain.EventType, taskID int64, task *domain.Task) {
	if s.events == nil {
		return
	}
	ev := domain.TaskEvent{
		ID:     uuid.NewString(),
		Type:   typ,
		TaskID: taskID,
		Task:   task,
		Time:   s.now().UnixMilli(),
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		log.WithError(err).WithFields(log.Fields{"event": typ, "task": taskID}).Warn("publish task event failed")
	}
}
