package records

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps collections in process memory. It backs local runs and
// tests.
type MemoryStore struct {
	mu     sync.Mutex
	nextID map[string]int64
	data   map[string]map[int64]Record
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: make(map[string]int64),
		data:   make(map[string]map[int64]Record),
		now:    time.Now,
	}
}

func (m *MemoryStore) FetchRecords(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	recs := make([]Record, 0, len(m.data[collection]))
	for _, r := range m.data[collection] {
		recs = append(recs, r.Clone())
	}
	m.mu.Unlock()

	// Map iteration order is random; fall back to id order before sorting.
	Sort(recs, []OrderBy{{FieldName: FieldID, SortType: Asc}})
	return Apply(recs, q), nil
}

func (m *MemoryStore) GetRecordByID(ctx context.Context, collection string, id int64, q Query) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return Project(r, q.FieldNames()), nil
}

func (m *MemoryStore) CreateRecords(ctx context.Context, collection string, recs []Record) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[collection] == nil {
		m.data[collection] = make(map[int64]Record)
	}
	now := m.now().UTC().Format(time.RFC3339Nano)
	results := make([]Result, len(recs))
	for i, r := range recs {
		m.nextID[collection]++
		id := m.nextID[collection]
		stored := r.Clone()
		stored[FieldID] = id
		stored[FieldCreatedOn] = now
		stored[FieldModifiedOn] = now
		m.data[collection][id] = stored
		results[i] = Result{Success: true, Data: stored.Clone()}
	}
	return results, nil
}

func (m *MemoryStore) UpdateRecords(ctx context.Context, collection string, recs []Record) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC().Format(time.RFC3339Nano)
	results := make([]Result, len(recs))
	for i, r := range recs {
		id, ok := r.ID()
		if !ok {
			results[i] = Result{Message: "record Id is required"}
			continue
		}
		cur, ok := m.data[collection][id]
		if !ok {
			results[i] = Result{Message: ErrNotFound.Error()}
			continue
		}
		for k, v := range r {
			if k == FieldID || k == FieldCreatedOn {
				continue
			}
			cur[k] = v
		}
		cur[FieldModifiedOn] = now
		results[i] = Result{Success: true, Data: cur.Clone()}
	}
	return results, nil
}

func (m *MemoryStore) DeleteRecords(ctx context.Context, collection string, ids []int64) ([]Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	results := make([]Result, len(ids))
	for i, id := range ids {
		if _, ok := m.data[collection][id]; !ok {
			results[i] = Result{Message: ErrNotFound.Error()}
			continue
		}
		delete(m.data[collection], id)
		results[i] = Result{Success: true, Data: Record{FieldID: id}}
	}
	return results, nil
}
