package records

import "context"

// Store is the record CRUD contract implemented by every backend.
type Store interface {
	FetchRecords(ctx context.Context, collection string, q Query) ([]Record, error)
	GetRecordByID(ctx context.Context, collection string, id int64, q Query) (Record, error)
	CreateRecords(ctx context.Context, collection string, recs []Record) ([]Result, error)
	UpdateRecords(ctx context.Context, collection string, recs []Record) ([]Result, error)
	DeleteRecords(ctx context.Context, collection string, ids []int64) ([]Result, error)
}

var _ Store = (*MemoryStore)(nil)
