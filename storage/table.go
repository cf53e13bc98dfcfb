package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"taskboard/records"
)

const (
	counterPartition   = "_counters"
	counterField       = "Next"
	maxCounterAttempts = 10

	edmInt64 = "Edm.Int64"
)

// tableClient is the subset of *aztables.Client used by TableStore.
type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// TableStore keeps every collection in one Azure table. The collection is
// the partition key and the zero padded record id is the row key.
type TableStore struct {
	table tableClient
	now   func() time.Time
}

func tableClientOptions() *aztables.ClientOptions {
	return &aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
}

// NewTableStore connects to the named table using a storage connection string.
func NewTableStore(connStr, table string) (*TableStore, error) {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, tableClientOptions())
	if err != nil {
		return nil, err
	}
	return newTableStore(svc.NewClient(table)), nil
}

func newTableStore(c tableClient) *TableStore {
	return &TableStore{table: c, now: time.Now}
}

func rowKey(id int64) string {
	return fmt.Sprintf("%019d", id)
}

func partitionFilter(collection string) string {
	return "PartitionKey eq '" + strings.ReplaceAll(collection, "'", "''") + "'"
}

func isStatus(err error, code int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == code
}

// encodeEntity flattens a record into a table entity. Ids are written as
// Edm.Int64 so they survive the round trip exactly.
func encodeEntity(collection string, id int64, rec records.Record) ([]byte, error) {
	ent := make(map[string]any, len(rec)+4)
	for k, v := range rec {
		if k == records.FieldID || !records.ValidFieldName(k) {
			continue
		}
		switch t := v.(type) {
		case nil:
			// Tables have no null; an empty string clears the property.
			v = ""
		case time.Time:
			v = t.UTC().Format(time.RFC3339Nano)
		}
		ent[k] = v
	}
	ent["PartitionKey"] = collection
	ent["RowKey"] = rowKey(id)
	ent[records.FieldID] = strconv.FormatInt(id, 10)
	ent[records.FieldID+"@odata.type"] = edmInt64
	return sonic.Marshal(ent)
}

func decodeEntity(data []byte) (records.Record, error) {
	var raw map[string]any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(fmt.Sprint(raw["RowKey"]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid row key %v", raw["RowKey"])
	}
	rec := make(records.Record, len(raw))
	for k, v := range raw {
		switch {
		case k == "PartitionKey", k == "RowKey", k == "Timestamp":
			continue
		case strings.HasPrefix(k, "odata."), strings.Contains(k, "@odata."):
			continue
		}
		rec[k] = v
	}
	rec[records.FieldID] = id
	return rec, nil
}

func (s *TableStore) FetchRecords(ctx context.Context, collection string, q records.Query) ([]records.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	filter := partitionFilter(collection)
	pager := s.table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	recs := []records.Record{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			rec, err := decodeEntity(e)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
	}
	return records.Apply(recs, q), nil
}

func (s *TableStore) GetRecordByID(ctx context.Context, collection string, id int64, q records.Query) (records.Record, error) {
	ent, err := s.table.GetEntity(ctx, collection, rowKey(id), nil)
	if err != nil {
		if isStatus(err, 404) {
			return nil, records.ErrNotFound
		}
		return nil, err
	}
	rec, err := decodeEntity(ent.Value)
	if err != nil {
		return nil, err
	}
	return records.Project(rec, q.FieldNames()), nil
}

func (s *TableStore) CreateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
	if len(recs) == 0 {
		return []records.Result{}, nil
	}
	first, err := s.reserveIDs(ctx, collection, int64(len(recs)))
	if err != nil {
		return nil, err
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	results := make([]records.Result, len(recs))
	for i, r := range recs {
		rec := r.Clone()
		id := first + int64(i)
		rec[records.FieldCreatedOn] = now
		rec[records.FieldModifiedOn] = now
		payload, err := encodeEntity(collection, id, rec)
		if err != nil {
			results[i] = records.Result{Message: err.Error()}
			continue
		}
		if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
			log.WithError(err).WithFields(log.Fields{"collection": collection, "id": id}).Error("add entity failed")
			results[i] = records.Result{Message: err.Error()}
			continue
		}
		rec[records.FieldID] = id
		results[i] = records.Result{Success: true, Data: rec}
	}
	return results, nil
}

func (s *TableStore) UpdateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
	now := s.now().UTC().Format(time.RFC3339Nano)
	results := make([]records.Result, len(recs))
	for i, r := range recs {
		id, ok := r.ID()
		if !ok {
			results[i] = records.Result{Message: "record id is required"}
			continue
		}
		patch := r.Clone()
		delete(patch, records.FieldCreatedOn)
		patch[records.FieldModifiedOn] = now
		payload, err := encodeEntity(collection, id, patch)
		if err != nil {
			results[i] = records.Result{Message: err.Error()}
			continue
		}
		// ETagAny still requires the entity to exist, so merges never upsert.
		et := azcore.ETagAny
		if _, err := s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge}); err != nil {
			if isStatus(err, 404) {
				results[i] = records.Result{Message: records.ErrNotFound.Error()}
				continue
			}
			log.WithError(err).WithFields(log.Fields{"collection": collection, "id": id}).Error("update entity failed")
			results[i] = records.Result{Message: err.Error()}
			continue
		}
		// The merge is applied, but only the full entity is a valid result.
		ent, err := s.table.GetEntity(ctx, collection, rowKey(id), nil)
		var merged records.Record
		if err == nil {
			merged, err = decodeEntity(ent.Value)
		}
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"collection": collection, "id": id}).Error("read back updated entity failed")
			results[i] = records.Result{Message: fmt.Sprintf("updated record %d could not be read back: %v", id, err)}
			continue
		}
		results[i] = records.Result{Success: true, Data: merged}
	}
	return results, nil
}

func (s *TableStore) DeleteRecords(ctx context.Context, collection string, ids []int64) ([]records.Result, error) {
	results := make([]records.Result, len(ids))
	for i, id := range ids {
		if _, err := s.table.DeleteEntity(ctx, collection, rowKey(id), nil); err != nil {
			if isStatus(err, 404) {
				results[i] = records.Result{Message: records.ErrNotFound.Error()}
				continue
			}
			results[i] = records.Result{Message: err.Error()}
			continue
		}
		results[i] = records.Result{Success: true, Data: records.Record{records.FieldID: id}}
	}
	return results, nil
}

type counterEntity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
	Next         int64  `json:"Next,string"`
	NextType     string `json:"Next@odata.type"`
}

// reserveIDs allocates n consecutive ids for collection and returns the
// first. The counter entity is advanced with optimistic concurrency and the
// read-modify-write is retried whenever another writer got there first.
func (s *TableStore) reserveIDs(ctx context.Context, collection string, n int64) (int64, error) {
	for attempt := 0; attempt < maxCounterAttempts; attempt++ {
		resp, err := s.table.GetEntity(ctx, counterPartition, collection, nil)
		if isStatus(err, 404) {
			payload, _ := sonic.Marshal(counterEntity{PartitionKey: counterPartition, RowKey: collection, Next: n, NextType: edmInt64})
			if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
				if isStatus(err, 409) {
					continue
				}
				return 0, err
			}
			return 1, nil
		}
		if err != nil {
			return 0, err
		}
		var cur counterEntity
		if err := sonic.Unmarshal(resp.Value, &cur); err != nil {
			return 0, fmt.Errorf("decode %s counter: %w", collection, err)
		}
		next := counterEntity{PartitionKey: counterPartition, RowKey: collection, Next: cur.Next + n, NextType: edmInt64}
		payload, _ := sonic.Marshal(next)
		etag := resp.ETag
		if _, err := s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace}); err != nil {
			if isStatus(err, 412) {
				log.WithFields(log.Fields{"collection": collection, "attempt": attempt}).Debug("id counter conflict, retrying")
				continue
			}
			return 0, err
		}
		return cur.Next + 1, nil
	}
	return 0, fmt.Errorf("allocate %s ids: %w", collection, records.ErrConflict)
}

var _ records.Store = (*TableStore)(nil)
