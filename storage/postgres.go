package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"taskboard/records"
)

const undefinedTable = "42P01"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS records (
	collection TEXT   NOT NULL,
	id         BIGINT NOT NULL,
	fields     JSONB  NOT NULL DEFAULT '{}'::jsonb,
	PRIMARY KEY (collection, id)
);
CREATE TABLE IF NOT EXISTS record_counters (
	collection TEXT   PRIMARY KEY,
	last_id    BIGINT NOT NULL
);`

// PostgresStore keeps records as JSONB field bags in a single table.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// Migrate creates the record tables if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

// orderClause builds an ORDER BY from validated field names. Missing fields
// sort first ascending and last descending, matching records.Sort.
func orderClause(orderBy []records.OrderBy) (string, error) {
	if len(orderBy) == 0 {
		return "id ASC", nil
	}
	parts := make([]string, 0, len(orderBy)+1)
	for _, o := range orderBy {
		if !records.ValidFieldName(o.FieldName) {
			return "", fmt.Errorf("invalid order field %q", o.FieldName)
		}
		expr := "fields->'" + o.FieldName + "'"
		if o.FieldName == records.FieldID {
			expr = "id"
		}
		if o.SortType == records.Desc {
			parts = append(parts, expr+" DESC NULLS LAST")
		} else {
			parts = append(parts, expr+" ASC NULLS FIRST")
		}
	}
	parts = append(parts, "id ASC")
	return strings.Join(parts, ", "), nil
}

func wrapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("records table missing, run migrations: %w", err)
	}
	return err
}

func scanRecord(id int64, raw []byte) (records.Record, error) {
	rec := records.Record{}
	if err := sonic.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	rec[records.FieldID] = id
	return rec, nil
}

func (s *PostgresStore) FetchRecords(ctx context.Context, collection string, q records.Query) ([]records.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	order, err := orderClause(q.OrderBy)
	if err != nil {
		return nil, err
	}
	sql := "SELECT id, fields FROM records WHERE collection = $1 ORDER BY " + order
	args := []any{collection}
	if q.PagingInfo != nil {
		p, err := records.NormalizePaging(*q.PagingInfo)
		if err != nil {
			return nil, err
		}
		sql += " LIMIT $2 OFFSET $3"
		args = append(args, p.Limit, p.Offset)
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapPgError(err)
	}
	defer rows.Close()

	fields := q.FieldNames()
	out := []records.Record{}
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		rec, err := scanRecord(id, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, records.Project(rec, fields))
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRecordByID(ctx context.Context, collection string, id int64, q records.Query) (records.Record, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, "SELECT fields FROM records WHERE collection = $1 AND id = $2", collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, records.ErrNotFound
	}
	if err != nil {
		return nil, wrapPgError(err)
	}
	rec, err := scanRecord(id, raw)
	if err != nil {
		return nil, err
	}
	return records.Project(rec, q.FieldNames()), nil
}

func fieldBag(rec records.Record) ([]byte, error) {
	bag := make(map[string]any, len(rec))
	for k, v := range rec {
		if k == records.FieldID || !records.ValidFieldName(k) {
			continue
		}
		if t, ok := v.(time.Time); ok {
			v = t.UTC().Format(time.RFC3339Nano)
		}
		bag[k] = v
	}
	return sonic.Marshal(bag)
}

func (s *PostgresStore) CreateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
	if len(recs) == 0 {
		return []records.Result{}, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var last int64
	err = tx.QueryRow(ctx, `INSERT INTO record_counters (collection, last_id) VALUES ($1, $2)
		ON CONFLICT (collection) DO UPDATE SET last_id = record_counters.last_id + EXCLUDED.last_id
		RETURNING last_id`, collection, len(recs)).Scan(&last)
	if err != nil {
		return nil, wrapPgError(err)
	}
	first := last - int64(len(recs)) + 1

	now := s.now().UTC().Format(time.RFC3339Nano)
	results := make([]records.Result, len(recs))
	batch := &pgx.Batch{}
	for i, r := range recs {
		rec := r.Clone()
		rec[records.FieldCreatedOn] = now
		rec[records.FieldModifiedOn] = now
		bag, err := fieldBag(rec)
		if err != nil {
			return nil, err
		}
		id := first + int64(i)
		rec[records.FieldID] = id
		results[i] = records.Result{Success: true, Data: rec}
		batch.Queue("INSERT INTO records (collection, id, fields) VALUES ($1, $2, $3)", collection, id, bag)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, wrapPgError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PostgresStore) UpdateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
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
		bag, err := fieldBag(patch)
		if err != nil {
			results[i] = records.Result{Message: err.Error()}
			continue
		}
		var raw []byte
		err = s.pool.QueryRow(ctx, `UPDATE records SET fields = fields || $3::jsonb
			WHERE collection = $1 AND id = $2 RETURNING fields`, collection, id, bag).Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			results[i] = records.Result{Message: records.ErrNotFound.Error()}
			continue
		}
		if err != nil {
			log.WithError(err).WithFields(log.Fields{"collection": collection, "id": id}).Error("update record failed")
			results[i] = records.Result{Message: wrapPgError(err).Error()}
			continue
		}
		merged, err := scanRecord(id, raw)
		if err != nil {
			results[i] = records.Result{Message: err.Error()}
			continue
		}
		results[i] = records.Result{Success: true, Data: merged}
	}
	return results, nil
}

func (s *PostgresStore) DeleteRecords(ctx context.Context, collection string, ids []int64) ([]records.Result, error) {
	results := make([]records.Result, len(ids))
	for i, id := range ids {
		tag, err := s.pool.Exec(ctx, "DELETE FROM records WHERE collection = $1 AND id = $2", collection, id)
		if err != nil {
			results[i] = records.Result{Message: wrapPgError(err).Error()}
			continue
		}
		if tag.RowsAffected() == 0 {
			results[i] = records.Result{Message: records.ErrNotFound.Error()}
			continue
		}
		results[i] = records.Result{Success: true, Data: records.Record{records.FieldID: id}}
	}
	return results, nil
}

var _ records.Store = (*PostgresStore)(nil)
