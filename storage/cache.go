package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"taskboard/records"
)

// Cache wraps a records.Store with Redis-backed caching for reads. Writes go
// straight to the base store and evict every cached read of the collection.
type Cache struct {
	base  records.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base records.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchRecords(ctx context.Context, collection string, q records.Query) ([]records.Record, error) {
	key := fetchCacheKey(collection, q)
	var recs []records.Record
	if c.load(ctx, key, &recs) {
		return recs, nil
	}
	recs, err := c.base.FetchRecords(ctx, collection, q)
	if err != nil {
		return nil, err
	}
	c.store(ctx, collection, key, recs)
	return recs, nil
}

func (c *Cache) GetRecordByID(ctx context.Context, collection string, id int64, q records.Query) (records.Record, error) {
	key := recordCacheKey(collection, id, q)
	var rec records.Record
	if c.load(ctx, key, &rec) {
		return rec, nil
	}
	rec, err := c.base.GetRecordByID(ctx, collection, id, q)
	if err != nil {
		return nil, err
	}
	c.store(ctx, collection, key, rec)
	return rec, nil
}

func (c *Cache) CreateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
	results, err := c.base.CreateRecords(ctx, collection, recs)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, collection)
	return results, nil
}

func (c *Cache) UpdateRecords(ctx context.Context, collection string, recs []records.Record) ([]records.Result, error) {
	results, err := c.base.UpdateRecords(ctx, collection, recs)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, collection)
	return results, nil
}

func (c *Cache) DeleteRecords(ctx context.Context, collection string, ids []int64) ([]records.Result, error) {
	results, err := c.base.DeleteRecords(ctx, collection, ids)
	if err != nil {
		return nil, err
	}
	c.evict(ctx, collection)
	return results, nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, collection, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	setKey := collectionKeysKey(collection)
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, key, data, c.ttl)
	pipe.SAdd(ctx, setKey, key)
	pipe.Expire(ctx, setKey, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.WithError(err).WithField("collection", collection).Debug("cache store failed")
	}
}

// evict drops every cached read of collection.
func (c *Cache) evict(ctx context.Context, collection string) {
	if c.redis == nil {
		return
	}
	setKey := collectionKeysKey(collection)
	keys, err := c.redis.SMembers(ctx, setKey).Result()
	if err != nil && err != redis.Nil {
		log.WithError(err).WithField("collection", collection).Warn("cache eviction failed")
		return
	}
	_, _ = c.redis.Del(ctx, append(keys, setKey)...).Result()
}

func fetchCacheKey(collection string, q records.Query) string {
	return "records:" + collection + ":q:" + queryHash(q)
}

func recordCacheKey(collection string, id int64, q records.Query) string {
	return "records:" + collection + ":id:" + strconv.FormatInt(id, 10) + ":" + queryHash(q)
}

func collectionKeysKey(collection string) string {
	return "records:" + collection + ":keys"
}

func queryHash(q records.Query) string {
	data, _ := sonic.Marshal(q)
	return strconv.FormatUint(xxhash.Sum64(data), 16)
}

var _ records.Store = (*Cache)(nil)
