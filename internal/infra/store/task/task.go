package taskstore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/simonbray/firecrest/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	taskKeyPrefix = "task:"
	counterKey    = "tasks:last_id"

	scanBatch = 256
)

// redisTaskStore persists task status records in Redis. Records live as hashes
// under task:<id>; the id counter is a plain integer key bumped with INCR, so
// allocation stays atomic across service replicas sharing one store.
// Connections are checked out of the client's pool per command.
type redisTaskStore struct {
	rdb redis.Cmdable
}

func NewRedisTaskStore(rdb redis.Cmdable) *redisTaskStore {
	return &redisTaskStore{rdb: rdb}
}

// EnsureCounter creates the id counter key if it does not exist yet.
// Idempotent: an existing counter is left untouched.
func (s *redisTaskStore) EnsureCounter(ctx context.Context) error {
	if err := s.rdb.SetNX(ctx, counterKey, 0, 0).Err(); err != nil {
		return &domain.StoreError{Op: "ensure counter", Err: err}
	}
	return nil
}

// AllocateID returns the next task id. INCR is atomic server-side, so
// concurrent callers (and concurrent replicas) never observe the same id.
func (s *redisTaskStore) AllocateID(ctx context.Context) (int64, error) {
	id, err := s.rdb.Incr(ctx, counterKey).Result()
	if err != nil {
		return 0, &domain.StoreError{Op: "allocate id", Err: err}
	}
	return id, nil
}

func (s *redisTaskStore) Save(ctx context.Context, rec domain.TaskRecord) error {
	hk := taskKey(rec.TaskID)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, hk, map[string]interface{}{
		"status":     string(rec.Status),
		"user":       rec.Owner,
		"service":    string(rec.Service),
		"data":       rec.Message,
		"created_at": rec.CreatedAt.UnixNano(),
		"updated_at": rec.UpdatedAt.UnixNano(),
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return &domain.StoreError{Op: "save " + hk, Err: err}
	}
	return nil
}

func (s *redisTaskStore) Load(ctx context.Context, taskID int64) (domain.TaskRecord, bool, error) {
	hk := taskKey(taskID)

	res, err := s.rdb.HGetAll(ctx, hk).Result()
	if err != nil {
		return domain.TaskRecord{}, false, &domain.StoreError{Op: "load " + hk, Err: err}
	}
	if len(res) == 0 {
		return domain.TaskRecord{}, false, nil
	}

	return recordFromHash(taskID, res), true, nil
}

func (s *redisTaskStore) Delete(ctx context.Context, taskID int64) (bool, error) {
	hk := taskKey(taskID)

	n, err := s.rdb.Del(ctx, hk).Result()
	if err != nil {
		return false, &domain.StoreError{Op: "delete " + hk, Err: err}
	}
	return n > 0, nil
}

// LoadAll returns every persisted record, keyed by task id. Bootstrap only;
// SCAN keeps the server responsive while walking the keyspace.
func (s *redisTaskStore) LoadAll(ctx context.Context) (map[int64]domain.TaskRecord, error) {
	return s.scanRecords(ctx, func(domain.TaskRecord) bool { return true })
}

// LoadByService returns the records created by one service family, for the
// reconciliation listing a restarting collaborator uses to rebuild its view.
func (s *redisTaskStore) LoadByService(ctx context.Context, service domain.Service) (map[int64]domain.TaskRecord, error) {
	return s.scanRecords(ctx, func(rec domain.TaskRecord) bool {
		return rec.Service == service
	})
}

// SetExpiry puts a TTL on the durable record. The store discards it on its
// own once the TTL elapses; the in-memory registry entry is unaffected until
// the next restart reconciles.
func (s *redisTaskStore) SetExpiry(ctx context.Context, taskID int64, ttl time.Duration) (bool, error) {
	hk := taskKey(taskID)

	ok, err := s.rdb.Expire(ctx, hk, ttl).Result()
	if err != nil {
		return false, &domain.StoreError{Op: "set expiry " + hk, Err: err}
	}
	return ok, nil
}

func (s *redisTaskStore) scanRecords(ctx context.Context, keep func(domain.TaskRecord) bool) (map[int64]domain.TaskRecord, error) {
	out := make(map[int64]domain.TaskRecord)

	iter := s.rdb.Scan(ctx, 0, taskKeyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		taskID, err := parseTaskKey(key)
		if err != nil {
			// foreign key under our prefix; skip rather than abort bootstrap
			continue
		}

		res, err := s.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, &domain.StoreError{Op: "load " + key, Err: err}
		}
		if len(res) == 0 {
			// expired between SCAN and HGETALL
			continue
		}

		rec := recordFromHash(taskID, res)
		if keep(rec) {
			out[taskID] = rec
		}
	}
	if err := iter.Err(); err != nil {
		return nil, &domain.StoreError{Op: "scan tasks", Err: err}
	}

	return out, nil
}

func recordFromHash(taskID int64, res map[string]string) domain.TaskRecord {
	rec := domain.TaskRecord{
		TaskID:  taskID,
		Status:  domain.Status(res["status"]),
		Owner:   res["user"],
		Service: domain.Service(res["service"]),
		Message: res["data"],
	}

	if v, ok := res["created_at"]; ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.CreatedAt = time.Unix(0, n)
		}
	}
	if v, ok := res["updated_at"]; ok && v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rec.UpdatedAt = time.Unix(0, n)
		}
	}

	return rec
}

func taskKey(taskID int64) string {
	return taskKeyPrefix + strconv.FormatInt(taskID, 10)
}

func parseTaskKey(key string) (int64, error) {
	return strconv.ParseInt(strings.TrimPrefix(key, taskKeyPrefix), 10, 64)
}
