package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BuzzLyutic/tasks-api/internal/model"
)

const (
	listCacheKey = "tasks:list"
	listGenKey   = "tasks:list:gen"
)

// CachedRepo wraps a TaskStore with a Redis copy of the ordered list.
// Every successful write bumps the list generation and evicts the copy. A
// reader only stores the list it fetched if the generation it saw before the
// fetch is still current, so a write that lands mid-read is never masked.
type CachedRepo struct {
	base  TaskStore
	redis *redis.Client
	ttl   time.Duration
}

func NewCachedRepo(base TaskStore, client *redis.Client, ttl time.Duration) *CachedRepo {
	if base == nil {
		panic("repo.NewCachedRepo: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CachedRepo{base: base, redis: client, ttl: ttl}
}

func (c *CachedRepo) Insert(ctx context.Context, in model.NewTask) (model.Task, error) {
	t, err := c.base.Insert(ctx, in)
	if err != nil {
		return t, err
	}
	c.evict(ctx)
	return t, nil
}

func (c *CachedRepo) GetByID(ctx context.Context, id string) (model.Task, error) {
	return c.base.GetByID(ctx, id)
}

func (c *CachedRepo) PatchByID(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	t, err := c.base.PatchByID(ctx, id, patch)
	if err != nil {
		return t, err
	}
	c.evict(ctx)
	return t, nil
}

func (c *CachedRepo) DeleteByID(ctx context.Context, id string) error {
	if err := c.base.DeleteByID(ctx, id); err != nil {
		return err
	}
	c.evict(ctx)
	return nil
}

func (c *CachedRepo) ListAllOrderedByCreation(ctx context.Context) ([]model.Task, error) {
	if tasks, ok := c.load(ctx); ok {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx)

	tasks, err := c.base.ListAllOrderedByCreation(ctx)
	if err != nil {
		return nil, err
	}
	if genOK {
		c.store(ctx, gen, tasks)
	}
	return tasks, nil
}

func (c *CachedRepo) generation(ctx context.Context) (int64, bool) {
	if c.redis == nil || c.ttl == 0 {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, listGenKey).Int64()
	if err == redis.Nil {
		return 0, true
	}
	return gen, err == nil
}

func (c *CachedRepo) load(ctx context.Context) ([]model.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, listCacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			// Ошибки Redis не валят чтение: идем в базовое хранилище
			_ = c.redis.Del(ctx, listCacheKey).Err()
		}
		return nil, false
	}
	tasks := make([]model.Task, 0)
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, listCacheKey).Err()
		return nil, false
	}
	return tasks, true
}

// store пишет список, только если поколение не сменилось с момента чтения
func (c *CachedRepo) store(ctx context.Context, gen int64, tasks []model.Task) {
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	// Конкурентная запись между GET и EXEC дает redis.TxFailedErr, кэш не пишется
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, listGenKey).Int64()
		if err == redis.Nil {
			current, err = 0, nil
		}
		if err != nil || current != gen {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, listCacheKey, data, c.ttl)
			return nil
		})
		return err
	}, listGenKey)
}

func (c *CachedRepo) evict(ctx context.Context) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, listGenKey)
		pipe.Del(ctx, listCacheKey)
		return nil
	})
}
