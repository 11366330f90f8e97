package repository

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/pkg/logger"
)

// CachedCollection Redis 读穿缓存：Get/MultiGet 先 MGET，未命中的 id 合并为一次底层批量读取
// 写操作透传后删除对应缓存；缓存不可用时退化为直接读底层存储
type CachedCollection[T model.Document] struct {
	Collection[T]

	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration

	innerLoads atomic.Int64
}

// NewCachedCollection ttl<=0 时关闭缓存
func NewCachedCollection[T model.Document](inner Collection[T], rdb redis.UniversalClient, prefix string, ttl time.Duration) *CachedCollection[T] {
	return &CachedCollection[T]{Collection: inner, rdb: rdb, prefix: prefix, ttl: ttl}
}

func (c *CachedCollection[T]) key(id string) string { return c.prefix + ":" + id }

func (c *CachedCollection[T]) enabled() bool { return c.rdb != nil && c.ttl > 0 }

func (c *CachedCollection[T]) Get(ctx context.Context, id string) (*T, error) {
	if !c.enabled() {
		return c.Collection.Get(ctx, id)
	}
	if data, err := c.rdb.Get(ctx, c.key(id)).Bytes(); err == nil {
		var doc T
		if uErr := json.Unmarshal(data, &doc); uErr == nil {
			return &doc, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("cache get failed", zap.String("key", c.key(id)), zap.Error(err))
	}

	c.innerLoads.Add(1)
	doc, err := c.Collection.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, []*T{doc})
	return doc, nil
}

func (c *CachedCollection[T]) MultiGet(ctx context.Context, ids []string) ([]*T, error) {
	if !c.enabled() || len(ids) == 0 {
		return c.Collection.MultiGet(ctx, ids)
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	cached := make(map[string]*T, len(ids))
	if vals, err := c.rdb.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var doc T
			if uErr := json.Unmarshal([]byte(str), &doc); uErr == nil {
				cached[ids[i]] = &doc
			}
		}
	} else {
		logger.Warn("cache mget failed", zap.Int("keys", len(keys)), zap.Error(err))
	}

	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := cached[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		c.innerLoads.Add(1)
		loaded, err := c.Collection.MultiGet(ctx, dedupe(missing))
		if err != nil {
			return nil, err
		}
		c.store(ctx, loaded)
		for _, doc := range loaded {
			if doc != nil {
				cached[(*doc).DocumentID()] = doc
			}
		}
	}

	out := make([]*T, len(ids))
	for i, id := range ids {
		out[i] = cached[id]
	}
	return out, nil
}

func (c *CachedCollection[T]) store(ctx context.Context, docs []*T) {
	pipe := c.rdb.Pipeline()
	n := 0
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		payload, err := json.Marshal(doc)
		if err != nil {
			continue
		}
		pipe.Set(ctx, c.key((*doc).DocumentID()), payload, c.ttl)
		n++
	}
	if n == 0 {
		return
	}
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("cache fill failed", zap.Int("docs", n), zap.Error(err))
	}
}

// Invalidate 删除缓存，写事务提交后调用
func (c *CachedCollection[T]) Invalidate(ctx context.Context, ids ...string) {
	if !c.enabled() || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.key(id)
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *CachedCollection[T]) Create(ctx context.Context, doc *T) error {
	if err := c.Collection.Create(ctx, doc); err != nil {
		return err
	}
	c.Invalidate(ctx, (*doc).DocumentID())
	return nil
}

func (c *CachedCollection[T]) Delete(ctx context.Context, id string) error {
	defer c.Invalidate(ctx, id)
	return c.Collection.Delete(ctx, id)
}

func (c *CachedCollection[T]) Increment(ctx context.Context, id, field string, delta int64) error {
	defer c.Invalidate(ctx, id)
	return c.Collection.Increment(ctx, id, field, delta)
}

// InnerLoads 回源次数
func (c *CachedCollection[T]) InnerLoads() int64 { return c.innerLoads.Load() }
