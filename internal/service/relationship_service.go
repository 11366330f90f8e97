package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/repository"
)

var ErrFollowSelf = fmt.Errorf("%w: cannot follow self", failure.ErrMalformedParameters)

// UserCache 写事务提交后需要失效的用户缓存
type UserCache interface {
	Invalidate(ctx context.Context, ids ...string)
}

type noCache struct{}

func (noCache) Invalidate(context.Context, ...string) {}

// RelationshipService 关系链服务
type RelationshipService interface {
	Follow(ctx context.Context, fromUserID, toUserID string) error
	Unfollow(ctx context.Context, fromUserID, toUserID string) error
}

type relationshipService struct {
	store      *repository.Store
	publisher  *Publisher
	replicator *FanReplicator
	cache      UserCache
}

func NewRelationshipService(store *repository.Store, publisher *Publisher, replicator *FanReplicator, cache UserCache) RelationshipService {
	if cache == nil {
		cache = noCache{}
	}
	return &relationshipService{store: store, publisher: publisher, replicator: replicator, cache: cache}
}

// Follow 关注边 + 双方计数 + 时间线关注事件同事务提交；粉丝表异步冗余。重复关注直接成功。
func (s *relationshipService) Follow(ctx context.Context, fromUserID, toUserID string) (err error) {
	ctx, span := tracer.Start(ctx, "Follow", trace.WithAttributes(attribute.String("from", fromUserID), attribute.String("to", toUserID)))
	defer func() {
		err = narrow(span, "Follow", err, failure.ErrMalformedParameters, failure.ErrNotFound)
		span.End()
	}()

	if fromUserID == toUserID {
		return ErrFollowSelf
	}

	created := false
	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		if err := requireUsers(ctx, tx, fromUserID, toUserID); err != nil {
			return err
		}
		var err error
		created, err = repository.NewFollowRepository(tx.Follows).Create(ctx, fromUserID, toUserID)
		if err != nil || !created {
			return err
		}
		if err := tx.Users.Increment(ctx, toUserID, repository.ColumnFollowersCount, 1); err != nil {
			return err
		}
		if err := tx.Users.Increment(ctx, fromUserID, repository.ColumnFollowingsCount, 1); err != nil {
			return err
		}
		return s.publisher.Follow(ctx, tx, fromUserID, toUserID)
	})
	if err != nil || !created {
		return err
	}

	s.cache.Invalidate(ctx, fromUserID, toUserID)
	if s.replicator != nil {
		s.replicator.EnqueueAdd(toUserID, fromUserID)
	}
	return nil
}

// Unfollow 未关注时直接成功
func (s *relationshipService) Unfollow(ctx context.Context, fromUserID, toUserID string) (err error) {
	ctx, span := tracer.Start(ctx, "Unfollow", trace.WithAttributes(attribute.String("from", fromUserID), attribute.String("to", toUserID)))
	defer func() {
		err = narrow(span, "Unfollow", err, failure.ErrMalformedParameters, failure.ErrNotFound)
		span.End()
	}()

	if fromUserID == toUserID {
		return ErrFollowSelf
	}

	deleted := false
	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		var err error
		deleted, err = repository.NewFollowRepository(tx.Follows).Delete(ctx, fromUserID, toUserID)
		if err != nil || !deleted {
			return err
		}
		if err := tx.Users.Increment(ctx, toUserID, repository.ColumnFollowersCount, -1); err != nil {
			return err
		}
		if err := tx.Users.Increment(ctx, fromUserID, repository.ColumnFollowingsCount, -1); err != nil {
			return err
		}
		return s.publisher.Unfollow(ctx, tx, fromUserID, toUserID)
	})
	if err != nil || !deleted {
		return err
	}

	s.cache.Invalidate(ctx, fromUserID, toUserID)
	if s.replicator != nil {
		s.replicator.EnqueueRemove(toUserID, fromUserID)
	}
	return nil
}

// requireUsers 任一用户不存在返回 failure.ErrNotFound
func requireUsers(ctx context.Context, tx *repository.Store, ids ...string) error {
	docs, err := tx.Users.MultiGet(ctx, ids)
	if err != nil {
		return err
	}
	for i, d := range docs {
		if d == nil {
			return fmt.Errorf("user %s: %w", ids[i], failure.ErrNotFound)
		}
	}
	return nil
}
