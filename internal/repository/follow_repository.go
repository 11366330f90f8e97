package repository

import (
	"context"
	"errors"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

// FollowRepository 关注边（写路径的权威数据）
type FollowRepository interface {
	// Create 幂等：已关注时返回 created=false
	Create(ctx context.Context, followerID, followeeID string) (created bool, err error)
	// Delete 幂等：未关注时返回 deleted=false
	Delete(ctx context.Context, followerID, followeeID string) (deleted bool, err error)
	Exists(ctx context.Context, followerID, followeeID string) (bool, error)
	ListFollowings(ctx context.Context, followerID string, cursor pagination.Cursor, limit int) (pagination.Page[model.Follow], error)
	ListFollowers(ctx context.Context, followeeID string, cursor pagination.Cursor, limit int) (pagination.Page[model.Follow], error)
}

type followRepository struct {
	follows Collection[model.Follow]
	edges   EdgeSet[model.Follow]
}

func NewFollowRepository(follows Collection[model.Follow]) FollowRepository {
	return &followRepository{follows: follows, edges: NewEdgeSet(follows)}
}

func (r *followRepository) Create(ctx context.Context, followerID, followeeID string) (bool, error) {
	// 先点查：postgres 事务内主键冲突会使整个事务失效
	exists, err := r.edges.ExistsByComposite(ctx, followerID, followeeID)
	if err != nil || exists {
		return false, err
	}

	now, ts := model.Stamp()
	f := &model.Follow{
		ID:         model.CompositeID(followerID, followeeID),
		FollowerID: followerID,
		FolloweeID: followeeID,
		Timestamp:  ts,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = r.follows.Create(ctx, f)
	if errors.Is(err, failure.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *followRepository) Delete(ctx context.Context, followerID, followeeID string) (bool, error) {
	err := r.follows.Delete(ctx, model.CompositeID(followerID, followeeID))
	if errors.Is(err, failure.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *followRepository) Exists(ctx context.Context, followerID, followeeID string) (bool, error) {
	return r.edges.ExistsByComposite(ctx, followerID, followeeID)
}

func (r *followRepository) ListFollowings(ctx context.Context, followerID string, cursor pagination.Cursor, limit int) (pagination.Page[model.Follow], error) {
	return r.follows.Query(ctx, Query{Field: FieldFollowerID, Value: followerID, Cursor: cursor, Limit: limit})
}

func (r *followRepository) ListFollowers(ctx context.Context, followeeID string, cursor pagination.Cursor, limit int) (pagination.Page[model.Follow], error) {
	return r.follows.Query(ctx, Query{Field: FieldFolloweeID, Value: followeeID, Cursor: cursor, Limit: limit})
}
