package repository

import (
	"context"
	"errors"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

// FanRepository 粉丝表：Follow 的反向冗余，按 user_id 分页列出粉丝
type FanRepository interface {
	Create(ctx context.Context, userID, fanID string) error
	Delete(ctx context.Context, userID, fanID string) error
	ListFans(ctx context.Context, userID string, cursor pagination.Cursor, limit int) (pagination.Page[model.Fan], error)
}

type fanRepository struct{ fans Collection[model.Fan] }

func NewFanRepository(fans Collection[model.Fan]) FanRepository { return &fanRepository{fans: fans} }

// Create 重复写入不报错（复制器可能重放）
func (r *fanRepository) Create(ctx context.Context, userID, fanID string) error {
	now, ts := model.Stamp()
	f := &model.Fan{
		ID:        model.CompositeID(userID, fanID),
		UserID:    userID,
		FanID:     fanID,
		Timestamp: ts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.fans.Create(ctx, f); err != nil && !errors.Is(err, failure.ErrAlreadyExists) {
		return err
	}
	return nil
}

func (r *fanRepository) Delete(ctx context.Context, userID, fanID string) error {
	if err := r.fans.Delete(ctx, model.CompositeID(userID, fanID)); err != nil && !errors.Is(err, failure.ErrNotFound) {
		return err
	}
	return nil
}

func (r *fanRepository) ListFans(ctx context.Context, userID string, cursor pagination.Cursor, limit int) (pagination.Page[model.Fan], error) {
	return r.fans.Query(ctx, Query{Field: FieldUserID, Value: userID, Cursor: cursor, Limit: limit})
}
