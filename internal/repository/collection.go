package repository

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"

	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

var tracer = otel.Tracer("repository")

// Query 按字段等值过滤的游标分页查询，顺序固定为 timestamp DESC, id DESC
type Query struct {
	Field  string
	Value  string
	Cursor pagination.Cursor
	Limit  int
}

// Collection 单类文档的存储接口
//
// 错误约定：Get/Delete/Increment 找不到返回 failure.ErrNotFound，
// Create 主键冲突返回 failure.ErrAlreadyExists，游标无法解码返回 failure.ErrMalformedParameters，
// 其余为存储原始错误。
type Collection[T model.Document] interface {
	Get(ctx context.Context, id string) (*T, error)
	// MultiGet 一次批量读取；结果与 ids 按位置对齐，不存在的位置为 nil
	MultiGet(ctx context.Context, ids []string) ([]*T, error)
	Exists(ctx context.Context, id string) (bool, error)
	Query(ctx context.Context, q Query) (pagination.Page[T], error)
	Create(ctx context.Context, doc *T) error
	Delete(ctx context.Context, id string) error
	// Increment 原子地给计数列加 delta
	Increment(ctx context.Context, id, field string, delta int64) error
}

// tableName 取模型的 TableName()，同时用作 Mongo 集合名
func tableName[T model.Document]() string {
	var zero T
	if tn, ok := any(zero).(interface{ TableName() string }); ok {
		return tn.TableName()
	}
	return fmt.Sprintf("%T", zero)
}

func keyOf[T model.Document](doc T) pagination.Key {
	return pagination.Key{Score: doc.SortKey(), ID: doc.DocumentID()}
}

// align 按 ids 顺序重排批量读取结果
func align[T model.Document](ids []string, rows []T) []*T {
	byID := make(map[string]*T, len(rows))
	for i := range rows {
		byID[rows[i].DocumentID()] = &rows[i]
	}
	out := make([]*T, len(ids))
	for i, id := range ids {
		out[i] = byID[id]
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// 查询字段与计数列
const (
	FieldAuthorID   = "author_id"
	FieldTweetID    = "tweet_id"
	FieldFollowerID = "follower_id"
	FieldFolloweeID = "followee_id"
	FieldUserID     = "user_id"

	ColumnFollowersCount  = "followers_count"
	ColumnFollowingsCount = "followings_count"
	ColumnTweetsCount     = "tweets_count"
	ColumnLikesCount      = "likes_count"
	ColumnCommentsCount   = "comments_count"
)
