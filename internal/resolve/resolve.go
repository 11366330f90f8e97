// Package resolve 把活动引用关联到它们指向的实体
package resolve

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

var tracer = otel.Tracer("resolve")

// Policy 引用的实体已不存在时的处理方式
type Policy int

const (
	// Tolerant 丢弃实体已不存在的引用，其余保持相对顺序；用于信息流分页（删除后活动可能短暂残留）
	Tolerant Policy = iota
	// Strict 整体失败，返回 failure.ErrNotFound
	Strict
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "tolerant"
}

// Getter 解析所需的集合能力
type Getter[T model.Document] interface {
	MultiGet(ctx context.Context, ids []string) ([]*T, error)
}

// Page 一次 MultiGet 按引用顺序解析整页；refs 的游标原样带回，Tolerant 缩短的页仍从活动页的位置续页
func Page[T model.Document](ctx context.Context, coll Getter[T], refs pagination.Page[activity.Reference], policy Policy) (pagination.Page[T], error) {
	ctx, span := tracer.Start(ctx, "ResolvePage")
	defer span.End()
	span.SetAttributes(attribute.Int("refs", len(refs.Items)), attribute.String("policy", policy.String()))

	if len(refs.Items) == 0 {
		return pagination.Page[T]{Items: []T{}, NextCursor: refs.NextCursor}, nil
	}

	ids := make([]string, len(refs.Items))
	for i, r := range refs.Items {
		ids[i] = r.ObjectID
	}
	docs, err := coll.MultiGet(ctx, ids)
	if err != nil {
		span.RecordError(err)
		return pagination.Page[T]{}, fmt.Errorf("%w: resolve: %v", failure.ErrUnknown, err)
	}
	if len(docs) != len(ids) {
		return pagination.Page[T]{}, fmt.Errorf("%w: resolve: store returned %d of %d", failure.ErrUnknown, len(docs), len(ids))
	}

	items := make([]T, 0, len(docs))
	for i, doc := range docs {
		if doc == nil {
			if policy == Strict {
				return pagination.Page[T]{}, fmt.Errorf("%w: %s", failure.ErrNotFound, ids[i])
			}
			continue
		}
		items = append(items, *doc)
	}
	return pagination.Page[T]{Items: items, NextCursor: refs.NextCursor}, nil
}

// One 严格解析单个 id
func One[T model.Document](ctx context.Context, coll Getter[T], id string) (T, error) {
	refs := pagination.Page[activity.Reference]{Items: []activity.Reference{{ObjectID: id}}}
	page, err := Page(ctx, coll, refs, Strict)
	if err != nil {
		var zero T
		return zero, err
	}
	return page.Items[0], nil
}
