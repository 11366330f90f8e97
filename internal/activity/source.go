package activity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
	"github.com/d60-Lab/tweetfeed/pkg/logger"
)

var tracer = otel.Tracer("activity")

// Source 引擎访问活动日志的适配器；错误只会是 failure.ErrMalformedParameters 或 failure.ErrUnknown
type Source struct {
	log LogService
}

func NewSource(log LogService) *Source {
	return &Source{log: log}
}

// Follow 让 follower 的时间线关注 followee 的用户 feed；重复关注视为成功
func (s *Source) Follow(ctx context.Context, followerID, followeeID string) error {
	ctx, span := tracer.Start(ctx, "ActivityFollow")
	defer span.End()

	if err := s.log.Follow(ctx, TimelineFeed(followerID), UserFeed(followeeID)); err != nil {
		return s.fail(span, "follow", err)
	}
	return nil
}

// Unfollow 取消关注；未关注时视为成功
func (s *Source) Unfollow(ctx context.Context, followerID, followeeID string) error {
	ctx, span := tracer.Start(ctx, "ActivityUnfollow")
	defer span.End()

	if err := s.log.Unfollow(ctx, TimelineFeed(followerID), UserFeed(followeeID)); err != nil {
		return s.fail(span, "unfollow", err)
	}
	return nil
}

// Publish 追加活动；相同 foreign id 重复发布无副作用
func (s *Source) Publish(ctx context.Context, feed FeedID, a Activity) (Reference, error) {
	ctx, span := tracer.Start(ctx, "ActivityPublish", trace.WithAttributes(attribute.String("feed", feed.String())))
	defer span.End()

	ref, err := s.log.AddActivity(ctx, feed, a)
	if err != nil {
		return Reference{}, s.fail(span, "publish", err)
	}
	return ref, nil
}

// Retract 撤回 foreignID 对应的活动
func (s *Source) Retract(ctx context.Context, feed FeedID, foreignID string) error {
	ctx, span := tracer.Start(ctx, "ActivityRetract", trace.WithAttributes(attribute.String("feed", feed.String())))
	defer span.End()

	if err := s.log.RemoveActivity(ctx, feed, foreignID); err != nil {
		return s.fail(span, "retract", err)
	}
	return nil
}

// Page 读取 feed 的一页引用
func (s *Source) Page(ctx context.Context, feed FeedID, cursor pagination.Cursor, limit int) (pagination.Page[Reference], error) {
	ctx, span := tracer.Start(ctx, "ActivityPage", trace.WithAttributes(attribute.String("feed", feed.String())))
	defer span.End()

	limit = pagination.Clamp(limit)

	var before int64
	if !cursor.IsZero() {
		key, err := pagination.Decode(cursor)
		if err != nil {
			return pagination.Page[Reference]{}, fmt.Errorf("%w: %v", failure.ErrMalformedParameters, err)
		}
		before = key.Score
	}

	lp, err := s.log.Read(ctx, feed, before, limit)
	if err != nil {
		return pagination.Page[Reference]{}, s.fail(span, "page", err)
	}

	items := lp.Activities
	hasMore := lp.HasMore
	if len(items) > limit {
		items, hasMore = items[:limit], true
	}
	if items == nil {
		items = []Reference{}
	}

	page := pagination.Page[Reference]{Items: items}
	switch {
	case !hasMore:
	case len(items) > 0:
		page.NextCursor = pagination.Encode(items[len(items)-1].Key())
	case lp.LastPosition > 0:
		// 本页活动都被并发撤回，游标停在扫描到的最后位置
		page.NextCursor = pagination.Encode(pagination.Key{Score: lp.LastPosition, ID: lp.LastID})
	}
	return page, nil
}

func (s *Source) Timeline(ctx context.Context, userID string, cursor pagination.Cursor, limit int) (pagination.Page[Reference], error) {
	return s.Page(ctx, TimelineFeed(userID), cursor, limit)
}

func (s *Source) UserTweets(ctx context.Context, userID string, cursor pagination.Cursor, limit int) (pagination.Page[Reference], error) {
	return s.Page(ctx, UserFeed(userID), cursor, limit)
}

func (s *Source) Comments(ctx context.Context, tweetID string, cursor pagination.Cursor, limit int) (pagination.Page[Reference], error) {
	return s.Page(ctx, CommentsFeed(tweetID), cursor, limit)
}

func (s *Source) Likes(ctx context.Context, tweetID string, cursor pagination.Cursor, limit int) (pagination.Page[Reference], error) {
	return s.Page(ctx, LikesFeed(tweetID), cursor, limit)
}

// fail 日志服务返回 400 视为参数错误，其余一律 unknown
func (s *Source) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	logger.Warn("activity service call failed", zap.String("op", op), zap.Error(err))

	var se *ServiceError
	if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %v", failure.ErrMalformedParameters, err)
	}
	return fmt.Errorf("%w: %v", failure.ErrUnknown, err)
}
