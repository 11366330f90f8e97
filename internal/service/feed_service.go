package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/resolve"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
	"github.com/d60-Lab/tweetfeed/pkg/logger"
)

var tracer = otel.Tracer("service")

// ActivityPager 活动日志分页读取
type ActivityPager interface {
	Page(ctx context.Context, feed activity.FeedID, cursor pagination.Cursor, limit int) (pagination.Page[activity.Reference], error)
}

// FeedService 所有分页 viewable 读取的入口
type FeedService struct {
	activities ActivityPager
	store      *repository.Store
	follows    repository.FollowRepository
	fans       repository.FanRepository
	composer   *viewable.Composer
	opts       viewable.Options
}

func NewFeedService(activities ActivityPager, store *repository.Store, composer *viewable.Composer, opts viewable.Options) *FeedService {
	return &FeedService{
		activities: activities,
		store:      store,
		follows:    repository.NewFollowRepository(store.Follows),
		fans:       repository.NewFanRepository(store.Fans),
		composer:   composer,
		opts:       opts,
	}
}

// narrow 在服务边界收敛失败原因，被收敛的原因记录日志
func narrow(span trace.Span, op string, err error, keep ...error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	out := failure.Narrow(err, keep...)
	if failure.Reason(out) == failure.ErrUnknown {
		logger.Error("feed operation failed", zap.String("op", op), zap.Error(err))
	}
	return out
}

type composeFunc[E, V any] func(ctx context.Context, items []E) ([]V, error)

// paginatedViewablesOf 活动页 -> 容错解析 -> 批量组合 -> 原样带回活动页游标
func paginatedViewablesOf[E model.Document, V any](
	ctx context.Context,
	s *FeedService,
	op string,
	feed activity.FeedID,
	coll resolve.Getter[E],
	compose composeFunc[E, V],
	cursor pagination.Cursor,
	limit int,
) (_ pagination.Page[V], err error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(attribute.String("feed", feed.String())))
	defer func() {
		err = narrow(span, op, err, failure.ErrMalformedParameters, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	limit = pagination.Clamp(limit)
	refs, err := s.activities.Page(ctx, feed, cursor, limit)
	if err != nil {
		return pagination.Page[V]{}, err
	}
	if len(refs.Items) == 0 {
		// 整页活动被并发撤回时日志仍会给出游标
		return pagination.Page[V]{Items: []V{}, NextCursor: refs.NextCursor}, nil
	}

	entities, err := resolve.Page(ctx, coll, refs, resolve.Tolerant)
	if err != nil {
		return pagination.Page[V]{}, err
	}
	span.SetAttributes(attribute.Int("refs", len(refs.Items)), attribute.Int("resolved", len(entities.Items)))
	if len(entities.Items) == 0 {
		return pagination.Page[V]{Items: []V{}, NextCursor: refs.NextCursor}, nil
	}

	views, err := compose(ctx, entities.Items)
	if err != nil {
		return pagination.Page[V]{}, err
	}
	return pagination.Page[V]{Items: views, NextCursor: refs.NextCursor}, nil
}

// queriedViewablesOf 与 paginatedViewablesOf 相同的收敛与短路规则，数据源是存储的键集查询
func queriedViewablesOf[E any, V any](
	ctx context.Context,
	op string,
	query func(ctx context.Context, cursor pagination.Cursor, limit int) (pagination.Page[E], error),
	compose composeFunc[E, V],
	cursor pagination.Cursor,
	limit int,
) (_ pagination.Page[V], err error) {
	ctx, span := tracer.Start(ctx, op)
	defer func() {
		err = narrow(span, op, err, failure.ErrMalformedParameters, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	page, err := query(ctx, cursor, pagination.Clamp(limit))
	if err != nil {
		return pagination.Page[V]{}, err
	}
	if len(page.Items) == 0 {
		return pagination.Empty[V](), nil
	}
	views, err := compose(ctx, page.Items)
	if err != nil {
		return pagination.Page[V]{}, err
	}
	return pagination.Page[V]{Items: views, NextCursor: page.NextCursor}, nil
}

func (s *FeedService) tweets(viewerID string) composeFunc[model.Tweet, viewable.Tweet] {
	return func(ctx context.Context, items []model.Tweet) ([]viewable.Tweet, error) {
		return s.composer.Tweets(ctx, items, viewerID, s.opts)
	}
}

// Timeline viewer 关注的人发布的推文
func (s *FeedService) Timeline(ctx context.Context, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Tweet], error) {
	return paginatedViewablesOf[model.Tweet, viewable.Tweet](ctx, s, "Timeline", activity.TimelineFeed(viewerID), s.store.Tweets, s.tweets(viewerID), cursor, limit)
}

// UserTweets 某个用户发布的推文
func (s *FeedService) UserTweets(ctx context.Context, userID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Tweet], error) {
	return paginatedViewablesOf[model.Tweet, viewable.Tweet](ctx, s, "UserTweets", activity.UserFeed(userID), s.store.Tweets, s.tweets(viewerID), cursor, limit)
}

func (s *FeedService) Comments(ctx context.Context, tweetID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Comment], error) {
	compose := func(ctx context.Context, items []model.Comment) ([]viewable.Comment, error) {
		return s.composer.Comments(ctx, items, viewerID, s.opts)
	}
	return paginatedViewablesOf[model.Comment, viewable.Comment](ctx, s, "Comments", activity.CommentsFeed(tweetID), s.store.Comments, compose, cursor, limit)
}

func (s *FeedService) Likes(ctx context.Context, tweetID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Like], error) {
	compose := func(ctx context.Context, items []model.Like) ([]viewable.Like, error) {
		return s.composer.Likes(ctx, items, viewerID, s.opts)
	}
	return paginatedViewablesOf[model.Like, viewable.Like](ctx, s, "Likes", activity.LikesFeed(tweetID), s.store.Likes, compose, cursor, limit)
}

// Bookmarks viewer 自己的收藏，最新在前
func (s *FeedService) Bookmarks(ctx context.Context, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Bookmark], error) {
	query := func(ctx context.Context, cursor pagination.Cursor, limit int) (pagination.Page[model.Bookmark], error) {
		return s.store.Bookmarks.Query(ctx, repository.Query{Field: repository.FieldAuthorID, Value: viewerID, Cursor: cursor, Limit: limit})
	}
	compose := func(ctx context.Context, items []model.Bookmark) ([]viewable.Bookmark, error) {
		return s.composer.Bookmarks(ctx, items, viewerID, s.opts)
	}
	return queriedViewablesOf[model.Bookmark, viewable.Bookmark](ctx, "Bookmarks", query, compose, cursor, limit)
}

// Followers 读粉丝表（由 FanReplicator 异步维护）
func (s *FeedService) Followers(ctx context.Context, userID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Follower], error) {
	query := func(ctx context.Context, cursor pagination.Cursor, limit int) (pagination.Page[model.Fan], error) {
		return s.fans.ListFans(ctx, userID, cursor, limit)
	}
	compose := func(ctx context.Context, items []model.Fan) ([]viewable.Follower, error) {
		return s.composer.Followers(ctx, items, viewerID, s.opts)
	}
	return queriedViewablesOf[model.Fan, viewable.Follower](ctx, "Followers", query, compose, cursor, limit)
}

func (s *FeedService) Followings(ctx context.Context, userID, viewerID string, cursor pagination.Cursor, limit int) (pagination.Page[viewable.Followee], error) {
	query := func(ctx context.Context, cursor pagination.Cursor, limit int) (pagination.Page[model.Follow], error) {
		return s.follows.ListFollowings(ctx, userID, cursor, limit)
	}
	compose := func(ctx context.Context, items []model.Follow) ([]viewable.Followee, error) {
		return s.composer.Followees(ctx, items, viewerID, s.opts)
	}
	return queriedViewablesOf[model.Follow, viewable.Followee](ctx, "Followings", query, compose, cursor, limit)
}

// Tweet 按 id 严格查找：不存在返回 failure.ErrNotFound
func (s *FeedService) Tweet(ctx context.Context, tweetID, viewerID string) (_ viewable.Tweet, err error) {
	ctx, span := tracer.Start(ctx, "Tweet")
	defer func() {
		err = narrow(span, "Tweet", err, failure.ErrNotFound, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	t, err := resolve.One[model.Tweet](ctx, s.store.Tweets, tweetID)
	if err != nil {
		return viewable.Tweet{}, err
	}
	return s.composer.Tweet(ctx, t, viewerID, s.opts)
}

// Comment 按 id 严格查找
func (s *FeedService) Comment(ctx context.Context, commentID, viewerID string) (_ viewable.Comment, err error) {
	ctx, span := tracer.Start(ctx, "Comment")
	defer func() {
		err = narrow(span, "Comment", err, failure.ErrNotFound, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	c, err := resolve.One[model.Comment](ctx, s.store.Comments, commentID)
	if err != nil {
		return viewable.Comment{}, err
	}
	return s.composer.Comment(ctx, c, viewerID, s.opts)
}
