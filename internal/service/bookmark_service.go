package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
)

// BookmarkService 收藏只存在于实体存储，不写活动日志
type BookmarkService struct {
	store    *repository.Store
	composer *viewable.Composer
	opts     viewable.Options
}

func NewBookmarkService(store *repository.Store, composer *viewable.Composer, opts viewable.Options) *BookmarkService {
	return &BookmarkService{store: store, composer: composer, opts: opts}
}

// Create 推文不存在返回 failure.ErrNotFound，重复收藏返回 failure.ErrAlreadyExists
func (s *BookmarkService) Create(ctx context.Context, userID, tweetID string) (_ viewable.Bookmark, err error) {
	ctx, span := tracer.Start(ctx, "CreateBookmark", trace.WithAttributes(attribute.String("tweet", tweetID)))
	defer func() {
		err = narrow(span, "CreateBookmark", err, failure.ErrNotFound, failure.ErrAlreadyExists, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	now, ts := model.Stamp()
	b := model.Bookmark{
		ID:        model.CompositeID(userID, tweetID),
		TweetID:   tweetID,
		AuthorID:  userID,
		Timestamp: ts,
		CreatedAt: now,
	}
	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		if err := requireUsers(ctx, tx, userID); err != nil {
			return err
		}
		ok, err := tx.Tweets.Exists(ctx, tweetID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("tweet %s: %w", tweetID, failure.ErrNotFound)
		}
		dup, err := repository.NewEdgeSet(tx.Bookmarks).ExistsByComposite(ctx, userID, tweetID)
		if err != nil {
			return err
		}
		if dup {
			return fmt.Errorf("bookmark %s: %w", b.ID, failure.ErrAlreadyExists)
		}
		return tx.Bookmarks.Create(ctx, &b)
	})
	if err != nil {
		return viewable.Bookmark{}, err
	}
	return s.composer.Bookmark(ctx, b, userID, s.opts)
}

// Delete 未收藏返回 failure.ErrNotFound
func (s *BookmarkService) Delete(ctx context.Context, userID, tweetID string) (err error) {
	ctx, span := tracer.Start(ctx, "DeleteBookmark", trace.WithAttributes(attribute.String("tweet", tweetID)))
	defer func() {
		err = narrow(span, "DeleteBookmark", err, failure.ErrNotFound)
		span.End()
	}()

	return s.store.Bookmarks.Delete(ctx, model.CompositeID(userID, tweetID))
}
