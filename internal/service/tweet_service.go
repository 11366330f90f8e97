package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
)

var ErrTextLength = fmt.Errorf("%w: text must be 1..%d characters", failure.ErrMalformedParameters, model.MaxTweetLength)

// validateText 去掉首尾空白后 1..280 个字符
func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > model.MaxTweetLength {
		return "", ErrTextLength
	}
	return text, nil
}

// TweetService 推文、评论、点赞的写路径
type TweetService struct {
	store     *repository.Store
	publisher *Publisher
	composer  *viewable.Composer
	cache     UserCache
	opts      viewable.Options
}

func NewTweetService(store *repository.Store, publisher *Publisher, composer *viewable.Composer, cache UserCache, opts viewable.Options) *TweetService {
	if cache == nil {
		cache = noCache{}
	}
	return &TweetService{store: store, publisher: publisher, composer: composer, cache: cache, opts: opts}
}

// Create 推文 + 作者 tweets_count + 用户 feed 事件同事务提交
func (s *TweetService) Create(ctx context.Context, authorID, text string) (_ viewable.Tweet, err error) {
	ctx, span := tracer.Start(ctx, "CreateTweet", trace.WithAttributes(attribute.String("author", authorID)))
	defer func() {
		err = narrow(span, "CreateTweet", err, failure.ErrMalformedParameters, failure.ErrNotFound, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	text, err = validateText(text)
	if err != nil {
		return viewable.Tweet{}, err
	}

	now, ts := model.Stamp()
	t := model.Tweet{
		ID:        uuid.New().String(),
		AuthorID:  authorID,
		Text:      text,
		Timestamp: ts,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		if err := tx.Users.Increment(ctx, authorID, repository.ColumnTweetsCount, 1); err != nil {
			return err
		}
		if err := tx.Tweets.Create(ctx, &t); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, activity.UserFeed(authorID), activity.Activity{
			Verb:     activity.VerbTweet,
			ActorID:  authorID,
			ObjectID: t.ID,
		})
	})
	if err != nil {
		return viewable.Tweet{}, err
	}
	s.cache.Invalidate(ctx, authorID)
	return s.composer.Tweet(ctx, t, authorID, s.opts)
}

// Delete 只有作者本人可以删除；否则视为不存在
func (s *TweetService) Delete(ctx context.Context, authorID, tweetID string) (err error) {
	ctx, span := tracer.Start(ctx, "DeleteTweet", trace.WithAttributes(attribute.String("tweet", tweetID)))
	defer func() {
		err = narrow(span, "DeleteTweet", err, failure.ErrNotFound)
		span.End()
	}()

	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		t, err := tx.Tweets.Get(ctx, tweetID)
		if err != nil {
			return err
		}
		if t.AuthorID != authorID {
			return fmt.Errorf("tweet %s of another author: %w", tweetID, failure.ErrNotFound)
		}
		if err := tx.Tweets.Delete(ctx, tweetID); err != nil {
			return err
		}
		if err := tx.Users.Increment(ctx, authorID, repository.ColumnTweetsCount, -1); err != nil {
			return err
		}
		return s.publisher.Retract(ctx, tx, activity.UserFeed(authorID), activity.ForeignID(activity.VerbTweet, tweetID))
	})
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, authorID)
	return nil
}

// AddComment 评论 + 推文 comments_count + 评论 feed 事件
func (s *TweetService) AddComment(ctx context.Context, authorID, tweetID, text string) (_ viewable.Comment, err error) {
	ctx, span := tracer.Start(ctx, "AddComment", trace.WithAttributes(attribute.String("tweet", tweetID)))
	defer func() {
		err = narrow(span, "AddComment", err, failure.ErrMalformedParameters, failure.ErrNotFound, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	text, err = validateText(text)
	if err != nil {
		return viewable.Comment{}, err
	}

	now, ts := model.Stamp()
	c := model.Comment{
		ID:        uuid.New().String(),
		TweetID:   tweetID,
		AuthorID:  authorID,
		Text:      text,
		Timestamp: ts,
		CreatedAt: now,
	}
	err = s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		if err := requireUsers(ctx, tx, authorID); err != nil {
			return err
		}
		if err := tx.Tweets.Increment(ctx, tweetID, repository.ColumnCommentsCount, 1); err != nil {
			return err
		}
		if err := tx.Comments.Create(ctx, &c); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, activity.CommentsFeed(tweetID), activity.Activity{
			Verb:     activity.VerbComment,
			ActorID:  authorID,
			ObjectID: c.ID,
		})
	})
	if err != nil {
		return viewable.Comment{}, err
	}
	return s.composer.Comment(ctx, c, authorID, s.opts)
}

// RemoveComment 只有评论作者可以删除
func (s *TweetService) RemoveComment(ctx context.Context, authorID, tweetID, commentID string) (err error) {
	ctx, span := tracer.Start(ctx, "RemoveComment", trace.WithAttributes(attribute.String("comment", commentID)))
	defer func() {
		err = narrow(span, "RemoveComment", err, failure.ErrNotFound)
		span.End()
	}()

	return s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		c, err := tx.Comments.Get(ctx, commentID)
		if err != nil {
			return err
		}
		if c.AuthorID != authorID || c.TweetID != tweetID {
			return fmt.Errorf("comment %s: %w", commentID, failure.ErrNotFound)
		}
		if err := tx.Comments.Delete(ctx, commentID); err != nil {
			return err
		}
		// 推文可能已被删除，计数不存在时忽略
		if err := tx.Tweets.Increment(ctx, tweetID, repository.ColumnCommentsCount, -1); err != nil && !errors.Is(err, failure.ErrNotFound) {
			return err
		}
		return s.publisher.Retract(ctx, tx, activity.CommentsFeed(tweetID), activity.ForeignID(activity.VerbComment, commentID))
	})
}

// Like 重复点赞返回 failure.ErrAlreadyExists
func (s *TweetService) Like(ctx context.Context, userID, tweetID string) (_ viewable.Like, err error) {
	ctx, span := tracer.Start(ctx, "Like", trace.WithAttributes(attribute.String("tweet", tweetID)))
	defer func() {
		err = narrow(span, "Like", err, failure.ErrNotFound, failure.ErrAlreadyExists, failure.ErrViewerDoesNotExist)
		span.End()
	}()

	now, ts := model.Stamp()
	l := model.Like{
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
		liked, err := repository.NewEdgeSet(tx.Likes).ExistsByComposite(ctx, userID, tweetID)
		if err != nil {
			return err
		}
		if liked {
			return fmt.Errorf("like %s: %w", l.ID, failure.ErrAlreadyExists)
		}
		if err := tx.Tweets.Increment(ctx, tweetID, repository.ColumnLikesCount, 1); err != nil {
			return err
		}
		if err := tx.Likes.Create(ctx, &l); err != nil {
			return err
		}
		return s.publisher.Publish(ctx, tx, activity.LikesFeed(tweetID), activity.Activity{
			Verb:     activity.VerbLike,
			ActorID:  userID,
			ObjectID: l.ID,
		})
	})
	if err != nil {
		return viewable.Like{}, err
	}
	out, err := s.composer.Likes(ctx, []model.Like{l}, userID, s.opts)
	if err != nil {
		return viewable.Like{}, err
	}
	return out[0], nil
}

// Unlike 未点赞返回 failure.ErrNotFound
func (s *TweetService) Unlike(ctx context.Context, userID, tweetID string) (err error) {
	ctx, span := tracer.Start(ctx, "Unlike", trace.WithAttributes(attribute.String("tweet", tweetID)))
	defer func() {
		err = narrow(span, "Unlike", err, failure.ErrNotFound)
		span.End()
	}()

	id := model.CompositeID(userID, tweetID)
	return s.store.RunAtomic(ctx, func(tx *repository.Store) error {
		if err := tx.Likes.Delete(ctx, id); err != nil {
			return err
		}
		if err := tx.Tweets.Increment(ctx, tweetID, repository.ColumnLikesCount, -1); err != nil && !errors.Is(err, failure.ErrNotFound) {
			return err
		}
		return s.publisher.Retract(ctx, tx, activity.LikesFeed(tweetID), activity.ForeignID(activity.VerbLike, id))
	})
}
