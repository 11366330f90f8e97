package viewable

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
)

var tracer = otel.Tracer("viewable")

// Users 读取作者的用户存储
type Users interface {
	MultiGet(ctx context.Context, ids []string) ([]*model.User, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type Tweets interface {
	MultiGet(ctx context.Context, ids []string) ([]*model.Tweet, error)
}

// Edges viewer 相关的复合键存在性检查
type Edges interface {
	Liked(ctx context.Context, userID, tweetID string) (bool, error)
	Bookmarked(ctx context.Context, userID, tweetID string) (bool, error)
	Following(ctx context.Context, followerID, followeeID string) (bool, error)
}

type Composer struct {
	users  Users
	tweets Tweets
	edges  Edges
}

func NewComposer(users Users, tweets Tweets, edges Edges) *Composer {
	return &Composer{users: users, tweets: tweets, edges: edges}
}

// batch 一次组合调用预取的数据：引用到的推文、用户各一次 MultiGet
type batch struct {
	c      *Composer
	viewer string
	users  map[string]*model.User
	tweets map[string]*model.Tweet
}

func (c *Composer) start(ctx context.Context, op string, n int, viewerID string, opts Options) (context.Context, trace.Span, *batch, error) {
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.Int("entities", n),
		attribute.Bool("viewer_check", opts.EnableViewerCheck),
	))
	if opts.EnableViewerCheck {
		ok, err := c.users.Exists(ctx, viewerID)
		if err != nil {
			return ctx, span, nil, fmt.Errorf("%w: viewer lookup: %v", failure.ErrUnknown, err)
		}
		if !ok {
			return ctx, span, nil, fmt.Errorf("%w: %s", failure.ErrViewerDoesNotExist, viewerID)
		}
	}
	return ctx, span, &batch{c: c, viewer: viewerID}, nil
}

func finish(span trace.Span, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	return failure.Narrow(err, failure.ErrViewerDoesNotExist)
}

func (b *batch) loadUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		b.users = map[string]*model.User{}
		return nil
	}
	docs, err := b.c.users.MultiGet(ctx, ids)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	b.users = make(map[string]*model.User, len(docs))
	for _, d := range docs {
		if d != nil {
			b.users[d.ID] = d
		}
	}
	return nil
}

func (b *batch) loadTweets(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		b.tweets = map[string]*model.Tweet{}
		return nil
	}
	docs, err := b.c.tweets.MultiGet(ctx, ids)
	if err != nil {
		return fmt.Errorf("load tweets: %w", err)
	}
	b.tweets = make(map[string]*model.Tweet, len(docs))
	for _, d := range docs {
		if d != nil {
			b.tweets[d.ID] = d
		}
	}
	return nil
}

func (b *batch) user(id string) (model.User, error) {
	u, ok := b.users[id]
	if !ok {
		return model.User{}, fmt.Errorf("user %s missing", id)
	}
	return *u, nil
}

func (b *batch) tweet(id string) (model.Tweet, error) {
	t, ok := b.tweets[id]
	if !ok {
		return model.Tweet{}, fmt.Errorf("tweet %s missing", id)
	}
	return *t, nil
}

func (b *batch) composeUser(ctx context.Context, u model.User) (User, error) {
	out := User{User: u}
	if b.viewer == "" || b.viewer == u.ID {
		return out, nil
	}
	following, err := b.c.edges.Following(ctx, b.viewer, u.ID)
	if err != nil {
		return User{}, fmt.Errorf("following %s: %w", u.ID, err)
	}
	out.Viewables.Following = following
	return out, nil
}

func (b *batch) composeUserByID(ctx context.Context, id string) (User, error) {
	u, err := b.user(id)
	if err != nil {
		return User{}, err
	}
	return b.composeUser(ctx, u)
}

// composeTweet 并发查作者与点赞、收藏状态
func (b *batch) composeTweet(ctx context.Context, t model.Tweet) (Tweet, error) {
	out := Tweet{Tweet: t}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		author, err := b.composeUserByID(gctx, t.AuthorID)
		out.Viewables.Author = author
		return err
	})
	if b.viewer != "" {
		g.Go(func() error {
			liked, err := b.c.edges.Liked(gctx, b.viewer, t.ID)
			if err != nil {
				return fmt.Errorf("liked %s: %w", t.ID, err)
			}
			out.Viewables.Liked = liked
			return nil
		})
		g.Go(func() error {
			marked, err := b.c.edges.Bookmarked(gctx, b.viewer, t.ID)
			if err != nil {
				return fmt.Errorf("bookmarked %s: %w", t.ID, err)
			}
			out.Viewables.Bookmarked = marked
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Tweet{}, err
	}
	return out, nil
}

func (b *batch) composeReaction(ctx context.Context, r model.Reaction) (ReactionViewables, error) {
	var out ReactionViewables
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := b.tweet(r.ReactedTweetID())
		if err != nil {
			return err
		}
		out.Tweet, err = b.composeTweet(gctx, t)
		return err
	})
	g.Go(func() error {
		var err error
		out.Author, err = b.composeUserByID(gctx, r.ReactorID())
		return err
	})
	if err := g.Wait(); err != nil {
		return ReactionViewables{}, err
	}
	return out, nil
}

// each 并发组合每一项，保持输入顺序
func each[In, Out any](ctx context.Context, items []In, fn func(context.Context, In) (Out, error)) ([]Out, error) {
	out := make([]Out, len(items))
	g, gctx := errgroup.WithContext(ctx)
	for i := range items {
		g.Go(func() error {
			v, err := fn(gctx, items[i])
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// prefetchReactions 先取被互动的推文，再把推文作者与互动者合并为一次用户读取
func (b *batch) prefetchReactions(ctx context.Context, tweetIDs, reactorIDs []string) error {
	if err := b.loadTweets(ctx, tweetIDs); err != nil {
		return err
	}
	userIDs := append([]string(nil), reactorIDs...)
	for _, t := range b.tweets {
		userIDs = append(userIDs, t.AuthorID)
	}
	return b.loadUsers(ctx, userIDs)
}

func (c *Composer) Users(ctx context.Context, users []model.User, viewerID string, opts Options) (_ []User, err error) {
	ctx, span, b, err := c.start(ctx, "ComposeUsers", len(users), viewerID, opts)
	defer func() { err = finish(span, err); span.End() }()
	if err != nil {
		return nil, err
	}
	return each(ctx, users, b.composeUser)
}

func (c *Composer) Tweets(ctx context.Context, tweets []model.Tweet, viewerID string, opts Options) (_ []Tweet, err error) {
	ctx, span, b, err := c.start(ctx, "ComposeTweets", len(tweets), viewerID, opts)
	defer func() { err = finish(span, err); span.End() }()
	if err != nil {
		return nil, err
	}
	authorIDs := make([]string, len(tweets))
	for i, t := range tweets {
		authorIDs[i] = t.AuthorID
	}
	if err := b.loadUsers(ctx, authorIDs); err != nil {
		return nil, err
	}
	return each(ctx, tweets, b.composeTweet)
}

func (c *Composer) Comments(ctx context.Context, comments []model.Comment, viewerID string, opts Options) (_ []Comment, err error) {
	ctx, span, b, err := c.start(ctx, "ComposeComments", len(comments), viewerID, opts)
	defer func() { err = finish(span, err); span.End() }()
	if err != nil {
		return nil, err
	}
	if err := b.prefetchReactions(ctx, reactedTweets(comments), reactors(comments)); err != nil {
		return nil, err
	}
	return each(ctx, comments, func(ctx context.Context, cm model.Comment) (Comment, error) {
		v, err := b.composeReaction(ctx, cm)
		return Comment{Comment: cm, Viewables: v}, err
	})
}

func (c *Composer) Likes(ctx context.Context, likes []model.Like, viewerID string, opts Options) (_ []Like, err error) {
	ctx, span, b, err := c.start(ctx, "ComposeLikes", len(likes), viewerID, opts)
	defer func() { err = finish(span, err); span.End() }()
	if err != nil {
		return nil, err
	}
	if err := b.prefetchReactions(ctx, reactedTweets(likes), reactors(likes)); err != nil {
		return nil, err
	}
	return each(ctx, likes, func(ctx context.Context, l model.Like) (Like, error) {
		v, err := b.composeReaction(ctx, l)
		return Like{Like: l, Viewables: v}, err
	})
}

func (c *Composer) Bookmarks(ctx context.Context, bookmarks []model.Bookmark, viewerID string, opts Options) (_ []Bookmark, err error) {
	ctx, span, b, err := c.start(ctx, "ComposeBookmarks", len(bookmarks), viewerID, opts)
	defer func() { err = finish(span, err); span.End() }()
	if err != nil {
		return nil, err
	}
	if err := b.prefetchReactions(ctx, reactedTweets(bookmarks), reactors(bookmarks)); err != nil {
		return nil, err
	}
	return each(ctx, bookmarks, func(ctx context.Context, bm model.Bookmark) (Bookmark, error) {
		v, err := b.composeReaction(ctx, bm)
		return Bookmark{Bookmark: bm, Viewables: v}, err
	})
}

func (c *Composer) Followers(ctx context.Context, fans []model.Fan, viewerID string, opts Options) (_ []Follower, err error) {
	ctx, span, b, err := c.start(ctx, "ComposeFollowers", len(fans), viewerID, opts)
	defer func() { err = finish(span, err); span.End() }()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(fans))
	for i, f := range fans {
		ids[i] = f.FanID
	}
	if err := b.loadUsers(ctx, ids); err != nil {
		return nil, err
	}
	return each(ctx, fans, func(ctx context.Context, f model.Fan) (Follower, error) {
		u, err := b.composeUserByID(ctx, f.FanID)
		return Follower{Fan: f, Viewables: FollowerViewables{Follower: u}}, err
	})
}

func (c *Composer) Followees(ctx context.Context, follows []model.Follow, viewerID string, opts Options) (_ []Followee, err error) {
	ctx, span, b, err := c.start(ctx, "ComposeFollowees", len(follows), viewerID, opts)
	defer func() { err = finish(span, err); span.End() }()
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(follows))
	for i, f := range follows {
		ids[i] = f.FolloweeID
	}
	if err := b.loadUsers(ctx, ids); err != nil {
		return nil, err
	}
	return each(ctx, follows, func(ctx context.Context, f model.Follow) (Followee, error) {
		u, err := b.composeUserByID(ctx, f.FolloweeID)
		return Followee{Follow: f, Viewables: FolloweeViewables{Followee: u}}, err
	})
}

// User 组合单个用户
func (c *Composer) User(ctx context.Context, u model.User, viewerID string, opts Options) (User, error) {
	out, err := c.Users(ctx, []model.User{u}, viewerID, opts)
	if err != nil {
		return User{}, err
	}
	return out[0], nil
}

// Tweet 组合单条推文
func (c *Composer) Tweet(ctx context.Context, t model.Tweet, viewerID string, opts Options) (Tweet, error) {
	out, err := c.Tweets(ctx, []model.Tweet{t}, viewerID, opts)
	if err != nil {
		return Tweet{}, err
	}
	return out[0], nil
}

// Comment 组合单条评论
func (c *Composer) Comment(ctx context.Context, cm model.Comment, viewerID string, opts Options) (Comment, error) {
	out, err := c.Comments(ctx, []model.Comment{cm}, viewerID, opts)
	if err != nil {
		return Comment{}, err
	}
	return out[0], nil
}

// Bookmark 组合单条收藏
func (c *Composer) Bookmark(ctx context.Context, bm model.Bookmark, viewerID string, opts Options) (Bookmark, error) {
	out, err := c.Bookmarks(ctx, []model.Bookmark{bm}, viewerID, opts)
	if err != nil {
		return Bookmark{}, err
	}
	return out[0], nil
}

func reactedTweets[R model.Reaction](rs []R) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ReactedTweetID()
	}
	return out
}

func reactors[R model.Reaction](rs []R) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.ReactorID()
	}
	return out
}
