package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/activity/redislog"
	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/storetest"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
)

// harness sqlite 实体存储 + miniredis 活动日志，组装完整写读路径
type harness struct {
	store      *repository.Store
	source     *activity.Source
	relay      *OutboxRelay
	replicator *FanReplicator
	stopRepl   func(context.Context) error

	users     *UserService
	tweets    *TweetService
	bookmarks *BookmarkService
	relations RelationshipService
	feed      *FeedService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	rdb, _ := storetest.NewRedis(t)
	store := repository.NewGormStore(storetest.NewDB(t))
	source := activity.NewSource(redislog.New(rdb, 300))

	userCache := repository.NewCachedCollection(store.Users, rdb, "user", time.Minute)
	composer := viewable.NewComposer(userCache, store.Tweets, repository.NewEdges(store))
	opts := viewable.Options{EnableViewerCheck: true}

	publisher := NewPublisher()
	follows := repository.NewFollowRepository(store.Follows)
	replicator := NewFanReplicator(repository.NewFanRepository(store.Fans), follows, 128)
	h := &harness{
		store:      store,
		source:     source,
		relay:      NewOutboxRelay(store.Queue, follows, source, RelayConfig{ClaimLimit: 16}),
		replicator: replicator,
		stopRepl:   replicator.Start(2),
		users:      NewUserService(store, userCache, composer, opts),
		tweets:     NewTweetService(store, publisher, composer, userCache, opts),
		bookmarks:  NewBookmarkService(store, composer, opts),
		relations:  NewRelationshipService(store, publisher, replicator, userCache),
		feed:       NewFeedService(source, store, composer, opts),
	}
	t.Cleanup(func() { _ = h.stopRepl(context.Background()) })
	return h
}

// settle 投递全部 outbox 事件并等待粉丝表复制完成
func (h *harness) settle(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		n, err := h.relay.ProcessOnce(ctx)
		require.NoError(t, err)
		if n == 0 {
			break
		}
	}
	flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, h.replicator.Flush(flushCtx))
}

func (h *harness) user(t *testing.T, name string) model.User {
	t.Helper()
	u, err := h.users.Create(context.Background(), CreateUserInput{Name: name, Username: name, Email: name + "@example.com"})
	require.NoError(t, err)
	return u
}

func (h *harness) reload(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := h.store.Users.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func tweetIDs(items []viewable.Tweet) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestFollowThenTimelineShowsFolloweeTweets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	require.NoError(t, h.relations.Follow(ctx, bob.ID, alice.ID))
	first, err := h.tweets.Create(ctx, alice.ID, "first")
	require.NoError(t, err)
	second, err := h.tweets.Create(ctx, alice.ID, "second")
	require.NoError(t, err)
	h.settle(t)

	page, err := h.feed.Timeline(ctx, bob.ID, "", 0)
	require.NoError(t, err)
	require.Equal(t, []string{second.ID, first.ID}, tweetIDs(page.Items))
	assert.False(t, page.HasMore())

	author := page.Items[0].Viewables.Author
	assert.Equal(t, alice.ID, author.ID)
	assert.True(t, author.Viewables.Following)
	assert.EqualValues(t, 2, author.TweetsCount)
	assert.EqualValues(t, 1, author.FollowersCount)
}

func TestFollowCopiesExistingTweets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	tw, err := h.tweets.Create(ctx, alice.ID, "before follow")
	require.NoError(t, err)
	h.settle(t)
	require.NoError(t, h.relations.Follow(ctx, bob.ID, alice.ID))
	h.settle(t)

	page, err := h.feed.Timeline(ctx, bob.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{tw.ID}, tweetIDs(page.Items))
}

func TestFollowIsIdempotentAndCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	require.NoError(t, h.relations.Follow(ctx, bob.ID, alice.ID))
	require.NoError(t, h.relations.Follow(ctx, bob.ID, alice.ID))
	h.settle(t)

	assert.EqualValues(t, 1, h.reload(t, alice.ID).FollowersCount)
	assert.EqualValues(t, 1, h.reload(t, bob.ID).FollowingsCount)

	followers, err := h.feed.Followers(ctx, alice.ID, bob.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, followers.Items, 1)
	assert.Equal(t, bob.ID, followers.Items[0].Viewables.Follower.ID)

	followings, err := h.feed.Followings(ctx, bob.ID, bob.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, followings.Items, 1)
	assert.Equal(t, alice.ID, followings.Items[0].Viewables.Followee.ID)
	assert.True(t, followings.Items[0].Viewables.Followee.Viewables.Following)
}

func TestFollowRejectsSelfAndUnknownUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")

	assert.ErrorIs(t, h.relations.Follow(ctx, alice.ID, alice.ID), failure.ErrMalformedParameters)
	assert.ErrorIs(t, h.relations.Follow(ctx, alice.ID, "ghost"), failure.ErrNotFound)
	assert.EqualValues(t, 0, h.reload(t, alice.ID).FollowingsCount)
}

func TestUnfollowRemovesTimelineAndFan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	require.NoError(t, h.relations.Follow(ctx, bob.ID, alice.ID))
	_, err := h.tweets.Create(ctx, alice.ID, "hello")
	require.NoError(t, err)
	h.settle(t)

	require.NoError(t, h.relations.Unfollow(ctx, bob.ID, alice.ID))
	require.NoError(t, h.relations.Unfollow(ctx, bob.ID, alice.ID))
	h.settle(t)

	page, err := h.feed.Timeline(ctx, bob.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)

	followers, err := h.feed.Followers(ctx, alice.ID, "", "", 10)
	require.NoError(t, err)
	assert.Empty(t, followers.Items)
	assert.EqualValues(t, 0, h.reload(t, alice.ID).FollowersCount)
	assert.EqualValues(t, 0, h.reload(t, bob.ID).FollowingsCount)
}

func TestTweetCreateValidatesText(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")

	for _, text := range []string{"", "   ", string(make([]rune, model.MaxTweetLength+1))} {
		_, err := h.tweets.Create(ctx, alice.ID, text)
		assert.ErrorIs(t, err, failure.ErrMalformedParameters)
	}

	long := ""
	for i := 0; i < model.MaxTweetLength; i++ {
		long += "字"
	}
	tw, err := h.tweets.Create(ctx, alice.ID, long)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, tw.Viewables.Author.ID)

	_, err = h.tweets.Create(ctx, "ghost", "hi")
	assert.ErrorIs(t, err, failure.ErrNotFound)
}

func TestTweetDeleteRetractsFromFeeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	tw, err := h.tweets.Create(ctx, alice.ID, "oops")
	require.NoError(t, err)
	h.settle(t)

	assert.ErrorIs(t, h.tweets.Delete(ctx, bob.ID, tw.ID), failure.ErrNotFound)
	require.NoError(t, h.tweets.Delete(ctx, alice.ID, tw.ID))
	assert.ErrorIs(t, h.tweets.Delete(ctx, alice.ID, tw.ID), failure.ErrNotFound)
	h.settle(t)

	page, err := h.feed.UserTweets(ctx, alice.ID, bob.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.EqualValues(t, 0, h.reload(t, alice.ID).TweetsCount)

	_, err = h.feed.Tweet(ctx, tw.ID, bob.ID)
	assert.ErrorIs(t, err, failure.ErrNotFound)
}

func TestUserTweetsPagesWithCursor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice")

	var created []string
	for i := 0; i < 11; i++ {
		tw, err := h.tweets.Create(ctx, alice.ID, "tweet")
		require.NoError(t, err)
		created = append([]string{tw.ID}, created...)
	}
	h.settle(t)

	refs, err := h.source.UserTweets(ctx, alice.ID, "", pagination.MaxPageLength)
	require.NoError(t, err)
	require.Len(t, refs.Items, 11)

	page, err := h.feed.UserTweets(ctx, alice.ID, alice.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 10)
	assert.Equal(t, created[:10], tweetIDs(page.Items))
	assert.Equal(t, pagination.Encode(refs.Items[9].Key()), page.NextCursor)

	rest, err := h.feed.UserTweets(ctx, alice.ID, alice.ID, page.NextCursor, 10)
	require.NoError(t, err)
	assert.Equal(t, created[10:], tweetIDs(rest.Items))
	assert.False(t, rest.HasMore())
}

func TestCommentsLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	tw, err := h.tweets.Create(ctx, alice.ID, "post")
	require.NoError(t, err)

	c, err := h.tweets.AddComment(ctx, bob.ID, tw.ID, "nice")
	require.NoError(t, err)
	assert.Equal(t, tw.ID, c.Viewables.Tweet.ID)
	assert.Equal(t, bob.ID, c.Viewables.Author.ID)

	_, err = h.tweets.AddComment(ctx, bob.ID, "missing", "nice")
	assert.ErrorIs(t, err, failure.ErrNotFound)
	h.settle(t)

	page, err := h.feed.Comments(ctx, tw.ID, alice.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, c.ID, page.Items[0].ID)
	assert.EqualValues(t, 1, page.Items[0].Viewables.Tweet.CommentsCount)

	got, err := h.feed.Comment(ctx, c.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "nice", got.Text)

	assert.ErrorIs(t, h.tweets.RemoveComment(ctx, alice.ID, tw.ID, c.ID), failure.ErrNotFound)
	require.NoError(t, h.tweets.RemoveComment(ctx, bob.ID, tw.ID, c.ID))
	h.settle(t)

	page, err = h.feed.Comments(ctx, tw.ID, alice.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestLikeAndUnlike(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	tw, err := h.tweets.Create(ctx, alice.ID, "post")
	require.NoError(t, err)

	like, err := h.tweets.Like(ctx, bob.ID, tw.ID)
	require.NoError(t, err)
	assert.True(t, like.Viewables.Tweet.Viewables.Liked)
	assert.EqualValues(t, 1, like.Viewables.Tweet.LikesCount)

	_, err = h.tweets.Like(ctx, bob.ID, tw.ID)
	assert.ErrorIs(t, err, failure.ErrAlreadyExists)
	_, err = h.tweets.Like(ctx, bob.ID, "missing")
	assert.ErrorIs(t, err, failure.ErrNotFound)
	h.settle(t)

	likes, err := h.feed.Likes(ctx, tw.ID, alice.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, likes.Items, 1)
	assert.Equal(t, bob.ID, likes.Items[0].Viewables.Author.ID)
	assert.False(t, likes.Items[0].Viewables.Tweet.Viewables.Liked)

	require.NoError(t, h.tweets.Unlike(ctx, bob.ID, tw.ID))
	assert.ErrorIs(t, h.tweets.Unlike(ctx, bob.ID, tw.ID), failure.ErrNotFound)
	h.settle(t)

	likes, err = h.feed.Likes(ctx, tw.ID, alice.ID, "", 10)
	require.NoError(t, err)
	assert.Empty(t, likes.Items)

	got, err := h.feed.Tweet(ctx, tw.ID, bob.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got.LikesCount)
	assert.False(t, got.Viewables.Liked)
}

func TestBookmarks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")
	t1, err := h.tweets.Create(ctx, alice.ID, "one")
	require.NoError(t, err)
	t2, err := h.tweets.Create(ctx, alice.ID, "two")
	require.NoError(t, err)

	b, err := h.bookmarks.Create(ctx, bob.ID, t1.ID)
	require.NoError(t, err)
	assert.True(t, b.Viewables.Tweet.Viewables.Bookmarked)
	assert.Equal(t, alice.ID, b.Viewables.Tweet.Viewables.Author.ID)

	_, err = h.bookmarks.Create(ctx, bob.ID, t1.ID)
	assert.ErrorIs(t, err, failure.ErrAlreadyExists)
	_, err = h.bookmarks.Create(ctx, bob.ID, "missing")
	assert.ErrorIs(t, err, failure.ErrNotFound)

	time.Sleep(time.Millisecond)
	_, err = h.bookmarks.Create(ctx, bob.ID, t2.ID)
	require.NoError(t, err)

	page, err := h.feed.Bookmarks(ctx, bob.ID, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, t2.ID, page.Items[0].TweetID)
	assert.Equal(t, t1.ID, page.Items[1].TweetID)

	require.NoError(t, h.bookmarks.Delete(ctx, bob.ID, t1.ID))
	assert.ErrorIs(t, h.bookmarks.Delete(ctx, bob.ID, t1.ID), failure.ErrNotFound)
}

func TestUserCreateAndGet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice, bob := h.user(t, "alice"), h.user(t, "bob")

	_, err := h.users.Create(ctx, CreateUserInput{Username: "other", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, failure.ErrAlreadyExists)
	_, err = h.users.Create(ctx, CreateUserInput{Username: "alice", Email: "new@example.com"})
	assert.ErrorIs(t, err, failure.ErrAlreadyExists)
	_, err = h.users.Create(ctx, CreateUserInput{Username: "nomail"})
	assert.ErrorIs(t, err, failure.ErrMalformedParameters)

	require.NoError(t, h.relations.Follow(ctx, bob.ID, alice.ID))
	got, err := h.users.Get(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, got.Viewables.Following)
	assert.EqualValues(t, 1, got.FollowersCount)

	_, err = h.users.Get(ctx, "ghost", bob.ID)
	assert.ErrorIs(t, err, failure.ErrNotFound)
	_, err = h.users.Get(ctx, alice.ID, "ghost")
	assert.ErrorIs(t, err, failure.ErrViewerDoesNotExist)
}
