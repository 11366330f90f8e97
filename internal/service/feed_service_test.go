package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/storetest"
	"github.com/d60-Lab/tweetfeed/internal/viewable"
)

type fakePager struct {
	page  pagination.Page[activity.Reference]
	err   error
	calls atomic.Int64
}

func (f *fakePager) Page(context.Context, activity.FeedID, pagination.Cursor, int) (pagination.Page[activity.Reference], error) {
	f.calls.Add(1)
	return f.page, f.err
}

// counting 统计批量读与存在性检查次数
type counting[T model.Document] struct {
	repository.Collection[T]
	multiGets atomic.Int64
	exists    atomic.Int64
}

func (c *counting[T]) MultiGet(ctx context.Context, ids []string) ([]*T, error) {
	c.multiGets.Add(1)
	return c.Collection.MultiGet(ctx, ids)
}

func (c *counting[T]) Exists(ctx context.Context, id string) (bool, error) {
	c.exists.Add(1)
	return c.Collection.Exists(ctx, id)
}

type feedFixture struct {
	store  *repository.Store
	pager  *fakePager
	users  *counting[model.User]
	tweets *counting[model.Tweet]
	feed   *FeedService
}

func newFeedFixture(t *testing.T, opts viewable.Options) *feedFixture {
	t.Helper()
	store := repository.NewGormStore(storetest.NewDB(t))
	f := &feedFixture{
		store:  store,
		pager:  &fakePager{},
		users:  &counting[model.User]{Collection: store.Users},
		tweets: &counting[model.Tweet]{Collection: store.Tweets},
	}
	composer := viewable.NewComposer(f.users, f.tweets, repository.NewEdges(store))
	read := *store
	read.Users, read.Tweets = f.users, f.tweets
	f.feed = NewFeedService(f.pager, &read, composer, opts)
	return f
}

func (f *feedFixture) seed(t *testing.T, users []string, tweets map[string]string) {
	t.Helper()
	ctx := context.Background()
	for i, id := range users {
		require.NoError(t, f.store.Users.Create(ctx, &model.User{ID: id, Username: id, Email: id + "@example.com", Timestamp: int64(i + 1)}))
	}
	ts := int64(100)
	for id, author := range tweets {
		ts++
		require.NoError(t, f.store.Tweets.Create(ctx, &model.Tweet{ID: id, AuthorID: author, Text: id, Timestamp: ts}))
	}
	f.users.multiGets.Store(0)
	f.tweets.multiGets.Store(0)
}

func ref(objectID string, pos int64) activity.Reference {
	return activity.Reference{ID: "a-" + objectID, Verb: activity.VerbTweet, ObjectID: objectID, Position: pos}
}

func TestTimeline_EmptyPageSkipsResolveAndCompose(t *testing.T) {
	f := newFeedFixture(t, viewable.Options{EnableViewerCheck: true})
	f.pager.page = pagination.Page[activity.Reference]{Items: []activity.Reference{}}

	page, err := f.feed.Timeline(context.Background(), "nobody", "", 10)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Empty(t, page.NextCursor)

	assert.EqualValues(t, 1, f.pager.calls.Load())
	assert.Zero(t, f.tweets.multiGets.Load())
	assert.Zero(t, f.users.multiGets.Load())
	assert.Zero(t, f.users.exists.Load())
}

func TestTimeline_RetractedActivityPageKeepsCursor(t *testing.T) {
	f := newFeedFixture(t, viewable.Options{EnableViewerCheck: true})
	next := pagination.Encode(pagination.Key{Score: 7, ID: "a-t7"})
	f.pager.page = pagination.Page[activity.Reference]{Items: []activity.Reference{}, NextCursor: next}

	page, err := f.feed.Timeline(context.Background(), "bob", "", 2)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, next, page.NextCursor)
	assert.Zero(t, f.tweets.multiGets.Load())
	assert.Zero(t, f.users.exists.Load())
}

func TestTimeline_DeletedEntityIsSkippedAndCursorKept(t *testing.T) {
	f := newFeedFixture(t, viewable.Options{EnableViewerCheck: true})
	f.seed(t, []string{"alice", "bob"}, map[string]string{"t1": "alice", "t3": "alice"})
	next := pagination.Encode(pagination.Key{Score: 1, ID: "a-t3"})
	f.pager.page = pagination.Page[activity.Reference]{
		Items:      []activity.Reference{ref("t1", 3), ref("t2", 2), ref("t3", 1)},
		NextCursor: next,
	}

	page, err := f.feed.Timeline(context.Background(), "bob", "", 3)
	require.NoError(t, err)
	require.Equal(t, []string{"t1", "t3"}, tweetIDs(page.Items))
	assert.Equal(t, next, page.NextCursor)
	assert.Equal(t, "alice", page.Items[0].Viewables.Author.ID)

	assert.EqualValues(t, 1, f.tweets.multiGets.Load())
	assert.EqualValues(t, 1, f.users.multiGets.Load())
	assert.EqualValues(t, 1, f.users.exists.Load())
}

func TestTimeline_AllEntitiesGoneStillCarriesCursor(t *testing.T) {
	f := newFeedFixture(t, viewable.Options{})
	next := pagination.Encode(pagination.Key{Score: 1, ID: "x"})
	f.pager.page = pagination.Page[activity.Reference]{Items: []activity.Reference{ref("gone", 1)}, NextCursor: next}

	page, err := f.feed.Timeline(context.Background(), "", "", 1)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, next, page.NextCursor)
	assert.Zero(t, f.users.multiGets.Load())
}

func TestTimeline_Narrowing(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect error
	}{
		{"malformed kept", fmt.Errorf("%w: bad cursor", failure.ErrMalformedParameters), failure.ErrMalformedParameters},
		{"not found collapses", fmt.Errorf("%w: feed", failure.ErrNotFound), failure.ErrUnknown},
		{"already exists collapses", failure.ErrAlreadyExists, failure.ErrUnknown},
		{"raw error collapses", errors.New("connection reset"), failure.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFeedFixture(t, viewable.Options{})
			f.pager.err = tt.err

			_, err := f.feed.Timeline(context.Background(), "bob", "", 10)
			assert.ErrorIs(t, err, tt.expect)
			assert.Equal(t, tt.expect, failure.Reason(err))
		})
	}
}

func TestTimeline_ViewerMissing(t *testing.T) {
	f := newFeedFixture(t, viewable.Options{EnableViewerCheck: true})
	f.seed(t, []string{"alice"}, map[string]string{"t1": "alice"})
	f.pager.page = pagination.Page[activity.Reference]{Items: []activity.Reference{ref("t1", 1)}}

	_, err := f.feed.Timeline(context.Background(), "ghost", "", 10)
	assert.ErrorIs(t, err, failure.ErrViewerDoesNotExist)
	assert.Zero(t, f.users.multiGets.Load())
}

func TestTweet_StrictLookup(t *testing.T) {
	f := newFeedFixture(t, viewable.Options{EnableViewerCheck: true})
	f.seed(t, []string{"alice"}, map[string]string{"t1": "alice"})

	got, err := f.feed.Tweet(context.Background(), "t1", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Viewables.Author.ID)

	_, err = f.feed.Tweet(context.Background(), "missing", "alice")
	assert.ErrorIs(t, err, failure.ErrNotFound)

	_, err = f.feed.Tweet(context.Background(), "t1", "ghost")
	assert.ErrorIs(t, err, failure.ErrViewerDoesNotExist)
}

func TestBookmarks_MalformedCursor(t *testing.T) {
	f := newFeedFixture(t, viewable.Options{})
	_, err := f.feed.Bookmarks(context.Background(), "alice", "%%%", 10)
	assert.ErrorIs(t, err, failure.ErrMalformedParameters)
}
