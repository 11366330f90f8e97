package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/activity/redislog"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/internal/storetest"
)

// recordingWriter 记录投递；fail 中的 foreign id 投递失败
type recordingWriter struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (w *recordingWriter) record(s string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail[s] {
		return errors.New("log unavailable")
	}
	w.calls = append(w.calls, s)
	return nil
}

func (w *recordingWriter) Publish(_ context.Context, feed activity.FeedID, a activity.Activity) (activity.Reference, error) {
	return activity.Reference{}, w.record("publish " + feed.String() + " " + a.ForeignID)
}

func (w *recordingWriter) Retract(_ context.Context, feed activity.FeedID, foreignID string) error {
	return w.record("retract " + feed.String() + " " + foreignID)
}

func (w *recordingWriter) Follow(_ context.Context, followerID, followeeID string) error {
	return w.record("follow " + followerID + " " + followeeID)
}

func (w *recordingWriter) Unfollow(_ context.Context, followerID, followeeID string) error {
	return w.record("unfollow " + followerID + " " + followeeID)
}

// flakyWriter 前 failures 次调用失败
type flakyWriter struct {
	ActivityWriter
	mu       sync.Mutex
	failures int
}

func (w *flakyWriter) trip() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failures > 0 {
		w.failures--
		return errors.New("log unavailable")
	}
	return nil
}

func (w *flakyWriter) Follow(ctx context.Context, followerID, followeeID string) error {
	if err := w.trip(); err != nil {
		return err
	}
	return w.ActivityWriter.Follow(ctx, followerID, followeeID)
}

func (w *flakyWriter) Unfollow(ctx context.Context, followerID, followeeID string) error {
	if err := w.trip(); err != nil {
		return err
	}
	return w.ActivityWriter.Unfollow(ctx, followerID, followeeID)
}

func drainRelay(t *testing.T, relay *OutboxRelay) {
	t.Helper()
	for i := 0; i < 10; i++ {
		n, err := relay.ProcessOnce(context.Background())
		require.NoError(t, err)
		if n == 0 {
			return
		}
	}
	t.Fatal("outbox did not drain")
}

func TestOutboxRelay_DeliversInWriteOrder(t *testing.T) {
	store := repository.NewGormStore(storetest.NewDB(t))
	ctx := context.Background()
	p := NewPublisher()

	require.NoError(t, store.RunAtomic(ctx, func(tx *repository.Store) error {
		if _, err := repository.NewFollowRepository(tx.Follows).Create(ctx, "bob", "alice"); err != nil {
			return err
		}
		if err := p.Follow(ctx, tx, "bob", "alice"); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
		if err := p.Publish(ctx, tx, activity.UserFeed("alice"), activity.Activity{Verb: activity.VerbTweet, ActorID: "alice", ObjectID: "t1"}); err != nil {
			return err
		}
		time.Sleep(time.Millisecond)
		return p.Retract(ctx, tx, activity.UserFeed("alice"), activity.ForeignID(activity.VerbTweet, "t1"))
	}))

	w := &recordingWriter{}
	relay := NewOutboxRelay(store.Queue, repository.NewFollowRepository(store.Follows), w, RelayConfig{ClaimLimit: 10})
	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{
		"follow bob alice",
		"publish user:alice tweet:t1",
		"retract user:alice tweet:t1",
	}, w.calls)
	assert.Len(t, relay.Metrics(), 3)

	n, err = relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOutboxRelay_RetriedFollowDoesNotOutliveUnfollow(t *testing.T) {
	store := repository.NewGormStore(storetest.NewDB(t))
	rdb, _ := storetest.NewRedis(t)
	log := redislog.New(rdb, 100)
	ctx := context.Background()
	p := NewPublisher()
	follows := repository.NewFollowRepository(store.Follows)

	_, err := log.AddActivity(ctx, activity.UserFeed("alice"), activity.Activity{Verb: activity.VerbTweet, ActorID: "alice", ObjectID: "t1"})
	require.NoError(t, err)

	require.NoError(t, store.RunAtomic(ctx, func(tx *repository.Store) error {
		if _, err := repository.NewFollowRepository(tx.Follows).Create(ctx, "bob", "alice"); err != nil {
			return err
		}
		return p.Follow(ctx, tx, "bob", "alice")
	}))
	time.Sleep(time.Millisecond)
	require.NoError(t, store.RunAtomic(ctx, func(tx *repository.Store) error {
		if _, err := repository.NewFollowRepository(tx.Follows).Delete(ctx, "bob", "alice"); err != nil {
			return err
		}
		return p.Unfollow(ctx, tx, "bob", "alice")
	}))

	// 第一条（follow 事件）投递失败回到 pending，unfollow 事件先落地
	w := &flakyWriter{ActivityWriter: activity.NewSource(log), failures: 1}
	relay := NewOutboxRelay(store.Queue, follows, w, RelayConfig{ClaimLimit: 10})
	n, err := relay.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	drainRelay(t, relay)

	following, err := log.Following(ctx, activity.TimelineFeed("bob"))
	require.NoError(t, err)
	assert.Empty(t, following)
	page, err := log.Read(ctx, activity.TimelineFeed("bob"), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Activities)

	outbox, err := store.Outbox.Query(ctx, repository.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, outbox.Items, 2)
	for _, ob := range outbox.Items {
		assert.Equal(t, model.OutboxDone, ob.Status)
	}
}

func TestOutboxRelay_StaleEventFollowsCurrentEdge(t *testing.T) {
	store := repository.NewGormStore(storetest.NewDB(t))
	ctx := context.Background()
	follows := repository.NewFollowRepository(store.Follows)

	// 事件是 unfollow，但之后又重新关注了
	require.NoError(t, NewPublisher().Unfollow(ctx, store, "bob", "alice"))
	_, err := follows.Create(ctx, "bob", "alice")
	require.NoError(t, err)

	w := &recordingWriter{}
	drainRelay(t, NewOutboxRelay(store.Queue, follows, w, RelayConfig{}))
	assert.Equal(t, []string{"follow bob alice"}, w.calls)
}

func TestOutboxRelay_RetriesThenGivesUp(t *testing.T) {
	store := repository.NewGormStore(storetest.NewDB(t))
	ctx := context.Background()
	require.NoError(t, NewPublisher().Publish(ctx, store, activity.UserFeed("alice"), activity.Activity{Verb: activity.VerbTweet, ActorID: "alice", ObjectID: "t1"}))

	w := &recordingWriter{fail: map[string]bool{"publish user:alice tweet:t1": true}}
	relay := NewOutboxRelay(store.Queue, repository.NewFollowRepository(store.Follows), w, RelayConfig{MaxAttempts: 2})

	for i := 0; i < 3; i++ {
		n, err := relay.ProcessOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
	page, err := store.Outbox.Query(ctx, repository.Query{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, model.OutboxFailed, page.Items[0].Status)
	assert.Equal(t, 2, page.Items[0].Attempts)
}

func TestOutboxRelay_StartStop(t *testing.T) {
	store := repository.NewGormStore(storetest.NewDB(t))
	ctx := context.Background()
	require.NoError(t, NewPublisher().Follow(ctx, store, "bob", "alice"))

	w := &recordingWriter{}
	relay := NewOutboxRelay(store.Queue, repository.NewFollowRepository(store.Follows), w, RelayConfig{Workers: 1, PollInterval: 5 * time.Millisecond})
	stop := relay.Start()
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return len(w.calls) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop(ctx))
	assert.Equal(t, []string{"unfollow bob alice"}, w.calls)
}

type fanFixture struct {
	follows repository.FollowRepository
	fans    repository.FanRepository
}

func newFanFixture(t *testing.T) fanFixture {
	t.Helper()
	store := repository.NewGormStore(storetest.NewDB(t))
	return fanFixture{follows: repository.NewFollowRepository(store.Follows), fans: repository.NewFanRepository(store.Fans)}
}

func (f fanFixture) fanIDs(t *testing.T, userID string) []string {
	t.Helper()
	page, err := f.fans.ListFans(context.Background(), userID, "", 10)
	require.NoError(t, err)
	ids := make([]string, len(page.Items))
	for i, fan := range page.Items {
		ids[i] = fan.FanID
	}
	return ids
}

func TestFanReplicator_AppliesAndDrains(t *testing.T) {
	f := newFanFixture(t)
	ctx := context.Background()
	for _, fan := range []string{"bob", "carol"} {
		_, err := f.follows.Create(ctx, fan, "alice")
		require.NoError(t, err)
	}
	r := NewFanReplicator(f.fans, f.follows, 16)

	r.EnqueueAdd("alice", "bob")
	r.EnqueueAdd("alice", "carol")
	r.EnqueueAdd("alice", "bob")
	assert.Equal(t, 3, r.QueueLen())

	stop := r.Start(1)
	require.NoError(t, r.Flush(ctx))
	assert.ElementsMatch(t, []string{"bob", "carol"}, f.fanIDs(t, "alice"))

	_, err := f.follows.Delete(ctx, "bob", "alice")
	require.NoError(t, err)
	r.EnqueueRemove("alice", "bob")
	require.NoError(t, stop(ctx))
	assert.Equal(t, []string{"carol"}, f.fanIDs(t, "alice"))
}

func TestFanReplicator_RemoveAppliedBeforeAdd(t *testing.T) {
	f := newFanFixture(t)
	ctx := context.Background()
	r := NewFanReplicator(f.fans, f.follows, 16)

	// bob 关注后又取消：两条任务乱序到达
	r.EnqueueRemove("alice", "bob")
	r.EnqueueAdd("alice", "bob")
	stop := r.Start(1)
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, stop(ctx))

	assert.Empty(t, f.fanIDs(t, "alice"))
}

func TestFanReplicator_StaleRemoveKeepsCurrentFollower(t *testing.T) {
	f := newFanFixture(t)
	ctx := context.Background()
	_, err := f.follows.Create(ctx, "bob", "alice")
	require.NoError(t, err)
	r := NewFanReplicator(f.fans, f.follows, 16)

	r.EnqueueRemove("alice", "bob")
	stop := r.Start(1)
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, stop(ctx))

	assert.Equal(t, []string{"bob"}, f.fanIDs(t, "alice"))
}

func TestFanReplicator_OverflowIsRepaired(t *testing.T) {
	f := newFanFixture(t)
	ctx := context.Background()
	for _, fan := range []string{"bob", "carol"} {
		_, err := f.follows.Create(ctx, fan, "alice")
		require.NoError(t, err)
	}
	r := NewFanReplicator(f.fans, f.follows, 1)

	r.EnqueueAdd("alice", "bob")
	r.EnqueueAdd("alice", "carol")
	assert.Equal(t, 1, r.QueueLen())
	assert.Equal(t, 1, r.Deferred())

	stop := r.Start(1)
	require.NoError(t, r.Flush(ctx))
	require.NoError(t, stop(ctx))

	assert.Zero(t, r.Deferred())
	assert.ElementsMatch(t, []string{"bob", "carol"}, f.fanIDs(t, "alice"))
}
