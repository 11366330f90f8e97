package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tweetfeed/internal/model"
)

func mkOutbox(id string, ts int64) *model.Outbox {
	return &model.Outbox{
		ID:        id,
		Action:    model.OutboxPublish,
		FeedGroup: "user",
		FeedOwner: "alice",
		Verb:      "tweet",
		ActorID:   "alice",
		ObjectID:  "t-" + id,
		ForeignID: "tweet:t-" + id,
		Status:    model.OutboxPending,
		Timestamp: ts,
		CreatedAt: time.UnixMicro(ts),
	}
}

func TestOutboxQueue_ClaimInOrderOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Outbox.Create(ctx, mkOutbox(fmt.Sprintf("o%d", i), int64(i+1))))
	}

	first, err := s.Queue.Claim(ctx, 3)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"o0", "o1", "o2"}, []string{first[0].ID, first[1].ID, first[2].ID})
	assert.Equal(t, model.OutboxProcessing, first[0].Status)
	assert.Equal(t, 1, first[0].Attempts)

	second, err := s.Queue.Claim(ctx, 3)
	require.NoError(t, err)
	require.Len(t, second, 2)

	none, err := s.Queue.Claim(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOutboxQueue_CompleteAndFail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Outbox.Create(ctx, mkOutbox("ok", 1)))
	require.NoError(t, s.Outbox.Create(ctx, mkOutbox("bad", 2)))

	batch, err := s.Queue.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	require.NoError(t, s.Queue.Complete(ctx, "ok"))
	require.NoError(t, s.Queue.Fail(ctx, "bad", 2))

	row, err := s.Outbox.Get(ctx, "ok")
	require.NoError(t, err)
	assert.Equal(t, model.OutboxDone, row.Status)
	assert.NotNil(t, row.ProcessedAt)

	// 第一次失败回到 pending，第二次失败达到上限
	row, err = s.Outbox.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, model.OutboxPending, row.Status)

	batch, err = s.Queue.Claim(ctx, 10)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	require.NoError(t, s.Queue.Fail(ctx, "bad", 2))

	row, err = s.Outbox.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, model.OutboxFailed, row.Status)
	assert.Equal(t, 2, row.Attempts)
}
