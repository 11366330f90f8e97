package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/failure"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/pagination"
)

type fakeTweets struct {
	docs  map[string]model.Tweet
	err   error
	calls int
	short bool
}

func (f *fakeTweets) MultiGet(_ context.Context, ids []string) ([]*model.Tweet, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*model.Tweet, len(ids))
	for i, id := range ids {
		if d, ok := f.docs[id]; ok {
			out[i] = &d
		}
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func store(ids ...string) *fakeTweets {
	f := &fakeTweets{docs: map[string]model.Tweet{}}
	for _, id := range ids {
		f.docs[id] = model.Tweet{ID: id}
	}
	return f
}

func refs(cursor pagination.Cursor, ids ...string) pagination.Page[activity.Reference] {
	p := pagination.Page[activity.Reference]{NextCursor: cursor}
	for _, id := range ids {
		p.Items = append(p.Items, activity.Reference{ID: "a-" + id, ObjectID: id})
	}
	return p
}

func ids(p pagination.Page[model.Tweet]) []string {
	out := make([]string, len(p.Items))
	for i, t := range p.Items {
		out[i] = t.ID
	}
	return out
}

func TestPage_TolerantSkipsMissingKeepsOrderAndCursor(t *testing.T) {
	coll := store("t1", "t3", "t4")

	page, err := Page[model.Tweet](context.Background(), coll, refs("next", "t4", "t2", "t3", "t1"), Tolerant)
	require.NoError(t, err)
	assert.Equal(t, []string{"t4", "t3", "t1"}, ids(page))
	assert.Equal(t, pagination.Cursor("next"), page.NextCursor)
	assert.Equal(t, 1, coll.calls)
}

func TestPage_StrictFailsOnMissing(t *testing.T) {
	coll := store("t1")

	_, err := Page[model.Tweet](context.Background(), coll, refs("", "t1", "t2"), Strict)
	assert.ErrorIs(t, err, failure.ErrNotFound)
}

func TestPage_EmptyDoesNotTouchStore(t *testing.T) {
	coll := store()

	page, err := Page[model.Tweet](context.Background(), coll, refs(""), Tolerant)
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Zero(t, coll.calls)
}

func TestPage_StoreFaultsBecomeUnknown(t *testing.T) {
	for name, coll := range map[string]*fakeTweets{
		"error":      {err: errors.New("connection reset")},
		"misaligned": {docs: map[string]model.Tweet{"t1": {ID: "t1"}}, short: true},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Page[model.Tweet](context.Background(), coll, refs("", "t1"), Tolerant)
			assert.ErrorIs(t, err, failure.ErrUnknown)
		})
	}
}

func TestOne(t *testing.T) {
	coll := store("t1")

	tw, err := One[model.Tweet](context.Background(), coll, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", tw.ID)

	_, err = One[model.Tweet](context.Background(), coll, "ghost")
	assert.ErrorIs(t, err, failure.ErrNotFound)
}
