package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
)

// Publisher 在调用方事务内写 outbox，事务提交即事件落地，由 OutboxRelay 投递到活动日志
type Publisher struct{}

func NewPublisher() *Publisher { return &Publisher{} }

func (p *Publisher) enqueue(ctx context.Context, tx *repository.Store, ob *model.Outbox) error {
	now, ts := model.Stamp()
	ob.ID = uuid.New().String()
	ob.Status = model.OutboxPending
	ob.Timestamp = ts
	ob.CreatedAt = now
	return tx.Outbox.Create(ctx, ob)
}

// Publish 追加活动
func (p *Publisher) Publish(ctx context.Context, tx *repository.Store, feed activity.FeedID, a activity.Activity) error {
	if a.ForeignID == "" {
		a.ForeignID = activity.ForeignID(a.Verb, a.ObjectID)
	}
	return p.enqueue(ctx, tx, &model.Outbox{
		Action:    model.OutboxPublish,
		FeedGroup: feed.Group,
		FeedOwner: feed.Owner,
		Verb:      a.Verb,
		ActorID:   a.ActorID,
		ObjectID:  a.ObjectID,
		ForeignID: a.ForeignID,
	})
}

// Retract 撤回活动
func (p *Publisher) Retract(ctx context.Context, tx *repository.Store, feed activity.FeedID, foreignID string) error {
	return p.enqueue(ctx, tx, &model.Outbox{
		Action:    model.OutboxRetract,
		FeedGroup: feed.Group,
		FeedOwner: feed.Owner,
		ForeignID: foreignID,
	})
}

// Follow followerID 的时间线开始关注 followeeID
func (p *Publisher) Follow(ctx context.Context, tx *repository.Store, followerID, followeeID string) error {
	return p.enqueue(ctx, tx, &model.Outbox{
		Action:    model.OutboxFollow,
		FeedGroup: activity.GroupTimeline,
		FeedOwner: followerID,
		ActorID:   followerID,
		ObjectID:  followeeID,
		ForeignID: "follow:" + model.CompositeID(followerID, followeeID),
	})
}

func (p *Publisher) Unfollow(ctx context.Context, tx *repository.Store, followerID, followeeID string) error {
	return p.enqueue(ctx, tx, &model.Outbox{
		Action:    model.OutboxUnfollow,
		FeedGroup: activity.GroupTimeline,
		FeedOwner: followerID,
		ActorID:   followerID,
		ObjectID:  followeeID,
		ForeignID: "unfollow:" + model.CompositeID(followerID, followeeID),
	})
}
