package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tweetfeed/internal/activity"
	"github.com/d60-Lab/tweetfeed/internal/model"
	"github.com/d60-Lab/tweetfeed/internal/repository"
	"github.com/d60-Lab/tweetfeed/pkg/logger"
)

// ActivityWriter 活动日志写入端
type ActivityWriter interface {
	Publish(ctx context.Context, feed activity.FeedID, a activity.Activity) (activity.Reference, error)
	Retract(ctx context.Context, feed activity.FeedID, foreignID string) error
	Follow(ctx context.Context, followerID, followeeID string) error
	Unfollow(ctx context.Context, followerID, followeeID string) error
}

// RelayConfig OutboxRelay 参数
type RelayConfig struct {
	Workers      int
	ClaimLimit   int
	MaxAttempts  int
	PollInterval time.Duration
}

// OutboxRelay 轮询 outbox，把事件投递到活动日志。投递按 foreign id 幂等，重复投递安全。
//
// follow/unfollow 事件按投递时 follows 表中的边同步，不看事件自身的动作。
type OutboxRelay struct {
	queue   repository.OutboxQueue
	follows FollowState
	writer  ActivityWriter
	cfg     RelayConfig
	locks   pairLocks

	metricsCh chan time.Duration // outbox 写入 -> 投递完成的耗时
}

func NewOutboxRelay(queue repository.OutboxQueue, follows FollowState, writer ActivityWriter, cfg RelayConfig) *OutboxRelay {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.ClaimLimit <= 0 {
		cfg.ClaimLimit = 64
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 50 * time.Millisecond
	}
	return &OutboxRelay{queue: queue, follows: follows, writer: writer, cfg: cfg, metricsCh: make(chan time.Duration, 65536)}
}

func (r *OutboxRelay) Metrics() <-chan time.Duration { return r.metricsCh }

// Start 启动若干 worker；返回的停止函数等待正在处理的批次结束
func (r *OutboxRelay) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx)
		}()
	}
	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (r *OutboxRelay) loop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("outbox relay round failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce 领取一批事件并逐条投递，返回成功条数
func (r *OutboxRelay) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := r.queue.Claim(ctx, r.cfg.ClaimLimit)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}

	delivered := 0
	for _, ob := range batch {
		if err := r.deliver(ctx, ob); err != nil {
			logger.Warn("outbox delivery failed",
				zap.String("id", ob.ID),
				zap.String("action", string(ob.Action)),
				zap.String("foreign_id", ob.ForeignID),
				zap.Int("attempts", ob.Attempts),
				zap.Error(err))
			if fErr := r.queue.Fail(ctx, ob.ID, r.cfg.MaxAttempts); fErr != nil {
				logger.Error("outbox mark failed", zap.String("id", ob.ID), zap.Error(fErr))
			}
			continue
		}
		if err := r.queue.Complete(ctx, ob.ID); err != nil {
			logger.Error("outbox mark done", zap.String("id", ob.ID), zap.Error(err))
			continue
		}
		delivered++
		if !ob.CreatedAt.IsZero() {
			select {
			case r.metricsCh <- time.Since(ob.CreatedAt):
			default:
			}
		}
	}
	return delivered, nil
}

func (r *OutboxRelay) deliver(ctx context.Context, ob model.Outbox) error {
	feed := activity.FeedID{Group: ob.FeedGroup, Owner: ob.FeedOwner}
	switch ob.Action {
	case model.OutboxPublish:
		_, err := r.writer.Publish(ctx, feed, activity.Activity{
			Verb:      ob.Verb,
			ActorID:   ob.ActorID,
			ObjectID:  ob.ObjectID,
			ForeignID: ob.ForeignID,
		})
		return err
	case model.OutboxRetract:
		return r.writer.Retract(ctx, feed, ob.ForeignID)
	case model.OutboxFollow, model.OutboxUnfollow:
		return r.syncFollow(ctx, ob.ActorID, ob.ObjectID)
	default:
		return fmt.Errorf("unknown outbox action %q", ob.Action)
	}
}

// syncFollow 把活动日志中这一对的关注状态对齐到 follows 表
func (r *OutboxRelay) syncFollow(ctx context.Context, followerID, followeeID string) error {
	unlock := r.locks.lock(followerID, followeeID)
	defer unlock()

	following, err := r.follows.Exists(ctx, followerID, followeeID)
	if err != nil {
		return fmt.Errorf("read follow edge: %w", err)
	}
	if following {
		return r.writer.Follow(ctx, followerID, followeeID)
	}
	return r.writer.Unfollow(ctx, followerID, followeeID)
}
